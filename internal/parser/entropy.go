package parser

import (
	"math"
	"sort"
)

// Entropy computes the Shannon entropy of a string over its characters.
// The empty string has entropy 0.
func Entropy(s string) float64 {
	if len(s) == 0 {
		return 0.0
	}

	freq := make(map[rune]int)
	var length int
	for _, r := range s {
		freq[r]++
		length++
	}

	// Sum in a fixed rune order: map iteration order is randomized, and
	// float addition order changes the last bit of the result.
	runes := make([]rune, 0, len(freq))
	for r := range freq {
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })

	entropy := 0.0
	for _, r := range runes {
		p := float64(freq[r]) / float64(length)
		entropy -= p * math.Log2(p)
	}
	return entropy
}
