// Package rules holds the deterministic anomaly predicates. Each rule is a
// stateless function returning whether it triggered, a score in [0,1] and a
// short human-readable reason.
package rules

import (
	"fmt"
	"strings"

	"github.com/bhaveshbhatkar/AISecurityLog/internal/parser"
)

// Hit is the outcome of rule evaluation for one record. A zero Hit means
// no rule triggered.
type Hit struct {
	Score  float64
	Reason string
}

var commonMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"DELETE": true,
	"HEAD":   true,
}

var suspiciousUAKeywords = []string{"bot", "curl", "python", "nmap", "scanner"}

// HighRequestRate triggers when one source address accounts for more than
// threshold requests within the batch.
func HighRequestRate(count, threshold int) (bool, float64, string) {
	if threshold > 0 && count > threshold {
		score := float64(count) / float64(threshold)
		if score > 1.0 {
			score = 1.0
		}
		return true, score, "High request rate from same IP"
	}
	return false, 0, ""
}

// UnusualMethod triggers on any HTTP method outside the common set.
func UnusualMethod(method string) (bool, float64, string) {
	if !commonMethods[method] {
		return true, 0.9, fmt.Sprintf("Unusual HTTP method detected: %s", method)
	}
	return false, 0, ""
}

// SuspiciousUserAgent triggers when the user agent contains a known
// scanner/tooling keyword. An empty user agent never triggers.
func SuspiciousUserAgent(ua string) (bool, float64, string) {
	if ua == "" {
		return false, 0, ""
	}
	lower := strings.ToLower(ua)
	for _, kw := range suspiciousUAKeywords {
		if strings.Contains(lower, kw) {
			return true, 0.9, fmt.Sprintf("Suspicious user agent: %s", ua)
		}
	}
	return false, 0, ""
}

// LargeTransfer triggers when the byte count exceeds the configured limit.
func LargeTransfer(bytes, limit int64) (bool, float64, string) {
	if bytes > limit {
		return true, 0.8, fmt.Sprintf("Large data transfer detected: %d bytes", bytes)
	}
	return false, 0, ""
}

// Thresholds configures the tunable rule limits.
type Thresholds struct {
	HighRate      int
	LargeTransfer int64
}

// Evaluate runs every rule against a record and keeps the best-scoring
// triggered hit. Ties go to the earlier rule in evaluation order.
func Evaluate(rec *parser.Record, th Thresholds) Hit {
	var best Hit

	checks := []func() (bool, float64, string){
		func() (bool, float64, string) { return HighRequestRate(rec.SrcIPCount, th.HighRate) },
		func() (bool, float64, string) { return UnusualMethod(rec.Method) },
		func() (bool, float64, string) { return SuspiciousUserAgent(rec.UserAgent) },
		func() (bool, float64, string) { return LargeTransfer(rec.Bytes, th.LargeTransfer) },
	}

	for _, check := range checks {
		triggered, score, reason := check()
		if triggered && score > best.Score {
			best = Hit{Score: score, Reason: reason}
		}
	}

	return best
}
