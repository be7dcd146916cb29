// Package vectorindex provides an exact nearest-neighbor index over
// fixed-dimension float vectors with durable snapshots.
package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	// ErrDimensionMismatch means a vector's length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vectorindex: dimension mismatch")
	// ErrCountMismatch means vectors and metadata counts differ.
	ErrCountMismatch = errors.New("vectorindex: vector/metadata count mismatch")
	// ErrLockTimeout means the snapshot advisory lock could not be acquired in time.
	ErrLockTimeout = errors.New("vectorindex: lock acquisition timed out")
)

// Metadata is the per-vector payload tracked alongside each index entry.
type Metadata struct {
	EventID   int64  `json:"event_id"`
	UploadID  string `json:"upload_id"`
	Timestamp string `json:"timestamp"`
}

// NearestNeighbors is the pluggable similarity capability consumed by the
// detection pipeline. Implementations may be exact or approximate as long
// as Search returns distances sorted ascending.
type NearestNeighbors interface {
	Add(vectors [][]float32, meta []Metadata) error
	Search(query []float32, k int) ([]float64, []Metadata)
	Len() int
	Dim() int
	Save() error
}

// Flat is an exact L2-distance index over a dense in-memory vector set.
// Entries are append-only. The zero value is not usable; construct with
// New or Open.
type Flat struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
	meta    []Metadata

	snapshot *snapshotConfig
}

// New creates an empty index with the given dimension and no persistence.
func New(dim int) *Flat {
	return &Flat{dim: dim}
}

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Dim returns the configured vector dimension.
func (f *Flat) Dim() int { return f.dim }

// Add appends vector/metadata pairs. Validation happens before any
// mutation: either every pair is added or none is.
func (f *Flat) Add(vectors [][]float32, meta []Metadata) error {
	if len(vectors) != len(meta) {
		return fmt.Errorf("%w: %d vectors, %d metadata entries",
			ErrCountMismatch, len(vectors), len(meta))
	}
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: vector %d has length %d, index dimension is %d",
				ErrDimensionMismatch, i, len(v), f.dim)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, v := range vectors {
		cp := make([]float32, len(v))
		copy(cp, v)
		f.vectors = append(f.vectors, cp)
	}
	f.meta = append(f.meta, meta...)
	return nil
}

// Search returns the k nearest stored vectors to query by Euclidean
// distance, closest first. k is clamped to the current entry count; an
// empty index yields empty results, never an error.
func (f *Flat) Search(query []float32, k int) ([]float64, []Metadata) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := len(f.vectors)
	if n == 0 || k <= 0 || len(query) != f.dim {
		return nil, nil
	}
	if k > n {
		k = n
	}

	type candidate struct {
		dist float64
		idx  int
	}
	candidates := make([]candidate, n)
	for i, v := range f.vectors {
		candidates[i] = candidate{dist: l2Distance(query, v), idx: i}
	}
	sort.Slice(candidates, func(a, b int) bool {
		return candidates[a].dist < candidates[b].dist
	})

	distances := make([]float64, k)
	meta := make([]Metadata, k)
	for i := 0; i < k; i++ {
		distances[i] = candidates[i].dist
		meta[i] = f.meta[candidates[i].idx]
	}
	return distances, meta
}

// Stats describes the index for logs and readiness payloads.
type Stats struct {
	Vectors   int    `json:"vectors"`
	Dimension int    `json:"dimension"`
	Kind      string `json:"kind"`
}

// Stats returns current index statistics.
func (f *Flat) Stats() Stats {
	return Stats{Vectors: f.Len(), Dimension: f.dim, Kind: "flat-l2"}
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
