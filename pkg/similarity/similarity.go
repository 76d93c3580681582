// Package similarity provides cosine nearest-neighbour retrieval over small,
// in-memory vector corpora.
package similarity

import (
	"errors"
	"math"
	"slices"
	"strings"
	"sync"
)

// ErrDimensionMismatch is returned when two vectors have different lengths.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Entry is a corpus member: a stable identifier, its vector, and a payload.
type Entry[T any] struct {
	ID     string
	Vector []float32
	Value  T
}

// Match pairs a corpus entry with its similarity to the query vector.
type Match[T any] struct {
	Entry      Entry[T]
	Similarity float64
}

// Cosine returns the cosine similarity of a and b.
// A zero-magnitude vector has similarity 0 with everything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}

	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// Query returns corpus entries whose similarity to vector is at least threshold,
// ordered by descending similarity with ties broken by ascending ID.
// k bounds the result size; k <= 0 means unbounded. Entries whose dimension
// differs from vector are skipped and reported through the skipped count.
func Query[T any](corpus []Entry[T], vector []float32, threshold float64, k int) (matches []Match[T], skipped int) {
	matches = make([]Match[T], 0)
	if len(vector) == 0 {
		return matches, 0
	}

	for _, e := range corpus {
		sim, err := Cosine(vector, e.Vector)
		if err != nil {
			skipped++
			continue
		}
		if sim < threshold {
			continue
		}
		matches = append(matches, Match[T]{Entry: e, Similarity: sim})
	}

	slices.SortStableFunc(matches, func(a, b Match[T]) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return strings.Compare(a.Entry.ID, b.Entry.ID)
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, skipped
}

// Index is a concurrency-safe corpus that can be queried while entries are added.
type Index[T any] struct {
	mu      sync.RWMutex
	entries []Entry[T]
}

// NewIndex creates an Index seeded with entries.
func NewIndex[T any](entries ...Entry[T]) *Index[T] {
	return &Index[T]{entries: slices.Clone(entries)}
}

// Add appends entries to the index.
func (x *Index[T]) Add(entries ...Entry[T]) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = append(x.entries, entries...)
}

// Len returns the number of entries in the index.
func (x *Index[T]) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Query runs Query against a snapshot of the index.
func (x *Index[T]) Query(vector []float32, threshold float64, k int) ([]Match[T], int) {
	x.mu.RLock()
	snapshot := x.entries
	x.mu.RUnlock()
	return Query(snapshot, vector, threshold, k)
}
