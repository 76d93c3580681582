package similarity_test

import (
	"errors"
	"math"
	"testing"

	"github.com/JaimeStill/tally/pkg/similarity"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := similarity.Cosine(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}

func TestCosineDimensionMismatch(t *testing.T) {
	_, err := similarity.Cosine([]float32{1}, []float32{1, 2})
	if !errors.Is(err, similarity.ErrDimensionMismatch) {
		t.Errorf("got %v, want ErrDimensionMismatch", err)
	}
}

func corpus() []similarity.Entry[string] {
	return []similarity.Entry[string]{
		{ID: "c", Vector: []float32{1, 0}, Value: "exact-c"},
		{ID: "a", Vector: []float32{1, 0}, Value: "exact-a"},
		{ID: "b", Vector: []float32{1, 1}, Value: "diagonal"},
		{ID: "d", Vector: []float32{0, 1}, Value: "orthogonal"},
		{ID: "e", Vector: []float32{1, 0, 0}, Value: "wrong-dim"},
	}
}

func TestQueryOrderingAndTies(t *testing.T) {
	matches, skipped := similarity.Query(corpus(), []float32{1, 0}, 0.5, 0)

	if skipped != 1 {
		t.Errorf("skipped: got %d, want 1", skipped)
	}

	wantIDs := []string{"a", "c", "b"}
	if len(matches) != len(wantIDs) {
		t.Fatalf("len: got %d, want %d", len(matches), len(wantIDs))
	}
	for i, id := range wantIDs {
		if matches[i].Entry.ID != id {
			t.Errorf("matches[%d]: got %s, want %s", i, matches[i].Entry.ID, id)
		}
	}
}

func TestQueryThresholdIsHardCutoff(t *testing.T) {
	matches, _ := similarity.Query(corpus(), []float32{1, 0}, 0.99, 0)
	for _, m := range matches {
		if m.Similarity < 0.99 {
			t.Errorf("entry %s below threshold: %f", m.Entry.ID, m.Similarity)
		}
	}
	if len(matches) != 2 {
		t.Errorf("len: got %d, want 2", len(matches))
	}
}

func TestQueryBoundsK(t *testing.T) {
	matches, _ := similarity.Query(corpus(), []float32{1, 0}, 0, 2)
	if len(matches) != 2 {
		t.Errorf("len: got %d, want 2", len(matches))
	}
}

func TestQueryEmptyCorpus(t *testing.T) {
	matches, skipped := similarity.Query[string](nil, []float32{1, 0}, 0.5, 5)
	if matches == nil || len(matches) != 0 || skipped != 0 {
		t.Errorf("want empty non-nil result, got %v (skipped %d)", matches, skipped)
	}
}

func TestQueryStable(t *testing.T) {
	first, _ := similarity.Query(corpus(), []float32{1, 0.2}, 0, 0)
	for range 10 {
		again, _ := similarity.Query(corpus(), []float32{1, 0.2}, 0, 0)
		for i := range first {
			if first[i].Entry.ID != again[i].Entry.ID {
				t.Fatalf("order changed at %d: %s vs %s", i, first[i].Entry.ID, again[i].Entry.ID)
			}
		}
	}
}

func TestIndexAddAndQuery(t *testing.T) {
	idx := similarity.NewIndex[string]()
	if idx.Len() != 0 {
		t.Fatalf("new index should be empty")
	}

	idx.Add(similarity.Entry[string]{ID: "x", Vector: []float32{0, 1}, Value: "x"})
	matches, _ := idx.Query([]float32{0, 1}, 0.9, 1)
	if len(matches) != 1 || matches[0].Entry.ID != "x" {
		t.Errorf("got %v, want single match x", matches)
	}
}
