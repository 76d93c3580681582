package golden

import (
	"context"

	"github.com/JaimeStill/tally/pkg/pagination"
)

// Searcher retrieves golden neighbours of a vector.
type Searcher interface {
	Search(ctx context.Context, vector []float32, threshold float64, k int) ([]Match, error)
}

// System defines the public contract for the golden knowledge base.
type System interface {
	Searcher

	Handler() *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Mapping], error)

	// Promote inserts c unless the corpus already holds a near-duplicate
	// (similarity at or above the dedup threshold) or an exact duplicate.
	Promote(ctx context.Context, c Candidate) (Outcome, error)

	// Import embeds and inserts entries, skipping exact duplicates.
	Import(ctx context.Context, cmd ImportCommand) (*ImportResult, error)
}

// Store is the persistence contract behind System.
type Store interface {
	Corpus(ctx context.Context) ([]Mapping, error)
	Insert(ctx context.Context, c Candidate) (Mapping, error)
	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Mapping], error)
}
