package deals

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/events"
	"github.com/JaimeStill/tally/pkg/pagination"
)

// System defines the public contract for deals.
type System interface {
	Handler() *Handler

	List(ctx context.Context, scope auth.Scope, page pagination.PageRequest) (*pagination.PageResult[Deal], error)
	Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Deal, error)
	Create(ctx context.Context, scope auth.Scope, cmd CreateCommand) (*Deal, error)
	Stats(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Stats, error)
}

// Store is the persistence contract behind System.
type Store interface {
	List(ctx context.Context, scope auth.Scope, page pagination.PageRequest) (*pagination.PageResult[Deal], error)
	Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Deal, error)

	// Create inserts d and records ev in the same transaction.
	Create(ctx context.Context, scope auth.Scope, d Deal, ev *events.Event) (*Deal, error)

	// Counts returns ErrNotFound when the deal is not visible to scope.
	// Transactions below lowConfidence are counted as low confidence.
	Counts(ctx context.Context, scope auth.Scope, id uuid.UUID, lowConfidence int) (Counts, error)
}
