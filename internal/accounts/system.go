package accounts

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/pkg/pagination"
)

// System defines the public contract for client account operations.
type System interface {
	Handler() *Handler

	List(
		ctx context.Context,
		scope auth.Scope,
		dealID uuid.UUID,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Account], error)

	Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Account, error)

	// IDs returns the IDs of every client account of a deal.
	IDs(ctx context.Context, scope auth.Scope, dealID uuid.UUID) ([]uuid.UUID, error)

	// Aggregate dedupes the deal's GL rows into client accounts. Existing
	// accounts are left untouched; new ones are queued for embedding.
	Aggregate(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*AggregateResult, error)

	// Embed returns the account with its embedding, computing and storing it
	// when missing. The provider call happens outside any transaction.
	Embed(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Account, error)

	// RefreshEmbeddings embeds every account of a deal that has no embedding.
	RefreshEmbeddings(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*RefreshResult, error)
}

// Store is the persistence contract behind System. Every method runs in its
// own tenant-scoped transaction.
type Store interface {
	RawRows(ctx context.Context, scope auth.Scope, dealID uuid.UUID) ([]RawRow, error)

	// Apply inserts the groups that do not yet exist and links every GL row
	// to its client account, in one transaction.
	Apply(ctx context.Context, scope auth.Scope, dealID uuid.UUID, groups []Group) ([]Account, error)

	Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Account, error)
	IDs(ctx context.Context, scope auth.Scope, dealID uuid.UUID) ([]uuid.UUID, error)
	Unembedded(ctx context.Context, scope auth.Scope, dealID uuid.UUID) ([]uuid.UUID, error)
	SetEmbedding(ctx context.Context, scope auth.Scope, id uuid.UUID, vector []float32) error

	List(
		ctx context.Context,
		scope auth.Scope,
		dealID uuid.UUID,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Account], error)
}
