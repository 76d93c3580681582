package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/pkg/pagination"
)

// System defines the public contract for ledger ingest and queries.
type System interface {
	Handler() *Handler

	IngestTransactions(ctx context.Context, scope auth.Scope, dealID uuid.UUID, rows []TransactionInput) (*IngestResult, error)
	IngestPeriod(ctx context.Context, scope auth.Scope, dealID uuid.UUID, input PeriodInput) (*Period, error)

	ListTransactions(
		ctx context.Context,
		scope auth.Scope,
		dealID uuid.UUID,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Transaction], error)

	ListPeriods(ctx context.Context, scope auth.Scope, dealID uuid.UUID) ([]Period, error)
}
