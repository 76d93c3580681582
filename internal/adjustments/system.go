package adjustments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/events"
	"github.com/JaimeStill/tally/pkg/pagination"
)

// System defines the public contract for the adjustment workflow.
type System interface {
	Handler() *Handler

	List(
		ctx context.Context,
		scope auth.Scope,
		dealID uuid.UUID,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Adjustment], error)

	Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Adjustment, error)
	Create(ctx context.Context, scope auth.Scope, dealID uuid.UUID, cmd CreateCommand) (*Adjustment, error)

	// Update, Link and Unlink are only allowed while the adjustment is a draft.
	Update(ctx context.Context, scope auth.Scope, id uuid.UUID, cmd UpdateCommand) (*Adjustment, error)
	Link(ctx context.Context, scope auth.Scope, id uuid.UUID, txIDs []uuid.UUID) (*Adjustment, error)
	Unlink(ctx context.Context, scope auth.Scope, id, txID uuid.UUID) (*Adjustment, error)

	Transition(ctx context.Context, scope auth.Scope, id uuid.UUID, to Status, notes string) (*Adjustment, error)

	// Reopen creates a new draft from a terminal adjustment. Reopening the same
	// adjustment again returns the draft created the first time.
	Reopen(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Adjustment, bool, error)

	// AcceptSuggestion turns an addback-candidate anomaly into a draft. The
	// boolean is false when the anomaly was already accepted and the existing
	// adjustment is returned.
	AcceptSuggestion(ctx context.Context, scope auth.Scope, anomalyID uuid.UUID) (*Adjustment, bool, error)

	// Bridge computes reported EBITDA from the deal's mapped GL and adds the
	// approved adjustments by category.
	Bridge(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*Bridge, error)
}

// Change is a status update applied with a compare-and-set on From.
type Change struct {
	ID    uuid.UUID
	From  Status
	To    Status
	Notes *string
}

// Store is the persistence contract behind System. Every write records its
// audit event in the same transaction.
type Store interface {
	Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Adjustment, error)
	FindBySource(ctx context.Context, scope auth.Scope, sourceRefID uuid.UUID) (*Adjustment, error)

	List(
		ctx context.Context,
		scope auth.Scope,
		dealID uuid.UUID,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Adjustment], error)

	// Create inserts a draft with its links. It returns ErrDuplicate when an
	// adjustment already references the same source.
	Create(ctx context.Context, scope auth.Scope, a Adjustment, ev *events.Event) (*Adjustment, error)

	// Update rewrites the editable fields of a draft.
	Update(ctx context.Context, scope auth.Scope, a Adjustment, ev *events.Event) (*Adjustment, error)

	Link(ctx context.Context, scope auth.Scope, id uuid.UUID, txIDs []uuid.UUID, ev *events.Event) (*Adjustment, error)
	Unlink(ctx context.Context, scope auth.Scope, id, txID uuid.UUID, ev *events.Event) (*Adjustment, error)

	Apply(ctx context.Context, scope auth.Scope, c Change, ev *events.Event) (*Adjustment, error)

	// BridgeInputs returns the GL totals per COA and the approved adjustment
	// totals per category, read in one snapshot.
	BridgeInputs(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*LedgerTotals, map[Category]decimal.Decimal, error)
}
