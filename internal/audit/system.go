package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/events"
	"github.com/JaimeStill/tally/pkg/pagination"
)

// System defines the public contract for transaction auditing.
type System interface {
	Handler() *Handler

	// Scan flags a deal's GL transactions and stores an open item per
	// transaction and reason. Re-running it only adds items for new flags.
	Scan(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*ScanResult, error)

	Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*OpenItem, error)

	List(
		ctx context.Context,
		scope auth.Scope,
		dealID uuid.UUID,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[OpenItem], error)

	Transition(ctx context.Context, scope auth.Scope, id uuid.UUID, cmd TransitionCommand) (*OpenItem, error)
}

// Key identifies an open item by its natural key.
type Key struct {
	TransactionID uuid.UUID
	Reason        Reason
}

// Change is a status update applied with a compare-and-set on From.
type Change struct {
	ID         uuid.UUID
	From       Status
	To         Status
	Resolution *string
}

// Store is the persistence contract behind System.
type Store interface {
	Inputs(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*Inputs, error)
	Known(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (map[Key]bool, error)

	// Insert stores candidates, skipping any whose key already exists, and
	// records an audit event for each inserted item in the same transaction.
	Insert(ctx context.Context, scope auth.Scope, dealID uuid.UUID, candidates []Candidate) ([]OpenItem, []events.Event, error)

	Apply(ctx context.Context, scope auth.Scope, c Change, ev *events.Event) (*OpenItem, error)

	Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*OpenItem, error)

	List(
		ctx context.Context,
		scope auth.Scope,
		dealID uuid.UUID,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[OpenItem], error)
}
