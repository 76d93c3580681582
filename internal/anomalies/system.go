package anomalies

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/events"
	"github.com/JaimeStill/tally/pkg/pagination"
)

// System defines the public contract for anomaly detection and reconciliation.
type System interface {
	Handler() *Handler

	// Detect evaluates every line item of period against its trailing
	// history. Re-running it for the same period inserts nothing new.
	Detect(ctx context.Context, scope auth.Scope, dealID uuid.UUID, period time.Time) (*DetectResult, error)

	// Reconcile compares each mapped P&L line of period with the GL rows
	// mapped to the same COA and stores the derived amount and variance.
	Reconcile(ctx context.Context, scope auth.Scope, dealID uuid.UUID, period time.Time) (*ReconcileResult, error)

	Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Anomaly, error)

	List(
		ctx context.Context,
		scope auth.Scope,
		dealID uuid.UUID,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Anomaly], error)
}

// Key identifies an anomaly by its natural key.
type Key struct {
	LineItemID uuid.UUID
	Type       Type
}

// Store is the persistence contract behind System.
type Store interface {
	History(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*History, error)
	Known(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (map[Key]bool, error)

	// Insert stores candidates, skipping any whose key already exists, and
	// records an audit event for each inserted anomaly in the same transaction.
	Insert(ctx context.Context, scope auth.Scope, dealID uuid.UUID, candidates []Candidate) ([]Anomaly, []events.Event, error)

	// ReconcileInputs returns the mapped lines of period and the GL totals per
	// COA over the period's date range.
	ReconcileInputs(ctx context.Context, scope auth.Scope, dealID uuid.UUID, period time.Time) ([]ReconLine, map[string]decimal.Decimal, error)
	SaveReconciliation(ctx context.Context, scope auth.Scope, lines []Reconciled) error

	Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Anomaly, error)

	List(
		ctx context.Context,
		scope auth.Scope,
		dealID uuid.UUID,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Anomaly], error)
}
