package mappings

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/events"
	"github.com/JaimeStill/tally/pkg/pagination"
)

// System defines the public contract for classification and mapping review.
type System interface {
	Handler() *Handler

	List(
		ctx context.Context,
		scope auth.Scope,
		dealID uuid.UUID,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Mapping], error)

	Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Mapping, error)

	// Classify proposes a COA for one client account. A reviewed mapping is
	// left untouched unless force is set.
	Classify(ctx context.Context, scope auth.Scope, clientAccountID uuid.UUID, force bool) (*Result, error)

	// ClassifyDeal classifies every client account of a deal concurrently.
	// Per-account failures are reported in the result.
	ClassifyDeal(ctx context.Context, scope auth.Scope, dealID uuid.UUID, force bool) (*DealResult, error)

	Approve(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Mapping, error)
	Reject(ctx context.Context, scope auth.Scope, id uuid.UUID, reason string) (*Mapping, error)
	Override(ctx context.Context, scope auth.Scope, id uuid.UUID, cmd OverrideCommand) (*Mapping, error)
	Remap(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Result, error)

	// BulkApprove approves every green mapping of the deal at or above
	// minConfidence, each in its own transaction.
	BulkApprove(ctx context.Context, scope auth.Scope, dealID uuid.UUID, minConfidence int) (*BulkResult, error)

	Status(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*Summary, error)
}

// Change is a status compare-and-set applied by Store.Apply.
type Change struct {
	MappingID    uuid.UUID
	Action       Action
	From         Status
	To           Status
	COACode      *string
	Confidence   *int
	Rationale    *string
	RejectReason *string
}

// Store is the persistence contract behind System. Methods that change state
// record the supplied audit event in the same transaction, filling in its
// entity and statuses.
type Store interface {
	Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Mapping, error)
	FindByAccount(ctx context.Context, scope auth.Scope, clientAccountID uuid.UUID) (*Mapping, error)

	// Save writes a fresh classification for m.ClientAccountID. It inserts
	// first and retries as an update on a unique violation. A reviewed mapping
	// is only overwritten when force is set; otherwise the stored mapping is
	// returned with changed false. The account's GL rows receive the mapped COA
	// and lose their verification.
	Save(ctx context.Context, scope auth.Scope, m Mapping, force bool, ev *events.Event) (saved *Mapping, changed bool, err error)

	// Apply moves a mapping from c.From to c.To, failing with ErrStaleStatus
	// when the stored status is no longer c.From. Approvals verify the
	// account's GL rows.
	Apply(ctx context.Context, scope auth.Scope, c Change, ev *events.Event) (*Mapping, error)

	// Verified returns the organization's approved mappings whose accounts
	// carry an embedding.
	Verified(ctx context.Context, scope auth.Scope) ([]Verified, error)

	// Green returns the IDs of the deal's green mappings at or above minConfidence.
	Green(ctx context.Context, scope auth.Scope, dealID uuid.UUID, minConfidence int) ([]uuid.UUID, error)

	Summary(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*Summary, error)

	List(
		ctx context.Context,
		scope auth.Scope,
		dealID uuid.UUID,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Mapping], error)
}
