package adjustments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/anomalies"
	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/events"
	"github.com/JaimeStill/tally/internal/failure"
	"github.com/JaimeStill/tally/internal/metrics"
	"github.com/JaimeStill/tally/pkg/pagination"
)

// AnomalySource resolves the anomaly behind a suggestion.
type AnomalySource interface {
	Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*anomalies.Anomaly, error)
}

// Runtime bundles the collaborators of the workflow.
type Runtime struct {
	Anomalies AnomalySource
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type repo struct {
	store      Store
	rt         Runtime
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates the adjustment System.
func New(store Store, rt Runtime, pagination pagination.Config) System {
	return &repo{
		store:      store,
		rt:         rt,
		logger:     rt.Logger.With("system", "adjustments"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	scope auth.Scope,
	dealID uuid.UUID,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Adjustment], error) {
	page.Normalize(r.pagination)
	return r.store.List(ctx, scope, dealID, page, filters)
}

func (r *repo) Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Adjustment, error) {
	return r.store.Find(ctx, scope, id)
}

func (r *repo) Create(ctx context.Context, scope auth.Scope, dealID uuid.UUID, cmd CreateCommand) (*Adjustment, error) {
	a, err := Draft(dealID, scope.ActorID, cmd)
	if err != nil {
		return nil, err
	}
	a.Links = cmd.TransactionIDs

	ev := &events.Event{
		Action:  "created",
		ActorID: scope.ActorID,
		Detail:  map[string]any{"source": a.Source, "category": a.Category},
	}

	created, err := r.store.Create(ctx, scope, a, ev)
	if err != nil {
		return nil, err
	}

	r.recorded(ctx, *ev, created)
	r.logger.Info(
		"adjustment created",
		"id", created.ID,
		"deal_id", dealID,
		"source", created.Source,
		"category", created.Category,
		"actor", scope.ActorID,
	)
	return created, nil
}

func (r *repo) Update(ctx context.Context, scope auth.Scope, id uuid.UUID, cmd UpdateCommand) (*Adjustment, error) {
	current, err := r.draft(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	next, err := cmd.Apply(*current)
	if err != nil {
		return nil, err
	}

	ev := &events.Event{Action: "updated", ActorID: scope.ActorID}
	updated, err := r.store.Update(ctx, scope, next, ev)
	if err != nil {
		return nil, err
	}

	r.publish(ctx, *ev)
	return updated, nil
}

func (r *repo) Link(ctx context.Context, scope auth.Scope, id uuid.UUID, txIDs []uuid.UUID) (*Adjustment, error) {
	if len(txIDs) == 0 {
		return nil, ErrLinksRequired
	}
	if _, err := r.draft(ctx, scope, id); err != nil {
		return nil, err
	}

	ev := &events.Event{
		Action:  "linked",
		ActorID: scope.ActorID,
		Detail:  map[string]any{"gl_transaction_ids": txIDs},
	}
	a, err := r.store.Link(ctx, scope, id, txIDs, ev)
	if err != nil {
		return nil, err
	}

	r.publish(ctx, *ev)
	return a, nil
}

func (r *repo) Unlink(ctx context.Context, scope auth.Scope, id, txID uuid.UUID) (*Adjustment, error) {
	if _, err := r.draft(ctx, scope, id); err != nil {
		return nil, err
	}

	ev := &events.Event{
		Action:  "unlinked",
		ActorID: scope.ActorID,
		Detail:  map[string]any{"gl_transaction_id": txID},
	}
	a, err := r.store.Unlink(ctx, scope, id, txID, ev)
	if err != nil {
		return nil, err
	}

	r.publish(ctx, *ev)
	return a, nil
}

func (r *repo) Transition(ctx context.Context, scope auth.Scope, id uuid.UUID, to Status, notes string) (*Adjustment, error) {
	a, err := r.store.Find(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	if err := Transition(a.Status, to); err != nil {
		return nil, err
	}

	c := Change{ID: id, From: a.Status, To: to}
	if notes != "" {
		c.Notes = &notes
	}

	ev := &events.Event{Action: "transitioned", ActorID: scope.ActorID}
	if notes != "" {
		ev.Detail = map[string]any{"notes": notes}
	}

	updated, err := r.store.Apply(ctx, scope, c, ev)
	if err != nil {
		return nil, err
	}

	r.recorded(ctx, *ev, updated)
	r.logger.Info(
		"adjustment transitioned",
		"id", id,
		"from", c.From,
		"to", updated.Status,
		"actor", scope.ActorID,
	)
	return updated, nil
}

func (r *repo) Reopen(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Adjustment, bool, error) {
	a, err := r.store.Find(ctx, scope, id)
	if err != nil {
		return nil, false, err
	}
	if !a.Status.Terminal() {
		return nil, false, fmt.Errorf("%w: status is %s", ErrNotTerminal, a.Status)
	}

	next := a.Successor(scope.ActorID)
	ev := &events.Event{
		Action:  "reopened",
		ActorID: scope.ActorID,
		Detail:  map[string]any{"reopened_from": a.ID},
	}
	return r.createOnce(ctx, scope, next, ev)
}

func (r *repo) AcceptSuggestion(ctx context.Context, scope auth.Scope, anomalyID uuid.UUID) (*Adjustment, bool, error) {
	if r.rt.Anomalies == nil {
		return nil, false, ErrAnomalyNotFound
	}

	an, err := r.rt.Anomalies.Find(ctx, scope, anomalyID)
	if err != nil {
		if errors.Is(err, failure.NotFound) {
			return nil, false, fmt.Errorf("%w: %s", ErrAnomalyNotFound, anomalyID)
		}
		return nil, false, err
	}
	if !an.IsAddbackCandidate {
		return nil, false, ErrNotAddback
	}

	ref := an.ID
	a := Adjustment{
		DealID:      an.DealID,
		Status:      StatusDraft,
		Source:      SourceAIDetected,
		SourceRefID: &ref,
		Category:    CategoryNonRecurring,
		Description: fmt.Sprintf("Suggested %s adjustment", an.Type),
		Amount:      an.CurrentAmount,
		Rationale:   an.Summary,
		CreatedBy:   scope.ActorID,
	}
	ev := &events.Event{
		Action:  "created",
		ActorID: scope.ActorID,
		Detail:  map[string]any{"source": SourceAIDetected, "anomaly_id": an.ID},
	}
	return r.createOnce(ctx, scope, a, ev)
}

func (r *repo) Bridge(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*Bridge, error) {
	ledger, approved, err := r.store.BridgeInputs(ctx, scope, dealID)
	if err != nil {
		return nil, err
	}

	b := BuildBridge(dealID, *ledger, approved)
	if b.Unmapped > 0 {
		r.logger.Warn("bridge excludes unmapped gl rows", "deal_id", dealID, "unmapped", b.Unmapped)
	}
	return &b, nil
}

// createOnce inserts a draft that references a source. When the source was
// already used the earlier adjustment is returned with created set to false.
func (r *repo) createOnce(ctx context.Context, scope auth.Scope, a Adjustment, ev *events.Event) (*Adjustment, bool, error) {
	created, err := r.store.Create(ctx, scope, a, ev)
	if errors.Is(err, ErrDuplicate) {
		existing, ferr := r.store.FindBySource(ctx, scope, *a.SourceRefID)
		if ferr != nil {
			return nil, false, ferr
		}
		r.logger.Info("adjustment already exists for source", "id", existing.ID, "source_ref_id", *a.SourceRefID)
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	r.recorded(ctx, *ev, created)
	r.logger.Info(
		"draft created from source",
		"id", created.ID,
		"source", created.Source,
		"source_ref_id", *a.SourceRefID,
		"actor", scope.ActorID,
	)
	return created, true, nil
}

// draft loads an adjustment and requires it to be editable.
func (r *repo) draft(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Adjustment, error) {
	a, err := r.store.Find(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusDraft {
		return nil, fmt.Errorf("%w: status is %s", ErrNotDraft, a.Status)
	}
	return a, nil
}

func (r *repo) recorded(ctx context.Context, ev events.Event, a *Adjustment) {
	r.rt.Metrics.Transition(events.EntityAdjustment, string(a.Status))
	r.publish(ctx, ev)
}

func (r *repo) publish(ctx context.Context, evs ...events.Event) {
	if r.rt.Publisher == nil {
		return
	}
	if err := r.rt.Publisher.Publish(ctx, evs...); err != nil {
		r.logger.Warn("audit events not published", "count", len(evs), "error", err)
	}
}
