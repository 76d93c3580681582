package anomalies

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/events"
	"github.com/JaimeStill/tally/internal/metrics"
	"github.com/JaimeStill/tally/internal/prompts"
	"github.com/JaimeStill/tally/internal/providers"
	"github.com/JaimeStill/tally/pkg/pagination"
)

// Runtime bundles the collaborators the detector requires. Prompts and
// Reasoner are optional; without them summaries stay deterministic.
type Runtime struct {
	Prompts   prompts.Resolver
	Reasoner  providers.Reasoner
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type repo struct {
	store         Store
	rt            Runtime
	policy        Policy
	reasonTimeout time.Duration
	logger        *slog.Logger
	pagination    pagination.Config
}

// New creates the anomaly System.
func New(store Store, rt Runtime, policy Policy, reasonTimeout time.Duration, pagination pagination.Config) System {
	if policy.Window < 1 || policy.MinHistory < 1 {
		policy = DefaultPolicy
	}
	return &repo{
		store:         store,
		rt:            rt,
		policy:        policy,
		reasonTimeout: reasonTimeout,
		logger:        rt.Logger.With("system", "anomalies"),
		pagination:    pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Anomaly, error) {
	return r.store.Find(ctx, scope, id)
}

func (r *repo) List(
	ctx context.Context,
	scope auth.Scope,
	dealID uuid.UUID,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Anomaly], error) {
	page.Normalize(r.pagination)
	return r.store.List(ctx, scope, dealID, page, filters)
}

func (r *repo) Detect(ctx context.Context, scope auth.Scope, dealID uuid.UUID, period time.Time) (*DetectResult, error) {
	if period.IsZero() {
		return nil, ErrPeriodRequired
	}

	history, err := r.store.History(ctx, scope, dealID)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(history.Periods, period.Equal) {
		return nil, fmt.Errorf("%w: %s", ErrPeriodNotFound, period.Format(time.DateOnly))
	}

	candidates, evaluated := Scan(*history, period, r.policy)

	known, err := r.store.Known(ctx, scope, dealID)
	if err != nil {
		return nil, err
	}

	fresh := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if known[Key{LineItemID: c.Point.LineItemID, Type: c.Finding.Type}] {
			continue
		}
		c.Summary = r.narrate(ctx, c)
		fresh = append(fresh, c)
	}

	inserted, evs, err := r.store.Insert(ctx, scope, dealID, fresh)
	if err != nil {
		return nil, err
	}

	for _, a := range inserted {
		r.rt.Metrics.Anomaly(string(a.Severity))
	}
	if len(evs) > 0 && r.rt.Publisher != nil {
		if err := r.rt.Publisher.Publish(ctx, evs...); err != nil {
			r.logger.Warn("audit events not published", "deal_id", dealID, "count", len(evs), "error", err)
		}
	}

	result := &DetectResult{
		DealID:    dealID,
		Period:    period.Format(time.DateOnly),
		Evaluated: evaluated,
		Existing:  len(candidates) - len(inserted),
		Detected:  inserted,
	}

	r.logger.Info(
		"anomaly detection complete",
		"deal_id", dealID,
		"period", result.Period,
		"evaluated", evaluated,
		"detected", len(inserted),
		"existing", result.Existing,
	)
	return result, nil
}

func (r *repo) Reconcile(ctx context.Context, scope auth.Scope, dealID uuid.UUID, period time.Time) (*ReconcileResult, error) {
	if period.IsZero() {
		return nil, ErrPeriodRequired
	}

	lines, totals, err := r.store.ReconcileInputs(ctx, scope, dealID, period)
	if err != nil {
		return nil, err
	}

	reconciled := Reconcile(lines, totals)
	if err := r.store.SaveReconciliation(ctx, scope, reconciled); err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, l := range reconciled {
		total = total.Add(l.Variance)
	}

	r.logger.Info(
		"period reconciled",
		"deal_id", dealID,
		"period", period.Format(time.DateOnly),
		"lines", len(reconciled),
		"total_variance", total.StringFixed(2),
	)

	return &ReconcileResult{
		DealID:        dealID,
		Period:        period.Format(time.DateOnly),
		Lines:         reconciled,
		TotalVariance: total,
	}, nil
}

// narrate asks the reasoning provider to rewrite the summary. Any failure
// keeps the deterministic text.
func (r *repo) narrate(ctx context.Context, c Candidate) string {
	if r.rt.Reasoner == nil || r.rt.Prompts == nil {
		return c.Summary
	}

	instructions, err := r.rt.Prompts.Resolve(ctx, prompts.StageAnomaly)
	if err != nil {
		return c.Summary
	}
	system, err := prompts.Compose(prompts.StageAnomaly, instructions)
	if err != nil {
		return c.Summary
	}

	if r.reasonTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.reasonTimeout)
		defer cancel()
	}

	text, err := r.rt.Reasoner.Explain(ctx, providers.Explanation{
		Instructions: system,
		Subject:      describe(c),
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		r.logger.Warn("reasoning unavailable, keeping deterministic summary", "pl_line_item_id", c.Point.LineItemID, "error", err)
		return c.Summary
	}
	return text
}

func describe(c Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Line: %s (%s)\n", c.Point.LineName, c.Point.LineCategory)
	fmt.Fprintf(&b, "Period: %s\n", c.Point.PeriodStart.Format(time.DateOnly))
	fmt.Fprintf(&b, "Current amount: %s\n", c.Point.Amount.StringFixed(2))
	if c.Finding.TrailingAverage != nil {
		fmt.Fprintf(&b, "Trailing %d-period average: %s\n", c.Priors, c.Finding.TrailingAverage.StringFixed(2))
	}
	if c.Finding.Multiple != nil {
		fmt.Fprintf(&b, "Variance multiple: %sx\n", c.Finding.Multiple.StringFixed(2))
	}
	fmt.Fprintf(&b, "Type: %s, severity: %s\n", c.Finding.Type, c.Finding.Severity)
	fmt.Fprintf(&b, "Addback candidate: %t\n", c.Addback)
	fmt.Fprintf(&b, "Deterministic summary: %s\n", c.Summary)
	return b.String()
}
