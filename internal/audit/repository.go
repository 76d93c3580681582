package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/events"
	"github.com/JaimeStill/tally/internal/metrics"
	"github.com/JaimeStill/tally/internal/prompts"
	"github.com/JaimeStill/tally/internal/providers"
	"github.com/JaimeStill/tally/pkg/pagination"
)

// Runtime bundles the collaborators of a scan. Prompts and Reasoner are
// optional; without them every question is the deterministic one.
type Runtime struct {
	Prompts   prompts.Resolver
	Reasoner  providers.Reasoner
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Config tunes a scan.
type Config struct {
	Policy        Policy
	Workers       int
	ReasonTimeout time.Duration
}

type repo struct {
	store      Store
	rt         Runtime
	cfg        Config
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates the audit System.
func New(store Store, rt Runtime, cfg Config, pagination pagination.Config) System {
	if cfg.Policy.LowConfidence < 1 {
		cfg.Policy = DefaultPolicy
	}
	cfg.Workers = max(cfg.Workers, 1)
	return &repo{
		store:      store,
		rt:         rt,
		cfg:        cfg,
		logger:     rt.Logger.With("system", "audit"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*OpenItem, error) {
	return r.store.Find(ctx, scope, id)
}

func (r *repo) List(
	ctx context.Context,
	scope auth.Scope,
	dealID uuid.UUID,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[OpenItem], error) {
	page.Normalize(r.pagination)
	return r.store.List(ctx, scope, dealID, page, filters)
}

func (r *repo) Scan(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*ScanResult, error) {
	in, err := r.store.Inputs(ctx, scope, dealID)
	if err != nil {
		return nil, err
	}

	known, err := r.store.Known(ctx, scope, dealID)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{
		DealID:   dealID,
		Scanned:  len(in.Transactions),
		ByReason: make(map[Reason]int),
		Created:  []OpenItem{},
	}

	var fresh []Candidate
	for _, t := range in.Transactions {
		for _, f := range Flags(t, r.cfg.Policy) {
			result.Flagged++
			if known[Key{TransactionID: t.ID, Reason: f.Reason}] {
				result.Existing++
				continue
			}
			fresh = append(fresh, Candidate{Txn: t, Flag: f})
		}
	}

	if err := r.draftAll(ctx, in.Deal, fresh); err != nil {
		return nil, err
	}

	inserted, evs, err := r.store.Insert(ctx, scope, dealID, fresh)
	if err != nil {
		return nil, err
	}
	result.Existing += len(fresh) - len(inserted)

	drafted := make(map[Key]bool, len(fresh))
	for _, c := range fresh {
		if c.Drafted {
			drafted[Key{TransactionID: c.Txn.ID, Reason: c.Flag.Reason}] = true
		}
	}

	for _, o := range inserted {
		result.ByReason[o.Reason]++
		if drafted[Key{TransactionID: o.GLTransactionID, Reason: o.Reason}] {
			result.QuestionsDrafted++
		}
		r.rt.Metrics.OpenItem(string(o.Reason))
	}
	result.Created = append(result.Created, inserted...)

	if len(evs) > 0 && r.rt.Publisher != nil {
		if err := r.rt.Publisher.Publish(ctx, evs...); err != nil {
			r.logger.Warn("audit events not published", "deal_id", dealID, "count", len(evs), "error", err)
		}
	}

	r.logger.Info(
		"audit scan complete",
		"deal_id", dealID,
		"scanned", result.Scanned,
		"flagged", result.Flagged,
		"created", len(inserted),
		"existing", result.Existing,
		"drafted", result.QuestionsDrafted,
	)
	return result, nil
}

func (r *repo) Transition(ctx context.Context, scope auth.Scope, id uuid.UUID, cmd TransitionCommand) (*OpenItem, error) {
	o, err := r.store.Find(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	if err := Transition(o.Status, cmd.Status); err != nil {
		return nil, err
	}

	c := Change{ID: id, From: o.Status, To: cmd.Status}
	if res := strings.TrimSpace(cmd.Resolution); res != "" {
		c.Resolution = &res
	} else if cmd.Status == StatusResolved {
		return nil, ErrResolutionRequired
	}

	ev := &events.Event{Action: "transitioned", ActorID: scope.ActorID}
	if c.Resolution != nil {
		ev.Detail = map[string]any{"resolution": *c.Resolution}
	}

	updated, err := r.store.Apply(ctx, scope, c, ev)
	if err != nil {
		return nil, err
	}

	r.rt.Metrics.Transition(events.EntityOpenItem, string(updated.Status))
	if r.rt.Publisher != nil {
		if err := r.rt.Publisher.Publish(ctx, *ev); err != nil {
			r.logger.Warn("audit events not published", "count", 1, "error", err)
		}
	}

	r.logger.Info(
		"open item transitioned",
		"id", id,
		"from", c.From,
		"to", updated.Status,
		"actor", scope.ActorID,
	)
	return updated, nil
}

// draftAll fills in the question of every candidate, asking the reasoning
// provider for up to Workers candidates at a time.
func (r *repo) draftAll(ctx context.Context, deal Deal, candidates []Candidate) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for i := range candidates {
		g.Go(func() error {
			c := &candidates[i]
			c.Question, c.Drafted = r.question(gctx, deal, *c)
			return gctx.Err()
		})
	}

	return g.Wait()
}

// question asks the reasoning provider for a client question. Any failure
// keeps the deterministic text.
func (r *repo) question(ctx context.Context, deal Deal, c Candidate) (string, bool) {
	fallback := Question(c.Txn)
	if r.rt.Reasoner == nil || r.rt.Prompts == nil {
		return fallback, false
	}

	instructions, err := r.rt.Prompts.Resolve(ctx, prompts.StageAudit)
	if err != nil {
		return fallback, false
	}
	system, err := prompts.Compose(prompts.StageAudit, instructions)
	if err != nil {
		return fallback, false
	}

	if r.cfg.ReasonTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ReasonTimeout)
		defer cancel()
	}

	text, err := r.rt.Reasoner.Explain(ctx, providers.Explanation{
		Instructions: system,
		Subject:      describe(deal, c),
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		r.logger.Warn("reasoning unavailable, keeping deterministic question", "gl_transaction_id", c.Txn.ID, "reason", c.Flag.Reason, "error", err)
		return fallback, false
	}
	return text, true
}

func describe(deal Deal, c Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Deal: %s", deal.Name)
	if deal.Industry != "" {
		fmt.Fprintf(&b, " (%s)", deal.Industry)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Date: %s\n", c.Txn.Date.Format(time.DateOnly))
	fmt.Fprintf(&b, "Account: %s\n", c.Txn.AccountName)
	if c.Txn.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", c.Txn.Description)
	}
	if c.Txn.Vendor != "" {
		fmt.Fprintf(&b, "Vendor: %s\n", c.Txn.Vendor)
	}
	fmt.Fprintf(&b, "Amount: %s\n", c.Txn.Amount.StringFixed(2))
	if c.Txn.COACode != nil {
		fmt.Fprintf(&b, "Mapped to: %s %s\n", *c.Txn.COACode, c.Txn.COAName)
	}
	fmt.Fprintf(&b, "Flag: %s\n", c.Flag.Reason)
	fmt.Fprintf(&b, "Finding: %s\n", c.Flag.Detail)
	return b.String()
}
