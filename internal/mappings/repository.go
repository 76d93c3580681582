package mappings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/tally/internal/accounts"
	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/chart"
	"github.com/JaimeStill/tally/internal/events"
	"github.com/JaimeStill/tally/internal/failure"
	"github.com/JaimeStill/tally/internal/golden"
	"github.com/JaimeStill/tally/internal/metrics"
	"github.com/JaimeStill/tally/internal/prompts"
	"github.com/JaimeStill/tally/internal/providers"
	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/similarity"
)

// AccountSource resolves client accounts and their embeddings.
type AccountSource interface {
	Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*accounts.Account, error)
	Embed(ctx context.Context, scope auth.Scope, id uuid.UUID) (*accounts.Account, error)
	IDs(ctx context.Context, scope auth.Scope, dealID uuid.UUID) ([]uuid.UUID, error)
}

// Corpus is the golden knowledge base as seen by the classifier.
type Corpus interface {
	golden.Searcher
	Promote(ctx context.Context, c golden.Candidate) (golden.Outcome, error)
}

// Chart looks up chart of accounts codes.
type Chart interface {
	Find(ctx context.Context, code string) (*chart.Account, error)
}

// Runtime bundles the collaborators the classifier requires.
type Runtime struct {
	Accounts  AccountSource
	Golden    Corpus
	Chart     Chart
	Prompts   prompts.Resolver
	Reasoner  providers.Reasoner
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Config tunes retrieval and concurrency.
type Config struct {
	Policy        Policy
	TopK          int
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

// New creates the mapping System.
func New(store Store, rt Runtime, cfg Config, pagination pagination.Config) System {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy
	}
	return &repo{
		store:      store,
		rt:         rt,
		cfg:        cfg,
		logger:     rt.Logger.With("system", "mappings"),
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
) (*pagination.PageResult[Mapping], error) {
	page.Normalize(r.pagination)
	return r.store.List(ctx, scope, dealID, page, filters)
}

func (r *repo) Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Mapping, error) {
	return r.store.Find(ctx, scope, id)
}

func (r *repo) Status(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*Summary, error) {
	return r.store.Summary(ctx, scope, dealID)
}

func (r *repo) Classify(ctx context.Context, scope auth.Scope, clientAccountID uuid.UUID, force bool) (*Result, error) {
	start := time.Now()

	existing, err := r.store.FindByAccount(ctx, scope, clientAccountID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status.Terminal() && !force {
		r.rt.Metrics.Classified(string(existing.Status), string(OutcomeUnchanged), time.Since(start))
		return &Result{ClientAccountID: clientAccountID, Outcome: OutcomeUnchanged, Mapping: existing}, nil
	}

	account, err := r.resolve(ctx, scope, clientAccountID)
	if err != nil {
		return nil, err
	}

	var exclude uuid.UUID
	if existing != nil {
		exclude = existing.ID
	}

	hits, err := r.retrieve(ctx, scope, account.Embedding, exclude)
	if err != nil {
		return nil, err
	}

	d := Decide(hits, r.cfg.Policy)
	if d.Ambiguous {
		d.Rationale = r.explain(ctx, account, d, hits)
	}

	action := ActionClassify
	if existing != nil {
		action = ActionRemap
	}

	m := Mapping{
		DealID:          account.DealID,
		ClientAccountID: account.ID,
		COACode:         d.COACode,
		Confidence:      d.Confidence,
		Rationale:       d.Rationale,
		Status:          r.cfg.Policy.TierFor(d.Confidence),
		ClassifiedAt:    time.Now().UTC(),
	}

	ev := &events.Event{
		Action:  string(action),
		ActorID: scope.ActorID,
		Detail: map[string]any{
			"confidence": d.Confidence,
			"similarity": d.Similarity,
			"hits":       len(hits),
		},
	}

	saved, changed, err := r.store.Save(ctx, scope, m, force, ev)
	if err != nil {
		return nil, err
	}

	outcome := OutcomeUnchanged
	if changed {
		outcome = OutcomeUpdated
		if ev.FromStatus == "" {
			outcome = OutcomeCreated
		}
		r.rt.Metrics.Transition(events.EntityMapping, string(saved.Status))
		r.publish(ctx, *ev)
	}

	r.rt.Metrics.Classified(string(saved.Status), string(outcome), time.Since(start))
	r.logger.Info(
		"client account classified",
		"client_account_id", clientAccountID,
		"mapping_id", saved.ID,
		"status", saved.Status,
		"confidence", saved.Confidence,
		"outcome", outcome,
	)

	return &Result{ClientAccountID: clientAccountID, Outcome: outcome, Mapping: saved}, nil
}

func (r *repo) ClassifyDeal(ctx context.Context, scope auth.Scope, dealID uuid.UUID, force bool) (*DealResult, error) {
	ids, err := r.rt.Accounts.IDs(ctx, scope, dealID)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for i, id := range ids {
		g.Go(func() error {
			res, err := r.Classify(gctx, scope, id, force)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Warn("classification failed", "client_account_id", id, "error", err)
				results[i] = Result{ClientAccountID: id, Outcome: OutcomeFailed, Error: err.Error()}
				return nil
			}
			results[i] = *res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &DealResult{DealID: dealID, Total: len(results), Results: results}
	for _, res := range results {
		switch {
		case res.Outcome == OutcomeFailed:
			out.Failed++
		case res.Outcome == OutcomeUnchanged:
			out.Unchanged++
		case res.Mapping.Status == StatusGreen:
			out.Green++
		case res.Mapping.Status == StatusYellow:
			out.Yellow++
		}
	}

	r.logger.Info(
		"deal classified",
		"deal_id", dealID,
		"total", out.Total,
		"green", out.Green,
		"yellow", out.Yellow,
		"unchanged", out.Unchanged,
		"failed", out.Failed,
	)
	return out, nil
}

func (r *repo) Approve(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Mapping, error) {
	return r.transition(ctx, scope, id, ActionApprove, func(m *Mapping, _ *Change) error {
		if m.COACode == nil {
			return ErrNoProposal
		}
		return nil
	})
}

func (r *repo) Reject(ctx context.Context, scope auth.Scope, id uuid.UUID, reason string) (*Mapping, error) {
	return r.transition(ctx, scope, id, ActionReject, func(_ *Mapping, c *Change) error {
		if reason = strings.TrimSpace(reason); reason != "" {
			c.RejectReason = &reason
		}
		return nil
	})
}

func (r *repo) Override(ctx context.Context, scope auth.Scope, id uuid.UUID, cmd OverrideCommand) (*Mapping, error) {
	code := strings.TrimSpace(cmd.COACode)
	if code == "" {
		return nil, ErrCOARequired
	}

	if _, err := r.rt.Chart.Find(ctx, code); err != nil {
		if errors.Is(err, failure.NotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCOA, code)
		}
		return nil, err
	}

	return r.transition(ctx, scope, id, ActionOverride, func(_ *Mapping, c *Change) error {
		confidence := 100
		rationale := strings.TrimSpace(cmd.Rationale)
		if rationale == "" {
			rationale = fmt.Sprintf("manually mapped to %s by %s", code, scope.ActorID)
		}
		c.COACode = &code
		c.Confidence = &confidence
		c.Rationale = &rationale
		return nil
	})
}

func (r *repo) Remap(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Result, error) {
	m, err := r.store.Find(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(m.Status, ActionRemap); err != nil {
		return nil, err
	}
	return r.Classify(ctx, scope, m.ClientAccountID, true)
}

func (r *repo) BulkApprove(ctx context.Context, scope auth.Scope, dealID uuid.UUID, minConfidence int) (*BulkResult, error) {
	if minConfidence < 0 || minConfidence > 100 {
		return nil, ErrInvalidConfidence
	}

	ids, err := r.store.Green(ctx, scope, dealID, minConfidence)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{
		Approved: make([]uuid.UUID, 0, len(ids)),
		Failures: make([]BulkFailure, 0),
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := r.Approve(ctx, scope, id); err != nil {
			result.Failures = append(result.Failures, BulkFailure{MappingID: id, Error: err.Error()})
			continue
		}
		result.Approved = append(result.Approved, id)
	}

	r.logger.Info(
		"bulk approval complete",
		"deal_id", dealID,
		"min_confidence", minConfidence,
		"approved", len(result.Approved),
		"failed", len(result.Failures),
	)
	return result, nil
}

func (r *repo) transition(
	ctx context.Context,
	scope auth.Scope,
	id uuid.UUID,
	action Action,
	prepare func(m *Mapping, c *Change) error,
) (*Mapping, error) {
	m, err := r.store.Find(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	to, err := Transition(m.Status, action)
	if err != nil {
		return nil, err
	}

	c := Change{MappingID: id, Action: action, From: m.Status, To: to}
	if err := prepare(m, &c); err != nil {
		return nil, err
	}

	ev := &events.Event{Action: string(action), ActorID: scope.ActorID}
	if c.COACode != nil {
		ev.Detail = map[string]any{"coa_code": *c.COACode}
	}

	updated, err := r.store.Apply(ctx, scope, c, ev)
	if err != nil {
		return nil, err
	}

	r.rt.Metrics.Transition(events.EntityMapping, string(updated.Status))
	r.publish(ctx, *ev)
	r.logger.Info(
		"mapping transitioned",
		"id", id,
		"action", action,
		"from", c.From,
		"to", updated.Status,
		"actor", scope.ActorID,
	)

	if updated.Status == StatusApproved {
		r.promote(ctx, scope, updated)
	}
	return updated, nil
}

// resolve loads the account and its embedding. Provider failures leave the
// embedding empty so classification degrades to no match.
func (r *repo) resolve(ctx context.Context, scope auth.Scope, id uuid.UUID) (*accounts.Account, error) {
	account, err := r.rt.Accounts.Find(ctx, scope, id)
	if err != nil {
		if errors.Is(err, failure.NotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return nil, err
	}
	if account.Embedded() {
		return account, nil
	}

	embedded, err := r.rt.Accounts.Embed(ctx, scope, id)
	if err != nil {
		if errors.Is(err, failure.ExternalUnavailable) || errors.Is(err, failure.Invalid) {
			r.logger.Warn("embedding unavailable, classifying without retrieval", "client_account_id", id, "error", err)
			return account, nil
		}
		return nil, err
	}
	return embedded, nil
}

// retrieve searches the golden corpus and falls back to the organization's
// verified mappings when golden has no hit.
func (r *repo) retrieve(ctx context.Context, scope auth.Scope, vector []float32, exclude uuid.UUID) ([]Hit, error) {
	if len(vector) == 0 {
		return nil, nil
	}

	matches, err := r.rt.Golden.Search(ctx, vector, r.cfg.Policy.MinSimilarity, r.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("search golden corpus: %w", err)
	}

	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, Hit{
			COACode:     m.Entry.Value.COACode,
			Similarity:  m.Similarity,
			Source:      SourceGolden,
			AccountName: m.Entry.Value.AccountName,
		})
	}
	if len(hits) > 0 {
		return hits, nil
	}

	verified, err := r.store.Verified(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load verified mappings: %w", err)
	}

	corpus := make([]similarity.Entry[Verified], 0, len(verified))
	for _, v := range verified {
		if v.MappingID == exclude {
			continue
		}
		corpus = append(corpus, similarity.Entry[Verified]{
			ID:     v.MappingID.String(),
			Vector: v.Embedding,
			Value:  v,
		})
	}

	found, skipped := similarity.Query(corpus, vector, r.cfg.Policy.MinSimilarity, r.cfg.TopK)
	if skipped > 0 {
		r.logger.Warn(
			"verified corpus entries skipped",
			"skipped", skipped,
			"error", failure.DataIntegrity,
		)
	}

	for _, m := range found {
		hits = append(hits, Hit{
			COACode:     m.Entry.Value.COACode,
			Similarity:  m.Similarity,
			Source:      SourceVerified,
			AccountName: m.Entry.Value.AccountName,
		})
	}
	return hits, nil
}

// explain asks the reasoning provider for a rationale in the ambiguous band.
// Any failure keeps the deterministic rationale.
func (r *repo) explain(ctx context.Context, account *accounts.Account, d Decision, hits []Hit) string {
	if r.rt.Reasoner == nil || r.rt.Prompts == nil {
		return d.Rationale
	}

	instructions, err := r.rt.Prompts.Resolve(ctx, prompts.StageMapping)
	if err != nil {
		r.logger.Warn("mapping prompt unavailable", "error", err)
		return d.Rationale
	}

	system, err := prompts.Compose(prompts.StageMapping, instructions)
	if err != nil {
		return d.Rationale
	}

	if r.cfg.ReasonTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ReasonTimeout)
		defer cancel()
	}

	text, err := r.rt.Reasoner.Explain(ctx, providers.Explanation{
		Instructions: system,
		Subject:      subject(account, d, hits),
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		r.logger.Warn("reasoning unavailable, keeping deterministic rationale", "client_account_id", account.ID, "error", err)
		return d.Rationale
	}

	if len(d.Tied) > 1 {
		text += tieNote(d.Tied, *d.COACode)
	}
	return text
}

func (r *repo) promote(ctx context.Context, scope auth.Scope, m *Mapping) {
	if m.COACode == nil {
		return
	}

	account, err := r.rt.Accounts.Embed(ctx, scope, m.ClientAccountID)
	if err != nil {
		r.rt.Metrics.Promotion("failed")
		r.logger.Warn("golden promotion skipped", "mapping_id", m.ID, "error", err)
		return
	}

	outcome, err := r.rt.Golden.Promote(ctx, golden.Candidate{
		AccountName: account.AccountName,
		Description: account.Description,
		Vendor:      account.Vendor,
		COACode:     *m.COACode,
		Embedding:   account.Embedding,
		Source:      golden.SourcePromotion,
	})
	if err != nil {
		r.rt.Metrics.Promotion("failed")
		r.logger.Warn("golden promotion failed", "mapping_id", m.ID, "error", err)
		return
	}

	r.rt.Metrics.Promotion(string(outcome))
	r.logger.Info("golden promotion", "mapping_id", m.ID, "coa_code", *m.COACode, "outcome", outcome)
}

func (r *repo) publish(ctx context.Context, ev events.Event) {
	if r.rt.Publisher == nil {
		return
	}
	if err := r.rt.Publisher.Publish(ctx, ev); err != nil {
		r.logger.Warn("audit event not published", "entity_id", ev.EntityID, "action", ev.Action, "error", err)
	}
}

func subject(account *accounts.Account, d Decision, hits []Hit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Client account: %s\n", account.AccountName)
	if account.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", account.Description)
	}
	if account.Vendor != "" {
		fmt.Fprintf(&b, "Vendor: %s\n", account.Vendor)
	}
	fmt.Fprintf(&b, "Proposed code: %s (confidence %d)\n", *d.COACode, d.Confidence)
	b.WriteString("References:\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "- %s -> %s (%s, similarity %.3f)\n", h.AccountName, h.COACode, h.Source, h.Similarity)
	}
	return b.String()
}
