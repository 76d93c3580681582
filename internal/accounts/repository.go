package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/metrics"
	"github.com/JaimeStill/tally/internal/providers"
	"github.com/JaimeStill/tally/pkg/pagination"
)

type repo struct {
	store      Store
	embedder   providers.Embedder
	queue      EmbeddingQueue
	workers    int
	metrics    *metrics.Metrics
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates the client account System. queue may be nil, in which case new
// accounts are left for RefreshEmbeddings.
func New(
	store Store,
	embedder providers.Embedder,
	queue EmbeddingQueue,
	workers int,
	m *metrics.Metrics,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	if workers < 1 {
		workers = 1
	}
	return &repo{
		store:      store,
		embedder:   embedder,
		queue:      queue,
		workers:    workers,
		metrics:    m,
		logger:     logger.With("system", "accounts"),
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
) (*pagination.PageResult[Account], error) {
	page.Normalize(r.pagination)
	return r.store.List(ctx, scope, dealID, page, filters)
}

func (r *repo) Find(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Account, error) {
	return r.store.Find(ctx, scope, id)
}

func (r *repo) IDs(ctx context.Context, scope auth.Scope, dealID uuid.UUID) ([]uuid.UUID, error) {
	return r.store.IDs(ctx, scope, dealID)
}

func (r *repo) Aggregate(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*AggregateResult, error) {
	rows, err := r.store.RawRows(ctx, scope, dealID)
	if err != nil {
		return nil, err
	}

	groups := GroupRows(rows)

	inserted, err := r.store.Apply(ctx, scope, dealID, groups)
	if err != nil {
		return nil, fmt.Errorf("aggregate deal %s: %w", dealID, err)
	}

	result := &AggregateResult{
		DealID:    dealID,
		TotalKeys: len(groups),
		Inserted:  len(inserted),
		Existing:  len(groups) - len(inserted),
		NewIDs:    make([]uuid.UUID, len(inserted)),
	}
	for i, a := range inserted {
		result.NewIDs[i] = a.ID
	}

	r.metrics.AccountsCreated(result.Inserted)
	if r.queue != nil && len(result.NewIDs) > 0 {
		r.queue.Enqueue(scope, result.NewIDs...)
	}

	r.logger.Info(
		"accounts aggregated",
		"deal_id", dealID,
		"rows", len(rows),
		"keys", result.TotalKeys,
		"inserted", result.Inserted,
		"existing", result.Existing,
	)
	return result, nil
}

func (r *repo) Embed(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Account, error) {
	a, err := r.store.Find(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if a.Embedded() {
		return a, nil
	}

	vector, err := r.embedder.Embed(ctx, providers.EmbeddingText(a.AccountName, a.Description, a.Vendor))
	if err != nil {
		return nil, fmt.Errorf("embed account %s: %w", id, err)
	}

	if err := r.store.SetEmbedding(ctx, scope, id, vector); err != nil {
		return nil, err
	}

	a.Embedding = vector
	return a, nil
}

func (r *repo) RefreshEmbeddings(ctx context.Context, scope auth.Scope, dealID uuid.UUID) (*RefreshResult, error) {
	ids, err := r.store.Unembedded(ctx, scope, dealID)
	if err != nil {
		return nil, err
	}

	var embedded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, id := range ids {
		g.Go(func() error {
			if _, err := r.Embed(gctx, scope, id); err != nil {
				failed.Add(1)
				r.logger.Warn("account embedding failed", "account_id", id, "error", err)
				return nil
			}
			embedded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &RefreshResult{
		DealID:   dealID,
		Total:    len(ids),
		Embedded: int(embedded.Load()),
		Failed:   int(failed.Load()),
	}

	r.logger.Info(
		"embeddings refreshed",
		"deal_id", dealID,
		"total", result.Total,
		"embedded", result.Embedded,
		"failed", result.Failed,
	)
	return result, nil
}
