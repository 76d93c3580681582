package golden

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/tally/internal/failure"
	"github.com/JaimeStill/tally/internal/providers"
	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/similarity"
)

const corpusKey = "corpus"

// Config holds the golden thresholds drawn from the classifier configuration.
type Config struct {
	DedupSimilarity float64
	CorpusTTL       time.Duration
	Workers         int
}

type repo struct {
	store      Store
	embedder   providers.Embedder
	cfg        Config
	corpus     *cache.Cache
	logger     *slog.Logger
	pagination pagination.Config

	// generation counts inserts. A corpus load is cached only if no insert
	// landed while it was reading.
	mu         sync.Mutex
	generation uint64
}

// New creates the golden System over store.
func New(
	store Store,
	embedder providers.Embedder,
	cfg Config,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &repo{
		store:      store,
		embedder:   embedder,
		cfg:        cfg,
		corpus:     cache.New(cfg.CorpusTTL, 2*cfg.CorpusTTL),
		logger:     logger.With("system", "golden"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Mapping], error) {
	page.Normalize(r.pagination)
	return r.store.List(ctx, page, filters)
}

func (r *repo) Search(ctx context.Context, vector []float32, threshold float64, k int) ([]Match, error) {
	index, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	matches, skipped := index.Query(vector, threshold, k)
	if skipped > 0 {
		r.logger.Warn(
			"golden entries skipped on dimension mismatch",
			"skipped", skipped,
			"dimensions", len(vector),
			"error", failure.DataIntegrity,
		)
	}
	return matches, nil
}

func (r *repo) Promote(ctx context.Context, c Candidate) (Outcome, error) {
	if len(c.Embedding) == 0 {
		return "", ErrNoEmbedding
	}

	near, err := r.Search(ctx, c.Embedding, r.cfg.DedupSimilarity, 1)
	if err != nil {
		return "", fmt.Errorf("dedup search: %w", err)
	}
	if len(near) > 0 {
		r.logger.Info(
			"golden promotion skipped",
			"account_name", c.AccountName,
			"coa_code", c.COACode,
			"neighbour", near[0].Entry.ID,
			"similarity", near[0].Similarity,
		)
		return OutcomeNearDuplicate, nil
	}

	c.Source = SourcePromotion
	return r.insert(ctx, c)
}

func (r *repo) Import(ctx context.Context, cmd ImportCommand) (*ImportResult, error) {
	source := cmd.Source
	if source == "" {
		source = SourceImport
	}
	if source != SourceImport && source != SourceSeed {
		return nil, ErrInvalidSource
	}

	vectors := make([][]float32, len(cmd.Entries))
	embedErrs := make([]error, len(cmd.Entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for i, e := range cmd.Entries {
		g.Go(func() error {
			text := providers.EmbeddingText(e.AccountName, e.Description, e.Vendor)
			v, err := r.embedder.Embed(gctx, text)
			if err != nil {
				embedErrs[i] = err
				return nil
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &ImportResult{
		Total:    len(cmd.Entries),
		Failures: make([]ImportFailure, 0),
	}

	for i, e := range cmd.Entries {
		if embedErrs[i] != nil {
			result.Failures = append(result.Failures, importFailure(i, e, embedErrs[i]))
			continue
		}

		outcome, err := r.insert(ctx, Candidate{
			AccountName: strings.TrimSpace(e.AccountName),
			Description: strings.TrimSpace(e.Description),
			Vendor:      strings.TrimSpace(e.Vendor),
			COACode:     e.COACode,
			Embedding:   vectors[i],
			Source:      source,
		})
		switch {
		case err != nil:
			result.Failures = append(result.Failures, importFailure(i, e, err))
		case outcome == OutcomeDuplicate:
			result.Duplicates++
		default:
			result.Inserted++
		}
	}

	r.logger.Info(
		"golden import complete",
		"source", source,
		"total", result.Total,
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
		"failed", len(result.Failures),
	)
	return result, nil
}

func (r *repo) insert(ctx context.Context, c Candidate) (Outcome, error) {
	m, err := r.store.Insert(ctx, c)
	if errors.Is(err, ErrDuplicate) {
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.generation++
	r.corpus.Delete(corpusKey)
	r.mu.Unlock()

	r.logger.Info(
		"golden mapping inserted",
		"id", m.ID,
		"coa_code", m.COACode,
		"source", m.Source,
	)
	return OutcomeInserted, nil
}

func (r *repo) snapshot(ctx context.Context) (*similarity.Index[Mapping], error) {
	if v, ok := r.corpus.Get(corpusKey); ok {
		return v.(*similarity.Index[Mapping]), nil
	}

	r.mu.Lock()
	generation := r.generation
	r.mu.Unlock()

	rows, err := r.store.Corpus(ctx)
	if err != nil {
		return nil, err
	}

	index := similarity.NewIndex[Mapping]()
	for _, m := range rows {
		if len(m.Embedding) == 0 {
			continue
		}
		index.Add(similarity.Entry[Mapping]{
			ID:     m.ID.String(),
			Vector: m.Embedding,
			Value:  m,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != generation {
		r.logger.Debug("golden corpus changed during load, not cached", "entries", index.Len())
		return index, nil
	}
	r.corpus.SetDefault(corpusKey, index)
	return index, nil
}

func importFailure(i int, e ImportEntry, err error) ImportFailure {
	return ImportFailure{Index: i, AccountName: e.AccountName, Error: err.Error()}
}
