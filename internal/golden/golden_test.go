package golden_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tally/internal/golden"
	"github.com/JaimeStill/tally/pkg/pagination"
)

type memStore struct {
	mu       sync.Mutex
	rows     []golden.Mapping
	coa      map[string]string
	corpusN  int
	inserted int
}

func newMemStore() *memStore {
	return &memStore{coa: map[string]string{
		"6100": "Operating Expenses",
		"6400": "Professional Fees",
	}}
}

func (s *memStore) Corpus(context.Context) ([]golden.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corpusN++
	return append([]golden.Mapping(nil), s.rows...), nil
}

func (s *memStore) Insert(_ context.Context, c golden.Candidate) (golden.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category, ok := s.coa[c.COACode]
	if !ok {
		return golden.Mapping{}, golden.ErrUnknownCOA
	}
	for _, m := range s.rows {
		if strings.EqualFold(m.AccountName, c.AccountName) &&
			strings.EqualFold(m.Description, c.Description) &&
			strings.EqualFold(m.Vendor, c.Vendor) &&
			m.COACode == c.COACode {
			return golden.Mapping{}, golden.ErrDuplicate
		}
	}

	m := golden.Mapping{
		ID:          uuid.New(),
		AccountName: c.AccountName,
		Description: c.Description,
		Vendor:      c.Vendor,
		COACode:     c.COACode,
		Category:    category,
		Embedding:   c.Embedding,
		Source:      c.Source,
		CreatedAt:   time.Now(),
	}
	s.rows = append(s.rows, m)
	s.inserted++
	return m, nil
}

func (s *memStore) List(_ context.Context, page pagination.PageRequest, _ golden.Filters) (*pagination.PageResult[golden.Mapping], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := pagination.NewPageResult(append([]golden.Mapping(nil), s.rows...), len(s.rows), page.Page, page.PageSize)
	return &result, nil
}

type mapEmbedder map[string][]float32

func (m mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v, ok := m[text]
	if !ok {
		return nil, errors.New("provider unavailable")
	}
	return v, nil
}

func newSystem(store golden.Store, emb mapEmbedder) golden.System {
	return golden.New(
		store,
		emb,
		golden.Config{DedupSimilarity: 0.97, Workers: 4},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		pagination.Config{DefaultPageSize: 20, MaxPageSize: 100},
	)
}

func rent() golden.Candidate {
	return golden.Candidate{
		AccountName: "Office Rent",
		Description: "Monthly lease",
		Vendor:      "Landlord LLC",
		COACode:     "6100",
		Embedding:   []float32{1, 0, 0},
	}
}

func TestPromoteIsIdempotent(t *testing.T) {
	store := newMemStore()
	sys := newSystem(store, nil)
	ctx := context.Background()

	outcome, err := sys.Promote(ctx, rent())
	require.NoError(t, err)
	assert.Equal(t, golden.OutcomeInserted, outcome)

	outcome, err = sys.Promote(ctx, rent())
	require.NoError(t, err)
	assert.Equal(t, golden.OutcomeNearDuplicate, outcome)

	assert.Equal(t, 1, store.inserted)
	assert.Equal(t, golden.SourcePromotion, store.rows[0].Source)
}

func TestPromoteNearDuplicateWithDifferentFeatures(t *testing.T) {
	store := newMemStore()
	sys := newSystem(store, nil)
	ctx := context.Background()

	_, err := sys.Promote(ctx, rent())
	require.NoError(t, err)

	similar := rent()
	similar.AccountName = "Rent - Office"
	similar.Embedding = []float32{0.99, 0.05, 0}

	outcome, err := sys.Promote(ctx, similar)
	require.NoError(t, err)
	assert.Equal(t, golden.OutcomeNearDuplicate, outcome)

	distinct := rent()
	distinct.AccountName = "Audit Fees"
	distinct.COACode = "6400"
	distinct.Embedding = []float32{0, 1, 0}

	outcome, err = sys.Promote(ctx, distinct)
	require.NoError(t, err)
	assert.Equal(t, golden.OutcomeInserted, outcome)
	assert.Equal(t, 2, store.inserted)
}

func TestPromoteExactDuplicateIsBenign(t *testing.T) {
	store := newMemStore()
	sys := newSystem(store, nil)
	ctx := context.Background()

	first := rent()
	_, err := store.Insert(ctx, first)
	require.NoError(t, err)

	again := rent()
	again.Embedding = []float32{0, 0, 1}

	outcome, err := sys.Promote(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, golden.OutcomeDuplicate, outcome)
}

func TestPromoteRequiresEmbedding(t *testing.T) {
	sys := newSystem(newMemStore(), nil)
	c := rent()
	c.Embedding = nil

	_, err := sys.Promote(context.Background(), c)
	assert.ErrorIs(t, err, golden.ErrNoEmbedding)
}

func TestSearchUsesCachedCorpusUntilInsert(t *testing.T) {
	store := newMemStore()
	sys := newSystem(store, nil)
	ctx := context.Background()

	_, err := sys.Search(ctx, []float32{1, 0, 0}, 0.5, 5)
	require.NoError(t, err)
	_, err = sys.Search(ctx, []float32{1, 0, 0}, 0.5, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, store.corpusN)

	_, err = sys.Promote(ctx, rent())
	require.NoError(t, err)

	matches, err := sys.Search(ctx, []float32{1, 0, 0}, 0.5, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "6100", matches[0].Entry.Value.COACode)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
}

// gatedStore holds the first Corpus read open after copying its rows, so an
// insert can land while that read is in flight.
type gatedStore struct {
	*memStore
	gated   atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func (s *gatedStore) Corpus(ctx context.Context) ([]golden.Mapping, error) {
	rows, err := s.memStore.Corpus(ctx)
	if s.gated.CompareAndSwap(false, true) {
		close(s.loaded)
		<-s.release
	}
	return rows, err
}

func TestInsertDuringCorpusLoadIsNotLost(t *testing.T) {
	store := &gatedStore{
		memStore: newMemStore(),
		loaded:   make(chan struct{}),
		release:  make(chan struct{}),
	}
	sys := newSystem(store, nil)
	ctx := context.Background()

	searched := make(chan error, 1)
	go func() {
		_, err := sys.Search(ctx, []float32{1, 0}, 0.5, 5)
		searched <- err
	}()
	<-store.loaded

	legal := golden.Candidate{AccountName: "Legal Fees", COACode: "6400", Embedding: []float32{1, 0}}
	outcome, err := sys.Promote(ctx, legal)
	require.NoError(t, err)
	require.Equal(t, golden.OutcomeInserted, outcome)

	close(store.release)
	require.NoError(t, <-searched)

	counsel := golden.Candidate{
		AccountName: "Legal fees - outside counsel",
		COACode:     "6400",
		Embedding:   []float32{1, 0.001},
	}
	outcome, err = sys.Promote(ctx, counsel)
	require.NoError(t, err)
	assert.Equal(t, golden.OutcomeNearDuplicate, outcome)
	assert.Equal(t, 1, store.inserted)
}

func TestSearchSkipsMismatchedDimensions(t *testing.T) {
	store := newMemStore()
	_, err := store.Insert(context.Background(), rent())
	require.NoError(t, err)

	sys := newSystem(store, nil)
	matches, err := sys.Search(context.Background(), []float32{1, 0}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestImport(t *testing.T) {
	store := newMemStore()
	emb := mapEmbedder{
		"Office Rent | Monthly lease":  {1, 0, 0},
		"office rent | monthly lease":  {1, 0, 0},
		"Legal Fees | Litigation":      {0, 1, 0},
		"Unknown Code | Something odd": {0, 0, 1},
	}
	sys := newSystem(store, emb)

	result, err := sys.Import(context.Background(), golden.ImportCommand{
		Source: golden.SourceSeed,
		Entries: []golden.ImportEntry{
			{AccountName: "Office Rent", Description: "Monthly lease", COACode: "6100"},
			{AccountName: "Legal Fees", Description: "Litigation", COACode: "6400"},
			{AccountName: "office rent", Description: "monthly lease", COACode: "6100"},
			{AccountName: "Unknown Code", Description: "Something odd", COACode: "9999"},
			{AccountName: "Not Embedded", COACode: "6100"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Duplicates)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, 3, result.Failures[0].Index)
	assert.Equal(t, 4, result.Failures[1].Index)
	assert.Equal(t, golden.SourceSeed, store.rows[0].Source)
}

func TestImportRejectsPromotionSource(t *testing.T) {
	sys := newSystem(newMemStore(), mapEmbedder{})
	_, err := sys.Import(context.Background(), golden.ImportCommand{Source: golden.SourcePromotion})
	assert.ErrorIs(t, err, golden.ErrInvalidSource)
}
