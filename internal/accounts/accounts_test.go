package accounts_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JaimeStill/tally/internal/accounts"
	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/pkg/pagination"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testScope = auth.Scope{
	TenantID: uuid.MustParse("00000000-0000-0000-0000-0000000000aa"),
	ActorID:  "analyst@firm.test",
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStore struct {
	mu       sync.Mutex
	deal     uuid.UUID
	rows     []accounts.RawRow
	accounts map[string]*accounts.Account
	links    map[uuid.UUID]uuid.UUID
}

func newMemStore(deal uuid.UUID, rows ...accounts.RawRow) *memStore {
	return &memStore{
		deal:     deal,
		rows:     rows,
		accounts: make(map[string]*accounts.Account),
		links:    make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *memStore) RawRows(_ context.Context, _ auth.Scope, dealID uuid.UUID) ([]accounts.RawRow, error) {
	if dealID != s.deal {
		return nil, accounts.ErrDealNotFound
	}
	return s.rows, nil
}

func (s *memStore) Apply(_ context.Context, scope auth.Scope, dealID uuid.UUID, groups []accounts.Group) ([]accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []accounts.Account
	for _, g := range groups {
		a, ok := s.accounts[g.Key]
		if !ok {
			a = &accounts.Account{
				ID:               uuid.New(),
				OrganizationID:   scope.TenantID,
				DealID:           dealID,
				AccountKey:       g.Key,
				AccountName:      g.AccountName,
				Description:      g.Description,
				Vendor:           g.Vendor,
				TransactionCount: g.TransactionCount,
				TotalAmount:      g.TotalAmount,
			}
			s.accounts[g.Key] = a
			inserted = append(inserted, *a)
		}
		for _, id := range g.RowIDs {
			if _, linked := s.links[id]; !linked {
				s.links[id] = a.ID
			}
		}
	}
	return inserted, nil
}

func (s *memStore) byID(id uuid.UUID) *accounts.Account {
	for _, a := range s.accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (s *memStore) Find(_ context.Context, _ auth.Scope, id uuid.UUID) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.byID(id)
	if a == nil {
		return nil, accounts.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) IDs(_ context.Context, _ auth.Scope, _ uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for _, a := range s.accounts {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (s *memStore) Unembedded(_ context.Context, _ auth.Scope, _ uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for _, a := range s.accounts {
		if !a.Embedded() {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

func (s *memStore) SetEmbedding(_ context.Context, _ auth.Scope, id uuid.UUID, v []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.byID(id)
	if a == nil {
		return accounts.ErrNotFound
	}
	now := time.Now()
	a.Embedding = v
	a.EmbeddedAt = &now
	return nil
}

func (s *memStore) List(_ context.Context, _ auth.Scope, _ uuid.UUID, page pagination.PageRequest, _ accounts.Filters) (*pagination.PageResult[accounts.Account], error) {
	result := pagination.NewPageResult([]accounts.Account{}, 0, page.Page, page.PageSize)
	return &result, nil
}

type textEmbedder struct {
	mu    sync.Mutex
	fail  string
	calls []string
}

func (e *textEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, text)
	e.mu.Unlock()
	if e.fail != "" && strings.Contains(text, e.fail) {
		return nil, errors.New("provider unavailable")
	}
	return []float32{float32(len(text)), 1}, nil
}

type recordingQueue struct {
	ids []uuid.UUID
}

func (q *recordingQueue) Enqueue(_ auth.Scope, ids ...uuid.UUID) {
	q.ids = append(q.ids, ids...)
}

func row(name, desc, vendor, amount string) accounts.RawRow {
	return accounts.RawRow{
		ID:          uuid.New(),
		AccountName: name,
		Description: desc,
		Vendor:      vendor,
		Amount:      decimal.RequireFromString(amount),
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "office rent | monthly lease", accounts.Key("  Office   Rent", "Monthly\tLease "))
	assert.Equal(t, "misc consulting fee | acme corp", accounts.Key("Misc Consulting Fee", "Acme Corp"))
	assert.Equal(t, "rent | ", accounts.Key("RENT", ""))
}

func TestGroupRows(t *testing.T) {
	rows := []accounts.RawRow{
		row("Office Rent", "Monthly lease", "", "1000.00"),
		row("Legal Fees", "Litigation", "Smith LLP", "2500.50"),
		row("office  rent", "monthly LEASE", "Landlord LLC", "1000.00"),
	}

	groups := accounts.GroupRows(rows)
	require.Len(t, groups, 2)

	rent := groups[0]
	assert.Equal(t, "office rent | monthly lease", rent.Key)
	assert.Equal(t, "Office Rent", rent.AccountName)
	assert.Equal(t, "Landlord LLC", rent.Vendor)
	assert.Equal(t, 2, rent.TransactionCount)
	assert.True(t, rent.TotalAmount.Equal(decimal.RequireFromString("2000.00")))
	assert.Equal(t, []uuid.UUID{rows[0].ID, rows[2].ID}, rent.RowIDs)

	assert.Equal(t, "Legal Fees", groups[1].AccountName)
}

func TestAggregate(t *testing.T) {
	deal := uuid.New()
	store := newMemStore(deal,
		row("Office Rent", "Monthly lease", "", "1000.00"),
		row("Legal Fees", "Litigation", "", "2500.00"),
		row("OFFICE RENT", "monthly lease", "", "1000.00"),
	)
	queue := &recordingQueue{}
	sys := accounts.New(store, &textEmbedder{}, queue, 2, nil, discard(), pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})
	ctx := context.Background()

	first, err := sys.Aggregate(ctx, testScope, deal)
	require.NoError(t, err)
	assert.Equal(t, 2, first.TotalKeys)
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 0, first.Existing)
	assert.ElementsMatch(t, first.NewIDs, queue.ids)
	assert.Len(t, store.links, 3)

	second, err := sys.Aggregate(ctx, testScope, deal)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Existing)
	assert.Empty(t, second.NewIDs)
	assert.Len(t, queue.ids, 2)

	_, err = sys.Aggregate(ctx, testScope, uuid.New())
	assert.ErrorIs(t, err, accounts.ErrDealNotFound)
}

func TestEmbedStoresOnce(t *testing.T) {
	deal := uuid.New()
	store := newMemStore(deal, row("Office Rent", "Monthly lease", "Landlord LLC", "1000.00"))
	emb := &textEmbedder{}
	sys := accounts.New(store, emb, nil, 1, nil, discard(), pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})
	ctx := context.Background()

	agg, err := sys.Aggregate(ctx, testScope, deal)
	require.NoError(t, err)
	id := agg.NewIDs[0]

	a, err := sys.Embed(ctx, testScope, id)
	require.NoError(t, err)
	assert.True(t, a.Embedded())

	_, err = sys.Embed(ctx, testScope, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Office Rent | Monthly lease | Landlord LLC"}, emb.calls)
}

func TestRefreshEmbeddingsToleratesFailures(t *testing.T) {
	deal := uuid.New()
	store := newMemStore(deal,
		row("Office Rent", "Monthly lease", "", "1000.00"),
		row("Legal Fees", "Litigation", "", "2500.00"),
		row("Travel", "Flights", "", "300.00"),
	)
	emb := &textEmbedder{fail: "Legal"}
	sys := accounts.New(store, emb, nil, 2, nil, discard(), pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})
	ctx := context.Background()

	_, err := sys.Aggregate(ctx, testScope, deal)
	require.NoError(t, err)

	result, err := sys.RefreshEmbeddings(ctx, testScope, deal)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Embedded)
	assert.Equal(t, 1, result.Failed)

	remaining, err := store.Unembedded(ctx, testScope, deal)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestQueueProcessesAndCloses(t *testing.T) {
	q := accounts.NewQueue(2, 8, discard())

	var mu sync.Mutex
	var seen []uuid.UUID
	done := make(chan struct{}, 3)

	q.Start(context.Background(), func(_ context.Context, _ auth.Scope, id uuid.UUID) error {
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	q.Enqueue(testScope, ids...)

	for range ids {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("queue did not process jobs")
		}
	}

	q.Close()
	q.Enqueue(testScope, uuid.New())

	mu.Lock()
	defer mu.Unlock()
	sort.Slice(seen, func(i, j int) bool { return seen[i].String() < seen[j].String() })
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	assert.Equal(t, ids, seen)
}

func TestQueueDrainsAfterContextCancel(t *testing.T) {
	q := accounts.NewQueue(1, 16, discard())
	ctx, cancel := context.WithCancel(context.Background())

	var embedded, cancelled atomic.Int32
	q.Start(ctx, func(ctx context.Context, _ auth.Scope, _ uuid.UUID) error {
		if ctx.Err() != nil {
			cancelled.Add(1)
		}
		embedded.Add(1)
		return nil
	})

	for range 10 {
		q.Enqueue(testScope, uuid.New())
	}

	cancel()
	q.Close()

	assert.Equal(t, int32(10), embedded.Load())
	assert.Zero(t, cancelled.Load(), "drained jobs ran with a cancelled context")
}

func TestQueueCloseWithoutStart(t *testing.T) {
	q := accounts.NewQueue(2, 4, discard())
	q.Enqueue(testScope, uuid.New())
	q.Close()
}
