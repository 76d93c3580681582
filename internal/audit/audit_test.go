package audit_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JaimeStill/tally/internal/audit"
	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/events"
	"github.com/JaimeStill/tally/internal/prompts"
	"github.com/JaimeStill/tally/internal/providers"
	"github.com/JaimeStill/tally/pkg/pagination"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testScope = auth.Scope{
	TenantID: uuid.MustParse("00000000-0000-0000-0000-0000000000ee"),
	ActorID:  "auditor@firm.test",
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore mirrors the PostgreSQL store: one open item per transaction and
// reason, and status updates applied with a compare-and-set.
type memStore struct {
	mu     sync.Mutex
	deal   uuid.UUID
	inputs audit.Inputs
	items  map[audit.Key]*audit.OpenItem
	events []events.Event
}

func newMemStore(txns ...audit.Txn) *memStore {
	return &memStore{
		deal:   uuid.New(),
		inputs: audit.Inputs{Deal: audit.Deal{Name: "Acme Dental", Industry: "healthcare"}, Transactions: txns},
		items:  make(map[audit.Key]*audit.OpenItem),
	}
}

func (s *memStore) Inputs(_ context.Context, _ auth.Scope, dealID uuid.UUID) (*audit.Inputs, error) {
	if dealID != s.deal {
		return nil, audit.ErrDealNotFound
	}
	in := s.inputs
	return &in, nil
}

func (s *memStore) Known(_ context.Context, _ auth.Scope, _ uuid.UUID) (map[audit.Key]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := make(map[audit.Key]bool, len(s.items))
	for k := range s.items {
		known[k] = true
	}
	return known, nil
}

func (s *memStore) Insert(_ context.Context, scope auth.Scope, dealID uuid.UUID, candidates []audit.Candidate) ([]audit.OpenItem, []events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []audit.OpenItem
	var evs []events.Event
	for _, c := range candidates {
		k := audit.Key{TransactionID: c.Txn.ID, Reason: c.Flag.Reason}
		if _, ok := s.items[k]; ok {
			continue
		}
		now := time.Now().UTC()
		o := audit.OpenItem{
			ID:              uuid.New(),
			OrganizationID:  scope.TenantID,
			DealID:          dealID,
			GLTransactionID: c.Txn.ID,
			Reason:          c.Flag.Reason,
			Detail:          c.Flag.Detail,
			Question:        c.Question,
			Status:          audit.StatusDraft,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		s.items[k] = &o
		inserted = append(inserted, o)

		ev := events.Event{ID: uuid.New(), DealID: dealID, Entity: events.EntityOpenItem, EntityID: o.ID, Action: "flagged"}
		s.events = append(s.events, ev)
		evs = append(evs, ev)
	}
	return inserted, evs, nil
}

func (s *memStore) Apply(_ context.Context, scope auth.Scope, c audit.Change, ev *events.Event) (*audit.OpenItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.items {
		if o.ID != c.ID {
			continue
		}
		if o.Status != c.From {
			return nil, audit.ErrStaleStatus
		}
		o.Status = c.To
		if c.Resolution != nil {
			o.Resolution = c.Resolution
		}
		actor := scope.ActorID
		o.UpdatedBy = &actor

		ev.ID = uuid.New()
		ev.DealID = o.DealID
		ev.Entity = events.EntityOpenItem
		ev.EntityID = o.ID
		ev.FromStatus = string(c.From)
		ev.ToStatus = string(c.To)
		s.events = append(s.events, *ev)

		out := *o
		return &out, nil
	}
	return nil, audit.ErrNotFound
}

func (s *memStore) Find(_ context.Context, _ auth.Scope, id uuid.UUID) (*audit.OpenItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.items {
		if o.ID == id {
			out := *o
			return &out, nil
		}
	}
	return nil, audit.ErrNotFound
}

func (s *memStore) List(_ context.Context, _ auth.Scope, dealID uuid.UUID, page pagination.PageRequest, f audit.Filters) (*pagination.PageResult[audit.OpenItem], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dealID != s.deal {
		return nil, audit.ErrDealNotFound
	}
	var out []audit.OpenItem
	for _, o := range s.items {
		if f.Status != nil && string(o.Status) != *f.Status {
			continue
		}
		if f.Reason != nil && string(o.Reason) != *f.Reason {
			continue
		}
		out = append(out, *o)
	}
	result := pagination.NewPageResult(out, len(out), page.Page, page.PageSize)
	return &result, nil
}

func (s *memStore) only(t *testing.T, reason audit.Reason) *audit.OpenItem {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, o := range s.items {
		if k.Reason == reason {
			out := *o
			return &out
		}
	}
	t.Fatalf("no open item with reason %s", reason)
	return nil
}

type fakeReasoner struct {
	mu       sync.Mutex
	calls    int
	subjects []string
	text     string
	err      error
}

func (f *fakeReasoner) Explain(_ context.Context, e providers.Explanation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.subjects = append(f.subjects, e.Subject)
	if e.Instructions == "" || e.Subject == "" {
		return "", errors.New("empty request")
	}
	return f.text, f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func newSystem(store audit.Store, reasoner providers.Reasoner, pub events.Publisher) audit.System {
	rt := audit.Runtime{
		Publisher: pub,
		Logger:    discard(),
	}
	if reasoner != nil {
		rt.Prompts = prompts.Defaults{}
		rt.Reasoner = reasoner
	}
	return audit.New(store, rt, audit.Config{
		Policy:        audit.DefaultPolicy,
		Workers:       4,
		ReasonTimeout: time.Second,
	}, pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})
}

func ledgerTxns() []audit.Txn {
	date := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	return []audit.Txn{
		{ID: uuid.New(), Date: date, AccountName: "Meals", Description: "Venmo to J Smith", Amount: d("85"), COAName: "Meals & Entertainment", Confidence: intp(92)},
		{ID: uuid.New(), Date: date, AccountName: "R&M", Description: "HVAC replacement", Amount: d("14500"), COAName: "Repairs & Maintenance", Confidence: intp(60)},
		{ID: uuid.New(), Date: date, AccountName: "Rent", Description: "March rent", Amount: d("4000"), COAName: "Rent Expense", Confidence: intp(98)},
	}
}

func TestScan(t *testing.T) {
	ctx := context.Background()

	t.Run("flags and is idempotent", func(t *testing.T) {
		store := newMemStore(ledgerTxns()...)
		pub := &recordingPublisher{}
		sys := newSystem(store, nil, pub)

		first, err := sys.Scan(ctx, testScope, store.deal)
		require.NoError(t, err)
		assert.Equal(t, 3, first.Scanned)
		assert.Equal(t, 3, first.Flagged)
		assert.Zero(t, first.Existing)
		assert.Zero(t, first.QuestionsDrafted)
		assert.Len(t, first.Created, 3)
		assert.Equal(t, map[audit.Reason]int{
			audit.ReasonVenmo:         1,
			audit.ReasonCapex:         1,
			audit.ReasonLowConfidence: 1,
		}, first.ByReason)
		assert.Len(t, pub.events, 3)

		venmo := store.only(t, audit.ReasonVenmo)
		assert.Equal(t, "Please provide documentation or clarification for this transaction: Venmo to J Smith", venmo.Question)
		assert.Equal(t, audit.StatusDraft, venmo.Status)

		second, err := sys.Scan(ctx, testScope, store.deal)
		require.NoError(t, err)
		assert.Equal(t, 3, second.Flagged)
		assert.Equal(t, 3, second.Existing)
		assert.Empty(t, second.Created)
		assert.Empty(t, second.ByReason)
		assert.Len(t, store.items, 3)
		assert.Len(t, pub.events, 3)
	})

	t.Run("new transactions add items", func(t *testing.T) {
		store := newMemStore(ledgerTxns()...)
		sys := newSystem(store, nil, nil)

		_, err := sys.Scan(ctx, testScope, store.deal)
		require.NoError(t, err)

		store.inputs.Transactions = append(store.inputs.Transactions, audit.Txn{
			ID: uuid.New(), AccountName: "Office", Description: "ATM withdrawal", Amount: d("-200"),
		})

		result, err := sys.Scan(ctx, testScope, store.deal)
		require.NoError(t, err)
		assert.Equal(t, 4, result.Flagged)
		assert.Equal(t, 3, result.Existing)
		require.Len(t, result.Created, 1)
		assert.Equal(t, audit.ReasonCash, result.Created[0].Reason)
	})

	t.Run("reasoner drafts questions", func(t *testing.T) {
		store := newMemStore(ledgerTxns()...)
		reasoner := &fakeReasoner{text: "  Could you share the invoice for this payment?  "}
		sys := newSystem(store, reasoner, nil)

		result, err := sys.Scan(ctx, testScope, store.deal)
		require.NoError(t, err)
		assert.Equal(t, 3, result.QuestionsDrafted)
		assert.Equal(t, 3, reasoner.calls)
		for _, o := range result.Created {
			assert.Equal(t, "Could you share the invoice for this payment?", o.Question)
		}

		joined := strings.Join(reasoner.subjects, "\n")
		assert.Contains(t, joined, "Deal: Acme Dental (healthcare)")
		assert.Contains(t, joined, "Flag: capex_threshold")
		assert.Contains(t, joined, "Amount: 14500.00")
	})

	t.Run("reasoner failure keeps deterministic question", func(t *testing.T) {
		store := newMemStore(ledgerTxns()...)
		reasoner := &fakeReasoner{err: providers.ErrDisabled}
		sys := newSystem(store, reasoner, nil)

		result, err := sys.Scan(ctx, testScope, store.deal)
		require.NoError(t, err)
		assert.Zero(t, result.QuestionsDrafted)
		require.Len(t, result.Created, 3)
		for _, o := range result.Created {
			assert.True(t, strings.HasPrefix(o.Question, "Please provide documentation"), o.Question)
		}
	})

	t.Run("empty reply keeps deterministic question", func(t *testing.T) {
		store := newMemStore(ledgerTxns()[:1]...)
		sys := newSystem(store, &fakeReasoner{text: "   "}, nil)

		result, err := sys.Scan(ctx, testScope, store.deal)
		require.NoError(t, err)
		require.Len(t, result.Created, 1)
		assert.Zero(t, result.QuestionsDrafted)
		assert.Equal(t, audit.Question(store.inputs.Transactions[0]), result.Created[0].Question)
	})

	t.Run("unknown deal", func(t *testing.T) {
		store := newMemStore(ledgerTxns()...)
		_, err := newSystem(store, nil, nil).Scan(ctx, testScope, uuid.New())
		assert.ErrorIs(t, err, audit.ErrDealNotFound)
	})

	t.Run("clean ledger", func(t *testing.T) {
		store := newMemStore(ledgerTxns()[2])
		result, err := newSystem(store, &fakeReasoner{text: "unused"}, nil).Scan(ctx, testScope, store.deal)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Scanned)
		assert.Zero(t, result.Flagged)
		assert.Empty(t, result.Created)
	})
}

func TestConcurrentScans(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(ledgerTxns()...)
	sys := newSystem(store, &fakeReasoner{text: "Please explain."}, nil)

	var wg sync.WaitGroup
	created := make([]int, 4)
	for i := range created {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := sys.Scan(ctx, testScope, store.deal)
			if assert.NoError(t, err) {
				created[i] = len(result.Created)
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, n := range created {
		total += n
	}
	assert.Equal(t, 3, total)
	assert.Len(t, store.items, 3)
}

func TestOpenItemTransition(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(ledgerTxns()...)
	pub := &recordingPublisher{}
	sys := newSystem(store, nil, pub)

	_, err := sys.Scan(ctx, testScope, store.deal)
	require.NoError(t, err)
	item := store.only(t, audit.ReasonCapex)

	sent, err := sys.Transition(ctx, testScope, item.ID, audit.TransitionCommand{Status: audit.StatusSent})
	require.NoError(t, err)
	assert.Equal(t, audit.StatusSent, sent.Status)
	require.NotNil(t, sent.UpdatedBy)
	assert.Equal(t, testScope.ActorID, *sent.UpdatedBy)

	_, err = sys.Transition(ctx, testScope, item.ID, audit.TransitionCommand{Status: audit.StatusResolved, Resolution: "  "})
	assert.ErrorIs(t, err, audit.ErrResolutionRequired)

	resolved, err := sys.Transition(ctx, testScope, item.ID, audit.TransitionCommand{
		Status:     audit.StatusResolved,
		Resolution: "Capitalized as fixed asset per client invoice",
	})
	require.NoError(t, err)
	assert.Equal(t, audit.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, "Capitalized as fixed asset per client invoice", *resolved.Resolution)

	_, err = sys.Transition(ctx, testScope, item.ID, audit.TransitionCommand{Status: audit.StatusSent})
	assert.ErrorIs(t, err, audit.ErrInvalidTransition)

	_, err = sys.Transition(ctx, testScope, uuid.New(), audit.TransitionCommand{Status: audit.StatusSent})
	assert.ErrorIs(t, err, audit.ErrNotFound)

	last := pub.events[len(pub.events)-1]
	assert.Equal(t, "transitioned", last.Action)
	assert.Equal(t, string(audit.StatusSent), last.FromStatus)
	assert.Equal(t, string(audit.StatusResolved), last.ToStatus)
}

func TestHandler(t *testing.T) {
	store := newMemStore(ledgerTxns()...)
	sys := newSystem(store, nil, nil)

	mux := http.NewServeMux()
	group := sys.Handler().Routes()
	for _, route := range group.Routes {
		mux.HandleFunc(route.Method+" "+group.Prefix+route.Pattern, route.Handler)
	}

	serve := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req = req.WithContext(auth.WithScope(req.Context(), testScope))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	deal := "/deals/" + store.deal.String()

	rec := serve("POST", deal+"/open-items/scan", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"flagged":3`)

	rec = serve("GET", deal+"/open-items?reason=capex_threshold", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	item := store.only(t, audit.ReasonVenmo)
	base := "/open-items/" + item.ID.String()

	rec = serve("GET", base, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason":"keyword_venmo"`)

	rec = serve("POST", base+"/transition", `{"status":"resolved"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve("POST", base+"/transition", `{"status":"resolved","resolution":"Owner expense, added back"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve("POST", base+"/transition", `{"status":"sent"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve("POST", "/deals/"+uuid.NewString()+"/open-items/scan", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve("GET", "/open-items/nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
