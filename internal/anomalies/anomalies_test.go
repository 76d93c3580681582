package anomalies_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JaimeStill/tally/internal/anomalies"
	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/events"
	"github.com/JaimeStill/tally/internal/failure"
	"github.com/JaimeStill/tally/internal/prompts"
	"github.com/JaimeStill/tally/internal/providers"
	"github.com/JaimeStill/tally/pkg/pagination"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testScope = auth.Scope{
	TenantID: uuid.MustParse("00000000-0000-0000-0000-0000000000bb"),
	ActorID:  "analyst@firm.test",
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStore struct {
	mu         sync.Mutex
	deal       uuid.UUID
	history    anomalies.History
	stored     map[anomalies.Key]anomalies.Anomaly
	recon      []anomalies.ReconLine
	totals     map[string]decimal.Decimal
	reconciled []anomalies.Reconciled
}

func (s *memStore) checkDeal(dealID uuid.UUID) error {
	if dealID != s.deal {
		return anomalies.ErrDealNotFound
	}
	return nil
}

func (s *memStore) History(_ context.Context, _ auth.Scope, dealID uuid.UUID) (*anomalies.History, error) {
	if err := s.checkDeal(dealID); err != nil {
		return nil, err
	}
	h := s.history
	return &h, nil
}

func (s *memStore) Known(_ context.Context, _ auth.Scope, dealID uuid.UUID) (map[anomalies.Key]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := make(map[anomalies.Key]bool, len(s.stored))
	for k := range s.stored {
		known[k] = true
	}
	return known, nil
}

func (s *memStore) Insert(_ context.Context, scope auth.Scope, dealID uuid.UUID, candidates []anomalies.Candidate) ([]anomalies.Anomaly, []events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []anomalies.Anomaly
	var evs []events.Event
	for _, c := range candidates {
		k := anomalies.Key{LineItemID: c.Point.LineItemID, Type: c.Finding.Type}
		if _, ok := s.stored[k]; ok {
			continue
		}
		a := anomalies.Anomaly{
			ID:                 uuid.New(),
			OrganizationID:     scope.TenantID,
			DealID:             dealID,
			PLLineItemID:       c.Point.LineItemID,
			Type:               c.Finding.Type,
			Severity:           c.Finding.Severity,
			CurrentAmount:      c.Point.Amount,
			Summary:            c.Summary,
			IsAddbackCandidate: c.Addback,
			Confidence:         c.Finding.Severity.Confidence(),
		}
		s.stored[k] = a
		inserted = append(inserted, a)
		evs = append(evs, events.Event{Entity: events.EntityAnomaly, EntityID: a.ID, DealID: dealID, Action: "detected"})
	}
	return inserted, evs, nil
}

func (s *memStore) ReconcileInputs(_ context.Context, _ auth.Scope, dealID uuid.UUID, _ time.Time) ([]anomalies.ReconLine, map[string]decimal.Decimal, error) {
	if err := s.checkDeal(dealID); err != nil {
		return nil, nil, err
	}
	return s.recon, s.totals, nil
}

func (s *memStore) SaveReconciliation(_ context.Context, _ auth.Scope, lines []anomalies.Reconciled) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconciled = append(s.reconciled, lines...)
	return nil
}

func (s *memStore) Find(_ context.Context, _ auth.Scope, id uuid.UUID) (*anomalies.Anomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.stored {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, anomalies.ErrNotFound
}

func (s *memStore) List(_ context.Context, _ auth.Scope, _ uuid.UUID, page pagination.PageRequest, _ anomalies.Filters) (*pagination.PageResult[anomalies.Anomaly], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []anomalies.Anomaly
	for _, a := range s.stored {
		out = append(out, a)
	}
	result := pagination.NewPageResult(out, len(out), page.Page, page.PageSize)
	return &result, nil
}

type fakeReasoner struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *fakeReasoner) Explain(_ context.Context, e providers.Explanation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
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

func seededStore() *memStore {
	s := &memStore{
		deal:   uuid.New(),
		stored: make(map[anomalies.Key]anomalies.Anomaly),
	}

	add := func(m time.Month, name, amount string) {
		s.history.Points = append(s.history.Points, anomalies.Point{
			LineItemID:   uuid.New(),
			PeriodStart:  month(m),
			LineName:     name,
			LineCategory: "Operating Expenses",
			Amount:       d(amount),
		})
	}

	s.history.Periods = []time.Time{month(1), month(2), month(3), month(4)}
	for m := time.January; m <= time.March; m++ {
		add(m, "Legal Fees", "5000")
		add(m, "Rent", "4000")
	}
	add(time.April, "Legal Fees", "16000")
	add(time.April, "Rent", "4000")
	return s
}

func newSystem(store anomalies.Store, reasoner providers.Reasoner, pub events.Publisher) anomalies.System {
	rt := anomalies.Runtime{
		Publisher: pub,
		Logger:    discard(),
	}
	if reasoner != nil {
		rt.Prompts = prompts.Defaults{}
		rt.Reasoner = reasoner
	}
	return anomalies.New(store, rt, anomalies.DefaultPolicy, time.Second, pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})
}

func TestDetect(t *testing.T) {
	ctx := context.Background()

	t.Run("detects and is idempotent", func(t *testing.T) {
		store := seededStore()
		pub := &recordingPublisher{}
		sys := newSystem(store, nil, pub)

		first, err := sys.Detect(ctx, testScope, store.deal, month(4))
		require.NoError(t, err)
		assert.Equal(t, 2, first.Evaluated)
		assert.Equal(t, "2024-04-01", first.Period)
		require.Len(t, first.Detected, 1)

		a := first.Detected[0]
		assert.Equal(t, anomalies.TypeSpike, a.Type)
		assert.Equal(t, anomalies.SeverityHigh, a.Severity)
		assert.Equal(t, 90, a.Confidence)
		assert.True(t, a.IsAddbackCandidate)
		assert.Equal(t, "Legal Fees of 16000.00 is 3.20x the trailing 3-period average of 5000.00", a.Summary)
		assert.Len(t, pub.events, 1)

		second, err := sys.Detect(ctx, testScope, store.deal, month(4))
		require.NoError(t, err)
		assert.Empty(t, second.Detected)
		assert.Equal(t, 1, second.Existing)
		assert.Len(t, store.stored, 1)
		assert.Len(t, pub.events, 1)
	})

	t.Run("reasoner rewrites summary", func(t *testing.T) {
		store := seededStore()
		reasoner := &fakeReasoner{text: "Legal spend tripled; likely a one-off dispute."}
		sys := newSystem(store, reasoner, nil)

		result, err := sys.Detect(ctx, testScope, store.deal, month(4))
		require.NoError(t, err)
		require.Len(t, result.Detected, 1)
		assert.Equal(t, reasoner.text, result.Detected[0].Summary)
		assert.Equal(t, 1, reasoner.calls)
	})

	t.Run("reasoner failure keeps deterministic summary", func(t *testing.T) {
		store := seededStore()
		reasoner := &fakeReasoner{err: providers.ErrDisabled}
		sys := newSystem(store, reasoner, nil)

		result, err := sys.Detect(ctx, testScope, store.deal, month(4))
		require.NoError(t, err)
		require.Len(t, result.Detected, 1)
		assert.Contains(t, result.Detected[0].Summary, "3.20x")
	})

	t.Run("first period has nothing to compare", func(t *testing.T) {
		store := seededStore()
		sys := newSystem(store, nil, nil)

		result, err := sys.Detect(ctx, testScope, store.deal, month(1))
		require.NoError(t, err)
		assert.Equal(t, 2, result.Evaluated)
		assert.Empty(t, result.Detected)
	})

	t.Run("unknown period", func(t *testing.T) {
		store := seededStore()
		sys := newSystem(store, nil, nil)

		_, err := sys.Detect(ctx, testScope, store.deal, month(9))
		assert.ErrorIs(t, err, anomalies.ErrPeriodNotFound)
		assert.ErrorIs(t, err, failure.NotFound)
	})

	t.Run("period required", func(t *testing.T) {
		store := seededStore()
		sys := newSystem(store, nil, nil)

		_, err := sys.Detect(ctx, testScope, store.deal, time.Time{})
		assert.ErrorIs(t, err, anomalies.ErrPeriodRequired)
		assert.Equal(t, http.StatusBadRequest, anomalies.MapHTTPStatus(err))
	})

	t.Run("unknown deal", func(t *testing.T) {
		sys := newSystem(seededStore(), nil, nil)

		_, err := sys.Detect(ctx, testScope, uuid.New(), month(4))
		assert.ErrorIs(t, err, anomalies.ErrDealNotFound)
	})
}

func TestReconcileSystem(t *testing.T) {
	store := seededStore()
	store.recon = []anomalies.ReconLine{
		{LineItemID: uuid.New(), LineName: "Rent", COACode: "6100", Amount: d("4000")},
		{LineItemID: uuid.New(), LineName: "Legal Fees", COACode: "6400", Amount: d("16000")},
	}
	store.totals = map[string]decimal.Decimal{"6100": d("4000"), "6400": d("15250")}
	sys := newSystem(store, nil, nil)

	result, err := sys.Reconcile(context.Background(), testScope, store.deal, month(4))
	require.NoError(t, err)
	require.Len(t, result.Lines, 2)
	assert.True(t, result.Lines[0].Variance.IsZero())
	assert.True(t, result.TotalVariance.Equal(d("750")))
	assert.Len(t, store.reconciled, 2)
}

func TestHandler(t *testing.T) {
	store := seededStore()
	sys := newSystem(store, nil, nil)

	mux := http.NewServeMux()
	group := sys.Handler().Routes()
	for _, route := range group.Routes {
		mux.HandleFunc(route.Method+" "+group.Prefix+route.Pattern, route.Handler)
	}

	serve := func(method, path, body string, scoped bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		if scoped {
			req = req.WithContext(auth.WithScope(req.Context(), testScope))
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	detect := "/deals/" + store.deal.String() + "/anomalies/detect"

	rec := serve("POST", detect, `{"period":"2024-04-01"}`, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"variance_spike"`)

	rec = serve("POST", detect, `{"period":"2024-09-01"}`, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve("POST", detect, `{"period":"April"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve("POST", detect, `{"period":"2024-04-01"}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve("GET", "/anomalies/not-a-uuid", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve("GET", "/anomalies/"+uuid.NewString(), "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
