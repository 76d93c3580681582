package chart_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tally/internal/chart"
	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/query"
)

type mockSystem struct {
	chart.System
	accounts map[string]chart.Account
	filters  chart.Filters
}

func (m *mockSystem) List(_ context.Context, page pagination.PageRequest, f chart.Filters) (*pagination.PageResult[chart.Account], error) {
	m.filters = f
	data := make([]chart.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		data = append(data, a)
	}
	result := pagination.NewPageResult(data, len(data), page.Page, page.PageSize)
	return &result, nil
}

func (m *mockSystem) Find(_ context.Context, code string) (*chart.Account, error) {
	a, ok := m.accounts[code]
	if !ok {
		return nil, chart.ErrNotFound
	}
	return &a, nil
}

func setupMux(sys chart.System) *http.ServeMux {
	h := chart.NewHandler(
		sys,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		pagination.Config{DefaultPageSize: 20, MaxPageSize: 100},
	)
	mux := http.NewServeMux()
	group := h.Routes()
	for _, route := range group.Routes {
		mux.HandleFunc(route.Method+" "+group.Prefix+route.Pattern, route.Handler)
	}
	return mux
}

func TestHandler(t *testing.T) {
	sys := &mockSystem{accounts: map[string]chart.Account{
		"6100": {Code: "6100", Name: "Rent Expense", Category: "Operating Expenses"},
	}}
	mux := setupMux(sys)

	t.Run("find existing code", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/chart/6100", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var a chart.Account
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&a))
		assert.Equal(t, "Rent Expense", a.Name)
	})

	t.Run("unknown code is 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/chart/9999", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list passes filters", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/chart?category=Revenue", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, sys.filters.Category)
		assert.Equal(t, "Revenue", *sys.filters.Category)
	})
}

func TestFiltersApply(t *testing.T) {
	f := chart.FiltersFromQuery(url.Values{"category": {"Revenue"}})
	proj := query.NewProjectionMap("public", "chart_of_accounts", "coa").
		Project("category", "Category").
		Project("subcategory", "Subcategory")

	sql, args := f.Apply(query.NewBuilder(proj)).Build()
	assert.Contains(t, sql, "coa.category = $1")
	require.Len(t, args, 1)
	assert.Equal(t, "Revenue", *args[0].(*string))
}
