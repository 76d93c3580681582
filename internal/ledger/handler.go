package ledger

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/pkg/handlers"
	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/routes"
)

// Handler provides HTTP endpoints for ledger ingest and queries.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "ledger"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for ledger endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/deals/{dealId}",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/transactions", Handler: h.ListTransactions},
			{Method: "POST", Pattern: "/transactions", Handler: h.IngestTransactions},
			{Method: "GET", Pattern: "/periods", Handler: h.ListPeriods},
			{Method: "POST", Pattern: "/periods", Handler: h.IngestPeriod},
		},
	}
}

// IngestTransactions stores a batch of GL rows.
func (h *Handler) IngestTransactions(w http.ResponseWriter, r *http.Request) {
	scope, dealID, ok := h.dealScope(w, r)
	if !ok {
		return
	}

	var rows []TransactionInput
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.sys.IngestTransactions(r.Context(), scope, dealID, rows)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, result)
}

// IngestPeriod stores a P&L period with its line items.
func (h *Handler) IngestPeriod(w http.ResponseWriter, r *http.Request) {
	scope, dealID, ok := h.dealScope(w, r)
	if !ok {
		return
	}

	var input PeriodInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	period, err := h.sys.IngestPeriod(r.Context(), scope, dealID, input)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, period)
}

// ListTransactions returns a paginated list of the deal's GL rows.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	scope, dealID, ok := h.dealScope(w, r)
	if !ok {
		return
	}

	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.ListTransactions(r.Context(), scope, dealID, page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// ListPeriods returns every P&L period of the deal with its lines.
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	scope, dealID, ok := h.dealScope(w, r)
	if !ok {
		return
	}

	periods, err := h.sys.ListPeriods(r.Context(), scope, dealID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, periods)
}

func (h *Handler) dealScope(w http.ResponseWriter, r *http.Request) (auth.Scope, uuid.UUID, bool) {
	scope, ok := auth.Require(w, r, h.logger)
	if !ok {
		return scope, uuid.Nil, false
	}

	dealID, err := uuid.Parse(r.PathValue("dealId"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrDealNotFound)
		return scope, uuid.Nil, false
	}
	return scope, dealID, true
}
