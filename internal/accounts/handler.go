package accounts

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/pkg/handlers"
	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/routes"
)

// Handler provides HTTP endpoints for client accounts.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "accounts"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for account endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/deals/{dealId}/accounts", Handler: h.List},
			{Method: "POST", Pattern: "/deals/{dealId}/accounts/aggregate", Handler: h.Aggregate},
			{Method: "POST", Pattern: "/deals/{dealId}/accounts/embed", Handler: h.Refresh},
			{Method: "GET", Pattern: "/accounts/{id}", Handler: h.Find},
		},
	}
}

// List returns a paginated list of a deal's client accounts.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := auth.Require(w, r, h.logger)
	if !ok {
		return
	}

	dealID, err := uuid.Parse(r.PathValue("dealId"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrDealNotFound)
		return
	}

	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), scope, dealID, page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns a single client account.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	scope, ok := auth.Require(w, r, h.logger)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	account, err := h.sys.Find(r.Context(), scope, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, account)
}

// Aggregate dedupes the deal's GL rows into client accounts.
func (h *Handler) Aggregate(w http.ResponseWriter, r *http.Request) {
	scope, ok := auth.Require(w, r, h.logger)
	if !ok {
		return
	}

	dealID, err := uuid.Parse(r.PathValue("dealId"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrDealNotFound)
		return
	}

	result, err := h.sys.Aggregate(r.Context(), scope, dealID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Refresh embeds every account of the deal that has no embedding yet.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	scope, ok := auth.Require(w, r, h.logger)
	if !ok {
		return
	}

	dealID, err := uuid.Parse(r.PathValue("dealId"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrDealNotFound)
		return
	}

	result, err := h.sys.RefreshEmbeddings(r.Context(), scope, dealID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}
