package deals

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

// Handler provides HTTP endpoints for deals.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "deals"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for deal endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/deals",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "", Handler: h.Create},
			{Method: "GET", Pattern: "/{dealId}", Handler: h.Find},
			{Method: "GET", Pattern: "/{dealId}/stats", Handler: h.Stats},
		},
	}
}

// List returns a paginated list of the organization's deals.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := auth.Require(w, r, h.logger)
	if !ok {
		return
	}

	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)

	result, err := h.sys.List(r.Context(), scope, page)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Create opens a deal.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := auth.Require(w, r, h.logger)
	if !ok {
		return
	}

	var cmd CreateCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	d, err := h.sys.Create(r.Context(), scope, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, d)
}

// Find returns a single deal.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r)
	if !ok {
		return
	}

	d, err := h.sys.Find(r.Context(), scope, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, d)
}

// Stats returns the review progress of a deal.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r)
	if !ok {
		return
	}

	s, err := h.sys.Stats(r.Context(), scope, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, s)
}

func (h *Handler) pathScope(w http.ResponseWriter, r *http.Request) (auth.Scope, uuid.UUID, bool) {
	scope, ok := auth.Require(w, r, h.logger)
	if !ok {
		return scope, uuid.Nil, false
	}

	id, err := uuid.Parse(r.PathValue("dealId"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return scope, uuid.Nil, false
	}
	return scope, id, true
}
