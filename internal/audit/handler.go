package audit

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

// Handler provides HTTP endpoints for open items.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "audit"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for open item endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/deals/{dealId}/open-items", Handler: h.List},
			{Method: "POST", Pattern: "/deals/{dealId}/open-items/scan", Handler: h.Scan},
			{Method: "GET", Pattern: "/open-items/{id}", Handler: h.Find},
			{Method: "POST", Pattern: "/open-items/{id}/transition", Handler: h.Transition},
		},
	}
}

// Scan flags the deal's GL transactions and returns the new open items.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	scope, dealID, ok := h.pathScope(w, r, "dealId", ErrDealNotFound)
	if !ok {
		return
	}

	result, err := h.sys.Scan(r.Context(), scope, dealID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// List returns a paginated list of a deal's open items.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, dealID, ok := h.pathScope(w, r, "dealId", ErrDealNotFound)
	if !ok {
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

// Find returns a single open item.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r, "id", ErrNotFound)
	if !ok {
		return
	}

	o, err := h.sys.Find(r.Context(), scope, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, o)
}

// Transition marks an open item sent or resolved.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r, "id", ErrNotFound)
	if !ok {
		return
	}

	var cmd TransitionCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	o, err := h.sys.Transition(r.Context(), scope, id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, o)
}

func (h *Handler) pathScope(w http.ResponseWriter, r *http.Request, name string, invalid error) (auth.Scope, uuid.UUID, bool) {
	scope, ok := auth.Require(w, r, h.logger)
	if !ok {
		return scope, uuid.Nil, false
	}

	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, invalid)
		return scope, uuid.Nil, false
	}
	return scope, id, true
}
