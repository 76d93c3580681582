package adjustments

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

// Handler provides HTTP endpoints for the adjustment workflow.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "adjustments"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for adjustment endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/deals/{dealId}/adjustments", Handler: h.List},
			{Method: "POST", Pattern: "/deals/{dealId}/adjustments", Handler: h.Create},
			{Method: "GET", Pattern: "/deals/{dealId}/bridge", Handler: h.Bridge},
			{Method: "POST", Pattern: "/anomalies/{id}/accept", Handler: h.AcceptSuggestion},
			{Method: "GET", Pattern: "/adjustments/{id}", Handler: h.Find},
			{Method: "PUT", Pattern: "/adjustments/{id}", Handler: h.Update},
			{Method: "POST", Pattern: "/adjustments/{id}/links", Handler: h.Link},
			{Method: "DELETE", Pattern: "/adjustments/{id}/links/{txId}", Handler: h.Unlink},
			{Method: "POST", Pattern: "/adjustments/{id}/transition", Handler: h.Transition},
			{Method: "POST", Pattern: "/adjustments/{id}/reopen", Handler: h.Reopen},
		},
	}
}

// List returns a paginated list of a deal's adjustments.
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

// Find returns a single adjustment with its GL links.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r, "id", ErrNotFound)
	if !ok {
		return
	}

	a, err := h.sys.Find(r.Context(), scope, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, a)
}

// Create adds a draft adjustment to a deal.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	scope, dealID, ok := h.pathScope(w, r, "dealId", ErrDealNotFound)
	if !ok {
		return
	}

	var cmd CreateCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	a, err := h.sys.Create(r.Context(), scope, dealID, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, a)
}

// Update edits a draft adjustment.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r, "id", ErrNotFound)
	if !ok {
		return
	}

	var cmd UpdateCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	a, err := h.sys.Update(r.Context(), scope, id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, a)
}

// Link attaches GL transactions to a draft adjustment.
func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r, "id", ErrNotFound)
	if !ok {
		return
	}

	var cmd LinkCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	a, err := h.sys.Link(r.Context(), scope, id, cmd.TransactionIDs)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, a)
}

// Unlink detaches one GL transaction from a draft adjustment.
func (h *Handler) Unlink(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r, "id", ErrNotFound)
	if !ok {
		return
	}

	txID, err := uuid.Parse(r.PathValue("txId"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrTransactionNotFound)
		return
	}

	a, err := h.sys.Unlink(r.Context(), scope, id, txID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, a)
}

// Transition moves an adjustment through review.
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

	a, err := h.sys.Transition(r.Context(), scope, id, cmd.Status, cmd.Notes)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, a)
}

// Reopen creates a new draft from a terminal adjustment.
func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r, "id", ErrNotFound)
	if !ok {
		return
	}

	a, created, err := h.sys.Reopen(r.Context(), scope, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, createdStatus(created), a)
}

// AcceptSuggestion turns an addback-candidate anomaly into a draft.
func (h *Handler) AcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r, "id", ErrAnomalyNotFound)
	if !ok {
		return
	}

	a, created, err := h.sys.AcceptSuggestion(r.Context(), scope, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, createdStatus(created), a)
}

// Bridge returns the EBITDA bridge of a deal.
func (h *Handler) Bridge(w http.ResponseWriter, r *http.Request) {
	scope, dealID, ok := h.pathScope(w, r, "dealId", ErrDealNotFound)
	if !ok {
		return
	}

	b, err := h.sys.Bridge(r.Context(), scope, dealID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, b)
}

func createdStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
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
