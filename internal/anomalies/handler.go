package anomalies

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/ledger"
	"github.com/JaimeStill/tally/pkg/handlers"
	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/routes"
)

// PeriodCommand names the P&L period to operate on by its start date.
type PeriodCommand struct {
	Period ledger.Date `json:"period"`
}

// Handler provides HTTP endpoints for anomalies and reconciliation.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "anomalies"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for anomaly endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/deals/{dealId}/anomalies", Handler: h.List},
			{Method: "POST", Pattern: "/deals/{dealId}/anomalies/detect", Handler: h.Detect},
			{Method: "POST", Pattern: "/deals/{dealId}/anomalies/reconcile", Handler: h.Reconcile},
			{Method: "GET", Pattern: "/anomalies/{id}", Handler: h.Find},
		},
	}
}

// List returns a paginated list of a deal's anomalies.
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

// Find returns a single anomaly.
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

// Detect runs anomaly detection for one period.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	scope, dealID, ok := h.pathScope(w, r, "dealId", ErrDealNotFound)
	if !ok {
		return
	}

	var cmd PeriodCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.sys.Detect(r.Context(), scope, dealID, cmd.Period.Time)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Reconcile compares one period's mapped P&L lines with the GL.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	scope, dealID, ok := h.pathScope(w, r, "dealId", ErrDealNotFound)
	if !ok {
		return
	}

	var cmd PeriodCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.sys.Reconcile(r.Context(), scope, dealID, cmd.Period.Time)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
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
