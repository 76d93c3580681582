package mappings

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/pkg/handlers"
	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/routes"
)

// Handler provides HTTP endpoints for classification and mapping review.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "mappings"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for mapping endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/deals/{dealId}/mappings", Handler: h.List},
			{Method: "GET", Pattern: "/deals/{dealId}/mappings/status", Handler: h.Status},
			{Method: "POST", Pattern: "/deals/{dealId}/mappings/classify", Handler: h.ClassifyDeal},
			{Method: "POST", Pattern: "/deals/{dealId}/mappings/bulk-approve", Handler: h.BulkApprove},
			{Method: "POST", Pattern: "/accounts/{id}/classify", Handler: h.Classify},
			{Method: "GET", Pattern: "/mappings/{id}", Handler: h.Find},
			{Method: "POST", Pattern: "/mappings/{id}/approve", Handler: h.Approve},
			{Method: "POST", Pattern: "/mappings/{id}/reject", Handler: h.Reject},
			{Method: "POST", Pattern: "/mappings/{id}/override", Handler: h.Override},
			{Method: "POST", Pattern: "/mappings/{id}/remap", Handler: h.Remap},
		},
	}
}

// List returns a paginated list of a deal's mappings.
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

// Find returns a single mapping.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r, "id", ErrNotFound)
	if !ok {
		return
	}

	m, err := h.sys.Find(r.Context(), scope, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, m)
}

// Status returns the review progress of a deal.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	scope, dealID, ok := h.pathScope(w, r, "dealId", ErrDealNotFound)
	if !ok {
		return
	}

	summary, err := h.sys.Status(r.Context(), scope, dealID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, summary)
}

// Classify proposes a COA for one client account. ?force=true re-maps a
// reviewed mapping.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r, "id", ErrAccountNotFound)
	if !ok {
		return
	}

	result, err := h.sys.Classify(r.Context(), scope, id, force(r))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// ClassifyDeal classifies every client account of a deal.
func (h *Handler) ClassifyDeal(w http.ResponseWriter, r *http.Request) {
	scope, dealID, ok := h.pathScope(w, r, "dealId", ErrDealNotFound)
	if !ok {
		return
	}

	result, err := h.sys.ClassifyDeal(r.Context(), scope, dealID, force(r))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// BulkApprove approves the deal's green mappings at or above min_confidence.
func (h *Handler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	scope, dealID, ok := h.pathScope(w, r, "dealId", ErrDealNotFound)
	if !ok {
		return
	}

	cmd := BulkApproveCommand{MinConfidence: DefaultPolicy.GreenThreshold}
	if err := decodeOptional(r, &cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.sys.BulkApprove(r.Context(), scope, dealID, cmd.MinConfidence)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Approve accepts the proposed COA.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r, "id", ErrNotFound)
	if !ok {
		return
	}

	m, err := h.sys.Approve(r.Context(), scope, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, m)
}

// Reject declines the proposed COA.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r, "id", ErrNotFound)
	if !ok {
		return
	}

	var cmd RejectCommand
	if err := decodeOptional(r, &cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	m, err := h.sys.Reject(r.Context(), scope, id, cmd.Reason)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, m)
}

// Override assigns a COA manually and approves the mapping.
func (h *Handler) Override(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r, "id", ErrNotFound)
	if !ok {
		return
	}

	var cmd OverrideCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	m, err := h.sys.Override(r.Context(), scope, id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, m)
}

// Remap re-classifies the mapping's account from scratch.
func (h *Handler) Remap(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.pathScope(w, r, "id", ErrNotFound)
	if !ok {
		return
	}

	result, err := h.sys.Remap(r.Context(), scope, id)
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

func force(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	return v
}

// decodeOptional decodes a JSON body into v, leaving v untouched when the
// body is empty.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
