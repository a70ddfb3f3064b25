package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/internal/stock/service"
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/larder/larder-backend/pkg/httputil"
	"github.com/larder/larder-backend/pkg/logger"
)

// DeviationHandler handles reconciliation endpoints
type DeviationHandler struct {
	reconciler *service.ReconcileService
	logger     *logger.Logger
}

// NewDeviationHandler creates a new deviation handler
func NewDeviationHandler(reconciler *service.ReconcileService, log *logger.Logger) *DeviationHandler {
	return &DeviationHandler{
		reconciler: reconciler,
		logger:     log,
	}
}

// ReconcileRequest is the payload for an on-demand reconciliation run
type ReconcileRequest struct {
	PeriodStart time.Time `json:"period_start" validate:"required"`
	PeriodEnd   time.Time `json:"period_end" validate:"required"`
}

// AnnotateRequest carries investigation notes for a deviation record
type AnnotateRequest struct {
	Notes string `json:"notes" validate:"required,max=2000"`
}

// Reconcile runs reconciliation for the requested period
func (h *DeviationHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	records, err := h.reconciler.Reconcile(r.Context(), req.PeriodStart, req.PeriodEnd)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, records)
}

// Get gets a deviation record by ID
func (h *DeviationHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, err := h.reconciler.GetDeviation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, record)
}

// List lists deviation records
func (h *DeviationHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	filter := repository.DeviationFilter{
		IngredientID: r.URL.Query().Get("ingredient_id"),
		Status:       r.URL.Query().Get("status"),
	}
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			httputil.Error(w, errors.BadRequest("from must be RFC3339"))
			return
		}
		filter.From = &t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			httputil.Error(w, errors.BadRequest("to must be RFC3339"))
			return
		}
		filter.To = &t
	}

	records, total, err := h.reconciler.ListDeviations(r.Context(), filter, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, records, paginationMeta(page, perPage, total))
}

// Annotate appends investigation notes to a deviation record
func (h *DeviationHandler) Annotate(w http.ResponseWriter, r *http.Request) {
	var req AnnotateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	record, err := h.reconciler.AnnotateDeviation(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, record)
}
