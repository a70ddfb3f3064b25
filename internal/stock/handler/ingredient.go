package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/pkg/httputil"
	"github.com/larder/larder-backend/pkg/logger"
)

// IngredientHandler handles ingredient catalog endpoints
type IngredientHandler struct {
	repo   *repository.IngredientRepository
	logger *logger.Logger
}

// NewIngredientHandler creates a new ingredient handler
func NewIngredientHandler(repo *repository.IngredientRepository, log *logger.Logger) *IngredientHandler {
	return &IngredientHandler{
		repo:   repo,
		logger: log,
	}
}

// CreateIngredientRequest is the payload for creating an ingredient
type CreateIngredientRequest struct {
	Name             string          `json:"name" validate:"required,min=2,max=200"`
	Unit             string          `json:"unit" validate:"required,max=20"`
	Category         string          `json:"category" validate:"max=100"`
	ReorderThreshold decimal.Decimal `json:"reorder_threshold"`
	LastUnitPrice    decimal.Decimal `json:"last_unit_price"`
}

// List lists catalog ingredients
func (h *IngredientHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	category := r.URL.Query().Get("category")

	ingredients, total, err := h.repo.List(r.Context(), page, perPage, category)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, ingredients, paginationMeta(page, perPage, total))
}

// Get gets an ingredient by ID
func (h *IngredientHandler) Get(w http.ResponseWriter, r *http.Request) {
	ingredient, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, ingredient)
}

// Create creates a new catalog ingredient
func (h *IngredientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateIngredientRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	ingredient := &repository.Ingredient{
		Name:             req.Name,
		Unit:             req.Unit,
		Category:         req.Category,
		ReorderThreshold: req.ReorderThreshold,
		LastUnitPrice:    req.LastUnitPrice,
		IsActive:         true,
	}
	if err := h.repo.Create(r.Context(), ingredient); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, ingredient)
}

// Update updates an ingredient
func (h *IngredientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ingredient, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req CreateIngredientRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	ingredient.Name = req.Name
	ingredient.Unit = req.Unit
	ingredient.Category = req.Category
	ingredient.ReorderThreshold = req.ReorderThreshold
	ingredient.LastUnitPrice = req.LastUnitPrice

	if err := h.repo.Update(r.Context(), ingredient); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, ingredient)
}

// Deactivate retires an ingredient from the catalog. Its ledger history stays.
func (h *IngredientHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// pagination reads page/per_page query parameters with the usual bounds
func pagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	return page, perPage
}

func paginationMeta(page, perPage int, total int64) *httputil.Meta {
	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	return &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}
}
