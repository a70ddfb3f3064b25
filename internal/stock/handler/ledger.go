package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/internal/stock/service"
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/larder/larder-backend/pkg/httputil"
	"github.com/larder/larder-backend/pkg/logger"
)

// LedgerHandler handles ledger and stock projection endpoints
type LedgerHandler struct {
	ledger       *service.LedgerService
	reservations *service.ReservationManager
	logger       *logger.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(ledger *service.LedgerService, reservations *service.ReservationManager, log *logger.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger:       ledger,
		reservations: reservations,
		logger:       log,
	}
}

// RecordTransactionRequest is the payload for a manual ledger append
type RecordTransactionRequest struct {
	IngredientID string          `json:"ingredient_id" validate:"required"`
	LocationID   string          `json:"location_id"`
	Kind         string          `json:"kind" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	Reference    string          `json:"reference" validate:"max=200"`
	Reason       string          `json:"reason" validate:"max=500"`
}

// StockResponse is the projection payload for one ingredient
type StockResponse struct {
	IngredientID string          `json:"ingredient_id"`
	LocationID   string          `json:"location_id"`
	OnHand       decimal.Decimal `json:"on_hand"`
	Reserved     decimal.Decimal `json:"reserved"`
	Available    decimal.Decimal `json:"available"`
	AsOf         time.Time       `json:"as_of"`
}

// Record appends one movement to the ledger
func (h *LedgerHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req RecordTransactionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	txn, err := h.ledger.RecordTransaction(r.Context(), service.RecordTransactionInput{
		IngredientID: req.IngredientID,
		LocationID:   req.LocationID,
		Kind:         repository.MovementKind(req.Kind),
		Quantity:     req.Quantity,
		Reference:    req.Reference,
		Reason:       req.Reason,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, txn)
}

// Get returns a single ledger transaction
func (h *LedgerHandler) Get(w http.ResponseWriter, r *http.Request) {
	txn, err := h.ledger.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, txn)
}

// List lists ledger transactions, newest first
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	filter := repository.TransactionFilter{
		IngredientID: r.URL.Query().Get("ingredient_id"),
		LocationID:   r.URL.Query().Get("location_id"),
		Kind:         repository.MovementKind(r.URL.Query().Get("kind")),
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

	txns, total, err := h.ledger.ListTransactions(r.Context(), filter, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, txns, paginationMeta(page, perPage, total))
}

// Stock projects one ingredient's stock, optionally at a historical point via
// the as_of query parameter
func (h *LedgerHandler) Stock(w http.ResponseWriter, r *http.Request) {
	ingredientID := chi.URLParam(r, "id")
	locationID := r.URL.Query().Get("location_id")

	var asOf *time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.Error(w, errors.BadRequest("as_of must be RFC3339"))
			return
		}
		asOf = &t
	}

	onHand, err := h.ledger.ProjectStock(r.Context(), ingredientID, locationID, asOf)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	resp := StockResponse{
		IngredientID: ingredientID,
		LocationID:   locationID,
		OnHand:       onHand,
		AsOf:         time.Now(),
	}
	if asOf != nil {
		resp.AsOf = *asOf
	}

	// Reservations exist only in the present tense, and only at the warehouse.
	if asOf == nil && locationID == "" {
		resp.Reserved = h.reservations.Reserved(ingredientID)
		resp.Available = onHand.Sub(resp.Reserved)
	} else {
		resp.Available = onHand
	}

	httputil.JSON(w, http.StatusOK, resp)
}

// OnHand projects current stock for every ingredient at a location
func (h *LedgerHandler) OnHand(w http.ResponseWriter, r *http.Request) {
	var asOf *time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.Error(w, errors.BadRequest("as_of must be RFC3339"))
			return
		}
		asOf = &t
	}

	levels, err := h.ledger.OnHand(r.Context(), r.URL.Query().Get("location_id"), asOf)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, levels)
}
