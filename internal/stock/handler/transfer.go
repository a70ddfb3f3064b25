package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/larder/larder-backend/internal/stock/service"
	"github.com/larder/larder-backend/pkg/httputil"
	"github.com/larder/larder-backend/pkg/logger"
)

// TransferHandler handles transfer workflow endpoints
type TransferHandler struct {
	transfers *service.TransferService
	logger    *logger.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(transfers *service.TransferService, log *logger.Logger) *TransferHandler {
	return &TransferHandler{
		transfers: transfers,
		logger:    log,
	}
}

// TransferItemRequest is one requested line of a transfer
type TransferItemRequest struct {
	IngredientID string          `json:"ingredient_id" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// CreateTransferRequest is the payload for creating a transfer. Draft
// transfers are stored without reserving stock until submitted.
type CreateTransferRequest struct {
	DestLocationID string                `json:"dest_location_id" validate:"required,max=100"`
	Items          []TransferItemRequest `json:"items" validate:"required,min=1,dive"`
	Draft          bool                  `json:"draft"`
}

// ReceiveTransferRequest optionally overrides received quantities per ingredient
type ReceiveTransferRequest struct {
	Received map[string]decimal.Decimal `json:"received"`
}

// Create creates a transfer and reserves its stock
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTransferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	items := make([]service.TransferItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.TransferItemInput{
			IngredientID: item.IngredientID,
			Quantity:     item.Quantity,
		})
	}

	transfer, err := h.transfers.CreateTransfer(r.Context(), req.DestLocationID, items, req.Draft)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, transfer)
}

// Submit turns a draft transfer pending and reserves its stock
func (h *TransferHandler) Submit(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.transfers.SubmitTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, transfer)
}

// Dispatch moves a pending transfer in transit
func (h *TransferHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.transfers.Dispatch(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	transfer, err := h.transfers.GetTransfer(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, transfer)
}

// Receive completes a transfer and books its stock movements
func (h *TransferHandler) Receive(w http.ResponseWriter, r *http.Request) {
	// The body is optional; its absence means everything arrived as ordered.
	var req ReceiveTransferRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
	}

	transfer, err := h.transfers.ReceiveTransfer(r.Context(), chi.URLParam(r, "id"), req.Received)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, transfer)
}

// Cancel cancels an unreceived transfer and releases its reservations
func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.transfers.CancelTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, transfer)
}

// Get gets a transfer with its lines
func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.transfers.GetTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, transfer)
}

// List lists transfers
func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	transfers, total, err := h.transfers.ListTransfers(r.Context(), r.URL.Query().Get("status"), page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, transfers, paginationMeta(page, perPage, total))
}
