package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/larder/larder-backend/internal/stock/service"
	"github.com/larder/larder-backend/pkg/httputil"
	"github.com/larder/larder-backend/pkg/logger"
)

// DeliveryHandler handles delivery intake endpoints
type DeliveryHandler struct {
	intake *service.IntakeService
	logger *logger.Logger
}

// NewDeliveryHandler creates a new delivery handler
func NewDeliveryHandler(intake *service.IntakeService, log *logger.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		intake: intake,
		logger: log,
	}
}

// DeliveryLineRequest is one line of an incoming delivery
type DeliveryLineRequest struct {
	IngredientID     string          `json:"ingredient_id" validate:"required"`
	QuantityOrdered  decimal.Decimal `json:"quantity_ordered"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
}

// CreateDeliveryRequest is the payload for booking or drafting a delivery
type CreateDeliveryRequest struct {
	Supplier      string                `json:"supplier" validate:"required,max=200"`
	InvoiceNumber string                `json:"invoice_number" validate:"required,max=100"`
	InvoiceDate   time.Time             `json:"invoice_date"`
	TotalAmount   decimal.Decimal       `json:"total_amount"`
	Notes         string                `json:"notes" validate:"max=1000"`
	Draft         bool                  `json:"draft"`
	Lines         []DeliveryLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// Create books a delivery into stock, or stores it as a draft when requested
func (h *DeliveryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDeliveryRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	in := service.DeliveryInput{
		Supplier:      req.Supplier,
		InvoiceNumber: req.InvoiceNumber,
		InvoiceDate:   req.InvoiceDate,
		TotalAmount:   req.TotalAmount,
		Notes:         req.Notes,
	}
	if in.InvoiceDate.IsZero() {
		in.InvoiceDate = time.Now()
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, service.DeliveryLineInput{
			IngredientID:     line.IngredientID,
			QuantityOrdered:  line.QuantityOrdered,
			QuantityReceived: line.QuantityReceived,
			UnitPrice:        line.UnitPrice,
		})
	}

	var (
		delivery interface{}
		err      error
	)
	if req.Draft {
		delivery, err = h.intake.DraftDelivery(r.Context(), in)
	} else {
		delivery, err = h.intake.RecordDelivery(r.Context(), in)
	}
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, delivery)
}

// Confirm books a drafted delivery into stock
func (h *DeliveryHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	delivery, err := h.intake.ConfirmDelivery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, delivery)
}

// Get gets a delivery with its lines
func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	delivery, err := h.intake.GetDelivery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, delivery)
}

// List lists deliveries
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	deliveries, total, err := h.intake.ListDeliveries(r.Context(), r.URL.Query().Get("status"), page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, deliveries, paginationMeta(page, perPage, total))
}
