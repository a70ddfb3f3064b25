package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/larder/larder-backend/internal/stock/events"
	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/larder/larder-backend/pkg/logger"
)

// DeliveryStore persists deliveries and their ledger rows atomically.
// *repository.DeliveryRepository satisfies it.
type DeliveryStore interface {
	CreateReceived(ctx context.Context, d *repository.Delivery, txns []*repository.InventoryTransaction) error
	CreateDraft(ctx context.Context, d *repository.Delivery) error
	Confirm(ctx context.Context, id string, txns []*repository.InventoryTransaction) error
	GetByID(ctx context.Context, id string) (*repository.Delivery, error)
	List(ctx context.Context, status string, page, perPage int) ([]*repository.Delivery, int64, error)
}

// IntakeService books supplier deliveries into stock. A delivery is
// all-or-nothing: either the header, every line and every ledger row land
// together, or nothing is persisted at all.
type IntakeService struct {
	catalog     CatalogLookup
	deliveries  DeliveryStore
	publisher   *events.StockEventPublisher
	warehouseID string
	logger      *logger.Logger
}

// NewIntakeService creates a new intake service
func NewIntakeService(
	catalog CatalogLookup,
	deliveries DeliveryStore,
	publisher *events.StockEventPublisher,
	warehouseID string,
	log *logger.Logger,
) *IntakeService {
	return &IntakeService{
		catalog:     catalog,
		deliveries:  deliveries,
		publisher:   publisher,
		warehouseID: warehouseID,
		logger:      log,
	}
}

// DeliveryLineInput is one line of an incoming delivery
type DeliveryLineInput struct {
	IngredientID     string
	QuantityOrdered  decimal.Decimal
	QuantityReceived decimal.Decimal
	UnitPrice        decimal.Decimal
}

// DeliveryInput carries a supplier delivery to book or draft
type DeliveryInput struct {
	Supplier      string
	InvoiceNumber string
	InvoiceDate   time.Time
	TotalAmount   decimal.Decimal
	Notes         string
	Lines         []DeliveryLineInput
}

// RecordDelivery validates and books a received delivery. Each line with a
// non-zero received quantity becomes one delivery_in ledger transaction.
func (s *IntakeService) RecordDelivery(ctx context.Context, in DeliveryInput) (*repository.Delivery, error) {
	d, err := s.buildDelivery(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.requireReceivedLine(d); err != nil {
		return nil, err
	}
	d.Status = repository.DeliveryStatusReceived

	if err := s.deliveries.CreateReceived(ctx, d, s.ledgerRows(d)); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("delivery_id", d.ID).
		Str("supplier", d.Supplier).
		Str("invoice_number", d.InvoiceNumber).
		Int("lines", len(d.Lines)).
		Msg("delivery booked into stock")

	s.publisher.PublishDeliveryReceived(ctx, d)
	return d, nil
}

// DraftDelivery stores a delivery without touching the ledger. The stock
// moves only when the draft is confirmed.
func (s *IntakeService) DraftDelivery(ctx context.Context, in DeliveryInput) (*repository.Delivery, error) {
	d, err := s.buildDelivery(ctx, in)
	if err != nil {
		return nil, err
	}
	d.Status = repository.DeliveryStatusDraft

	if err := s.deliveries.CreateDraft(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ConfirmDelivery books a drafted delivery into stock
func (s *IntakeService) ConfirmDelivery(ctx context.Context, id string) (*repository.Delivery, error) {
	d, err := s.deliveries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != repository.DeliveryStatusDraft {
		return nil, errors.InvalidDelivery(fmt.Sprintf("delivery %s is %s, only drafts can be confirmed", id, d.Status))
	}
	if err := s.requireReceivedLine(d); err != nil {
		return nil, err
	}

	if err := s.deliveries.Confirm(ctx, id, s.ledgerRows(d)); err != nil {
		return nil, err
	}
	d.Status = repository.DeliveryStatusReceived

	s.logger.Info().Str("delivery_id", d.ID).Str("supplier", d.Supplier).Msg("draft delivery confirmed")

	s.publisher.PublishDeliveryReceived(ctx, d)
	return d, nil
}

// GetDelivery returns a delivery with its lines
func (s *IntakeService) GetDelivery(ctx context.Context, id string) (*repository.Delivery, error) {
	return s.deliveries.GetByID(ctx, id)
}

// ListDeliveries lists deliveries, optionally filtered by status
func (s *IntakeService) ListDeliveries(ctx context.Context, status string, page, perPage int) ([]*repository.Delivery, int64, error) {
	return s.deliveries.List(ctx, status, page, perPage)
}

// buildDelivery validates the input and shapes it into a repository delivery.
// The ingredient check runs before any write so a bad line rejects the whole
// document; the FK constraint backstops the race with a concurrent deactivation.
func (s *IntakeService) buildDelivery(ctx context.Context, in DeliveryInput) (*repository.Delivery, error) {
	if in.Supplier == "" {
		return nil, errors.InvalidDelivery("supplier is required")
	}
	if in.InvoiceNumber == "" {
		return nil, errors.InvalidDelivery("invoice number is required")
	}
	if len(in.Lines) == 0 {
		return nil, errors.InvalidDelivery("delivery has no lines")
	}

	d := &repository.Delivery{
		WarehouseID:   s.warehouseID,
		Supplier:      in.Supplier,
		InvoiceNumber: in.InvoiceNumber,
		InvoiceDate:   in.InvoiceDate,
		TotalAmount:   in.TotalAmount,
		Notes:         in.Notes,
	}

	for i, line := range in.Lines {
		if line.IngredientID == "" {
			return nil, errors.InvalidDelivery(fmt.Sprintf("line %d: ingredient is required", i+1))
		}
		if line.QuantityReceived.IsNegative() || line.QuantityOrdered.IsNegative() {
			return nil, errors.InvalidDelivery(fmt.Sprintf("line %d: quantities cannot be negative", i+1))
		}
		if line.UnitPrice.IsNegative() {
			return nil, errors.InvalidDelivery(fmt.Sprintf("line %d: unit price cannot be negative", i+1))
		}

		exists, err := s.catalog.Exists(ctx, line.IngredientID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, errors.UnknownIngredient(line.IngredientID)
		}

		d.Lines = append(d.Lines, &repository.DeliveryLine{
			IngredientID:     line.IngredientID,
			QuantityOrdered:  line.QuantityOrdered,
			QuantityReceived: line.QuantityReceived,
			UnitPrice:        line.UnitPrice,
		})
	}

	return d, nil
}

func (s *IntakeService) requireReceivedLine(d *repository.Delivery) error {
	for _, line := range d.Lines {
		if line.QuantityReceived.IsPositive() {
			return nil
		}
	}
	return errors.InvalidDelivery("delivery has no received quantities")
}

// ledgerRows builds one delivery_in transaction per line actually received
func (s *IntakeService) ledgerRows(d *repository.Delivery) []*repository.InventoryTransaction {
	var txns []*repository.InventoryTransaction
	for _, line := range d.Lines {
		if !line.QuantityReceived.IsPositive() {
			continue
		}
		txns = append(txns, &repository.InventoryTransaction{
			IngredientID: line.IngredientID,
			LocationID:   d.WarehouseID,
			Kind:         repository.KindDeliveryIn,
			Quantity:     line.QuantityReceived,
			Reference:    d.InvoiceNumber,
			Reason:       "delivery from " + d.Supplier,
		})
	}
	return txns
}
