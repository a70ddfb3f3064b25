package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/larder/larder-backend/internal/stock/events"
	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/larder/larder-backend/pkg/logger"
)

// TransferStore persists transfers and their status transitions.
// *repository.TransferRepository satisfies it.
type TransferStore interface {
	Create(ctx context.Context, t *repository.Transfer) error
	GetByID(ctx context.Context, id string) (*repository.Transfer, error)
	List(ctx context.Context, status string, page, perPage int) ([]*repository.Transfer, int64, error)
	UpdateStatus(ctx context.Context, id, fromStatus, toStatus string) error
	CancelFrom(ctx context.Context, id string, fromStatuses []string) (string, error)
	Receive(ctx context.Context, t *repository.Transfer, txns []*repository.InventoryTransaction) error
}

// Reserver holds and releases warehouse stock for open transfers.
// *ReservationManager satisfies it.
type Reserver interface {
	Reserve(ctx context.Context, ingredientID string, quantity decimal.Decimal) error
	Release(ingredientID string, quantity decimal.Decimal)
}

// TransferService drives the warehouse-to-location transfer lifecycle:
// pending -> in_transit -> received, with an optional draft stage before
// pending and cancellation possible until the goods are received. A pending
// or in-transit transfer holds a reservation for every line; drafts hold
// nothing until submitted. Receiving or cancelling releases the holds
// exactly once, which the guarded status transitions in the store enforce.
type TransferService struct {
	catalog      CatalogLookup
	transfers    TransferStore
	reservations Reserver
	publisher    *events.StockEventPublisher
	warehouseID  string
	logger       *logger.Logger
}

// NewTransferService creates a new transfer service
func NewTransferService(
	catalog CatalogLookup,
	transfers TransferStore,
	reservations Reserver,
	publisher *events.StockEventPublisher,
	warehouseID string,
	log *logger.Logger,
) *TransferService {
	return &TransferService{
		catalog:      catalog,
		transfers:    transfers,
		reservations: reservations,
		publisher:    publisher,
		warehouseID:  warehouseID,
		logger:       log,
	}
}

// TransferItemInput is one requested line of a transfer
type TransferItemInput struct {
	IngredientID string
	Quantity     decimal.Decimal
}

// CreateTransfer validates the request, reserves every line against the
// warehouse and persists the transfer as pending. If any line cannot be
// reserved, or the insert fails, every hold taken so far is rolled back and
// nothing is persisted. With draft set, the transfer is stored without
// taking any reservations; SubmitTransfer turns it pending later.
func (s *TransferService) CreateTransfer(ctx context.Context, destLocationID string, items []TransferItemInput, draft bool) (*repository.Transfer, error) {
	if destLocationID == "" {
		return nil, errors.InvalidTransfer("destination location is required")
	}
	if destLocationID == s.warehouseID {
		return nil, errors.InvalidTransfer("destination cannot be the source warehouse")
	}
	if len(items) == 0 {
		return nil, errors.InvalidTransfer("transfer has no items")
	}

	status := repository.TransferStatusPending
	if draft {
		status = repository.TransferStatusDraft
	}
	t := &repository.Transfer{
		SourceWarehouseID: s.warehouseID,
		DestLocationID:    destLocationID,
		Status:            status,
	}

	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if item.IngredientID == "" {
			return nil, errors.InvalidTransfer(fmt.Sprintf("item %d: ingredient is required", i+1))
		}
		if seen[item.IngredientID] {
			return nil, errors.InvalidTransfer(fmt.Sprintf("item %d: duplicate ingredient %s", i+1, item.IngredientID))
		}
		seen[item.IngredientID] = true
		if !item.Quantity.IsPositive() {
			return nil, errors.InvalidTransfer(fmt.Sprintf("item %d: quantity must be positive", i+1))
		}

		exists, err := s.catalog.Exists(ctx, item.IngredientID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, errors.UnknownIngredient(item.IngredientID)
		}

		t.Lines = append(t.Lines, &repository.TransferLine{
			IngredientID:    item.IngredientID,
			QuantityOrdered: item.Quantity,
		})
	}

	if draft {
		if err := s.transfers.Create(ctx, t); err != nil {
			return nil, err
		}

		s.logger.Info().
			Str("transfer_id", t.ID).
			Str("destination", t.DestLocationID).
			Int("lines", len(t.Lines)).
			Msg("draft transfer created, no stock reserved")
		return t, nil
	}

	rollback, err := s.reserveLines(ctx, t.Lines)
	if err != nil {
		return nil, err
	}

	if err := s.transfers.Create(ctx, t); err != nil {
		rollback()
		return nil, err
	}

	s.logger.Info().
		Str("transfer_id", t.ID).
		Str("destination", t.DestLocationID).
		Int("lines", len(t.Lines)).
		Msg("transfer created, stock reserved")

	s.publisher.PublishTransferCreated(ctx, t)
	return t, nil
}

// reserveLines takes a hold for every line, rolling back the holds already
// taken if any single one fails. The returned rollback releases them all.
func (s *TransferService) reserveLines(ctx context.Context, lines []*repository.TransferLine) (func(), error) {
	var reserved []*repository.TransferLine
	rollback := func() {
		for _, line := range reserved {
			s.reservations.Release(line.IngredientID, line.QuantityOrdered)
		}
	}

	for _, line := range lines {
		if err := s.reservations.Reserve(ctx, line.IngredientID, line.QuantityOrdered); err != nil {
			rollback()
			return nil, err
		}
		reserved = append(reserved, line)
	}
	return rollback, nil
}

// SubmitTransfer turns a draft into a pending transfer, taking the holds the
// draft skipped. The guarded transition keeps a concurrent submit from
// reserving the same draft twice; the loser's holds are rolled back.
func (s *TransferService) SubmitTransfer(ctx context.Context, id string) (*repository.Transfer, error) {
	t, err := s.transfers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != repository.TransferStatusDraft {
		return nil, errors.InvalidTransfer(fmt.Sprintf("transfer %s is %s, only drafts can be submitted", id, t.Status))
	}

	rollback, err := s.reserveLines(ctx, t.Lines)
	if err != nil {
		return nil, err
	}

	if err := s.transfers.UpdateStatus(ctx, id, repository.TransferStatusDraft, repository.TransferStatusPending); err != nil {
		rollback()
		return nil, err
	}
	t.Status = repository.TransferStatusPending

	s.logger.Info().
		Str("transfer_id", t.ID).
		Int("lines", len(t.Lines)).
		Msg("draft transfer submitted, stock reserved")

	s.publisher.PublishTransferCreated(ctx, t)
	return t, nil
}

// Dispatch moves a pending transfer in transit. The reservation stays in place
// until the goods arrive or the transfer is cancelled.
func (s *TransferService) Dispatch(ctx context.Context, id string) error {
	if err := s.transfers.UpdateStatus(ctx, id, repository.TransferStatusPending, repository.TransferStatusInTransit); err != nil {
		return err
	}

	s.logger.Info().Str("transfer_id", id).Msg("transfer dispatched")
	s.publisher.PublishTransferDispatched(ctx, id)
	return nil
}

// ReceiveTransfer completes a pending or in-transit transfer. Received
// quantities default to the ordered amount and may be overridden per
// ingredient. Each line with a non-zero receipt produces a transfer_out at
// the warehouse and a matching transfer_in at the destination, written
// atomically with the status change; the reservations are then released in
// full regardless of how much actually arrived.
func (s *TransferService) ReceiveTransfer(ctx context.Context, id string, received map[string]decimal.Decimal) (*repository.Transfer, error) {
	t, err := s.transfers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != repository.TransferStatusPending && t.Status != repository.TransferStatusInTransit {
		return nil, errors.InvalidTransfer(fmt.Sprintf("transfer %s is %s and cannot be received", id, t.Status))
	}

	var txns []*repository.InventoryTransaction
	for _, line := range t.Lines {
		qty := line.QuantityOrdered
		if override, ok := received[line.IngredientID]; ok {
			if override.IsNegative() {
				return nil, errors.InvalidQuantity("received quantity cannot be negative")
			}
			qty = override
		}
		line.QuantityReceived = qty

		if qty.IsZero() {
			continue
		}
		txns = append(txns,
			&repository.InventoryTransaction{
				IngredientID: line.IngredientID,
				LocationID:   t.SourceWarehouseID,
				Kind:         repository.KindTransferOut,
				Quantity:     qty.Neg(),
				Reference:    t.ID,
				Reason:       "transfer to " + t.DestLocationID,
			},
			&repository.InventoryTransaction{
				IngredientID: line.IngredientID,
				LocationID:   t.DestLocationID,
				Kind:         repository.KindTransferIn,
				Quantity:     qty,
				Reference:    t.ID,
				Reason:       "transfer from " + t.SourceWarehouseID,
			},
		)
	}

	if err := s.transfers.Receive(ctx, t, txns); err != nil {
		return nil, err
	}

	for _, line := range t.Lines {
		s.reservations.Release(line.IngredientID, line.QuantityOrdered)
	}

	s.logger.Info().
		Str("transfer_id", t.ID).
		Str("destination", t.DestLocationID).
		Int("ledger_rows", len(txns)).
		Msg("transfer received")

	s.publisher.PublishTransferReceived(ctx, t)
	return t, nil
}

// CancelTransfer cancels a transfer that has not been received yet and
// returns its holds to the available pool. Received transfers already moved
// the stock and stay final.
func (s *TransferService) CancelTransfer(ctx context.Context, id string) (*repository.Transfer, error) {
	t, err := s.transfers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	fromStatus, err := s.transfers.CancelFrom(ctx, id, []string{
		repository.TransferStatusDraft,
		repository.TransferStatusPending,
		repository.TransferStatusInTransit,
	})
	if err != nil {
		return nil, err
	}

	// Drafts never held a reservation.
	if fromStatus != repository.TransferStatusDraft {
		for _, line := range t.Lines {
			s.reservations.Release(line.IngredientID, line.QuantityOrdered)
		}
	}
	t.Status = repository.TransferStatusCancelled

	s.logger.Info().Str("transfer_id", id).Str("from_status", fromStatus).Msg("transfer cancelled")

	s.publisher.PublishTransferCancelled(ctx, id, fromStatus)
	return t, nil
}

// GetTransfer returns a transfer with its lines
func (s *TransferService) GetTransfer(ctx context.Context, id string) (*repository.Transfer, error) {
	return s.transfers.GetByID(ctx, id)
}

// ListTransfers lists transfers, optionally filtered by status
func (s *TransferService) ListTransfers(ctx context.Context, status string, page, perPage int) ([]*repository.Transfer, int64, error) {
	return s.transfers.List(ctx, status, page, perPage)
}
