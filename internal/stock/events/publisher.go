package events

import (
	"context"

	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/pkg/logger"
	"github.com/larder/larder-backend/pkg/messaging"
)

// StockEventPublisher publishes stock-related events. A nil publisher is
// valid and drops everything, so tests and offline tools can skip the broker.
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new stock event publisher
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishTransactionRecorded publishes a ledger append event
func (p *StockEventPublisher) PublishTransactionRecorded(ctx context.Context, txn *repository.InventoryTransaction) {
	if p == nil {
		return
	}

	data := messaging.TransactionRecordedEvent{
		TransactionID: txn.ID,
		IngredientID:  txn.IngredientID,
		LocationID:    txn.LocationID,
		Kind:          string(txn.Kind),
		Quantity:      txn.Quantity.String(),
		Reference:     txn.Reference,
	}

	if err := p.publisher.Publish(ctx, messaging.EventTransactionRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("transaction_id", txn.ID).Msg("failed to publish transaction recorded event")
	}
}

// PublishDeliveryReceived publishes a delivery received event
func (p *StockEventPublisher) PublishDeliveryReceived(ctx context.Context, d *repository.Delivery) {
	if p == nil {
		return
	}

	data := messaging.DeliveryReceivedEvent{
		DeliveryID:    d.ID,
		WarehouseID:   d.WarehouseID,
		Supplier:      d.Supplier,
		InvoiceNumber: d.InvoiceNumber,
		LineCount:     len(d.Lines),
	}

	if err := p.publisher.Publish(ctx, messaging.EventDeliveryReceived, data); err != nil {
		p.logger.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to publish delivery received event")
	}
}

// PublishTransferCreated publishes a transfer created event
func (p *StockEventPublisher) PublishTransferCreated(ctx context.Context, t *repository.Transfer) {
	if p == nil {
		return
	}

	data := messaging.TransferCreatedEvent{
		TransferID:    t.ID,
		SourceID:      t.SourceWarehouseID,
		DestinationID: t.DestLocationID,
		LineCount:     len(t.Lines),
	}

	if err := p.publisher.Publish(ctx, messaging.EventTransferCreated, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", t.ID).Msg("failed to publish transfer created event")
	}
}

// PublishTransferDispatched publishes a transfer dispatched event
func (p *StockEventPublisher) PublishTransferDispatched(ctx context.Context, transferID string) {
	if p == nil {
		return
	}

	data := messaging.TransferDispatchedEvent{TransferID: transferID}

	if err := p.publisher.Publish(ctx, messaging.EventTransferDispatched, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", transferID).Msg("failed to publish transfer dispatched event")
	}
}

// PublishTransferReceived publishes a transfer received event
func (p *StockEventPublisher) PublishTransferReceived(ctx context.Context, t *repository.Transfer) {
	if p == nil {
		return
	}

	data := messaging.TransferReceivedEvent{
		TransferID:    t.ID,
		SourceID:      t.SourceWarehouseID,
		DestinationID: t.DestLocationID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventTransferReceived, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", t.ID).Msg("failed to publish transfer received event")
	}
}

// PublishTransferCancelled publishes a transfer cancelled event
func (p *StockEventPublisher) PublishTransferCancelled(ctx context.Context, transferID, fromStatus string) {
	if p == nil {
		return
	}

	data := messaging.TransferCancelledEvent{
		TransferID: transferID,
		FromStatus: fromStatus,
	}

	if err := p.publisher.Publish(ctx, messaging.EventTransferCancelled, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", transferID).Msg("failed to publish transfer cancelled event")
	}
}

// PublishDeviationFlagged publishes a deviation flagged event for a warning
// or critical record
func (p *StockEventPublisher) PublishDeviationFlagged(ctx context.Context, rec *repository.DeviationRecord) {
	if p == nil {
		return
	}

	data := messaging.DeviationFlaggedEvent{
		DeviationID:  rec.ID,
		IngredientID: rec.IngredientID,
		PeriodStart:  rec.PeriodStart,
		PeriodEnd:    rec.PeriodEnd,
		Deviation:    rec.Deviation.String(),
		DeviationPct: rec.DeviationPct.String(),
		Status:       rec.Status,
		Type:         rec.Type,
	}

	if err := p.publisher.Publish(ctx, messaging.EventDeviationFlagged, data); err != nil {
		p.logger.Error().Err(err).Str("deviation_id", rec.ID).Msg("failed to publish deviation flagged event")
	}
}

// PublishReorderAlert publishes a reorder alert for an ingredient whose
// projected on-hand fell below its threshold
func (p *StockEventPublisher) PublishReorderAlert(ctx context.Context, ing *repository.Ingredient, onHand string) {
	if p == nil {
		return
	}

	data := messaging.ReorderAlertEvent{
		IngredientID: ing.ID,
		Name:         ing.Name,
		OnHand:       onHand,
		Threshold:    ing.ReorderThreshold.String(),
		Unit:         ing.Unit,
	}

	if err := p.publisher.Publish(ctx, messaging.EventReorderAlert, data); err != nil {
		p.logger.Error().Err(err).Str("ingredient_id", ing.ID).Msg("failed to publish reorder alert event")
	}
}
