package consumers

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/pkg/logger"
	"github.com/larder/larder-backend/pkg/messaging"
)

// UsageReportStore persists theoretical usage reports.
// *repository.UsageRepository satisfies it.
type UsageReportStore interface {
	Upsert(ctx context.Context, u *repository.TheoreticalUsage) error
}

// UsageEventHandler processes theoretical usage events from the sales side.
// Kept separate from the broker plumbing so the handling logic is testable
// without a running RabbitMQ.
type UsageEventHandler struct {
	usage  UsageReportStore
	logger *logger.Logger
}

// NewUsageEventHandler creates a new usage event handler
func NewUsageEventHandler(usage UsageReportStore, log *logger.Logger) *UsageEventHandler {
	return &UsageEventHandler{usage: usage, logger: log}
}

// HandleEvent processes a sales event and stores the reported usage
func (h *UsageEventHandler) HandleEvent(ctx context.Context, event *messaging.Event) error {
	switch event.Type {
	case messaging.EventTheoreticalUsageReported:
		return h.handleUsageReported(ctx, event)
	default:
		h.logger.Warn().Str("event_type", event.Type).Msg("unknown event type received")
		return nil
	}
}

func (h *UsageEventHandler) handleUsageReported(ctx context.Context, event *messaging.Event) error {
	var data messaging.TheoreticalUsageReportedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	quantity, err := decimal.NewFromString(data.Quantity)
	if err != nil {
		// A malformed quantity will never parse on retry, drop it loudly.
		h.logger.Error().
			Str("ingredient_id", data.IngredientID).
			Str("quantity", data.Quantity).
			Msg("discarding usage report with unparseable quantity")
		return nil
	}
	if quantity.IsNegative() {
		h.logger.Error().
			Str("ingredient_id", data.IngredientID).
			Str("quantity", data.Quantity).
			Msg("discarding usage report with negative quantity")
		return nil
	}

	h.logger.Info().
		Str("ingredient_id", data.IngredientID).
		Time("period_start", data.PeriodStart).
		Time("period_end", data.PeriodEnd).
		Str("quantity", quantity.String()).
		Msg("received theoretical usage report")

	return h.usage.Upsert(ctx, &repository.TheoreticalUsage{
		IngredientID: data.IngredientID,
		PeriodStart:  data.PeriodStart,
		PeriodEnd:    data.PeriodEnd,
		Quantity:     quantity,
	})
}

// SalesUsageConsumer subscribes the usage event handler to the sales event
// stream. The reports are stored verbatim; reconciliation reads them later
// when it compares theoretical against actual usage.
type SalesUsageConsumer struct {
	consumer *messaging.Consumer
	handler  *UsageEventHandler
}

// NewSalesUsageConsumer creates a new sales usage consumer
func NewSalesUsageConsumer(rmq *messaging.RabbitMQ, usage UsageReportStore, log *logger.Logger) (*SalesUsageConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "stock-service.sales-usage", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeSalesEvents, "sales.usage.#"); err != nil {
		return nil, err
	}

	handler := NewUsageEventHandler(usage, log)
	consumer.RegisterHandler(messaging.EventTheoreticalUsageReported, handler.HandleEvent)

	return &SalesUsageConsumer{consumer: consumer, handler: handler}, nil
}

// Start starts consuming messages
func (c *SalesUsageConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}
