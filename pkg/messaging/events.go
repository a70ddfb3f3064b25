package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Ledger events
	EventTransactionRecorded = "stock.transaction.recorded"

	// Delivery events
	EventDeliveryReceived = "stock.delivery.received"

	// Transfer events
	EventTransferCreated    = "stock.transfer.created"
	EventTransferDispatched = "stock.transfer.dispatched"
	EventTransferReceived   = "stock.transfer.received"
	EventTransferCancelled  = "stock.transfer.cancelled"

	// Reconciliation events
	EventDeviationFlagged = "stock.deviation.flagged"

	// Reorder events
	EventReorderAlert = "stock.reorder.alert"

	// Consumed from the sales side: theoretical usage per ingredient and
	// period, derived from recipes and units sold.
	EventTheoreticalUsageReported = "sales.usage.reported"
)

// Exchange names
const (
	ExchangeStockEvents = "stock.events"
	ExchangeSalesEvents = "sales.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Ledger Events

// TransactionRecordedEvent is published for every ledger append
type TransactionRecordedEvent struct {
	TransactionID string `json:"transaction_id"`
	IngredientID  string `json:"ingredient_id"`
	LocationID    string `json:"location_id"`
	Kind          string `json:"kind"`
	Quantity      string `json:"quantity"` // signed decimal string
	Reference     string `json:"reference,omitempty"`
}

// Delivery Events

// DeliveryReceivedEvent is published when a delivery is confirmed
type DeliveryReceivedEvent struct {
	DeliveryID    string `json:"delivery_id"`
	WarehouseID   string `json:"warehouse_id"`
	Supplier      string `json:"supplier"`
	InvoiceNumber string `json:"invoice_number"`
	LineCount     int    `json:"line_count"`
}

// Transfer Events

// TransferCreatedEvent is published when a transfer is created (stock reserved)
type TransferCreatedEvent struct {
	TransferID    string `json:"transfer_id"`
	SourceID      string `json:"source_id"`
	DestinationID string `json:"destination_id"`
	LineCount     int    `json:"line_count"`
}

// TransferDispatchedEvent is published when a transfer goes in transit
type TransferDispatchedEvent struct {
	TransferID string `json:"transfer_id"`
}

// TransferReceivedEvent is published when a transfer is received at its destination
type TransferReceivedEvent struct {
	TransferID    string `json:"transfer_id"`
	SourceID      string `json:"source_id"`
	DestinationID string `json:"destination_id"`
}

// TransferCancelledEvent is published when a transfer is cancelled
type TransferCancelledEvent struct {
	TransferID string `json:"transfer_id"`
	FromStatus string `json:"from_status"`
}

// Reconciliation Events

// DeviationFlaggedEvent is published for every warning or critical deviation record
type DeviationFlaggedEvent struct {
	DeviationID  string    `json:"deviation_id"`
	IngredientID string    `json:"ingredient_id"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	Deviation    string    `json:"deviation"`     // signed decimal string
	DeviationPct string    `json:"deviation_pct"` // decimal string
	Status       string    `json:"status"`
	Type         string    `json:"type"`
}

// Reorder Events

// ReorderAlertEvent is published when projected on-hand falls below the
// ingredient's reorder threshold
type ReorderAlertEvent struct {
	IngredientID string `json:"ingredient_id"`
	Name         string `json:"name"`
	OnHand       string `json:"on_hand"`   // decimal string
	Threshold    string `json:"threshold"` // decimal string
	Unit         string `json:"unit"`
}

// Sales Events (consumed)

// TheoreticalUsageReportedEvent carries the expected consumption of one
// ingredient over a period, computed by the sales side from recipes and
// units sold. The stock service stores it verbatim for reconciliation.
type TheoreticalUsageReportedEvent struct {
	IngredientID string    `json:"ingredient_id"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	Quantity     string    `json:"quantity"` // decimal string, ingredient unit
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
