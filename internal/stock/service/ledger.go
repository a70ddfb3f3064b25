package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/larder/larder-backend/internal/stock/events"
	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/larder/larder-backend/pkg/logger"
)

// CatalogLookup resolves ingredient references against the catalog.
// *repository.IngredientRepository satisfies it.
type CatalogLookup interface {
	Exists(ctx context.Context, id string) (bool, error)
	GetByID(ctx context.Context, id string) (*repository.Ingredient, error)
}

// TransactionStore is the ledger append and projection surface.
// *repository.TransactionRepository satisfies it.
type TransactionStore interface {
	Create(ctx context.Context, txn *repository.InventoryTransaction) error
	GetByID(ctx context.Context, id string) (*repository.InventoryTransaction, error)
	List(ctx context.Context, filter repository.TransactionFilter, page, perPage int) ([]*repository.InventoryTransaction, int64, error)
	ProjectStock(ctx context.Context, ingredientID, locationID string, asOf time.Time) (decimal.Decimal, error)
	OnHandAll(ctx context.Context, locationID string, asOf time.Time) ([]*repository.StockLevel, error)
}

// LedgerService owns the append-only inventory ledger. Every stock movement,
// whatever initiated it, becomes exactly one transaction here; stock levels
// only ever exist as projections over the history.
type LedgerService struct {
	catalog         CatalogLookup
	txns            TransactionStore
	publisher       *events.StockEventPublisher
	defaultLocation string
	logger          *logger.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	catalog CatalogLookup,
	txns TransactionStore,
	publisher *events.StockEventPublisher,
	defaultLocation string,
	log *logger.Logger,
) *LedgerService {
	return &LedgerService{
		catalog:         catalog,
		txns:            txns,
		publisher:       publisher,
		defaultLocation: defaultLocation,
		logger:          log,
	}
}

// RecordTransactionInput carries one movement to append. Quantity follows
// the caller-facing convention of each kind: positive magnitudes for
// delivery_in, transfer_in, transfer_out and consumption, an explicit
// signed value for manual_adjustment.
type RecordTransactionInput struct {
	IngredientID string
	LocationID   string
	Kind         repository.MovementKind
	Quantity     decimal.Decimal
	Reference    string
	Reason       string
}

// RecordTransaction validates and appends a single ledger transaction.
func (s *LedgerService) RecordTransaction(ctx context.Context, in RecordTransactionInput) (*repository.InventoryTransaction, error) {
	if !in.Kind.Valid() {
		return nil, errors.Validation(map[string]string{"kind": "unknown movement kind: " + string(in.Kind)})
	}

	quantity, err := in.Kind.Normalize(in.Quantity)
	if err != nil {
		return nil, err
	}

	exists, err := s.catalog.Exists(ctx, in.IngredientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.UnknownIngredient(in.IngredientID)
	}

	locationID := in.LocationID
	if locationID == "" {
		locationID = s.defaultLocation
	}

	txn := &repository.InventoryTransaction{
		IngredientID: in.IngredientID,
		LocationID:   locationID,
		Kind:         in.Kind,
		Quantity:     quantity,
		Reference:    in.Reference,
		Reason:       in.Reason,
	}

	if err := s.txns.Create(ctx, txn); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("transaction_id", txn.ID).
		Str("ingredient_id", txn.IngredientID).
		Str("kind", string(txn.Kind)).
		Str("quantity", txn.Quantity.String()).
		Msg("ledger transaction recorded")

	s.publisher.PublishTransactionRecorded(ctx, txn)

	return txn, nil
}

// GetTransaction returns a single ledger entry
func (s *LedgerService) GetTransaction(ctx context.Context, id string) (*repository.InventoryTransaction, error) {
	return s.txns.GetByID(ctx, id)
}

// ListTransactions lists ledger entries, newest first
func (s *LedgerService) ListTransactions(ctx context.Context, filter repository.TransactionFilter, page, perPage int) ([]*repository.InventoryTransaction, int64, error) {
	return s.txns.List(ctx, filter, page, perPage)
}

// ProjectStock derives one ingredient's stock at a location by summing its
// history up to asOf. A nil asOf means now.
func (s *LedgerService) ProjectStock(ctx context.Context, ingredientID, locationID string, asOf *time.Time) (decimal.Decimal, error) {
	exists, err := s.catalog.Exists(ctx, ingredientID)
	if err != nil {
		return decimal.Zero, err
	}
	if !exists {
		return decimal.Zero, errors.UnknownIngredient(ingredientID)
	}

	if locationID == "" {
		locationID = s.defaultLocation
	}
	at := time.Now()
	if asOf != nil {
		at = *asOf
	}

	return s.txns.ProjectStock(ctx, ingredientID, locationID, at)
}

// OnHand projects stock for every ingredient with history at a location.
// A nil asOf means now.
func (s *LedgerService) OnHand(ctx context.Context, locationID string, asOf *time.Time) ([]*repository.StockLevel, error) {
	if locationID == "" {
		locationID = s.defaultLocation
	}
	at := time.Now()
	if asOf != nil {
		at = *asOf
	}
	return s.txns.OnHandAll(ctx, locationID, at)
}
