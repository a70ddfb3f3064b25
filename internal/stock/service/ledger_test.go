package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/internal/stock/service"
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/larder/larder-backend/pkg/logger"
)

// fakeTransactionStore appends to a slice and projects by summing it
type fakeTransactionStore struct {
	txns []*repository.InventoryTransaction
}

func (s *fakeTransactionStore) Create(ctx context.Context, txn *repository.InventoryTransaction) error {
	txn.ID = "txn"
	txn.CreatedAt = time.Now()
	s.txns = append(s.txns, txn)
	return nil
}

func (s *fakeTransactionStore) GetByID(ctx context.Context, id string) (*repository.InventoryTransaction, error) {
	for _, txn := range s.txns {
		if txn.ID == id {
			return txn, nil
		}
	}
	return nil, errors.NotFound("inventory transaction")
}

func (s *fakeTransactionStore) List(ctx context.Context, filter repository.TransactionFilter, page, perPage int) ([]*repository.InventoryTransaction, int64, error) {
	return s.txns, int64(len(s.txns)), nil
}

func (s *fakeTransactionStore) ProjectStock(ctx context.Context, ingredientID, locationID string, asOf time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, txn := range s.txns {
		if txn.IngredientID == ingredientID && txn.LocationID == locationID {
			total = total.Add(txn.Quantity)
		}
	}
	return total, nil
}

func (s *fakeTransactionStore) OnHandAll(ctx context.Context, locationID string, asOf time.Time) ([]*repository.StockLevel, error) {
	totals := make(map[string]decimal.Decimal)
	for _, txn := range s.txns {
		if txn.LocationID == locationID {
			totals[txn.IngredientID] = totals[txn.IngredientID].Add(txn.Quantity)
		}
	}
	var levels []*repository.StockLevel
	for id, onHand := range totals {
		levels = append(levels, &repository.StockLevel{IngredientID: id, LocationID: locationID, OnHand: onHand})
	}
	return levels, nil
}

func newLedgerService(catalog *fakeCatalog, store *fakeTransactionStore) *service.LedgerService {
	return service.NewLedgerService(catalog, store, nil, testWarehouse, logger.New("test", "test"))
}

func TestLedgerService_RecordTransaction(t *testing.T) {
	catalog := newFakeCatalog("salmon")
	store := &fakeTransactionStore{}
	svc := newLedgerService(catalog, store)
	ctx := context.Background()

	txn, err := svc.RecordTransaction(ctx, service.RecordTransactionInput{
		IngredientID: "salmon",
		Kind:         repository.KindDeliveryIn,
		Quantity:     decimal.NewFromInt(10),
		Reference:    "INV-1",
	})
	require.NoError(t, err)
	assert.Equal(t, testWarehouse, txn.LocationID, "empty location defaults to the warehouse")
	assert.True(t, txn.Quantity.Equal(decimal.NewFromInt(10)))

	// Consumption is stored negated
	txn, err = svc.RecordTransaction(ctx, service.RecordTransactionInput{
		IngredientID: "salmon",
		Kind:         repository.KindConsumption,
		Quantity:     decimal.NewFromInt(3),
	})
	require.NoError(t, err)
	assert.True(t, txn.Quantity.Equal(decimal.NewFromInt(-3)))

	onHand, err := svc.ProjectStock(ctx, "salmon", "", nil)
	require.NoError(t, err)
	assert.True(t, onHand.Equal(decimal.NewFromInt(7)))
}

func TestLedgerService_RecordTransaction_Rejections(t *testing.T) {
	catalog := newFakeCatalog("salmon")
	store := &fakeTransactionStore{}
	svc := newLedgerService(catalog, store)
	ctx := context.Background()

	_, err := svc.RecordTransaction(ctx, service.RecordTransactionInput{
		IngredientID: "salmon",
		Kind:         repository.MovementKind("evaporation"),
		Quantity:     decimal.NewFromInt(1),
	})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = svc.RecordTransaction(ctx, service.RecordTransactionInput{
		IngredientID: "salmon",
		Kind:         repository.KindDeliveryIn,
		Quantity:     decimal.Zero,
	})
	assert.True(t, errors.Is(err, errors.ErrInvalidQuantity))

	_, err = svc.RecordTransaction(ctx, service.RecordTransactionInput{
		IngredientID: "plutonium",
		Kind:         repository.KindDeliveryIn,
		Quantity:     decimal.NewFromInt(1),
	})
	assert.True(t, errors.Is(err, errors.ErrUnknownIngredient))

	assert.Empty(t, store.txns, "rejected transactions must not reach the ledger")
}

func TestLedgerService_ProjectStock_UnknownIngredient(t *testing.T) {
	svc := newLedgerService(newFakeCatalog(), &fakeTransactionStore{})

	_, err := svc.ProjectStock(context.Background(), "plutonium", "", nil)
	assert.True(t, errors.Is(err, errors.ErrUnknownIngredient))
}
