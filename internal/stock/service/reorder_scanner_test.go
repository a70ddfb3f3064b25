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
	"github.com/larder/larder-backend/pkg/logger"
)

// fakeActiveLister serves a fixed catalog snapshot to the scanner
type fakeActiveLister struct {
	ingredients []*repository.Ingredient
	err         error
}

func (f *fakeActiveLister) ListActive(ctx context.Context) ([]*repository.Ingredient, error) {
	return f.ingredients, f.err
}

func newReorderScanner(active *fakeActiveLister, store *fakeTransactionStore) *service.ReorderScanner {
	ledger := newLedgerService(newFakeCatalog(), store)
	return service.NewReorderScanner(active, ledger, nil, testWarehouse, logger.New("test", "test"))
}

func TestReorderScanner_Scan(t *testing.T) {
	active := &fakeActiveLister{ingredients: []*repository.Ingredient{
		{ID: "salmon", Name: "salmon", Unit: "kg", ReorderThreshold: decimal.NewFromInt(5)},
		{ID: "butter", Name: "butter", Unit: "kg", ReorderThreshold: decimal.NewFromInt(2)},
		{ID: "salt", Name: "salt", Unit: "kg"},
	}}
	store := &fakeTransactionStore{txns: []*repository.InventoryTransaction{
		{IngredientID: "salmon", LocationID: testWarehouse, Kind: repository.KindDeliveryIn,
			Quantity: decimal.NewFromInt(3), CreatedAt: time.Now()},
	}}

	// salmon is below threshold, butter has no history at all, salt has no
	// threshold configured. With no publisher the alerts are log-only.
	scanner := newReorderScanner(active, store)
	assert.NotPanics(t, func() {
		require.NoError(t, scanner.Scan(context.Background()))
	})
}

func TestReorderScanner_Scan_CatalogError(t *testing.T) {
	active := &fakeActiveLister{err: assert.AnError}
	scanner := newReorderScanner(active, &fakeTransactionStore{})

	err := scanner.Scan(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
