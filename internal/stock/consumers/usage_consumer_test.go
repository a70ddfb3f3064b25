package consumers_test

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larder/larder-backend/internal/stock/consumers"
	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/pkg/messaging"
	"github.com/larder/larder-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	ctx := context.Background()

	// Short mode runs without Docker; every test skips itself at the
	// first suite call.
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}
	defer suite.Cleanup(ctx)
	defer testutil.TerminateContainer(ctx)

	os.Exit(m.Run())
}

func seedIngredient(t *testing.T, ctx context.Context) *repository.Ingredient {
	t.Helper()

	fixture := suite.Fixtures.Ingredient()
	ing := &repository.Ingredient{
		ID:               fixture.ID,
		Name:             fixture.Name,
		Unit:             fixture.Unit,
		Category:         fixture.Category,
		ReorderThreshold: fixture.ReorderThreshold,
		LastUnitPrice:    fixture.LastUnitPrice,
	}
	require.NoError(t, repository.NewIngredientRepository(suite.DB).Create(ctx, ing))
	return ing
}

func usageEvent(t *testing.T, data messaging.TheoreticalUsageReportedEvent) *messaging.Event {
	t.Helper()

	payload, err := json.Marshal(data)
	require.NoError(t, err)
	return &messaging.Event{
		Type:      messaging.EventTheoreticalUsageReported,
		Timestamp: time.Now(),
		Data:      payload,
	}
}

func TestUsageEventHandler_StoresReport(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	ing := seedIngredient(t, ctx)
	usageRepo := repository.NewUsageRepository(suite.DB)
	handler := consumers.NewUsageEventHandler(usageRepo, suite.Logger)

	periodStart := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	err := handler.HandleEvent(ctx, usageEvent(t, messaging.TheoreticalUsageReportedEvent{
		IngredientID: ing.ID,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		Quantity:     "12.4",
	}))
	require.NoError(t, err)

	total, err := usageRepo.TheoreticalUsage(ctx, ing.ID, periodStart, periodEnd)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromFloat(12.4)), "got %s", total)
}

func TestUsageEventHandler_ReReportReplacesFigure(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	ing := seedIngredient(t, ctx)
	usageRepo := repository.NewUsageRepository(suite.DB)
	handler := consumers.NewUsageEventHandler(usageRepo, suite.Logger)

	periodStart := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	report := messaging.TheoreticalUsageReportedEvent{
		IngredientID: ing.ID,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		Quantity:     "12.4",
	}
	require.NoError(t, handler.HandleEvent(ctx, usageEvent(t, report)))

	report.Quantity = "13.0"
	require.NoError(t, handler.HandleEvent(ctx, usageEvent(t, report)))

	total, err := usageRepo.TheoreticalUsage(ctx, ing.ID, periodStart, periodEnd)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromFloat(13.0)), "re-report must replace, got %s", total)
}

// Malformed reports are dropped, not requeued: a quantity that does not
// parse today will not parse on redelivery either.
func TestUsageEventHandler_DropsBadQuantities(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	ing := seedIngredient(t, ctx)
	usageRepo := repository.NewUsageRepository(suite.DB)
	handler := consumers.NewUsageEventHandler(usageRepo, suite.Logger)

	periodStart := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	for _, quantity := range []string{"not-a-number", "-5"} {
		err := handler.HandleEvent(ctx, usageEvent(t, messaging.TheoreticalUsageReportedEvent{
			IngredientID: ing.ID,
			PeriodStart:  periodStart,
			PeriodEnd:    periodEnd,
			Quantity:     quantity,
		}))
		require.NoError(t, err, "bad report is acked, not retried")
	}

	total, err := usageRepo.TheoreticalUsage(ctx, ing.ID, periodStart, periodEnd)
	require.NoError(t, err)
	assert.True(t, total.IsZero(), "nothing should be stored")
}

func TestUsageEventHandler_UnknownEventType(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	usageRepo := repository.NewUsageRepository(suite.DB)
	handler := consumers.NewUsageEventHandler(usageRepo, suite.Logger)

	err := handler.HandleEvent(ctx, &messaging.Event{
		Type:      "sales.order.created",
		Timestamp: time.Now(),
		Data:      json.RawMessage(`{}`),
	})
	assert.NoError(t, err, "unknown event types are ignored")
}

func TestUsageEventHandler_InvalidJSON(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	usageRepo := repository.NewUsageRepository(suite.DB)
	handler := consumers.NewUsageEventHandler(usageRepo, suite.Logger)

	err := handler.HandleEvent(ctx, &messaging.Event{
		Type:      messaging.EventTheoreticalUsageReported,
		Timestamp: time.Now(),
		Data:      json.RawMessage(`{not json`),
	})
	assert.Error(t, err)
}
