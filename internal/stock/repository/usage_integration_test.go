package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larder/larder-backend/internal/stock/repository"
)

func TestUsageRepository_UpsertIsIdempotentPerPeriod(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	salmon := seedIngredient(t, ctx)
	repo := repository.NewUsageRepository(suite.DB)

	periodStart := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

	first := &repository.TheoreticalUsage{
		IngredientID: salmon.ID,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		Quantity:     decimal.NewFromFloat(12.4),
	}
	require.NoError(t, repo.Upsert(ctx, first))
	assert.NotEmpty(t, first.ID)

	// A corrected re-report for the same window replaces the figure.
	second := &repository.TheoreticalUsage{
		IngredientID: salmon.ID,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		Quantity:     decimal.NewFromFloat(13.0),
	}
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID, "re-report updates the existing row")

	var count int
	require.NoError(t, suite.RawDB.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM theoretical_usage WHERE ingredient_id = $1`, salmon.ID))
	assert.Equal(t, 1, count)

	total, err := repo.TheoreticalUsage(ctx, salmon.ID, periodStart, periodEnd)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromFloat(13.0)), "got %s", total)
}

func TestUsageRepository_TheoreticalUsage_SumsContainedWindows(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	salmon := seedIngredient(t, ctx)
	repo := repository.NewUsageRepository(suite.DB)

	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

	// Two daily reports inside the week, one outside it.
	for _, u := range []*repository.TheoreticalUsage{
		{IngredientID: salmon.ID, PeriodStart: day(1), PeriodEnd: day(2), Quantity: decimal.NewFromInt(5)},
		{IngredientID: salmon.ID, PeriodStart: day(2), PeriodEnd: day(3), Quantity: decimal.NewFromInt(4)},
		{IngredientID: salmon.ID, PeriodStart: day(9), PeriodEnd: day(10), Quantity: decimal.NewFromInt(100)},
	} {
		require.NoError(t, repo.Upsert(ctx, u))
	}

	total, err := repo.TheoreticalUsage(ctx, salmon.ID, day(1), day(8))
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(9)), "got %s", total)

	// No reports in the window means zero, not an error.
	total, err = repo.TheoreticalUsage(ctx, salmon.ID, day(20), day(27))
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}
