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
	"github.com/larder/larder-backend/pkg/config"
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/larder/larder-backend/pkg/logger"
)

// fakeUsageReader serves pre-built ledger aggregates
type fakeUsageReader struct {
	rows []*repository.UsageRow
}

func (f *fakeUsageReader) PeriodUsage(ctx context.Context, locationID string, periodStart, periodEnd time.Time) ([]*repository.UsageRow, error) {
	return f.rows, nil
}

// fakeEstimator serves theoretical usage per ingredient
type fakeEstimator struct {
	usage map[string]decimal.Decimal
}

func (f *fakeEstimator) TheoreticalUsage(ctx context.Context, ingredientID string, periodStart, periodEnd time.Time) (decimal.Decimal, error) {
	return f.usage[ingredientID], nil
}

// fakeDeviationStore records created batches
type fakeDeviationStore struct {
	records []*repository.DeviationRecord
}

func (s *fakeDeviationStore) CreateBatch(ctx context.Context, records []*repository.DeviationRecord) error {
	s.records = append(s.records, records...)
	return nil
}

func (s *fakeDeviationStore) GetByID(ctx context.Context, id string) (*repository.DeviationRecord, error) {
	for _, rec := range s.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, errors.NotFound("deviation record")
}

func (s *fakeDeviationStore) List(ctx context.Context, filter repository.DeviationFilter, page, perPage int) ([]*repository.DeviationRecord, int64, error) {
	return s.records, int64(len(s.records)), nil
}

func (s *fakeDeviationStore) Annotate(ctx context.Context, id, notes string) (*repository.DeviationRecord, error) {
	rec, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.InvestigationNotes = &notes
	return rec, nil
}

func usageRow(ingredientID string, opening, inbound, closing string) *repository.UsageRow {
	return &repository.UsageRow{
		IngredientID: ingredientID,
		Opening:      decimal.RequireFromString(opening),
		Inbound:      decimal.RequireFromString(inbound),
		Closing:      decimal.RequireFromString(closing),
	}
}

func newReconcileService(reader *fakeUsageReader, estimator *fakeEstimator, store *fakeDeviationStore, catalog *fakeCatalog) *service.ReconcileService {
	cfg := config.ReconciliationConfig{
		WarningThresholdPct:  10.0,
		CriticalThresholdPct: 20.0,
		LocationID:           "kitchen-1",
	}
	return service.NewReconcileService(reader, estimator, store, catalog, nil, cfg, logger.New("test", "test"))
}

func reconcilePeriod() (time.Time, time.Time) {
	end := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	return end.AddDate(0, 0, -7), end
}

func TestReconcileService_CriticalOveruse(t *testing.T) {
	// Opening 20, inbound 0, closing 4.90: actual usage 15.10 against a
	// theoretical 12.40 is a 2.70 overshoot, about 21.8 percent.
	reader := &fakeUsageReader{rows: []*repository.UsageRow{
		usageRow("salmon", "20", "0", "4.90"),
	}}
	estimator := &fakeEstimator{usage: map[string]decimal.Decimal{
		"salmon": decimal.RequireFromString("12.40"),
	}}
	store := &fakeDeviationStore{}
	catalog := newFakeCatalog("salmon")
	catalog.ingredients["salmon"].LastUnitPrice = decimal.RequireFromString("22.50")

	svc := newReconcileService(reader, estimator, store, catalog)
	start, end := reconcilePeriod()

	records, err := svc.Reconcile(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.True(t, rec.ActualUsage.Equal(decimal.RequireFromString("15.10")))
	assert.True(t, rec.Deviation.Equal(decimal.RequireFromString("2.70")))
	assert.Equal(t, repository.DeviationStatusCritical, rec.Status)
	assert.Equal(t, repository.DeviationTypePositive, rec.Type)

	// 2.70 / 12.40 * 100
	assert.True(t, rec.DeviationPct.Sub(decimal.RequireFromString("21.77")).Abs().LessThan(decimal.RequireFromString("0.01")),
		"got pct %s", rec.DeviationPct)

	// 2.70 * 22.50
	assert.True(t, rec.DeviationValue.Equal(decimal.RequireFromString("60.75")))
}

func TestReconcileService_ThresholdBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		actual     string
		wantStatus string
		wantType   string
	}{
		// theoretical is 100, so deviation pct equals the absolute deviation
		{name: "no deviation types as negative", actual: "100", wantStatus: repository.DeviationStatusOK, wantType: repository.DeviationTypeNegative},
		{name: "under warning", actual: "109.99", wantStatus: repository.DeviationStatusOK, wantType: repository.DeviationTypePositive},
		{name: "exactly warning threshold stays ok", actual: "110", wantStatus: repository.DeviationStatusOK, wantType: repository.DeviationTypePositive},
		{name: "just over warning", actual: "110.01", wantStatus: repository.DeviationStatusWarning, wantType: repository.DeviationTypePositive},
		{name: "exactly critical threshold stays warning", actual: "120", wantStatus: repository.DeviationStatusWarning, wantType: repository.DeviationTypePositive},
		{name: "just over critical", actual: "120.01", wantStatus: repository.DeviationStatusCritical, wantType: repository.DeviationTypePositive},
		{name: "negative deviation classifies on magnitude", actual: "85", wantStatus: repository.DeviationStatusWarning, wantType: repository.DeviationTypeNegative},
		{name: "large negative deviation", actual: "70", wantStatus: repository.DeviationStatusCritical, wantType: repository.DeviationTypeNegative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeUsageReader{rows: []*repository.UsageRow{
				usageRow("flour", "200", "0", decimal.RequireFromString("200").Sub(decimal.RequireFromString(tt.actual)).String()),
			}}
			estimator := &fakeEstimator{usage: map[string]decimal.Decimal{
				"flour": decimal.NewFromInt(100),
			}}
			store := &fakeDeviationStore{}
			svc := newReconcileService(reader, estimator, store, newFakeCatalog("flour"))

			start, end := reconcilePeriod()
			records, err := svc.Reconcile(context.Background(), start, end)
			require.NoError(t, err)
			require.Len(t, records, 1)

			assert.Equal(t, tt.wantStatus, records[0].Status)
			assert.Equal(t, tt.wantType, records[0].Type)
		})
	}
}

func TestReconcileService_ZeroTheoreticalWithUsageIsCritical(t *testing.T) {
	reader := &fakeUsageReader{rows: []*repository.UsageRow{
		usageRow("saffron", "2", "0", "1.5"),
	}}
	estimator := &fakeEstimator{usage: map[string]decimal.Decimal{}}
	store := &fakeDeviationStore{}
	svc := newReconcileService(reader, estimator, store, newFakeCatalog("saffron"))

	start, end := reconcilePeriod()
	records, err := svc.Reconcile(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, repository.DeviationStatusCritical, rec.Status)
	assert.True(t, rec.DeviationPct.IsZero(), "no percentage without a baseline")
	assert.True(t, rec.Deviation.Equal(decimal.RequireFromString("0.5")))
}

func TestReconcileService_InboundCountsTowardUsage(t *testing.T) {
	// Opening 10, a delivery of 8 during the period, closing 12:
	// actual usage is 10 + 8 - 12 = 6.
	reader := &fakeUsageReader{rows: []*repository.UsageRow{
		usageRow("butter", "10", "8", "12"),
	}}
	estimator := &fakeEstimator{usage: map[string]decimal.Decimal{
		"butter": decimal.NewFromInt(6),
	}}
	store := &fakeDeviationStore{}
	svc := newReconcileService(reader, estimator, store, newFakeCatalog("butter"))

	start, end := reconcilePeriod()
	records, err := svc.Reconcile(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.True(t, records[0].ActualUsage.Equal(decimal.NewFromInt(6)))
	assert.True(t, records[0].Deviation.IsZero())
	assert.Equal(t, repository.DeviationStatusOK, records[0].Status)
	assert.Equal(t, repository.DeviationTypeNegative, records[0].Type)
}

func TestReconcileService_EmptyPeriod(t *testing.T) {
	svc := newReconcileService(&fakeUsageReader{}, &fakeEstimator{}, &fakeDeviationStore{}, newFakeCatalog())

	start, end := reconcilePeriod()
	records, err := svc.Reconcile(context.Background(), start, end)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReconcileService_InvalidPeriod(t *testing.T) {
	svc := newReconcileService(&fakeUsageReader{}, &fakeEstimator{}, &fakeDeviationStore{}, newFakeCatalog())

	start, end := reconcilePeriod()
	_, err := svc.Reconcile(context.Background(), end, start)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))
}

func TestReconcileService_AnnotateDeviation(t *testing.T) {
	store := &fakeDeviationStore{records: []*repository.DeviationRecord{
		{ID: "dev-1", Status: repository.DeviationStatusCritical},
	}}
	svc := newReconcileService(&fakeUsageReader{}, &fakeEstimator{}, store, newFakeCatalog())
	ctx := context.Background()

	rec, err := svc.AnnotateDeviation(ctx, "dev-1", "walk-in cooler left open overnight")
	require.NoError(t, err)
	require.NotNil(t, rec.InvestigationNotes)
	assert.Equal(t, "walk-in cooler left open overnight", *rec.InvestigationNotes)

	_, err = svc.AnnotateDeviation(ctx, "dev-1", "")
	assert.True(t, errors.Is(err, errors.ErrBadRequest))
}
