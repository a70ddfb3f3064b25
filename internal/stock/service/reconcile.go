package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/larder/larder-backend/internal/stock/events"
	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/pkg/config"
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/larder/larder-backend/pkg/logger"
)

// LedgerUsageReader computes actual consumption per ingredient from the
// ledger over a period. *repository.TransactionRepository satisfies it.
type LedgerUsageReader interface {
	PeriodUsage(ctx context.Context, locationID string, periodStart, periodEnd time.Time) ([]*repository.UsageRow, error)
}

// UsageEstimator returns the theoretical consumption of an ingredient over a
// period, as reported by the sales side. *repository.UsageRepository
// satisfies it.
type UsageEstimator interface {
	TheoreticalUsage(ctx context.Context, ingredientID string, periodStart, periodEnd time.Time) (decimal.Decimal, error)
}

// DeviationStore persists reconciliation outcomes.
// *repository.DeviationRepository satisfies it.
type DeviationStore interface {
	CreateBatch(ctx context.Context, records []*repository.DeviationRecord) error
	GetByID(ctx context.Context, id string) (*repository.DeviationRecord, error)
	List(ctx context.Context, filter repository.DeviationFilter, page, perPage int) ([]*repository.DeviationRecord, int64, error)
	Annotate(ctx context.Context, id, notes string) (*repository.DeviationRecord, error)
}

// ReconcileService compares actual ingredient usage, derived from the
// ledger, against theoretical usage reported by sales, and classifies the
// gap. Records are informative: flagging a deviation never mutates stock.
type ReconcileService struct {
	ledger     LedgerUsageReader
	estimator  UsageEstimator
	deviations DeviationStore
	catalog    CatalogLookup
	publisher  *events.StockEventPublisher
	cfg        config.ReconciliationConfig
	logger     *logger.Logger
}

// NewReconcileService creates a new reconcile service
func NewReconcileService(
	ledger LedgerUsageReader,
	estimator UsageEstimator,
	deviations DeviationStore,
	catalog CatalogLookup,
	publisher *events.StockEventPublisher,
	cfg config.ReconciliationConfig,
	log *logger.Logger,
) *ReconcileService {
	return &ReconcileService{
		ledger:     ledger,
		estimator:  estimator,
		deviations: deviations,
		catalog:    catalog,
		publisher:  publisher,
		cfg:        cfg,
		logger:     log,
	}
}

// Reconcile runs a full reconciliation of [periodStart, periodEnd) for every
// ingredient that had ledger activity at the configured location. It returns
// the persisted records; an activity-free period yields an empty batch and
// no error.
func (s *ReconcileService) Reconcile(ctx context.Context, periodStart, periodEnd time.Time) ([]*repository.DeviationRecord, error) {
	if !periodStart.Before(periodEnd) {
		return nil, errors.BadRequest("period start must be before period end")
	}

	rows, err := s.ledger.PeriodUsage(ctx, s.cfg.LocationID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		s.logger.Info().
			Time("period_start", periodStart).
			Time("period_end", periodEnd).
			Msg("no ledger activity in period, nothing to reconcile")
		return []*repository.DeviationRecord{}, nil
	}

	records := make([]*repository.DeviationRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := s.reconcileIngredient(ctx, row, periodStart, periodEnd)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := s.deviations.CreateBatch(ctx, records); err != nil {
		return nil, err
	}

	flagged := 0
	for _, rec := range records {
		if rec.Status != repository.DeviationStatusOK {
			flagged++
			s.publisher.PublishDeviationFlagged(ctx, rec)
		}
	}

	s.logger.Info().
		Time("period_start", periodStart).
		Time("period_end", periodEnd).
		Int("ingredients", len(records)).
		Int("flagged", flagged).
		Msg("reconciliation completed")

	return records, nil
}

func (s *ReconcileService) reconcileIngredient(ctx context.Context, row *repository.UsageRow, periodStart, periodEnd time.Time) (*repository.DeviationRecord, error) {
	actual := row.ActualUsage()

	theoretical, err := s.estimator.TheoreticalUsage(ctx, row.IngredientID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	deviation := actual.Sub(theoretical)

	// With no theoretical baseline a percentage is meaningless; any actual
	// consumption is then automatically critical.
	var pct decimal.Decimal
	status := repository.DeviationStatusOK
	if theoretical.IsPositive() {
		pct = deviation.Abs().Div(theoretical).Mul(decimal.NewFromInt(100))
		status = s.classify(pct)
	} else if !deviation.IsZero() {
		status = repository.DeviationStatusCritical
	}

	// A zero deviation is not an overconsumption, so it types as negative.
	devType := repository.DeviationTypeNegative
	if deviation.IsPositive() {
		devType = repository.DeviationTypePositive
	}

	value := decimal.Zero
	ing, err := s.catalog.GetByID(ctx, row.IngredientID)
	if err == nil {
		value = deviation.Mul(ing.LastUnitPrice)
	} else if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	return &repository.DeviationRecord{
		IngredientID:     row.IngredientID,
		LocationID:       s.cfg.LocationID,
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		TheoreticalUsage: theoretical,
		ActualUsage:      actual,
		Deviation:        deviation,
		DeviationPct:     pct,
		DeviationValue:   value,
		Status:           status,
		Type:             devType,
	}, nil
}

// classify maps an absolute deviation percentage onto ok, warning or
// critical. Thresholds are exclusive bounds: landing exactly on one keeps
// the lower classification.
func (s *ReconcileService) classify(pct decimal.Decimal) string {
	if pct.GreaterThan(decimal.NewFromFloat(s.cfg.CriticalThresholdPct)) {
		return repository.DeviationStatusCritical
	}
	if pct.GreaterThan(decimal.NewFromFloat(s.cfg.WarningThresholdPct)) {
		return repository.DeviationStatusWarning
	}
	return repository.DeviationStatusOK
}

// GetDeviation returns one deviation record
func (s *ReconcileService) GetDeviation(ctx context.Context, id string) (*repository.DeviationRecord, error) {
	return s.deviations.GetByID(ctx, id)
}

// ListDeviations lists deviation records matching the filter
func (s *ReconcileService) ListDeviations(ctx context.Context, filter repository.DeviationFilter, page, perPage int) ([]*repository.DeviationRecord, int64, error) {
	return s.deviations.List(ctx, filter, page, perPage)
}

// AnnotateDeviation appends investigation notes to a record. The numeric
// outcome of a reconciliation is never edited after the fact.
func (s *ReconcileService) AnnotateDeviation(ctx context.Context, id, notes string) (*repository.DeviationRecord, error) {
	if notes == "" {
		return nil, errors.BadRequest("investigation notes cannot be empty")
	}
	return s.deviations.Annotate(ctx, id, notes)
}
