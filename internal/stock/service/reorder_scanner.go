package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/larder/larder-backend/internal/stock/events"
	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/pkg/logger"
)

// ActiveIngredientLister returns the catalog entries still in use.
// *repository.IngredientRepository satisfies it.
type ActiveIngredientLister interface {
	ListActive(ctx context.Context) ([]*repository.Ingredient, error)
}

// ReorderScanner checks projected warehouse stock against each ingredient's
// reorder threshold and raises an alert event for every shortfall.
type ReorderScanner struct {
	catalog     ActiveIngredientLister
	ledger      *LedgerService
	publisher   *events.StockEventPublisher
	warehouseID string
	logger      *logger.Logger
}

// NewReorderScanner creates a new reorder scanner
func NewReorderScanner(
	catalog ActiveIngredientLister,
	ledger *LedgerService,
	publisher *events.StockEventPublisher,
	warehouseID string,
	log *logger.Logger,
) *ReorderScanner {
	return &ReorderScanner{
		catalog:     catalog,
		ledger:      ledger,
		publisher:   publisher,
		warehouseID: warehouseID,
		logger:      log,
	}
}

// Scan projects current warehouse stock and alerts on every active
// ingredient at or below its reorder threshold. Ingredients with no ledger
// history count as zero on hand.
func (s *ReorderScanner) Scan(ctx context.Context) error {
	ingredients, err := s.catalog.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("reorder scan: list active ingredients: %w", err)
	}

	levels, err := s.ledger.OnHand(ctx, s.warehouseID, nil)
	if err != nil {
		return fmt.Errorf("reorder scan: project stock: %w", err)
	}

	onHand := make(map[string]decimal.Decimal, len(levels))
	for _, level := range levels {
		onHand[level.IngredientID] = level.OnHand
	}

	alerts := 0
	for _, ing := range ingredients {
		if !ing.ReorderThreshold.IsPositive() {
			continue
		}
		stock := onHand[ing.ID]
		if stock.GreaterThan(ing.ReorderThreshold) {
			continue
		}

		alerts++
		s.logger.Warn().
			Str("ingredient_id", ing.ID).
			Str("on_hand", stock.String()).
			Str("threshold", ing.ReorderThreshold.String()).
			Msg("ingredient at or below reorder threshold")

		s.publisher.PublishReorderAlert(ctx, ing, stock.String())
	}

	s.logger.Info().Int("ingredients", len(ingredients)).Int("alerts", alerts).Msg("reorder scan completed")
	return nil
}
