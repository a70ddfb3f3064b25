package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/larder/larder-backend/pkg/database"
	"github.com/shopspring/decimal"
)

// TheoreticalUsage is expected consumption for one ingredient over one
// period, reported by the sales side (recipe quantity x units sold). The
// stock service treats it as an opaque input; it never computes it.
type TheoreticalUsage struct {
	ID           string          `db:"id" json:"id"`
	IngredientID string          `db:"ingredient_id" json:"ingredient_id"`
	PeriodStart  time.Time       `db:"period_start" json:"period_start"`
	PeriodEnd    time.Time       `db:"period_end" json:"period_end"`
	Quantity     decimal.Decimal `db:"quantity" json:"quantity"`
	ReportedAt   time.Time       `db:"reported_at" json:"reported_at"`
}

// UsageRepository stores theoretical usage reports consumed from the sales
// event stream.
type UsageRepository struct {
	db *database.DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *database.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Upsert records a theoretical usage report. Re-reports for the same
// ingredient and period overwrite the previous figure; the sales side owns
// the number.
func (r *UsageRepository) Upsert(ctx context.Context, u *TheoreticalUsage) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}

	query := `
		INSERT INTO theoretical_usage (id, ingredient_id, period_start, period_end, quantity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ingredient_id, period_start, period_end)
		DO UPDATE SET quantity = EXCLUDED.quantity, reported_at = NOW()
		RETURNING id, reported_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		u.ID, u.IngredientID, u.PeriodStart, u.PeriodEnd, u.Quantity,
	).Scan(&u.ID, &u.ReportedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// TheoreticalUsage returns the total theoretical usage reported for an
// ingredient across report windows inside [periodStart, periodEnd].
func (r *UsageRepository) TheoreticalUsage(ctx context.Context, ingredientID string, periodStart, periodEnd time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal

	query := `
		SELECT COALESCE(SUM(quantity), 0)
		FROM theoretical_usage
		WHERE ingredient_id = $1 AND period_start >= $2 AND period_end <= $3
	`
	if err := r.db.GetContext(ctx, &total, query, ingredientID, periodStart, periodEnd); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
