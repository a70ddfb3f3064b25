package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/larder/larder-backend/pkg/database"
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Deviation statuses
const (
	DeviationStatusOK       = "ok"
	DeviationStatusWarning  = "warning"
	DeviationStatusCritical = "critical"
)

// Deviation types
const (
	// DeviationTypePositive: more was consumed than expected (loss, waste,
	// theft, or a stale recipe).
	DeviationTypePositive = "positive"
	// DeviationTypeNegative: less was consumed than expected (count error or
	// an overly generous recipe estimate).
	DeviationTypeNegative = "negative"
)

// DeviationRecord is the outcome of reconciling one ingredient over one
// period. Numeric fields are frozen at creation; only the investigation
// notes may be appended later. Records are never auto-deleted.
type DeviationRecord struct {
	ID                 string          `db:"id" json:"id"`
	IngredientID       string          `db:"ingredient_id" json:"ingredient_id"`
	LocationID         string          `db:"location_id" json:"location_id"`
	PeriodStart        time.Time       `db:"period_start" json:"period_start"`
	PeriodEnd          time.Time       `db:"period_end" json:"period_end"`
	TheoreticalUsage   decimal.Decimal `db:"theoretical_usage" json:"theoretical_usage"`
	ActualUsage        decimal.Decimal `db:"actual_usage" json:"actual_usage"`
	Deviation          decimal.Decimal `db:"deviation" json:"deviation"`
	DeviationPct       decimal.Decimal `db:"deviation_pct" json:"deviation_pct"`
	DeviationValue     decimal.Decimal `db:"deviation_value" json:"deviation_value"`
	Status             string          `db:"status" json:"status"`
	Type               string          `db:"type" json:"type"`
	InvestigationNotes *string         `db:"investigation_notes" json:"investigation_notes,omitempty"`
	InvestigatedAt     *time.Time      `db:"investigated_at" json:"investigated_at,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
}

// DeviationFilter narrows deviation listings.
type DeviationFilter struct {
	IngredientID string
	Status       string
	From         *time.Time
	To           *time.Time
}

// DeviationRepository handles deviation record persistence
type DeviationRepository struct {
	db *database.DB
}

// NewDeviationRepository creates a new deviation repository
func NewDeviationRepository(db *database.DB) *DeviationRepository {
	return &DeviationRepository{db: db}
}

// CreateBatch persists the records of one reconciliation run atomically.
func (r *DeviationRepository) CreateBatch(ctx context.Context, records []*DeviationRecord) error {
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, rec := range records {
			if rec.ID == "" {
				rec.ID = uuid.New().String()
			}

			query := `
				INSERT INTO deviation_records (
					id, ingredient_id, location_id, period_start, period_end,
					theoretical_usage, actual_usage, deviation, deviation_pct, deviation_value,
					status, type
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
				RETURNING created_at
			`
			if err := tx.QueryRowxContext(ctx, query,
				rec.ID, rec.IngredientID, rec.LocationID, rec.PeriodStart, rec.PeriodEnd,
				rec.TheoreticalUsage, rec.ActualUsage, rec.Deviation, rec.DeviationPct, rec.DeviationValue,
				rec.Status, rec.Type,
			).Scan(&rec.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a deviation record by ID
func (r *DeviationRepository) GetByID(ctx context.Context, id string) (*DeviationRecord, error) {
	var rec DeviationRecord

	query := `
		SELECT id, ingredient_id, location_id, period_start, period_end,
		       theoretical_usage, actual_usage, deviation, deviation_pct, deviation_value,
		       status, type, investigation_notes, investigated_at, created_at
		FROM deviation_records WHERE id = $1
	`
	err := r.db.GetContext(ctx, &rec, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("deviation record")
	}
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// List lists deviation records, newest period first
func (r *DeviationRepository) List(ctx context.Context, filter DeviationFilter, page, perPage int) ([]*DeviationRecord, int64, error) {
	offset := (page - 1) * perPage

	where := `
		($1 = '' OR ingredient_id = $1)
		AND ($2 = '' OR status = $2)
		AND ($3::timestamptz IS NULL OR period_start >= $3)
		AND ($4::timestamptz IS NULL OR period_end <= $4)
	`

	var total int64
	countQuery := `SELECT COUNT(*) FROM deviation_records WHERE ` + where
	if err := r.db.GetContext(ctx, &total,
		countQuery, filter.IngredientID, filter.Status, filter.From, filter.To); err != nil {
		return nil, 0, err
	}

	var records []*DeviationRecord
	query := `
		SELECT id, ingredient_id, location_id, period_start, period_end,
		       theoretical_usage, actual_usage, deviation, deviation_pct, deviation_value,
		       status, type, investigation_notes, investigated_at, created_at
		FROM deviation_records
		WHERE ` + where + `
		ORDER BY period_end DESC, ingredient_id
		LIMIT $5 OFFSET $6
	`
	if err := r.db.SelectContext(ctx, &records, query,
		filter.IngredientID, filter.Status, filter.From, filter.To, perPage, offset); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// Annotate appends investigation notes and marks the record investigated.
// The numeric fields are never touched; this is the only mutation the table
// allows.
func (r *DeviationRepository) Annotate(ctx context.Context, id, notes string) (*DeviationRecord, error) {
	query := `
		UPDATE deviation_records
		SET investigation_notes = CASE
			    WHEN investigation_notes IS NULL OR investigation_notes = '' THEN $2
			    ELSE investigation_notes || E'\n' || $2
		    END,
		    investigated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, notes)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, errors.NotFound("deviation record")
	}

	return r.GetByID(ctx, id)
}
