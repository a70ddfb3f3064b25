package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/larder/larder-backend/pkg/database"
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Ingredient is catalog reference data. Identity is immutable; the reference
// attributes (name, unit, threshold, price) may change over time. The ledger
// and workflows reference ingredients but never own them.
type Ingredient struct {
	ID               string          `db:"id" json:"id"`
	Name             string          `db:"name" json:"name"`
	Unit             string          `db:"unit" json:"unit"`
	Category         string          `db:"category" json:"category"`
	ReorderThreshold decimal.Decimal `db:"reorder_threshold" json:"reorder_threshold"`
	LastUnitPrice    decimal.Decimal `db:"last_unit_price" json:"last_unit_price"`
	IsActive         bool            `db:"is_active" json:"is_active"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// IngredientRepository handles ingredient catalog persistence
type IngredientRepository struct {
	db *database.DB
}

// NewIngredientRepository creates a new ingredient repository
func NewIngredientRepository(db *database.DB) *IngredientRepository {
	return &IngredientRepository{db: db}
}

// Create creates a new catalog ingredient
func (r *IngredientRepository) Create(ctx context.Context, ing *Ingredient) error {
	if ing.ID == "" {
		ing.ID = uuid.New().String()
	}
	ing.IsActive = true

	query := `
		INSERT INTO ingredients (id, name, unit, category, reorder_threshold, last_unit_price, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		ing.ID, ing.Name, ing.Unit, ing.Category, ing.ReorderThreshold, ing.LastUnitPrice, ing.IsActive,
	).Scan(&ing.CreatedAt, &ing.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets an ingredient by ID
func (r *IngredientRepository) GetByID(ctx context.Context, id string) (*Ingredient, error) {
	var ing Ingredient

	query := `
		SELECT id, name, unit, category, reorder_threshold, last_unit_price, is_active, created_at, updated_at
		FROM ingredients WHERE id = $1
	`

	err := r.db.GetContext(ctx, &ing, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("ingredient")
	}
	if err != nil {
		return nil, err
	}

	return &ing, nil
}

// Exists reports whether an active ingredient with the given ID exists.
func (r *IngredientRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM ingredients WHERE id = $1 AND is_active = TRUE)`
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return false, err
	}
	return exists, nil
}

// List lists ingredients with pagination and optional category filter
func (r *IngredientRepository) List(ctx context.Context, page, perPage int, category string) ([]*Ingredient, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	countQuery := `SELECT COUNT(*) FROM ingredients WHERE is_active = TRUE AND ($1 = '' OR category = $1)`
	if err := r.db.GetContext(ctx, &total, countQuery, category); err != nil {
		return nil, 0, err
	}

	var ingredients []*Ingredient
	query := `
		SELECT id, name, unit, category, reorder_threshold, last_unit_price, is_active, created_at, updated_at
		FROM ingredients
		WHERE is_active = TRUE AND ($1 = '' OR category = $1)
		ORDER BY name
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &ingredients, query, category, perPage, offset); err != nil {
		return nil, 0, err
	}

	return ingredients, total, nil
}

// ListActive lists all active ingredients, used by scans that must cover the
// whole catalog.
func (r *IngredientRepository) ListActive(ctx context.Context) ([]*Ingredient, error) {
	var ingredients []*Ingredient
	query := `
		SELECT id, name, unit, category, reorder_threshold, last_unit_price, is_active, created_at, updated_at
		FROM ingredients
		WHERE is_active = TRUE
		ORDER BY name
	`
	if err := r.db.SelectContext(ctx, &ingredients, query); err != nil {
		return nil, err
	}
	return ingredients, nil
}

// Update updates an ingredient's mutable reference attributes
func (r *IngredientRepository) Update(ctx context.Context, ing *Ingredient) error {
	query := `
		UPDATE ingredients
		SET name = $2, unit = $3, category = $4, reorder_threshold = $5, last_unit_price = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		ing.ID, ing.Name, ing.Unit, ing.Category, ing.ReorderThreshold, ing.LastUnitPrice,
	).Scan(&ing.UpdatedAt)
	if err == sql.ErrNoRows {
		return errors.NotFound("ingredient")
	}
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// Deactivate retires an ingredient from the catalog. Ledger history is kept;
// the row is never deleted.
func (r *IngredientRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE ingredients SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("ingredient")
	}
	return nil
}
