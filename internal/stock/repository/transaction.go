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

// InventoryTransaction is one signed stock movement in the append-only
// ledger. Rows are immutable once created: corrections are new offsetting
// transactions, never edits or deletes. The schema backs this up with a
// trigger that rejects UPDATE and DELETE on the table.
type InventoryTransaction struct {
	ID           string          `db:"id" json:"id"`
	IngredientID string          `db:"ingredient_id" json:"ingredient_id"`
	LocationID   string          `db:"location_id" json:"location_id"`
	Kind         MovementKind    `db:"kind" json:"kind"`
	Quantity     decimal.Decimal `db:"quantity" json:"quantity"`
	Reference    string          `db:"reference" json:"reference,omitempty"`
	Reason       string          `db:"reason" json:"reason,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// StockLevel is a derived on-hand figure for one ingredient at one location.
type StockLevel struct {
	IngredientID string          `db:"ingredient_id" json:"ingredient_id"`
	LocationID   string          `db:"location_id" json:"location_id"`
	OnHand       decimal.Decimal `db:"on_hand" json:"on_hand"`
}

// UsageRow is the per-ingredient ledger aggregate for one reconciliation
// period: opening stock, inbound credits during the period, closing stock.
type UsageRow struct {
	IngredientID string          `db:"ingredient_id"`
	Opening      decimal.Decimal `db:"opening"`
	Inbound      decimal.Decimal `db:"inbound"`
	Closing      decimal.Decimal `db:"closing"`
}

// ActualUsage derives consumption from the ledger: what was there, plus what
// came in, minus what is left.
func (u *UsageRow) ActualUsage() decimal.Decimal {
	return u.Opening.Add(u.Inbound).Sub(u.Closing)
}

// TransactionFilter narrows ledger listings.
type TransactionFilter struct {
	IngredientID string
	LocationID   string
	Kind         MovementKind
	From         *time.Time
	To           *time.Time
}

// TransactionRepository handles the inventory ledger. It exposes inserts and
// aggregations only; there is deliberately no update or delete path.
type TransactionRepository struct {
	db *database.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// insertTransaction appends one ledger row using the given executor. Shared
// with the delivery and transfer repositories so their multi-row writes land
// in the same database transaction as their headers.
func insertTransaction(ctx context.Context, q sqlx.ExtContext, txn *InventoryTransaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}

	query := `
		INSERT INTO inventory_transactions (id, ingredient_id, location_id, kind, quantity, reference, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	row := q.QueryRowxContext(ctx, query,
		txn.ID, txn.IngredientID, txn.LocationID, txn.Kind, txn.Quantity, txn.Reference, txn.Reason,
	)
	if err := row.Scan(&txn.CreatedAt); err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// Create appends a single transaction to the ledger
func (r *TransactionRepository) Create(ctx context.Context, txn *InventoryTransaction) error {
	return insertTransaction(ctx, r.db, txn)
}

// GetByID gets a transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*InventoryTransaction, error) {
	var txn InventoryTransaction

	query := `
		SELECT id, ingredient_id, location_id, kind, quantity, reference, reason, created_at
		FROM inventory_transactions WHERE id = $1
	`

	err := r.db.GetContext(ctx, &txn, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("transaction")
	}
	if err != nil {
		return nil, err
	}

	return &txn, nil
}

// List lists ledger transactions, newest first
func (r *TransactionRepository) List(ctx context.Context, filter TransactionFilter, page, perPage int) ([]*InventoryTransaction, int64, error) {
	offset := (page - 1) * perPage

	where := `
		($1 = '' OR ingredient_id = $1)
		AND ($2 = '' OR location_id = $2)
		AND ($3 = '' OR kind = $3)
		AND ($4::timestamptz IS NULL OR created_at >= $4)
		AND ($5::timestamptz IS NULL OR created_at <= $5)
	`

	var total int64
	countQuery := `SELECT COUNT(*) FROM inventory_transactions WHERE ` + where
	if err := r.db.GetContext(ctx, &total, countQuery,
		filter.IngredientID, filter.LocationID, string(filter.Kind), filter.From, filter.To); err != nil {
		return nil, 0, err
	}

	var txns []*InventoryTransaction
	query := `
		SELECT id, ingredient_id, location_id, kind, quantity, reference, reason, created_at
		FROM inventory_transactions
		WHERE ` + where + `
		ORDER BY created_at DESC, id
		LIMIT $6 OFFSET $7
	`
	if err := r.db.SelectContext(ctx, &txns, query,
		filter.IngredientID, filter.LocationID, string(filter.Kind), filter.From, filter.To, perPage, offset); err != nil {
		return nil, 0, err
	}

	return txns, total, nil
}

// ProjectStock returns on-hand stock for one ingredient at one location as of
// the given time: the sum of all signed quantities up to asOf. This is the
// load-bearing invariant of the subsystem: stock is always re-derived from
// the log, never read from a cached counter.
func (r *TransactionRepository) ProjectStock(ctx context.Context, ingredientID, locationID string, asOf time.Time) (decimal.Decimal, error) {
	var onHand decimal.Decimal

	query := `
		SELECT COALESCE(SUM(quantity), 0)
		FROM inventory_transactions
		WHERE ingredient_id = $1 AND location_id = $2 AND created_at <= $3
	`

	if err := r.db.GetContext(ctx, &onHand, query, ingredientID, locationID, asOf); err != nil {
		return decimal.Zero, err
	}
	return onHand, nil
}

// OnHandAll projects stock for every ingredient with ledger activity at a
// location as of the given time.
func (r *TransactionRepository) OnHandAll(ctx context.Context, locationID string, asOf time.Time) ([]*StockLevel, error) {
	var levels []*StockLevel

	query := `
		SELECT ingredient_id, location_id, COALESCE(SUM(quantity), 0) AS on_hand
		FROM inventory_transactions
		WHERE location_id = $1 AND created_at <= $2
		GROUP BY ingredient_id, location_id
		ORDER BY ingredient_id
	`

	if err := r.db.SelectContext(ctx, &levels, query, locationID, asOf); err != nil {
		return nil, err
	}
	return levels, nil
}

// PeriodUsage aggregates the ledger for reconciliation: for every ingredient
// with any movement at the location inside [periodStart, periodEnd), it
// returns opening stock (strictly before periodStart), inbound credits during
// the period, and closing stock (strictly before periodEnd). The period is
// half-open so consecutive periods tile without counting a boundary row
// twice. The reads run inside a read-only REPEATABLE READ transaction so a
// ledger append landing mid-computation cannot tear the result.
func (r *TransactionRepository) PeriodUsage(ctx context.Context, locationID string, periodStart, periodEnd time.Time) ([]*UsageRow, error) {
	var rows []*UsageRow

	err := r.db.SnapshotTransaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			SELECT ingredient_id,
			       COALESCE(SUM(quantity) FILTER (WHERE created_at < $2), 0) AS opening,
			       COALESCE(SUM(quantity) FILTER (WHERE created_at >= $2 AND created_at < $3
			                                        AND kind IN ('delivery_in', 'transfer_in')), 0) AS inbound,
			       COALESCE(SUM(quantity), 0) AS closing
			FROM inventory_transactions
			WHERE location_id = $1 AND created_at < $3
			GROUP BY ingredient_id
			HAVING COUNT(*) FILTER (WHERE created_at >= $2 AND created_at < $3) > 0
			ORDER BY ingredient_id
		`
		return tx.SelectContext(ctx, &rows, query, locationID, periodStart, periodEnd)
	})
	if err != nil {
		return nil, err
	}

	return rows, nil
}
