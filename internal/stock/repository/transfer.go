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

// Transfer statuses
const (
	TransferStatusDraft     = "draft"
	TransferStatusPending   = "pending"
	TransferStatusInTransit = "in_transit"
	TransferStatusReceived  = "received"
	TransferStatusCancelled = "cancelled"
)

// Transfer moves stock from the warehouse to a consuming location. Lifecycle:
// draft -> pending -> in_transit -> received, with cancelled reachable from
// any non-received state.
type Transfer struct {
	ID                string          `db:"id" json:"id"`
	SourceWarehouseID string          `db:"source_warehouse_id" json:"source_warehouse_id"`
	DestLocationID    string          `db:"dest_location_id" json:"dest_location_id"`
	Status            string          `db:"status" json:"status"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
	Lines             []*TransferLine `db:"-" json:"lines,omitempty"`
}

// TransferLine is one line item of a transfer. The reservation is sized to
// the ordered quantity; received may differ.
type TransferLine struct {
	ID               string          `db:"id" json:"id"`
	TransferID       string          `db:"transfer_id" json:"transfer_id"`
	IngredientID     string          `db:"ingredient_id" json:"ingredient_id"`
	QuantityOrdered  decimal.Decimal `db:"quantity_ordered" json:"quantity_ordered"`
	QuantityReceived decimal.Decimal `db:"quantity_received" json:"quantity_received"`
}

// TransferRepository handles transfer persistence
type TransferRepository struct {
	db *database.DB
}

// NewTransferRepository creates a new transfer repository
func NewTransferRepository(db *database.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// Create persists a transfer with its lines
func (r *TransferRepository) Create(ctx context.Context, t *Transfer) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO transfers (id, source_warehouse_id, dest_location_id, status)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at
		`
		if err := tx.QueryRowxContext(ctx, query,
			t.ID, t.SourceWarehouseID, t.DestLocationID, t.Status,
		).Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
			return err
		}

		for _, line := range t.Lines {
			if line.ID == "" {
				line.ID = uuid.New().String()
			}
			line.TransferID = t.ID

			lineQuery := `
				INSERT INTO transfer_lines (id, transfer_id, ingredient_id, quantity_ordered, quantity_received)
				VALUES ($1, $2, $3, $4, $5)
			`
			if _, err := tx.ExecContext(ctx, lineQuery,
				line.ID, line.TransferID, line.IngredientID, line.QuantityOrdered, line.QuantityReceived,
			); err != nil {
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

// GetByID gets a transfer with its lines
func (r *TransferRepository) GetByID(ctx context.Context, id string) (*Transfer, error) {
	var t Transfer

	query := `
		SELECT id, source_warehouse_id, dest_location_id, status, created_at, updated_at
		FROM transfers WHERE id = $1
	`
	err := r.db.GetContext(ctx, &t, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("transfer")
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadLines(ctx, &t); err != nil {
		return nil, err
	}

	return &t, nil
}

func (r *TransferRepository) loadLines(ctx context.Context, t *Transfer) error {
	lineQuery := `
		SELECT id, transfer_id, ingredient_id, quantity_ordered, quantity_received
		FROM transfer_lines WHERE transfer_id = $1
		ORDER BY id
	`
	return r.db.SelectContext(ctx, &t.Lines, lineQuery, t.ID)
}

// List lists transfers newest first, with optional status filter
func (r *TransferRepository) List(ctx context.Context, status string, page, perPage int) ([]*Transfer, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	countQuery := `SELECT COUNT(*) FROM transfers WHERE ($1 = '' OR status = $1)`
	if err := r.db.GetContext(ctx, &total, countQuery, status); err != nil {
		return nil, 0, err
	}

	var transfers []*Transfer
	query := `
		SELECT id, source_warehouse_id, dest_location_id, status, created_at, updated_at
		FROM transfers
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &transfers, query, status, perPage, offset); err != nil {
		return nil, 0, err
	}

	return transfers, total, nil
}

// ListOpen returns all transfers holding reservations (pending or in
// transit), lines included. Used to rebuild reservation state at startup.
func (r *TransferRepository) ListOpen(ctx context.Context) ([]*Transfer, error) {
	var transfers []*Transfer
	query := `
		SELECT id, source_warehouse_id, dest_location_id, status, created_at, updated_at
		FROM transfers
		WHERE status IN ($1, $2)
		ORDER BY created_at
	`
	if err := r.db.SelectContext(ctx, &transfers, query, TransferStatusPending, TransferStatusInTransit); err != nil {
		return nil, err
	}

	for _, t := range transfers {
		if err := r.loadLines(ctx, t); err != nil {
			return nil, err
		}
	}
	return transfers, nil
}

// UpdateStatus performs a guarded state transition: the row is updated only
// if it is still in the expected status. Exactly one of two concurrent
// transitions on the same transfer can win; the loser gets a Conflict.
func (r *TransferRepository) UpdateStatus(ctx context.Context, id, fromStatus, toStatus string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE transfers SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, fromStatus, toStatus)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.Conflict("transfer is not in status " + fromStatus)
	}
	return nil
}

// CancelFrom moves a transfer to cancelled from any of the given statuses,
// returning the status it actually left. The row lock serializes the
// transition against a concurrent dispatch or receive.
func (r *TransferRepository) CancelFrom(ctx context.Context, id string, fromStatuses []string) (string, error) {
	var fromStatus string
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &fromStatus,
			`SELECT status FROM transfers WHERE id = $1 FOR UPDATE`, id); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("transfer")
			}
			return err
		}

		allowed := false
		for _, s := range fromStatuses {
			if fromStatus == s {
				allowed = true
				break
			}
		}
		if !allowed {
			return errors.InvalidTransfer("transfer in status " + fromStatus + " cannot be cancelled")
		}

		_, err := tx.ExecContext(ctx,
			`UPDATE transfers SET status = $2, updated_at = NOW() WHERE id = $1`,
			id, TransferStatusCancelled)
		return err
	})
	if err != nil {
		return "", err
	}
	return fromStatus, nil
}

// Receive writes the stock movements of a received transfer and flips its
// status, all in one transaction: a transfer_out at the source and a
// transfer_in at the destination for every line, plus the line's received
// quantity, plus the guarded status transition. Any failure rolls the whole
// receipt back.
func (r *TransferRepository) Receive(ctx context.Context, t *Transfer, txns []*InventoryTransaction) error {
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE transfers SET status = $2, updated_at = NOW() WHERE id = $1 AND status IN ($3, $4)`,
			t.ID, TransferStatusReceived, TransferStatusPending, TransferStatusInTransit)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return errors.Conflict("transfer cannot be received from its current status")
		}

		for _, line := range t.Lines {
			if _, err := tx.ExecContext(ctx,
				`UPDATE transfer_lines SET quantity_received = $2 WHERE id = $1`,
				line.ID, line.QuantityReceived); err != nil {
				return err
			}
		}

		for _, txn := range txns {
			if err := insertTransaction(ctx, tx, txn); err != nil {
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

	t.Status = TransferStatusReceived
	return nil
}
