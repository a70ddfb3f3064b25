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

// Delivery statuses
const (
	DeliveryStatusDraft    = "draft"
	DeliveryStatusReceived = "received"
)

// Delivery is the audit header for one incoming shipment. Immutable after
// confirmation except via corrective ledger transactions.
type Delivery struct {
	ID            string          `db:"id" json:"id"`
	WarehouseID   string          `db:"warehouse_id" json:"warehouse_id"`
	Supplier      string          `db:"supplier" json:"supplier"`
	InvoiceNumber string          `db:"invoice_number" json:"invoice_number"`
	InvoiceDate   time.Time       `db:"invoice_date" json:"invoice_date"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	Notes         string          `db:"notes" json:"notes,omitempty"`
	Status        string          `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	Lines         []*DeliveryLine `db:"-" json:"lines,omitempty"`
}

// DeliveryLine is one line item of a delivery. Ordered and received may
// differ; under-delivery is a business fact, not a fault.
type DeliveryLine struct {
	ID               string          `db:"id" json:"id"`
	DeliveryID       string          `db:"delivery_id" json:"delivery_id"`
	IngredientID     string          `db:"ingredient_id" json:"ingredient_id"`
	QuantityOrdered  decimal.Decimal `db:"quantity_ordered" json:"quantity_ordered"`
	QuantityReceived decimal.Decimal `db:"quantity_received" json:"quantity_received"`
	UnitPrice        decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// DeliveryRepository handles delivery persistence
type DeliveryRepository struct {
	db *database.DB
}

// NewDeliveryRepository creates a new delivery repository
func NewDeliveryRepository(db *database.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// CreateReceived persists the delivery header, its line items and the
// matching delivery_in ledger rows as a single all-or-nothing unit. If any
// insert fails (for example an unknown ingredient reference on a later line),
// the whole transaction rolls back and no partial stock credit is applied.
func (r *DeliveryRepository) CreateReceived(ctx context.Context, d *Delivery, txns []*InventoryTransaction) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.Status = DeliveryStatusReceived

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := insertDelivery(ctx, tx, d); err != nil {
			return err
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
	return nil
}

// CreateDraft persists the delivery header and lines only; no ledger effect
// until Confirm.
func (r *DeliveryRepository) CreateDraft(ctx context.Context, d *Delivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.Status = DeliveryStatusDraft

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return insertDelivery(ctx, tx, d)
	})
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// Confirm moves a draft delivery to received and appends its ledger rows, all
// in one transaction. The conditional status update is the serialization
// point: only one concurrent Confirm can win.
func (r *DeliveryRepository) Confirm(ctx context.Context, id string, txns []*InventoryTransaction) error {
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE deliveries SET status = $2 WHERE id = $1 AND status = $3`,
			id, DeliveryStatusReceived, DeliveryStatusDraft)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return errors.Conflict("delivery is not in draft status")
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
	return nil
}

func insertDelivery(ctx context.Context, tx *sqlx.Tx, d *Delivery) error {
	query := `
		INSERT INTO deliveries (id, warehouse_id, supplier, invoice_number, invoice_date, total_amount, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	if err := tx.QueryRowxContext(ctx, query,
		d.ID, d.WarehouseID, d.Supplier, d.InvoiceNumber, d.InvoiceDate, d.TotalAmount, d.Notes, d.Status,
	).Scan(&d.CreatedAt); err != nil {
		return err
	}

	for _, line := range d.Lines {
		if line.ID == "" {
			line.ID = uuid.New().String()
		}
		line.DeliveryID = d.ID

		lineQuery := `
			INSERT INTO delivery_lines (id, delivery_id, ingredient_id, quantity_ordered, quantity_received, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		if _, err := tx.ExecContext(ctx, lineQuery,
			line.ID, line.DeliveryID, line.IngredientID, line.QuantityOrdered, line.QuantityReceived, line.UnitPrice,
		); err != nil {
			return err
		}
	}
	return nil
}

// GetByID gets a delivery with its lines
func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*Delivery, error) {
	var d Delivery

	query := `
		SELECT id, warehouse_id, supplier, invoice_number, invoice_date, total_amount, notes, status, created_at
		FROM deliveries WHERE id = $1
	`
	err := r.db.GetContext(ctx, &d, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("delivery")
	}
	if err != nil {
		return nil, err
	}

	lineQuery := `
		SELECT id, delivery_id, ingredient_id, quantity_ordered, quantity_received, unit_price
		FROM delivery_lines WHERE delivery_id = $1
		ORDER BY id
	`
	if err := r.db.SelectContext(ctx, &d.Lines, lineQuery, id); err != nil {
		return nil, err
	}

	return &d, nil
}

// List lists deliveries newest first, with optional status filter
func (r *DeliveryRepository) List(ctx context.Context, status string, page, perPage int) ([]*Delivery, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	countQuery := `SELECT COUNT(*) FROM deliveries WHERE ($1 = '' OR status = $1)`
	if err := r.db.GetContext(ctx, &total, countQuery, status); err != nil {
		return nil, 0, err
	}

	var deliveries []*Delivery
	query := `
		SELECT id, warehouse_id, supplier, invoice_number, invoice_date, total_amount, notes, status, created_at
		FROM deliveries
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &deliveries, query, status, perPage, offset); err != nil {
		return nil, 0, err
	}

	return deliveries, total, nil
}
