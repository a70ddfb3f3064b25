package testutil

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// StockSchema is the full stock-service schema used by integration tests.
// It mirrors the production migrations, including the trigger that makes
// inventory_transactions append-only at the database level.
const StockSchema = `
	CREATE TABLE IF NOT EXISTS ingredients (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name VARCHAR(200) NOT NULL,
		unit VARCHAR(20) NOT NULL,
		category VARCHAR(100) NOT NULL DEFAULT '',
		reorder_threshold NUMERIC(14,3) NOT NULL DEFAULT 0,
		last_unit_price NUMERIC(14,4) NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS inventory_transactions (
		id UUID PRIMARY KEY,
		ingredient_id UUID NOT NULL REFERENCES ingredients(id),
		location_id VARCHAR(100) NOT NULL,
		kind VARCHAR(30) NOT NULL,
		quantity NUMERIC(14,3) NOT NULL,
		reference VARCHAR(200) NOT NULL DEFAULT '',
		reason VARCHAR(500) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT quantity_nonzero CHECK (quantity <> 0),
		CONSTRAINT movement_kind_valid CHECK (kind IN
			('delivery_in', 'transfer_in', 'transfer_out', 'consumption', 'manual_adjustment'))
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_ingredient_location
		ON inventory_transactions (ingredient_id, location_id, created_at);

	CREATE OR REPLACE FUNCTION reject_ledger_mutation()
	RETURNS TRIGGER AS $$
	BEGIN
		RAISE EXCEPTION 'inventory_transactions is append-only';
	END;
	$$ LANGUAGE plpgsql;

	DROP TRIGGER IF EXISTS ledger_append_only ON inventory_transactions;
	CREATE TRIGGER ledger_append_only
		BEFORE UPDATE OR DELETE ON inventory_transactions
		FOR EACH ROW EXECUTE FUNCTION reject_ledger_mutation();

	CREATE TABLE IF NOT EXISTS deliveries (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		warehouse_id VARCHAR(100) NOT NULL,
		supplier VARCHAR(200) NOT NULL,
		invoice_number VARCHAR(100) NOT NULL,
		invoice_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		total_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
		notes VARCHAR(1000) NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'received',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT delivery_status_valid CHECK (status IN ('draft', 'received')),
		CONSTRAINT deliveries_invoice_number_key UNIQUE (supplier, invoice_number)
	);

	CREATE TABLE IF NOT EXISTS delivery_lines (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		delivery_id UUID NOT NULL REFERENCES deliveries(id) ON DELETE CASCADE,
		ingredient_id UUID NOT NULL REFERENCES ingredients(id),
		quantity_ordered NUMERIC(14,3) NOT NULL DEFAULT 0,
		quantity_received NUMERIC(14,3) NOT NULL DEFAULT 0,
		unit_price NUMERIC(14,4) NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS transfers (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		source_warehouse_id VARCHAR(100) NOT NULL,
		dest_location_id VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT transfer_status_valid CHECK (status IN
			('draft', 'pending', 'in_transit', 'received', 'cancelled'))
	);

	CREATE TABLE IF NOT EXISTS transfer_lines (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		transfer_id UUID NOT NULL REFERENCES transfers(id) ON DELETE CASCADE,
		ingredient_id UUID NOT NULL REFERENCES ingredients(id),
		quantity_ordered NUMERIC(14,3) NOT NULL,
		quantity_received NUMERIC(14,3) NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS theoretical_usage (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		ingredient_id UUID NOT NULL REFERENCES ingredients(id),
		period_start TIMESTAMPTZ NOT NULL,
		period_end TIMESTAMPTZ NOT NULL,
		quantity NUMERIC(14,3) NOT NULL,
		reported_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT theoretical_usage_period_key UNIQUE (ingredient_id, period_start, period_end)
	);

	CREATE TABLE IF NOT EXISTS deviation_records (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		ingredient_id UUID NOT NULL REFERENCES ingredients(id),
		location_id VARCHAR(100) NOT NULL,
		period_start TIMESTAMPTZ NOT NULL,
		period_end TIMESTAMPTZ NOT NULL,
		theoretical_usage NUMERIC(14,3) NOT NULL,
		actual_usage NUMERIC(14,3) NOT NULL,
		deviation NUMERIC(14,3) NOT NULL,
		deviation_pct NUMERIC(14,4) NOT NULL,
		deviation_value NUMERIC(14,2) NOT NULL,
		status VARCHAR(20) NOT NULL,
		type VARCHAR(20) NOT NULL,
		investigation_notes TEXT,
		investigated_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT deviation_period_key UNIQUE (ingredient_id, location_id, period_start, period_end)
	);
`

// CreateStockSchema applies the stock schema to a test database
func CreateStockSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, StockSchema); err != nil {
		return fmt.Errorf("failed to create stock schema: %w", err)
	}
	return nil
}
