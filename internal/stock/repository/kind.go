package repository

import (
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// MovementKind is the closed set of ledger movement kinds. The sign convention
// is encoded here and nowhere else: credits are stored positive, debits are
// stored negative, and manual adjustments carry an explicit signed value.
type MovementKind string

const (
	KindDeliveryIn       MovementKind = "delivery_in"
	KindTransferIn       MovementKind = "transfer_in"
	KindTransferOut      MovementKind = "transfer_out"
	KindConsumption      MovementKind = "consumption"
	KindManualAdjustment MovementKind = "manual_adjustment"
)

// AllMovementKinds lists every valid movement kind.
var AllMovementKinds = []MovementKind{
	KindDeliveryIn,
	KindTransferIn,
	KindTransferOut,
	KindConsumption,
	KindManualAdjustment,
}

// Valid reports whether k is a known movement kind.
func (k MovementKind) Valid() bool {
	switch k {
	case KindDeliveryIn, KindTransferIn, KindTransferOut, KindConsumption, KindManualAdjustment:
		return true
	}
	return false
}

// Inbound reports whether k credits stock at its location.
func (k MovementKind) Inbound() bool {
	return k == KindDeliveryIn || k == KindTransferIn
}

// Normalize converts a caller-supplied quantity into the signed value stored
// in the ledger. For credit kinds the input is a positive magnitude stored as
// is; for debit kinds the input is a positive magnitude stored negated.
// Manual adjustments pass their explicit sign through. Zero and wrong-signed
// quantities are rejected with InvalidQuantity.
func (k MovementKind) Normalize(quantity decimal.Decimal) (decimal.Decimal, error) {
	if quantity.IsZero() {
		return decimal.Zero, errors.InvalidQuantity("transaction quantity must not be zero")
	}

	switch k {
	case KindDeliveryIn, KindTransferIn:
		if quantity.IsNegative() {
			return decimal.Zero, errors.InvalidQuantity(string(k) + " quantity must be positive; use manual_adjustment for corrections")
		}
		return quantity, nil

	case KindTransferOut, KindConsumption:
		if quantity.IsNegative() {
			return decimal.Zero, errors.InvalidQuantity(string(k) + " quantity must be a positive magnitude; use manual_adjustment for corrections")
		}
		return quantity.Neg(), nil

	case KindManualAdjustment:
		return quantity, nil

	default:
		return decimal.Zero, errors.Validation(map[string]string{
			"kind": "must be one of: delivery_in, transfer_in, transfer_out, consumption, manual_adjustment",
		})
	}
}
