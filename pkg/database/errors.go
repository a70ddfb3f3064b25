package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/larder/larder-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		if strings.Contains(pqErr.Constraint, "ingredient") {
			return errors.UnknownIngredient(extractDetailValue(pqErr.Detail))
		}
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_nonzero"):
		return errors.InvalidQuantity("transaction quantity must not be zero")

	case strings.Contains(constraint, "movement_kind_valid"):
		return errors.Validation(map[string]string{
			"kind": "must be one of: delivery_in, transfer_in, transfer_out, consumption, manual_adjustment",
		})

	case strings.Contains(constraint, "delivery_status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: draft, received",
		})

	case strings.Contains(constraint, "transfer_status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: draft, pending, in_transit, received, cancelled",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "invoice_number"):
		return "a delivery with this invoice number already exists"
	case strings.Contains(constraint, "deviation_period"):
		return "a deviation record for this ingredient and period already exists"
	default:
		return "a record with these values already exists"
	}
}

// extractDetailValue pulls the offending key value out of a pq error detail
// string of the form `Key (ingredient_id)=(abc) is not present in table ...`.
func extractDetailValue(detail string) string {
	start := strings.Index(detail, ")=(")
	if start < 0 {
		return ""
	}
	rest := detail[start+3:]
	end := strings.Index(rest, ")")
	if end < 0 {
		return rest
	}
	return rest[:end]
}
