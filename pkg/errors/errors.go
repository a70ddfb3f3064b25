package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// Standard error types
var (
	ErrNotFound           = errors.New("resource not found")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("resource conflict")
	ErrInternal           = errors.New("internal server error")
	ErrValidation         = errors.New("validation error")
	ErrUnknownIngredient  = errors.New("unknown ingredient")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidDelivery    = errors.New("invalid delivery")
	ErrInvalidTransfer    = errors.New("invalid transfer")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrReservationTimeout = errors.New("reservation timeout")
	ErrPartialWrite       = errors.New("partial write failure")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Domain error constructors

// UnknownIngredient reports a reference to an ingredient that does not exist
// in the catalog. Always a caller error, never retried.
func UnknownIngredient(ingredientID string) *AppError {
	return &AppError{
		Err:        ErrUnknownIngredient,
		Code:       "UNKNOWN_INGREDIENT",
		Message:    fmt.Sprintf("ingredient %s does not exist", ingredientID),
		StatusCode: http.StatusUnprocessableEntity,
		Details:    map[string]string{"ingredient_id": ingredientID},
	}
}

// InvalidQuantity reports a zero or wrong-signed transaction quantity.
func InvalidQuantity(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidQuantity,
		Code:       "INVALID_QUANTITY",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// InvalidDelivery reports a malformed delivery, rejected before any write.
func InvalidDelivery(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidDelivery,
		Code:       "INVALID_DELIVERY",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// InvalidTransfer reports a malformed transfer request or an illegal state
// transition, rejected before any write.
func InvalidTransfer(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidTransfer,
		Code:       "INVALID_TRANSFER",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// InsufficientStock reports a reservation that exceeds available stock.
// Expected business condition, surfaced to the user with enough detail to
// correct the request, not retried automatically.
func InsufficientStock(ingredientID string, requested, available decimal.Decimal) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    fmt.Sprintf("insufficient stock for ingredient %s: requested %s, available %s", ingredientID, requested, available),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"ingredient_id": ingredientID,
			"requested":     requested.String(),
			"available":     available.String(),
		},
	}
}

// ReservationTimeout reports that the bounded wait for the per-ingredient
// reservation lock expired. Safe to retry with backoff.
func ReservationTimeout(ingredientID string) *AppError {
	return &AppError{
		Err:        ErrReservationTimeout,
		Code:       "RESERVATION_TIMEOUT",
		Message:    fmt.Sprintf("timed out waiting for reservation lock on ingredient %s", ingredientID),
		StatusCode: http.StatusServiceUnavailable,
		Details:    map[string]string{"ingredient_id": ingredientID},
	}
}

// PartialWrite reports a multi-line operation where a later line failed after
// earlier lines succeeded. The whole operation has been rolled back.
func PartialWrite(operation string, cause error) *AppError {
	return &AppError{
		Err:        ErrPartialWrite,
		Code:       "PARTIAL_WRITE_FAILURE",
		Message:    fmt.Sprintf("%s rolled back: %v", operation, cause),
		StatusCode: http.StatusInternalServerError,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
