package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/larder/larder-backend/pkg/logger"
)

// StockProjector derives on-hand stock from the ledger.
// *repository.TransactionRepository satisfies it.
type StockProjector interface {
	ProjectStock(ctx context.Context, ingredientID, locationID string, asOf time.Time) (decimal.Decimal, error)
}

// OpenTransferLister returns transfers that still hold reservations.
// *repository.TransferRepository satisfies it.
type OpenTransferLister interface {
	ListOpen(ctx context.Context) ([]*repository.Transfer, error)
}

// reservationEntry serializes check-and-reserve for one ingredient. The lock
// channel has capacity 1; holding the token keeps two reservations from both
// observing the same available stock. The reserved figure itself is guarded
// by mu, so releases and reads never wait behind a stock projection.
type reservationEntry struct {
	lock chan struct{}

	mu       sync.Mutex
	reserved decimal.Decimal
}

func (e *reservationEntry) holds() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reserved
}

// ReservationManager tracks soft holds against warehouse stock. Reservations
// live in memory only; the ledger never sees them. Available stock is on-hand
// minus reserved, and the check-and-reserve step for an ingredient is
// serialized so concurrent transfers cannot both claim the last unit.
type ReservationManager struct {
	stock       StockProjector
	warehouseID string
	lockTimeout time.Duration
	logger      *logger.Logger

	mu      sync.Mutex
	entries map[string]*reservationEntry
}

// NewReservationManager creates a new reservation manager
func NewReservationManager(stock StockProjector, warehouseID string, lockTimeout time.Duration, log *logger.Logger) *ReservationManager {
	return &ReservationManager{
		stock:       stock,
		warehouseID: warehouseID,
		lockTimeout: lockTimeout,
		logger:      log,
		entries:     make(map[string]*reservationEntry),
	}
}

func (m *ReservationManager) entry(ingredientID string) *reservationEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[ingredientID]
	if !ok {
		e = &reservationEntry{lock: make(chan struct{}, 1)}
		m.entries[ingredientID] = e
	}
	return e
}

// acquire takes the per-ingredient token, waiting at most lockTimeout.
func (m *ReservationManager) acquire(ctx context.Context, e *reservationEntry, ingredientID string) error {
	timer := time.NewTimer(m.lockTimeout)
	defer timer.Stop()

	select {
	case e.lock <- struct{}{}:
		return nil
	case <-timer.C:
		return errors.ReservationTimeout(ingredientID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *reservationEntry) release() {
	<-e.lock
}

// Reserve places a hold of quantity against the warehouse's available stock.
// It fails with InsufficientStock when on-hand minus already-reserved cannot
// cover the request, and with ReservationTimeout when the per-ingredient
// lock stays contended past the configured wait.
func (m *ReservationManager) Reserve(ctx context.Context, ingredientID string, quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return errors.InvalidQuantity("reservation quantity must be positive")
	}

	e := m.entry(ingredientID)
	if err := m.acquire(ctx, e, ingredientID); err != nil {
		return err
	}
	defer e.release()

	onHand, err := m.stock.ProjectStock(ctx, ingredientID, m.warehouseID, time.Now())
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	available := onHand.Sub(e.reserved)
	if quantity.GreaterThan(available) {
		return errors.InsufficientStock(ingredientID, quantity, available)
	}

	e.reserved = e.reserved.Add(quantity)
	return nil
}

// Release returns a hold. Releasing more than is reserved indicates a
// bookkeeping bug elsewhere; the total clamps at zero and the excess is logged.
func (m *ReservationManager) Release(ingredientID string, quantity decimal.Decimal) {
	if !quantity.IsPositive() {
		return
	}

	e := m.entry(ingredientID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if quantity.GreaterThan(e.reserved) {
		m.logger.Error().
			Str("ingredient_id", ingredientID).
			Str("release", quantity.String()).
			Str("reserved", e.reserved.String()).
			Msg("released more than reserved, clamping to zero")
		e.reserved = decimal.Zero
		return
	}

	e.reserved = e.reserved.Sub(quantity)
}

// Reserved returns the current hold total for an ingredient
func (m *ReservationManager) Reserved(ingredientID string) decimal.Decimal {
	return m.entry(ingredientID).holds()
}

// Available returns on-hand minus reserved for an ingredient at the warehouse
func (m *ReservationManager) Available(ctx context.Context, ingredientID string) (decimal.Decimal, error) {
	e := m.entry(ingredientID)
	if err := m.acquire(ctx, e, ingredientID); err != nil {
		return decimal.Zero, err
	}
	defer e.release()

	onHand, err := m.stock.ProjectStock(ctx, ingredientID, m.warehouseID, time.Now())
	if err != nil {
		return decimal.Zero, err
	}
	return onHand.Sub(e.holds()), nil
}

// Rebuild recomputes all holds from transfers that are still pending or in
// transit. Called once at startup; reservations do not survive restarts on
// their own.
func (m *ReservationManager) Rebuild(ctx context.Context, transfers OpenTransferLister) error {
	open, err := transfers.ListOpen(ctx)
	if err != nil {
		return err
	}

	totals := make(map[string]decimal.Decimal)
	for _, t := range open {
		for _, line := range t.Lines {
			totals[line.IngredientID] = totals[line.IngredientID].Add(line.QuantityOrdered)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*reservationEntry, len(totals))
	for ingredientID, total := range totals {
		m.entries[ingredientID] = &reservationEntry{
			lock:     make(chan struct{}, 1),
			reserved: total,
		}
	}

	m.logger.Info().Int("open_transfers", len(open)).Int("ingredients", len(totals)).Msg("reservations rebuilt from open transfers")
	return nil
}
