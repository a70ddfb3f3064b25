package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IngredientFixture represents test ingredient data
type IngredientFixture struct {
	ID               string
	Name             string
	Unit             string
	Category         string
	ReorderThreshold decimal.Decimal
	LastUnitPrice    decimal.Decimal
	IsActive         bool
}

// DeliveryLineFixture represents one line of a test delivery
type DeliveryLineFixture struct {
	IngredientID     string
	QuantityOrdered  decimal.Decimal
	QuantityReceived decimal.Decimal
	UnitPrice        decimal.Decimal
}

// DeliveryFixture represents test delivery data
type DeliveryFixture struct {
	Supplier      string
	InvoiceNumber string
	InvoiceDate   time.Time
	TotalAmount   decimal.Decimal
	Lines         []DeliveryLineFixture
}

// FixtureFactory generates unique test fixtures
type FixtureFactory struct {
	mu  sync.Mutex
	seq int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{}
}

func (f *FixtureFactory) nextSeq() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return f.seq
}

// Ingredient creates an ingredient fixture with optional overrides
func (f *FixtureFactory) Ingredient(opts ...func(*IngredientFixture)) IngredientFixture {
	seq := f.nextSeq()
	ing := IngredientFixture{
		ID:               uuid.New().String(),
		Name:             fmt.Sprintf("Ingredient %d", seq),
		Unit:             "kg",
		Category:         "general",
		ReorderThreshold: decimal.NewFromInt(5),
		LastUnitPrice:    decimal.NewFromFloat(10.50),
		IsActive:         true,
	}

	for _, opt := range opts {
		opt(&ing)
	}
	return ing
}

// WithIngredientName overrides the ingredient name
func WithIngredientName(name string) func(*IngredientFixture) {
	return func(ing *IngredientFixture) {
		ing.Name = name
	}
}

// WithUnit overrides the ingredient unit
func WithUnit(unit string) func(*IngredientFixture) {
	return func(ing *IngredientFixture) {
		ing.Unit = unit
	}
}

// WithCategory overrides the ingredient category
func WithCategory(category string) func(*IngredientFixture) {
	return func(ing *IngredientFixture) {
		ing.Category = category
	}
}

// WithReorderThreshold overrides the reorder threshold
func WithReorderThreshold(threshold decimal.Decimal) func(*IngredientFixture) {
	return func(ing *IngredientFixture) {
		ing.ReorderThreshold = threshold
	}
}

// WithUnitPrice overrides the last unit price
func WithUnitPrice(price decimal.Decimal) func(*IngredientFixture) {
	return func(ing *IngredientFixture) {
		ing.LastUnitPrice = price
	}
}

// Delivery creates a delivery fixture for the given ingredients
func (f *FixtureFactory) Delivery(lines ...DeliveryLineFixture) DeliveryFixture {
	seq := f.nextSeq()

	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.QuantityReceived.Mul(line.UnitPrice))
	}

	return DeliveryFixture{
		Supplier:      fmt.Sprintf("Supplier %d", seq),
		InvoiceNumber: fmt.Sprintf("INV-%05d", seq),
		InvoiceDate:   time.Now(),
		TotalAmount:   total,
		Lines:         lines,
	}
}

// DeliveryLine creates a delivery line fixture where the full ordered
// quantity arrived
func DeliveryLine(ingredientID string, quantity, unitPrice decimal.Decimal) DeliveryLineFixture {
	return DeliveryLineFixture{
		IngredientID:     ingredientID,
		QuantityOrdered:  quantity,
		QuantityReceived: quantity,
		UnitPrice:        unitPrice,
	}
}
