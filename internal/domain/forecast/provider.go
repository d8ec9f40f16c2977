package forecast

import (
	"context"
	"time"
)

// ProductAttributes are the stored attributes of a product needed to encode it
type ProductAttributes struct {
	ProductID int64
	Name      string
	// Country is the customer country of the product's most recent order, empty if unknown
	Country string
}

// HistoryProvider reads historical data for serving-time feature derivation.
// Implementations must honour ctx cancellation and deadlines.
type HistoryProvider interface {
	// ProductAttributes returns ErrProductNotFound when the product is unknown
	ProductAttributes(ctx context.Context, productID int64) (*ProductAttributes, error)
	// PeriodTotals returns up to limit most recent periods with records strictly
	// before ref, period-descending
	PeriodTotals(ctx context.Context, productID int64, ref Period, limit int) ([]PeriodAggregate, error)
}

// Model is a trained regression function over one schema
type Model interface {
	Schema() Schema
	InputDim() int
	// Predict evaluates one value per row. Rows must be InputDim long.
	Predict(ctx context.Context, rows [][]float64) ([]float64, error)
}

// OrderLine is one historical order detail joined with its order, product and customer
type OrderLine struct {
	OrderID     int64
	ProductID   int64
	ProductName string
	Country     string
	OrderDate   *time.Time
	Quantity    *int64
	UnitPrice   *float64
}

// Complete reports whether the line has every value training needs
func (l OrderLine) Complete() bool {
	return l.OrderDate != nil && l.Quantity != nil && l.UnitPrice != nil && l.ProductName != ""
}

// OrderLineSource reads the full training population
type OrderLineSource interface {
	OrderLines(ctx context.Context) ([]OrderLine, error)
}
