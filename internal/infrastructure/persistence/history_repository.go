package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/salesforecast/internal/domain/forecast"
	"github.com/erp/salesforecast/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// Ensure GormHistoryRepository implements the provider and training source
var (
	_ forecast.HistoryProvider = (*GormHistoryRepository)(nil)
	_ forecast.OrderLineSource = (*GormHistoryRepository)(nil)
)

// GormHistoryRepository reads product, order and customer history through GORM
type GormHistoryRepository struct {
	db            *gorm.DB
	lookupCountry bool
}

// HistoryRepositoryOption configures a GormHistoryRepository
type HistoryRepositoryOption func(*GormHistoryRepository)

// WithCountryLookup makes ProductAttributes resolve the country of the
// product's most recent order. A product without any order is then reported
// as not found.
func WithCountryLookup() HistoryRepositoryOption {
	return func(r *GormHistoryRepository) {
		r.lookupCountry = true
	}
}

// NewGormHistoryRepository creates a new GormHistoryRepository
func NewGormHistoryRepository(db *gorm.DB, opts ...HistoryRepositoryOption) *GormHistoryRepository {
	r := &GormHistoryRepository{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProductAttributes returns the product's name and, when configured, its latest customer country
func (r *GormHistoryRepository) ProductAttributes(ctx context.Context, productID int64) (*forecast.ProductAttributes, error) {
	var product models.ProductModel
	err := r.db.WithContext(ctx).
		Select("product_id", "product_name").
		Where("product_id = ?", productID).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, forecast.ProductNotFound(productID)
		}
		return nil, unavailable("product lookup", err)
	}

	attrs := &forecast.ProductAttributes{ProductID: product.ProductID, Name: product.ProductName}
	if !r.lookupCountry {
		return attrs, nil
	}

	var countries []string
	err = r.db.WithContext(ctx).
		Table("order_details AS od").
		Select("c.country").
		Joins("JOIN orders o ON od.order_id = o.order_id").
		Joins("JOIN customers c ON o.customer_id = c.customer_id").
		Where("od.product_id = ? AND c.country IS NOT NULL AND o.order_date IS NOT NULL", productID).
		Order("o.order_date DESC").
		Limit(1).
		Scan(&countries).Error
	if err != nil {
		return nil, unavailable("country lookup", err)
	}
	if len(countries) == 0 {
		return nil, forecast.ProductNotFound(productID)
	}
	attrs.Country = countries[0]
	return attrs, nil
}

type periodRow struct {
	Period   string
	Quantity float64
}

// PeriodTotals returns the product's monthly quantity totals for up to limit
// most recent months that have orders strictly before ref, newest first.
// A line counts when it has an order date, a quantity and a price of its own
// or from the product, matching the lines the trainer learns from. Months are
// compared as YYYY-MM buckets so the session time zone cannot move a date
// across a month boundary.
func (r *GormHistoryRepository) PeriodTotals(ctx context.Context, productID int64, ref forecast.Period, limit int) ([]forecast.PeriodAggregate, error) {
	bucket := r.monthBucket("o.order_date")
	var rows []periodRow
	err := r.db.WithContext(ctx).
		Table("order_details AS od").
		Select(bucket+" AS period, SUM(od.quantity) AS quantity").
		Joins("JOIN orders o ON od.order_id = o.order_id").
		Joins("JOIN products p ON od.product_id = p.product_id").
		Where("od.product_id = ? AND o.order_date IS NOT NULL AND od.quantity IS NOT NULL", productID).
		Where("COALESCE(od.unit_price, p.unit_price) IS NOT NULL").
		Where(bucket+" < ?", ref.String()).
		Group("period").
		Order("period DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable("period totals", err)
	}

	out := make([]forecast.PeriodAggregate, 0, len(rows))
	for _, row := range rows {
		p, err := forecast.ParsePeriod(row.Period)
		if err != nil {
			return nil, unavailable("period totals", err)
		}
		out = append(out, forecast.PeriodAggregate{Period: p, Quantity: row.Quantity})
	}
	return out, nil
}

type orderLineRow struct {
	OrderID     int64
	ProductID   int64
	ProductName string
	Country     *string
	OrderDate   *time.Time
	Quantity    *int64
	UnitPrice   *float64
}

// OrderLines returns every order line joined with its order, product and customer.
// The line price falls back to the product list price when the line has none.
func (r *GormHistoryRepository) OrderLines(ctx context.Context) ([]forecast.OrderLine, error) {
	var rows []orderLineRow
	err := r.db.WithContext(ctx).
		Table("order_details AS od").
		Select(`o.order_id, od.product_id, p.product_name, c.country, o.order_date, od.quantity,
			COALESCE(od.unit_price, p.unit_price) AS unit_price`).
		Joins("JOIN orders o ON od.order_id = o.order_id").
		Joins("JOIN products p ON od.product_id = p.product_id").
		Joins("LEFT JOIN customers c ON o.customer_id = c.customer_id").
		Order("o.order_id, od.product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable("order lines", err)
	}

	lines := make([]forecast.OrderLine, len(rows))
	for i, row := range rows {
		lines[i] = forecast.OrderLine{
			OrderID:     row.OrderID,
			ProductID:   row.ProductID,
			ProductName: row.ProductName,
			OrderDate:   row.OrderDate,
			Quantity:    row.Quantity,
			UnitPrice:   row.UnitPrice,
		}
		if row.Country != nil {
			lines[i].Country = *row.Country
		}
	}
	return lines, nil
}

// monthBucket returns the dialect's YYYY-MM expression for a date column
func (r *GormHistoryRepository) monthBucket(column string) string {
	if r.db.Dialector.Name() == "sqlite" {
		return fmt.Sprintf("strftime('%%Y-%%m', %s)", column)
	}
	return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM')", column)
}

func unavailable(op string, err error) error {
	return forecast.WrapError(forecast.KindDataUnavailable, op, err)
}
