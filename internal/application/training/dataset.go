package training

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/erp/salesforecast/internal/domain/forecast"
)

// Dataset is a training matrix with its targets
type Dataset struct {
	Schema     forecast.Schema
	X          [][]float64
	Y          []float64
	Vectors    []forecast.FeatureVector
	ProductIDs []int64
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.Y)
}

// usable reports whether a line can contribute to schema
func usable(l forecast.OrderLine, schema forecast.Schema) bool {
	if !l.Complete() {
		return false
	}
	if math.IsNaN(*l.UnitPrice) || math.IsInf(*l.UnitPrice, 0) {
		return false
	}
	if schema.RequiresCountry() && l.Country == "" {
		return false
	}
	return true
}

// UsableLines keeps the lines that can contribute to schema.
// A line needs an order date, a quantity and a finite price, which is also the
// rule the history provider applies when it sums monthly totals at serve time.
func UsableLines(schema forecast.Schema, lines []forecast.OrderLine) []forecast.OrderLine {
	out := make([]forecast.OrderLine, 0, len(lines))
	for _, l := range lines {
		if usable(l, schema) {
			out = append(out, l)
		}
	}
	return out
}

// BuildEncoding derives the categorical state of schema from the training population.
// Codes follow the sorted distinct names; average prices are the mean unit
// price per product over lines and are only kept for schemas that use them.
func BuildEncoding(schema forecast.Schema, lines []forecast.OrderLine, runID string, createdAt time.Time) (*forecast.Encoding, error) {
	if !schema.Valid() {
		return nil, forecast.SchemaMismatch(fmt.Sprintf("unknown schema %q", schema))
	}

	var products, countries []string
	priceSum := map[string]float64{}
	priceCount := map[string]int{}
	for _, l := range lines {
		products = append(products, l.ProductName)
		if schema.RequiresCountry() {
			countries = append(countries, l.Country)
		}
		priceSum[l.ProductName] += *l.UnitPrice
		priceCount[l.ProductName]++
	}

	enc := &forecast.Encoding{
		Schema:    schema,
		RunID:     runID,
		CreatedAt: createdAt.UTC(),
		Products:  forecast.NewCategoryMap(forecast.EntityProduct, products),
		Countries: forecast.NewCategoryMap(forecast.EntityCountry, countries),
	}
	if schema.RequiresCountry() {
		enc.AveragePrices = make(map[string]float64, len(priceSum))
		for name, sum := range priceSum {
			enc.AveragePrices[name] = sum / float64(priceCount[name])
		}
	}

	if err := enc.Validate(); err != nil {
		return nil, err
	}
	return enc, nil
}

// BuildDataset lays out the training rows of enc's schema from usable lines.
// Every row goes through Encoding.Vector, the same path the server uses.
func BuildDataset(enc *forecast.Encoding, lines []forecast.OrderLine) (*Dataset, error) {
	switch enc.Schema {
	case forecast.SchemaLagRolling:
		return monthlyDataset(enc, lines)
	case forecast.SchemaCalendarCategorical:
		return lineDataset(enc, lines)
	default:
		return nil, forecast.SchemaMismatch(fmt.Sprintf("unknown schema %q", enc.Schema))
	}
}

// lineDataset yields one row per order line with its revenue, clipped at zero, as target
func lineDataset(enc *forecast.Encoding, lines []forecast.OrderLine) (*Dataset, error) {
	ds := &Dataset{Schema: enc.Schema}
	for _, l := range lines {
		v, err := enc.Vector(forecast.Observation{
			Date:        *l.OrderDate,
			ProductName: l.ProductName,
			Country:     l.Country,
			UnitPrice:   *l.UnitPrice,
			Quantity:    float64(*l.Quantity),
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("order %d product %d: %w", l.OrderID, l.ProductID, err)
		}
		ds.add(l.ProductID, v, math.Max(float64(*l.Quantity) * *l.UnitPrice, 0))
	}
	return ds, nil
}

type monthKey struct {
	productID int64
	period    forecast.Period
}

type monthTotal struct {
	name     string
	quantity float64
	priceSum float64
	lines    int
}

// monthlyDataset yields one row per product and month with the month's total
// quantity as target and its mean unit price as the price feature.
// History is kept per product id, as the server looks it up by id; products
// sharing a name still share a category code.
func monthlyDataset(enc *forecast.Encoding, lines []forecast.OrderLine) (*Dataset, error) {
	totals := map[monthKey]*monthTotal{}
	for _, l := range lines {
		k := monthKey{productID: l.ProductID, period: forecast.PeriodOf(*l.OrderDate)}
		t, ok := totals[k]
		if !ok {
			t = &monthTotal{name: l.ProductName}
			totals[k] = t
		}
		t.quantity += float64(*l.Quantity)
		t.priceSum += *l.UnitPrice
		t.lines++
	}

	keys := make([]monthKey, 0, len(totals))
	history := map[int64][]forecast.PeriodAggregate{}
	for k, t := range totals {
		keys = append(keys, k)
		history[k.productID] = append(history[k.productID], forecast.PeriodAggregate{Period: k.period, Quantity: t.quantity})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].productID != keys[j].productID {
			return keys[i].productID < keys[j].productID
		}
		return keys[i].period.Before(keys[j].period)
	})

	ds := &Dataset{Schema: enc.Schema}
	for _, k := range keys {
		t := totals[k]
		v, err := enc.Vector(forecast.Observation{
			Date:        k.period.Start(),
			ProductName: t.name,
			UnitPrice:   t.priceSum / float64(t.lines),
		}, history[k.productID])
		if err != nil {
			return nil, fmt.Errorf("product %d period %s: %w", k.productID, k.period, err)
		}
		ds.add(k.productID, v, t.quantity)
	}
	return ds, nil
}

func (d *Dataset) add(productID int64, v forecast.FeatureVector, target float64) {
	d.ProductIDs = append(d.ProductIDs, productID)
	d.Vectors = append(d.Vectors, v)
	d.X = append(d.X, v.Values)
	d.Y = append(d.Y, target)
}
