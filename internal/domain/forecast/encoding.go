package forecast

import (
	"fmt"
	"time"
)

// Entity names used in category maps
const (
	EntityProduct = "product"
	EntityCountry = "country"
)

// Encoding is the training-time categorical state reused verbatim at serving time
type Encoding struct {
	Schema        Schema
	RunID         string
	CreatedAt     time.Time
	Products      *CategoryMap
	Countries     *CategoryMap
	AveragePrices map[string]float64
}

// ProductCode returns the code of a product name
func (e *Encoding) ProductCode(name string) (int, error) {
	return e.Products.Encode(name)
}

// CountryCode returns the code of a country name
func (e *Encoding) CountryCode(name string) (int, error) {
	if e.Countries == nil {
		return 0, UnknownCategory(EntityCountry, name)
	}
	return e.Countries.Encode(name)
}

// AveragePrice returns the mean training unit price of a product
func (e *Encoding) AveragePrice(name string) (float64, error) {
	v, ok := e.AveragePrices[name]
	if !ok {
		return 0, UnknownCategory(EntityProduct, name)
	}
	return v, nil
}

// Validate checks the encoding is usable for its schema
func (e *Encoding) Validate() error {
	if !e.Schema.Valid() {
		return fmt.Errorf("encoding: unknown schema %q", e.Schema)
	}
	if e.Products == nil || e.Products.Len() == 0 {
		return fmt.Errorf("encoding: product map is empty")
	}
	if !e.Schema.RequiresCountry() {
		return nil
	}
	if e.Countries == nil || e.Countries.Len() == 0 {
		return fmt.Errorf("encoding: country map is empty")
	}
	for _, name := range e.Products.Names() {
		if _, ok := e.AveragePrices[name]; !ok {
			return fmt.Errorf("encoding: no average price for product %q", name)
		}
	}
	return nil
}
