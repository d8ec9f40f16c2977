package forecast

import (
	"time"
)

// Observation is the raw, not yet encoded, description of one row.
// The server fills it from a request and the trainer from historical data, and
// both pass it through Encoding.Vector so the two produce identical rows.
type Observation struct {
	Date        time.Time
	ProductName string
	Country     string
	UnitPrice   float64
	Quantity    float64
}

// Vector encodes obs under the encoding's schema.
// history is the product's period aggregates and is only read by the lag schema.
func (e *Encoding) Vector(obs Observation, history []PeriodAggregate) (FeatureVector, error) {
	productCode, err := e.ProductCode(obs.ProductName)
	if err != nil {
		return FeatureVector{}, err
	}

	in := FeatureInputs{
		ProductCode: productCode,
		UnitPrice:   obs.UnitPrice,
		Quantity:    obs.Quantity,
	}

	switch e.Schema {
	case SchemaLagRolling:
		in.Period = PeriodOf(obs.Date)
		in.Lag = DeriveLag(history, in.Period)
	case SchemaCalendarCategorical:
		in.Calendar = DeriveCalendar(obs.Date)
		if in.CountryCode, err = e.CountryCode(obs.Country); err != nil {
			return FeatureVector{}, err
		}
		if in.AveragePrice, err = e.AveragePrice(obs.ProductName); err != nil {
			return FeatureVector{}, err
		}
	}
	return Assemble(e.Schema, in)
}
