package forecast

import (
	"fmt"
)

// Schema identifies an ordered, fixed-length feature layout
type Schema string

const (
	// SchemaLagRolling predicts a product's monthly total quantity from its recent history
	SchemaLagRolling Schema = "lag_rolling_v1"
	// SchemaCalendarCategorical predicts line revenue from calendar and categorical features
	SchemaCalendarCategorical Schema = "calendar_categorical_v1"
)

// Feature names, in the order they appear in a vector
const (
	FeaturePeriodNumber        = "period_number"
	FeatureProductCode         = "product_code"
	FeatureUnitPrice           = "unit_price"
	FeatureMonth               = "month"
	FeaturePreviousPeriodTotal = "previous_period_total"
	FeatureRollingMean3        = "rolling_mean_3"
	FeatureYear                = "year"
	FeatureDayOfWeek           = "day_of_week"
	FeatureSeason              = "season"
	FeatureCountryCode         = "country_code"
	FeatureQuantity            = "quantity"
	FeatureAveragePrice        = "average_price"
)

var schemaFeatures = map[Schema][]string{
	SchemaLagRolling: {
		FeaturePeriodNumber,
		FeatureProductCode,
		FeatureUnitPrice,
		FeatureMonth,
		FeaturePreviousPeriodTotal,
		FeatureRollingMean3,
	},
	SchemaCalendarCategorical: {
		FeatureMonth,
		FeatureYear,
		FeatureDayOfWeek,
		FeatureSeason,
		FeatureCountryCode,
		FeatureProductCode,
		FeatureQuantity,
		FeatureUnitPrice,
		FeatureAveragePrice,
	},
}

// ParseSchema returns the schema named s
func ParseSchema(s string) (Schema, error) {
	schema := Schema(s)
	if !schema.Valid() {
		return "", fmt.Errorf("unknown feature schema %q", s)
	}
	return schema, nil
}

// Valid reports whether s is a known schema
func (s Schema) Valid() bool {
	_, ok := schemaFeatures[s]
	return ok
}

// FeatureNames returns the ordered feature names of s
func (s Schema) FeatureNames() []string {
	names := schemaFeatures[s]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Dim returns the vector length of s
func (s Schema) Dim() int {
	return len(schemaFeatures[s])
}

// RequiresQuantity reports whether requests under s must carry a quantity
func (s Schema) RequiresQuantity() bool {
	return s == SchemaCalendarCategorical
}

// RequiresCountry reports whether s encodes the customer country
func (s Schema) RequiresCountry() bool {
	return s == SchemaCalendarCategorical
}

// RequiresHistory reports whether s needs period aggregates
func (s Schema) RequiresHistory() bool {
	return s == SchemaLagRolling
}

// FeatureInputs holds every raw value any schema may draw from
type FeatureInputs struct {
	Period       Period
	Calendar     CalendarFeatures
	Lag          LagFeatures
	ProductCode  int
	CountryCode  int
	UnitPrice    float64
	Quantity     float64
	AveragePrice float64
}

// FeatureVector is an assembled model input row
type FeatureVector struct {
	Schema Schema
	Names  []string
	Values []float64
}

// Assemble lays out in according to schema
func Assemble(schema Schema, in FeatureInputs) (FeatureVector, error) {
	var values []float64
	switch schema {
	case SchemaLagRolling:
		values = []float64{
			float64(in.Period.Number()),
			float64(in.ProductCode),
			in.UnitPrice,
			float64(in.Period.Month),
			in.Lag.PreviousPeriodTotal,
			in.Lag.RollingMean3,
		}
	case SchemaCalendarCategorical:
		values = []float64{
			float64(in.Calendar.Month),
			float64(in.Calendar.Year),
			float64(in.Calendar.DayOfWeek),
			float64(in.Calendar.Season),
			float64(in.CountryCode),
			float64(in.ProductCode),
			in.Quantity,
			in.UnitPrice,
			in.AveragePrice,
		}
	default:
		return FeatureVector{}, SchemaMismatch(fmt.Sprintf("unknown schema %q", schema))
	}
	return FeatureVector{Schema: schema, Names: schema.FeatureNames(), Values: values}, nil
}

// Validate checks that v fits a model declaring schema and dim inputs
func (v FeatureVector) Validate(schema Schema, dim int) error {
	if v.Schema != schema {
		return SchemaMismatch(fmt.Sprintf("vector schema %q, model schema %q", v.Schema, schema))
	}
	if len(v.Values) != dim {
		return SchemaMismatch(fmt.Sprintf("vector has %d features, model expects %d", len(v.Values), dim))
	}
	if len(v.Names) != len(v.Values) {
		return SchemaMismatch(fmt.Sprintf("vector has %d names for %d values", len(v.Names), len(v.Values)))
	}
	return nil
}

// Map returns the vector as a name to value map
func (v FeatureVector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.Names))
	for i, name := range v.Names {
		if i < len(v.Values) {
			out[name] = v.Values[i]
		}
	}
	return out
}
