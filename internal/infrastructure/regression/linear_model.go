package regression

import (
	"context"
	"fmt"
	"math"

	"github.com/erp/salesforecast/internal/domain/forecast"
)

// LinearModel is a fitted linear regression over one feature schema.
// It is immutable and safe for concurrent use.
type LinearModel struct {
	schema       forecast.Schema
	featureNames []string
	intercept    float64
	coefficients []float64
}

// NewLinearModel builds a model from fitted parameters
func NewLinearModel(schema forecast.Schema, featureNames []string, intercept float64, coefficients []float64) (*LinearModel, error) {
	if len(coefficients) == 0 {
		return nil, fmt.Errorf("linear model has no coefficients")
	}
	if len(featureNames) != len(coefficients) {
		return nil, fmt.Errorf("linear model has %d feature names for %d coefficients", len(featureNames), len(coefficients))
	}
	if isBad(intercept) {
		return nil, fmt.Errorf("linear model intercept is not finite")
	}
	for i, c := range coefficients {
		if isBad(c) {
			return nil, fmt.Errorf("linear model coefficient %d is not finite", i)
		}
	}

	names := make([]string, len(featureNames))
	copy(names, featureNames)
	coef := make([]float64, len(coefficients))
	copy(coef, coefficients)

	return &LinearModel{
		schema:       schema,
		featureNames: names,
		intercept:    intercept,
		coefficients: coef,
	}, nil
}

// Schema returns the schema the model was fitted on
func (m *LinearModel) Schema() forecast.Schema {
	return m.schema
}

// InputDim returns the number of inputs
func (m *LinearModel) InputDim() int {
	return len(m.coefficients)
}

// FeatureNames returns the feature names in coefficient order
func (m *LinearModel) FeatureNames() []string {
	out := make([]string, len(m.featureNames))
	copy(out, m.featureNames)
	return out
}

// Intercept returns the fitted intercept
func (m *LinearModel) Intercept() float64 {
	return m.intercept
}

// Coefficients returns a copy of the fitted coefficients
func (m *LinearModel) Coefficients() []float64 {
	out := make([]float64, len(m.coefficients))
	copy(out, m.coefficients)
	return out
}

// Predict evaluates the model for every row
func (m *LinearModel) Predict(ctx context.Context, rows [][]float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(m.coefficients) {
			return nil, fmt.Errorf("row %d has %d values, model expects %d", i, len(row), len(m.coefficients))
		}
		y := m.intercept
		for j, x := range row {
			y += m.coefficients[j] * x
		}
		if isBad(y) {
			return nil, fmt.Errorf("row %d produced a non finite prediction", i)
		}
		out[i] = y
	}
	return out, nil
}

func isBad(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
