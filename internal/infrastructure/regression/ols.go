package regression

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrSingular is returned when the normal equations cannot be solved
var ErrSingular = errors.New("regression: design matrix is singular")

// ridge is added to the feature diagonal of XᵀX so that collinear or constant
// columns still yield a unique solution.
const ridge = 1e-8

// Fit estimates intercept and coefficients by ordinary least squares.
// Columns are centred before solving so the intercept is recovered from means.
func Fit(x [][]float64, y []float64) (intercept float64, coefficients []float64, err error) {
	n := len(x)
	if n == 0 {
		return 0, nil, fmt.Errorf("regression: no rows")
	}
	if len(y) != n {
		return 0, nil, fmt.Errorf("regression: %d rows but %d targets", n, len(y))
	}
	p := len(x[0])
	if p == 0 {
		return 0, nil, fmt.Errorf("regression: rows have no features")
	}
	for i, row := range x {
		if len(row) != p {
			return 0, nil, fmt.Errorf("regression: row %d has %d features, want %d", i, len(row), p)
		}
	}

	xc := mat.NewDense(n, p, nil)
	for i, row := range x {
		xc.SetRow(i, row)
	}
	xMean := make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, xc)
		xMean[j] = stat.Mean(col, nil)
		floats.AddConst(-xMean[j], col)
		xc.SetCol(j, col)
	}
	yMean := stat.Mean(y, nil)
	ycData := append([]float64(nil), y...)
	floats.AddConst(-yMean, ycData)
	yc := mat.NewVecDense(n, ycData)

	// XcᵀXc β = Xcᵀyc
	var gram mat.SymDense
	gram.SymOuterK(1, xc.T())
	for j := 0; j < p; j++ {
		d := gram.At(j, j)
		gram.SetSym(j, j, d+ridge*(1+d))
	}
	var rhs mat.VecDense
	rhs.MulVec(xc.T(), yc)

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return 0, nil, ErrSingular
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return 0, nil, fmt.Errorf("regression: %w", err)
		}
	}

	coefficients = make([]float64, p)
	for j := range coefficients {
		coefficients[j] = beta.AtVec(j)
		if isBad(coefficients[j]) {
			return 0, nil, ErrSingular
		}
	}
	intercept = yMean - floats.Dot(coefficients, xMean)
	return intercept, coefficients, nil
}
