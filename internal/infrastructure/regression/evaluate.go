package regression

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics summarises a fit on held out rows
type Metrics struct {
	R2        float64
	RMSE      float64
	TrainRows int
	TestRows  int
}

// Split partitions row indices into train and test sets.
// The permutation is fully determined by seed. At least one row always lands in
// the training set, and the test set is empty when there are fewer than two rows.
func Split(n int, testRatio float64, seed uint64) (train, test []int) {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	r := rand.New(rand.NewPCG(seed, seed))
	r.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	nTest := int(math.Ceil(float64(n) * testRatio))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return idx[nTest:], idx[:nTest]
}

// R2 returns the coefficient of determination.
// A constant target yields 0 unless predictions are exact, in which case it is 1.
func R2(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	if floats.Min(actual) == floats.Max(actual) {
		if floats.Equal(actual, predicted) {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(predicted, actual, nil)
}

// RMSE returns the root mean squared error
func RMSE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	return floats.Distance(actual, predicted, 2) / math.Sqrt(float64(len(actual)))
}

// Select returns the rows and targets at idx
func Select(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, k := range idx {
		xs[i] = x[k]
		ys[i] = y[k]
	}
	return xs, ys
}
