package training

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/erp/salesforecast/internal/application/prediction"
	"github.com/erp/salesforecast/internal/domain/forecast"
	"github.com/erp/salesforecast/internal/infrastructure/artifact"
	"github.com/erp/salesforecast/internal/infrastructure/persistence"
	"github.com/erp/salesforecast/internal/infrastructure/persistence/models"
	"github.com/erp/salesforecast/internal/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) OrderLines(ctx context.Context) ([]forecast.OrderLine, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]forecast.OrderLine), args.Error(1)
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) SaveModel(ctx context.Context, tm *artifact.TrainedModel) error {
	return m.Called(ctx, tm).Error(0)
}

func (m *mockWriter) SaveEncoding(ctx context.Context, enc *forecast.Encoding) error {
	return m.Called(ctx, enc).Error(0)
}

func ptr[T any](v T) *T { return &v }

func line(id int64, product int64, name, country string, date string, qty int64, price float64) forecast.OrderLine {
	d, _ := time.Parse("2006-01-02", date)
	return forecast.OrderLine{
		OrderID:     id,
		ProductID:   product,
		ProductName: name,
		Country:     country,
		OrderDate:   &d,
		Quantity:    ptr(qty),
		UnitPrice:   ptr(price),
	}
}

// salesHistory is two products over six months with two lines per month
func salesHistory() []forecast.OrderLine {
	var lines []forecast.OrderLine
	id := int64(1)
	for m := 1; m <= 6; m++ {
		date := time.Date(2024, time.Month(m), 5, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		late := time.Date(2024, time.Month(m), 20, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		lines = append(lines,
			line(id, 1, "Chai", "Germany", date, int64(10*m), 18),
			line(id+1, 1, "Chai", "France", late, int64(5+m), 20),
			line(id+2, 2, "Chang", "USA", date, int64(40-3*m), 19),
			line(id+3, 2, "Chang", "Germany", late, int64(m*m), 17+float64(m)),
		)
		id += 4
	}
	return lines
}

func TestBuildEncoding(t *testing.T) {
	lines := salesHistory()
	created := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("calendar schema", func(t *testing.T) {
		enc, err := BuildEncoding(forecast.SchemaCalendarCategorical, lines, "run", created)
		require.NoError(t, err)
		assert.Equal(t, []string{"Chai", "Chang"}, enc.Products.Names())
		assert.Equal(t, []string{"France", "Germany", "USA"}, enc.Countries.Names())

		chai, err := enc.AveragePrice("Chai")
		require.NoError(t, err)
		assert.Equal(t, 19.0, chai)
	})

	t.Run("lag schema keeps no countries", func(t *testing.T) {
		enc, err := BuildEncoding(forecast.SchemaLagRolling, lines, "run", created)
		require.NoError(t, err)
		assert.Equal(t, 0, enc.Countries.Len())
		assert.Empty(t, enc.AveragePrices)
	})

	t.Run("order of lines does not change codes", func(t *testing.T) {
		reversed := append([]forecast.OrderLine(nil), lines...)
		sort.Slice(reversed, func(i, j int) bool { return reversed[i].OrderID > reversed[j].OrderID })

		a, err := BuildEncoding(forecast.SchemaCalendarCategorical, lines, "run", created)
		require.NoError(t, err)
		b, err := BuildEncoding(forecast.SchemaCalendarCategorical, reversed, "run", created)
		require.NoError(t, err)
		assert.Equal(t, a.Products.Codes(), b.Products.Codes())
		assert.Equal(t, a.Countries.Codes(), b.Countries.Codes())
	})

	t.Run("empty population", func(t *testing.T) {
		_, err := BuildEncoding(forecast.SchemaLagRolling, nil, "run", created)
		assert.Error(t, err)
	})
}

func TestBuildDataset_Calendar(t *testing.T) {
	lines := []forecast.OrderLine{
		line(1, 1, "Chai", "Germany", "2024-07-15", 12, 18),
		line(2, 2, "Chang", "USA", "2024-12-01", 3, -2),
	}
	enc, err := BuildEncoding(forecast.SchemaCalendarCategorical, lines, "run", time.Now())
	require.NoError(t, err)

	ds, err := BuildDataset(enc, lines)
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())

	assert.Equal(t, []float64{7, 2024, 0, 2, 0, 0, 12, 18, 18}, ds.X[0])
	assert.Equal(t, 216.0, ds.Y[0])
	assert.Equal(t, 0.0, ds.Y[1], "negative revenue is clipped")
}

func TestBuildDataset_Lag(t *testing.T) {
	lines := []forecast.OrderLine{
		line(1, 1, "Chai", "", "2024-03-02", 10, 18),
		line(2, 1, "Chai", "", "2024-04-09", 20, 18),
		line(3, 1, "Chai", "", "2024-04-20", 10, 20),
		line(4, 1, "Chai", "", "2024-06-01", 30, 18),
		line(5, 1, "Chai", "", "2024-07-15", 5, 18),
	}
	enc, err := BuildEncoding(forecast.SchemaLagRolling, lines, "run", time.Now())
	require.NoError(t, err)

	ds, err := BuildDataset(enc, lines)
	require.NoError(t, err)
	require.Equal(t, 4, ds.Len())

	// March has no history, April aggregates two lines, July follows a June with records.
	assert.Equal(t, []float64{202403, 0, 18, 3, 0, 0}, ds.X[0])
	assert.Equal(t, []float64{202404, 0, 19, 4, 10, 10}, ds.X[1])
	assert.Equal(t, 30.0, ds.Y[1])
	assert.Equal(t, []float64{202406, 0, 18, 6, 0, 20}, ds.X[2])
	assert.Equal(t, []float64{202407, 0, 18, 7, 30, 70.0 / 3}, ds.X[3])
	assert.Equal(t, 5.0, ds.Y[3])
}

// lineHistory answers history lookups from the same order lines the trainer saw
type lineHistory struct {
	lines []forecast.OrderLine
}

func (h *lineHistory) ProductAttributes(_ context.Context, productID int64) (*forecast.ProductAttributes, error) {
	var latest *forecast.OrderLine
	for i := range h.lines {
		l := &h.lines[i]
		if l.ProductID == productID && (latest == nil || l.OrderDate.After(*latest.OrderDate)) {
			latest = l
		}
	}
	if latest == nil {
		return nil, forecast.ProductNotFound(productID)
	}
	return &forecast.ProductAttributes{ProductID: productID, Name: latest.ProductName, Country: latest.Country}, nil
}

func (h *lineHistory) PeriodTotals(_ context.Context, productID int64, ref forecast.Period, limit int) ([]forecast.PeriodAggregate, error) {
	totals := map[forecast.Period]float64{}
	for _, l := range h.lines {
		p := forecast.PeriodOf(*l.OrderDate)
		if l.ProductID == productID && p.Before(ref) {
			totals[p] += float64(*l.Quantity)
		}
	}
	out := make([]forecast.PeriodAggregate, 0, len(totals))
	for p, q := range totals {
		out = append(out, forecast.PeriodAggregate{Period: p, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Period.Before(out[i].Period) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestTrainer_LagParityWithServer(t *testing.T) {
	lines := salesHistory()
	source := &mockSource{}
	source.On("OrderLines", mock.Anything).Return(lines, nil)

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	repo := artifact.NewRepository(store, "model.json", "encoding.json", zaptest.NewLogger(t))

	trainer, err := NewTrainer(source, repo, Config{Schema: forecast.SchemaLagRolling, TestRatio: 0.2, SplitSeed: 42}, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()
	_, err = trainer.Run(ctx)
	require.NoError(t, err)

	tm, err := repo.LoadModel(ctx, forecast.SchemaLagRolling)
	require.NoError(t, err)
	enc, err := repo.LoadEncoding(ctx, forecast.SchemaLagRolling)
	require.NoError(t, err)

	training, err := BuildDataset(enc, lines)
	require.NoError(t, err)

	svc, err := prediction.NewPredictionService(&lineHistory{lines: lines}, enc, tm.Model,
		prediction.Config{Schema: forecast.SchemaLagRolling, LookupTimeout: time.Second}, zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	for i, v := range training.Vectors {
		features := v.Map()
		period := int(features[forecast.FeaturePeriodNumber])
		date := time.Date(period/100, time.Month(period%100), 1, 0, 0, 0, 0, time.UTC)

		res, err := svc.PredictOne(ctx, forecast.PredictionRequest{
			ProductID: training.ProductIDs[i],
			UnitPrice: features[forecast.FeatureUnitPrice],
			OrderDate: date.Format("2006-01-02"),
		})
		require.NoError(t, err, i)
		assert.Equal(t, v.Values, res.Features.Values, "row %d", i)
	}
}

// setupSalesDB seeds an in-memory sales database with lines the trainer must
// skip, two products sharing a name and orders dated on the first of a month
func setupSalesDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	day := func(m time.Month, d int) *time.Time { return ptr(time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)) }
	require.NoError(t, db.Create(&[]models.ProductModel{
		{ProductID: 1, ProductName: "Chai"},
		{ProductID: 2, ProductName: "Chai"},
		{ProductID: 3, ProductName: "Chang", UnitPrice: ptr(19.0)},
	}).Error)
	require.NoError(t, db.Create(&[]models.OrderModel{
		{OrderID: 101, OrderDate: day(time.March, 1)},
		{OrderID: 102, OrderDate: day(time.April, 1)},
		{OrderID: 103, OrderDate: day(time.May, 1)},
		{OrderID: 104, OrderDate: day(time.June, 1)},
		{OrderID: 105, OrderDate: day(time.July, 15)},
		{OrderID: 106, OrderDate: day(time.May, 20)},
		{OrderID: 107, OrderDate: day(time.June, 3)},
		{OrderID: 108, OrderDate: day(time.April, 1)},
		{OrderID: 109, OrderDate: day(time.June, 1)},
	}).Error)
	require.NoError(t, db.Create(&[]models.OrderDetailModel{
		{OrderID: 101, ProductID: 1, Quantity: ptr(int64(8)), UnitPrice: ptr(10.0)},
		{OrderID: 102, ProductID: 1, Quantity: ptr(int64(12)), UnitPrice: ptr(10.0)},
		{OrderID: 103, ProductID: 1, Quantity: ptr(int64(40))},
		{OrderID: 104, ProductID: 1, Quantity: ptr(int64(10)), UnitPrice: ptr(10.0)},
		{OrderID: 105, ProductID: 1, Quantity: ptr(int64(8)), UnitPrice: ptr(11.0)},
		{OrderID: 106, ProductID: 2, Quantity: ptr(int64(40)), UnitPrice: ptr(9.0)},
		{OrderID: 107, ProductID: 2, Quantity: ptr(int64(5)), UnitPrice: ptr(9.0)},
		{OrderID: 108, ProductID: 3, Quantity: ptr(int64(7))},
		{OrderID: 109, ProductID: 3, Quantity: ptr(int64(3)), UnitPrice: ptr(19.5)},
	}).Error)
	return db
}

func TestTrainer_LagParityWithGormHistory(t *testing.T) {
	ctx := context.Background()
	history := persistence.NewGormHistoryRepository(setupSalesDB(t))

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	repo := artifact.NewRepository(store, "model.json", "encoding.json", zaptest.NewLogger(t))

	trainer, err := NewTrainer(history, repo, Config{Schema: forecast.SchemaLagRolling, TestRatio: 0.2, SplitSeed: 42}, zaptest.NewLogger(t))
	require.NoError(t, err)
	report, err := trainer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)

	tm, err := repo.LoadModel(ctx, forecast.SchemaLagRolling)
	require.NoError(t, err)
	enc, err := repo.LoadEncoding(ctx, forecast.SchemaLagRolling)
	require.NoError(t, err)

	all, err := history.OrderLines(ctx)
	require.NoError(t, err)
	training, err := BuildDataset(enc, UsableLines(forecast.SchemaLagRolling, all))
	require.NoError(t, err)
	require.Equal(t, 8, training.Len())

	svc, err := prediction.NewPredictionService(history, enc, tm.Model,
		prediction.Config{Schema: forecast.SchemaLagRolling, LookupTimeout: time.Second}, zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	rows := map[string]map[string]float64{}
	for i, v := range training.Vectors {
		features := v.Map()
		period := int(features[forecast.FeaturePeriodNumber])
		date := time.Date(period/100, time.Month(period%100), 1, 0, 0, 0, 0, time.UTC)
		rows[fmt.Sprintf("%d/%d", training.ProductIDs[i], period)] = features

		res, err := svc.PredictOne(ctx, forecast.PredictionRequest{
			ProductID: training.ProductIDs[i],
			UnitPrice: features[forecast.FeatureUnitPrice],
			OrderDate: date.Format("2006-01-02"),
		})
		require.NoError(t, err, i)
		assert.Equal(t, v.Values, res.Features.Values, "product %d period %d", training.ProductIDs[i], period)
	}

	// May's priceless line and the other Chai's May line stay out of June
	june := rows["1/202406"]
	require.NotNil(t, june)
	assert.Equal(t, 0.0, june[forecast.FeaturePreviousPeriodTotal])
	assert.Equal(t, 10.0, june[forecast.FeatureRollingMean3])

	july := rows["1/202407"]
	require.NotNil(t, july)
	assert.Equal(t, 10.0, july[forecast.FeaturePreviousPeriodTotal])
	assert.Equal(t, 10.0, july[forecast.FeatureRollingMean3])

	// a line without its own price uses the product list price
	chang := rows["3/202406"]
	require.NotNil(t, chang)
	assert.Equal(t, 0.0, chang[forecast.FeaturePreviousPeriodTotal])
	assert.Equal(t, 7.0, chang[forecast.FeatureRollingMean3])
}

func TestTrainer_Run(t *testing.T) {
	ctx := context.Background()
	lines := append(salesHistory(),
		forecast.OrderLine{OrderID: 900, ProductID: 1, ProductName: "Chai", Quantity: ptr(int64(3)), UnitPrice: ptr(18.0)},
		forecast.OrderLine{OrderID: 901, ProductID: 1, ProductName: "Chai", OrderDate: ptr(time.Now()), Quantity: ptr(int64(3))},
	)

	t.Run("writes both artifacts", func(t *testing.T) {
		source := &mockSource{}
		source.On("OrderLines", mock.Anything).Return(lines, nil)
		writer := &mockWriter{}
		var saved *artifact.TrainedModel
		writer.On("SaveEncoding", mock.Anything, mock.AnythingOfType("*forecast.Encoding")).Return(nil)
		writer.On("SaveModel", mock.Anything, mock.AnythingOfType("*artifact.TrainedModel")).
			Run(func(args mock.Arguments) { saved = args.Get(1).(*artifact.TrainedModel) }).
			Return(nil)

		trainer, err := NewTrainer(source, writer, Config{Schema: forecast.SchemaCalendarCategorical, TestRatio: 0.2, SplitSeed: 42}, zaptest.NewLogger(t))
		require.NoError(t, err)
		fixed := time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC)
		trainer.now = func() time.Time { return fixed }

		report, err := trainer.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 24, report.Lines)
		assert.Equal(t, 2, report.Skipped)
		assert.Equal(t, 24, report.Rows)
		assert.Equal(t, 5, report.Metrics.TestRows)
		assert.Equal(t, 19, report.Metrics.TrainRows)

		require.NotNil(t, saved)
		assert.Equal(t, report.RunID, saved.Info.TrainingRunID)
		assert.Equal(t, fixed, saved.Info.TrainedAt)
		assert.Equal(t, 9, saved.Model.InputDim())
		writer.AssertExpectations(t)
	})

	t.Run("same seed gives the same model", func(t *testing.T) {
		fit := func() []float64 {
			source := &mockSource{}
			source.On("OrderLines", mock.Anything).Return(lines, nil)
			writer := &mockWriter{}
			var coef []float64
			writer.On("SaveEncoding", mock.Anything, mock.Anything).Return(nil)
			writer.On("SaveModel", mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) { coef = args.Get(1).(*artifact.TrainedModel).Model.Coefficients() }).
				Return(nil)
			trainer, err := NewTrainer(source, writer, Config{Schema: forecast.SchemaLagRolling, TestRatio: 0.2, SplitSeed: 7}, zaptest.NewLogger(t))
			require.NoError(t, err)
			_, err = trainer.Run(ctx)
			require.NoError(t, err)
			return coef
		}
		assert.Equal(t, fit(), fit())
	})

	t.Run("source failure", func(t *testing.T) {
		source := &mockSource{}
		source.On("OrderLines", mock.Anything).Return(nil, forecast.NewError(forecast.KindDataUnavailable, "db down"))
		trainer, err := NewTrainer(source, &mockWriter{}, Config{Schema: forecast.SchemaLagRolling, TestRatio: 0.2}, zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = trainer.Run(ctx)
		assert.ErrorIs(t, err, forecast.ErrDataUnavailable)
	})

	t.Run("no usable lines", func(t *testing.T) {
		source := &mockSource{}
		source.On("OrderLines", mock.Anything).Return([]forecast.OrderLine{{OrderID: 1}}, nil)
		writer := &mockWriter{}
		trainer, err := NewTrainer(source, writer, Config{Schema: forecast.SchemaLagRolling, TestRatio: 0.2}, zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = trainer.Run(ctx)
		assert.Error(t, err)
		writer.AssertNotCalled(t, "SaveModel", mock.Anything, mock.Anything)
	})

	t.Run("encoding write failure skips the model", func(t *testing.T) {
		source := &mockSource{}
		source.On("OrderLines", mock.Anything).Return(lines, nil)
		writer := &mockWriter{}
		writer.On("SaveEncoding", mock.Anything, mock.Anything).Return(errors.New("disk full"))
		trainer, err := NewTrainer(source, writer, Config{Schema: forecast.SchemaLagRolling, TestRatio: 0.2}, zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = trainer.Run(ctx)
		assert.Error(t, err)
		writer.AssertNotCalled(t, "SaveModel", mock.Anything, mock.Anything)
	})
}

func TestNewTrainer_Validation(t *testing.T) {
	_, err := NewTrainer(&mockSource{}, &mockWriter{}, Config{Schema: "tree_v2"}, nil)
	assert.ErrorIs(t, err, forecast.ErrSchemaMismatch)

	_, err = NewTrainer(&mockSource{}, &mockWriter{}, Config{Schema: forecast.SchemaLagRolling, TestRatio: 1}, nil)
	assert.Error(t, err)

	_, err = NewTrainer(nil, &mockWriter{}, Config{Schema: forecast.SchemaLagRolling}, nil)
	assert.Error(t, err)
}
