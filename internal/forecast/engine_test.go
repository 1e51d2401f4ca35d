package forecast

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dailyRecords builds one transaction per day starting at start.
func dailyRecords(start time.Time, days int, amount func(i int) float64, txType, category string) []TransactionRecord {
	records := make([]TransactionRecord, 0, days)
	for i := 0; i < days; i++ {
		records = append(records, TransactionRecord{
			Date:     start.AddDate(0, 0, i).Format("2006-01-02"),
			Amount:   amount(i),
			Type:     txType,
			Category: category,
		})
	}
	return records
}

func TestEngineFitProducesOrderedBounds(t *testing.T) {
	start := day("2026-01-01")
	records := append(
		dailyRecords(start, 60, func(i int) float64 { return 90 + float64(i%7)*5 }, "expense", "groceries"),
		dailyRecords(start, 60, func(i int) float64 { return 150 }, "income", "salary")...,
	)
	in := normalizeForTest(t, records)

	proj, err := NewEngine(7).Fit(context.Background(), in, Horizon3Months)
	require.NoError(t, err)

	assert.Equal(t, ModelReal, proj.ModelKind)
	require.Len(t, proj.Aggregate.Points, 3)

	var prevWidth float64
	lastDate := in.LastDate
	for i, p := range proj.Aggregate.Points {
		assert.LessOrEqual(t, p.Lower, p.Predicted, "point %d lower bound", i)
		assert.LessOrEqual(t, p.Predicted, p.Upper, "point %d upper bound", i)
		assert.GreaterOrEqual(t, p.Width(), prevWidth, "point %d interval width must not shrink", i)
		assert.Equal(t, lastDate.AddDate(0, i+1, 0), p.Date)
		prevWidth = p.Width()
	}
	assert.Greater(t, proj.ConfidenceScore, 0.0)
	assert.LessOrEqual(t, proj.ConfidenceScore, 1.0)
}

func TestEngineHorizonPointCounts(t *testing.T) {
	start := day("2026-01-01")
	in := normalizeForTest(t, dailyRecords(start, 30, func(i int) float64 { return 100 }, "expense", "rent"))

	for _, tt := range []struct {
		horizon Horizon
		points  int
	}{
		{Horizon1Month, 1},
		{Horizon3Months, 3},
		{Horizon6Months, 6},
		{Horizon12Months, 12},
	} {
		t.Run(string(tt.horizon), func(t *testing.T) {
			proj, err := NewEngine(7).Fit(context.Background(), in, tt.horizon)
			require.NoError(t, err)
			assert.Len(t, proj.Aggregate.Points, tt.points)
		})
	}
}

func TestEngineSkipsSparseCategories(t *testing.T) {
	start := day("2026-01-01")
	records := dailyRecords(start, 30, func(i int) float64 { return 50 }, "expense", "groceries")
	// A category with only two active days stays folded into the aggregate.
	records = append(records,
		TransactionRecord{Date: "2026-01-05", Amount: 500, Type: "expense", Category: "travel"},
		TransactionRecord{Date: "2026-01-20", Amount: 300, Type: "expense", Category: "travel"},
	)
	in := normalizeForTest(t, records)

	proj, err := NewEngine(7).Fit(context.Background(), in, Horizon3Months)
	require.NoError(t, err)
	require.Len(t, proj.PerCategory, 1)
	assert.Equal(t, "groceries", proj.PerCategory[0].Category)
}

func TestEngineExpenseForecastsNeverNegative(t *testing.T) {
	start := day("2026-01-01")
	// Steeply declining spend pushes the linear extrapolation below zero.
	in := normalizeForTest(t, dailyRecords(start, 40, func(i int) float64 {
		return 400 - float64(i)*10
	}, "expense", "shopping"))

	proj, err := NewEngine(7).Fit(context.Background(), in, Horizon6Months)
	require.NoError(t, err)
	require.Len(t, proj.PerCategory, 1)
	for i, p := range proj.PerCategory[0].Points {
		assert.GreaterOrEqual(t, p.Predicted, 0.0, "point %d", i)
		assert.GreaterOrEqual(t, p.Lower, 0.0, "point %d", i)
		assert.GreaterOrEqual(t, p.Upper, 0.0, "point %d", i)
	}
}

func TestEngineTrendClassification(t *testing.T) {
	start := day("2026-01-01")
	tests := []struct {
		name   string
		amount func(i int) float64
		want   TrendDirection
	}{
		{"rising spend", func(i int) float64 { return 50 + float64(i)*3 }, TrendIncreasing},
		{"flat spend", func(i int) float64 { return 100 }, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := normalizeForTest(t, dailyRecords(start, 60, tt.amount, "expense", "groceries"))
			proj, err := NewEngine(7).Fit(context.Background(), in, Horizon3Months)
			require.NoError(t, err)
			require.Len(t, proj.PerCategory, 1)
			assert.Equal(t, tt.want, proj.PerCategory[0].TrendDirection)
		})
	}
}

func TestEngineRejectsTinySeries(t *testing.T) {
	in := normalizeForTest(t, []TransactionRecord{
		{Date: "2026-01-01", Amount: 100, Type: "expense", Category: "misc"},
	})
	_, err := NewEngine(7).Fit(context.Background(), in, Horizon3Months)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrModelFit))
}

func TestEngineRespectsCancelledContext(t *testing.T) {
	start := day("2026-01-01")
	in := normalizeForTest(t, dailyRecords(start, 30, func(i int) float64 { return 100 }, "expense", "misc"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(7).Fit(ctx, in, Horizon3Months)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrModelFit))
}

func TestHoldoutAccuracyOnRegularSeries(t *testing.T) {
	start := day("2026-01-01")
	in := normalizeForTest(t, dailyRecords(start, 45, func(i int) float64 { return 100 }, "expense", "rent"))

	acc := holdoutAccuracy(&in.Categories[0])
	assert.Equal(t, 45, acc.DataPoints)
	// A perfectly regular series should be nearly free of holdout error.
	assert.Less(t, acc.MAE, 5.0)
	assert.Less(t, acc.RMSE, 5.0)
}

func TestClampOutliers(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 100
	}
	values[3] = 101
	values[9] = 99
	values[15] = 10000 // z-score far above 3

	clampOutliers(values)
	assert.Less(t, values[15], 200.0, "outlier must be pulled back toward the bulk of the data")
	assert.Equal(t, 100.0, values[10], "inlier values stay untouched")
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		historical float64
		predicted  float64
		want       TrendDirection
	}{
		{1000, 1100, TrendIncreasing},
		{1000, 900, TrendDecreasing},
		{1000, 1030, TrendStable},
		{1000, 980, TrendStable},
		{-1000, -1100, TrendDecreasing},
		{-1000, -900, TrendIncreasing},
		{0, 500, TrendIncreasing},
		{0, -500, TrendDecreasing},
		{0, 0, TrendStable},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.0f->%.0f", tt.historical, tt.predicted), func(t *testing.T) {
			assert.Equal(t, tt.want, classifyTrend(tt.historical, tt.predicted, 1000))
		})
	}
}

func TestMonthSpans(t *testing.T) {
	last := day("2026-01-15")
	spans := monthSpans(last, 3)
	require.Len(t, spans, 3)

	assert.Equal(t, day("2026-02-15"), spans[0].date)
	assert.Equal(t, 1, spans[0].startDay)
	assert.Equal(t, 31, spans[0].endDay)

	assert.Equal(t, day("2026-03-15"), spans[1].date)
	assert.Equal(t, 32, spans[1].startDay)
	assert.Equal(t, 59, spans[1].endDay)

	assert.Equal(t, day("2026-04-15"), spans[2].date)
	assert.Equal(t, 60, spans[2].startDay)
	assert.Equal(t, 90, spans[2].endDay)
}

func TestEnforceBoundInvariants(t *testing.T) {
	t.Run("symmetric widening", func(t *testing.T) {
		points := []ForecastPoint{
			{Predicted: 100, Lower: 80, Upper: 120},
			{Predicted: 100, Lower: 95, Upper: 105}, // narrower than the first
			{Predicted: 100, Lower: 110, Upper: 90}, // inverted bounds
		}
		enforceBoundInvariants(points, false)

		var prevWidth float64
		for i, p := range points {
			assert.LessOrEqual(t, p.Lower, p.Predicted, "point %d", i)
			assert.LessOrEqual(t, p.Predicted, p.Upper, "point %d", i)
			assert.GreaterOrEqual(t, p.Width(), prevWidth, "point %d", i)
			prevWidth = p.Width()
		}
	})

	t.Run("floored widening grows upward only", func(t *testing.T) {
		points := []ForecastPoint{
			{Predicted: 50, Lower: 10, Upper: 90},
			{Predicted: 0, Lower: 0, Upper: 0}, // collapsed by the zero floor
		}
		enforceBoundInvariants(points, true)

		assert.Equal(t, 0.0, points[1].Lower, "the zero floor must survive widening")
		assert.GreaterOrEqual(t, points[1].Width(), points[0].Width())
	})
}

func TestEngineExpenseWidthsStaySortedAfterZeroFloor(t *testing.T) {
	start := day("2026-01-01")
	// A slow decline crosses zero partway through the horizon, so only the
	// later points are floored.
	in := normalizeForTest(t, dailyRecords(start, 60, func(i int) float64 {
		return 300 - float64(i)*3
	}, "expense", "subscriptions"))

	proj, err := NewEngine(7).Fit(context.Background(), in, Horizon6Months)
	require.NoError(t, err)
	require.Len(t, proj.PerCategory, 1)

	var prevWidth float64
	for i, p := range proj.PerCategory[0].Points {
		assert.GreaterOrEqual(t, p.Lower, 0.0, "point %d", i)
		assert.LessOrEqual(t, p.Lower, p.Predicted, "point %d", i)
		assert.LessOrEqual(t, p.Predicted, p.Upper, "point %d", i)
		assert.GreaterOrEqual(t, p.Width(), prevWidth, "point %d interval width must not shrink", i)
		prevWidth = p.Width()
	}
}
