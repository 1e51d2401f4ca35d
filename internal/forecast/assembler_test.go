package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildProfile(t *testing.T) {
	start := day("2026-01-01")
	records := append(
		dailyRecords(start, 61, func(i int) float64 { return 100 }, "expense", "groceries"),
		TransactionRecord{Date: "2026-01-01", Amount: 8000, Type: "income", Category: "salary"},
		TransactionRecord{Date: "2026-02-01", Amount: 8000, Type: "income", Category: "salary"},
	)
	in := normalizeForTest(t, records)

	profile := BuildProfile(in)

	months := float64(61) / daysPerMonth
	assert.InDelta(t, 16000/months, profile.AvgMonthlyIncome, 1)
	assert.InDelta(t, 6100/months, profile.AvgMonthlyExpenses, 1)
	assert.Greater(t, profile.SavingsRate, 0.5)
	assert.Equal(t, []string{"groceries"}, profile.SpendingCategories)
	assert.Equal(t, 63, profile.TransactionCount)
}

func TestBuildProfileZeroIncome(t *testing.T) {
	in := normalizeForTest(t, []TransactionRecord{
		{Date: "2026-01-01", Amount: 50, Type: "expense", Category: "misc"},
	})
	profile := BuildProfile(in)
	assert.Equal(t, 0.0, profile.SavingsRate)
	assert.Equal(t, 0.0, profile.AvgMonthlyIncome)
}

func TestBuildInsightsAlwaysCoversCoreAngles(t *testing.T) {
	proj := &Projection{
		Aggregate: CategoryForecast{PredictedAverage: 1200},
		PerCategory: []CategoryForecast{
			{Category: "groceries", HistoricalAverage: 500, PredictedAverage: 650, Confidence: 0.8},
			{Category: "transport", HistoricalAverage: 200, PredictedAverage: 210, Confidence: 0.9},
		},
		ConfidenceScore: 0.85,
	}
	profile := UserProfile{SavingsRate: 0.25}

	insights := BuildInsights(proj, profile)
	require.Len(t, insights, 4)

	categories := make(map[string]bool)
	for _, ins := range insights {
		categories[ins.Category] = true
		assert.NotEmpty(t, ins.Title)
		assert.NotEmpty(t, ins.Description)
		assert.GreaterOrEqual(t, ins.Confidence, 0.0)
		assert.LessOrEqual(t, ins.Confidence, 1.0)
	}
	assert.True(t, categories["trend"])
	assert.True(t, categories["savings"])
	assert.True(t, categories["category"])
	assert.True(t, categories["model"])

	// The category insight picks the biggest mover.
	for _, ins := range insights {
		if ins.Category == "category" {
			assert.Contains(t, ins.Description, "groceries")
		}
	}
}

func TestBuildInsightsNegativeFlow(t *testing.T) {
	proj := &Projection{Aggregate: CategoryForecast{PredictedAverage: -400}, ConfidenceScore: 0.4}
	insights := BuildInsights(proj, UserProfile{SavingsRate: 0.02})
	require.NotEmpty(t, insights)
	assert.Equal(t, "Financial Caution Advised", insights[0].Title)
}

func TestAssembleAttachesMetadata(t *testing.T) {
	start := day("2026-01-01")
	in := normalizeForTest(t, dailyRecords(start, 30, func(i int) float64 { return 100 }, "expense", "rent"))

	proj, err := NewEngine(7).Fit(context.Background(), in, Horizon3Months)
	require.NoError(t, err)

	generatedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	result := Assemble("user-1", Horizon3Months, in, proj, generatedAt, 24*time.Hour)

	assert.NotEmpty(t, result.PredictionID)
	assert.Equal(t, "user-1", result.UserID)
	assert.Equal(t, Horizon3Months, result.Horizon)
	assert.Equal(t, generatedAt, result.GeneratedAt)
	assert.Equal(t, generatedAt.Add(24*time.Hour), result.ExpiresAt)
	assert.Equal(t, ModelReal, result.ModelKind)
	assert.Empty(t, result.DegradedReason)
	assert.NotEmpty(t, result.Insights)
	assert.Equal(t, 30, result.Profile.TransactionCount)
}

func TestAssembleDefaultsDegradedReason(t *testing.T) {
	start := day("2026-01-01")
	in := normalizeForTest(t, dailyRecords(start, 5, func(i int) float64 { return 100 }, "expense", "rent"))

	proj, err := NewFallbackEstimator().Fit(context.Background(), in, Horizon1Month)
	require.NoError(t, err)

	result := Assemble("user-1", Horizon1Month, in, proj, time.Now(), time.Hour)
	assert.Equal(t, ModelFallback, result.ModelKind)
	assert.Equal(t, DegradedInsufficientHistory, result.DegradedReason)
}
