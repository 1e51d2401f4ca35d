package forecast

import (
	"context"
	"math"
)

// movingAverageWindow caps how much history the fallback looks at.
const movingAverageWindow = 30

// FallbackEstimator is the degraded forecaster: a moving-average level with a
// dampened linear trend. It needs no iterative fitting and succeeds on any
// non-empty input, down to a single data point (projected as a flat line with
// maximally wide bounds).
type FallbackEstimator struct{}

// NewFallbackEstimator creates the degraded estimator.
func NewFallbackEstimator() *FallbackEstimator { return &FallbackEstimator{} }

// Kind reports the provenance tag for results produced by this estimator.
func (f *FallbackEstimator) Kind() ModelKind { return ModelFallback }

// Fit projects every series with the moving-average estimator. The returned
// projection carries no degraded reason; the caller records why the fallback
// ran.
func (f *FallbackEstimator) Fit(ctx context.Context, in *NormalizedInput, horizon Horizon) (*Projection, error) {
	if !horizon.Valid() {
		return nil, NewValidationError("timeframe", "unknown horizon")
	}
	if len(in.Aggregate.Points) == 0 {
		return nil, &Error{Code: ErrInsufficientData, Message: "empty aggregate series"}
	}
	_ = ctx // never slow enough to need cancellation

	spans := monthSpans(in.LastDate, horizon.Months())

	proj := &Projection{
		Aggregate: projectFlat(&in.Aggregate, spans),
		ModelKind: ModelFallback,
	}
	proj.Accuracy = ModelAccuracy{DataPoints: len(in.Aggregate.Points)}
	proj.ConfidenceScore = proj.Aggregate.Confidence

	for i := range in.Categories {
		s := &in.Categories[i]
		if s.Observations == 0 {
			continue
		}
		proj.PerCategory = append(proj.PerCategory, projectFlat(s, spans))
	}
	return proj, nil
}

// projectFlat builds monthly points from the series' recent level and a
// two-half slope estimate.
func projectFlat(s *Series, spans []monthSpan) CategoryForecast {
	window := recentValues(s, movingAverageWindow)
	level := mean(window)
	slope := halfSlope(window)

	// Spread reflects how little the estimator knows: at least half the
	// typical daily magnitude, and the full magnitude for a single point.
	spread := math.Max(stddev(window), 0.5*meanAbs(window))
	if len(window) == 1 {
		spread = math.Max(math.Abs(window[0]), 1)
	}
	spread = math.Max(spread, 1)

	points := make([]ForecastPoint, 0, len(spans))
	for k, span := range spans {
		var pred float64
		for h := span.startDay; h <= span.endDay; h++ {
			pred += level + slope*float64(h)
		}
		days := float64(span.endDay - span.startDay + 1)
		half := z80 * spread * math.Sqrt(days) * (1 + 0.25*float64(k))
		points = append(points, ForecastPoint{
			Date:      span.date,
			Predicted: pred,
			Lower:     pred - half,
			Upper:     pred + half,
		})
	}

	if s.Kind == KindExpense {
		clampExpensePoints(points)
	}
	enforceBoundInvariants(points, s.Kind == KindExpense)

	historicalAvg := mean(seriesValues(s)) * daysPerMonth
	var predSum float64
	for _, p := range points {
		predSum += p.Predicted
	}
	predictedAvg := predSum / float64(len(points))

	return CategoryForecast{
		Category:          s.Category,
		Points:            points,
		TrendDirection:    classifyTrend(historicalAvg, predictedAvg, meanAbs(seriesValues(s))*daysPerMonth),
		HistoricalAverage: historicalAvg,
		PredictedAverage:  predictedAvg,
		Confidence:        forecastConfidence(points),
		DataPoints:        s.Observations,
	}
}

// halfSlope estimates a per-day slope by comparing the means of the window's
// two halves, dampened to avoid runaway extrapolation from short histories.
func halfSlope(window []float64) float64 {
	n := len(window)
	if n < 4 {
		return 0
	}
	mid := n / 2
	gap := float64(n) / 2 // distance between the half midpoints, in days
	slope := (mean(window[mid:]) - mean(window[:mid])) / gap
	return slope * 0.5
}

func recentValues(s *Series, limit int) []float64 {
	points := s.Points
	if len(points) > limit {
		points = points[len(points)-limit:]
	}
	vals := make([]float64, len(points))
	for i, p := range points {
		vals[i] = p.Amount
	}
	return vals
}

func seriesValues(s *Series) []float64 {
	vals := make([]float64, len(s.Points))
	for i, p := range s.Points {
		vals[i] = p.Amount
	}
	return vals
}
