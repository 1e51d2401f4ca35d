package forecast

import (
	"context"
	"math"
	"sort"
)

// Engine is the primary forecaster. It decomposes each daily series into a
// least-squares linear trend plus a weekday seasonal component, projects both
// across the horizon, and aggregates the projected days into monthly points
// with 80% confidence intervals that widen with distance.
type Engine struct {
	minObservations int
}

// NewEngine creates the decomposition engine. minObservations is the number
// of distinct active days a category needs before it gets its own forecast;
// sparser categories stay folded into the aggregate.
func NewEngine(minObservations int) *Engine {
	if minObservations < 2 {
		minObservations = 2
	}
	return &Engine{minObservations: minObservations}
}

// Kind reports the provenance tag for results produced by this engine.
func (e *Engine) Kind() ModelKind { return ModelReal }

// Fit decomposes and projects the normalized input. Data-quality failures
// surface as a model-fit error for the caller to redirect to the fallback.
func (e *Engine) Fit(ctx context.Context, in *NormalizedInput, horizon Horizon) (*Projection, error) {
	if !horizon.Valid() {
		return nil, NewValidationError("timeframe", "unknown horizon")
	}
	if len(in.Aggregate.Points) < 2 {
		return nil, NewModelFitError("aggregate series too short to decompose", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, NewModelFitError("model fit cancelled", err)
	}

	spans := monthSpans(in.LastDate, horizon.Months())

	aggFit, err := fitSeries(&in.Aggregate)
	if err != nil {
		return nil, err
	}
	aggregate, err := e.projectSeries(&in.Aggregate, aggFit, spans)
	if err != nil {
		return nil, err
	}

	proj := &Projection{
		Aggregate:       aggregate,
		Accuracy:        holdoutAccuracy(&in.Aggregate),
		ConfidenceScore: aggregate.Confidence,
		ModelKind:       ModelReal,
	}

	for i := range in.Categories {
		if err := ctx.Err(); err != nil {
			return nil, NewModelFitError("model fit cancelled", err)
		}
		s := &in.Categories[i]
		if s.Observations < e.minObservations {
			continue // too sparse to trend; its flows remain in the aggregate
		}
		fit, err := fitSeries(s)
		if err != nil {
			continue
		}
		cf, err := e.projectSeries(s, fit, spans)
		if err != nil {
			continue
		}
		proj.PerCategory = append(proj.PerCategory, cf)
	}

	return proj, nil
}

// seriesFit holds the fitted decomposition of one daily series.
type seriesFit struct {
	intercept float64
	slope     float64
	seasonal  [7]float64 // additive weekday component, zero-centered
	sigma     float64    // residual stddev with a small floor
	values    []float64
	n         int
}

// fitSeries fits trend + weekday seasonality to a gap-filled daily series.
func fitSeries(s *Series) (*seriesFit, error) {
	values := make([]float64, len(s.Points))
	for i, p := range s.Points {
		values[i] = p.Amount
	}
	clampOutliers(values)

	n := len(values)
	intercept, slope := leastSquares(values)

	fit := &seriesFit{intercept: intercept, slope: slope, values: values, n: n}

	// A weekday component needs at least two full weeks to be more than noise.
	if n >= 14 {
		var sums, counts [7]float64
		for i, v := range values {
			w := s.Points[i].Date.Weekday()
			sums[w] += v - (intercept + slope*float64(i))
			counts[w]++
		}
		var total float64
		for w := 0; w < 7; w++ {
			if counts[w] > 0 {
				fit.seasonal[w] = sums[w] / counts[w]
			}
			total += fit.seasonal[w]
		}
		// Re-center so the seasonal component does not shift the trend level.
		center := total / 7
		for w := 0; w < 7; w++ {
			fit.seasonal[w] -= center
		}
	}

	residuals := make([]float64, n)
	for i, v := range values {
		w := s.Points[i].Date.Weekday()
		residuals[i] = v - (intercept + slope*float64(i) + fit.seasonal[w])
	}
	fit.sigma = stddev(residuals)
	if floor := 0.02 * math.Max(meanAbs(values), 1); fit.sigma < floor {
		fit.sigma = floor
	}

	if !isFinite(intercept) || !isFinite(slope) || !isFinite(fit.sigma) {
		return nil, NewModelFitError("decomposition produced non-finite parameters", nil)
	}
	return fit, nil
}

// dailyEstimate projects the fitted model h days past the end of history.
func (f *seriesFit) dailyEstimate(s *Series, h int) float64 {
	day := s.Points[len(s.Points)-1].Date.AddDate(0, 0, h)
	return f.intercept + f.slope*float64(f.n-1+h) + f.seasonal[day.Weekday()]
}

// dailySigma widens the residual spread with distance into the future.
func (f *seriesFit) dailySigma(h int) float64 {
	return f.sigma * math.Sqrt(1+float64(h)/30)
}

// projectSeries aggregates projected days into monthly forecast points and
// derives the category-level summary figures.
func (e *Engine) projectSeries(s *Series, fit *seriesFit, spans []monthSpan) (CategoryForecast, error) {
	points := make([]ForecastPoint, 0, len(spans))
	for _, span := range spans {
		var pred, variance float64
		for h := span.startDay; h <= span.endDay; h++ {
			pred += fit.dailyEstimate(s, h)
			sd := fit.dailySigma(h)
			variance += sd * sd
		}
		half := z80 * math.Sqrt(variance)
		if !isFinite(pred) || !isFinite(half) {
			return CategoryForecast{}, NewModelFitError("projection produced non-finite values", nil)
		}
		points = append(points, ForecastPoint{
			Date:      span.date,
			Predicted: pred,
			Lower:     pred - half,
			Upper:     pred + half,
		})
	}

	// Clamp before the monotonicity pass: flooring afterwards would collapse
	// intervals of clamped points and let widths shrink with distance.
	if s.Kind == KindExpense {
		clampExpensePoints(points)
	}
	enforceBoundInvariants(points, s.Kind == KindExpense)

	dailyMean := mean(fit.values)
	historicalAvg := dailyMean * daysPerMonth
	var predSum float64
	for _, p := range points {
		predSum += p.Predicted
	}
	predictedAvg := predSum / float64(len(points))

	return CategoryForecast{
		Category:          s.Category,
		Points:            points,
		TrendDirection:    classifyTrend(historicalAvg, predictedAvg, meanAbs(fit.values)*daysPerMonth),
		HistoricalAverage: historicalAvg,
		PredictedAverage:  predictedAvg,
		Confidence:        forecastConfidence(points),
		DataPoints:        s.Observations,
	}, nil
}

// holdoutAccuracy refits on all but the last three days and scores the fit
// against them. Series shorter than two weeks report zero metrics.
func holdoutAccuracy(s *Series) ModelAccuracy {
	n := len(s.Points)
	acc := ModelAccuracy{DataPoints: n}
	const holdout = 3
	if n < 14 {
		return acc
	}

	train := &Series{Category: s.Category, Kind: s.Kind, Points: s.Points[:n-holdout], Observations: s.Observations}
	fit, err := fitSeries(train)
	if err != nil {
		return acc
	}

	var absSum, sqSum, pctSum float64
	pctCount := 0
	for i := 0; i < holdout; i++ {
		actual := s.Points[n-holdout+i].Amount
		predicted := fit.dailyEstimate(train, i+1)
		diff := math.Abs(predicted - actual)
		absSum += diff
		sqSum += diff * diff
		if math.Abs(actual) > 1e-9 {
			pctSum += diff / math.Abs(actual)
			pctCount++
		}
	}
	acc.MAE = absSum / holdout
	acc.RMSE = math.Sqrt(sqSum / holdout)
	if pctCount > 0 {
		acc.MAPE = pctSum / float64(pctCount)
	}
	return acc
}

// clampOutliers caps values whose z-score exceeds 3 at the 5th/95th
// percentiles, in place.
func clampOutliers(values []float64) {
	if len(values) < 3 {
		return
	}
	m := mean(values)
	sd := stddev(values)
	if sd == 0 {
		return
	}
	hasOutlier := false
	for _, v := range values {
		if math.Abs(v-m)/sd > 3 {
			hasOutlier = true
			break
		}
	}
	if !hasOutlier {
		return
	}
	lo := percentile(values, 0.05)
	hi := percentile(values, 0.95)
	for i, v := range values {
		if v < lo {
			values[i] = lo
		} else if v > hi {
			values[i] = hi
		}
	}
}

func percentile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func leastSquares(values []float64) (intercept, slope float64) {
	n := float64(len(values))
	if n < 2 {
		return mean(values), 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return mean(values), 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return intercept, slope
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
