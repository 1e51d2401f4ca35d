package forecast

import (
	"context"
	"math"
	"time"
)

// Forecaster is the contract both the primary engine and the fallback
// estimator satisfy, so either can be swapped in behind the service.
type Forecaster interface {
	Fit(ctx context.Context, in *NormalizedInput, horizon Horizon) (*Projection, error)
	Kind() ModelKind
}

// z80 is the two-sided z value for an 80% confidence interval, matching the
// primary model's interval width.
const z80 = 1.2816

// trendTolerance is the relative band around the historical average inside
// which a projection is classified as stable rather than a trend.
const trendTolerance = 0.05

// classifyTrend compares the projected average against the historical one
// with a tolerance band, so noise around a flat series is not reported as a
// trend. When the historical average is near zero the comparison falls back
// to an absolute band scaled by the series' typical magnitude.
func classifyTrend(historicalAvg, predictedAvg, typicalMagnitude float64) TrendDirection {
	if math.Abs(historicalAvg) < 1e-9 {
		band := trendTolerance * math.Max(typicalMagnitude, 1)
		switch {
		case predictedAvg > band:
			return TrendIncreasing
		case predictedAvg < -band:
			return TrendDecreasing
		default:
			return TrendStable
		}
	}
	ratio := predictedAvg / historicalAvg
	if historicalAvg < 0 {
		// For a negative baseline a larger ratio means moving further down.
		switch {
		case ratio > 1+trendTolerance:
			return TrendDecreasing
		case ratio < 1-trendTolerance:
			return TrendIncreasing
		default:
			return TrendStable
		}
	}
	switch {
	case ratio > 1+trendTolerance:
		return TrendIncreasing
	case ratio < 1-trendTolerance:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// pointConfidence scores one forecast point on its interval width relative to
// the predicted magnitude, clamped into [0, 1].
func pointConfidence(p ForecastPoint) float64 {
	width := p.Width()
	score := 1 - width/math.Max(math.Abs(p.Predicted), 1)
	return clamp01(score)
}

// forecastConfidence averages point confidence across a projection.
func forecastConfidence(points []ForecastPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += pointConfidence(p)
	}
	return sum / float64(len(points))
}

// monthSpan is one forecast period: the dated point plus the day-offset range
// (distance from the last historical day, 1-based inclusive) it aggregates.
type monthSpan struct {
	date     time.Time
	startDay int
	endDay   int
}

// monthSpans slices the horizon into calendar-month windows starting strictly
// after the last historical date.
func monthSpans(lastDate time.Time, months int) []monthSpan {
	spans := make([]monthSpan, 0, months)
	prevEnd := lastDate
	for k := 1; k <= months; k++ {
		end := lastDate.AddDate(0, k, 0)
		spans = append(spans, monthSpan{
			date:     end,
			startDay: daysBetween(lastDate, prevEnd) + 1,
			endDay:   daysBetween(lastDate, end),
		})
		prevEnd = end
	}
	return spans
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// enforceBoundInvariants makes the point sequence satisfy the result
// contract: lower <= predicted <= upper for every point, and interval widths
// non-decreasing with horizon distance. For points already floored at zero
// (floorAtZero set) widening grows the upper bound only, so the floor is
// never pushed back below zero.
func enforceBoundInvariants(points []ForecastPoint, floorAtZero bool) {
	var prevWidth float64
	for i := range points {
		p := &points[i]
		if p.Lower > p.Predicted {
			p.Lower = p.Predicted
		}
		if p.Upper < p.Predicted {
			p.Upper = p.Predicted
		}
		if w := p.Width(); w < prevWidth {
			if floorAtZero {
				p.Upper += prevWidth - w
			} else {
				grow := (prevWidth - w) / 2
				p.Lower -= grow
				p.Upper += grow
			}
		}
		prevWidth = p.Width()
	}
}

// clampExpensePoints floors expense projections at zero: a negative expense
// is reported as zero, never as income.
func clampExpensePoints(points []ForecastPoint) {
	for i := range points {
		p := &points[i]
		p.Predicted = math.Max(0, p.Predicted)
		p.Lower = math.Max(0, p.Lower)
		p.Upper = math.Max(0, p.Upper)
	}
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func meanAbs(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += math.Abs(v)
	}
	return sum / float64(len(vals))
}

func stddev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := mean(vals)
	var sum float64
	for _, v := range vals {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)-1))
}

// daysPerMonth is the average calendar month length, used when converting
// between daily and monthly figures.
const daysPerMonth = 30.44
