// Package forecast implements the forecasting core: input normalization,
// fingerprinting, the decomposition engine and its fallback estimator.
package forecast

import "time"

// TransactionType distinguishes money in from money out.
type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// TransactionRecord is a single caller-supplied transaction. Date is kept as
// a string on the wire; the normalizer parses and validates it.
type TransactionRecord struct {
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
	Category    string  `json:"category"`
	Description string  `json:"description,omitempty"`
}

// Horizon is the forward-looking span of a forecast.
type Horizon string

const (
	Horizon1Month   Horizon = "months_1"
	Horizon3Months  Horizon = "months_3"
	Horizon6Months  Horizon = "months_6"
	Horizon12Months Horizon = "months_12"
)

// Months returns the number of monthly forecast periods the horizon implies.
func (h Horizon) Months() int {
	switch h {
	case Horizon1Month:
		return 1
	case Horizon3Months:
		return 3
	case Horizon6Months:
		return 6
	case Horizon12Months:
		return 12
	}
	return 0
}

// Valid reports whether h is one of the supported horizons.
func (h Horizon) Valid() bool { return h.Months() > 0 }

// SeriesKind describes what a normalized series measures.
type SeriesKind string

const (
	KindIncome  SeriesKind = "income"
	KindExpense SeriesKind = "expense"
	KindNet     SeriesKind = "net"
)

// SeriesPoint is one day of aggregated flow.
type SeriesPoint struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// Series is a gap-filled daily series for one category (or the aggregate).
// Dates are strictly increasing with no duplicates; days without activity
// carry a zero amount. Observations counts days with real activity.
type Series struct {
	Category     string
	Kind         SeriesKind
	Points       []SeriesPoint
	Observations int
}

// Span returns the number of calendar days the series covers.
func (s *Series) Span() int {
	if len(s.Points) == 0 {
		return 0
	}
	first := s.Points[0].Date
	last := s.Points[len(s.Points)-1].Date
	return int(last.Sub(first).Hours()/24) + 1
}

// NormalizedInput is the normalizer's output: one series per category plus
// the aggregate net-flow series, along with summary figures used for the
// financial profile.
type NormalizedInput struct {
	Categories []Series
	Aggregate  Series
	Dropped    int
	FirstDate  time.Time
	LastDate   time.Time

	TransactionCount int
	TotalIncome      float64
	TotalExpense     float64
}

// TrendDirection classifies the fitted trend slope.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// ModelKind records which estimator produced a forecast.
type ModelKind string

const (
	ModelReal     ModelKind = "real"
	ModelFallback ModelKind = "fallback"
)

// Degraded reasons reported alongside fallback results.
const (
	DegradedInsufficientHistory = "insufficient_history"
	DegradedPrimaryUnavailable  = "primary_model_unavailable"
	DegradedModelFitFailed      = "model_fit_failed"
)

// ForecastPoint is one projected period with its confidence bounds.
// Invariant: Lower <= Predicted <= Upper.
type ForecastPoint struct {
	Date      time.Time `json:"date"`
	Predicted float64   `json:"predicted"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// Width returns the confidence interval width of the point.
func (p ForecastPoint) Width() float64 { return p.Upper - p.Lower }

// CategoryForecast is the projection for one category or the aggregate.
type CategoryForecast struct {
	Category          string          `json:"category"`
	Points            []ForecastPoint `json:"points"`
	TrendDirection    TrendDirection  `json:"trend_direction"`
	HistoricalAverage float64         `json:"historical_average"`
	PredictedAverage  float64         `json:"predicted_average"`
	Confidence        float64         `json:"confidence"`
	DataPoints        int             `json:"data_points"`
}

// ModelAccuracy holds holdout error metrics for the fitted model.
type ModelAccuracy struct {
	MAE        float64 `json:"mae"`
	MAPE       float64 `json:"mape"`
	RMSE       float64 `json:"rmse"`
	DataPoints int     `json:"data_points"`
}

// UserProfile summarizes the caller's historical cash flow.
type UserProfile struct {
	AvgMonthlyIncome   float64  `json:"avg_monthly_income"`
	AvgMonthlyExpenses float64  `json:"avg_monthly_expenses"`
	SavingsRate        float64  `json:"savings_rate"`
	SpendingCategories []string `json:"spending_categories"`
	TransactionCount   int      `json:"transaction_count"`
}

// Insight is a deterministic, rule-derived observation about the forecast.
type Insight struct {
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Category       string  `json:"category"`
	Confidence     float64 `json:"confidence"`
	Recommendation string  `json:"recommendation,omitempty"`
}

// Projection is the raw output of a Forecaster, before the assembler attaches
// profile, insights and timing metadata.
type Projection struct {
	PerCategory     []CategoryForecast
	Aggregate       CategoryForecast
	Accuracy        ModelAccuracy
	ConfidenceScore float64
	ModelKind       ModelKind
	DegradedReason  string
}

// Result is the complete forecast payload returned to the caller and stored
// in the cache.
type Result struct {
	PredictionID    string             `json:"prediction_id"`
	UserID          string             `json:"user_id"`
	Horizon         Horizon            `json:"timeframe"`
	GeneratedAt     time.Time          `json:"generated_at"`
	ExpiresAt       time.Time          `json:"expires_at"`
	PerCategory     []CategoryForecast `json:"per_category"`
	Aggregate       CategoryForecast   `json:"aggregate"`
	ModelKind       ModelKind          `json:"model_kind"`
	DegradedReason  string             `json:"degraded_reason,omitempty"`
	Accuracy        ModelAccuracy      `json:"model_accuracy"`
	ConfidenceScore float64            `json:"confidence_score"`
	Profile         UserProfile        `json:"user_profile"`
	Insights        []Insight          `json:"insights"`
	DroppedRecords  int                `json:"dropped_records,omitempty"`
}
