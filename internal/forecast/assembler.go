package forecast

import (
	"time"

	"github.com/google/uuid"
)

// Assemble merges a projection with profile, insights and timing metadata
// into the final result. generatedAt is the computation time, never the time
// of a later cache read; cache hits re-serve the stored result verbatim.
func Assemble(userID string, horizon Horizon, in *NormalizedInput, proj *Projection, generatedAt time.Time, ttl time.Duration) *Result {
	profile := BuildProfile(in)

	degraded := proj.DegradedReason
	if proj.ModelKind == ModelFallback && degraded == "" {
		degraded = DegradedInsufficientHistory
	}

	return &Result{
		PredictionID:    uuid.NewString(),
		UserID:          userID,
		Horizon:         horizon,
		GeneratedAt:     generatedAt,
		ExpiresAt:       generatedAt.Add(ttl),
		PerCategory:     proj.PerCategory,
		Aggregate:       proj.Aggregate,
		ModelKind:       proj.ModelKind,
		DegradedReason:  degraded,
		Accuracy:        proj.Accuracy,
		ConfidenceScore: proj.ConfidenceScore,
		Profile:         profile,
		Insights:        BuildInsights(proj, profile),
		DroppedRecords:  in.Dropped,
	}
}
