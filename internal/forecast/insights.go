package forecast

import (
	"fmt"
	"math"
)

// BuildInsights derives rule-based observations from a projection and the
// caller's profile: overall cash-flow direction, savings-rate assessment, the
// category with the biggest projected shift, and a reliability note.
func BuildInsights(proj *Projection, profile UserProfile) []Insight {
	insights := make([]Insight, 0, 4)

	avgPredicted := proj.Aggregate.PredictedAverage
	if avgPredicted > 0 {
		insights = append(insights, Insight{
			Title:          "Positive Cash Flow Ahead",
			Description:    fmt.Sprintf("Your forecast shows an average monthly net flow of %.2f", avgPredicted),
			Category:       "trend",
			Confidence:     0.75,
			Recommendation: "Consider directing the projected surplus toward savings or investments",
		})
	} else {
		insights = append(insights, Insight{
			Title:          "Financial Caution Advised",
			Description:    fmt.Sprintf("Your forecast indicates a potential monthly shortfall of %.2f", math.Abs(avgPredicted)),
			Category:       "trend",
			Confidence:     0.75,
			Recommendation: "Review and optimize your spending to improve cash flow",
		})
	}

	switch {
	case profile.SavingsRate > 0.2:
		insights = append(insights, Insight{
			Title:          "Excellent Savings Performance",
			Description:    fmt.Sprintf("Your savings rate of %.1f%% is exceptional", profile.SavingsRate*100),
			Category:       "savings",
			Confidence:     0.9,
			Recommendation: "Keep the habit going and consider investment opportunities",
		})
	case profile.SavingsRate > 0.1:
		insights = append(insights, Insight{
			Title:          "Good Savings Discipline",
			Description:    fmt.Sprintf("Your savings rate of %.1f%% is above average", profile.SavingsRate*100),
			Category:       "savings",
			Confidence:     0.8,
			Recommendation: "Gradually increasing toward 20% would strengthen your position",
		})
	default:
		insights = append(insights, Insight{
			Title:          "Savings Opportunity",
			Description:    fmt.Sprintf("Your savings rate of %.1f%% has room for improvement", profile.SavingsRate*100),
			Category:       "savings",
			Confidence:     0.7,
			Recommendation: "Aim to save at least 10-15% of your income",
		})
	}

	if shift := biggestShift(proj.PerCategory); shift != nil {
		change := shift.PredictedAverage - shift.HistoricalAverage
		direction := "increase"
		if change < 0 {
			direction = "decrease"
		}
		insights = append(insights, Insight{
			Title:          fmt.Sprintf("Shift in %s Spending", titleWord(shift.Category)),
			Description:    fmt.Sprintf("A %s of %.2f per month is projected for %s", direction, math.Abs(change), shift.Category),
			Category:       "category",
			Confidence:     shift.Confidence,
			Recommendation: fmt.Sprintf("Monitor your %s budget to stay ahead of the change", shift.Category),
		})
	}

	switch {
	case proj.ConfidenceScore >= 0.8:
		insights = append(insights, Insight{
			Title:       "High Prediction Confidence",
			Description: fmt.Sprintf("The model shows %.1f%% confidence in this forecast", proj.ConfidenceScore*100),
			Category:    "model",
			Confidence:  proj.ConfidenceScore,
		})
	case proj.ConfidenceScore >= 0.6:
		insights = append(insights, Insight{
			Title:          "Moderate Prediction Confidence",
			Description:    fmt.Sprintf("The model shows %.1f%% confidence, indicating moderate reliability", proj.ConfidenceScore*100),
			Category:       "model",
			Confidence:     proj.ConfidenceScore,
			Recommendation: "Treat the forecast as guidance while tracking actual spending",
		})
	default:
		insights = append(insights, Insight{
			Title:          "Lower Prediction Confidence",
			Description:    fmt.Sprintf("Confidence is %.1f%% due to limited or irregular history", proj.ConfidenceScore*100),
			Category:       "model",
			Confidence:     proj.ConfidenceScore,
			Recommendation: "Add more transaction history to improve accuracy",
		})
	}

	return insights
}

// biggestShift finds the category whose projection moves furthest from its
// historical average.
func biggestShift(categories []CategoryForecast) *CategoryForecast {
	var best *CategoryForecast
	bestChange := 0.0
	for i := range categories {
		change := math.Abs(categories[i].PredictedAverage - categories[i].HistoricalAverage)
		if change > bestChange {
			bestChange = change
			best = &categories[i]
		}
	}
	return best
}

func titleWord(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] = r[0] - 'a' + 'A'
	}
	return string(r)
}
