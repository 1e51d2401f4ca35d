package forecast

// BuildProfile derives the caller's financial profile from the normalized
// input: monthly income/expense averages over the covered span and the
// resulting savings rate.
func BuildProfile(in *NormalizedInput) UserProfile {
	months := 1.0
	if span := in.Aggregate.Span(); span > 0 {
		if m := float64(span) / daysPerMonth; m > 1 {
			months = m
		}
	}

	avgIncome := in.TotalIncome / months
	avgExpenses := in.TotalExpense / months
	savingsRate := 0.0
	if avgIncome > 0 {
		savingsRate = (avgIncome - avgExpenses) / avgIncome
	}

	categories := make([]string, 0, len(in.Categories))
	for i := range in.Categories {
		if in.Categories[i].Kind == KindExpense {
			categories = append(categories, in.Categories[i].Category)
		}
	}

	return UserProfile{
		AvgMonthlyIncome:   avgIncome,
		AvgMonthlyExpenses: avgExpenses,
		SavingsRate:        savingsRate,
		SpendingCategories: categories,
		TransactionCount:   in.TransactionCount,
	}
}
