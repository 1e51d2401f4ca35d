package forecast

import (
	"math"
	"sort"
	"strings"
	"time"
)

// dateLayouts accepted for transaction dates, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
}

type dayFlow struct {
	income  float64
	expense float64
}

// Normalize validates and reshapes raw transactions into per-category daily
// series plus an aggregate net-flow series. Malformed records are dropped and
// counted; the call only fails when nothing valid remains. Pure function.
func Normalize(records []TransactionRecord) (*NormalizedInput, error) {
	// day -> net flow, and category -> day -> flow
	byDay := make(map[time.Time]*dayFlow)
	byCategory := make(map[string]map[time.Time]*dayFlow)
	catTypes := make(map[string]map[TransactionType]int)

	in := &NormalizedInput{}
	valid := 0

	for _, rec := range records {
		day, ok := parseDay(rec.Date)
		if !ok {
			in.Dropped++
			continue
		}
		if math.IsNaN(rec.Amount) || math.IsInf(rec.Amount, 0) || rec.Amount <= 0 {
			in.Dropped++
			continue
		}
		category := strings.ToLower(strings.TrimSpace(rec.Category))
		if category == "" {
			in.Dropped++
			continue
		}
		txType := TransactionType(strings.ToLower(strings.TrimSpace(rec.Type)))
		if txType != TypeIncome && txType != TypeExpense {
			in.Dropped++
			continue
		}

		valid++
		if in.FirstDate.IsZero() || day.Before(in.FirstDate) {
			in.FirstDate = day
		}
		if day.After(in.LastDate) {
			in.LastDate = day
		}

		flow := byDay[day]
		if flow == nil {
			flow = &dayFlow{}
			byDay[day] = flow
		}
		catDays := byCategory[category]
		if catDays == nil {
			catDays = make(map[time.Time]*dayFlow)
			byCategory[category] = catDays
			catTypes[category] = make(map[TransactionType]int)
		}
		catFlow := catDays[day]
		if catFlow == nil {
			catFlow = &dayFlow{}
			catDays[day] = catFlow
		}

		if txType == TypeIncome {
			flow.income += rec.Amount
			catFlow.income += rec.Amount
			in.TotalIncome += rec.Amount
		} else {
			flow.expense += rec.Amount
			catFlow.expense += rec.Amount
			in.TotalExpense += rec.Amount
		}
		catTypes[category][txType]++
	}

	if valid == 0 {
		insufficient := NewInsufficientDataError(1, 0)
		insufficient.Message = "no valid transaction records in request"
		return nil, insufficient
	}
	in.TransactionCount = valid

	// Per-category series, amounts kept positive; the category's kind is the
	// majority transaction type.
	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		kind := KindExpense
		if catTypes[cat][TypeIncome] > catTypes[cat][TypeExpense] {
			kind = KindIncome
		}
		days := byCategory[cat]
		series := Series{Category: cat, Kind: kind, Observations: len(days)}
		first, last := dayRange(days)
		for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
			var amount float64
			if flow, ok := days[d]; ok {
				if kind == KindIncome {
					amount = flow.income
				} else {
					amount = flow.expense
				}
			}
			series.Points = append(series.Points, SeriesPoint{Date: d, Amount: amount})
		}
		in.Categories = append(in.Categories, series)
	}

	// Aggregate net flow over the full date range.
	in.Aggregate = Series{Category: "aggregate", Kind: KindNet, Observations: len(byDay)}
	for d := in.FirstDate; !d.After(in.LastDate); d = d.AddDate(0, 0, 1) {
		var amount float64
		if flow, ok := byDay[d]; ok {
			amount = flow.income - flow.expense
		}
		in.Aggregate.Points = append(in.Aggregate.Points, SeriesPoint{Date: d, Amount: amount})
	}

	return in, nil
}

func parseDay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func dayRange(days map[time.Time]*dayFlow) (time.Time, time.Time) {
	var first, last time.Time
	for d := range days {
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}
	return first, last
}
