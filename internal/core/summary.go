package core

import (
	"fmt"
	"math"
	"sort"
)

// InsightThresholdPercent is the minimum absolute month-over-month change
// reported as an insight.
const InsightThresholdPercent = 10

// CategoryTotal is the sum and record count of one category.
type CategoryTotal struct {
	Category Category `json:"category"`
	Total    Money    `json:"total"`
	Count    int      `json:"count"`
}

// Insight describes a material change in a category between two months.
type Insight struct {
	Category      Category `json:"category"`
	CurrentAmount Money    `json:"currentAmount"`
	LastAmount    Money    `json:"lastAmount"`
	ChangePercent int64    `json:"changePercent"`
	Message       string   `json:"message"`
}

// InsightReport is the month-over-month comparison of an owner's spending.
type InsightReport struct {
	Insights          []Insight `json:"insights"`
	CurrentMonthTotal Money     `json:"currentMonthTotal"`
	LastMonthTotal    Money     `json:"lastMonthTotal"`
	OverallChange     int64     `json:"overallChange"`
}

// Total sums the amounts of the given records.
func Total(expenses []Expense) Money {
	var total Money
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// GroupByCategory sums records per category, ordered by descending total.
// Equal totals are ordered by category name.
func GroupByCategory(expenses []Expense) []CategoryTotal {
	idx := make(map[Category]int)
	var out []CategoryTotal
	for _, e := range expenses {
		i, ok := idx[e.Category]
		if !ok {
			i = len(out)
			idx[e.Category] = i
			out = append(out, CategoryTotal{Category: e.Category})
		}
		out[i].Total = out[i].Total.Add(e.Amount)
		out[i].Count++
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Total.Cents != out[b].Total.Cents {
			return out[a].Total.Cents > out[b].Total.Cents
		}
		return out[a].Category < out[b].Category
	})
	return out
}

// TotalsByCategory maps each category to its summed amount.
func TotalsByCategory(expenses []Expense) map[Category]Money {
	out := make(map[Category]Money)
	for _, e := range expenses {
		out[e.Category] = out[e.Category].Add(e.Amount)
	}
	return out
}

// ChangePercent returns round(100*(current-last)/last), rounding halves up.
// It returns 0 when last is not positive.
func ChangePercent(current, last Money) int64 {
	if last.Cents <= 0 {
		return 0
	}
	change := float64(current.Cents-last.Cents) * 100 / float64(last.Cents)
	return int64(math.Floor(change + 0.5))
}

// CompareMonths builds the insight report for two months of records.
//
// Categories without spending in the previous month produce no insight,
// whatever their current amount.
func CompareMonths(current, last []Expense) InsightReport {
	lastByCategory := TotalsByCategory(last)
	report := InsightReport{
		Insights:          []Insight{},
		CurrentMonthTotal: Total(current),
		LastMonthTotal:    Total(last),
	}
	for _, ct := range GroupByCategory(current) {
		lastAmount := lastByCategory[ct.Category]
		if lastAmount.Cents <= 0 {
			continue
		}
		change := ChangePercent(ct.Total, lastAmount)
		if abs(change) < InsightThresholdPercent {
			continue
		}
		report.Insights = append(report.Insights, Insight{
			Category:      ct.Category,
			CurrentAmount: ct.Total,
			LastAmount:    lastAmount,
			ChangePercent: change,
			Message:       InsightMessage(ct.Category, change),
		})
	}
	report.OverallChange = ChangePercent(report.CurrentMonthTotal, report.LastMonthTotal)
	return report
}

// InsightMessage renders the user-facing sentence for a change.
func InsightMessage(category Category, changePercent int64) string {
	direction := "more"
	if changePercent < 0 {
		direction = "less"
	}
	return fmt.Sprintf("You spent %d%% %s on %s this month", abs(changePercent), direction, category)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
