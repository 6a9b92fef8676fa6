package services

import (
	"context"
	"fmt"
	"time"

	"spendly/internal/core"
	"spendly/internal/records"
)

// MonthQuery selects a calendar month. Zero fields mean the current month or year.
type MonthQuery struct {
	Year  int
	Month time.Month
}

type DailyStats struct {
	Date     time.Time      `json:"date"`
	Expenses []core.Expense `json:"expenses"`
	Total    core.Money     `json:"total"`
	Count    int            `json:"count"`
}

type MonthlyStats struct {
	Year       int                         `json:"year"`
	Month      time.Month                  `json:"month"`
	Expenses   []core.Expense              `json:"expenses"`
	Total      core.Money                  `json:"total"`
	Count      int                         `json:"count"`
	ByCategory map[core.Category]core.Money `json:"byCategory"`
}

type CategoryBreakdown struct {
	Year       int                  `json:"year"`
	Month      time.Month           `json:"month"`
	Categories []core.CategoryTotal `json:"categories"`
	Total      core.Money           `json:"total"`
}

// StatsService computes day and month aggregates over an owner's records.
// Day and month windows are taken in loc.
type StatsService struct {
	store records.ExpenseStore
	loc   *time.Location
	now   func() time.Time
}

func NewStatsService(store records.ExpenseStore, loc *time.Location) *StatsService {
	if loc == nil {
		loc = time.Local
	}
	return &StatsService{store: store, loc: loc, now: time.Now}
}

// Daily aggregates the local day containing date, or today when date is nil.
func (s *StatsService) Daily(ctx context.Context, owner string, date *time.Time) (DailyStats, error) {
	day := s.now()
	if date != nil {
		day = *date
	}
	p := core.DayPeriod(day, s.loc)

	items, err := expensesIn(ctx, s.store, owner, p)
	if err != nil {
		return DailyStats{}, err
	}
	return DailyStats{
		Date:     p.Start,
		Expenses: items,
		Total:    core.Total(items),
		Count:    len(items),
	}, nil
}

func (s *StatsService) Monthly(ctx context.Context, owner string, q MonthQuery) (MonthlyStats, error) {
	year, month := s.resolve(q)
	items, err := expensesIn(ctx, s.store, owner, core.MonthPeriod(year, month, s.loc))
	if err != nil {
		return MonthlyStats{}, err
	}
	return MonthlyStats{
		Year:       year,
		Month:      month,
		Expenses:   items,
		Total:      core.Total(items),
		Count:      len(items),
		ByCategory: core.TotalsByCategory(items),
	}, nil
}

// CategoryBreakdown groups the month by category, largest total first.
func (s *StatsService) CategoryBreakdown(ctx context.Context, owner string, q MonthQuery) (CategoryBreakdown, error) {
	year, month := s.resolve(q)
	items, err := expensesIn(ctx, s.store, owner, core.MonthPeriod(year, month, s.loc))
	if err != nil {
		return CategoryBreakdown{}, err
	}
	groups := core.GroupByCategory(items)
	if groups == nil {
		groups = []core.CategoryTotal{}
	}
	return CategoryBreakdown{
		Year:       year,
		Month:      month,
		Categories: groups,
		Total:      core.Total(items),
	}, nil
}

func (s *StatsService) resolve(q MonthQuery) (int, time.Month) {
	now := s.now().In(s.loc)
	year, month := q.Year, q.Month
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = now.Month()
	}
	return year, month
}

// expensesIn returns every record of owner inside p, newest first.
func expensesIn(ctx context.Context, store records.ExpenseStore, owner string, p core.Period) ([]core.Expense, error) {
	items, _, err := store.ListExpenses(ctx, core.ExpenseFilter{
		OwnerID: owner,
		From:    &p.Start,
		To:      &p.End,
	})
	if err != nil {
		return nil, fmt.Errorf("list expenses %s..%s: %w", p.Start.Format(time.DateOnly), p.End.Format(time.DateOnly), err)
	}
	return items, nil
}
