package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"spendly/internal/amqp"
	"spendly/internal/cache"
	"spendly/internal/core"
	"spendly/internal/records"
)

// InsightEntry is a cached report and the month it was computed for.
type InsightEntry struct {
	Year   int
	Month  time.Month
	Report core.InsightReport
}

// InsightService compares the current month with the previous one.
type InsightService struct {
	store records.ExpenseStore
	loc   *time.Location
	now   func() time.Time

	cache *cache.LRU[InsightEntry]
	mu    sync.Mutex
	// generations counts invalidations per owner so a report computed
	// before a write is never stored after it.
	generations map[string]uint64
}

func NewInsightService(store records.ExpenseStore, loc *time.Location) *InsightService {
	if loc == nil {
		loc = time.Local
	}
	return &InsightService{store: store, loc: loc, now: time.Now, generations: make(map[string]uint64)}
}

// UseCache memoizes reports per owner. The service must then receive the
// expense change events, see PublishExpenseEvent.
func (s *InsightService) UseCache(c *cache.LRU[InsightEntry]) {
	s.cache = c
}

// PublishExpenseEvent drops the cached report of the event's owner.
func (s *InsightService) PublishExpenseEvent(_ context.Context, ev *amqp.ExpenseEvent) error {
	s.Invalidate(ev.OwnerID)
	return nil
}

func (s *InsightService) Invalidate(owner string) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	s.generations[owner]++
	s.cache.Delete(owner)
	s.mu.Unlock()
}

func (s *InsightService) Insights(ctx context.Context, owner string) (core.InsightReport, error) {
	now := s.now().In(s.loc)
	year, month := now.Year(), now.Month()

	if s.cache != nil {
		if e, ok := s.cache.Get(owner); ok && e.Year == year && e.Month == month {
			return e.Report, nil
		}
	}
	gen := s.generation(owner)

	report, err := s.compute(ctx, owner, year, month)
	if err != nil {
		return core.InsightReport{}, err
	}

	if s.cache != nil {
		s.mu.Lock()
		if s.generations[owner] == gen {
			s.cache.Set(owner, InsightEntry{Year: year, Month: month, Report: report})
		}
		s.mu.Unlock()
	}
	return report, nil
}

func (s *InsightService) generation(owner string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[owner]
}

func (s *InsightService) compute(ctx context.Context, owner string, year int, month time.Month) (core.InsightReport, error) {
	lastYear, lastMonth := core.PreviousMonth(year, month)

	var current, last []core.Expense
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = expensesIn(gctx, s.store, owner, core.MonthPeriod(year, month, s.loc))
		return err
	})
	g.Go(func() error {
		var err error
		last, err = expensesIn(gctx, s.store, owner, core.MonthPeriod(lastYear, lastMonth, s.loc))
		return err
	})
	if err := g.Wait(); err != nil {
		return core.InsightReport{}, err
	}

	report := core.CompareMonths(current, last)
	slog.DebugContext(ctx, "Insights computed",
		"owner_id", owner,
		"insights", len(report.Insights),
		"overall_change", report.OverallChange)
	return report, nil
}
