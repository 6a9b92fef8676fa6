package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"spendly/internal/amqp"
	"spendly/internal/core"
	"spendly/internal/records"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps (page-1)*limit well inside int64.
	MaxPage = math.MaxInt32
)

// ListQuery selects a page of an owner's records.
type ListQuery struct {
	Category *core.Category
	From     *time.Time // inclusive
	To       *time.Time // exclusive
	Page     int
	Limit    int
}

// ExpensePage is one page of records plus pagination counters.
type ExpensePage struct {
	Expenses []core.Expense
	Page     int
	Pages    int
	Total    int
}

// ExpenseService orchestrates owner-scoped record CRUD and change events.
type ExpenseService struct {
	store  records.ExpenseStore
	events EventPublisher
	loc    *time.Location
	now    func() time.Time
	newID  func() string
}

// NewExpenseService creates the service. events may be nil.
func NewExpenseService(store records.ExpenseStore, events EventPublisher, loc *time.Location) *ExpenseService {
	if loc == nil {
		loc = time.Local
	}
	return &ExpenseService{
		store:  store,
		events: events,
		loc:    loc,
		now:    systemNow,
		newID:  newID,
	}
}

// CreateExpense validates the input and stores a new record for owner.
func (s *ExpenseService) CreateExpense(ctx context.Context, owner string, in ExpenseInput) (core.Expense, error) {
	e, err := in.build(owner, s.newID(), s.loc, s.now())
	if err != nil {
		return core.Expense{}, err
	}

	created, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense created",
		"owner_id", owner,
		"expense_id", created.ID,
		"amount", created.Amount.String(),
		"category", created.Category)

	s.publish(ctx, amqp.EventCreated, created)
	return created, nil
}

func (s *ExpenseService) GetExpense(ctx context.Context, owner, id string) (core.Expense, error) {
	return s.store.GetExpense(ctx, owner, id)
}

// UpdateExpense applies the supplied fields. An empty update returns the
// record unchanged.
func (s *ExpenseService) UpdateExpense(ctx context.Context, owner, id string, in ExpenseUpdateInput) (core.Expense, error) {
	u, err := in.toUpdate(s.loc)
	if err != nil {
		return core.Expense{}, err
	}
	if u.IsEmpty() {
		return s.store.GetExpense(ctx, owner, id)
	}

	updated, err := s.store.UpdateExpense(ctx, owner, id, u, s.now())
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense updated", "owner_id", owner, "expense_id", id)
	s.publish(ctx, amqp.EventUpdated, updated)
	return updated, nil
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, owner, id string) error {
	e, err := s.store.GetExpense(ctx, owner, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteExpense(ctx, owner, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense deleted", "owner_id", owner, "expense_id", id)
	s.publish(ctx, amqp.EventDeleted, e)
	return nil
}

// ListExpenses returns the requested page, newest first.
func (s *ExpenseService) ListExpenses(ctx context.Context, owner string, q ListQuery) (ExpensePage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > MaxPage {
		return ExpensePage{}, core.NewValidationError("page", fmt.Sprintf("page must be at most %d", MaxPage))
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if q.From != nil && q.To != nil && !q.From.Before(*q.To) {
		return ExpensePage{}, core.NewValidationError("startDate", "startDate must not be after endDate")
	}

	items, total, err := s.store.ListExpenses(ctx, core.ExpenseFilter{
		OwnerID:  owner,
		Category: q.Category,
		From:     q.From,
		To:       q.To,
		Offset:   (q.Page - 1) * q.Limit,
		Limit:    q.Limit,
	})
	if err != nil {
		return ExpensePage{}, fmt.Errorf("list expenses: %w", err)
	}

	return ExpensePage{
		Expenses: items,
		Page:     q.Page,
		Pages:    (total + q.Limit - 1) / q.Limit,
		Total:    total,
	}, nil
}

func (s *ExpenseService) publish(ctx context.Context, t amqp.EventType, e core.Expense) {
	publishEvent(ctx, s.events, t, e)
}

// publishEvent is fire-and-forget: failures are logged, never returned.
func publishEvent(ctx context.Context, events EventPublisher, t amqp.EventType, e core.Expense) {
	if events == nil {
		return
	}
	if err := events.PublishExpenseEvent(ctx, amqp.NewExpenseEvent(t, e)); err != nil {
		slog.WarnContext(ctx, "Failed to publish expense event",
			"type", t,
			"expense_id", e.ID,
			"error", err)
	}
}
