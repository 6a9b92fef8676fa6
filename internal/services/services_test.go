package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendly/internal/amqp"
	"spendly/internal/core"
	"spendly/internal/records/memory"
)

// fixedNow is mid-March 2025 in UTC.
var fixedNow = time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)

func money(cents int64) *core.Money {
	return &core.Money{Cents: cents}
}

func strp(s string) *string {
	return &s
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.ExpenseEvent
	err    error
}

func (p *recordingPublisher) PublishExpenseEvent(_ context.Context, ev *amqp.ExpenseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// sequentialIDs returns e1, e2, ...
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("e%d", n)
	}
}

func newExpenseService(store *memory.Store, events EventPublisher) *ExpenseService {
	s := NewExpenseService(store, events, time.UTC)
	s.now = func() time.Time { return fixedNow }
	s.newID = sequentialIDs()
	return s
}

func seed(t *testing.T, store *memory.Store, owner string, cents int64, cat core.Category, at time.Time) core.Expense {
	t.Helper()
	e, err := store.CreateExpense(context.Background(), core.Expense{
		ID:            fmt.Sprintf("%s-%d-%d", owner, at.UnixNano(), cents),
		OwnerID:       owner,
		Amount:        core.Money{Cents: cents},
		Category:      cat,
		PaymentMethod: core.PaymentCash,
		OccurredAt:    at,
		SyncStatus:    core.SyncStatusSynced,
		CreatedAt:     at,
		UpdatedAt:     at,
	})
	require.NoError(t, err)
	return e
}

func TestExpenseService_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	events := &recordingPublisher{}
	svc := newExpenseService(store, events)

	e, err := svc.CreateExpense(ctx, "alice", ExpenseInput{
		Amount:        money(1250),
		Category:      "Food",
		PaymentMethod: "CreditCard",
		Description:   "  lunch ",
	})
	require.NoError(t, err)
	assert.Equal(t, "e1", e.ID)
	assert.Equal(t, "alice", e.OwnerID)
	assert.Equal(t, core.PaymentCreditCard, e.PaymentMethod)
	assert.Equal(t, "lunch", e.Description)
	assert.Equal(t, core.SyncStatusSynced, e.SyncStatus)
	assert.True(t, e.OccurredAt.Equal(fixedNow), "date defaults to now")
	assert.Nil(t, e.LocalID)

	got, err := svc.GetExpense(ctx, "alice", e.ID)
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = svc.GetExpense(ctx, "bob", e.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Equal(t, []amqp.EventType{amqp.EventCreated}, events.types())
}

func TestExpenseService_CreateValidation(t *testing.T) {
	svc := newExpenseService(memory.New(), nil)
	cases := map[string]ExpenseInput{
		"missing amount":  {Category: "Food", PaymentMethod: "Cash"},
		"zero amount":     {Amount: money(0), Category: "Food", PaymentMethod: "Cash"},
		"bad category":    {Amount: money(100), Category: "Rent", PaymentMethod: "Cash"},
		"bad payment":     {Amount: money(100), Category: "Food", PaymentMethod: "Cheque"},
		"bad date":        {Amount: money(100), Category: "Food", PaymentMethod: "Cash", Date: "yesterday"},
		"missing payment": {Amount: money(100), Category: "Food"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateExpense(context.Background(), "alice", in)
			assert.True(t, core.IsValidation(err), "got %v", err)
		})
	}
}

func TestExpenseService_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	events := &recordingPublisher{err: errors.New("broker down")}
	svc := newExpenseService(store, events)

	e, err := svc.CreateExpense(ctx, "alice", ExpenseInput{Amount: money(1000), Category: "Food", PaymentMethod: "Cash", Date: "2025-03-01"})
	require.NoError(t, err, "publish failures must not fail the write")

	later := fixedNow.Add(time.Hour)
	svc.now = func() time.Time { return later }
	updated, err := svc.UpdateExpense(ctx, "alice", e.ID, ExpenseUpdateInput{Amount: money(1500), Description: strp("dinner")})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), updated.Amount.Cents)
	assert.Equal(t, "dinner", updated.Description)
	assert.Equal(t, core.CategoryFood, updated.Category)
	assert.True(t, updated.OccurredAt.Equal(e.OccurredAt))
	assert.True(t, updated.UpdatedAt.Equal(later))

	unchanged, err := svc.UpdateExpense(ctx, "alice", e.ID, ExpenseUpdateInput{})
	require.NoError(t, err)
	assert.Equal(t, updated, unchanged)

	_, err = svc.UpdateExpense(ctx, "alice", e.ID, ExpenseUpdateInput{Category: strp("Nope")})
	assert.True(t, core.IsValidation(err))

	_, err = svc.UpdateExpense(ctx, "bob", e.ID, ExpenseUpdateInput{Amount: money(1)})
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.ErrorIs(t, svc.DeleteExpense(ctx, "bob", e.ID), core.ErrNotFound)
	require.NoError(t, svc.DeleteExpense(ctx, "alice", e.ID))
	assert.ErrorIs(t, svc.DeleteExpense(ctx, "alice", e.ID), core.ErrNotFound)

	assert.Equal(t, []amqp.EventType{amqp.EventCreated, amqp.EventUpdated, amqp.EventDeleted}, events.types())
}

func TestExpenseService_ListExpenses(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newExpenseService(store, nil)
	for day := 1; day <= 25; day++ {
		cat := core.CategoryFood
		if day%5 == 0 {
			cat = core.CategoryBills
		}
		seed(t, store, "alice", 100, cat, time.Date(2025, 3, day, 12, 0, 0, 0, time.UTC))
	}

	page, err := svc.ListExpenses(ctx, "alice", ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.Pages)
	assert.Equal(t, 25, page.Total)
	assert.Len(t, page.Expenses, DefaultPageSize)
	assert.Equal(t, 25, page.Expenses[0].OccurredAt.Day())

	page, err = svc.ListExpenses(ctx, "alice", ListQuery{Page: 2, Limit: 20})
	require.NoError(t, err)
	assert.Len(t, page.Expenses, 5)

	bills := core.CategoryBills
	page, err = svc.ListExpenses(ctx, "alice", ListQuery{Category: &bills, Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 1, page.Pages)

	from := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)
	page, err = svc.ListExpenses(ctx, "alice", ListQuery{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	_, err = svc.ListExpenses(ctx, "alice", ListQuery{From: &to, To: &from})
	assert.True(t, core.IsValidation(err))

	page, err = svc.ListExpenses(ctx, "alice", ListQuery{Page: MaxPage, Limit: MaxPageSize})
	require.NoError(t, err)
	assert.Empty(t, page.Expenses)
	assert.Equal(t, MaxPage, page.Page)

	_, err = svc.ListExpenses(ctx, "alice", ListQuery{Page: math.MaxInt64})
	assert.True(t, core.IsValidation(err))

	page, err = svc.ListExpenses(ctx, "bob", ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Zero(t, page.Pages)
	assert.NotNil(t, page.Expenses)
}
