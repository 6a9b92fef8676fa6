package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"spendly/internal/amqp"
	"spendly/internal/core"
)

// EventPublisher receives change notifications after a successful write.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, ev *amqp.ExpenseEvent) error
}

type fanOut []EventPublisher

// FanOut delivers every event to each non-nil publisher in order. It returns
// nil when there is nothing to publish to.
func FanOut(publishers ...EventPublisher) EventPublisher {
	var out fanOut
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (f fanOut) PublishExpenseEvent(ctx context.Context, ev *amqp.ExpenseEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishExpenseEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExpenseInput is client-supplied record data before validation.
type ExpenseInput struct {
	Amount        *core.Money
	Category      string
	PaymentMethod string
	Description   string
	Date          string // empty means now
	LocalID       *string
}

// ExpenseUpdateInput carries the fields of a partial update. Nil means unchanged.
type ExpenseUpdateInput struct {
	Amount        *core.Money
	Category      *string
	PaymentMethod *string
	Description   *string
	Date          *string
}

// build validates in and returns a new synced record owned by owner.
func (in ExpenseInput) build(owner, id string, loc *time.Location, now time.Time) (core.Expense, error) {
	if in.Amount == nil {
		return core.Expense{}, core.NewValidationError("amount", "amount is required")
	}
	category, err := core.ParseCategory(in.Category)
	if err != nil {
		return core.Expense{}, err
	}
	payment, err := core.ParsePaymentMethod(in.PaymentMethod)
	if err != nil {
		return core.Expense{}, err
	}
	occurredAt := now
	if strings.TrimSpace(in.Date) != "" {
		if occurredAt, err = core.ParseDate("date", in.Date, loc); err != nil {
			return core.Expense{}, err
		}
	}

	e := core.Expense{
		ID:            id,
		OwnerID:       owner,
		Amount:        *in.Amount,
		Category:      category,
		PaymentMethod: payment,
		Description:   strings.TrimSpace(in.Description),
		OccurredAt:    occurredAt,
		SyncStatus:    core.SyncStatusSynced,
		LocalID:       normalizeLocalID(in.LocalID),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func (in ExpenseUpdateInput) toUpdate(loc *time.Location) (core.ExpenseUpdate, error) {
	var u core.ExpenseUpdate
	u.Amount = in.Amount
	if in.Category != nil {
		c, err := core.ParseCategory(*in.Category)
		if err != nil {
			return u, err
		}
		u.Category = &c
	}
	if in.PaymentMethod != nil {
		p, err := core.ParsePaymentMethod(*in.PaymentMethod)
		if err != nil {
			return u, err
		}
		u.PaymentMethod = &p
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		u.Description = &d
	}
	if in.Date != nil {
		t, err := core.ParseDate("date", *in.Date, loc)
		if err != nil {
			return u, err
		}
		u.OccurredAt = &t
	}
	return u, u.Validate()
}

// normalizeLocalID treats a blank client id as absent.
func normalizeLocalID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func newID() string {
	return uuid.NewString()
}

// systemNow truncates to the millisecond resolution the SQL stores keep.
func systemNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
