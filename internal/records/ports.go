// Package records declares the persistence ports of the expense tracker.
// Implementations live in records/memory and internal/storage.
package records

import (
	"context"
	"time"

	"spendly/internal/core"
)

type (
	// ExpenseStore persists expense records. Every read and write is scoped
	// to an owner; a record of another owner behaves as missing.
	ExpenseStore interface {
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		GetExpense(ctx context.Context, ownerID, id string) (core.Expense, error)
		// UpdateExpense applies u atomically and stamps UpdatedAt with now.
		UpdateExpense(ctx context.Context, ownerID, id string, u core.ExpenseUpdate, now time.Time) (core.Expense, error)
		DeleteExpense(ctx context.Context, ownerID, id string) error
		// ListExpenses returns the filtered page ordered by date descending
		// together with the unpaginated match count.
		ListExpenses(ctx context.Context, f core.ExpenseFilter) ([]core.Expense, int, error)
		// UpsertByLocalID inserts the record or, when (OwnerID, LocalID) already
		// exists, overwrites its mutable fields. The existing ID and CreatedAt
		// are preserved. created reports which branch was taken.
		UpsertByLocalID(ctx context.Context, u core.LocalUpsert) (e core.Expense, created bool, err error)
	}

	UserStore interface {
		// CreateUser returns core.ErrEmailTaken when the email is registered.
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUserByID(ctx context.Context, id string) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		UpdateProfile(ctx context.Context, id, name, currency string) (core.User, error)
		UpdatePassword(ctx context.Context, id, passwordHash string) error
	}

	// Store is the full persistence surface a backend provides.
	Store interface {
		ExpenseStore
		UserStore
		Ping(ctx context.Context) error
	}
)

// Less orders records by date descending, newest creation first on equal
// dates, then by ID.
func Less(a, b core.Expense) bool {
	if !a.OccurredAt.Equal(b.OccurredAt) {
		return a.OccurredAt.After(b.OccurredAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}
