package storage

import (
	"strconv"
	"strings"
)

// Dialect selects the SQL flavour and driver of a repository.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	return string(d)
}

// rebind rewrites ? placeholders to $1..$n for postgres.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const expenseColumns = `id, owner_id, amount_cents, category, payment_method, description,
	occurred_at, sync_status, local_id, created_at, updated_at`

const userColumns = `id, name, email, password_hash, currency, created_at`

const (
	insertExpenseSQL = `INSERT INTO expenses (` + expenseColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectExpenseSQL = `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ? AND owner_id = ?`

	updateExpenseSQL = `UPDATE expenses SET
	amount_cents = ?, category = ?, payment_method = ?, description = ?,
	occurred_at = ?, updated_at = ?
	WHERE id = ? AND owner_id = ?`

	deleteExpenseSQL = `DELETE FROM expenses WHERE id = ? AND owner_id = ?`

	// The trailing parameter selects whether an existing record keeps its date.
	upsertExpenseSQL = insertExpenseSQL + `
	ON CONFLICT (owner_id, local_id) DO UPDATE SET
	amount_cents = excluded.amount_cents,
	category = excluded.category,
	payment_method = excluded.payment_method,
	description = excluded.description,
	sync_status = excluded.sync_status,
	updated_at = excluded.updated_at,
	occurred_at = CASE WHEN ? THEN expenses.occurred_at ELSE excluded.occurred_at END
	RETURNING ` + expenseColumns

	insertUserSQL = `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

	selectUserByIDSQL    = `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	selectUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE email = ?`

	updateProfileSQL  = `UPDATE users SET name = ?, currency = ? WHERE id = ?`
	updatePasswordSQL = `UPDATE users SET password_hash = ? WHERE id = ?`
)
