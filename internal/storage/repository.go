package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"spendly/internal/core"
	"spendly/internal/records"
)

var _ records.Store = (*SQLRepository)(nil)

// SQLRepository implements records.Store over database/sql for SQLite and PostgreSQL.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer serialises upserts on one file.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(DialectSQLite, dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLRepository{db: db, dialect: DialectSQLite}, nil
}

func NewPostgresRepository(ctx context.Context, url string) (*SQLRepository, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DialectPostgres, url); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLRepository{db: db, dialect: DialectPostgres}, nil
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) q(query string) string {
	return r.dialect.rebind(query)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e                               core.Expense
		localID                         sql.NullString
		occurredAt, createdAt, updateAt int64
		category, payment, status       string
	)
	err := row.Scan(&e.ID, &e.OwnerID, &e.Amount.Cents, &category, &payment, &e.Description,
		&occurredAt, &status, &localID, &createdAt, &updateAt)
	if err != nil {
		return core.Expense{}, err
	}
	e.Category = core.Category(category)
	e.PaymentMethod = core.PaymentMethod(payment)
	e.SyncStatus = core.SyncStatus(status)
	if localID.Valid {
		e.LocalID = &localID.String
	}
	e.OccurredAt = fromMillis(occurredAt)
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updateAt)
	return e, nil
}

func expenseArgs(e core.Expense) []any {
	var localID any
	if e.LocalID != nil {
		localID = *e.LocalID
	}
	return []any{
		e.ID, e.OwnerID, e.Amount.Cents, string(e.Category), string(e.PaymentMethod),
		e.Description, e.OccurredAt.UnixMilli(), string(e.SyncStatus), localID,
		e.CreatedAt.UnixMilli(), e.UpdatedAt.UnixMilli(),
	}
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// isUniqueViolation recognises unique-constraint failures of both drivers.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r *SQLRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if _, err := r.db.ExecContext(ctx, r.q(insertExpenseSQL), expenseArgs(e)...); err != nil {
		if isUniqueViolation(err) {
			return core.Expense{}, core.NewValidationError("localId", "localId already used")
		}
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.DebugContext(ctx, "Expense stored",
		"id", e.ID,
		"owner", e.OwnerID,
		"amount_cents", e.Amount.Cents,
		"dialect", r.dialect)

	return r.GetExpense(ctx, e.OwnerID, e.ID)
}

func (r *SQLRepository) GetExpense(ctx context.Context, ownerID, id string) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx, r.q(selectExpenseSQL), id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, err)
	}
	return e, nil
}

func (r *SQLRepository) UpdateExpense(ctx context.Context, ownerID, id string, u core.ExpenseUpdate, now time.Time) (core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	cur, err := scanExpense(tx.QueryRowContext(ctx, r.q(selectExpenseSQL), id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("load expense %s: %w", id, err)
	}

	next := u.Apply(cur, now)
	_, err = tx.ExecContext(ctx, r.q(updateExpenseSQL),
		next.Amount.Cents, string(next.Category), string(next.PaymentMethod), next.Description,
		next.OccurredAt.UnixMilli(), next.UpdatedAt.UnixMilli(), id, ownerID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit update: %w", err)
	}
	return r.GetExpense(ctx, ownerID, id)
}

func (r *SQLRepository) DeleteExpense(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, r.q(deleteExpenseSQL), id, ownerID)
	if err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLRepository) ListExpenses(ctx context.Context, f core.ExpenseFilter) ([]core.Expense, int, error) {
	where := []string{"owner_id = ?"}
	args := []any{f.OwnerID}
	if f.Category != nil {
		where = append(where, "category = ?")
		args = append(args, string(*f.Category))
	}
	if f.From != nil {
		where = append(where, "occurred_at >= ?")
		args = append(args, f.From.UnixMilli())
	}
	if f.To != nil {
		where = append(where, "occurred_at < ?")
		args = append(args, f.To.UnixMilli())
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, r.q("SELECT COUNT(*) FROM expenses"+clause), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}

	query := "SELECT " + expenseColumns + " FROM expenses" + clause +
		" ORDER BY occurred_at DESC, created_at DESC, id ASC"
	switch {
	case f.Limit > 0:
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	case f.Offset > 0 && r.dialect == DialectSQLite:
		query += " LIMIT -1 OFFSET ?"
		args = append(args, f.Offset)
	case f.Offset > 0:
		query += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}
	return out, total, nil
}

func (r *SQLRepository) UpsertByLocalID(ctx context.Context, u core.LocalUpsert) (core.Expense, bool, error) {
	if u.Expense.LocalID == nil {
		return core.Expense{}, false, core.NewValidationError("localId", "localId is required")
	}
	args := append(expenseArgs(u.Expense), u.KeepOccurredAt)
	e, err := scanExpense(r.db.QueryRowContext(ctx, r.q(upsertExpenseSQL), args...))
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("upsert expense %s: %w", *u.Expense.LocalID, err)
	}
	created := e.ID == u.Expense.ID

	slog.DebugContext(ctx, "Expense upserted",
		"id", e.ID,
		"local_id", *u.Expense.LocalID,
		"created", created,
		"dialect", r.dialect)

	return e, created, nil
}
