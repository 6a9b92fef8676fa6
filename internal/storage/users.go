package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"spendly/internal/core"
)

func scanUser(row rowScanner) (core.User, error) {
	var (
		u         core.User
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Currency, &createdAt); err != nil {
		return core.User{}, err
	}
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}

func (r *SQLRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.Email = core.NormalizeEmail(u.Email)
	_, err := r.db.ExecContext(ctx, r.q(insertUserSQL),
		u.ID, u.Name, u.Email, u.PasswordHash, u.Currency, u.CreatedAt.UnixMilli())
	if isUniqueViolation(err) {
		return core.User{}, core.ErrEmailTaken
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return r.GetUserByID(ctx, u.ID)
}

func (r *SQLRepository) GetUserByID(ctx context.Context, id string) (core.User, error) {
	return r.getUser(ctx, selectUserByIDSQL, id)
}

func (r *SQLRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUser(ctx, selectUserByEmailSQL, core.NormalizeEmail(email))
}

func (r *SQLRepository) getUser(ctx context.Context, query, key string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, r.q(query), key))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *SQLRepository) UpdateProfile(ctx context.Context, id, name, currency string) (core.User, error) {
	if err := r.execOne(ctx, updateProfileSQL, name, currency, id); err != nil {
		return core.User{}, fmt.Errorf("update profile: %w", err)
	}
	return r.GetUserByID(ctx, id)
}

func (r *SQLRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if err := r.execOne(ctx, updatePasswordSQL, passwordHash, id); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// execOne runs a statement that must touch exactly one row.
func (r *SQLRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
