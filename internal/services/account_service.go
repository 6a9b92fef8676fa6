package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spendly/internal/auth"
	"spendly/internal/core"
	"spendly/internal/records"
)

// TokenIssuer signs bearer tokens for a user id.
type TokenIssuer interface {
	Issue(userID string) (token string, expiresAt time.Time, err error)
}

// Session is returned by register and login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      core.User `json:"user"`
}

type AccountService struct {
	users         records.UserStore
	tokens        TokenIssuer
	now           func() time.Time
	newID         func() string
	checkPassword func(hash, password string) (bool, error)
}

func NewAccountService(users records.UserStore, tokens TokenIssuer) *AccountService {
	return &AccountService{
		users:         users,
		tokens:        tokens,
		now:           systemNow,
		newID:         newID,
		checkPassword: auth.CheckPassword,
	}
}

// CreateUser validates and stores a new account. An empty currency selects
// core.DefaultCurrency.
func (s *AccountService) CreateUser(ctx context.Context, name, email, password, currency string) (core.User, error) {
	if currency == "" {
		currency = core.DefaultCurrency
	}
	u := core.User{
		ID:        s.newID(),
		Name:      strings.TrimSpace(name),
		Email:     core.NormalizeEmail(email),
		Currency:  strings.ToUpper(strings.TrimSpace(currency)),
		CreatedAt: s.now(),
	}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	if err := core.ValidatePassword(password); err != nil {
		return core.User{}, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return core.User{}, err
	}
	u.PasswordHash = hash

	created, err := s.users.CreateUser(ctx, u)
	if err != nil {
		if errors.Is(err, core.ErrEmailTaken) {
			return core.User{}, err
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User registered", "user_id", created.ID)
	return created, nil
}

func (s *AccountService) Register(ctx context.Context, name, email, password string) (Session, error) {
	u, err := s.CreateUser(ctx, name, email, password, "")
	if err != nil {
		return Session{}, err
	}
	return s.session(u)
}

// Login returns core.ErrInvalidCredentials for an unknown email or a wrong password.
func (s *AccountService) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		// Same bcrypt work as a wrong password so timing does not reveal
		// which emails are registered.
		_, _ = s.checkPassword(auth.DummyHash(), password)
		return Session{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}

	ok, err := s.checkPassword(u.PasswordHash, password)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		slog.WarnContext(ctx, "Login failed", "user_id", u.ID)
		return Session{}, core.ErrInvalidCredentials
	}
	return s.session(u)
}

func (s *AccountService) Me(ctx context.Context, id string) (core.User, error) {
	return s.users.GetUserByID(ctx, id)
}

// UpdateProfile changes the supplied fields of the profile.
func (s *AccountService) UpdateProfile(ctx context.Context, id string, name, currency *string) (core.User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return core.User{}, err
	}
	if name != nil {
		u.Name = strings.TrimSpace(*name)
	}
	if currency != nil {
		u.Currency = strings.ToUpper(strings.TrimSpace(*currency))
	}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	return s.users.UpdateProfile(ctx, id, u.Name, u.Currency)
}

func (s *AccountService) ChangePassword(ctx context.Context, id, current, next string) error {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	ok, err := auth.CheckPassword(u.PasswordHash, current)
	if err != nil {
		return err
	}
	if !ok {
		return core.NewValidationError("currentPassword", "current password is incorrect")
	}
	var ve *core.ValidationError
	if err := core.ValidatePassword(next); errors.As(err, &ve) {
		return core.NewValidationError("newPassword", ve.Message)
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	slog.InfoContext(ctx, "Password changed", "user_id", id)
	return nil
}

func (s *AccountService) session(u core.User) (Session, error) {
	token, exp, err := s.tokens.Issue(u.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, User: u}, nil
}
