package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendly/internal/auth"
	"spendly/internal/core"
	"spendly/internal/records/memory"
)

func newAccountService() *AccountService {
	s := NewAccountService(memory.New(), auth.NewTokenIssuer("0123456789abcdef", time.Hour))
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestAccountService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	s := newAccountService()

	sess, err := s.Register(ctx, " Ada ", "Ada@Example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "Ada", sess.User.Name)
	assert.Equal(t, "ada@example.com", sess.User.Email)
	assert.Equal(t, core.DefaultCurrency, sess.User.Currency)
	assert.NotEqual(t, "password123", sess.User.PasswordHash)

	_, err = s.Register(ctx, "Other", "ada@example.com", "password123")
	assert.ErrorIs(t, err, core.ErrEmailTaken)

	login, err := s.Login(ctx, "ADA@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, login.User.ID)

	_, err = s.Login(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)
	_, err = s.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)
}

func TestAccountService_LoginUnknownEmailHashesAnyway(t *testing.T) {
	ctx := context.Background()
	s := newAccountService()
	_, err := s.Register(ctx, "Ada", "ada@example.com", "password123")
	require.NoError(t, err)

	var hashes []string
	s.checkPassword = func(hash, password string) (bool, error) {
		hashes = append(hashes, hash)
		return auth.CheckPassword(hash, password)
	}

	_, err = s.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)
	_, err = s.Login(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)

	require.Len(t, hashes, 2, "both failures run one bcrypt comparison")
	assert.Equal(t, auth.DummyHash(), hashes[0])
	assert.NotEqual(t, auth.DummyHash(), hashes[1])
}

func TestAccountService_RegisterValidation(t *testing.T) {
	s := newAccountService()
	cases := []struct{ name, email, password string }{
		{"", "a@b.co", "password123"},
		{"Ada", "not-an-email", "password123"},
		{"Ada", "a@b.co", "short"},
	}
	for _, tc := range cases {
		_, err := s.Register(context.Background(), tc.name, tc.email, tc.password)
		assert.True(t, core.IsValidation(err), "%+v: got %v", tc, err)
	}
}

func TestAccountService_ProfileAndPassword(t *testing.T) {
	ctx := context.Background()
	s := newAccountService()
	sess, err := s.Register(ctx, "Ada", "ada@example.com", "password123")
	require.NoError(t, err)
	id := sess.User.ID

	u, err := s.UpdateProfile(ctx, id, nil, strp("eur"))
	require.NoError(t, err)
	assert.Equal(t, "EUR", u.Currency)
	assert.Equal(t, "Ada", u.Name)

	_, err = s.UpdateProfile(ctx, id, strp("  "), nil)
	assert.True(t, core.IsValidation(err))

	me, err := s.Me(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "EUR", me.Currency)

	err = s.ChangePassword(ctx, id, "wrong", "newpassword")
	assert.True(t, core.IsValidation(err))

	err = s.ChangePassword(ctx, id, "password123", "abc")
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "newPassword", ve.Field)

	require.NoError(t, s.ChangePassword(ctx, id, "password123", "newpassword"))
	_, err = s.Login(ctx, "ada@example.com", "password123")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)
	_, err = s.Login(ctx, "ada@example.com", "newpassword")
	assert.NoError(t, err)

	_, err = s.Me(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
