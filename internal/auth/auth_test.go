package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"code.cloudfoundry.org/workpool"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/carauction/internal/audit"
	"github.com/xtrntr/carauction/internal/auctionerrors"
	"github.com/xtrntr/carauction/internal/memstore"
	"github.com/xtrntr/carauction/internal/models"
)

const secret = "test-secret"

func newService(t *testing.T) (*AuthService, *memstore.Store, *audit.Sink, *fakeclock.FakeClock) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	clk := fakeclock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	st := memstore.New(clk)
	pool, err := workpool.NewWorkPool(2)
	require.NoError(t, err)
	t.Cleanup(pool.Stop)
	sink := audit.NewSink(st, pool, logger)

	for _, u := range []models.User{
		{Email: "alice@example.com", Name: "Alice", Role: models.RoleBuyer, Status: models.UserActive},
		{Email: "admin@example.com", Name: "Admin", Role: models.RoleAdmin, Status: models.UserActive},
		{Email: "pending@example.com", Name: "Pending", Role: models.RoleBuyer, Status: models.UserPending},
	} {
		hash, err := HashPassword("password123")
		require.NoError(t, err)
		u.PasswordHash = hash
		_, err = st.CreateUser(context.Background(), u)
		require.NoError(t, err)
	}

	return NewAuthService(st, sink, secret, time.Hour, clk, logger), st, sink, clk
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, auctionerrors.ErrInvalidInput)

	_, err = HashPassword(strings.Repeat("p", 100))
	assert.ErrorIs(t, err, auctionerrors.ErrInvalidInput)

	hash, err := HashPassword("password123")
	require.NoError(t, err)
	assert.NotEqual(t, "password123", hash)
}

func TestAuthService_Login(t *testing.T) {
	s, _, _, _ := newService(t)

	tests := []struct {
		name      string
		email     string
		password  string
		expectErr error
		role      models.Role
	}{
		{
			name:     "Success",
			email:    "alice@example.com",
			password: "password123",
			role:     models.RoleBuyer,
		},
		{
			name:     "EmailIsCaseInsensitive",
			email:    " Admin@Example.com ",
			password: "password123",
			role:     models.RoleAdmin,
		},
		{
			name:      "WrongPassword",
			email:     "alice@example.com",
			password:  "wrongpass",
			expectErr: auctionerrors.ErrUnauthorized,
		},
		{
			name:      "NonExistentUser",
			email:     "bob@example.com",
			password:  "password123",
			expectErr: auctionerrors.ErrUnauthorized,
		},
		{
			name:      "PendingAccount",
			email:     "pending@example.com",
			password:  "password123",
			expectErr: auctionerrors.ErrForbidden,
		},
		{
			name:      "MissingPassword",
			email:     "alice@example.com",
			expectErr: auctionerrors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, user, err := s.Login(context.Background(), tt.email, tt.password, "10.0.0.1")
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.role, user.Role)

			caller, err := s.ParseToken(token)
			require.NoError(t, err)
			assert.Equal(t, models.Caller{ID: user.ID, Role: tt.role}, caller)
		})
	}
}

func TestAuthService_LoginIsAudited(t *testing.T) {
	s, st, sink, _ := newService(t)
	ctx := context.Background()

	_, _, err := s.Login(ctx, "alice@example.com", "password123", "10.0.0.1")
	require.NoError(t, err)
	_, _, err = s.Login(ctx, "alice@example.com", "nope", "10.0.0.2")
	require.Error(t, err)
	sink.Wait()

	var actions []string
	for _, e := range st.AuditEntries() {
		actions = append(actions, e.Action)
	}
	assert.ElementsMatch(t, []string{audit.ActionLoginSuccess, audit.ActionLoginFailed}, actions)
}

func TestAuthService_ParseToken(t *testing.T) {
	s, _, _, clk := newService(t)
	token, user, err := s.Login(context.Background(), "alice@example.com", "password123", "")
	require.NoError(t, err)

	sign := func(key string, claims jwt.MapClaims) string {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		require.NoError(t, err)
		return signed
	}
	exp := clk.Now().Add(time.Hour).Unix()

	tests := []struct {
		name        string
		token       string
		expectError bool
	}{
		{name: "Success", token: token},
		{name: "InvalidSignature", token: sign("wrong-key", jwt.MapClaims{"user_id": user.ID, "role": "BUYER", "exp": exp}), expectError: true},
		{name: "UnknownRole", token: sign(secret, jwt.MapClaims{"user_id": user.ID, "role": "ROOT", "exp": exp}), expectError: true},
		{name: "MissingUser", token: sign(secret, jwt.MapClaims{"role": "BUYER", "exp": exp}), expectError: true},
		{name: "EmptyToken", token: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller, err := s.ParseToken(tt.token)
			if tt.expectError {
				assert.ErrorIs(t, err, auctionerrors.ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, user.ID, caller.ID)
		})
	}

	clk.Increment(2 * time.Hour)
	_, err = s.ParseToken(token)
	assert.ErrorIs(t, err, auctionerrors.ErrUnauthorized, "expired token")
}
