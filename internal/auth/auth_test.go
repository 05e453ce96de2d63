package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"table-booking-backend/internal/apperr"
	"table-booking-backend/internal/model"
	"table-booking-backend/internal/store"
	"table-booking-backend/internal/testutil"
)

func newService(t *testing.T) *Service {
	t.Helper()
	st := store.NewGormStore(testutil.NewDB(t))
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	require.NoError(t, st.UpsertUser(context.Background(), &model.User{Username: "ana", PasswordHash: hash, Role: "staff"}))
	return New(st, "test-secret", time.Hour)
}

func TestLogin(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	token, err := svc.Login(ctx, "ana", "s3cret-pass")
	require.NoError(t, err)

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "ana", claims.Subject)
	assert.Equal(t, "staff", claims.Role)

	_, err = svc.Login(ctx, "ana", "wrong-pass")
	assert.ErrorIs(t, err, apperr.ErrAuth)

	_, err = svc.Login(ctx, "nobody", "s3cret-pass")
	assert.ErrorIs(t, err, apperr.ErrAuth)

	_, err = svc.Login(ctx, "", "")
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestParse_Rejects(t *testing.T) {
	svc := newService(t)

	other := New(nil, "another-secret", time.Hour)
	foreign, err := other.Issue("ana", "admin")
	require.NoError(t, err)
	_, err = svc.Parse(foreign)
	assert.ErrorIs(t, err, apperr.ErrAuth)

	expired := New(nil, "test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("ana", "staff")
	require.NoError(t, err)
	_, err = svc.Parse(old)
	assert.ErrorIs(t, err, apperr.ErrAuth)

	_, err = svc.Parse("not-a-token")
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestHashPassword_TooShort(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
