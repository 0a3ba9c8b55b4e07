package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BenEgeDeniz/lalapanel/internal/store"
)

func setupService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "panel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	require.NoError(t, st.SetCredential(context.Background(), "admin", hash))

	return NewService(st, []byte("test-secret")), st
}

func TestLoginAndValidate(t *testing.T) {
	svc, _ := setupService(t)

	token, err := svc.Login(context.Background(), "admin", "correct horse", "127.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "admin", claims.Username)
	require.NotEmpty(t, claims.ID)
	require.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Login(context.Background(), "admin", "wrong", "127.0.0.1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody", "correct horse", "127.0.0.1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginThrottling(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, "admin", "wrong", "10.0.0.9")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Sixth attempt is refused even with the right password.
	_, err := svc.Login(ctx, "admin", "correct horse", "10.0.0.9")
	require.ErrorIs(t, err, ErrTooManyAttempts)

	// A different IP is unaffected.
	_, err = svc.Login(ctx, "admin", "correct horse", "10.0.0.10")
	require.NoError(t, err)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	svc, st := setupService(t)

	token, err := svc.Login(context.Background(), "admin", "correct horse", "127.0.0.1")
	require.NoError(t, err)

	other := NewService(st, []byte("different-secret"))
	_, err = other.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenGarbage(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.ValidateToken("not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestChangePassword(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, "wrong", "new password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(ctx, "correct horse", "new password"))

	_, err = svc.Login(ctx, "admin", "correct horse", "127.0.0.1")
	require.True(t, errors.Is(err, ErrInvalidCredentials))

	_, err = svc.Login(ctx, "admin", "new password", "127.0.0.1")
	require.NoError(t, err)
}
