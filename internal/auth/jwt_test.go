package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"collab-backend/internal/auth"
)

func TestJWTManager_AccessTokenRoundTrip(t *testing.T) {
	m := auth.NewJWTManager("test-secret", time.Hour, 24*time.Hour)

	token, err := m.GenerateAccessToken(42, "user@example.com", "user")
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.Equal(t, "user@example.com", claims.Email)
	require.Equal(t, "user", claims.Name)
}

func TestJWTManager_WrongSecretRejected(t *testing.T) {
	m1 := auth.NewJWTManager("secret-a", time.Hour, 24*time.Hour)
	m2 := auth.NewJWTManager("secret-b", time.Hour, 24*time.Hour)

	token, err := m1.GenerateAccessToken(1, "a@example.com", "a")
	require.NoError(t, err)

	_, err = m2.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	m := auth.NewJWTManager("test-secret", -time.Minute, 24*time.Hour)

	token, err := m.GenerateAccessToken(1, "a@example.com", "a")
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(token)
	require.ErrorIs(t, err, auth.ErrExpiredToken)
}

func TestJWTManager_RefreshTokenRoundTrip(t *testing.T) {
	m := auth.NewJWTManager("test-secret", time.Hour, 24*time.Hour)

	token, err := m.GenerateRefreshToken(42)
	require.NoError(t, err)

	userID, err := m.ValidateRefreshToken(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), userID)
}
