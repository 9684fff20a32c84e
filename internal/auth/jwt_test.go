package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JBD-GER/maklernull-sub000/internal/auth"
)

const secret = "test-secret"

func TestJWT_RoundTrip(t *testing.T) {
	token, err := auth.GenerateJWT("owner-1", secret, time.Hour)
	require.NoError(t, err)

	claims, err := auth.ValidateJWT(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", claims.OwnerID)
}

func TestJWT_Rejects(t *testing.T) {
	expired, err := auth.GenerateJWT("owner-1", secret, -time.Minute)
	require.NoError(t, err)

	wrongKey, err := auth.GenerateJWT("owner-1", "other-secret", time.Hour)
	require.NoError(t, err)

	noOwner, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":   expired,
		"wrong key": wrongKey,
		"no owner":  noOwner,
		"garbage":   "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := auth.ValidateJWT(token, secret)
			assert.Error(t, err)
		})
	}
}
