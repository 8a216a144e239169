package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken(secret, 42, "access", time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(secret, "access", token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, "42", claims.Subject)
	assert.False(t, ShouldRotateRefreshToken(claims, time.Second))
	assert.True(t, ShouldRotateRefreshToken(claims, time.Hour))

	_, err = ParseToken(secret, "refresh", token)
	assert.ErrorIs(t, err, ErrTokenType)
	_, err = ParseToken([]byte("other"), "access", token)
	assert.Error(t, err)
}

func TestParseExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken(secret, 1, "access", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(secret, "access", token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseForeignIssuer(t *testing.T) {
	secret := []byte("test-secret")
	claims := Claims{
		UserID: 1,
		Type:   "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = ParseToken(secret, "access", token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}
