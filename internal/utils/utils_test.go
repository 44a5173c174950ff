package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const secret = "test-secret"

func TestAccessToken_RoundTrip(t *testing.T) {
	id := Identity{ID: 5, Name: "Sagor", Email: "sagor@example.com"}
	at, err := NewAccessToken(secret, id, 3*time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(3*time.Hour), at.Exp, 5*time.Second)

	got, err := ParseAccessToken(secret, at.Token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestParseAccessToken_Rejects(t *testing.T) {
	id := Identity{ID: 5, Name: "Sagor", Email: "sagor@example.com"}

	expired, err := NewAccessToken(secret, id, -time.Minute)
	require.NoError(t, err)
	good, err := NewAccessToken(secret, id, time.Hour)
	require.NoError(t, err)
	noUser, err := NewAccessToken(secret, Identity{}, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{User: id}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"expired":      expired.Token,
		"wrong secret": good.Token + "x",
		"garbage":      "not-a-jwt",
		"no user":      noUser.Token,
		"alg none":     none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAccessToken(secret, raw)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}

	_, err = ParseAccessToken("other-secret", good.Token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNewOpaqueToken(t *testing.T) {
	a, err := NewOpaqueToken()
	require.NoError(t, err)
	b, err := NewOpaqueToken()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, strings.ToLower(a), a)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "hunter22"))
	assert.False(t, VerifyPassword(hash, "hunter23"))

	// out-of-range cost still produces a usable hash
	hash, err = HashPassword("hunter22", 99)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}
