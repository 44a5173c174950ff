package utils // package utils provides helpers for token creation and hashing

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the user information carried inside a bearer token.
type Identity struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Claims is the JWT payload: {"user": {...}, "exp": ..., "iat": ...}.
type Claims struct {
	User Identity `json:"user"`
	jwt.RegisteredClaims
}

// AccessToken is a signed bearer token along with its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// ErrTokenInvalid covers malformed, tampered and expired tokens alike.
var ErrTokenInvalid = errors.New("invalid token")

// NewAccessToken builds and signs an HS256 JWT for a user.
func NewAccessToken(secret string, id Identity, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		User: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(id.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies signature and expiry and returns the identity.
// Tokens signed with anything other than HMAC are rejected.
func ParseAccessToken(secret, raw string) (Identity, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.User.ID == 0 {
		return Identity{}, fmt.Errorf("%w: missing user id", ErrTokenInvalid)
	}
	return claims.User, nil
}

// NewOpaqueToken returns 32 random bytes hex-encoded (64 characters).  It is
// used for email verification and password reset links.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
