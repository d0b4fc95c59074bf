package auth

import (
	"errors"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Supabase access-token claims: sub = user id.
type accessClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// VerifySupabaseToken verifies with the legacy HS256 secret (used only when
// JWKS is not available).
func VerifySupabaseToken(tokenString, secret string) (uuid.UUID, string, error) {
	if secret == "" {
		return uuid.Nil, "", errors.New("supabase JWT secret not set")
	}
	t, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return uuid.Nil, "", ErrInvalidToken
	}
	return userFromToken(t)
}

// VerifySupabaseTokenJWKS verifies against the project's JWKS endpoint
// (Supabase asymmetric signing keys).
func VerifySupabaseTokenJWKS(tokenString string, jwks *keyfunc.JWKS) (uuid.UUID, string, error) {
	if jwks == nil {
		return uuid.Nil, "", errors.New("jwks not set")
	}
	t, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, jwks.Keyfunc)
	if err != nil {
		return uuid.Nil, "", ErrInvalidToken
	}
	return userFromToken(t)
}

func userFromToken(t *jwt.Token) (uuid.UUID, string, error) {
	c, ok := t.Claims.(*accessClaims)
	if !ok || !t.Valid || c.Sub == "" {
		return uuid.Nil, "", ErrInvalidToken
	}
	id, err := uuid.Parse(c.Sub)
	if err != nil {
		return uuid.Nil, "", ErrInvalidToken
	}
	return id, c.Email, nil
}
