package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates bearer tokens and extracts the identity bound to
// them. It is side-effect free and never logs the token value.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for HMAC-signed tokens.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses and validates tokenStr and returns the identity carried in
// its claims. It returns ErrMissingToken, ErrInvalidSignature or
// ErrMalformedClaims on failure.
func (v *TokenVerifier) Verify(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, ErrMissingToken
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidSignature
	}

	id := toString(claims["sub"])
	if id == "" {
		// Some issuers put the identity under user_id instead of sub.
		id = toString(claims["user_id"])
	}
	if id == "" {
		return Identity{}, ErrMalformedClaims
	}
	role := Role(toString(claims["role"]))
	if !role.Valid() {
		return Identity{}, ErrMalformedClaims
	}
	return Identity{
		ID:    id,
		Role:  role,
		Email: toString(claims["email"]),
	}, nil
}

// toString converts an interface{} claim to a string.
func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
