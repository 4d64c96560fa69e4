package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestTokenVerifier_Valid(t *testing.T) {
	v := NewTokenVerifier(testSecret)
	tokenStr := signToken(t, jwt.MapClaims{
		"sub":   "user-1",
		"role":  "provider",
		"email": "d1@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	identity, err := v.Verify(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.ID)
	assert.Equal(t, RoleProvider, identity.Role)
	assert.Equal(t, "d1@example.com", identity.Email)
}

func TestTokenVerifier_UserIDClaimFallback(t *testing.T) {
	v := NewTokenVerifier(testSecret)
	tokenStr := signToken(t, jwt.MapClaims{
		"user_id": "user-2",
		"role":    "requester",
	})

	identity, err := v.Verify(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "user-2", identity.ID)
	assert.Equal(t, RoleRequester, identity.Role)
}

func TestTokenVerifier_Missing(t *testing.T) {
	v := NewTokenVerifier(testSecret)
	_, err := v.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestTokenVerifier_BadSignature(t *testing.T) {
	other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1", "role": "provider"})
	signed, err := other.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	v := NewTokenVerifier(testSecret)
	_, err = v.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestTokenVerifier_Expired(t *testing.T) {
	v := NewTokenVerifier(testSecret)
	tokenStr := signToken(t, jwt.MapClaims{
		"sub":  "user-1",
		"role": "provider",
		"exp":  time.Now().Add(-time.Hour).Unix(),
	})
	_, err := v.Verify(tokenStr)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestTokenVerifier_MalformedClaims(t *testing.T) {
	v := NewTokenVerifier(testSecret)

	tests := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{"no subject", jwt.MapClaims{"role": "provider"}},
		{"no role", jwt.MapClaims{"sub": "user-1"}},
		{"unknown role", jwt.MapClaims{"sub": "user-1", "role": "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(signToken(t, tt.claims))
			assert.ErrorIs(t, err, ErrMalformedClaims)
		})
	}
}

func TestKeyVerifier(t *testing.T) {
	v := NewKeyVerifier("backend-key")
	assert.NoError(t, v.Verify("backend-key"))
	assert.ErrorIs(t, v.Verify(""), ErrMissingKey)
	assert.ErrorIs(t, v.Verify("nope"), ErrInvalidKey)
}

func TestKeyVerifier_Misconfigured(t *testing.T) {
	v := NewKeyVerifier("")
	assert.ErrorIs(t, v.Verify("anything"), ErrServerMisconfigured)
	assert.ErrorIs(t, v.Verify(""), ErrServerMisconfigured)
}
