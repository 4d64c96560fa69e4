package auth

import "crypto/subtle"

// KeyVerifier validates the static shared secret presented by the trusted
// backend on ingestion calls.
type KeyVerifier struct {
	expected string
}

// NewKeyVerifier creates a verifier for the given expected key. An empty
// expected key is a deployment defect and surfaces as ErrServerMisconfigured
// on every Verify call.
func NewKeyVerifier(expected string) *KeyVerifier {
	return &KeyVerifier{expected: expected}
}

// Verify checks the presented key against the configured one.
func (v *KeyVerifier) Verify(presented string) error {
	if v.expected == "" {
		return ErrServerMisconfigured
	}
	if presented == "" {
		return ErrMissingKey
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(v.expected)) != 1 {
		return ErrInvalidKey
	}
	return nil
}
