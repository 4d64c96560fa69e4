package auth

import "errors"

var (
	// ErrMissingToken is returned when no bearer token was supplied.
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidSignature is returned when a token fails cryptographic
	// verification or is expired.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrMalformedClaims is returned when required claims are absent.
	ErrMalformedClaims = errors.New("malformed token claims")
	// ErrMissingKey is returned when no backend API key was presented.
	ErrMissingKey = errors.New("missing api key")
	// ErrInvalidKey is returned when the presented backend API key does not match.
	ErrInvalidKey = errors.New("invalid api key")
	// ErrServerMisconfigured is returned when no expected key is configured.
	// This is a deployment defect, not a client error.
	ErrServerMisconfigured = errors.New("server misconfigured: no api key set")
	// ErrForbidden is returned when an authenticated identity attempts an
	// operation its role does not permit.
	ErrForbidden = errors.New("forbidden")
)
