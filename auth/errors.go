package auth

import "errors"

// Sentinel errors for authentication and capability resolution.
var (
	// Authentication errors
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenMalformed     = errors.New("auth: token malformed")
	ErrKeyNotFound        = errors.New("auth: signing key not found")

	// Capability errors
	ErrUnknownRole = errors.New("auth: unknown role")
)
