package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for dispatch.
var (
	// ErrUnauthenticated indicates no identity accompanied the request.
	ErrUnauthenticated = errors.New("pipeline: authentication required")

	// ErrUnauthorized indicates the identity lacks a required capability.
	// The message is deliberately generic; it never names the missing
	// capability.
	ErrUnauthorized = errors.New("pipeline: access denied")

	// ErrUnknownKind indicates no registration exists for the request kind.
	ErrUnknownKind = errors.New("pipeline: unknown request kind")

	// ErrNilHandler indicates a registration without a handler.
	ErrNilHandler = errors.New("pipeline: handler is nil")

	// ErrDuplicateKind indicates two registrations share a kind.
	ErrDuplicateKind = errors.New("pipeline: duplicate request kind")

	// ErrNilRequest indicates Dispatch was called with a nil request.
	ErrNilRequest = errors.New("pipeline: request is nil")
)

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every field error found for a request. A request
// with M failing validators is rejected with exactly M field errors; no
// validator short-circuits the others.
type ValidationError struct {
	Kind   string       `json:"kind"`
	Fields []FieldError `json:"fields"`
}

// Error returns a summary naming each invalid field.
func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return fmt.Sprintf("pipeline: validation failed for %q: %s", e.Kind, strings.Join(names, ", "))
}

// HasField reports whether a field error exists for the given field name.
func (e *ValidationError) HasField(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
