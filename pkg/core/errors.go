// Package core provides the shared types, errors, profiles, and configuration
// for the expert memory retrieval engine.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for the engine's failure taxonomy.
var (
	// ErrNotFound indicates that a requested memory was not found.
	ErrNotFound = errors.New("memory not found")

	// ErrEmbeddingUnavailable indicates that the embedding provider failed
	// or timed out. Recoverable: retrieval degrades to structured-only
	// similarity and the result is flagged, never cached.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrStoreUnavailable indicates that the memory store failed. Fatal for
	// the call: the retriever returns an empty result flagged as degraded.
	ErrStoreUnavailable = errors.New("memory store unavailable")

	// ErrInvalidProfile indicates an invalid expert retrieval profile
	// (e.g. non-positive decay half-life). Raised at profile load, never
	// at query time.
	ErrInvalidProfile = errors.New("invalid expert profile")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMalformedRecord indicates a stored record that cannot be scored
	// (e.g. missing created_at). The record is skipped and logged; it never
	// aborts a retrieval.
	ErrMalformedRecord = errors.New("malformed memory record")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// EngineError wraps errors with operation context.
//
// It provides additional context about which operation failed, making error
// messages more informative for debugging.
//
// Example:
//
//	err := &EngineError{
//	    Op:  "Retrieve",
//	    Err: ErrStoreUnavailable,
//	}
//	// Error() returns: "expertmem: Retrieve: memory store unavailable"
type EngineError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "expertmem: <Op>: <Err>"
func (e *EngineError) Error() string {
	return fmt.Sprintf("expertmem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with EngineError.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewEngineError("Insert", err)
//	}
//
// Parameters:
//   - op: Name of the operation (e.g., "Retrieve", "Insert", "Cleanup")
//   - err: The underlying error to wrap
//
// Returns an EngineError, or nil if err is nil.
func NewEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{
		Op:  op,
		Err: err,
	}
}
