/*
errors.go - Ledger engine error taxonomy

PURPOSE:
  Validation failures are raised synchronously, before any store call, and
  are never retried. Store failures propagate unchanged; the engine logs
  context and re-raises, it does not swallow or retry. A missing composite
  index on the bulk-future-delete query is re-raised as a distinguishable
  error so the caller can show an operator-actionable message instead of a
  generic retry prompt.

PARTIAL BULK FAILURE:
  Not a distinct type. A multi-chunk bulk create or delete that fails
  partway leaves earlier chunks committed and later chunks unapplied; the
  caller sees whichever chunk's error propagated and must assume a possibly
  inconsistent aggregate state until the operation is re-run.

SEE ALSO:
  - docstore/errors.go: the store-level sentinels these wrap
*/
package budget

import (
	"errors"
	"fmt"

	"github.com/hearth/family-engine/docstore"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the sentinel behind every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced transaction or aggregate
	// does not exist.
	ErrNotFound = errors.New("record not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError reports a missing or malformed argument to an engine entry
// point. Raised before any store call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

// IsValidation reports whether err is a pre-store validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsMissingIndex reports whether err is the distinguishable missing
// composite index case of the bulk-future-delete query.
func IsMissingIndex(err error) bool { return docstore.IsMissingIndex(err) }

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || docstore.IsNotFound(err)
}
