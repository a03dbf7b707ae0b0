/*
errors.go - Centralized error types for the docstore layer

PURPOSE:
  All store-level errors in one place. Engine packages wrap these with
  domain context but classify them with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Lookup errors  - ErrNotFound
  2. Batch errors   - ErrBatchTooLarge
  3. Query errors   - ErrMissingIndex / MissingIndexError

SEE ALSO:
  - budget/errors.go: domain-level taxonomy built on top of these
*/
package docstore

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned by Get when the document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrBatchTooLarge is returned by Batch.Commit when the staged operation
	// count exceeds MaxOps. Nothing is applied.
	ErrBatchTooLarge = errors.New("batch exceeds operation ceiling")

	// ErrMissingIndex is returned when a query needs a composite index the
	// backend has not provisioned. Callers should surface an actionable
	// message rather than a generic retry prompt.
	ErrMissingIndex = errors.New("query requires a composite index")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// MissingIndexError identifies which collection and field combination needs
// an index. Unwraps to ErrMissingIndex.
type MissingIndexError struct {
	Collection string
	Fields     []string
}

func (e *MissingIndexError) Error() string {
	return fmt.Sprintf("query on %s requires a composite index on (%s)",
		e.Collection, strings.Join(e.Fields, ", "))
}

func (e *MissingIndexError) Unwrap() error { return ErrMissingIndex }

// IsNotFound reports whether err indicates a missing document.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsMissingIndex reports whether err indicates an unprovisioned composite
// index.
func IsMissingIndex(err error) bool { return errors.Is(err, ErrMissingIndex) }
