/*
Package docstore defines the document-store collaborator consumed by the
engines.

PURPOSE:
  The organizer core never talks to a concrete database. It is written against
  this narrow interface: keyed collections of schemaless documents with point
  reads, field-comparison queries, atomic numeric increments, bounded atomic
  batches, and read-then-write transactions. Any backend that provides these
  primitives can host the engines.

KEY CONCEPTS IN THIS FILE (docstore.go):
  - Document: an ID plus a flat map of field values
  - Filter: a field comparison used by Query
  - Store: the full primitive set (reads, writes, Batch, RunTransaction)
  - Tx: the transactional view handed to RunTransaction callbacks
  - Batch: a bounded set of writes committed atomically

WRITE SEMANTICS:
  Set:       full overwrite, creates the document if absent
  Merge:     field-wise merge, creates the document if absent
  Increment: numeric add on one field; missing document or field counts as zero

BATCH CEILING:
  A Batch commits at most MaxOps operations. Commit of an oversized batch
  fails before applying anything. Callers that need more operations split the
  work into multiple batches and forfeit cross-batch atomicity.

TRANSACTIONS:
  RunTransaction executes fn against an isolated view. If fn returns an error
  the view's writes are discarded; otherwise they commit together. Within one
  transaction or batch all contained effects are linearized relative to any
  other transaction or batch touching the same documents.

IMPLEMENTATIONS:
  - docstore/memory: in-memory, for tests and development
  - store/sqlite:    persistent, SQLite-backed

SEE ALSO:
  - errors.go: sentinel errors and MissingIndexError
  - budget/engine.go: the main consumer of Batch and RunTransaction
*/
package docstore

import (
	"context"

	"github.com/shopspring/decimal"
)

// MaxOps is the hard per-commit operation ceiling of a Batch.
// Engines target smaller chunks to leave margin.
const MaxOps = 500

// =============================================================================
// DOCUMENT - Schemaless record in a keyed collection
// =============================================================================

// Document is one stored record. Data values are restricted to string, bool,
// int64, time.Time, decimal.Decimal and []string; implementations may reject
// anything else.
type Document struct {
	ID   string
	Data map[string]any
}

// =============================================================================
// QUERY FILTERS
// =============================================================================

type Op string

const (
	OpEqual          Op = "=="
	OpLess           Op = "<"
	OpLessOrEqual    Op = "<="
	OpGreater        Op = ">"
	OpGreaterOrEqual Op = ">="
)

// Filter is a single field comparison. Query filters combine with AND.
type Filter struct {
	Field string
	Op    Op
	Value any
}

func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// =============================================================================
// STORE - The primitive set the engines are written against
// =============================================================================

type Reader interface {
	// Get returns one document. ErrNotFound if absent.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Query returns documents matching all filters, unordered.
	// A combination of equality and range filters on different fields may
	// require a provisioned composite index; implementations surface that as
	// a MissingIndexError rather than a generic failure.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
}

type Writer interface {
	// Set overwrites the document, creating it if absent.
	Set(ctx context.Context, collection, id string, data map[string]any) error

	// Merge writes the given fields, preserving the rest. Creates the
	// document if absent.
	Merge(ctx context.Context, collection, id string, data map[string]any) error

	// Delete removes the document. Deleting an absent document is not an
	// error.
	Delete(ctx context.Context, collection, id string) error
}

type Store interface {
	Reader
	Writer

	// NewBatch returns an empty batch bound to this store.
	NewBatch() Batch

	// RunTransaction executes fn atomically. Reads inside fn are isolated
	// from concurrent writers; writes commit together or not at all.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// =============================================================================
// TRANSACTION VIEW
// =============================================================================

// Tx is the view handed to RunTransaction callbacks. Write methods never fail
// at call time; staging errors surface from RunTransaction itself.
type Tx interface {
	Get(collection, id string) (Document, error)
	Set(collection, id string, data map[string]any)
	Merge(collection, id string, data map[string]any)
	Delete(collection, id string)
	Increment(collection, id, field string, delta decimal.Decimal)
}

// =============================================================================
// BATCH - Bounded atomic multi-operation commit
// =============================================================================

type Batch interface {
	Set(collection, id string, data map[string]any)
	Merge(collection, id string, data map[string]any)
	Delete(collection, id string)

	// Increment atomically adds delta to a numeric field, with merge
	// semantics: a missing document or field starts from zero.
	Increment(collection, id, field string, delta decimal.Decimal)

	// Len reports the number of staged operations.
	Len() int

	// Commit applies every staged operation atomically. Fails with
	// ErrBatchTooLarge, without applying anything, if Len() > MaxOps.
	Commit(ctx context.Context) error
}
