/*
Package sqlite provides a SQLite-backed implementation of docstore.Store.

PURPOSE:
  Persists documents in a single table keyed by (collection, id), with field
  values stored as typed JSON. In production, the same patterns apply to
  PostgreSQL with jsonb - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  docstore.Store: Get/Set/Merge/Delete/Query plus batches and transactions

STORAGE MODEL:
  Every document is one row. Field values carry a type tag so that
  timestamps, decimals and string sets survive the JSON round trip intact:

    {"amount": {"t": "d", "v": "125.50"},
     "date":   {"t": "ts", "v": "2025-06-01T00:00:00Z"}}

COMPOSITE INDEXES:
  Queries that combine an equality filter with a range filter on a second
  field require a provisioned composite index. ProvisionIndex creates the
  SQL expression index and registers it; an unprovisioned query fails with
  docstore.MissingIndexError so the caller can surface an actionable error
  instead of scanning.

ATOMICITY:
  Batches and transactions run inside a single SQL transaction. A batch
  that exceeds docstore.MaxOps is rejected before any row is touched.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/hearth.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  store.ProvisionIndex("transactions", "seriesId", "date")

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - docstore/docstore.go: Interface definitions
  - docstore/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/hearth/family-engine/docstore"
)

// Store implements docstore.Store using SQLite.
type Store struct {
	db      *sql.DB
	mu      sync.RWMutex
	indexes map[string]bool // collection base + sorted fields -> provisioned
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, indexes: make(map[string]bool)}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection
		ON documents(collection);
	`

	_, err := s.db.Exec(schema)
	return err
}

// ProvisionIndex creates a composite expression index over the given fields
// and registers it so queries combining those fields are accepted. The
// collection argument is the base collection name ("transactions"), not a
// family-scoped path.
func (s *Store) ProvisionIndex(collection string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)

	exprs := make([]string, 0, len(sorted)+1)
	exprs = append(exprs, "collection")
	for _, f := range sorted {
		exprs = append(exprs, fmt.Sprintf("json_extract(data, '$.%s.v')", f))
	}

	name := "idx_doc_" + collection + "_" + strings.Join(sorted, "_")
	query := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON documents(%s)",
		name, strings.Join(exprs, ", "))

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to provision index %s: %w", name, err)
	}

	s.indexes[indexKey(collection, sorted)] = true
	return nil
}

func indexKey(collection string, sortedFields []string) string {
	return collection + "|" + strings.Join(sortedFields, ",")
}

// collectionBase strips the family-scoped prefix from a collection path:
// "families/abc/transactions" -> "transactions".
func collectionBase(collection string) string {
	if i := strings.LastIndexByte(collection, '/'); i >= 0 {
		return collection[i+1:]
	}
	return collection
}

// =============================================================================
// READS
// =============================================================================

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getDoc(ctx, s.db, collection, id)
}

func (s *Store) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkIndexed(collection, filters); err != nil {
		return nil, err
	}

	// Narrow SQL-side on the first equality filter; evaluate the full filter
	// set in Go so range comparisons use the same semantics for every type.
	query := "SELECT id, data FROM documents WHERE collection = ?"
	args := []any{collection}
	for _, f := range filters {
		if f.Op == docstore.OpEqual {
			if sv, ok := f.Value.(string); ok {
				query += fmt.Sprintf(" AND json_extract(data, '$.%s.v') = ?", f.Field)
				args = append(args, sv)
				break
			}
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var result []docstore.Document
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		data, err := decodeData(raw)
		if err != nil {
			return nil, err
		}
		if docstore.Matches(data, filters) {
			result = append(result, docstore.Document{ID: id, Data: data})
		}
	}
	return result, rows.Err()
}

// checkIndexed rejects queries that combine an equality filter with a range
// filter on another field unless a composite index covering all filtered
// fields was provisioned.
func (s *Store) checkIndexed(collection string, filters []docstore.Filter) error {
	fields := make(map[string]bool)
	hasRange := false
	for _, f := range filters {
		fields[f.Field] = true
		if f.Op != docstore.OpEqual {
			hasRange = true
		}
	}
	if len(fields) < 2 || !hasRange {
		return nil
	}

	sorted := make([]string, 0, len(fields))
	for f := range fields {
		sorted = append(sorted, f)
	}
	sort.Strings(sorted)

	if !s.indexes[indexKey(collectionBase(collection), sorted)] {
		return &docstore.MissingIndexError{
			Collection: collection,
			Fields:     sorted,
		}
	}
	return nil
}

// =============================================================================
// DIRECT WRITES
// =============================================================================

func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return setDoc(ctx, s.db, collection, id, data)
}

func (s *Store) Merge(ctx context.Context, collection, id string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return mergeDoc(ctx, s.db, collection, id, data)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return deleteDoc(ctx, s.db, collection, id)
}

// =============================================================================
// ROW-LEVEL PRIMITIVES (shared by direct writes, batches, transactions)
// =============================================================================

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDoc(ctx context.Context, q queryer, collection, id string) (docstore.Document, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&raw)

	if err == sql.ErrNoRows {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("failed to read document: %w", err)
	}

	data, err := decodeData(raw)
	if err != nil {
		return docstore.Document{}, err
	}
	return docstore.Document{ID: id, Data: data}, nil
}

func setDoc(ctx context.Context, q queryer, collection, id string, data map[string]any) error {
	raw, err := encodeData(data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`

	_, err = q.ExecContext(ctx, query, collection, id, raw, nowRFC3339())
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

func mergeDoc(ctx context.Context, q queryer, collection, id string, data map[string]any) error {
	existing, err := getDoc(ctx, q, collection, id)
	if err != nil && err != docstore.ErrNotFound {
		return err
	}

	merged := existing.Data
	if merged == nil {
		merged = make(map[string]any, len(data))
	}
	for k, v := range data {
		merged[k] = v
	}
	return setDoc(ctx, q, collection, id, merged)
}

func deleteDoc(ctx context.Context, q queryer, collection, id string) error {
	_, err := q.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// incrementDoc adds delta to a numeric field, treating a missing document or
// field as zero, matching merge-create semantics.
func incrementDoc(ctx context.Context, q queryer, collection, id, field string, delta decimal.Decimal) error {
	existing, err := getDoc(ctx, q, collection, id)
	if err != nil && err != docstore.ErrNotFound {
		return err
	}

	data := existing.Data
	if data == nil {
		data = make(map[string]any, 1)
	}
	current := decimal.Zero
	if v, ok := data[field]; ok {
		if d, ok := v.(decimal.Decimal); ok {
			current = d
		}
	}
	data[field] = current.Add(delta)
	return setDoc(ctx, q, collection, id, data)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// =============================================================================
// BATCH
// =============================================================================

type opKind int

const (
	opSet opKind = iota
	opMerge
	opDelete
	opIncrement
)

type op struct {
	kind       opKind
	collection string
	id         string
	data       map[string]any
	field      string
	delta      decimal.Decimal
}

type batch struct {
	store *Store
	ops   []op
}

func (s *Store) NewBatch() docstore.Batch {
	return &batch{store: s}
}

func (b *batch) Set(collection, id string, data map[string]any) {
	b.ops = append(b.ops, op{kind: opSet, collection: collection, id: id, data: data})
}

func (b *batch) Merge(collection, id string, data map[string]any) {
	b.ops = append(b.ops, op{kind: opMerge, collection: collection, id: id, data: data})
}

func (b *batch) Delete(collection, id string) {
	b.ops = append(b.ops, op{kind: opDelete, collection: collection, id: id})
}

func (b *batch) Increment(collection, id, field string, delta decimal.Decimal) {
	b.ops = append(b.ops, op{kind: opIncrement, collection: collection, id: id, field: field, delta: delta})
}

func (b *batch) Len() int { return len(b.ops) }

func (b *batch) Commit(ctx context.Context) error {
	if len(b.ops) > docstore.MaxOps {
		return fmt.Errorf("%w: %d operations staged, ceiling is %d",
			docstore.ErrBatchTooLarge, len(b.ops), docstore.MaxOps)
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	sqlTx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, o := range b.ops {
		if err := applyOp(ctx, sqlTx, o); err != nil {
			return err
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	b.ops = nil
	return nil
}

func applyOp(ctx context.Context, q queryer, o op) error {
	switch o.kind {
	case opSet:
		return setDoc(ctx, q, o.collection, o.id, o.data)
	case opMerge:
		return mergeDoc(ctx, q, o.collection, o.id, o.data)
	case opDelete:
		return deleteDoc(ctx, q, o.collection, o.id)
	case opIncrement:
		return incrementDoc(ctx, q, o.collection, o.id, o.field, o.delta)
	}
	return fmt.Errorf("unknown batch operation %d", o.kind)
}

// =============================================================================
// TRANSACTION
// =============================================================================

// RunTransaction executes fn inside a single SQL transaction. Any error from
// fn or from a staged write rolls the whole transaction back.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	view := &txView{ctx: ctx, tx: sqlTx}
	if err := fn(view); err != nil {
		return err
	}
	if view.err != nil {
		return view.err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txView implements docstore.Tx over a SQL transaction. Write methods carry
// no error return, so the first failure is held and surfaced after fn.
type txView struct {
	ctx context.Context
	tx  *sql.Tx
	err error
}

func (tv *txView) Get(collection, id string) (docstore.Document, error) {
	return getDoc(tv.ctx, tv.tx, collection, id)
}

func (tv *txView) Set(collection, id string, data map[string]any) {
	tv.record(setDoc(tv.ctx, tv.tx, collection, id, data))
}

func (tv *txView) Merge(collection, id string, data map[string]any) {
	tv.record(mergeDoc(tv.ctx, tv.tx, collection, id, data))
}

func (tv *txView) Delete(collection, id string) {
	tv.record(deleteDoc(tv.ctx, tv.tx, collection, id))
}

func (tv *txView) Increment(collection, id, field string, delta decimal.Decimal) {
	tv.record(incrementDoc(tv.ctx, tv.tx, collection, id, field, delta))
}

func (tv *txView) record(err error) {
	if tv.err == nil && err != nil {
		tv.err = err
	}
}

// =============================================================================
// FIELD ENCODING
// =============================================================================

// field is the typed JSON envelope for one document value.
type field struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v"`
}

const (
	tagString    = "s"
	tagBool      = "b"
	tagInt       = "i"
	tagTimestamp = "ts"
	tagDecimal   = "d"
	tagStrings   = "ss"
)

func encodeData(data map[string]any) (string, error) {
	out := make(map[string]field, len(data))
	for k, v := range data {
		f, err := encodeValue(v)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = f
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	return string(raw), nil
}

func encodeValue(v any) (field, error) {
	switch tv := v.(type) {
	case string:
		return rawField(tagString, tv)
	case bool:
		return rawField(tagBool, tv)
	case int:
		return rawField(tagInt, int64(tv))
	case int64:
		return rawField(tagInt, tv)
	case time.Time:
		return rawField(tagTimestamp, tv.UTC().Format(time.RFC3339Nano))
	case decimal.Decimal:
		return rawField(tagDecimal, tv.String())
	case []string:
		return rawField(tagStrings, tv)
	}
	return field{}, fmt.Errorf("unsupported value type %T", v)
}

func rawField(tag string, v any) (field, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return field{}, err
	}
	return field{T: tag, V: raw}, nil
}

func decodeData(raw string) (map[string]any, error) {
	var fields map[string]field
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}

	out := make(map[string]any, len(fields))
	for k, f := range fields {
		v, err := decodeValue(f)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func decodeValue(f field) (any, error) {
	switch f.T {
	case tagString:
		var s string
		err := json.Unmarshal(f.V, &s)
		return s, err
	case tagBool:
		var b bool
		err := json.Unmarshal(f.V, &b)
		return b, err
	case tagInt:
		var n int64
		err := json.Unmarshal(f.V, &n)
		return n, err
	case tagTimestamp:
		var s string
		if err := json.Unmarshal(f.V, &s); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp %q: %w", s, err)
		}
		return t, nil
	case tagDecimal:
		var s string
		if err := json.Unmarshal(f.V, &s); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("bad decimal %q: %w", s, err)
		}
		return d, nil
	case tagStrings:
		var ss []string
		err := json.Unmarshal(f.V, &ss)
		return ss, err
	}
	return nil, fmt.Errorf("unknown value tag %q", f.T)
}
