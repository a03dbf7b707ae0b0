// Package memory provides an in-memory docstore.Store for tests and
// development. Batches and transactions are made atomic with a store-wide
// mutex plus snapshot/rollback, mirroring what a real backend guarantees.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/hearth/family-engine/docstore"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu   sync.RWMutex
	cols map[string]map[string]map[string]any // collection -> id -> data
}

func New() *Store {
	return &Store{cols: make(map[string]map[string]map[string]any)}
}

func (s *Store) Get(_ context.Context, collection, id string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(collection, id)
}

func (s *Store) getLocked(collection, id string) (docstore.Document, error) {
	data, ok := s.cols[collection][id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return docstore.Document{ID: id, Data: cloneData(data)}, nil
}

func (s *Store) Set(_ context.Context, collection, id string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(collection, id, data)
	return nil
}

func (s *Store) Merge(_ context.Context, collection, id string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeLocked(collection, id, data)
	return nil
}

func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cols[collection], id)
	return nil
}

func (s *Store) Query(_ context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []docstore.Document
	for id, data := range s.cols[collection] {
		if docstore.Matches(data, filters) {
			result = append(result, docstore.Document{ID: id, Data: cloneData(data)})
		}
	}
	return result, nil
}

// =============================================================================
// LOCKED MUTATION PRIMITIVES (shared by direct writes, batches, transactions)
// =============================================================================

func (s *Store) setLocked(collection, id string, data map[string]any) {
	if s.cols[collection] == nil {
		s.cols[collection] = make(map[string]map[string]any)
	}
	s.cols[collection][id] = cloneData(data)
}

func (s *Store) mergeLocked(collection, id string, data map[string]any) {
	if s.cols[collection] == nil {
		s.cols[collection] = make(map[string]map[string]any)
	}
	existing, ok := s.cols[collection][id]
	if !ok {
		existing = make(map[string]any)
		s.cols[collection][id] = existing
	}
	for k, v := range data {
		existing[k] = v
	}
}

func (s *Store) incrementLocked(collection, id, field string, delta decimal.Decimal) {
	if s.cols[collection] == nil {
		s.cols[collection] = make(map[string]map[string]any)
	}
	existing, ok := s.cols[collection][id]
	if !ok {
		existing = make(map[string]any)
		s.cols[collection][id] = existing
	}
	current := decimal.Zero
	if v, ok := existing[field]; ok {
		if d, ok := v.(decimal.Decimal); ok {
			current = d
		}
	}
	existing[field] = current.Add(delta)
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
	b.ops = append(b.ops, op{kind: opSet, collection: collection, id: id, data: cloneData(data)})
}

func (b *batch) Merge(collection, id string, data map[string]any) {
	b.ops = append(b.ops, op{kind: opMerge, collection: collection, id: id, data: cloneData(data)})
}

func (b *batch) Delete(collection, id string) {
	b.ops = append(b.ops, op{kind: opDelete, collection: collection, id: id})
}

func (b *batch) Increment(collection, id, field string, delta decimal.Decimal) {
	b.ops = append(b.ops, op{kind: opIncrement, collection: collection, id: id, field: field, delta: delta})
}

func (b *batch) Len() int { return len(b.ops) }

func (b *batch) Commit(_ context.Context) error {
	if len(b.ops) > docstore.MaxOps {
		return fmt.Errorf("%w: %d operations staged, ceiling is %d",
			docstore.ErrBatchTooLarge, len(b.ops), docstore.MaxOps)
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	for _, o := range b.ops {
		switch o.kind {
		case opSet:
			b.store.setLocked(o.collection, o.id, o.data)
		case opMerge:
			b.store.mergeLocked(o.collection, o.id, o.data)
		case opDelete:
			delete(b.store.cols[o.collection], o.id)
		case opIncrement:
			b.store.incrementLocked(o.collection, o.id, o.field, o.delta)
		}
	}
	b.ops = nil
	return nil
}

// =============================================================================
// TRANSACTION - snapshot, apply directly, restore on error
// =============================================================================

func (s *Store) RunTransaction(_ context.Context, fn func(tx docstore.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	if err := fn(&txView{store: s}); err != nil {
		s.cols = snapshot
		return err
	}
	return nil
}

func (s *Store) snapshot() map[string]map[string]map[string]any {
	out := make(map[string]map[string]map[string]any, len(s.cols))
	for col, docs := range s.cols {
		docsCopy := make(map[string]map[string]any, len(docs))
		for id, data := range docs {
			docsCopy[id] = cloneData(data)
		}
		out[col] = docsCopy
	}
	return out
}

type txView struct {
	store *Store
}

func (tv *txView) Get(collection, id string) (docstore.Document, error) {
	return tv.store.getLocked(collection, id)
}

func (tv *txView) Set(collection, id string, data map[string]any) {
	tv.store.setLocked(collection, id, data)
}

func (tv *txView) Merge(collection, id string, data map[string]any) {
	tv.store.mergeLocked(collection, id, data)
}

func (tv *txView) Delete(collection, id string) {
	delete(tv.store.cols[collection], id)
}

func (tv *txView) Increment(collection, id, field string, delta decimal.Decimal) {
	tv.store.incrementLocked(collection, id, field, delta)
}

// cloneData copies the field map so callers cannot mutate stored state.
func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if ss, ok := v.([]string); ok {
			v = append([]string(nil), ss...)
		}
		out[k] = v
	}
	return out
}
