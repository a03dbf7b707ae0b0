package memory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hearth/family-engine/docstore"
	"github.com/hearth/family-engine/docstore/memory"
)

// =============================================================================
// BASIC DOCUMENT OPERATIONS
// =============================================================================

func TestStore_SetGetDelete(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	err := s.Set(ctx, "things", "a", map[string]any{"name": "first"})
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	doc, err := s.Get(ctx, "things", "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Data["name"] != "first" {
		t.Errorf("name: got %v", doc.Data["name"])
	}

	if err := s.Delete(ctx, "things", "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = s.Get(ctx, "things", "a")
	if !docstore.IsNotFound(err) {
		t.Errorf("expected not-found after delete, got %v", err)
	}
}

func TestStore_Get_ReturnsCopy(t *testing.T) {
	// GIVEN: A stored document
	// WHEN: Mutating the map a read returned
	// THEN: The stored document is unaffected

	s := memory.New()
	ctx := context.Background()

	_ = s.Set(ctx, "things", "a", map[string]any{"name": "first"})
	doc, _ := s.Get(ctx, "things", "a")
	doc.Data["name"] = "mutated"

	again, _ := s.Get(ctx, "things", "a")
	if again.Data["name"] != "first" {
		t.Errorf("stored document was mutated through a read: %v", again.Data["name"])
	}
}

func TestStore_Merge_CreatesAndOverlays(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	// Merge into a missing document creates it.
	_ = s.Merge(ctx, "things", "a", map[string]any{"x": "1"})
	// A second merge overlays without dropping existing fields.
	_ = s.Merge(ctx, "things", "a", map[string]any{"y": "2"})

	doc, err := s.Get(ctx, "things", "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Data["x"] != "1" || doc.Data["y"] != "2" {
		t.Errorf("merged data: %v", doc.Data)
	}
}

// =============================================================================
// QUERY TESTS
// =============================================================================

func TestStore_Query_EqualityAndRange(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	base := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_ = s.Set(ctx, "records", fmt.Sprintf("r%d", i), map[string]any{
			"series": "s1",
			"date":   base.AddDate(0, 0, i),
		})
	}
	_ = s.Set(ctx, "records", "other", map[string]any{
		"series": "s2",
		"date":   base,
	})

	docs, err := s.Query(ctx, "records",
		docstore.Where("series", docstore.OpEqual, "s1"),
		docstore.Where("date", docstore.OpGreaterOrEqual, base.AddDate(0, 0, 2)),
	)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("got %d documents, want 3", len(docs))
	}
}

func TestStore_Query_MissingFieldNeverMatches(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	_ = s.Set(ctx, "records", "no-series", map[string]any{"date": time.Now()})

	docs, err := s.Query(ctx, "records",
		docstore.Where("series", docstore.OpEqual, "s1"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("documents without the field must not match, got %d", len(docs))
	}
}

// =============================================================================
// BATCH TESTS
// =============================================================================

func TestBatch_AtomicApply(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	b := s.NewBatch()
	b.Set("things", "a", map[string]any{"n": int64(1)})
	b.Set("things", "b", map[string]any{"n": int64(2)})
	b.Increment("totals", "sum", "value", decimal.NewFromInt(3))
	if b.Len() != 3 {
		t.Fatalf("len: got %d", b.Len())
	}
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	doc, err := s.Get(ctx, "totals", "sum")
	if err != nil {
		t.Fatalf("get totals: %v", err)
	}
	v := doc.Data["value"].(decimal.Decimal)
	if !v.Equal(decimal.NewFromInt(3)) {
		t.Errorf("increment on missing doc should start from zero: %s", v)
	}
}

func TestBatch_OverCeiling_RejectedBeforeApplying(t *testing.T) {
	// GIVEN: A batch one operation over the ceiling
	// WHEN: Committing
	// THEN: The commit fails and nothing was written

	s := memory.New()
	ctx := context.Background()

	b := s.NewBatch()
	for i := 0; i <= docstore.MaxOps; i++ {
		b.Set("things", fmt.Sprintf("d%d", i), map[string]any{"n": int64(i)})
	}

	err := b.Commit(ctx)
	if !errors.Is(err, docstore.ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}

	if _, err := s.Get(ctx, "things", "d0"); !docstore.IsNotFound(err) {
		t.Error("rejected batch must not write any document")
	}
}

func TestBatch_IncrementAccumulates(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	b := s.NewBatch()
	b.Increment("totals", "m", "spent", decimal.RequireFromString("10.5"))
	b.Increment("totals", "m", "spent", decimal.RequireFromString("4.5"))
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	doc, _ := s.Get(ctx, "totals", "m")
	v := doc.Data["spent"].(decimal.Decimal)
	if !v.Equal(decimal.NewFromInt(15)) {
		t.Errorf("spent: got %s, want 15", v)
	}
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestRunTransaction_CommitsOnSuccess(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
		tx.Set("things", "a", map[string]any{"n": int64(1)})
		tx.Increment("totals", "m", "spent", decimal.NewFromInt(7))
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	if _, err := s.Get(ctx, "things", "a"); err != nil {
		t.Errorf("set inside committed transaction missing: %v", err)
	}
}

func TestRunTransaction_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that writes and then fails
	// WHEN: It returns an error
	// THEN: None of its writes are visible, and pre-existing state survives

	s := memory.New()
	ctx := context.Background()
	_ = s.Set(ctx, "things", "keep", map[string]any{"n": int64(1)})

	boom := errors.New("boom")
	err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
		tx.Set("things", "new", map[string]any{"n": int64(2)})
		tx.Delete("things", "keep")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error back, got %v", err)
	}

	if _, err := s.Get(ctx, "things", "new"); !docstore.IsNotFound(err) {
		t.Error("write from failed transaction leaked")
	}
	if _, err := s.Get(ctx, "things", "keep"); err != nil {
		t.Errorf("delete from failed transaction was not rolled back: %v", err)
	}
}

func TestRunTransaction_ReadsSeeOwnWrites(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
		tx.Set("things", "a", map[string]any{"n": int64(1)})
		doc, err := tx.Get("things", "a")
		if err != nil {
			return err
		}
		if doc.Data["n"] != int64(1) {
			return fmt.Errorf("read-your-writes failed: %v", doc.Data["n"])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}
