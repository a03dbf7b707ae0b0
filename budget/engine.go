/*
engine.go - Ledger engine: transaction mutations and aggregate maintenance

PURPOSE:
  The three mutation paths and their consistency guarantees:

  AddTransaction:    one request, possibly a whole repeating series. Records
                     are materialized up front (capped at the anchor plus ten
                     years), then written in chunks; each chunk is one atomic
                     batch of inserts plus aggregate increments.
  UpdateTransaction: a single read-modify-write store transaction adjusting
                     the old month's aggregate, the new month's aggregate
                     (when the month changed), and the record itself,
                     committing together or not at all.
  DeleteTransaction: "single" deletes one record and decrements its month
                     inside one transaction; "future" queries the rest of the
                     series, groups amounts per month, and deletes in bounded
                     batches.

ATOMICITY CONTRACT:
  Within one batch or transaction, all effects commit together. Across the
  chunks of a bulk create or bulk future delete there is NO atomicity or
  ordering guarantee: chunks commit independently and sequentially, and a
  failure partway leaves earlier chunks applied. Recovery is manual (re-run;
  aggregates may need reconciliation). Callers must not assume stronger
  guarantees than that.

CONCURRENCY:
  Aggregate numeric fields are only ever moved by atomic increments or by
  transactional read-modify-write, so concurrent family members issuing
  transactions stay consistent without engine-level locking. Transaction
  documents themselves are last-write-wins.

SEE ALSO:
  - types.go: Transaction, Aggregate, MonthKey and document mapping
  - docstore/docstore.go: the primitives this engine is written against
*/
package budget

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hearth/family-engine/docstore"
	"github.com/hearth/family-engine/recur"
)

const (
	// seriesHorizonYears caps how far a repeating request materializes.
	seriesHorizonYears = 10

	// addChunkRecords bounds records per insert batch. Each record costs an
	// insert plus an increment, and each distinct month in the chunk one
	// merge, which keeps every chunk under the store's op ceiling.
	addChunkRecords = 200

	// deleteChunkOps bounds operations per bulk-delete batch.
	deleteChunkOps = 400
)

// Engine maintains the transaction ledger and the per-month aggregates.
type Engine struct {
	store docstore.Store
	now   func() time.Time
}

func NewEngine(store docstore.Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// =============================================================================
// ADD - possibly a whole series
// =============================================================================

// AddTransaction stores the requested transaction and, for a repeating rule,
// every future occurrence up to ten years past the anchor, all sharing one
// SeriesID. Each chunk of inserts commits atomically together with the
// matching aggregate increments; there is no atomicity across chunks.
//
// Returns the stored records in date order.
func (e *Engine) AddTransaction(ctx context.Context, familyID, actorID string, req TransactionRequest) ([]Transaction, error) {
	if err := requireScope(familyID, actorID); err != nil {
		return nil, err
	}
	if !req.Type.Valid() {
		return nil, invalid("type", "must be Expense or Income")
	}
	if req.Amount.IsNegative() {
		return nil, invalid("amount", "must be non-negative")
	}
	if req.Date.IsZero() {
		return nil, invalid("date", "required")
	}
	if !req.Repeat.Valid() {
		return nil, invalid("repeat", fmt.Sprintf("unknown rule %q", req.Repeat))
	}

	var seriesID string
	if req.Repeat.Repeats() {
		seriesID = uuid.NewString()
	}
	records := e.materialize(familyID, actorID, req, seriesID)

	transactions := transactionsCollection(familyID)
	budgets := budgetsCollection(familyID)

	for start := 0; start < len(records); start += addChunkRecords {
		end := min(start+addChunkRecords, len(records))

		b := e.store.NewBatch()
		merged := make(map[MonthKey]bool)
		for _, rec := range records[start:end] {
			key := MonthKeyFor(rec.Date)
			if !merged[key] {
				b.Merge(budgets, string(key), aggregateMeta(key))
				merged[key] = true
			}
			b.Set(transactions, rec.ID, encodeTransaction(rec))
			b.Increment(budgets, string(key), totalField(rec.Type), rec.Amount)
		}
		if err := b.Commit(ctx); err != nil {
			log.Printf("budget: family %s: add chunk [%d:%d) of %d records failed: %v",
				familyID, start, end, len(records), err)
			return nil, fmt.Errorf("adding transactions: %w", err)
		}
	}
	return records, nil
}

// materialize builds the full record list for a request: the anchor record,
// then rule applications until the horizon. Every generated date keeps the
// request's payload and the shared SeriesID.
func (e *Engine) materialize(familyID, actorID string, req TransactionRequest, seriesID string) []Transaction {
	createdAt := e.now().UTC()
	horizon := req.Date.AddDate(seriesHorizonYears, 0, 0)

	var records []Transaction
	date := req.Date
	for {
		records = append(records, Transaction{
			ID:        uuid.NewString(),
			FamilyID:  familyID,
			Type:      req.Type,
			Amount:    req.Amount,
			Date:      date,
			Repeat:    req.Repeat,
			SeriesID:  seriesID,
			Title:     req.Title,
			Category:  req.Category,
			CreatedBy: actorID,
			CreatedAt: createdAt,
		})
		if seriesID == "" {
			break
		}
		date = recur.Next(date, req.Repeat)
		if date.After(horizon) {
			break
		}
	}
	return records
}

// =============================================================================
// UPDATE - single atomic read-modify-write
// =============================================================================

// UpdateTransaction rewrites the record's fields and moves the aggregate
// totals from the old record's month and type to the new record's. All three
// effects (old-month adjustment, new-month adjustment, record update) commit
// in one store transaction. Identity and SeriesID persist across the edit.
func (e *Engine) UpdateTransaction(ctx context.Context, familyID, actorID, id string, oldRec, newRec Transaction) error {
	if err := requireScope(familyID, actorID); err != nil {
		return err
	}
	if id == "" {
		return invalid("id", "required")
	}
	if !newRec.Type.Valid() {
		return invalid("type", "must be Expense or Income")
	}
	if oldRec.Amount.IsNegative() || newRec.Amount.IsNegative() {
		return invalid("amount", "must be non-negative")
	}
	if oldRec.Date.IsZero() || newRec.Date.IsZero() {
		return invalid("date", "required")
	}

	transactions := transactionsCollection(familyID)
	budgets := budgetsCollection(familyID)
	oldKey := MonthKeyFor(oldRec.Date)
	newKey := MonthKeyFor(newRec.Date)

	err := e.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		// Identity and series linkage survive edits.
		newRec.ID = id
		newRec.FamilyID = familyID
		newRec.SeriesID = oldRec.SeriesID
		if newRec.CreatedBy == "" {
			newRec.CreatedBy = oldRec.CreatedBy
		}
		if newRec.CreatedAt.IsZero() {
			newRec.CreatedAt = oldRec.CreatedAt
		}

		oldAgg, err := readAggregate(tx, budgets, oldKey)
		if err != nil {
			return err
		}

		if oldKey == newKey {
			// Same month: fold subtraction and addition into one in-memory
			// value and a single write, so the second adjustment cannot
			// clobber the first.
			oldAgg.shift(oldRec.Type, oldRec.Amount.Neg())
			oldAgg.shift(newRec.Type, newRec.Amount)
			writeAggregateTotals(tx, budgets, oldKey, oldAgg)
		} else {
			newAgg, err := readAggregate(tx, budgets, newKey)
			if err != nil {
				return err
			}
			oldAgg.shift(oldRec.Type, oldRec.Amount.Neg())
			newAgg.shift(newRec.Type, newRec.Amount)
			writeAggregateTotals(tx, budgets, oldKey, oldAgg)
			writeAggregateTotals(tx, budgets, newKey, newAgg)
		}

		tx.Set(transactions, id, encodeTransaction(newRec))
		return nil
	})
	if err != nil {
		log.Printf("budget: family %s: update of transaction %s failed: %v", familyID, id, err)
		return fmt.Errorf("updating transaction %s: %w", id, err)
	}
	return nil
}

// shift moves the total matching the transaction type by delta.
func (a *Aggregate) shift(t TransactionType, delta decimal.Decimal) {
	if t == TypeIncome {
		a.TotalIncome = a.TotalIncome.Add(delta)
	} else {
		a.TotalSpent = a.TotalSpent.Add(delta)
	}
}

// readAggregate loads an aggregate inside a transaction, defaulting missing
// documents and fields to zero.
func readAggregate(tx docstore.Tx, budgets string, key MonthKey) (Aggregate, error) {
	doc, err := tx.Get(budgets, string(key))
	if docstore.IsNotFound(err) {
		return decodeAggregate(key, nil), nil
	}
	if err != nil {
		return Aggregate{}, err
	}
	return decodeAggregate(key, doc.Data), nil
}

// writeAggregateTotals merges the recomputed totals without touching
// TotalLimit or any field this code did not read.
func writeAggregateTotals(tx docstore.Tx, budgets string, key MonthKey, a Aggregate) {
	data := aggregateMeta(key)
	data["totalSpent"] = a.TotalSpent
	data["totalIncome"] = a.TotalIncome
	tx.Merge(budgets, string(key), data)
}

// =============================================================================
// DELETE - single record or the rest of a series
// =============================================================================

// DeleteTransaction removes rec. Scope "single" (the default, and the forced
// behavior when rec carries no SeriesID) atomically decrements the owning
// month's total and deletes the record. Scope "future" removes rec and every
// later record in its series in bounded batches, decrementing each affected
// month by that month's summed amount; chunks commit independently.
func (e *Engine) DeleteTransaction(ctx context.Context, familyID, actorID string, rec Transaction, scope DeleteScope) error {
	if err := requireScope(familyID, actorID); err != nil {
		return err
	}
	if rec.ID == "" {
		return invalid("id", "required")
	}
	if rec.Date.IsZero() {
		return invalid("date", "required")
	}
	if rec.Amount.IsNegative() {
		return invalid("amount", "must be non-negative")
	}

	switch scope {
	case "", DeleteSingle:
		scope = DeleteSingle
	case DeleteFuture:
		if rec.SeriesID == "" {
			scope = DeleteSingle
		}
	default:
		return invalid("scope", fmt.Sprintf("unknown scope %q", scope))
	}

	if scope == DeleteSingle {
		return e.deleteSingle(ctx, familyID, rec)
	}
	return e.deleteFuture(ctx, familyID, rec)
}

func (e *Engine) deleteSingle(ctx context.Context, familyID string, rec Transaction) error {
	transactions := transactionsCollection(familyID)
	budgets := budgetsCollection(familyID)
	key := MonthKeyFor(rec.Date)

	err := e.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		tx.Increment(budgets, string(key), totalField(rec.Type), rec.Amount.Neg())
		tx.Delete(transactions, rec.ID)
		return nil
	})
	if err != nil {
		log.Printf("budget: family %s: delete of transaction %s failed: %v", familyID, rec.ID, err)
		return fmt.Errorf("deleting transaction %s: %w", rec.ID, err)
	}
	return nil
}

func (e *Engine) deleteFuture(ctx context.Context, familyID string, rec Transaction) error {
	transactions := transactionsCollection(familyID)
	budgets := budgetsCollection(familyID)

	docs, err := e.store.Query(ctx, transactions,
		docstore.Where("seriesId", docstore.OpEqual, rec.SeriesID),
		docstore.Where("date", docstore.OpGreaterOrEqual, rec.Date),
	)
	if err != nil {
		if docstore.IsMissingIndex(err) {
			log.Printf("budget: family %s: series query for %s needs an index: %v", familyID, rec.SeriesID, err)
			return fmt.Errorf("deleting future repetitions requires a composite index on (seriesId, date); provision it and retry: %w", err)
		}
		log.Printf("budget: family %s: series query for %s failed: %v", familyID, rec.SeriesID, err)
		return fmt.Errorf("querying series %s: %w", rec.SeriesID, err)
	}

	members := make([]Transaction, 0, len(docs))
	for _, doc := range docs {
		members = append(members, decodeTransaction(familyID, doc.ID, doc.Data))
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Date.Before(members[j].Date) })

	// Members of one series can diverge in type after per-record edits, so
	// sums group by month AND aggregate field, not month alone.
	type monthField struct {
		key   MonthKey
		field string
	}

	b := e.store.NewBatch()
	sums := make(map[monthField]decimal.Decimal)

	flush := func() error {
		for mf, sum := range sums {
			b.Increment(budgets, string(mf.key), mf.field, sum.Neg())
		}
		if b.Len() == 0 {
			return nil
		}
		if err := b.Commit(ctx); err != nil {
			return err
		}
		b = e.store.NewBatch()
		sums = make(map[monthField]decimal.Decimal)
		return nil
	}

	for _, member := range members {
		// Room for this delete plus one decrement per month-field pair,
		// counting the pair this record may add.
		if b.Len()+len(sums)+2 > deleteChunkOps {
			if err := flush(); err != nil {
				log.Printf("budget: family %s: bulk delete chunk for series %s failed: %v", familyID, rec.SeriesID, err)
				return fmt.Errorf("deleting series %s: %w", rec.SeriesID, err)
			}
		}
		b.Delete(transactions, member.ID)
		mf := monthField{key: MonthKeyFor(member.Date), field: totalField(member.Type)}
		sums[mf] = sums[mf].Add(member.Amount)
	}
	if err := flush(); err != nil {
		log.Printf("budget: family %s: bulk delete chunk for series %s failed: %v", familyID, rec.SeriesID, err)
		return fmt.Errorf("deleting series %s: %w", rec.SeriesID, err)
	}
	return nil
}

// =============================================================================
// LIMITS AND READS
// =============================================================================

// SetMonthlyLimit merge-writes the month's spending limit, creating the
// aggregate on first explicit limit-set.
func (e *Engine) SetMonthlyLimit(ctx context.Context, familyID, actorID string, key MonthKey, limit decimal.Decimal) error {
	if err := requireScope(familyID, actorID); err != nil {
		return err
	}
	if !key.Valid() {
		return invalid("month", fmt.Sprintf("not a YYYY-MM key: %q", key))
	}
	if limit.IsNegative() {
		return invalid("limit", "must be non-negative")
	}

	data := aggregateMeta(key)
	data["totalLimit"] = limit
	if err := e.store.Merge(ctx, budgetsCollection(familyID), string(key), data); err != nil {
		log.Printf("budget: family %s: setting limit for %s failed: %v", familyID, key, err)
		return fmt.Errorf("setting limit for %s: %w", key, err)
	}
	return nil
}

// MonthAggregate returns the month's totals, zero-valued when no transaction
// or limit has touched the month yet.
func (e *Engine) MonthAggregate(ctx context.Context, familyID string, key MonthKey) (Aggregate, error) {
	if familyID == "" {
		return Aggregate{}, invalid("familyID", "required")
	}
	if !key.Valid() {
		return Aggregate{}, invalid("month", fmt.Sprintf("not a YYYY-MM key: %q", key))
	}

	doc, err := e.store.Get(ctx, budgetsCollection(familyID), string(key))
	if docstore.IsNotFound(err) {
		return decodeAggregate(key, nil), nil
	}
	if err != nil {
		return Aggregate{}, fmt.Errorf("reading aggregate %s: %w", key, err)
	}
	return decodeAggregate(key, doc.Data), nil
}

// Transaction returns one stored record.
func (e *Engine) Transaction(ctx context.Context, familyID, id string) (Transaction, error) {
	if familyID == "" {
		return Transaction{}, invalid("familyID", "required")
	}
	if id == "" {
		return Transaction{}, invalid("id", "required")
	}

	doc, err := e.store.Get(ctx, transactionsCollection(familyID), id)
	if docstore.IsNotFound(err) {
		return Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("reading transaction %s: %w", id, err)
	}
	return decodeTransaction(familyID, doc.ID, doc.Data), nil
}

// TransactionsInRange returns the family's records with date in [from, to),
// sorted by date. Read side for screens that are not driven by a live query.
func (e *Engine) TransactionsInRange(ctx context.Context, familyID string, from, to time.Time) ([]Transaction, error) {
	if familyID == "" {
		return nil, invalid("familyID", "required")
	}

	docs, err := e.store.Query(ctx, transactionsCollection(familyID),
		docstore.Where("date", docstore.OpGreaterOrEqual, from),
		docstore.Where("date", docstore.OpLess, to),
	)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}

	records := make([]Transaction, 0, len(docs))
	for _, doc := range docs {
		records = append(records, decodeTransaction(familyID, doc.ID, doc.Data))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
	return records, nil
}

func requireScope(familyID, actorID string) error {
	if familyID == "" {
		return invalid("familyID", "required")
	}
	if actorID == "" {
		return invalid("actorID", "required")
	}
	return nil
}
