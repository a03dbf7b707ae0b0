/*
Package budget maintains the family's financial ledger and its per-month
aggregates.

PURPOSE:
  Transactions are individual Expense/Income records. One Aggregate document
  per family per calendar month carries the running totals the budget screen
  renders. The engine keeps those totals consistent as transactions are
  created, edited, and deleted - singly or in bulk as part of a repeating
  series - using the store's atomic increments, bounded batches and
  read-modify-write transactions. Totals are maintained incrementally, never
  recomputed from a full scan in the steady state.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: a ledger entry; repeating requests materialize many of them
    sharing one SeriesID
  - Aggregate: the per-month derived totals (spent, income, limit)
  - MonthKey: the "YYYY-MM" string keying an Aggregate

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every amount, no floats
  2. Explicit scope: every operation takes familyID and actorID parameters;
     there is no ambient "current family" lookup
  3. Aggregates are mutated only through atomic increments or transactional
     read-modify-write, never blind overwrites of the numeric fields

SEE ALSO:
  - engine.go: add/update/delete operations and chunked bulk paths
  - errors.go: validation and index error taxonomy
*/
package budget

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hearth/family-engine/recur"
)

// =============================================================================
// TRANSACTION - Financial ledger entry
// =============================================================================

type TransactionType string

const (
	TypeExpense TransactionType = "Expense"
	TypeIncome  TransactionType = "Income"
)

func (t TransactionType) Valid() bool {
	return t == TypeExpense || t == TypeIncome
}

// Transaction is one stored ledger entry. Identity persists across edits.
// SeriesID is shared by all records generated from one repeating request and
// empty for non-repeating ones.
type Transaction struct {
	ID       string
	FamilyID string
	Type     TransactionType
	Amount   decimal.Decimal
	Date     time.Time
	Repeat   recur.Rule
	SeriesID string

	// Display payload, opaque to the engine.
	Title    string
	Category string

	CreatedBy string
	CreatedAt time.Time
}

// TransactionRequest is the caller's intent for AddTransaction. A repeating
// rule turns one request into a whole series of stored records.
type TransactionRequest struct {
	Type     TransactionType
	Amount   decimal.Decimal
	Date     time.Time
	Repeat   recur.Rule
	Title    string
	Category string
}

// DeleteScope selects how much of a series a delete removes.
type DeleteScope string

const (
	// DeleteSingle removes just the given record.
	DeleteSingle DeleteScope = "single"

	// DeleteFuture removes the given record and every later record sharing
	// its SeriesID.
	DeleteFuture DeleteScope = "future"
)

// =============================================================================
// MONTH KEY - "YYYY-MM" aggregate key
// =============================================================================

type MonthKey string

// MonthKeyFor returns the key of the calendar month containing t (UTC).
func MonthKeyFor(t time.Time) MonthKey {
	return MonthKey(t.UTC().Format("2006-01"))
}

func (k MonthKey) Valid() bool {
	_, err := time.Parse("2006-01", string(k))
	return err == nil
}

// YearMonth returns the key's components. Zero values for a malformed key.
func (k MonthKey) YearMonth() (year int, month time.Month) {
	t, err := time.Parse("2006-01", string(k))
	if err != nil {
		return 0, 0
	}
	return t.Year(), t.Month()
}

// =============================================================================
// AGGREGATE - Per-family per-month running totals
// =============================================================================

// Aggregate is the derived totals document for one month. Invariant:
// TotalSpent equals the sum of Amount over all currently-existing Expense
// transactions dated in the month (TotalIncome likewise for Income). Created
// on the first transaction touching the month or the first explicit
// limit-set; never deleted by the engine.
type Aggregate struct {
	MonthKey    MonthKey
	Month       time.Month
	Year        int
	TotalSpent  decimal.Decimal
	TotalIncome decimal.Decimal
	TotalLimit  decimal.Decimal
}

// Remaining returns the limit minus spending; meaningful only when a limit
// has been set.
func (a Aggregate) Remaining() decimal.Decimal {
	return a.TotalLimit.Sub(a.TotalSpent)
}

// =============================================================================
// DOCUMENT MAPPING
// =============================================================================

func familyCollection(familyID, name string) string {
	return fmt.Sprintf("families/%s/%s", familyID, name)
}

func transactionsCollection(familyID string) string {
	return familyCollection(familyID, "transactions")
}

func budgetsCollection(familyID string) string {
	return familyCollection(familyID, "budgets")
}

// totalField maps a transaction type to the aggregate field it moves.
func totalField(t TransactionType) string {
	if t == TypeIncome {
		return "totalIncome"
	}
	return "totalSpent"
}

func encodeTransaction(t Transaction) map[string]any {
	data := map[string]any{
		"type":      string(t.Type),
		"amount":    t.Amount,
		"date":      t.Date.UTC(),
		"createdBy": t.CreatedBy,
		"createdAt": t.CreatedAt.UTC(),
	}
	if t.Repeat != "" {
		data["repeat"] = string(t.Repeat)
	}
	if t.SeriesID != "" {
		data["seriesId"] = t.SeriesID
	}
	if t.Title != "" {
		data["title"] = t.Title
	}
	if t.Category != "" {
		data["category"] = t.Category
	}
	return data
}

func decodeTransaction(familyID string, id string, data map[string]any) Transaction {
	t := Transaction{ID: id, FamilyID: familyID}
	if v, ok := data["type"].(string); ok {
		t.Type = TransactionType(v)
	}
	if v, ok := data["amount"].(decimal.Decimal); ok {
		t.Amount = v
	}
	if v, ok := data["date"].(time.Time); ok {
		t.Date = v
	}
	if v, ok := data["repeat"].(string); ok {
		t.Repeat = recur.Rule(v)
	}
	if v, ok := data["seriesId"].(string); ok {
		t.SeriesID = v
	}
	if v, ok := data["title"].(string); ok {
		t.Title = v
	}
	if v, ok := data["category"].(string); ok {
		t.Category = v
	}
	if v, ok := data["createdBy"].(string); ok {
		t.CreatedBy = v
	}
	if v, ok := data["createdAt"].(time.Time); ok {
		t.CreatedAt = v
	}
	return t
}

// aggregateMeta returns the non-numeric fields merged into an aggregate
// whenever it might be created as a side effect of an increment.
func aggregateMeta(key MonthKey) map[string]any {
	year, month := key.YearMonth()
	return map[string]any{
		"monthKey": string(key),
		"month":    int64(month),
		"year":     int64(year),
	}
}

func decodeAggregate(key MonthKey, data map[string]any) Aggregate {
	a := Aggregate{
		MonthKey:    key,
		TotalSpent:  decimal.Zero,
		TotalIncome: decimal.Zero,
		TotalLimit:  decimal.Zero,
	}
	a.Year, a.Month = key.YearMonth()
	if v, ok := data["totalSpent"].(decimal.Decimal); ok {
		a.TotalSpent = v
	}
	if v, ok := data["totalIncome"].(decimal.Decimal); ok {
		a.TotalIncome = v
	}
	if v, ok := data["totalLimit"].(decimal.Decimal); ok {
		a.TotalLimit = v
	}
	return a
}
