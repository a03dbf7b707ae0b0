/*
handlers_test.go - HTTP-level tests for the API surface

Tests for:
- Transaction lifecycle through the router (create, update, delete scopes)
- Budget aggregate and limit endpoints
- Calendar window expansion and clamping
- Error status mapping
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hearth/family-engine/budget"
	"github.com/hearth/family-engine/calendar"
	"github.com/hearth/family-engine/docstore/memory"
	"github.com/hearth/family-engine/lists"
)

const (
	testFamily = "fam-1"
	testActor  = "parent-1"
)

func newTestRouter() http.Handler {
	store := memory.New()
	h := NewHandler(
		calendar.NewService(store),
		lists.NewService(store),
		budget.NewEngine(store),
	)
	// Pin now so window clamping is deterministic.
	h.now = func() time.Time {
		return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	}
	return NewRouter(h)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", testActor)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, w.Body.String())
	}
	return out
}

func familyPath(suffix string) string {
	return fmt.Sprintf("/api/families/%s%s", testFamily, suffix)
}

// =============================================================================
// TRANSACTION ENDPOINT TESTS
// =============================================================================

func TestCreateTransaction_Single(t *testing.T) {
	// GIVEN: A valid one-time expense
	// WHEN: POSTing it
	// THEN: 201 with one record, and the month aggregate reflects it

	router := newTestRouter()

	w := doJSON(t, router, http.MethodPost, familyPath("/transactions"), TransactionRequestDTO{
		Type:   "Expense",
		Amount: "125.50",
		Date:   "2025-06-15T00:00:00Z",
		Title:  "groceries",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d (body: %s)", w.Code, w.Body.String())
	}

	recs := decodeBody[[]TransactionDTO](t, w)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Amount != "125.5" {
		t.Errorf("amount: got %q", recs[0].Amount)
	}

	w = doJSON(t, router, http.MethodGet, familyPath("/budgets/2025-06"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("budget status: got %d", w.Code)
	}
	agg := decodeBody[BudgetDTO](t, w)
	if agg.TotalSpent != "125.5" {
		t.Errorf("total_spent: got %q", agg.TotalSpent)
	}
}

func TestCreateTransaction_RepeatingSeries(t *testing.T) {
	router := newTestRouter()

	w := doJSON(t, router, http.MethodPost, familyPath("/transactions"), TransactionRequestDTO{
		Type:   "Expense",
		Amount: "50",
		Date:   "2025-01-01T00:00:00Z",
		Repeat: "Every month",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d (body: %s)", w.Code, w.Body.String())
	}

	recs := decodeBody[[]TransactionDTO](t, w)
	if len(recs) != 121 {
		t.Errorf("got %d records, want 121", len(recs))
	}
	if recs[0].SeriesID == "" {
		t.Error("series id missing")
	}
	for _, r := range recs {
		if r.SeriesID != recs[0].SeriesID {
			t.Fatal("series id must be shared across the series")
		}
	}
}

func TestCreateTransaction_ValidationStatuses(t *testing.T) {
	router := newTestRouter()

	cases := []struct {
		name string
		req  TransactionRequestDTO
	}{
		{"missing type", TransactionRequestDTO{Amount: "10", Date: "2025-06-01T00:00:00Z"}},
		{"bad type", TransactionRequestDTO{Type: "Transfer", Amount: "10", Date: "2025-06-01T00:00:00Z"}},
		{"bad amount", TransactionRequestDTO{Type: "Expense", Amount: "ten", Date: "2025-06-01T00:00:00Z"}},
		{"negative amount", TransactionRequestDTO{Type: "Expense", Amount: "-5", Date: "2025-06-01T00:00:00Z"}},
		{"bad date", TransactionRequestDTO{Type: "Expense", Amount: "10", Date: "June 1st"}},
		{"bad rule", TransactionRequestDTO{Type: "Expense", Amount: "10", Date: "2025-06-01T00:00:00Z", Repeat: "Fortnightly"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, familyPath("/transactions"), tc.req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400 (body: %s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestUpdateTransaction_CrossMonth(t *testing.T) {
	// GIVEN: A stored June expense
	// WHEN: PUTting it with a July date
	// THEN: June's aggregate empties out and July's fills in

	router := newTestRouter()

	w := doJSON(t, router, http.MethodPost, familyPath("/transactions"), TransactionRequestDTO{
		Type: "Expense", Amount: "100", Date: "2025-06-10T00:00:00Z",
	})
	recs := decodeBody[[]TransactionDTO](t, w)

	w = doJSON(t, router, http.MethodPut, familyPath("/transactions/"+recs[0].ID), TransactionRequestDTO{
		Type: "Expense", Amount: "100", Date: "2025-07-10T00:00:00Z",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d (body: %s)", w.Code, w.Body.String())
	}

	june := decodeBody[BudgetDTO](t, doJSON(t, router, http.MethodGet, familyPath("/budgets/2025-06"), nil))
	july := decodeBody[BudgetDTO](t, doJSON(t, router, http.MethodGet, familyPath("/budgets/2025-07"), nil))
	if june.TotalSpent != "0" {
		t.Errorf("june total_spent: got %q", june.TotalSpent)
	}
	if july.TotalSpent != "100" {
		t.Errorf("july total_spent: got %q", july.TotalSpent)
	}
}

func TestUpdateTransaction_Missing_404(t *testing.T) {
	router := newTestRouter()
	w := doJSON(t, router, http.MethodPut, familyPath("/transactions/ghost"), TransactionRequestDTO{
		Type: "Expense", Amount: "10", Date: "2025-06-01T00:00:00Z",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}

func TestDeleteTransaction_FutureScope(t *testing.T) {
	// GIVEN: A monthly series
	// WHEN: DELETEing a mid-series record with scope=future
	// THEN: Earlier records stay, the tail is gone

	router := newTestRouter()

	w := doJSON(t, router, http.MethodPost, familyPath("/transactions"), TransactionRequestDTO{
		Type: "Expense", Amount: "50", Date: "2025-01-01T00:00:00Z", Repeat: "Every month",
	})
	recs := decodeBody[[]TransactionDTO](t, w)
	june := recs[5]

	w = doJSON(t, router, http.MethodDelete,
		familyPath("/transactions/"+june.ID+"?scope=future"), nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status: got %d (body: %s)", w.Code, w.Body.String())
	}

	listed := decodeBody[[]TransactionDTO](t, doJSON(t, router, http.MethodGet,
		familyPath("/transactions?from=2025-06-01T00:00:00Z&to=2035-01-02T00:00:00Z"), nil))
	if len(listed) != 0 {
		t.Errorf("tail of series survived: %d records", len(listed))
	}

	may := decodeBody[BudgetDTO](t, doJSON(t, router, http.MethodGet, familyPath("/budgets/2025-05"), nil))
	if may.TotalSpent != "50" {
		t.Errorf("may total_spent: got %q", may.TotalSpent)
	}
}

func TestDeleteTransaction_UnknownScope_400(t *testing.T) {
	router := newTestRouter()

	w := doJSON(t, router, http.MethodPost, familyPath("/transactions"), TransactionRequestDTO{
		Type: "Expense", Amount: "10", Date: "2025-06-01T00:00:00Z",
	})
	recs := decodeBody[[]TransactionDTO](t, w)

	w = doJSON(t, router, http.MethodDelete,
		familyPath("/transactions/"+recs[0].ID+"?scope=everything"), nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

// =============================================================================
// BUDGET LIMIT TESTS
// =============================================================================

func TestSetLimit_ReturnsUpdatedAggregate(t *testing.T) {
	router := newTestRouter()

	doJSON(t, router, http.MethodPost, familyPath("/transactions"), TransactionRequestDTO{
		Type: "Expense", Amount: "250", Date: "2025-06-10T00:00:00Z",
	})

	w := doJSON(t, router, http.MethodPut, familyPath("/budgets/2025-06/limit"),
		LimitRequest{Limit: "1000"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d (body: %s)", w.Code, w.Body.String())
	}

	agg := decodeBody[BudgetDTO](t, w)
	if agg.TotalLimit != "1000" {
		t.Errorf("total_limit: got %q", agg.TotalLimit)
	}
	if agg.Remaining != "750" {
		t.Errorf("remaining: got %q", agg.Remaining)
	}
}

func TestSetLimit_BadKey_400(t *testing.T) {
	router := newTestRouter()
	w := doJSON(t, router, http.MethodPut, familyPath("/budgets/June/limit"),
		LimitRequest{Limit: "1000"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

// =============================================================================
// CALENDAR ENDPOINT TESTS
// =============================================================================

func TestCalendarWindow_ExpandsAndClamps(t *testing.T) {
	// GIVEN: A weekly event, now pinned to June 1 2025
	// WHEN: Asking for a window reaching 20 years out
	// THEN: Occurrences stop at the ten-year clamp instead

	router := newTestRouter()

	w := doJSON(t, router, http.MethodPost, familyPath("/events"), EventRequest{
		Title:   "Soccer practice",
		StartAt: "2025-06-02T16:00:00Z",
		EndAt:   "2025-06-02T17:00:00Z",
		Repeat:  "Every week",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status: got %d (body: %s)", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet,
		familyPath("/calendar?from=2025-06-01T00:00:00Z&to=2045-01-01T00:00:00Z"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("window status: got %d", w.Code)
	}

	occs := decodeBody[[]OccurrenceDTO](t, w)
	if len(occs) == 0 {
		t.Fatal("no occurrences")
	}
	clamp := time.Date(2035, time.June, 1, 12, 0, 0, 0, time.UTC)
	for _, occ := range occs {
		start, err := time.Parse(time.RFC3339, occ.StartAt)
		if err != nil {
			t.Fatalf("bad start_at %q: %v", occ.StartAt, err)
		}
		if start.After(clamp) {
			t.Errorf("occurrence %v escaped the ten-year clamp", start)
		}
		if occ.Title != "Soccer practice" {
			t.Errorf("title: got %q", occ.Title)
		}
	}
}

func TestCreateEvent_Validation(t *testing.T) {
	router := newTestRouter()

	// Validator catches the missing title before the domain does.
	w := doJSON(t, router, http.MethodPost, familyPath("/events"), EventRequest{
		StartAt: "2025-06-02T16:00:00Z",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing title: got %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, familyPath("/events"), EventRequest{
		Title:   "Backwards",
		StartAt: "2025-06-02T16:00:00Z",
		EndAt:   "2025-06-02T15:00:00Z",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("end before start: got %d, want 400", w.Code)
	}
}

// =============================================================================
// LIST ENDPOINT TESTS
// =============================================================================

func TestListLifecycle(t *testing.T) {
	router := newTestRouter()

	w := doJSON(t, router, http.MethodPost, familyPath("/lists"), ListRequest{Name: "Groceries"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create list: got %d", w.Code)
	}
	l := decodeBody[ListDTO](t, w)

	w = doJSON(t, router, http.MethodPost, familyPath("/lists/"+l.ID+"/items"),
		ItemRequest{Text: "milk"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add item: got %d (body: %s)", w.Code, w.Body.String())
	}

	items := decodeBody[[]ItemDTO](t, doJSON(t, router, http.MethodGet,
		familyPath("/lists/"+l.ID+"/items"), nil))
	if len(items) != 1 || items[0].Text != "milk" {
		t.Fatalf("items: %+v", items)
	}

	w = doJSON(t, router, http.MethodDelete, familyPath("/lists/"+l.ID), nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete list: got %d", w.Code)
	}

	items = decodeBody[[]ItemDTO](t, doJSON(t, router, http.MethodGet,
		familyPath("/lists/"+l.ID+"/items"), nil))
	if len(items) != 0 {
		t.Errorf("items survived list deletion: %+v", items)
	}
}
