/*
handlers.go - HTTP API handlers for the family organizer engine

PURPOSE:
  Exposes the calendar, list and budget services via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Calendar:
    GET    /api/families/{familyID}/events             List events
    POST   /api/families/{familyID}/events             Create event
    PUT    /api/families/{familyID}/events/{id}        Update event
    DELETE /api/families/{familyID}/events/{id}        Delete event
    GET    /api/families/{familyID}/calendar?from=&to= Expanded window

  Lists:
    GET    /api/families/{familyID}/lists              List lists
    POST   /api/families/{familyID}/lists              Create list
    DELETE /api/families/{familyID}/lists/{id}         Delete list + items
    GET    /api/families/{familyID}/lists/{id}/items   List items
    POST   /api/families/{familyID}/lists/{id}/items   Add item
    PUT    /api/families/{familyID}/items/{id}         Update item
    DELETE /api/families/{familyID}/items/{id}         Delete item
    GET    /api/families/{familyID}/items/due?from=&to= Expanded due items

  Budget:
    GET    /api/families/{familyID}/transactions?from=&to=
    POST   /api/families/{familyID}/transactions
    PUT    /api/families/{familyID}/transactions/{id}
    DELETE /api/families/{familyID}/transactions/{id}?scope=single|future
    GET    /api/families/{familyID}/budgets/{monthKey}
    PUT    /api/families/{familyID}/budgets/{monthKey}/limit

ACTOR IDENTITY:
  Every mutating request must carry an X-Actor-ID header naming the family
  member performing the action. There is no ambient identity; handlers pass
  familyID and actorID explicitly into domain calls.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 500: Internal errors, including missing composite indexes (the message
         names the index to provision)

WINDOW CLAMPING:
  Calendar and due-item windows are clamped to three months before now and
  ten years after now so a hostile or buggy client cannot force an unbounded
  expansion.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hearth/family-engine/budget"
	"github.com/hearth/family-engine/calendar"
	"github.com/hearth/family-engine/docstore"
	"github.com/hearth/family-engine/lists"
	"github.com/hearth/family-engine/recur"
)

// Window clamp bounds relative to now.
const (
	windowPastMonths   = 3
	windowFutureYears  = 10
	defaultWindowYears = 1
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Calendar *calendar.Service
	Lists    *lists.Service
	Budget   *budget.Engine

	validate *validator.Validate
	now      func() time.Time
}

// NewHandler creates a handler over the three domain services.
func NewHandler(cal *calendar.Service, ls *lists.Service, eng *budget.Engine) *Handler {
	return &Handler{
		Calendar: cal,
		Lists:    ls,
		Budget:   eng,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (h *Handler) scope(r *http.Request) (familyID, actorID string) {
	return chi.URLParam(r, "familyID"), r.Header.Get("X-Actor-ID")
}

// =============================================================================
// CALENDAR HANDLERS
// =============================================================================

// ListEvents returns all events for a family.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	familyID, _ := h.scope(r)

	events, err := h.Calendar.List(r.Context(), familyID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]EventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toEventDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEvent creates a calendar event.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	familyID, actorID := h.scope(r)

	var req EventRequest
	if !h.decode(w, r, &req) {
		return
	}

	ev, ok := h.eventFromRequest(w, req)
	if !ok {
		return
	}

	created, err := h.Calendar.Create(r.Context(), familyID, actorID, ev)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(created))
}

// UpdateEvent rewrites an existing event.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	familyID, actorID := h.scope(r)
	id := chi.URLParam(r, "id")

	var req EventRequest
	if !h.decode(w, r, &req) {
		return
	}

	ev, ok := h.eventFromRequest(w, req)
	if !ok {
		return
	}
	ev.ID = id

	if err := h.Calendar.Update(r.Context(), familyID, actorID, ev); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

// DeleteEvent removes an event.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	familyID, actorID := h.scope(r)
	id := chi.URLParam(r, "id")

	if err := h.Calendar.Delete(r.Context(), familyID, actorID, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CalendarWindow returns expanded occurrences for a clamped time window.
func (h *Handler) CalendarWindow(w http.ResponseWriter, r *http.Request) {
	familyID, _ := h.scope(r)

	from, to, err := h.parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid window", err)
		return
	}

	occs, err := h.Calendar.Window(r.Context(), familyID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]OccurrenceDTO, len(occs))
	for i, occ := range occs {
		dtos[i] = toOccurrenceDTO(occ)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) eventFromRequest(w http.ResponseWriter, req EventRequest) (calendar.Event, bool) {
	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_at (use RFC 3339)", err)
		return calendar.Event{}, false
	}

	var endAt time.Time
	if req.EndAt != "" {
		endAt, err = time.Parse(time.RFC3339, req.EndAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_at (use RFC 3339)", err)
			return calendar.Event{}, false
		}
	}

	return calendar.Event{
		Title:      req.Title,
		Color:      req.Color,
		AssignedTo: req.AssignedTo,
		Notes:      req.Notes,
		StartAt:    startAt,
		EndAt:      endAt,
		Repeat:     recur.Rule(req.Repeat),
	}, true
}

// =============================================================================
// LIST HANDLERS
// =============================================================================

// ListLists returns all lists for a family.
func (h *Handler) ListLists(w http.ResponseWriter, r *http.Request) {
	familyID, _ := h.scope(r)

	ls, err := h.Lists.Lists(r.Context(), familyID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ListDTO, len(ls))
	for i, l := range ls {
		dtos[i] = toListDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateList creates a list.
func (h *Handler) CreateList(w http.ResponseWriter, r *http.Request) {
	familyID, actorID := h.scope(r)

	var req ListRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.Lists.CreateList(r.Context(), familyID, actorID, lists.List{
		Name:  req.Name,
		Color: req.Color,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListDTO(created))
}

// DeleteList removes a list and all of its items.
func (h *Handler) DeleteList(w http.ResponseWriter, r *http.Request) {
	familyID, actorID := h.scope(r)
	id := chi.URLParam(r, "id")

	if err := h.Lists.DeleteList(r.Context(), familyID, actorID, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListItems returns the items of one list.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	familyID, _ := h.scope(r)
	listID := chi.URLParam(r, "id")

	items, err := h.Lists.Items(r.Context(), familyID, listID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ItemDTO, len(items))
	for i, it := range items {
		dtos[i] = toItemDTO(it)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddItem adds an item to a list.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	familyID, actorID := h.scope(r)
	listID := chi.URLParam(r, "id")

	var req ItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	it, ok := h.itemFromRequest(w, req)
	if !ok {
		return
	}
	it.ListID = listID

	created, err := h.Lists.AddItem(r.Context(), familyID, actorID, it)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(created))
}

// UpdateItem rewrites an existing item.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	familyID, actorID := h.scope(r)
	id := chi.URLParam(r, "id")

	var req ItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	it, ok := h.itemFromRequest(w, req)
	if !ok {
		return
	}
	it.ID = id

	if err := h.Lists.UpdateItem(r.Context(), familyID, actorID, it); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(it))
}

// DeleteItem removes an item.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	familyID, actorID := h.scope(r)
	id := chi.URLParam(r, "id")

	if err := h.Lists.DeleteItem(r.Context(), familyID, actorID, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DueWindow returns expanded due-date occurrences for a clamped window.
func (h *Handler) DueWindow(w http.ResponseWriter, r *http.Request) {
	familyID, _ := h.scope(r)

	from, to, err := h.parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid window", err)
		return
	}

	occs, err := h.Lists.DueOccurrences(r.Context(), familyID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]OccurrenceDTO, len(occs))
	for i, occ := range occs {
		dtos[i] = toOccurrenceDTO(occ)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) itemFromRequest(w http.ResponseWriter, req ItemRequest) (lists.Item, bool) {
	var dueDate time.Time
	if req.DueDate != "" {
		var err error
		dueDate, err = time.Parse(time.RFC3339, req.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid due_date (use RFC 3339)", err)
			return lists.Item{}, false
		}
	}

	return lists.Item{
		Text:       req.Text,
		Done:       req.Done,
		AssignedTo: req.AssignedTo,
		DueDate:    dueDate,
		Repeat:     recur.Rule(req.Repeat),
	}, true
}

// =============================================================================
// BUDGET HANDLERS
// =============================================================================

// ListTransactions returns transactions for a date range.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	familyID, _ := h.scope(r)

	from, to, err := h.parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid window", err)
		return
	}

	txs, err := h.Budget.TransactionsInRange(r.Context(), familyID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toTransactionDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTransaction records a transaction, expanding repeating ones into a
// full series.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	familyID, actorID := h.scope(r)

	var req TransactionRequestDTO
	if !h.decode(w, r, &req) {
		return
	}

	domainReq, ok := h.transactionRequest(w, req)
	if !ok {
		return
	}

	created, err := h.Budget.AddTransaction(r.Context(), familyID, actorID, domainReq)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]TransactionDTO, len(created))
	for i, t := range created {
		dtos[i] = toTransactionDTO(t)
	}
	writeJSON(w, http.StatusCreated, dtos)
}

// UpdateTransaction edits a single transaction record.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	familyID, actorID := h.scope(r)
	id := chi.URLParam(r, "id")

	var req TransactionRequestDTO
	if !h.decode(w, r, &req) {
		return
	}

	domainReq, ok := h.transactionRequest(w, req)
	if !ok {
		return
	}

	oldRec, err := h.Budget.Transaction(r.Context(), familyID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	newRec := oldRec
	newRec.Type = domainReq.Type
	newRec.Amount = domainReq.Amount
	newRec.Date = domainReq.Date
	newRec.Title = domainReq.Title
	newRec.Category = domainReq.Category

	if err := h.Budget.UpdateTransaction(r.Context(), familyID, actorID, id, oldRec, newRec); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(newRec))
}

// DeleteTransaction removes one record or, with scope=future, the rest of
// its series.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	familyID, actorID := h.scope(r)
	id := chi.URLParam(r, "id")
	scope := budget.DeleteScope(r.URL.Query().Get("scope"))

	rec, err := h.Budget.Transaction(r.Context(), familyID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.Budget.DeleteTransaction(r.Context(), familyID, actorID, rec, scope); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBudget returns the aggregate document for a month ("2025-06").
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	familyID, _ := h.scope(r)
	key := budget.MonthKey(chi.URLParam(r, "monthKey"))

	agg, err := h.Budget.MonthAggregate(r.Context(), familyID, key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(agg))
}

// SetLimit sets the spending limit for a month.
func (h *Handler) SetLimit(w http.ResponseWriter, r *http.Request) {
	familyID, actorID := h.scope(r)
	key := budget.MonthKey(chi.URLParam(r, "monthKey"))

	var req LimitRequest
	if !h.decode(w, r, &req) {
		return
	}

	limit, err := parseAmount(req.Limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit (use a decimal string)", err)
		return
	}

	if err := h.Budget.SetMonthlyLimit(r.Context(), familyID, actorID, key, limit); err != nil {
		writeDomainError(w, err)
		return
	}

	agg, err := h.Budget.MonthAggregate(r.Context(), familyID, key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(agg))
}

func (h *Handler) transactionRequest(w http.ResponseWriter, req TransactionRequestDTO) (budget.TransactionRequest, bool) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return budget.TransactionRequest{}, false
	}

	date, err := time.Parse(time.RFC3339, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use RFC 3339)", err)
		return budget.TransactionRequest{}, false
	}

	return budget.TransactionRequest{
		Type:     budget.TransactionType(req.Type),
		Amount:   amount,
		Date:     date,
		Repeat:   recur.Rule(req.Repeat),
		Title:    req.Title,
		Category: req.Category,
	}, true
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// decode reads and validates a JSON request body, writing the error response
// itself when it fails.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// parseWindow reads from/to query params and clamps them to the allowed
// range around now. Missing bounds default to [now, now+1y).
func (h *Handler) parseWindow(r *http.Request) (time.Time, time.Time, error) {
	now := h.now().UTC()
	from := now
	to := now.AddDate(defaultWindowYears, 0, 0)

	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
	}

	earliest := now.AddDate(0, -windowPastMonths, 0)
	latest := now.AddDate(windowFutureYears, 0, 0)
	if from.Before(earliest) {
		from = earliest
	}
	if to.After(latest) {
		to = latest
	}
	return from, to, nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case budget.IsValidation(err),
		errors.Is(err, calendar.ErrInvalidEvent),
		errors.Is(err, lists.ErrInvalidList):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case budget.IsNotFound(err), errors.Is(err, docstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case docstore.IsMissingIndex(err):
		writeError(w, http.StatusInternalServerError, "A required composite index is not provisioned", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
