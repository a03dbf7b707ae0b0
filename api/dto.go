/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Calendar:
    EventDTO, EventRequest, OccurrenceDTO

  Lists:
    ListDTO, ListRequest, ItemDTO, ItemRequest

  Budget:
    TransactionDTO, TransactionRequestDTO, BudgetDTO, LimitRequest

VALIDATION:
  Request types carry validate struct tags; handlers run them through
  go-playground/validator before touching domain logic. Monetary amounts
  travel as decimal strings so clients never see float rounding.

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Router setup and middleware
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hearth/family-engine/budget"
	"github.com/hearth/family-engine/calendar"
	"github.com/hearth/family-engine/lists"
	"github.com/hearth/family-engine/recur"
)

// =============================================================================
// CALENDAR TYPES
// =============================================================================

// EventDTO represents a calendar event in API responses.
type EventDTO struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Color      string   `json:"color,omitempty"`
	AssignedTo []string `json:"assigned_to,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	StartAt    string   `json:"start_at"`
	EndAt      string   `json:"end_at"`
	Repeat     string   `json:"repeat,omitempty"`
	CreatedBy  string   `json:"created_by,omitempty"`
	CreatedAt  string   `json:"created_at,omitempty"`
}

// EventRequest is the request to create or update an event.
type EventRequest struct {
	Title      string   `json:"title" validate:"required,max=200"`
	Color      string   `json:"color" validate:"max=32"`
	AssignedTo []string `json:"assigned_to"`
	Notes      string   `json:"notes" validate:"max=2000"`
	StartAt    string   `json:"start_at" validate:"required"`
	EndAt      string   `json:"end_at"`
	Repeat     string   `json:"repeat"`
}

// OccurrenceDTO is one expanded occurrence of an event or list item.
type OccurrenceDTO struct {
	ID         string `json:"id"`
	OriginalID string `json:"original_id"`
	Title      string `json:"title,omitempty"`
	Color      string `json:"color,omitempty"`
	StartAt    string `json:"start_at"`
	EndAt      string `json:"end_at"`
	IsBase     bool   `json:"is_base"`
}

// =============================================================================
// LIST TYPES
// =============================================================================

// ListDTO represents a list in API responses.
type ListDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ListRequest is the request to create a list.
type ListRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Color string `json:"color" validate:"max=32"`
}

// ItemDTO represents a list item in API responses.
type ItemDTO struct {
	ID         string   `json:"id"`
	ListID     string   `json:"list_id"`
	Text       string   `json:"text"`
	Done       bool     `json:"done"`
	AssignedTo []string `json:"assigned_to,omitempty"`
	DueDate    string   `json:"due_date,omitempty"`
	Repeat     string   `json:"repeat,omitempty"`
	CreatedBy  string   `json:"created_by,omitempty"`
	CreatedAt  string   `json:"created_at,omitempty"`
}

// ItemRequest is the request to create or update a list item.
type ItemRequest struct {
	Text       string   `json:"text" validate:"required,max=500"`
	Done       bool     `json:"done"`
	AssignedTo []string `json:"assigned_to"`
	DueDate    string   `json:"due_date"`
	Repeat     string   `json:"repeat"`
}

// =============================================================================
// BUDGET TYPES
// =============================================================================

// TransactionDTO represents a budget transaction in API responses.
type TransactionDTO struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	Date      string `json:"date"`
	Repeat    string `json:"repeat,omitempty"`
	SeriesID  string `json:"series_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Category  string `json:"category,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// TransactionRequestDTO is the request to create or update a transaction.
// Amount is a decimal string ("125.50"), never a float.
type TransactionRequestDTO struct {
	Type     string `json:"type" validate:"required,oneof=Expense Income"`
	Amount   string `json:"amount" validate:"required"`
	Date     string `json:"date" validate:"required"`
	Repeat   string `json:"repeat"`
	Title    string `json:"title" validate:"max=200"`
	Category string `json:"category" validate:"max=100"`
}

// BudgetDTO represents one month's aggregate document.
type BudgetDTO struct {
	MonthKey    string `json:"month_key"`
	Month       int    `json:"month"`
	Year        int    `json:"year"`
	TotalSpent  string `json:"total_spent"`
	TotalIncome string `json:"total_income"`
	TotalLimit  string `json:"total_limit"`
	Remaining   string `json:"remaining"`
}

// LimitRequest sets the spending limit for a month.
type LimitRequest struct {
	Limit string `json:"limit" validate:"required"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEventDTO(ev calendar.Event) EventDTO {
	return EventDTO{
		ID:         ev.ID,
		Title:      ev.Title,
		Color:      ev.Color,
		AssignedTo: ev.AssignedTo,
		Notes:      ev.Notes,
		StartAt:    ev.StartAt.Format(time.RFC3339),
		EndAt:      ev.EndAt.Format(time.RFC3339),
		Repeat:     string(ev.Repeat),
		CreatedBy:  ev.CreatedBy,
		CreatedAt:  formatOptional(ev.CreatedAt),
	}
}

func toOccurrenceDTO(occ recur.Occurrence) OccurrenceDTO {
	dto := OccurrenceDTO{
		ID:         occ.ID,
		OriginalID: occ.OriginalID,
		StartAt:    occ.Start.Format(time.RFC3339),
		EndAt:      occ.End.Format(time.RFC3339),
		IsBase:     occ.IsBase,
	}
	switch src := occ.Source.(type) {
	case calendar.Event:
		dto.Title = src.Title
		dto.Color = src.Color
	case lists.Item:
		dto.Title = src.Text
	}
	return dto
}

func toListDTO(l lists.List) ListDTO {
	return ListDTO{
		ID:        l.ID,
		Name:      l.Name,
		Color:     l.Color,
		CreatedBy: l.CreatedBy,
		CreatedAt: formatOptional(l.CreatedAt),
	}
}

func toItemDTO(it lists.Item) ItemDTO {
	return ItemDTO{
		ID:         it.ID,
		ListID:     it.ListID,
		Text:       it.Text,
		Done:       it.Done,
		AssignedTo: it.AssignedTo,
		DueDate:    formatOptional(it.DueDate),
		Repeat:     string(it.Repeat),
		CreatedBy:  it.CreatedBy,
		CreatedAt:  formatOptional(it.CreatedAt),
	}
}

func toTransactionDTO(t budget.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:        t.ID,
		Type:      string(t.Type),
		Amount:    t.Amount.String(),
		Date:      t.Date.Format(time.RFC3339),
		Repeat:    string(t.Repeat),
		SeriesID:  t.SeriesID,
		Title:     t.Title,
		Category:  t.Category,
		CreatedBy: t.CreatedBy,
		CreatedAt: formatOptional(t.CreatedAt),
	}
}

func toBudgetDTO(a budget.Aggregate) BudgetDTO {
	return BudgetDTO{
		MonthKey:    string(a.MonthKey),
		Month:       int(a.Month),
		Year:        a.Year,
		TotalSpent:  a.TotalSpent.String(),
		TotalIncome: a.TotalIncome.String(),
		TotalLimit:  a.TotalLimit.String(),
		Remaining:   a.Remaining().String(),
	}
}

func formatOptional(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
