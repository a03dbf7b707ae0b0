/*
Package calendar stores family calendar events and expands them for display.

Events are recurring-capable records with a start/end span. The service is a
thin docstore-backed CRUD layer plus Window, which hands the loaded events to
the recurrence expander. Editing or deleting an occurrence always targets the
base event via its OriginalID; there are no per-occurrence exception records.
*/
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hearth/family-engine/docstore"
	"github.com/hearth/family-engine/recur"
)

var ErrInvalidEvent = errors.New("invalid event")

// Event is one persisted calendar record. Identity persists across edits; a
// repeating event is stored once and expanded on read.
type Event struct {
	ID         string
	FamilyID   string
	Title      string
	Color      string
	AssignedTo []string
	Notes      string
	StartAt    time.Time
	EndAt      time.Time
	Repeat     recur.Rule

	CreatedBy string
	CreatedAt time.Time
}

// recur.Entity implementation.

func (e Event) EntityID() string { return e.ID }

func (e Event) Rule() recur.Rule { return e.Repeat }

// Span reports the anchor interval. An event without a start instant is
// malformed and skipped by the expander. A missing end collapses to the
// start (zero duration).
func (e Event) Span() (recur.Span, bool) {
	if e.StartAt.IsZero() {
		return recur.Span{}, false
	}
	end := e.EndAt
	if end.IsZero() {
		end = e.StartAt
	}
	return recur.Span{Start: e.StartAt, End: end}, true
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store docstore.Store
	now   func() time.Time
}

func NewService(store docstore.Store) *Service {
	return &Service{store: store, now: time.Now}
}

func eventsCollection(familyID string) string {
	return fmt.Sprintf("families/%s/events", familyID)
}

func (s *Service) Create(ctx context.Context, familyID, actorID string, ev Event) (Event, error) {
	if err := validateScope(familyID, actorID); err != nil {
		return Event{}, err
	}
	if err := validateEvent(ev); err != nil {
		return Event{}, err
	}

	ev.ID = uuid.NewString()
	ev.FamilyID = familyID
	ev.CreatedBy = actorID
	ev.CreatedAt = s.now().UTC()

	if err := s.store.Set(ctx, eventsCollection(familyID), ev.ID, encodeEvent(ev)); err != nil {
		return Event{}, fmt.Errorf("creating event: %w", err)
	}
	return ev, nil
}

// Update rewrites the base event. A repeating event changes uniformly across
// all of its occurrences.
func (s *Service) Update(ctx context.Context, familyID, actorID string, ev Event) error {
	if err := validateScope(familyID, actorID); err != nil {
		return err
	}
	if ev.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if err := validateEvent(ev); err != nil {
		return err
	}

	existing, err := s.Get(ctx, familyID, ev.ID)
	if err != nil {
		return err
	}
	ev.FamilyID = familyID
	ev.CreatedBy = existing.CreatedBy
	ev.CreatedAt = existing.CreatedAt

	if err := s.store.Set(ctx, eventsCollection(familyID), ev.ID, encodeEvent(ev)); err != nil {
		return fmt.Errorf("updating event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, familyID, actorID, id string) error {
	if err := validateScope(familyID, actorID); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if err := s.store.Delete(ctx, eventsCollection(familyID), id); err != nil {
		return fmt.Errorf("deleting event %s: %w", id, err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, familyID, id string) (Event, error) {
	doc, err := s.store.Get(ctx, eventsCollection(familyID), id)
	if err != nil {
		return Event{}, fmt.Errorf("reading event %s: %w", id, err)
	}
	return decodeEvent(familyID, doc.ID, doc.Data), nil
}

func (s *Service) List(ctx context.Context, familyID string) ([]Event, error) {
	docs, err := s.store.Query(ctx, eventsCollection(familyID))
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	events := make([]Event, 0, len(docs))
	for _, doc := range docs {
		events = append(events, decodeEvent(familyID, doc.ID, doc.Data))
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartAt.Before(events[j].StartAt) })
	return events, nil
}

// Window returns every occurrence of the family's events whose start falls in
// [from, to), plus each event's base occurrence. Callers bound the window.
func (s *Service) Window(ctx context.Context, familyID string, from, to time.Time) ([]recur.Occurrence, error) {
	events, err := s.List(ctx, familyID)
	if err != nil {
		return nil, err
	}
	entities := make([]recur.Entity, len(events))
	for i, ev := range events {
		entities[i] = ev
	}
	return recur.Expand(entities, from, to), nil
}

// =============================================================================
// VALIDATION AND MAPPING
// =============================================================================

func validateScope(familyID, actorID string) error {
	if familyID == "" {
		return fmt.Errorf("%w: missing family", ErrInvalidEvent)
	}
	if actorID == "" {
		return fmt.Errorf("%w: missing actor", ErrInvalidEvent)
	}
	return nil
}

func validateEvent(ev Event) error {
	if ev.Title == "" {
		return fmt.Errorf("%w: missing title", ErrInvalidEvent)
	}
	if ev.StartAt.IsZero() {
		return fmt.Errorf("%w: missing start", ErrInvalidEvent)
	}
	if !ev.EndAt.IsZero() && ev.EndAt.Before(ev.StartAt) {
		return fmt.Errorf("%w: end before start", ErrInvalidEvent)
	}
	if !ev.Repeat.Valid() {
		return fmt.Errorf("%w: unknown repeat rule %q", ErrInvalidEvent, ev.Repeat)
	}
	return nil
}

func encodeEvent(ev Event) map[string]any {
	data := map[string]any{
		"title":     ev.Title,
		"startAt":   ev.StartAt.UTC(),
		"createdBy": ev.CreatedBy,
		"createdAt": ev.CreatedAt.UTC(),
	}
	if !ev.EndAt.IsZero() {
		data["endAt"] = ev.EndAt.UTC()
	}
	if ev.Repeat != "" {
		data["repeat"] = string(ev.Repeat)
	}
	if ev.Color != "" {
		data["color"] = ev.Color
	}
	if len(ev.AssignedTo) > 0 {
		data["assignedTo"] = append([]string(nil), ev.AssignedTo...)
	}
	if ev.Notes != "" {
		data["notes"] = ev.Notes
	}
	return data
}

func decodeEvent(familyID, id string, data map[string]any) Event {
	ev := Event{ID: id, FamilyID: familyID}
	if v, ok := data["title"].(string); ok {
		ev.Title = v
	}
	if v, ok := data["color"].(string); ok {
		ev.Color = v
	}
	if v, ok := data["assignedTo"].([]string); ok {
		ev.AssignedTo = v
	}
	if v, ok := data["notes"].(string); ok {
		ev.Notes = v
	}
	if v, ok := data["startAt"].(time.Time); ok {
		ev.StartAt = v
	}
	if v, ok := data["endAt"].(time.Time); ok {
		ev.EndAt = v
	}
	if v, ok := data["repeat"].(string); ok {
		ev.Repeat = recur.Rule(v)
	}
	if v, ok := data["createdBy"].(string); ok {
		ev.CreatedBy = v
	}
	if v, ok := data["createdAt"].(time.Time); ok {
		ev.CreatedAt = v
	}
	return ev
}
