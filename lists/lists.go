/*
Package lists stores family lists (shopping, chores, to-dos) and their items.

Items may carry a due date and a repeat rule; DueOccurrences expands those
into the concrete due dates a planner screen renders, through the same
expander the calendar uses. Items without a due date are ordinary checklist
rows and never reach the expander.
*/
package lists

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

var ErrInvalidList = errors.New("invalid list")

// List is a named container of items.
type List struct {
	ID        string
	FamilyID  string
	Name      string
	Color     string
	CreatedBy string
	CreatedAt time.Time
}

// Item is one list row. DueDate is optional; when set it is the anchor
// instant for recurrence expansion.
type Item struct {
	ID         string
	ListID     string
	FamilyID   string
	Text       string
	Done       bool
	AssignedTo []string
	DueDate    time.Time
	Repeat     recur.Rule

	CreatedBy string
	CreatedAt time.Time
}

// recur.Entity implementation. Items are single-instant records: the span's
// end equals its start.

func (it Item) EntityID() string { return it.ID }

func (it Item) Rule() recur.Rule { return it.Repeat }

func (it Item) Span() (recur.Span, bool) {
	if it.DueDate.IsZero() {
		return recur.Span{}, false
	}
	return recur.Span{Start: it.DueDate, End: it.DueDate}, true
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

func listsCollection(familyID string) string {
	return fmt.Sprintf("families/%s/lists", familyID)
}

func itemsCollection(familyID string) string {
	return fmt.Sprintf("families/%s/list_items", familyID)
}

func (s *Service) CreateList(ctx context.Context, familyID, actorID string, l List) (List, error) {
	if err := validateScope(familyID, actorID); err != nil {
		return List{}, err
	}
	if l.Name == "" {
		return List{}, fmt.Errorf("%w: missing name", ErrInvalidList)
	}

	l.ID = uuid.NewString()
	l.FamilyID = familyID
	l.CreatedBy = actorID
	l.CreatedAt = s.now().UTC()

	if err := s.store.Set(ctx, listsCollection(familyID), l.ID, encodeList(l)); err != nil {
		return List{}, fmt.Errorf("creating list: %w", err)
	}
	return l, nil
}

func (s *Service) Lists(ctx context.Context, familyID string) ([]List, error) {
	docs, err := s.store.Query(ctx, listsCollection(familyID))
	if err != nil {
		return nil, fmt.Errorf("listing lists: %w", err)
	}
	out := make([]List, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeList(familyID, doc.ID, doc.Data))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Service) DeleteList(ctx context.Context, familyID, actorID, listID string) error {
	if err := validateScope(familyID, actorID); err != nil {
		return err
	}
	if listID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidList)
	}

	// Items go with their list, in bounded batches.
	docs, err := s.store.Query(ctx, itemsCollection(familyID),
		docstore.Where("listId", docstore.OpEqual, listID))
	if err != nil {
		return fmt.Errorf("querying items of list %s: %w", listID, err)
	}
	b := s.store.NewBatch()
	b.Delete(listsCollection(familyID), listID)
	for _, doc := range docs {
		if b.Len() >= docstore.MaxOps {
			if err := b.Commit(ctx); err != nil {
				return fmt.Errorf("deleting list %s: %w", listID, err)
			}
			b = s.store.NewBatch()
		}
		b.Delete(itemsCollection(familyID), doc.ID)
	}
	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("deleting list %s: %w", listID, err)
	}
	return nil
}

func (s *Service) AddItem(ctx context.Context, familyID, actorID string, it Item) (Item, error) {
	if err := validateScope(familyID, actorID); err != nil {
		return Item{}, err
	}
	if it.ListID == "" {
		return Item{}, fmt.Errorf("%w: missing list id", ErrInvalidList)
	}
	if it.Text == "" {
		return Item{}, fmt.Errorf("%w: missing text", ErrInvalidList)
	}
	if !it.Repeat.Valid() {
		return Item{}, fmt.Errorf("%w: unknown repeat rule %q", ErrInvalidList, it.Repeat)
	}
	if it.Repeat.Repeats() && it.DueDate.IsZero() {
		return Item{}, fmt.Errorf("%w: repeating item needs a due date", ErrInvalidList)
	}

	it.ID = uuid.NewString()
	it.FamilyID = familyID
	it.CreatedBy = actorID
	it.CreatedAt = s.now().UTC()

	if err := s.store.Set(ctx, itemsCollection(familyID), it.ID, encodeItem(it)); err != nil {
		return Item{}, fmt.Errorf("adding item: %w", err)
	}
	return it, nil
}

func (s *Service) UpdateItem(ctx context.Context, familyID, actorID string, it Item) error {
	if err := validateScope(familyID, actorID); err != nil {
		return err
	}
	if it.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidList)
	}

	existing, err := s.store.Get(ctx, itemsCollection(familyID), it.ID)
	if err != nil {
		return fmt.Errorf("reading item %s: %w", it.ID, err)
	}
	prev := decodeItem(familyID, existing.ID, existing.Data)
	it.ListID = prev.ListID
	it.FamilyID = familyID
	it.CreatedBy = prev.CreatedBy
	it.CreatedAt = prev.CreatedAt

	if err := s.store.Set(ctx, itemsCollection(familyID), it.ID, encodeItem(it)); err != nil {
		return fmt.Errorf("updating item %s: %w", it.ID, err)
	}
	return nil
}

func (s *Service) DeleteItem(ctx context.Context, familyID, actorID, id string) error {
	if err := validateScope(familyID, actorID); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidList)
	}
	if err := s.store.Delete(ctx, itemsCollection(familyID), id); err != nil {
		return fmt.Errorf("deleting item %s: %w", id, err)
	}
	return nil
}

func (s *Service) Items(ctx context.Context, familyID, listID string) ([]Item, error) {
	docs, err := s.store.Query(ctx, itemsCollection(familyID),
		docstore.Where("listId", docstore.OpEqual, listID))
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	items := make([]Item, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeItem(familyID, doc.ID, doc.Data))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

// DueOccurrences expands every dated item of the family into the concrete
// due dates falling in [from, to), plus each item's base due date.
func (s *Service) DueOccurrences(ctx context.Context, familyID string, from, to time.Time) ([]recur.Occurrence, error) {
	docs, err := s.store.Query(ctx, itemsCollection(familyID))
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	var entities []recur.Entity
	for _, doc := range docs {
		it := decodeItem(familyID, doc.ID, doc.Data)
		if it.DueDate.IsZero() {
			continue // undated checklist row, nothing to expand
		}
		entities = append(entities, it)
	}
	return recur.Expand(entities, from, to), nil
}

// =============================================================================
// VALIDATION AND MAPPING
// =============================================================================

func validateScope(familyID, actorID string) error {
	if familyID == "" {
		return fmt.Errorf("%w: missing family", ErrInvalidList)
	}
	if actorID == "" {
		return fmt.Errorf("%w: missing actor", ErrInvalidList)
	}
	return nil
}

func encodeList(l List) map[string]any {
	data := map[string]any{
		"name":      l.Name,
		"createdBy": l.CreatedBy,
		"createdAt": l.CreatedAt.UTC(),
	}
	if l.Color != "" {
		data["color"] = l.Color
	}
	return data
}

func decodeList(familyID, id string, data map[string]any) List {
	l := List{ID: id, FamilyID: familyID}
	if v, ok := data["name"].(string); ok {
		l.Name = v
	}
	if v, ok := data["color"].(string); ok {
		l.Color = v
	}
	if v, ok := data["createdBy"].(string); ok {
		l.CreatedBy = v
	}
	if v, ok := data["createdAt"].(time.Time); ok {
		l.CreatedAt = v
	}
	return l
}

func encodeItem(it Item) map[string]any {
	data := map[string]any{
		"listId":    it.ListID,
		"text":      it.Text,
		"done":      it.Done,
		"createdBy": it.CreatedBy,
		"createdAt": it.CreatedAt.UTC(),
	}
	if len(it.AssignedTo) > 0 {
		data["assignedTo"] = it.AssignedTo
	}
	if !it.DueDate.IsZero() {
		data["dueDate"] = it.DueDate.UTC()
	}
	if it.Repeat != "" {
		data["repeat"] = string(it.Repeat)
	}
	return data
}

func decodeItem(familyID, id string, data map[string]any) Item {
	it := Item{ID: id, FamilyID: familyID}
	if v, ok := data["listId"].(string); ok {
		it.ListID = v
	}
	if v, ok := data["text"].(string); ok {
		it.Text = v
	}
	if v, ok := data["done"].(bool); ok {
		it.Done = v
	}
	if v, ok := data["assignedTo"].([]string); ok {
		it.AssignedTo = v
	}
	if v, ok := data["dueDate"].(time.Time); ok {
		it.DueDate = v
	}
	if v, ok := data["repeat"].(string); ok {
		it.Repeat = recur.Rule(v)
	}
	if v, ok := data["createdBy"].(string); ok {
		it.CreatedBy = v
	}
	if v, ok := data["createdAt"].(time.Time); ok {
		it.CreatedAt = v
	}
	return it
}
