package calendar_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearth/family-engine/calendar"
	"github.com/hearth/family-engine/docstore/memory"
	"github.com/hearth/family-engine/recur"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	testFamily = "fam-1"
	testActor  = "parent-1"
)

func newTestService() *calendar.Service {
	return calendar.NewService(memory.New())
}

func at(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func soccerPractice() calendar.Event {
	return calendar.Event{
		Title:      "Soccer practice",
		Color:      "green",
		AssignedTo: []string{"kid-1"},
		StartAt:    at(2025, time.June, 2, 16),
		EndAt:      at(2025, time.June, 2, 17),
		Repeat:     recur.RuleWeekly,
	}
}

// =============================================================================
// CRUD TESTS
// =============================================================================

func TestCreate_AssignsIdentityAndStamps(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	created, err := s.Create(ctx, testFamily, testActor, soccerPractice())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, testActor, created.CreatedBy)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.Get(ctx, testFamily, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Soccer practice", got.Title)
	assert.Equal(t, []string{"kid-1"}, got.AssignedTo)
	assert.Equal(t, recur.RuleWeekly, got.Repeat)
}

func TestCreate_Validation(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		mod  func(ev *calendar.Event)
	}{
		{"missing title", func(ev *calendar.Event) { ev.Title = "" }},
		{"missing start", func(ev *calendar.Event) { ev.StartAt = time.Time{} }},
		{"end before start", func(ev *calendar.Event) { ev.EndAt = ev.StartAt.Add(-time.Hour) }},
		{"unknown rule", func(ev *calendar.Event) { ev.Repeat = "Fortnightly" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := soccerPractice()
			tc.mod(&ev)
			_, err := s.Create(ctx, testFamily, testActor, ev)
			require.Error(t, err)
			assert.ErrorIs(t, err, calendar.ErrInvalidEvent)
		})
	}

	_, err := s.Create(ctx, "", testActor, soccerPractice())
	assert.ErrorIs(t, err, calendar.ErrInvalidEvent)
}

func TestUpdate_PreservesProvenance(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	created, err := s.Create(ctx, testFamily, testActor, soccerPractice())
	require.NoError(t, err)

	edit := created
	edit.Title = "Soccer match"
	require.NoError(t, s.Update(ctx, testFamily, "other-parent", edit))

	got, err := s.Get(ctx, testFamily, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Soccer match", got.Title)
	assert.Equal(t, testActor, got.CreatedBy, "creator must survive edits by others")
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
}

func TestDelete_RemovesEvent(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	created, err := s.Create(ctx, testFamily, testActor, soccerPractice())
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, testFamily, testActor, created.ID))
	_, err = s.Get(ctx, testFamily, created.ID)
	assert.Error(t, err)
}

func TestList_SortedByStart(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	later := soccerPractice()
	later.StartAt = at(2025, time.June, 9, 16)
	later.EndAt = at(2025, time.June, 9, 17)
	_, err := s.Create(ctx, testFamily, testActor, later)
	require.NoError(t, err)
	_, err = s.Create(ctx, testFamily, testActor, soccerPractice())
	require.NoError(t, err)

	events, err := s.List(ctx, testFamily)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].StartAt.Before(events[1].StartAt))
}

// =============================================================================
// WINDOW EXPANSION TESTS
// =============================================================================

func TestWindow_ExpandsRepeatingEvents(t *testing.T) {
	// GIVEN: A weekly event and a one-time event
	// WHEN: Expanding a four-week window
	// THEN: The weekly one yields an occurrence per week, the other just one

	s := newTestService()
	ctx := context.Background()

	_, err := s.Create(ctx, testFamily, testActor, soccerPractice())
	require.NoError(t, err)

	oneOff := calendar.Event{
		Title:   "Dentist",
		StartAt: at(2025, time.June, 10, 9),
		EndAt:   at(2025, time.June, 10, 10),
		Repeat:  recur.RuleOneTime,
	}
	_, err = s.Create(ctx, testFamily, testActor, oneOff)
	require.NoError(t, err)

	occs, err := s.Window(ctx, testFamily,
		at(2025, time.June, 2, 0), at(2025, time.June, 30, 0))
	require.NoError(t, err)

	weekly, dentist := 0, 0
	for _, occ := range occs {
		src, ok := occ.Source.(calendar.Event)
		require.True(t, ok)
		switch src.Title {
		case "Soccer practice":
			weekly++
			assert.Equal(t, time.Hour, occ.End.Sub(occ.Start))
		case "Dentist":
			dentist++
		}
	}
	assert.Equal(t, 4, weekly, "June 2, 9, 16, 23")
	assert.Equal(t, 1, dentist)
}

func TestWindow_EmptyFamily_NoOccurrences(t *testing.T) {
	s := newTestService()
	occs, err := s.Window(context.Background(), testFamily,
		at(2025, time.June, 1, 0), at(2025, time.July, 1, 0))
	require.NoError(t, err)
	assert.Empty(t, occs)
}
