/*
expand.go - Windowed occurrence expansion

PURPOSE:
  Turns persisted recurring records into the ephemeral occurrences a
  calendar or list screen renders. Occurrences are computed fresh on every
  call, never stored, and must not be mistaken for persisted records:
  editing or deleting "this occurrence" resolves to OriginalID and applies
  to the single base record, affecting the whole series.

BASE OCCURRENCE RULE:
  The occurrence at the entity's own anchor is always emitted, even when it
  falls outside the requested window. Callers rely on it for edit
  navigation: it is the one occurrence guaranteed to carry the authoritative
  OriginalID for a loaded entity. IsBase marks it so display layers can
  filter it out when it lies off-screen.

WINDOW POLICY:
  Non-base occurrences are emitted iff their start lies in
  [windowStart, windowEnd). Instants before windowStart are still computed
  (to advance the sequence) but not emitted. No upper bound on the window is
  enforced here; callers bound it (the API layer clamps to roughly 3 months
  back and 10 years forward) to keep daily/weekly rules from producing
  unbounded output.

LIMITATION:
  There are no per-occurrence exception records. One future occurrence of a
  repeating entity cannot be edited independently; only the base record can
  change, uniformly across the series.
*/
package recur

import (
	"fmt"
	"log"
	"sort"
	"time"
)

// =============================================================================
// ENTITY - What the expander needs from a recurring record
// =============================================================================

// Span is an entity's anchor interval. Single-instant records (list items)
// report End equal to Start.
type Span struct {
	Start time.Time
	End   time.Time
}

func (s Span) Duration() time.Duration { return s.End.Sub(s.Start) }

// Entity is a persisted recurring-capable record. Domain packages (calendar
// events, list items) implement it; the expander knows nothing else about
// them.
type Entity interface {
	// EntityID returns the persisted record's identity.
	EntityID() string

	// Rule returns the record's recurrence rule.
	Rule() Rule

	// Span returns the anchor interval. ok=false marks a malformed record
	// with no anchor instant; it is skipped, not fatal.
	Span() (span Span, ok bool)
}

// =============================================================================
// OCCURRENCE - Derived, ephemeral, never persisted
// =============================================================================

// Occurrence is one point of an entity's recurrence sequence. The ID is
// synthetic, unique per occurrence and stable across re-computation for a
// given window; OriginalID is a back-reference for edit targeting, never an
// ownership relation.
type Occurrence struct {
	ID         string
	OriginalID string
	Start      time.Time
	End        time.Time
	IsBase     bool

	// Source is the owning entity, kept so display layers can read the
	// payload (title, color, assignee) without another lookup.
	Source Entity
}

// =============================================================================
// EXPAND
// =============================================================================

// Expand produces every concrete occurrence of the given entities whose
// start falls in [windowStart, windowEnd), plus each entity's base
// occurrence regardless of window. The result is sorted by start instant.
func Expand(entities []Entity, windowStart, windowEnd time.Time) []Occurrence {
	var out []Occurrence

	for _, e := range entities {
		span, ok := e.Span()
		if !ok {
			log.Printf("recur: skipping entity %s with no anchor instant", e.EntityID())
			continue
		}

		duration := span.Duration()

		// Base occurrence: always emitted, window or not.
		out = append(out, occurrenceAt(e, span.Start, duration, true))

		rule := e.Rule()
		if !rule.Repeats() {
			continue
		}

		current := span.Start
		for {
			current = Next(current, rule)
			if !current.Before(windowEnd) {
				break
			}
			if current.Before(windowStart) {
				continue // computed to advance the sequence, not emitted
			}
			out = append(out, occurrenceAt(e, current, duration, false))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// occurrenceAt builds the occurrence starting at the given instant,
// preserving the base entity's duration.
func occurrenceAt(e Entity, start time.Time, duration time.Duration, base bool) Occurrence {
	return Occurrence{
		ID:         fmt.Sprintf("%s@%s", e.EntityID(), start.UTC().Format(time.RFC3339)),
		OriginalID: e.EntityID(),
		Start:      start,
		End:        start.Add(duration),
		IsBase:     base,
		Source:     e,
	}
}
