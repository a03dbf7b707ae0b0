/*
Package recur expands recurring organizer records into concrete occurrences.

PURPOSE:
  Calendar events and list items carry a repeat rule ("Every week",
  "Every month", ...). The UI never stores the repetitions; it asks this
  package for every occurrence falling inside the window it is about to
  render. The package is a leaf: pure date arithmetic, no store access.

KEY CONCEPTS IN THIS FILE (rule.go):
  - Rule: the repeat field vocabulary shared by events, list items and
    budget transactions
  - Next: the single step function that advances an instant by one rule
    application

DESIGN PRINCIPLES:
  1. One step function: every consumer (calendar expansion, list due dates,
     repeating transaction generation) advances dates through Next, so the
     sequences can never drift apart.
  2. Calendar-aware: month and year steps go through time.AddDate, which
     preserves the day-of-month where valid and normalizes overflow
     (Jan 31 + 1 month = Mar 2/3) the way the product always has.
  3. Defensive default: an unknown rule advances by one day rather than
     looping forever or panicking.

SEE ALSO:
  - expand.go: windowed occurrence expansion
  - budget/engine.go: repeating transaction materialization
*/
package recur

import "time"

// =============================================================================
// RULE - Repeat vocabulary
// =============================================================================

// Rule is the repeat field carried by events, list items and transactions.
// The zero value means non-repeating.
type Rule string

const (
	RuleOneTime  Rule = "One time only"
	RuleDaily    Rule = "Every day"
	RuleWeekdays Rule = "Every weekday"
	RuleWeekly   Rule = "Every week"
	RuleBiweekly Rule = "Every two weeks"
	RuleMonthly  Rule = "Every month"
	RuleYearly   Rule = "Every year"
)

// Rules lists every repeating rule, in the order the product presents them.
var Rules = []Rule{
	RuleOneTime, RuleDaily, RuleWeekdays, RuleWeekly,
	RuleBiweekly, RuleMonthly, RuleYearly,
}

// Repeats reports whether the rule produces occurrences beyond the anchor.
// Absent, "One time only" and the legacy "Never" value all mean no.
func (r Rule) Repeats() bool {
	return r != "" && r != RuleOneTime && r != "Never"
}

// Valid reports whether r is a recognized rule value. The empty string is
// valid (non-repeating).
func (r Rule) Valid() bool {
	if r == "" || r == "Never" {
		return true
	}
	for _, known := range Rules {
		if r == known {
			return true
		}
	}
	return false
}

// =============================================================================
// NEXT - One rule step
// =============================================================================

// Next returns the instant one rule application after current.
//
// "Every weekday" lands on the next day, then skips a Saturday landing by two
// more days and a Sunday landing by one, so a Friday anchor yields the
// following Monday. Unknown rules fall back to one day.
func Next(current time.Time, rule Rule) time.Time {
	switch rule {
	case RuleDaily:
		return current.AddDate(0, 0, 1)

	case RuleWeekdays:
		next := current.AddDate(0, 0, 1)
		switch next.Weekday() {
		case time.Saturday:
			next = next.AddDate(0, 0, 2)
		case time.Sunday:
			next = next.AddDate(0, 0, 1)
		}
		return next

	case RuleWeekly:
		return current.AddDate(0, 0, 7)

	case RuleBiweekly:
		return current.AddDate(0, 0, 14)

	case RuleMonthly:
		return current.AddDate(0, 1, 0)

	case RuleYearly:
		return current.AddDate(1, 0, 0)

	default:
		return current.AddDate(0, 0, 1)
	}
}
