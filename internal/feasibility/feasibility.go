// Package feasibility decides whether a character's movement between two events
// fits within the narrative time that passes between them. Everything here is pure.
package feasibility

import (
	"math"

	"github.com/JamesPrial/timeline-core/pkg/timeline"
)

const (
	// DefaultHoursPerOrderGap assumes one story day per order index step when
	// timestamps cannot be compared
	DefaultHoursPerOrderGap = 24.0
	DefaultTolerance        = 0.0
)

// Policy holds the knobs of the elapsed-time model
type Policy struct {
	HoursPerOrderGap float64
	Tolerance        float64
}

// DefaultPolicy returns the engine defaults
func DefaultPolicy() Policy {
	return Policy{HoursPerOrderGap: DefaultHoursPerOrderGap, Tolerance: DefaultTolerance}
}

// WithOverrides applies the non-nil fields of a manuscript policy
func (p Policy) WithOverrides(o timeline.ValidationPolicy) Policy {
	if o.HoursPerOrderGap != nil {
		p.HoursPerOrderGap = *o.HoursPerOrderGap
	}
	if o.Tolerance != nil {
		p.Tolerance = *o.Tolerance
	}
	return p
}

// Elapsed returns the narrative hours between two events. explicit is true when
// both timestamps parse in a common unit; otherwise the order index gap is
// scaled by the heuristic.
func Elapsed(from, to timeline.TimelineEvent, policy Policy) (hours float64, explicit bool) {
	if h, ok := timeline.ElapsedHours(from.Timestamp, to.Timestamp); ok {
		return h, true
	}
	gap := to.OrderIndex - from.OrderIndex
	if gap < 0 {
		gap = -gap
	}
	return float64(gap) * policy.HoursPerOrderGap, false
}

// RequiredTime is the travel time in hours for distance at speed
func RequiredTime(distance, speed float64) float64 {
	if !(speed > 0) {
		return math.Inf(1)
	}
	return distance / speed
}

// Feasible reports elapsed >= required - tolerance. The boundary is feasible.
func Feasible(elapsed, required, tolerance float64) bool {
	return elapsed >= required-tolerance
}

// Leg is one character's movement between two located appearances
type Leg struct {
	CharacterID string
	From        timeline.TimelineEvent
	To          timeline.TimelineEvent
	Distance    float64
	Speed       float64
}

// Evaluate computes the travel leg result
func Evaluate(leg Leg, policy Policy) timeline.TravelLeg {
	required := RequiredTime(leg.Distance, leg.Speed)
	elapsed, explicit := Elapsed(leg.From, leg.To, policy)
	return timeline.TravelLeg{
		FromEventID:  leg.From.ID,
		ToEventID:    leg.To.ID,
		CharacterID:  leg.CharacterID,
		Distance:     leg.Distance,
		Speed:        leg.Speed,
		RequiredTime: required,
		ElapsedTime:  elapsed,
		Feasible:     Feasible(elapsed, required, policy.Tolerance),
		ExplicitTime: explicit,
	}
}

// Move is a pair of consecutive located appearances of one character.
// FromIndex and ToIndex point into the event slice the move was built from.
type Move struct {
	CharacterID string
	FromIndex   int
	ToIndex     int
}

// Moves pairs each character's consecutive located appearances, in story order.
// Events for which skip returns true are ignored. Characters are visited in order
// of first appearance so the result is deterministic.
func Moves(events []timeline.TimelineEvent, skip func(timeline.TimelineEvent) bool) []Move {
	var order []string
	last := make(map[string]int)

	var moves []Move
	for i, event := range events {
		if event.LocationID == "" || (skip != nil && skip(event)) {
			continue
		}
		for _, characterID := range event.CharacterIDs {
			prev, seen := last[characterID]
			if !seen {
				order = append(order, characterID)
			} else {
				moves = append(moves, Move{CharacterID: characterID, FromIndex: prev, ToIndex: i})
			}
			last[characterID] = i
		}
	}

	// Group by character, keeping story order within each character
	rank := make(map[string]int, len(order))
	for i, c := range order {
		rank[c] = i
	}
	grouped := make([]Move, 0, len(moves))
	buckets := make([][]Move, len(order))
	for _, m := range moves {
		buckets[rank[m.CharacterID]] = append(buckets[rank[m.CharacterID]], m)
	}
	for _, b := range buckets {
		grouped = append(grouped, b...)
	}
	return grouped
}
