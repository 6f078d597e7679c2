package detector

import (
	"fmt"

	"github.com/JamesPrial/timeline-core/internal/feasibility"
	"github.com/JamesPrial/timeline-core/pkg/timeline"
)

// LocationConflicts reports a character placed at two different locations by
// events at the same order index or in the same simultaneity group. One finding
// is produced per event pair.
func LocationConflicts(in *Input) []timeline.Finding {
	var groups [][]int
	byOrder := make(map[int]int)
	byLabel := make(map[string]int)
	for i, e := range in.Events {
		if g, ok := byOrder[e.OrderIndex]; ok {
			groups[g] = append(groups[g], i)
		} else {
			byOrder[e.OrderIndex] = len(groups)
			groups = append(groups, []int{i})
		}
		if label := e.Metadata.SimultaneousWith; label != "" {
			if g, ok := byLabel[label]; ok {
				groups[g] = append(groups[g], i)
			} else {
				byLabel[label] = len(groups)
				groups = append(groups, []int{i})
			}
		}
	}

	var findings []timeline.Finding
	for _, group := range groups {
		for x := 0; x < len(group); x++ {
			for y := x + 1; y < len(group); y++ {
				a, b := in.Events[group[x]], in.Events[group[y]]
				if a.LocationID == "" || b.LocationID == "" || a.LocationID == b.LocationID {
					continue
				}
				for _, characterID := range a.CharacterIDs {
					if !b.HasCharacter(characterID) {
						continue
					}
					findings = append(findings, timeline.Finding{
						Type:     timeline.InconsistencyLocationConflict,
						Severity: timeline.SeverityHigh,
						Description: fmt.Sprintf("%s is at %s and %s at the same time",
							in.name(characterID), in.name(a.LocationID), in.name(b.LocationID)),
						AffectedEventIDs: []string{a.ID, b.ID},
						Details: timeline.InconsistencyDetails{
							CharacterID: characterID,
							LocationIDs: []string{a.LocationID, b.LocationID},
						},
					})
					break
				}
			}
		}
	}
	return findings
}

// TimestampOrder reports timestamps that run backwards between consecutive
// comparable timestamped events
func TimestampOrder(in *Input) []timeline.Finding {
	type stamped struct {
		event *timeline.TimelineEvent
		time  timeline.StoryTime
	}
	var findings []timeline.Finding
	// last timestamped event per unit family; kinds never compare with each other
	last := make(map[timeline.TimestampKind]stamped)

	for i := range in.Events {
		e := in.Events[i]
		if !in.linear(e) {
			continue
		}
		t, ok := timeline.ParseStoryTime(e.Timestamp)
		if !ok {
			continue
		}
		if prev, seen := last[t.Kind]; seen && prev.event.OrderIndex != e.OrderIndex && t.Hours < prev.time.Hours {
			findings = append(findings, timeline.Finding{
				Type:             timeline.InconsistencyTimestampViolation,
				Severity:         timeline.SeverityHigh,
				Description:      fmt.Sprintf("%q comes after %q in story order but is earlier in time", e.Timestamp, prev.event.Timestamp),
				AffectedEventIDs: []string{prev.event.ID, e.ID},
				Details: timeline.InconsistencyDetails{
					Timestamps: []string{prev.event.Timestamp, e.Timestamp},
				},
			})
		}
		last[t.Kind] = stamped{event: &in.Events[i], time: t}
	}
	return findings
}

// TravelFeasibility checks each character's consecutive moves against the speed
// model. Legs with unknown distance produce nothing.
func TravelFeasibility(in *Input) []timeline.Finding {
	var findings []timeline.Finding
	for _, m := range in.linearMoves() {
		from, to := in.Events[m.FromIndex], in.Events[m.ToIndex]
		d, ok := in.distance(from, to)
		if !ok {
			continue
		}
		speed := 0.0
		if in.Speed != nil {
			speed = in.Speed(m.CharacterID, to.Metadata.TransportMode)
		}

		leg := feasibility.Evaluate(feasibility.Leg{
			CharacterID: m.CharacterID,
			From:        from,
			To:          to,
			Distance:    d,
			Speed:       speed,
		}, in.Options.Policy)
		if leg.Feasible {
			continue
		}

		f := timeline.Finding{
			Type:             timeline.InconsistencyTravelTimeViolation,
			Severity:         timeline.SeverityMedium,
			AffectedEventIDs: []string{from.ID, to.ID},
			Details: timeline.InconsistencyDetails{
				CharacterID: m.CharacterID,
				LocationIDs: []string{from.LocationID, to.LocationID},
				Leg:         &leg,
			},
		}
		if leg.ExplicitTime {
			f.Type = timeline.InconsistencyTimestampViolation
			f.Severity = timeline.SeverityHigh
			f.Details.Timestamps = []string{from.Timestamp, to.Timestamp}
			f.Description = fmt.Sprintf("%s cannot travel %g from %s to %s in %gh between %q and %q (needs %gh)",
				in.name(m.CharacterID), d, in.name(from.LocationID), in.name(to.LocationID),
				leg.ElapsedTime, from.Timestamp, to.Timestamp, leg.RequiredTime)
		} else {
			f.Description = fmt.Sprintf("%s cannot travel %g from %s to %s in an assumed %gh (needs %gh)",
				in.name(m.CharacterID), d, in.name(from.LocationID), in.name(to.LocationID),
				leg.ElapsedTime, leg.RequiredTime)
		}
		findings = append(findings, f)
	}
	return findings
}

// Resurrections reports appearances of a character after a declared death
// without an explicit resurrection in between. A DEATH event without a Deaths
// list kills every character in it.
func Resurrections(in *Input) []timeline.Finding {
	type death struct {
		eventID    string
		orderIndex int
	}
	dead := make(map[string]death)

	var findings []timeline.Finding
	for _, e := range in.Events {
		if !in.linear(e) {
			continue
		}
		for _, characterID := range e.CharacterIDs {
			d, isDead := dead[characterID]
			if !isDead || d.orderIndex == e.OrderIndex || e.Metadata.Revives(characterID) {
				continue
			}
			findings = append(findings, timeline.Finding{
				Type:             timeline.InconsistencyCharacterResurrection,
				Severity:         timeline.SeverityHigh,
				Description:      fmt.Sprintf("%s appears after dying without being resurrected", in.name(characterID)),
				AffectedEventIDs: []string{d.eventID, e.ID},
				Details: timeline.InconsistencyDetails{
					CharacterID:  characterID,
					DeathEventID: d.eventID,
				},
			})
		}

		for _, characterID := range e.Metadata.Resurrections {
			delete(dead, characterID)
		}
		deaths := e.Metadata.Deaths
		if len(deaths) == 0 && e.EventType == timeline.EventTypeDeath {
			deaths = e.CharacterIDs
		}
		for _, characterID := range deaths {
			if _, already := dead[characterID]; !already {
				dead[characterID] = death{eventID: e.ID, orderIndex: e.OrderIndex}
			}
		}
	}
	return findings
}

// MissingTransitions flags large location changes with no travel event between
// them. These are advisories: LOW, or MEDIUM when the distance is at least three
// times the threshold.
func MissingTransitions(in *Input) []timeline.Finding {
	threshold := in.Options.TransitionThreshold

	var findings []timeline.Finding
	for _, m := range in.linearMoves() {
		from, to := in.Events[m.FromIndex], in.Events[m.ToIndex]
		if to.Metadata.DistanceOverride != nil || in.travel(from) || in.travel(to) {
			continue
		}
		d, ok := in.distance(from, to)
		if !ok || d <= threshold {
			continue
		}
		if in.travelledBetween(m) {
			continue
		}

		severity := timeline.SeverityLow
		if threshold > 0 && d >= 3*threshold {
			severity = timeline.SeverityMedium
		}
		distance := d
		findings = append(findings, timeline.Finding{
			Type:     timeline.InconsistencyMissingTransition,
			Severity: severity,
			Description: fmt.Sprintf("%s moves %g from %s to %s with no travel in between",
				in.name(m.CharacterID), d, in.name(from.LocationID), in.name(to.LocationID)),
			AffectedEventIDs: []string{from.ID, to.ID},
			Details: timeline.InconsistencyDetails{
				CharacterID: m.CharacterID,
				LocationIDs: []string{from.LocationID, to.LocationID},
				Distance:    &distance,
			},
		})
	}
	return findings
}

func (in *Input) travelledBetween(m feasibility.Move) bool {
	for i := m.FromIndex + 1; i < m.ToIndex; i++ {
		e := in.Events[i]
		if in.linear(e) && in.travel(e) && e.HasCharacter(m.CharacterID) {
			return true
		}
	}
	return false
}
