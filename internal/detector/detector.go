// Package detector finds contradictions in a manuscript's declared narrative
// facts. Detection is pure: it reads its input and returns findings.
package detector

import (
	"context"
	"log/slog"
	"sort"

	"github.com/JamesPrial/timeline-core/internal/feasibility"
	"github.com/JamesPrial/timeline-core/pkg/logging"
	"github.com/JamesPrial/timeline-core/pkg/timeline"
)

// DefaultTransitionThreshold is the distance above which an unexplained location
// change is reported
const DefaultTransitionThreshold = 50.0

// Options are the policy knobs of a detector run
type Options struct {
	Policy              feasibility.Policy
	TransitionThreshold float64
	// TravelTypes mark events that explain a change of location.
	TravelTypes map[timeline.EventType]bool
	// NonLinearTypes are excluded from every chronology rule.
	NonLinearTypes map[timeline.EventType]bool
}

// DefaultOptions returns the engine defaults
func DefaultOptions() Options {
	return Options{
		Policy:              feasibility.DefaultPolicy(),
		TransitionThreshold: DefaultTransitionThreshold,
		TravelTypes: map[timeline.EventType]bool{
			timeline.EventTypeTravel:  true,
			timeline.EventTypeTransit: true,
		},
		NonLinearTypes: map[timeline.EventType]bool{
			timeline.EventTypeFlashback: true,
			timeline.EventTypeDream:     true,
		},
	}
}

// Input is everything a detector run reads
type Input struct {
	ManuscriptID string
	// Events must be in story order.
	Events []timeline.TimelineEvent
	// Distance returns ok=false when the distance is unknown.
	Distance func(a, b string) (float64, bool)
	// Speed returns the effective speed for a character and transport mode.
	Speed func(characterID, mode string) float64
	// Names optionally maps entity ids to display names for descriptions.
	Names   map[string]string
	Options Options
}

// Rule is one independent class of checks
type Rule func(in *Input) []timeline.Finding

// Rules lists the rule classes in evaluation order. When two rules produce the
// same dedup key the earlier rule's finding is kept.
var Rules = []Rule{
	LocationConflicts,
	TimestampOrder,
	TravelFeasibility,
	Resurrections,
	MissingTransitions,
}

// Detect runs every rule and returns the deduplicated findings sorted by dedup key
func Detect(ctx context.Context, in Input) []timeline.Finding {
	logger := logging.GetGlobalLogger("detector")

	var all []timeline.Finding
	for _, rule := range Rules {
		all = append(all, rule(&in)...)
	}
	findings := Dedup(all)

	logger.DebugContext(ctx, "Detection finished",
		slog.String("manuscript_id", in.ManuscriptID),
		slog.Int("events", len(in.Events)),
		slog.Int("raw_findings", len(all)),
		slog.Int("findings", len(findings)),
	)
	return findings
}

// Dedup keeps the first finding per (type, sorted affected ids) key and sorts by key
func Dedup(findings []timeline.Finding) []timeline.Finding {
	seen := make(map[string]struct{}, len(findings))
	out := make([]timeline.Finding, 0, len(findings))
	for _, f := range findings {
		f.AffectedEventIDs = timeline.SortedIDs(f.AffectedEventIDs)
		key := f.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (in *Input) name(id string) string {
	if n, ok := in.Names[id]; ok && n != "" {
		return n
	}
	return id
}

func (in *Input) linear(e timeline.TimelineEvent) bool {
	return !in.Options.NonLinearTypes[e.EventType]
}

func (in *Input) travel(e timeline.TimelineEvent) bool {
	return in.Options.TravelTypes[e.EventType]
}

// simultaneous reports whether two events happen at the same story moment
func simultaneous(a, b timeline.TimelineEvent) bool {
	if a.OrderIndex == b.OrderIndex {
		return true
	}
	return a.Metadata.SimultaneousWith != "" && a.Metadata.SimultaneousWith == b.Metadata.SimultaneousWith
}

// linearMoves pairs consecutive located appearances, skipping non-linear events
// and moves that stay in place or happen at the same moment. A move out of a
// simultaneous block starts from every member of the block, so the location left
// behind by a conflict is still checked against the next appearance.
func (in *Input) linearMoves() []feasibility.Move {
	var moves []feasibility.Move
	var block []int
	character := ""
	for _, m := range feasibility.Moves(in.Events, func(e timeline.TimelineEvent) bool { return !in.linear(e) }) {
		if m.CharacterID != character {
			character, block = m.CharacterID, nil
		}
		from, to := in.Events[m.FromIndex], in.Events[m.ToIndex]
		if simultaneous(from, to) {
			if len(block) == 0 {
				block = append(block, m.FromIndex)
			}
			block = append(block, m.ToIndex)
			continue
		}

		sources := block
		if len(sources) == 0 {
			sources = []int{m.FromIndex}
		}
		block = nil
		for _, src := range sources {
			origin := in.Events[src]
			if origin.LocationID == to.LocationID || simultaneous(origin, to) {
				continue
			}
			moves = append(moves, feasibility.Move{CharacterID: m.CharacterID, FromIndex: src, ToIndex: m.ToIndex})
		}
	}
	return moves
}

// distance prefers the author's declared override on the later event
func (in *Input) distance(from, to timeline.TimelineEvent) (float64, bool) {
	if d := to.Metadata.DistanceOverride; d != nil {
		return *d, true
	}
	if in.Distance == nil {
		return 0, false
	}
	return in.Distance(from.LocationID, to.LocationID)
}
