package storage

import (
	"context"
	"sort"
	"time"

	"github.com/JamesPrial/timeline-core/pkg/timeline"
)

// Backend persists everything the consistency engine reads and writes.
// Lookups of a single record return (nil, nil) when the record does not exist.
type Backend interface {
	// Identity records owned by the wider persistence layer
	UpsertEntities(ctx context.Context, entities []timeline.Entity) error
	GetEntity(ctx context.Context, id string) (*timeline.Entity, error)
	UpsertManuscript(ctx context.Context, manuscript timeline.Manuscript) error
	GetManuscript(ctx context.Context, id string) (*timeline.Manuscript, error)
	ListManuscripts(ctx context.Context, worldID string) ([]timeline.Manuscript, error)
	DeleteManuscript(ctx context.Context, id string) error

	// Events. Writes also maintain the derived character location rows.
	CreateEvent(ctx context.Context, event timeline.TimelineEvent) error
	UpdateEvent(ctx context.Context, event timeline.TimelineEvent) error
	DeleteEvent(ctx context.Context, id string) error
	GetEvent(ctx context.Context, id string) (*timeline.TimelineEvent, error)
	ListEvents(ctx context.Context, manuscriptID string) ([]timeline.TimelineEvent, error)
	LocationAt(ctx context.Context, manuscriptID, characterID string, orderIndex int) (*timeline.CharacterLocation, error)

	// Distances are stored under the canonical (LocationA < LocationB) key
	SetDistance(ctx context.Context, distance timeline.LocationDistance) error
	GetDistance(ctx context.Context, scopeID, locationA, locationB string) (*timeline.LocationDistance, error)

	// Travel profiles are unique per (manuscript, subject, transport mode)
	ListProfiles(ctx context.Context, manuscriptID string) ([]timeline.TravelSpeedProfile, error)
	CreateProfileIfAbsent(ctx context.Context, profile timeline.TravelSpeedProfile) (*timeline.TravelSpeedProfile, error)
	UpsertProfile(ctx context.Context, profile timeline.TravelSpeedProfile) (*timeline.TravelSpeedProfile, error)

	GetPolicy(ctx context.Context, manuscriptID string) (*timeline.ValidationPolicy, error)
	SetPolicy(ctx context.Context, policy timeline.ValidationPolicy) error

	// ReconcileInconsistencies replaces the open finding set of a manuscript in
	// one atomic step, keyed on the dedup key
	ReconcileInconsistencies(ctx context.Context, manuscriptID string, findings []timeline.Finding, now time.Time) (timeline.ReconcileResult, error)
	ListInconsistencies(ctx context.Context, manuscriptID string, includeResolved bool) ([]timeline.Inconsistency, error)

	Close() error
}

// CanonicalPair orders a location pair so each undirected edge has one key
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// deriveLocations builds the character location rows for an event
func deriveLocations(event timeline.TimelineEvent) []timeline.CharacterLocation {
	if event.LocationID == "" {
		return nil
	}
	rows := make([]timeline.CharacterLocation, 0, len(event.CharacterIDs))
	for _, characterID := range event.CharacterIDs {
		rows = append(rows, timeline.CharacterLocation{
			ManuscriptID: event.ManuscriptID,
			CharacterID:  characterID,
			EventID:      event.ID,
			LocationID:   event.LocationID,
			OrderIndex:   event.OrderIndex,
		})
	}
	return rows
}

// sortInconsistencies orders findings by dedup key, which groups them by type
func sortInconsistencies(items []timeline.Inconsistency) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Key() < items[j].Key() })
}
