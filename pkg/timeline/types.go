package timeline

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EntityKind represents the kind of a story-world entity the engine can reference
type EntityKind string

const (
	EntityKindCharacter EntityKind = "CHARACTER"
	EntityKindLocation  EntityKind = "LOCATION"
)

// Entity is the identity record of a character or location owned by the persistence layer
type Entity struct {
	ID        string     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Kind      EntityKind `json:"kind" db:"kind"`
	WorldID   string     `json:"worldId" db:"world_id"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}

// Manuscript identifies a manuscript and the world it belongs to
type Manuscript struct {
	ID        string    `json:"id" db:"id"`
	WorldID   string    `json:"worldId" db:"world_id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// EventType classifies a narrative event
type EventType string

const (
	EventTypeScene     EventType = "SCENE"
	EventTypeChapter   EventType = "CHAPTER"
	EventTypeFlashback EventType = "FLASHBACK"
	EventTypeDream     EventType = "DREAM"
	EventTypeTravel    EventType = "TRAVEL"
	EventTypeTransit   EventType = "TRANSIT"
	EventTypeDeath     EventType = "DEATH"
	EventTypeOther     EventType = "OTHER"
)

// ParseEventType normalizes a caller-supplied event type. Unknown values are kept
// verbatim (upper-cased) so callers can define their own conventions.
func ParseEventType(s string) EventType {
	s = strings.TrimSpace(s)
	if s == "" {
		return EventTypeScene
	}
	return EventType(cases.Upper(language.Und).String(s))
}

// EventMetadata holds the declared narrative facts attached to an event.
// Notes is the only free-form part.
type EventMetadata struct {
	// Deaths lists characters who die in this event.
	Deaths []string `json:"deaths,omitempty" mapstructure:"deaths"`
	// Resurrections lists characters explicitly brought back in this event.
	Resurrections []string `json:"resurrections,omitempty" mapstructure:"resurrections"`
	// SimultaneousWith groups events that happen at the same moment.
	SimultaneousWith string `json:"simultaneousWith,omitempty" mapstructure:"simultaneousWith"`
	// TransportMode selects a mode-specific travel profile for travel into this event.
	TransportMode string `json:"transportMode,omitempty" mapstructure:"transportMode"`
	// DistanceOverride is the author-declared distance travelled to reach this event.
	DistanceOverride *float64          `json:"distanceOverride,omitempty" mapstructure:"distanceOverride"`
	Notes            map[string]string `json:"notes,omitempty" mapstructure:"notes"`
}

// Kills reports whether the character dies in this event
func (m EventMetadata) Kills(characterID string) bool {
	return contains(m.Deaths, characterID)
}

// Revives reports whether the character is explicitly resurrected in this event
func (m EventMetadata) Revives(characterID string) bool {
	return contains(m.Resurrections, characterID)
}

// TimelineEvent is a discrete narrative occurrence anchored in story order
type TimelineEvent struct {
	ID           string        `json:"id"`
	ManuscriptID string        `json:"manuscriptId"`
	Description  string        `json:"description"`
	EventType    EventType     `json:"eventType"`
	OrderIndex   int           `json:"orderIndex"`
	Timestamp    string        `json:"timestamp,omitempty"`
	LocationID   string        `json:"locationId,omitempty"`
	CharacterIDs []string      `json:"characterIds"`
	Metadata     EventMetadata `json:"metadata"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// HasCharacter reports whether the character takes part in the event
func (e TimelineEvent) HasCharacter(characterID string) bool {
	return contains(e.CharacterIDs, characterID)
}

// SortEvents orders events by (OrderIndex, CreatedAt, ID)
func SortEvents(events []TimelineEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.OrderIndex != b.OrderIndex {
			return a.OrderIndex < b.OrderIndex
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// CharacterLocation records where a character is at a given event
type CharacterLocation struct {
	ManuscriptID string `json:"manuscriptId" db:"manuscript_id"`
	CharacterID  string `json:"characterId" db:"character_id"`
	EventID      string `json:"eventId" db:"event_id"`
	LocationID   string `json:"locationId" db:"location_id"`
	OrderIndex   int    `json:"orderIndex" db:"order_index"`
}

// LocationDistance is an undirected, author-declared edge between two locations.
// ScopeID is either a manuscript id or a world id.
type LocationDistance struct {
	ScopeID   string  `json:"scopeId" db:"scope_id"`
	LocationA string  `json:"locationA" db:"location_a"`
	LocationB string  `json:"locationB" db:"location_b"`
	Distance  float64 `json:"distance" db:"distance"`
}

// DefaultSubject is the profile subject used for the manuscript-wide default speed
const DefaultSubject = "default"

// TravelSpeedProfile is a travel speed in distance units per hour
type TravelSpeedProfile struct {
	ID            string    `json:"id" db:"id"`
	ManuscriptID  string    `json:"manuscriptId" db:"manuscript_id"`
	Subject       string    `json:"subject" db:"subject"`
	TransportMode string    `json:"transportMode,omitempty" db:"transport_mode"`
	Speed         float64   `json:"speed" db:"speed"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// ValidationPolicy carries per-manuscript overrides of the engine defaults.
// Nil fields fall back to the configured defaults.
type ValidationPolicy struct {
	ManuscriptID        string   `json:"manuscriptId" db:"manuscript_id"`
	HoursPerOrderGap    *float64 `json:"hoursPerOrderGap,omitempty" db:"hours_per_order_gap"`
	Tolerance           *float64 `json:"tolerance,omitempty" db:"tolerance"`
	TransitionThreshold *float64 `json:"transitionThreshold,omitempty" db:"transition_threshold"`
}

// TravelLeg is the computed result of checking one character's movement between two events
type TravelLeg struct {
	FromEventID  string  `json:"fromEventId"`
	ToEventID    string  `json:"toEventId"`
	CharacterID  string  `json:"characterId"`
	Distance     float64 `json:"distance"`
	Speed        float64 `json:"speed"`
	RequiredTime float64 `json:"requiredTime"`
	ElapsedTime  float64 `json:"elapsedTime"`
	Feasible     bool    `json:"feasible"`
	// ExplicitTime is true when ElapsedTime came from in-story timestamps.
	ExplicitTime bool `json:"explicitTime"`
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

// NormalizeIDs trims ids, drops empties and removes duplicates keeping the first occurrence
func NormalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
