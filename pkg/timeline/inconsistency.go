package timeline

import (
	"sort"
	"strings"
	"time"
)

// InconsistencyType names the rule class that produced a finding
type InconsistencyType string

const (
	InconsistencyLocationConflict      InconsistencyType = "LOCATION_CONFLICT"
	InconsistencyTimestampViolation    InconsistencyType = "TIMESTAMP_VIOLATION"
	InconsistencyTravelTimeViolation   InconsistencyType = "TRAVEL_TIME_VIOLATION"
	InconsistencyCharacterResurrection InconsistencyType = "CHARACTER_RESURRECTION"
	InconsistencyMissingTransition     InconsistencyType = "MISSING_TRANSITION"
)

// Severity ranks how strongly a finding contradicts the declared facts
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// InconsistencyStatus tracks whether a finding is still produced by the detector
type InconsistencyStatus string

const (
	StatusOpen     InconsistencyStatus = "OPEN"
	StatusResolved InconsistencyStatus = "RESOLVED"
)

// InconsistencyDetails is the typed extra data attached to a finding.
// Which fields are set depends on the inconsistency type.
type InconsistencyDetails struct {
	CharacterID  string     `json:"characterId,omitempty"`
	LocationIDs  []string   `json:"locationIds,omitempty"`
	Leg          *TravelLeg `json:"leg,omitempty"`
	Timestamps   []string   `json:"timestamps,omitempty"`
	DeathEventID string     `json:"deathEventId,omitempty"`
	Distance     *float64   `json:"distance,omitempty"`
}

// Finding is a detector result before it is persisted
type Finding struct {
	Type             InconsistencyType    `json:"type"`
	Severity         Severity             `json:"severity"`
	Description      string               `json:"description"`
	AffectedEventIDs []string             `json:"affectedEventIds"`
	Details          InconsistencyDetails `json:"details"`
}

// Key returns the deduplication key for the finding
func (f Finding) Key() string {
	return DedupKey(f.Type, f.AffectedEventIDs)
}

// Inconsistency is a persisted finding for a manuscript
type Inconsistency struct {
	ID               string               `json:"id"`
	ManuscriptID     string               `json:"manuscriptId"`
	Type             InconsistencyType    `json:"inconsistencyType"`
	Description      string               `json:"description"`
	Severity         Severity             `json:"severity"`
	AffectedEventIDs []string             `json:"affectedEventIds"`
	ExtraData        InconsistencyDetails `json:"extraData"`
	Status           InconsistencyStatus  `json:"status"`
	CreatedAt        time.Time            `json:"createdAt"`
	ResolvedAt       *time.Time           `json:"resolvedAt,omitempty"`
}

// Key returns the deduplication key for the stored inconsistency
func (i Inconsistency) Key() string {
	return DedupKey(i.Type, i.AffectedEventIDs)
}

// DedupKey builds the (type, sorted(affected ids)) key
func DedupKey(t InconsistencyType, eventIDs []string) string {
	ids := SortedIDs(eventIDs)
	return string(t) + "|" + strings.Join(ids, ",")
}

// SortedIDs returns a sorted, de-duplicated copy of ids
func SortedIDs(ids []string) []string {
	out := NormalizeIDs(ids)
	sort.Strings(out)
	return out
}

// ReconcileResult summarizes how a detector run changed the stored findings
type ReconcileResult struct {
	Added     int `json:"added"`
	Resolved  int `json:"resolved"`
	Reopened  int `json:"reopened"`
	Unchanged int `json:"unchanged"`
}

// Changes is the number of rows whose state changed
func (r ReconcileResult) Changes() int {
	return r.Added + r.Resolved + r.Reopened
}
