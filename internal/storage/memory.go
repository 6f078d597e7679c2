package storage

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JamesPrial/timeline-core/pkg/errors"
	"github.com/JamesPrial/timeline-core/pkg/logging"
	"github.com/JamesPrial/timeline-core/pkg/timeline"
	"github.com/google/uuid"
)

type characterKey struct {
	manuscriptID string
	characterID  string
}

type distanceKey struct {
	scopeID string
	a, b    string
}

type profileKey struct {
	manuscriptID string
	subject      string
	mode         string
}

// MemoryBackend keeps all state in maps guarded by a single RWMutex
type MemoryBackend struct {
	mu sync.RWMutex

	entities    map[string]timeline.Entity
	manuscripts map[string]timeline.Manuscript
	events      map[string]timeline.TimelineEvent
	// manuscript id -> order index -> event id
	orderIndex      map[string]map[int]string
	locations       map[characterKey][]timeline.CharacterLocation
	distances       map[distanceKey]float64
	profiles        map[profileKey]timeline.TravelSpeedProfile
	policies        map[string]timeline.ValidationPolicy
	inconsistencies map[string]map[string]timeline.Inconsistency

	logger *slog.Logger
}

// NewMemoryBackend creates a new memory-based storage backend
func NewMemoryBackend() *MemoryBackend {
	logger := logging.GetGlobalLogger("storage.memory")
	logger.Info("Creating memory backend")

	return &MemoryBackend{
		entities:        make(map[string]timeline.Entity),
		manuscripts:     make(map[string]timeline.Manuscript),
		events:          make(map[string]timeline.TimelineEvent),
		orderIndex:      make(map[string]map[int]string),
		locations:       make(map[characterKey][]timeline.CharacterLocation),
		distances:       make(map[distanceKey]float64),
		profiles:        make(map[profileKey]timeline.TravelSpeedProfile),
		policies:        make(map[string]timeline.ValidationPolicy),
		inconsistencies: make(map[string]map[string]timeline.Inconsistency),
		logger:          logger,
	}
}

func canceled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// UpsertEntities stores identity records, replacing existing ones
func (m *MemoryBackend) UpsertEntities(ctx context.Context, entities []timeline.Entity) error {
	if len(entities) == 0 {
		m.logger.DebugContext(ctx, "No entities to store")
		return nil
	}
	if err := canceled(ctx); err != nil {
		m.logger.WarnContext(ctx, "Upsert entities operation canceled")
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate all entities first before making any changes
	for _, entity := range entities {
		if strings.TrimSpace(entity.ID) == "" {
			return errors.New(errors.ErrCodeValidationRequired, "Entity ID cannot be empty or whitespace-only")
		}
		if entity.Kind != timeline.EntityKindCharacter && entity.Kind != timeline.EntityKindLocation {
			return errors.Newf(errors.ErrCodeValidationType, "Entity '%s' has unsupported kind '%s'", entity.ID, entity.Kind)
		}
	}

	for _, entity := range entities {
		if existing, ok := m.entities[entity.ID]; ok {
			entity.CreatedAt = existing.CreatedAt
		}
		m.entities[entity.ID] = entity
	}

	m.logger.DebugContext(ctx, "Stored entities in memory",
		slog.Int("count", len(entities)),
		slog.Int("total_entities", len(m.entities)),
	)
	return nil
}

// GetEntity retrieves an entity by ID
func (m *MemoryBackend) GetEntity(ctx context.Context, id string) (*timeline.Entity, error) {
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entity, exists := m.entities[id]
	if !exists {
		return nil, nil
	}
	return &entity, nil
}

// UpsertManuscript stores a manuscript identity record
func (m *MemoryBackend) UpsertManuscript(ctx context.Context, manuscript timeline.Manuscript) error {
	if err := canceled(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(manuscript.ID) == "" {
		return errors.ValidationRequired("manuscript id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.manuscripts[manuscript.ID]; ok {
		manuscript.CreatedAt = existing.CreatedAt
	}
	m.manuscripts[manuscript.ID] = manuscript
	return nil
}

// GetManuscript retrieves a manuscript by ID
func (m *MemoryBackend) GetManuscript(ctx context.Context, id string) (*timeline.Manuscript, error) {
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	manuscript, exists := m.manuscripts[id]
	if !exists {
		return nil, nil
	}
	return &manuscript, nil
}

// ListManuscripts returns the manuscripts of a world ordered by creation time
func (m *MemoryBackend) ListManuscripts(ctx context.Context, worldID string) ([]timeline.Manuscript, error) {
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []timeline.Manuscript
	for _, manuscript := range m.manuscripts {
		if manuscript.WorldID == worldID {
			result = append(result, manuscript)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// DeleteManuscript removes a manuscript together with everything scoped to it
func (m *MemoryBackend) DeleteManuscript(ctx context.Context, id string) error {
	timer := logging.StartTimer(ctx, m.logger, "deleteManuscript")
	defer timer.End()

	if err := canceled(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.manuscripts[id]; !ok {
		return errors.NotFound(errors.ErrCodeManuscriptNotFound, "Manuscript", id)
	}

	delete(m.manuscripts, id)
	removed := 0
	for eventID, event := range m.events {
		if event.ManuscriptID == id {
			delete(m.events, eventID)
			removed++
		}
	}
	delete(m.orderIndex, id)
	for key := range m.locations {
		if key.manuscriptID == id {
			delete(m.locations, key)
		}
	}
	for key := range m.distances {
		if key.scopeID == id {
			delete(m.distances, key)
		}
	}
	for key := range m.profiles {
		if key.manuscriptID == id {
			delete(m.profiles, key)
		}
	}
	delete(m.policies, id)
	delete(m.inconsistencies, id)

	m.logger.InfoContext(ctx, "Deleted manuscript",
		slog.String("manuscript_id", id),
		slog.Int("events_removed", removed),
	)
	return nil
}

// CreateEvent stores a new event and its derived character locations
func (m *MemoryBackend) CreateEvent(ctx context.Context, event timeline.TimelineEvent) error {
	timer := logging.StartTimer(ctx, m.logger, "createEvent")
	defer timer.End()

	if err := canceled(ctx); err != nil {
		m.logger.WarnContext(ctx, "Create event operation canceled")
		return err
	}
	if strings.TrimSpace(event.ID) == "" {
		return errors.ValidationRequired("event id")
	}
	if strings.TrimSpace(event.ManuscriptID) == "" {
		return errors.ValidationRequired("manuscript id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.events[event.ID]; exists {
		return errors.Newf(errors.ErrCodeEntityAlreadyExists, "Event with ID '%s' already exists", event.ID)
	}
	if owner, taken := m.orderIndex[event.ManuscriptID][event.OrderIndex]; taken {
		m.logger.WarnContext(ctx, "Duplicate order index",
			slog.String("manuscript_id", event.ManuscriptID),
			slog.Int("order_index", event.OrderIndex),
			slog.String("existing_event_id", owner),
		)
		return duplicateOrderIndex(event)
	}

	m.putEvent(event)

	m.logger.DebugContext(ctx, "Event stored in memory",
		slog.String("event_id", event.ID),
		slog.String("manuscript_id", event.ManuscriptID),
		slog.Int("order_index", event.OrderIndex),
	)
	return nil
}

// UpdateEvent replaces an existing event, keeping its identity and creation time
func (m *MemoryBackend) UpdateEvent(ctx context.Context, event timeline.TimelineEvent) error {
	timer := logging.StartTimer(ctx, m.logger, "updateEvent")
	defer timer.End()

	if err := canceled(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.events[event.ID]
	if !ok {
		return errors.NotFound(errors.ErrCodeEventNotFound, "Event", event.ID)
	}
	event.ManuscriptID = existing.ManuscriptID
	event.CreatedAt = existing.CreatedAt
	if owner, taken := m.orderIndex[event.ManuscriptID][event.OrderIndex]; taken && owner != event.ID {
		return duplicateOrderIndex(event)
	}

	m.removeEvent(existing)
	m.putEvent(event)
	return nil
}

// DeleteEvent removes an event and its derived character locations
func (m *MemoryBackend) DeleteEvent(ctx context.Context, id string) error {
	if err := canceled(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.events[id]
	if !ok {
		return errors.NotFound(errors.ErrCodeEventNotFound, "Event", id)
	}
	m.removeEvent(existing)
	return nil
}

// putEvent indexes an event. Callers hold the write lock.
func (m *MemoryBackend) putEvent(event timeline.TimelineEvent) {
	event = cloneEvent(event)
	m.events[event.ID] = event

	byOrder, ok := m.orderIndex[event.ManuscriptID]
	if !ok {
		byOrder = make(map[int]string)
		m.orderIndex[event.ManuscriptID] = byOrder
	}
	byOrder[event.OrderIndex] = event.ID

	for _, row := range deriveLocations(event) {
		key := characterKey{manuscriptID: row.ManuscriptID, characterID: row.CharacterID}
		rows := append(m.locations[key], row)
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].OrderIndex < rows[j].OrderIndex })
		m.locations[key] = rows
	}
}

// removeEvent drops an event from every index. Callers hold the write lock.
func (m *MemoryBackend) removeEvent(event timeline.TimelineEvent) {
	delete(m.events, event.ID)
	if byOrder, ok := m.orderIndex[event.ManuscriptID]; ok && byOrder[event.OrderIndex] == event.ID {
		delete(byOrder, event.OrderIndex)
	}
	for _, characterID := range event.CharacterIDs {
		key := characterKey{manuscriptID: event.ManuscriptID, characterID: characterID}
		rows := m.locations[key][:0]
		for _, row := range m.locations[key] {
			if row.EventID != event.ID {
				rows = append(rows, row)
			}
		}
		if len(rows) == 0 {
			delete(m.locations, key)
		} else {
			m.locations[key] = rows
		}
	}
}

// GetEvent retrieves an event by ID
func (m *MemoryBackend) GetEvent(ctx context.Context, id string) (*timeline.TimelineEvent, error) {
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	event, ok := m.events[id]
	if !ok {
		return nil, nil
	}
	event = cloneEvent(event)
	return &event, nil
}

// ListEvents returns a manuscript's events in story order
func (m *MemoryBackend) ListEvents(ctx context.Context, manuscriptID string) ([]timeline.TimelineEvent, error) {
	timer := logging.StartTimer(ctx, m.logger, "listEvents")
	defer timer.End()

	if err := canceled(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	byOrder := m.orderIndex[manuscriptID]
	events := make([]timeline.TimelineEvent, 0, len(byOrder))
	for _, eventID := range byOrder {
		events = append(events, cloneEvent(m.events[eventID]))
	}
	timeline.SortEvents(events)
	return events, nil
}

// LocationAt returns the latest located appearance of a character at or before orderIndex
func (m *MemoryBackend) LocationAt(ctx context.Context, manuscriptID, characterID string, orderIndex int) (*timeline.CharacterLocation, error) {
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.locations[characterKey{manuscriptID: manuscriptID, characterID: characterID}]
	// rows are sorted by order index; find the first row after orderIndex
	i := sort.Search(len(rows), func(i int) bool { return rows[i].OrderIndex > orderIndex })
	if i == 0 {
		return nil, nil
	}
	row := rows[i-1]
	return &row, nil
}

// SetDistance stores an undirected distance edge
func (m *MemoryBackend) SetDistance(ctx context.Context, distance timeline.LocationDistance) error {
	if err := canceled(ctx); err != nil {
		return err
	}
	a, b := CanonicalPair(distance.LocationA, distance.LocationB)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.distances[distanceKey{scopeID: distance.ScopeID, a: a, b: b}] = distance.Distance
	return nil
}

// GetDistance looks up a distance edge in one scope
func (m *MemoryBackend) GetDistance(ctx context.Context, scopeID, locationA, locationB string) (*timeline.LocationDistance, error) {
	if err := canceled(ctx); err != nil {
		return nil, err
	}
	a, b := CanonicalPair(locationA, locationB)

	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.distances[distanceKey{scopeID: scopeID, a: a, b: b}]
	if !ok {
		return nil, nil
	}
	return &timeline.LocationDistance{ScopeID: scopeID, LocationA: a, LocationB: b, Distance: d}, nil
}

// ListProfiles returns all travel profiles of a manuscript
func (m *MemoryBackend) ListProfiles(ctx context.Context, manuscriptID string) ([]timeline.TravelSpeedProfile, error) {
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []timeline.TravelSpeedProfile
	for key, profile := range m.profiles {
		if key.manuscriptID == manuscriptID {
			result = append(result, profile)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Subject != result[j].Subject {
			return result[i].Subject < result[j].Subject
		}
		return result[i].TransportMode < result[j].TransportMode
	})
	return result, nil
}

// CreateProfileIfAbsent stores the profile unless one exists for the same
// (manuscript, subject, mode) and returns whichever profile is stored
func (m *MemoryBackend) CreateProfileIfAbsent(ctx context.Context, profile timeline.TravelSpeedProfile) (*timeline.TravelSpeedProfile, error) {
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := profileKey{manuscriptID: profile.ManuscriptID, subject: profile.Subject, mode: profile.TransportMode}
	if existing, ok := m.profiles[key]; ok {
		return &existing, nil
	}
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	m.profiles[key] = profile
	return &profile, nil
}

// UpsertProfile creates or updates a profile. An existing profile keeps its ID.
func (m *MemoryBackend) UpsertProfile(ctx context.Context, profile timeline.TravelSpeedProfile) (*timeline.TravelSpeedProfile, error) {
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := profileKey{manuscriptID: profile.ManuscriptID, subject: profile.Subject, mode: profile.TransportMode}
	if existing, ok := m.profiles[key]; ok {
		profile.ID = existing.ID
		profile.CreatedAt = existing.CreatedAt
	} else if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	m.profiles[key] = profile
	return &profile, nil
}

// GetPolicy returns the manuscript's validation policy overrides
func (m *MemoryBackend) GetPolicy(ctx context.Context, manuscriptID string) (*timeline.ValidationPolicy, error) {
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	policy, ok := m.policies[manuscriptID]
	if !ok {
		return nil, nil
	}
	return &policy, nil
}

// SetPolicy replaces the manuscript's validation policy overrides
func (m *MemoryBackend) SetPolicy(ctx context.Context, policy timeline.ValidationPolicy) error {
	if err := canceled(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(policy.ManuscriptID) == "" {
		return errors.ValidationRequired("manuscript id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.policies[policy.ManuscriptID] = policy
	return nil
}

// ReconcileInconsistencies diffs findings against the stored rows under the write lock
func (m *MemoryBackend) ReconcileInconsistencies(ctx context.Context, manuscriptID string, findings []timeline.Finding, now time.Time) (timeline.ReconcileResult, error) {
	timer := logging.StartTimer(ctx, m.logger, "reconcileInconsistencies")
	defer timer.End()

	if err := canceled(ctx); err != nil {
		return timeline.ReconcileResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.inconsistencies[manuscriptID]
	if !ok {
		stored = make(map[string]timeline.Inconsistency)
		m.inconsistencies[manuscriptID] = stored
	}

	plan := planReconcile(manuscriptID, stored, findings, now)
	for _, row := range plan.upserts {
		stored[row.Key()] = row
	}

	m.logger.DebugContext(ctx, "Reconciled inconsistencies",
		slog.String("manuscript_id", manuscriptID),
		slog.Int("added", plan.result.Added),
		slog.Int("resolved", plan.result.Resolved),
		slog.Int("reopened", plan.result.Reopened),
		slog.Int("unchanged", plan.result.Unchanged),
	)
	return plan.result, nil
}

// ListInconsistencies returns a manuscript's findings ordered by dedup key
func (m *MemoryBackend) ListInconsistencies(ctx context.Context, manuscriptID string, includeResolved bool) ([]timeline.Inconsistency, error) {
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []timeline.Inconsistency
	for _, row := range m.inconsistencies[manuscriptID] {
		if row.Status == timeline.StatusResolved && !includeResolved {
			continue
		}
		result = append(result, cloneInconsistency(row))
	}
	sortInconsistencies(result)
	return result, nil
}

// Close is a no-op for the memory backend
func (m *MemoryBackend) Close() error {
	return nil
}

func duplicateOrderIndex(event timeline.TimelineEvent) error {
	return errors.Newf(errors.ErrCodeValidationDuplicate,
		"order index %d is already used in manuscript '%s'", event.OrderIndex, event.ManuscriptID)
}

func cloneEvent(event timeline.TimelineEvent) timeline.TimelineEvent {
	event.CharacterIDs = append([]string(nil), event.CharacterIDs...)
	md := event.Metadata
	md.Deaths = append([]string(nil), md.Deaths...)
	md.Resurrections = append([]string(nil), md.Resurrections...)
	if md.DistanceOverride != nil {
		d := *md.DistanceOverride
		md.DistanceOverride = &d
	}
	if md.Notes != nil {
		notes := make(map[string]string, len(md.Notes))
		for k, v := range md.Notes {
			notes[k] = v
		}
		md.Notes = notes
	}
	event.Metadata = md
	return event
}

func cloneInconsistency(row timeline.Inconsistency) timeline.Inconsistency {
	row.AffectedEventIDs = append([]string(nil), row.AffectedEventIDs...)
	if row.ResolvedAt != nil {
		t := *row.ResolvedAt
		row.ResolvedAt = &t
	}
	return row
}
