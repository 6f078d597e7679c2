// Package events is the timeline store: the ordered narrative events of each
// manuscript and the derived character locations.
package events

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/JamesPrial/timeline-core/internal/storage"
	"github.com/JamesPrial/timeline-core/pkg/errors"
	"github.com/JamesPrial/timeline-core/pkg/logging"
	"github.com/JamesPrial/timeline-core/pkg/timeline"
	"github.com/google/uuid"
)

// NewEvent is the caller-supplied part of an event. The order index is chosen by
// the caller; the store never renumbers.
type NewEvent struct {
	ManuscriptID string                 `json:"manuscriptId" mapstructure:"manuscriptId"`
	Description  string                 `json:"description" mapstructure:"description"`
	EventType    string                 `json:"eventType" mapstructure:"eventType"`
	OrderIndex   int                    `json:"orderIndex" mapstructure:"orderIndex"`
	Timestamp    string                 `json:"timestamp,omitempty" mapstructure:"timestamp"`
	LocationID   string                 `json:"locationId,omitempty" mapstructure:"locationId"`
	CharacterIDs []string               `json:"characterIds" mapstructure:"characterIds"`
	Metadata     timeline.EventMetadata `json:"metadata" mapstructure:"metadata"`
}

// EventPatch changes selected fields of an event. Nil fields are left as they are.
type EventPatch struct {
	Description  *string                 `mapstructure:"description"`
	EventType    *string                 `mapstructure:"eventType"`
	OrderIndex   *int                    `mapstructure:"orderIndex"`
	Timestamp    *string                 `mapstructure:"timestamp"`
	LocationID   *string                 `mapstructure:"locationId"`
	CharacterIDs []string                `mapstructure:"characterIds"`
	Metadata     *timeline.EventMetadata `mapstructure:"metadata"`
}

type Store struct {
	backend storage.Backend
	logger  *slog.Logger
	now     func() time.Time
}

func NewStore(backend storage.Backend) *Store {
	return &Store{
		backend: backend,
		logger:  logging.GetGlobalLogger("events"),
		now:     time.Now,
	}
}

// CreateEvent validates the references of a new event and stores it with a fresh ID
func (s *Store) CreateEvent(ctx context.Context, in NewEvent) (*timeline.TimelineEvent, error) {
	timer := logging.StartTimer(ctx, s.logger, "createEvent")
	defer timer.End()

	manuscript, err := s.requireManuscript(ctx, in.ManuscriptID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	event := timeline.TimelineEvent{
		ID:           uuid.New().String(),
		ManuscriptID: manuscript.ID,
		Description:  strings.TrimSpace(in.Description),
		EventType:    timeline.ParseEventType(in.EventType),
		OrderIndex:   in.OrderIndex,
		Timestamp:    strings.TrimSpace(in.Timestamp),
		LocationID:   strings.TrimSpace(in.LocationID),
		CharacterIDs: timeline.NormalizeIDs(in.CharacterIDs),
		Metadata:     in.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.validate(ctx, manuscript, &event); err != nil {
		return nil, err
	}

	if err := s.backend.CreateEvent(ctx, event); err != nil {
		return nil, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to store event")
	}

	s.logger.InfoContext(ctx, "Event created",
		slog.String("event_id", event.ID),
		slog.String("manuscript_id", event.ManuscriptID),
		slog.Int("order_index", event.OrderIndex),
		slog.Int("characters", len(event.CharacterIDs)),
	)
	return &event, nil
}

// UpdateEvent applies a patch to an existing event
func (s *Store) UpdateEvent(ctx context.Context, eventID string, patch EventPatch) (*timeline.TimelineEvent, error) {
	event, err := s.requireEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	manuscript, err := s.requireManuscript(ctx, event.ManuscriptID)
	if err != nil {
		return nil, err
	}

	if patch.Description != nil {
		event.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.EventType != nil {
		event.EventType = timeline.ParseEventType(*patch.EventType)
	}
	if patch.OrderIndex != nil {
		event.OrderIndex = *patch.OrderIndex
	}
	if patch.Timestamp != nil {
		event.Timestamp = strings.TrimSpace(*patch.Timestamp)
	}
	if patch.LocationID != nil {
		event.LocationID = strings.TrimSpace(*patch.LocationID)
	}
	if patch.CharacterIDs != nil {
		event.CharacterIDs = timeline.NormalizeIDs(patch.CharacterIDs)
	}
	if patch.Metadata != nil {
		event.Metadata = *patch.Metadata
	}
	if err := s.validate(ctx, manuscript, event); err != nil {
		return nil, err
	}
	event.UpdatedAt = s.now().UTC()

	if err := s.backend.UpdateEvent(ctx, *event); err != nil {
		return nil, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to update event")
	}
	return event, nil
}

// Reorder moves an event to a new order index. The event keeps its identity and
// no other event is touched.
func (s *Store) Reorder(ctx context.Context, eventID string, newIndex int) (*timeline.TimelineEvent, error) {
	return s.UpdateEvent(ctx, eventID, EventPatch{OrderIndex: &newIndex})
}

// DeleteEvent removes an event
func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	if err := s.backend.DeleteEvent(ctx, eventID); err != nil {
		return errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to delete event")
	}
	return nil
}

// GetEvent returns an event or an EVENT_NOT_FOUND error
func (s *Store) GetEvent(ctx context.Context, eventID string) (*timeline.TimelineEvent, error) {
	return s.requireEvent(ctx, eventID)
}

// ListEvents returns a manuscript's events sorted by (order index, created at)
func (s *Store) ListEvents(ctx context.Context, manuscriptID string) ([]timeline.TimelineEvent, error) {
	if _, err := s.requireManuscript(ctx, manuscriptID); err != nil {
		return nil, err
	}
	events, err := s.backend.ListEvents(ctx, manuscriptID)
	if err != nil {
		return nil, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to list events")
	}
	timeline.SortEvents(events)
	return events, nil
}

// LocationAt answers where a character is understood to be at an event: the
// location of its latest located appearance at or before that event
func (s *Store) LocationAt(ctx context.Context, manuscriptID, characterID, eventID string) (*timeline.CharacterLocation, error) {
	event, err := s.requireEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.ManuscriptID != manuscriptID {
		return nil, errors.Newf(errors.ErrCodeValidationInvalid, "event '%s' does not belong to manuscript '%s'", eventID, manuscriptID)
	}
	loc, err := s.backend.LocationAt(ctx, manuscriptID, characterID, event.OrderIndex)
	if err != nil {
		return nil, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to look up character location")
	}
	return loc, nil
}

// DeleteManuscript removes a manuscript's events, derived rows and findings
func (s *Store) DeleteManuscript(ctx context.Context, manuscriptID string) error {
	if err := s.backend.DeleteManuscript(ctx, manuscriptID); err != nil {
		return errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to delete manuscript")
	}
	s.logger.InfoContext(ctx, "Manuscript deleted", slog.String("manuscript_id", manuscriptID))
	return nil
}

func (s *Store) requireManuscript(ctx context.Context, manuscriptID string) (*timeline.Manuscript, error) {
	if strings.TrimSpace(manuscriptID) == "" {
		return nil, errors.ValidationRequired("manuscript id")
	}
	manuscript, err := s.backend.GetManuscript(ctx, manuscriptID)
	if err != nil {
		return nil, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to load manuscript")
	}
	if manuscript == nil {
		return nil, errors.NotFound(errors.ErrCodeManuscriptNotFound, "Manuscript", manuscriptID)
	}
	return manuscript, nil
}

func (s *Store) requireEvent(ctx context.Context, eventID string) (*timeline.TimelineEvent, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, errors.ValidationRequired("event id")
	}
	event, err := s.backend.GetEvent(ctx, eventID)
	if err != nil {
		return nil, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to load event")
	}
	if event == nil {
		return nil, errors.NotFound(errors.ErrCodeEventNotFound, "Event", eventID)
	}
	return event, nil
}

// validate checks entity references and metadata, normalizing metadata id lists
func (s *Store) validate(ctx context.Context, manuscript *timeline.Manuscript, event *timeline.TimelineEvent) error {
	if event.LocationID != "" {
		if err := s.requireKind(ctx, manuscript, event.LocationID, timeline.EntityKindLocation); err != nil {
			return err
		}
	}
	for _, characterID := range event.CharacterIDs {
		if err := s.requireKind(ctx, manuscript, characterID, timeline.EntityKindCharacter); err != nil {
			return err
		}
	}

	md := &event.Metadata
	md.Deaths = timeline.NormalizeIDs(md.Deaths)
	md.Resurrections = timeline.NormalizeIDs(md.Resurrections)
	md.SimultaneousWith = strings.TrimSpace(md.SimultaneousWith)
	md.TransportMode = strings.TrimSpace(md.TransportMode)
	for _, characterID := range append(append([]string(nil), md.Deaths...), md.Resurrections...) {
		if err := s.requireKind(ctx, manuscript, characterID, timeline.EntityKindCharacter); err != nil {
			return err
		}
	}
	if d := md.DistanceOverride; d != nil && (*d < 0 || math.IsNaN(*d) || math.IsInf(*d, 0)) {
		return errors.Newf(errors.ErrCodeValidationRange, "distanceOverride must be a finite number >= 0, got %v", *d)
	}
	if len(md.Deaths) == 0 {
		md.Deaths = nil
	}
	if len(md.Resurrections) == 0 {
		md.Resurrections = nil
	}
	return nil
}

func (s *Store) requireKind(ctx context.Context, manuscript *timeline.Manuscript, id string, kind timeline.EntityKind) error {
	entity, err := s.backend.GetEntity(ctx, id)
	if err != nil {
		return errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to resolve entity")
	}
	if entity == nil {
		return errors.NotFound(errors.ErrCodeEntityNotFound, "Entity", id)
	}
	if entity.Kind != kind {
		return errors.Newf(errors.ErrCodeValidationType, "entity '%s' is a %s, expected %s", id, entity.Kind, kind)
	}
	if entity.WorldID != "" && manuscript.WorldID != "" && entity.WorldID != manuscript.WorldID {
		return errors.Newf(errors.ErrCodeValidationInvalid, "entity '%s' belongs to another world", id)
	}
	return nil
}
