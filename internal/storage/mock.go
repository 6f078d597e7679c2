package storage

import (
	"context"
	"time"

	"github.com/JamesPrial/timeline-core/pkg/timeline"
	"github.com/stretchr/testify/mock"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) UpsertEntities(ctx context.Context, entities []timeline.Entity) error {
	args := m.Called(ctx, entities)
	return args.Error(0)
}

func (m *MockBackend) GetEntity(ctx context.Context, id string) (*timeline.Entity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*timeline.Entity), args.Error(1)
}

func (m *MockBackend) UpsertManuscript(ctx context.Context, manuscript timeline.Manuscript) error {
	args := m.Called(ctx, manuscript)
	return args.Error(0)
}

func (m *MockBackend) GetManuscript(ctx context.Context, id string) (*timeline.Manuscript, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*timeline.Manuscript), args.Error(1)
}

func (m *MockBackend) ListManuscripts(ctx context.Context, worldID string) ([]timeline.Manuscript, error) {
	args := m.Called(ctx, worldID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]timeline.Manuscript), args.Error(1)
}

func (m *MockBackend) DeleteManuscript(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockBackend) CreateEvent(ctx context.Context, event timeline.TimelineEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockBackend) UpdateEvent(ctx context.Context, event timeline.TimelineEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockBackend) DeleteEvent(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockBackend) GetEvent(ctx context.Context, id string) (*timeline.TimelineEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*timeline.TimelineEvent), args.Error(1)
}

func (m *MockBackend) ListEvents(ctx context.Context, manuscriptID string) ([]timeline.TimelineEvent, error) {
	args := m.Called(ctx, manuscriptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]timeline.TimelineEvent), args.Error(1)
}

func (m *MockBackend) LocationAt(ctx context.Context, manuscriptID, characterID string, orderIndex int) (*timeline.CharacterLocation, error) {
	args := m.Called(ctx, manuscriptID, characterID, orderIndex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*timeline.CharacterLocation), args.Error(1)
}

func (m *MockBackend) SetDistance(ctx context.Context, distance timeline.LocationDistance) error {
	args := m.Called(ctx, distance)
	return args.Error(0)
}

func (m *MockBackend) GetDistance(ctx context.Context, scopeID, locationA, locationB string) (*timeline.LocationDistance, error) {
	args := m.Called(ctx, scopeID, locationA, locationB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*timeline.LocationDistance), args.Error(1)
}

func (m *MockBackend) ListProfiles(ctx context.Context, manuscriptID string) ([]timeline.TravelSpeedProfile, error) {
	args := m.Called(ctx, manuscriptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]timeline.TravelSpeedProfile), args.Error(1)
}

func (m *MockBackend) CreateProfileIfAbsent(ctx context.Context, profile timeline.TravelSpeedProfile) (*timeline.TravelSpeedProfile, error) {
	args := m.Called(ctx, profile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*timeline.TravelSpeedProfile), args.Error(1)
}

func (m *MockBackend) UpsertProfile(ctx context.Context, profile timeline.TravelSpeedProfile) (*timeline.TravelSpeedProfile, error) {
	args := m.Called(ctx, profile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*timeline.TravelSpeedProfile), args.Error(1)
}

func (m *MockBackend) GetPolicy(ctx context.Context, manuscriptID string) (*timeline.ValidationPolicy, error) {
	args := m.Called(ctx, manuscriptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*timeline.ValidationPolicy), args.Error(1)
}

func (m *MockBackend) SetPolicy(ctx context.Context, policy timeline.ValidationPolicy) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

func (m *MockBackend) ReconcileInconsistencies(ctx context.Context, manuscriptID string, findings []timeline.Finding, now time.Time) (timeline.ReconcileResult, error) {
	args := m.Called(ctx, manuscriptID, findings, now)
	return args.Get(0).(timeline.ReconcileResult), args.Error(1)
}

func (m *MockBackend) ListInconsistencies(ctx context.Context, manuscriptID string, includeResolved bool) ([]timeline.Inconsistency, error) {
	args := m.Called(ctx, manuscriptID, includeResolved)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]timeline.Inconsistency), args.Error(1)
}

func (m *MockBackend) Close() error {
	args := m.Called()
	return args.Error(0)
}
