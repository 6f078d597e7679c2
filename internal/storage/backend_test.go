package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/JamesPrial/timeline-core/pkg/errors"
	"github.com/JamesPrial/timeline-core/pkg/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forEachBackend runs the same behavioural test against every backend implementation
func forEachBackend(t *testing.T, fn func(t *testing.T, backend Backend)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryBackend())
	})
	t.Run("sqlite", func(t *testing.T) {
		backend, err := NewSqliteBackend(filepath.Join(t.TempDir(), "test.db"), true)
		require.NoError(t, err)
		t.Cleanup(func() { backend.Close() })
		fn(t, backend)
	})
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testEvent(id string, order int, location string, characters ...string) timeline.TimelineEvent {
	return timeline.TimelineEvent{
		ID:           id,
		ManuscriptID: "ms-1",
		Description:  "event " + id,
		EventType:    timeline.EventTypeScene,
		OrderIndex:   order,
		LocationID:   location,
		CharacterIDs: characters,
		CreatedAt:    baseTime.Add(time.Duration(order) * time.Minute),
		UpdatedAt:    baseTime.Add(time.Duration(order) * time.Minute),
	}
}

func TestBackend_Entities(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		err := backend.UpsertEntities(ctx, []timeline.Entity{
			{ID: "alice", Name: "Alice", Kind: timeline.EntityKindCharacter, WorldID: "w1", CreatedAt: baseTime, UpdatedAt: baseTime},
			{ID: "city-a", Name: "City A", Kind: timeline.EntityKindLocation, WorldID: "w1", CreatedAt: baseTime, UpdatedAt: baseTime},
		})
		require.NoError(t, err)

		alice, err := backend.GetEntity(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, alice)
		assert.Equal(t, timeline.EntityKindCharacter, alice.Kind)
		assert.Equal(t, "Alice", alice.Name)

		missing, err := backend.GetEntity(ctx, "nobody")
		assert.NoError(t, err)
		assert.Nil(t, missing)

		// Invalid input in a batch rejects the whole batch
		err = backend.UpsertEntities(ctx, []timeline.Entity{
			{ID: "bob", Name: "Bob", Kind: timeline.EntityKindCharacter},
			{ID: "thing", Name: "Thing", Kind: "ITEM"},
		})
		assert.True(t, errors.Is(err, errors.ErrCodeValidationType))
		bob, err := backend.GetEntity(ctx, "bob")
		assert.NoError(t, err)
		assert.Nil(t, bob)

		err = backend.UpsertEntities(ctx, []timeline.Entity{{ID: "  ", Kind: timeline.EntityKindCharacter}})
		assert.True(t, errors.Is(err, errors.ErrCodeValidationRequired))
	})
}

func TestBackend_Manuscripts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		require.NoError(t, backend.UpsertManuscript(ctx, timeline.Manuscript{ID: "ms-2", WorldID: "w1", Title: "Second", CreatedAt: baseTime.Add(time.Hour)}))
		require.NoError(t, backend.UpsertManuscript(ctx, timeline.Manuscript{ID: "ms-1", WorldID: "w1", Title: "First", CreatedAt: baseTime}))
		require.NoError(t, backend.UpsertManuscript(ctx, timeline.Manuscript{ID: "ms-3", WorldID: "w2", Title: "Other", CreatedAt: baseTime}))

		list, err := backend.ListManuscripts(ctx, "w1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "ms-1", list[0].ID)
		assert.Equal(t, "ms-2", list[1].ID)

		empty, err := backend.ListManuscripts(ctx, "w-none")
		require.NoError(t, err)
		assert.Empty(t, empty)

		got, err := backend.GetManuscript(ctx, "ms-3")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Other", got.Title)
	})
}

func TestBackend_DeleteManuscriptCascades(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		require.NoError(t, backend.UpsertManuscript(ctx, timeline.Manuscript{ID: "ms-1", WorldID: "w1", CreatedAt: baseTime}))
		require.NoError(t, backend.CreateEvent(ctx, testEvent("e1", 1, "city-a", "alice")))
		require.NoError(t, backend.SetDistance(ctx, timeline.LocationDistance{ScopeID: "ms-1", LocationA: "a", LocationB: "b", Distance: 1}))
		_, err := backend.ReconcileInconsistencies(ctx, "ms-1", []timeline.Finding{
			{Type: timeline.InconsistencyMissingTransition, Severity: timeline.SeverityLow, AffectedEventIDs: []string{"e1"}},
		}, baseTime)
		require.NoError(t, err)

		require.NoError(t, backend.DeleteManuscript(ctx, "ms-1"))

		events, err := backend.ListEvents(ctx, "ms-1")
		require.NoError(t, err)
		assert.Empty(t, events)
		loc, err := backend.LocationAt(ctx, "ms-1", "alice", 10)
		require.NoError(t, err)
		assert.Nil(t, loc)
		d, err := backend.GetDistance(ctx, "ms-1", "a", "b")
		require.NoError(t, err)
		assert.Nil(t, d)
		found, err := backend.ListInconsistencies(ctx, "ms-1", true)
		require.NoError(t, err)
		assert.Empty(t, found)

		err = backend.DeleteManuscript(ctx, "ms-1")
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestBackend_Events(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		require.NoError(t, backend.CreateEvent(ctx, testEvent("e3", 30, "city-b", "alice")))
		require.NoError(t, backend.CreateEvent(ctx, testEvent("e1", 10, "city-a", "alice", "bob")))
		require.NoError(t, backend.CreateEvent(ctx, testEvent("e2", 20, "", "bob")))

		events, err := backend.ListEvents(ctx, "ms-1")
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, []string{"e1", "e2", "e3"}, []string{events[0].ID, events[1].ID, events[2].ID})
		assert.Equal(t, []string{"alice", "bob"}, events[0].CharacterIDs)

		// Duplicate order index is rejected without mutation
		err = backend.CreateEvent(ctx, testEvent("e4", 20, "city-c", "alice"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrCodeValidationDuplicate))
		assert.True(t, errors.IsInvalidInput(err))
		events, err = backend.ListEvents(ctx, "ms-1")
		require.NoError(t, err)
		assert.Len(t, events, 3)
		loc, err := backend.LocationAt(ctx, "ms-1", "alice", 25)
		require.NoError(t, err)
		require.NotNil(t, loc)
		assert.Equal(t, "e1", loc.EventID)

		// Where is alice at each point in the story
		loc, err = backend.LocationAt(ctx, "ms-1", "alice", 5)
		require.NoError(t, err)
		assert.Nil(t, loc)
		loc, err = backend.LocationAt(ctx, "ms-1", "alice", 30)
		require.NoError(t, err)
		require.NotNil(t, loc)
		assert.Equal(t, "city-b", loc.LocationID)
		// bob's latest located appearance is e1 since e2 has no location
		loc, err = backend.LocationAt(ctx, "ms-1", "bob", 20)
		require.NoError(t, err)
		require.NotNil(t, loc)
		assert.Equal(t, "city-a", loc.LocationID)

		got, err := backend.GetEvent(ctx, "e2")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 20, got.OrderIndex)
		missing, err := backend.GetEvent(ctx, "nope")
		assert.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestBackend_UpdateAndDeleteEvent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()
		require.NoError(t, backend.CreateEvent(ctx, testEvent("e1", 1, "city-a", "alice")))
		require.NoError(t, backend.CreateEvent(ctx, testEvent("e2", 2, "city-b", "alice")))

		moved := testEvent("e1", 3, "city-a", "alice")
		require.NoError(t, backend.UpdateEvent(ctx, moved))
		events, err := backend.ListEvents(ctx, "ms-1")
		require.NoError(t, err)
		assert.Equal(t, "e2", events[0].ID)
		assert.Equal(t, "e1", events[1].ID)

		// The freed index can be reused
		require.NoError(t, backend.CreateEvent(ctx, testEvent("e0", 1, "city-c", "alice")))

		clash := testEvent("e1", 2, "city-a", "alice")
		err = backend.UpdateEvent(ctx, clash)
		assert.True(t, errors.Is(err, errors.ErrCodeValidationDuplicate))

		err = backend.UpdateEvent(ctx, testEvent("ghost", 9, ""))
		assert.True(t, errors.Is(err, errors.ErrCodeEventNotFound))

		require.NoError(t, backend.DeleteEvent(ctx, "e2"))
		loc, err := backend.LocationAt(ctx, "ms-1", "alice", 2)
		require.NoError(t, err)
		require.NotNil(t, loc)
		assert.Equal(t, "e0", loc.EventID)

		err = backend.DeleteEvent(ctx, "e2")
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestBackend_Distances(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		require.NoError(t, backend.SetDistance(ctx, timeline.LocationDistance{ScopeID: "ms-1", LocationA: "zeta", LocationB: "alpha", Distance: 12.5}))

		ab, err := backend.GetDistance(ctx, "ms-1", "alpha", "zeta")
		require.NoError(t, err)
		ba, err := backend.GetDistance(ctx, "ms-1", "zeta", "alpha")
		require.NoError(t, err)
		require.NotNil(t, ab)
		require.NotNil(t, ba)
		assert.Equal(t, 12.5, ab.Distance)
		assert.Equal(t, ab, ba)

		// Overwrite in reverse order updates the single edge
		require.NoError(t, backend.SetDistance(ctx, timeline.LocationDistance{ScopeID: "ms-1", LocationA: "alpha", LocationB: "zeta", Distance: 7}))
		ab, err = backend.GetDistance(ctx, "ms-1", "zeta", "alpha")
		require.NoError(t, err)
		assert.Equal(t, 7.0, ab.Distance)

		other, err := backend.GetDistance(ctx, "w1", "alpha", "zeta")
		require.NoError(t, err)
		assert.Nil(t, other)
	})
}

func TestBackend_Profiles(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()
		base := timeline.TravelSpeedProfile{ManuscriptID: "ms-1", Subject: timeline.DefaultSubject, Speed: 5, CreatedAt: baseTime, UpdatedAt: baseTime}

		first, err := backend.CreateProfileIfAbsent(ctx, base)
		require.NoError(t, err)
		require.NotEmpty(t, first.ID)

		again := base
		again.Speed = 99
		second, err := backend.CreateProfileIfAbsent(ctx, again)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 5.0, second.Speed)

		updated, err := backend.UpsertProfile(ctx, again)
		require.NoError(t, err)
		assert.Equal(t, first.ID, updated.ID)
		assert.Equal(t, 99.0, updated.Speed)

		horse := timeline.TravelSpeedProfile{ManuscriptID: "ms-1", Subject: "alice", TransportMode: "horse", Speed: 20, CreatedAt: baseTime, UpdatedAt: baseTime}
		stored, err := backend.UpsertProfile(ctx, horse)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, stored.ID)

		profiles, err := backend.ListProfiles(ctx, "ms-1")
		require.NoError(t, err)
		require.Len(t, profiles, 2)
		assert.Equal(t, "alice", profiles[0].Subject)
		assert.Equal(t, timeline.DefaultSubject, profiles[1].Subject)
	})
}

func TestBackend_ConcurrentProfileCreation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()
		const callers = 16

		ids := make([]string, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				p, err := backend.CreateProfileIfAbsent(ctx, timeline.TravelSpeedProfile{
					ManuscriptID: "ms-1", Subject: timeline.DefaultSubject, Speed: 5, CreatedAt: baseTime, UpdatedAt: baseTime,
				})
				if assert.NoError(t, err) {
					ids[i] = p.ID
				}
			}(i)
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})
}

func TestBackend_Policy(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()

		none, err := backend.GetPolicy(ctx, "ms-1")
		require.NoError(t, err)
		assert.Nil(t, none)

		gap := 6.0
		require.NoError(t, backend.SetPolicy(ctx, timeline.ValidationPolicy{ManuscriptID: "ms-1", HoursPerOrderGap: &gap}))
		policy, err := backend.GetPolicy(ctx, "ms-1")
		require.NoError(t, err)
		require.NotNil(t, policy)
		require.NotNil(t, policy.HoursPerOrderGap)
		assert.Equal(t, 6.0, *policy.HoursPerOrderGap)
		assert.Nil(t, policy.Tolerance)

		err = backend.SetPolicy(ctx, timeline.ValidationPolicy{})
		assert.True(t, errors.IsInvalidInput(err))
	})
}

func TestBackend_ReconcileInconsistencies(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		ctx := context.Background()
		conflict := timeline.Finding{
			Type:             timeline.InconsistencyLocationConflict,
			Severity:         timeline.SeverityHigh,
			Description:      "alice is in two places",
			AffectedEventIDs: []string{"e2", "e1"},
			Details:          timeline.InconsistencyDetails{CharacterID: "alice", LocationIDs: []string{"city-a", "city-b"}},
		}
		transition := timeline.Finding{
			Type:             timeline.InconsistencyMissingTransition,
			Severity:         timeline.SeverityLow,
			Description:      "bob moves without travelling",
			AffectedEventIDs: []string{"e3", "e4"},
		}

		result, err := backend.ReconcileInconsistencies(ctx, "ms-1", []timeline.Finding{conflict, transition}, baseTime)
		require.NoError(t, err)
		assert.Equal(t, timeline.ReconcileResult{Added: 2}, result)

		open, err := backend.ListInconsistencies(ctx, "ms-1", false)
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, timeline.InconsistencyLocationConflict, open[0].Type)
		assert.Equal(t, []string{"e1", "e2"}, open[0].AffectedEventIDs)
		assert.Equal(t, "alice", open[0].ExtraData.CharacterID)
		conflictID := open[0].ID

		// Same findings again, in a different id order: nothing changes
		reordered := conflict
		reordered.AffectedEventIDs = []string{"e1", "e2"}
		result, err = backend.ReconcileInconsistencies(ctx, "ms-1", []timeline.Finding{transition, reordered}, baseTime.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, timeline.ReconcileResult{Unchanged: 2}, result)
		assert.Zero(t, result.Changes())

		// The transition is no longer produced: it is resolved, not deleted
		result, err = backend.ReconcileInconsistencies(ctx, "ms-1", []timeline.Finding{conflict}, baseTime.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, timeline.ReconcileResult{Resolved: 1, Unchanged: 1}, result)

		open, err = backend.ListInconsistencies(ctx, "ms-1", false)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, conflictID, open[0].ID)

		all, err := backend.ListInconsistencies(ctx, "ms-1", true)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, timeline.StatusResolved, all[1].Status)
		require.NotNil(t, all[1].ResolvedAt)
		transitionID := all[1].ID

		// Reproducing it reopens the original row
		result, err = backend.ReconcileInconsistencies(ctx, "ms-1", []timeline.Finding{conflict, transition}, baseTime.Add(3*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, timeline.ReconcileResult{Reopened: 1, Unchanged: 1}, result)

		open, err = backend.ListInconsistencies(ctx, "ms-1", false)
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, transitionID, open[1].ID)
		assert.Nil(t, open[1].ResolvedAt)
	})
}

func TestBackend_CanceledContext(t *testing.T) {
	backend := NewMemoryBackend()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := backend.CreateEvent(ctx, testEvent("e1", 1, ""))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = backend.ListEvents(ctx, "ms-1")
	assert.ErrorIs(t, err, context.Canceled)
}
