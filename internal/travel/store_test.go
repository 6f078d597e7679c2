package travel

import (
	"context"
	"sync"
	"testing"

	"github.com/JamesPrial/timeline-core/internal/storage"
	"github.com/JamesPrial/timeline-core/pkg/errors"
	"github.com/JamesPrial/timeline-core/pkg/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStore_GetOrCreateProfileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemoryBackend(), 0)

	first, err := store.GetOrCreateProfile(ctx, "ms-1")
	require.NoError(t, err)
	second, err := store.GetOrCreateProfile(ctx, "ms-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, DefaultSpeed, first.Speed)
	assert.Equal(t, timeline.DefaultSubject, first.Subject)

	other, err := store.GetOrCreateProfile(ctx, "ms-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestStore_GetOrCreateProfileConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemoryBackend(), 3)

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := store.GetOrCreateProfile(ctx, "ms-1")
			if assert.NoError(t, err) {
				ids[i] = p.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestStore_SetProfileValidation(t *testing.T) {
	ctx := context.Background()
	backend := new(storage.MockBackend)
	store := NewStore(backend, 0)

	for _, speed := range []float64{0, -2} {
		_, err := store.SetProfile(ctx, "ms-1", "alice", speed, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrCodeValidationRange))
	}
	_, err := store.SetProfile(ctx, "", "alice", 3, "")
	assert.True(t, errors.IsInvalidInput(err))

	backend.AssertNotCalled(t, "UpsertProfile", mock.Anything, mock.Anything)
}

func TestStore_EffectiveSpeedPrecedence(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemoryBackend(), 4)

	speed, err := store.EffectiveSpeed(ctx, "ms-1", "alice", "")
	require.NoError(t, err)
	assert.Equal(t, 4.0, speed, "manuscript default")

	_, err = store.SetProfile(ctx, "ms-1", timeline.DefaultSubject, 30, "Horse")
	require.NoError(t, err)
	_, err = store.SetProfile(ctx, "ms-1", "alice", 8, "")
	require.NoError(t, err)
	_, err = store.SetProfile(ctx, "ms-1", "alice", 60, "horse")
	require.NoError(t, err)

	tests := []struct {
		name      string
		character string
		mode      string
		want      float64
	}{
		{"character and mode", "alice", "horse", 60},
		{"mode is case-insensitive", "alice", " HORSE ", 60},
		{"character without mode", "alice", "", 8},
		{"character with unknown mode", "alice", "ship", 8},
		{"default with mode", "bob", "horse", 30},
		{"default", "bob", "", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			speed, err := store.EffectiveSpeed(ctx, "ms-1", tt.character, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.want, speed)
		})
	}
}

func TestStore_SetProfileUpdatesDefault(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemoryBackend(), 0)

	created, err := store.GetOrCreateProfile(ctx, "ms-1")
	require.NoError(t, err)
	updated, err := store.SetProfile(ctx, "ms-1", "", 12, "")
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	again, err := store.GetOrCreateProfile(ctx, "ms-1")
	require.NoError(t, err)
	assert.Equal(t, 12.0, again.Speed)
}

func TestStore_Policy(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemoryBackend(), 0)

	policy, err := store.Policy(ctx, "ms-1")
	require.NoError(t, err)
	assert.Equal(t, "ms-1", policy.ManuscriptID)
	assert.Nil(t, policy.HoursPerOrderGap)

	gap, bad := 12.0, -1.0
	require.NoError(t, store.SetPolicy(ctx, timeline.ValidationPolicy{ManuscriptID: "ms-1", HoursPerOrderGap: &gap}))
	policy, err = store.Policy(ctx, "ms-1")
	require.NoError(t, err)
	require.NotNil(t, policy.HoursPerOrderGap)
	assert.Equal(t, 12.0, *policy.HoursPerOrderGap)

	err = store.SetPolicy(ctx, timeline.ValidationPolicy{ManuscriptID: "ms-1", Tolerance: &bad})
	assert.True(t, errors.Is(err, errors.ErrCodeValidationRange))
}
