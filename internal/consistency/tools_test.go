package consistency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesPrial/timeline-core/internal/scan"
	"github.com/JamesPrial/timeline-core/internal/storage"
	"github.com/JamesPrial/timeline-core/pkg/errors"
	"github.com/JamesPrial/timeline-core/pkg/timeline"
)

func setupTools(t *testing.T) (*Tools, *scan.Runner) {
	t.Helper()
	backend := storage.NewMemoryBackend()
	service := NewService(backend, nil)
	runner := scan.NewRunner(scan.NewCoordinator(), backend, service, 2)
	t.Cleanup(runner.Close)
	return NewTools(service, runner), runner
}

func call(t *testing.T, tools *Tools, name string, args map[string]interface{}) interface{} {
	t.Helper()
	result, err := tools.HandleCallTool(context.Background(), name, args)
	require.NoError(t, err, name)
	return result
}

func seed(t *testing.T, tools *Tools) {
	t.Helper()
	call(t, tools, "timeline__upsert_manuscript", map[string]interface{}{"id": "ms-1", "worldId": "w1", "title": "The Road"})
	call(t, tools, "timeline__upsert_entities", map[string]interface{}{
		"entities": []interface{}{
			map[string]interface{}{"id": "alice", "name": "Alice", "kind": "character", "worldId": "w1"},
			map[string]interface{}{"id": "city-a", "name": "City A", "kind": "location", "worldId": "w1"},
			map[string]interface{}{"id": "city-b", "name": "City B", "kind": "location", "worldId": "w1"},
		},
	})
}

func TestTools_HandleListTools(t *testing.T) {
	tools, _ := setupTools(t)
	list := tools.HandleListTools()

	names := make(map[string]bool)
	for _, tool := range list {
		assert.NotEmpty(t, tool.Description, tool.Name)
		assert.False(t, names[tool.Name], "duplicate tool %s", tool.Name)
		names[tool.Name] = true
	}
	for _, required := range []string{
		"timeline__get_travel_profile",
		"timeline__set_location_distance",
		"timeline__create_event",
		"timeline__validate_timeline",
		"timeline__start_world_scan",
		"timeline__poll_scan",
	} {
		assert.True(t, names[required], required)
	}
}

func TestTools_ValidateFlow(t *testing.T) {
	tools, _ := setupTools(t)
	seed(t, tools)

	call(t, tools, "timeline__set_location_distance", map[string]interface{}{
		"manuscriptId": "ms-1", "locationA": "city-a", "locationB": "city-b", "distance": 300.0,
	})
	first := call(t, tools, "timeline__create_event", map[string]interface{}{
		"manuscriptId": "ms-1", "description": "Departure", "eventType": "scene", "orderIndex": 1.0,
		"timestamp": "Day 1 08:00", "locationId": "city-a", "characterIds": []interface{}{"alice"},
	}).(*timeline.TimelineEvent)
	call(t, tools, "timeline__create_event", map[string]interface{}{
		"manuscriptId": "ms-1", "description": "Arrival", "orderIndex": 2.0,
		"timestamp": "Day 1 09:00", "locationId": "city-b", "characterIds": []interface{}{"alice"},
		"metadata": map[string]interface{}{"transportMode": "walk"},
	})

	result := call(t, tools, "timeline__validate_timeline", map[string]interface{}{"manuscriptId": "ms-1"}).(*ValidationResult)
	require.NotEmpty(t, result.Inconsistencies)

	var types []timeline.InconsistencyType
	for _, item := range result.Inconsistencies {
		types = append(types, item.Type)
	}
	assert.Contains(t, types, timeline.InconsistencyTimestampViolation)
	assert.Contains(t, types, timeline.InconsistencyMissingTransition)

	listed := call(t, tools, "timeline__list_inconsistencies", map[string]interface{}{"manuscriptId": "ms-1"}).(map[string]interface{})
	assert.Equal(t, len(result.Inconsistencies), listed["count"])

	location := call(t, tools, "timeline__location_at", map[string]interface{}{
		"manuscriptId": "ms-1", "characterId": "alice", "eventId": first.ID,
	}).(map[string]interface{})
	assert.Equal(t, true, location["known"])

	distance := call(t, tools, "timeline__get_location_distance", map[string]interface{}{
		"manuscriptId": "ms-1", "locationA": "city-b", "locationB": "city-a",
	}).(map[string]interface{})
	assert.Equal(t, 300.0, distance["distance"])
}

func TestTools_EventEditing(t *testing.T) {
	tools, _ := setupTools(t)
	seed(t, tools)

	event := call(t, tools, "timeline__create_event", map[string]interface{}{
		"manuscriptId": "ms-1", "orderIndex": 5, "locationId": "city-a", "characterIds": []interface{}{"alice"},
	}).(*timeline.TimelineEvent)

	updated := call(t, tools, "timeline__update_event", map[string]interface{}{
		"eventId": event.ID, "description": "Rewritten", "locationId": "city-b",
	}).(*timeline.TimelineEvent)
	assert.Equal(t, "Rewritten", updated.Description)
	assert.Equal(t, "city-b", updated.LocationID)
	assert.Equal(t, 5, updated.OrderIndex)

	moved := call(t, tools, "timeline__reorder_event", map[string]interface{}{"eventId": event.ID, "orderIndex": 9}).(*timeline.TimelineEvent)
	assert.Equal(t, event.ID, moved.ID)
	assert.Equal(t, 9, moved.OrderIndex)

	call(t, tools, "timeline__delete_event", map[string]interface{}{"eventId": event.ID})
	listed := call(t, tools, "timeline__list_events", map[string]interface{}{"manuscriptId": "ms-1"}).(map[string]interface{})
	assert.Equal(t, 0, listed["count"])
}

func TestTools_ProfilesAndPolicy(t *testing.T) {
	tools, _ := setupTools(t)
	seed(t, tools)

	first := call(t, tools, "timeline__get_travel_profile", map[string]interface{}{"manuscriptId": "ms-1"}).(*timeline.TravelSpeedProfile)
	second := call(t, tools, "timeline__get_travel_profile", map[string]interface{}{"manuscriptId": "ms-1"}).(*timeline.TravelSpeedProfile)
	assert.Equal(t, first.ID, second.ID)

	profile := call(t, tools, "timeline__set_travel_profile", map[string]interface{}{
		"manuscriptId": "ms-1", "subject": "alice", "speed": "12.5", "transportMode": "Horse",
	}).(*timeline.TravelSpeedProfile)
	assert.Equal(t, 12.5, profile.Speed)
	assert.Equal(t, "horse", profile.TransportMode)

	policy := call(t, tools, "timeline__set_validation_policy", map[string]interface{}{
		"manuscriptId": "ms-1", "hoursPerOrderGap": 8.0,
	}).(timeline.ValidationPolicy)
	require.NotNil(t, policy.HoursPerOrderGap)
	assert.Nil(t, policy.Tolerance)
}

func TestTools_Errors(t *testing.T) {
	tools, _ := setupTools(t)
	seed(t, tools)
	ctx := context.Background()

	tests := []struct {
		name string
		tool string
		args map[string]interface{}
		code errors.ErrorCode
	}{
		{"unknown tool", "timeline__nope", nil, errors.ErrCodeInvalidOperation},
		{"missing distance", "timeline__set_location_distance", map[string]interface{}{"manuscriptId": "ms-1", "locationA": "city-a", "locationB": "city-b"}, errors.ErrCodeValidationRequired},
		{"negative distance", "timeline__set_location_distance", map[string]interface{}{"manuscriptId": "ms-1", "locationA": "city-a", "locationB": "city-b", "distance": -1.0}, errors.ErrCodeValidationRange},
		{"two scopes", "timeline__set_location_distance", map[string]interface{}{"manuscriptId": "ms-1", "worldId": "w1", "locationA": "city-a", "locationB": "city-b", "distance": 1.0}, errors.ErrCodeValidationInvalid},
		{"bad argument type", "timeline__create_event", map[string]interface{}{"manuscriptId": "ms-1", "orderIndex": "first"}, errors.ErrCodeValidationInvalid},
		{"unknown manuscript", "timeline__validate_timeline", map[string]interface{}{"manuscriptId": "missing"}, errors.ErrCodeManuscriptNotFound},
		{"missing speed", "timeline__set_travel_profile", map[string]interface{}{"manuscriptId": "ms-1"}, errors.ErrCodeValidationRequired},
		{"missing order index", "timeline__reorder_event", map[string]interface{}{"eventId": "x"}, errors.ErrCodeValidationRequired},
		{"unknown task", "timeline__poll_scan", map[string]interface{}{"taskId": "missing"}, errors.ErrCodeTaskNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tools.HandleCallTool(ctx, tt.tool, tt.args)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestTools_WorldScan(t *testing.T) {
	tools, runner := setupTools(t)
	seed(t, tools)
	call(t, tools, "timeline__upsert_manuscript", map[string]interface{}{"id": "ms-2", "worldId": "w1", "title": "The Return"})

	task := call(t, tools, "timeline__start_world_scan", map[string]interface{}{"worldId": "w1"}).(timeline.ScanTask)
	assert.Equal(t, 2, task.TotalManuscripts)
	runner.Wait()

	final := call(t, tools, "timeline__poll_scan", map[string]interface{}{"taskId": task.ID}).(timeline.ScanTask)
	assert.Equal(t, timeline.ScanCompleted, final.Status)
	assert.Equal(t, 2, final.ManuscriptsCompleted)
	assert.Empty(t, final.Failures)
}

func TestTools_ScansDisabled(t *testing.T) {
	tools := NewTools(NewService(storage.NewMemoryBackend(), nil), nil)
	_, err := tools.HandleCallTool(context.Background(), "timeline__start_world_scan", map[string]interface{}{"worldId": "w1"})
	assert.Equal(t, errors.ErrCodeInvalidOperation, errors.GetCode(err))
}

func TestTools_CanceledContext(t *testing.T) {
	tools, _ := setupTools(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tools.HandleCallTool(ctx, "timeline__list_events", map[string]interface{}{"manuscriptId": "ms-1"})
	assert.Equal(t, errors.ErrCodeContextCanceled, errors.GetCode(err))
}
