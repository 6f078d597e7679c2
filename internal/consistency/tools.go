package consistency

import (
	"context"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/JamesPrial/timeline-core/internal/events"
	"github.com/JamesPrial/timeline-core/internal/scan"
	"github.com/JamesPrial/timeline-core/pkg/errors"
	"github.com/JamesPrial/timeline-core/pkg/timeline"
)

// Tool describes a callable operation with its metadata
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Tools dispatches named tool calls to the service and the scan runner
type Tools struct {
	service *Service
	scans   *scan.Runner
}

// NewTools wires the dispatcher. scans may be nil, in which case the scan tools fail.
func NewTools(service *Service, scans *scan.Runner) *Tools {
	return &Tools{service: service, scans: scans}
}

// HandleListTools returns the list of available tools
func (t *Tools) HandleListTools() []Tool {
	return []Tool{
		{Name: "timeline__upsert_entities", Description: "Register characters and locations"},
		{Name: "timeline__upsert_manuscript", Description: "Register a manuscript and its world"},
		{Name: "timeline__create_event", Description: "Add an event to a manuscript timeline"},
		{Name: "timeline__update_event", Description: "Change fields of an existing event"},
		{Name: "timeline__reorder_event", Description: "Move an event to a new order index"},
		{Name: "timeline__delete_event", Description: "Remove an event from its timeline"},
		{Name: "timeline__list_events", Description: "List a manuscript's events in story order"},
		{Name: "timeline__location_at", Description: "Where a character is at a given event"},
		{Name: "timeline__set_location_distance", Description: "Declare the distance between two locations for a manuscript or world"},
		{Name: "timeline__get_location_distance", Description: "Look up the distance between two locations"},
		{Name: "timeline__get_travel_profile", Description: "Get or create the manuscript's default travel profile"},
		{Name: "timeline__set_travel_profile", Description: "Set a default, character or transport mode travel speed"},
		{Name: "timeline__set_validation_policy", Description: "Override the elapsed time heuristic, tolerance or transition threshold"},
		{Name: "timeline__validate_timeline", Description: "Detect inconsistencies in a manuscript and reconcile stored findings"},
		{Name: "timeline__list_inconsistencies", Description: "List stored inconsistencies of a manuscript"},
		{Name: "timeline__start_world_scan", Description: "Start a background rescan of every manuscript in a world"},
		{Name: "timeline__poll_scan", Description: "Get the progress of a world scan"},
	}
}

// HandleCallTool handles tool calls for the timeline operations
func (t *Tools) HandleCallTool(ctx context.Context, toolName string, args map[string]interface{}) (interface{}, error) {
	// Check context cancellation early
	if err := ctx.Err(); err != nil {
		return nil, errors.Classify(err, errors.ErrCodeContextCanceled, "tool call canceled")
	}

	switch toolName {
	case "timeline__upsert_entities":
		return t.handleUpsertEntities(ctx, args)
	case "timeline__upsert_manuscript":
		return t.handleUpsertManuscript(ctx, args)
	case "timeline__create_event":
		return t.handleCreateEvent(ctx, args)
	case "timeline__update_event":
		return t.handleUpdateEvent(ctx, args)
	case "timeline__reorder_event":
		return t.handleReorderEvent(ctx, args)
	case "timeline__delete_event":
		return t.handleDeleteEvent(ctx, args)
	case "timeline__list_events":
		return t.handleListEvents(ctx, args)
	case "timeline__location_at":
		return t.handleLocationAt(ctx, args)
	case "timeline__set_location_distance":
		return t.handleSetDistance(ctx, args)
	case "timeline__get_location_distance":
		return t.handleGetDistance(ctx, args)
	case "timeline__get_travel_profile":
		return t.handleGetProfile(ctx, args)
	case "timeline__set_travel_profile":
		return t.handleSetProfile(ctx, args)
	case "timeline__set_validation_policy":
		return t.handleSetPolicy(ctx, args)
	case "timeline__validate_timeline":
		return t.handleValidate(ctx, args)
	case "timeline__list_inconsistencies":
		return t.handleListInconsistencies(ctx, args)
	case "timeline__start_world_scan":
		return t.handleStartScan(ctx, args)
	case "timeline__poll_scan":
		return t.handlePollScan(args)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidOperation, "unknown tool: %s", toolName)
	}
}

// decode converts loosely typed JSON arguments into a typed request
func decode(args map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return errors.Internal(err)
	}
	if err := decoder.Decode(args); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidationInvalid, "invalid tool arguments")
	}
	return nil
}

type manuscriptArgs struct {
	ManuscriptID string `mapstructure:"manuscriptId"`
}

type eventArgs struct {
	EventID string `mapstructure:"eventId"`
}

func (t *Tools) handleUpsertEntities(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req struct {
		Entities []struct {
			ID      string `mapstructure:"id"`
			Name    string `mapstructure:"name"`
			Kind    string `mapstructure:"kind"`
			WorldID string `mapstructure:"worldId"`
		} `mapstructure:"entities"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	if len(req.Entities) == 0 {
		return nil, errors.ValidationRequired("entities")
	}

	entities := make([]timeline.Entity, 0, len(req.Entities))
	for _, e := range req.Entities {
		entities = append(entities, timeline.Entity{
			ID:      strings.TrimSpace(e.ID),
			Name:    e.Name,
			Kind:    timeline.EntityKind(strings.ToUpper(strings.TrimSpace(e.Kind))),
			WorldID: e.WorldID,
		})
	}
	if err := t.service.UpsertEntities(ctx, entities); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"count":   len(entities),
	}, nil
}

func (t *Tools) handleUpsertManuscript(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req struct {
		ID      string `mapstructure:"id"`
		WorldID string `mapstructure:"worldId"`
		Title   string `mapstructure:"title"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	manuscript := timeline.Manuscript{ID: strings.TrimSpace(req.ID), WorldID: req.WorldID, Title: req.Title}
	if err := t.service.UpsertManuscript(ctx, manuscript); err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true, "id": manuscript.ID}, nil
}

func (t *Tools) handleCreateEvent(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req events.NewEvent
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	return t.service.CreateEvent(ctx, req)
}

func (t *Tools) handleUpdateEvent(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var target eventArgs
	if err := decode(args, &target); err != nil {
		return nil, err
	}
	var patch events.EventPatch
	if err := decode(args, &patch); err != nil {
		return nil, err
	}
	return t.service.Events().UpdateEvent(ctx, target.EventID, patch)
}

func (t *Tools) handleReorderEvent(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req struct {
		EventID    string `mapstructure:"eventId"`
		OrderIndex *int   `mapstructure:"orderIndex"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	if req.OrderIndex == nil {
		return nil, errors.ValidationRequired("orderIndex")
	}
	return t.service.Events().Reorder(ctx, req.EventID, *req.OrderIndex)
}

func (t *Tools) handleDeleteEvent(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req eventArgs
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	if err := t.service.Events().DeleteEvent(ctx, req.EventID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true}, nil
}

func (t *Tools) handleListEvents(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req manuscriptArgs
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	list, err := t.service.Events().ListEvents(ctx, req.ManuscriptID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"events": list,
		"count":  len(list),
	}, nil
}

func (t *Tools) handleLocationAt(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req struct {
		ManuscriptID string `mapstructure:"manuscriptId"`
		CharacterID  string `mapstructure:"characterId"`
		EventID      string `mapstructure:"eventId"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	location, err := t.service.Events().LocationAt(ctx, req.ManuscriptID, req.CharacterID, req.EventID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"known":    location != nil,
		"location": location,
	}, nil
}

func (t *Tools) handleSetDistance(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req struct {
		ManuscriptID string   `mapstructure:"manuscriptId"`
		WorldID      string   `mapstructure:"worldId"`
		LocationA    string   `mapstructure:"locationA"`
		LocationB    string   `mapstructure:"locationB"`
		Distance     *float64 `mapstructure:"distance"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	if req.Distance == nil {
		return nil, errors.ValidationRequired("distance")
	}

	var err error
	switch {
	case req.ManuscriptID != "" && req.WorldID != "":
		return nil, errors.ValidationInvalid("scope", "give either manuscriptId or worldId, not both")
	case req.WorldID != "":
		err = t.service.SetWorldDistance(ctx, req.WorldID, req.LocationA, req.LocationB, *req.Distance)
	default:
		err = t.service.SetLocationDistance(ctx, req.ManuscriptID, req.LocationA, req.LocationB, *req.Distance)
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true}, nil
}

func (t *Tools) handleGetDistance(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req struct {
		ManuscriptID string `mapstructure:"manuscriptId"`
		LocationA    string `mapstructure:"locationA"`
		LocationB    string `mapstructure:"locationB"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	distance, known, err := t.service.GetLocationDistance(ctx, req.ManuscriptID, req.LocationA, req.LocationB)
	if err != nil {
		return nil, err
	}
	result := map[string]interface{}{"known": known}
	if known {
		result["distance"] = distance
	}
	return result, nil
}

func (t *Tools) handleGetProfile(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req manuscriptArgs
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	return t.service.GetOrCreateTravelProfile(ctx, req.ManuscriptID)
}

func (t *Tools) handleSetProfile(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req struct {
		ManuscriptID  string   `mapstructure:"manuscriptId"`
		Subject       string   `mapstructure:"subject"`
		Speed         *float64 `mapstructure:"speed"`
		TransportMode string   `mapstructure:"transportMode"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	if req.Speed == nil {
		return nil, errors.ValidationRequired("speed")
	}
	return t.service.SetTravelProfile(ctx, req.ManuscriptID, req.Subject, *req.Speed, req.TransportMode)
}

func (t *Tools) handleSetPolicy(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req struct {
		ManuscriptID        string   `mapstructure:"manuscriptId"`
		HoursPerOrderGap    *float64 `mapstructure:"hoursPerOrderGap"`
		Tolerance           *float64 `mapstructure:"tolerance"`
		TransitionThreshold *float64 `mapstructure:"transitionThreshold"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	policy := timeline.ValidationPolicy{
		ManuscriptID:        req.ManuscriptID,
		HoursPerOrderGap:    req.HoursPerOrderGap,
		Tolerance:           req.Tolerance,
		TransitionThreshold: req.TransitionThreshold,
	}
	if err := t.service.SetValidationPolicy(ctx, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

func (t *Tools) handleValidate(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req manuscriptArgs
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	return t.service.ValidateTimeline(ctx, req.ManuscriptID)
}

func (t *Tools) handleListInconsistencies(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req struct {
		ManuscriptID    string `mapstructure:"manuscriptId"`
		IncludeResolved bool   `mapstructure:"includeResolved"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	items, err := t.service.ListInconsistencies(ctx, req.ManuscriptID, req.IncludeResolved)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"inconsistencies": items,
		"count":           len(items),
	}, nil
}

func (t *Tools) handleStartScan(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if t.scans == nil {
		return nil, errors.New(errors.ErrCodeInvalidOperation, "world scans are not enabled")
	}
	var req struct {
		WorldID       string   `mapstructure:"worldId"`
		ManuscriptIDs []string `mapstructure:"manuscriptIds"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	return t.scans.Start(ctx, req.WorldID, req.ManuscriptIDs)
}

func (t *Tools) handlePollScan(args map[string]interface{}) (interface{}, error) {
	if t.scans == nil {
		return nil, errors.New(errors.ErrCodeInvalidOperation, "world scans are not enabled")
	}
	var req struct {
		TaskID string `mapstructure:"taskId"`
	}
	if err := decode(args, &req); err != nil {
		return nil, err
	}
	return t.scans.Poll(req.TaskID)
}
