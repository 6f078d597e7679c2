// Package travel manages per-manuscript travel speed profiles and validation
// policy overrides.
package travel

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
)

// DefaultSpeed is walking pace in distance units per hour
const DefaultSpeed = 5.0

// Store reads and writes travel profiles
type Store struct {
	backend      storage.Backend
	defaultSpeed float64
	logger       *slog.Logger
	now          func() time.Time
}

// NewStore creates a profile store. A non-positive defaultSpeed selects DefaultSpeed.
func NewStore(backend storage.Backend, defaultSpeed float64) *Store {
	if !(defaultSpeed > 0) || math.IsInf(defaultSpeed, 0) {
		defaultSpeed = DefaultSpeed
	}
	return &Store{
		backend:      backend,
		defaultSpeed: defaultSpeed,
		logger:       logging.GetGlobalLogger("travel"),
		now:          time.Now,
	}
}

// GetOrCreateProfile returns the manuscript's default profile, creating it on first access.
// Every call returns the same profile identity.
func (s *Store) GetOrCreateProfile(ctx context.Context, manuscriptID string) (*timeline.TravelSpeedProfile, error) {
	if strings.TrimSpace(manuscriptID) == "" {
		return nil, errors.ValidationRequired("manuscript id")
	}
	now := s.now().UTC()
	profile, err := s.backend.CreateProfileIfAbsent(ctx, timeline.TravelSpeedProfile{
		ManuscriptID: manuscriptID,
		Subject:      timeline.DefaultSubject,
		Speed:        s.defaultSpeed,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to load travel profile")
	}
	return profile, nil
}

// SetProfile upserts the speed for a subject ("default" or a character id) and
// optional transport mode
func (s *Store) SetProfile(ctx context.Context, manuscriptID, subject string, speed float64, mode string) (*timeline.TravelSpeedProfile, error) {
	if strings.TrimSpace(manuscriptID) == "" {
		return nil, errors.ValidationRequired("manuscript id")
	}
	if !(speed > 0) || math.IsInf(speed, 0) {
		return nil, errors.Newf(errors.ErrCodeValidationRange, "speed must be a finite number greater than 0, got %v", speed)
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = timeline.DefaultSubject
	}

	now := s.now().UTC()
	profile, err := s.backend.UpsertProfile(ctx, timeline.TravelSpeedProfile{
		ManuscriptID:  manuscriptID,
		Subject:       subject,
		TransportMode: normalizeMode(mode),
		Speed:         speed,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to store travel profile")
	}

	s.logger.DebugContext(ctx, "Travel profile set",
		slog.String("manuscript_id", manuscriptID),
		slog.String("subject", subject),
		slog.String("transport_mode", profile.TransportMode),
		slog.Float64("speed", speed),
	)
	return profile, nil
}

// Speeds loads every profile of a manuscript into a lookup table, creating the
// default profile if needed
func (s *Store) Speeds(ctx context.Context, manuscriptID string) (*SpeedTable, error) {
	def, err := s.GetOrCreateProfile(ctx, manuscriptID)
	if err != nil {
		return nil, err
	}
	profiles, err := s.backend.ListProfiles(ctx, manuscriptID)
	if err != nil {
		return nil, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to list travel profiles")
	}
	return NewSpeedTable(def.Speed, profiles), nil
}

// EffectiveSpeed returns the speed that applies to a character travelling by mode
func (s *Store) EffectiveSpeed(ctx context.Context, manuscriptID, characterID, mode string) (float64, error) {
	table, err := s.Speeds(ctx, manuscriptID)
	if err != nil {
		return 0, err
	}
	return table.Speed(characterID, mode), nil
}

// Policy returns the manuscript's stored overrides, or an empty policy
func (s *Store) Policy(ctx context.Context, manuscriptID string) (timeline.ValidationPolicy, error) {
	policy, err := s.backend.GetPolicy(ctx, manuscriptID)
	if err != nil {
		return timeline.ValidationPolicy{}, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to load validation policy")
	}
	if policy == nil {
		return timeline.ValidationPolicy{ManuscriptID: manuscriptID}, nil
	}
	return *policy, nil
}

// SetPolicy replaces the manuscript's overrides. Nil fields fall back to engine defaults.
func (s *Store) SetPolicy(ctx context.Context, policy timeline.ValidationPolicy) error {
	for name, v := range map[string]*float64{
		"hoursPerOrderGap":    policy.HoursPerOrderGap,
		"tolerance":           policy.Tolerance,
		"transitionThreshold": policy.TransitionThreshold,
	} {
		if v != nil && (*v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return errors.Newf(errors.ErrCodeValidationRange, "%s must be a finite number >= 0, got %v", name, *v)
		}
	}
	if err := s.backend.SetPolicy(ctx, policy); err != nil {
		return errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to store validation policy")
	}
	return nil
}

func normalizeMode(mode string) string {
	return strings.ToLower(strings.TrimSpace(mode))
}
