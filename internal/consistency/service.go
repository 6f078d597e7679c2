// Package consistency exposes the timeline engine's operations: editing the
// facts the detector reads and running validation with reconciliation.
package consistency

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JamesPrial/timeline-core/internal/detector"
	"github.com/JamesPrial/timeline-core/internal/events"
	"github.com/JamesPrial/timeline-core/internal/feasibility"
	"github.com/JamesPrial/timeline-core/internal/locations"
	"github.com/JamesPrial/timeline-core/internal/storage"
	"github.com/JamesPrial/timeline-core/internal/travel"
	"github.com/JamesPrial/timeline-core/pkg/config"
	"github.com/JamesPrial/timeline-core/pkg/errors"
	"github.com/JamesPrial/timeline-core/pkg/logging"
	"github.com/JamesPrial/timeline-core/pkg/timeline"
)

// ValidationResult is the outcome of one validation run
type ValidationResult struct {
	ManuscriptID string `json:"manuscriptId"`
	// Inconsistencies are the open findings after reconciliation.
	Inconsistencies []timeline.Inconsistency `json:"inconsistencies"`
	Reconcile       timeline.ReconcileResult `json:"reconcile"`
	EventsChecked   int                      `json:"eventsChecked"`
}

// Service coordinates the stores and the detector for one backend
type Service struct {
	backend  storage.Backend
	graph    *locations.Graph
	travel   *travel.Store
	events   *events.Store
	defaults detector.Options

	locks  *manuscriptLocks
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewService builds a service using the engine settings; nil settings use the defaults
func NewService(backend storage.Backend, settings *config.Settings) *Service {
	if settings == nil {
		settings = config.Default()
	}
	engine := settings.Engine

	return &Service{
		backend: backend,
		graph:   locations.NewGraph(backend, engine.FallbackDistance),
		travel:  travel.NewStore(backend, engine.DefaultSpeed),
		events:  events.NewStore(backend),
		defaults: detector.Options{
			Policy: feasibility.Policy{
				HoursPerOrderGap: engine.HoursPerOrderGap,
				Tolerance:        engine.Tolerance,
			},
			TransitionThreshold: engine.TransitionThreshold,
			TravelTypes:         engine.TravelTypes(),
			NonLinearTypes:      engine.NonLinearTypes(),
		},
		locks:  newManuscriptLocks(),
		logger: logging.GetGlobalLogger("consistency"),
		tracer: otel.Tracer("github.com/JamesPrial/timeline-core/internal/consistency"),
		now:    time.Now,
	}
}

// Events exposes the timeline store
func (s *Service) Events() *events.Store { return s.events }

// ValidateTimeline runs the detector over one manuscript and reconciles the stored
// findings. Runs for the same manuscript are serialized.
func (s *Service) ValidateTimeline(ctx context.Context, manuscriptID string) (*ValidationResult, error) {
	ctx = logging.WithManuscriptID(ctx, manuscriptID)
	ctx, span := s.tracer.Start(ctx, "consistency.ValidateTimeline",
		trace.WithAttributes(attribute.String("manuscript.id", manuscriptID)))
	defer span.End()

	timer := logging.StartTimer(ctx, s.logger, "validateTimeline")

	result, err := s.validate(timer.Context(), manuscriptID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		timer.EndWithError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("events", result.EventsChecked),
		attribute.Int("open", len(result.Inconsistencies)),
		attribute.Int("changes", result.Reconcile.Changes()),
	)
	timer.End()
	return result, nil
}

func (s *Service) validate(ctx context.Context, manuscriptID string) (*ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Classify(err, errors.ErrCodeContextCanceled, "validation canceled")
	}

	unlock := s.locks.lock(manuscriptID)
	defer unlock()

	list, err := s.events.ListEvents(ctx, manuscriptID)
	if err != nil {
		return nil, err
	}
	speeds, err := s.travel.Speeds(ctx, manuscriptID)
	if err != nil {
		return nil, err
	}
	policy, err := s.travel.Policy(ctx, manuscriptID)
	if err != nil {
		return nil, err
	}
	names, err := s.names(ctx, list)
	if err != nil {
		return nil, err
	}
	distance, distanceErr := s.graph.Lookup(ctx, manuscriptID)

	findings := detector.Detect(ctx, detector.Input{
		ManuscriptID: manuscriptID,
		Events:       list,
		Distance:     distance,
		Speed:        speeds.Speed,
		Names:        names,
		Options:      s.optionsFor(policy),
	})
	if err := distanceErr(); err != nil {
		return nil, err
	}

	reconciled, err := s.backend.ReconcileInconsistencies(ctx, manuscriptID, findings, s.now())
	if err != nil {
		return nil, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to reconcile inconsistencies")
	}
	open, err := s.backend.ListInconsistencies(ctx, manuscriptID, false)
	if err != nil {
		return nil, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to list inconsistencies")
	}

	s.logger.InfoContext(ctx, "Timeline validated",
		slog.String("manuscript_id", manuscriptID),
		slog.Int("events", len(list)),
		slog.Int("findings", len(findings)),
		slog.Int("added", reconciled.Added),
		slog.Int("resolved", reconciled.Resolved),
		slog.Int("reopened", reconciled.Reopened),
	)

	return &ValidationResult{
		ManuscriptID:    manuscriptID,
		Inconsistencies: open,
		Reconcile:       reconciled,
		EventsChecked:   len(list),
	}, nil
}

// Rescan validates a manuscript and reports how many stored findings changed
func (s *Service) Rescan(ctx context.Context, manuscriptID string) (int, error) {
	result, err := s.ValidateTimeline(ctx, manuscriptID)
	if err != nil {
		return 0, err
	}
	return result.Reconcile.Changes(), nil
}

func (s *Service) optionsFor(policy timeline.ValidationPolicy) detector.Options {
	opts := s.defaults
	opts.Policy = opts.Policy.WithOverrides(policy)
	if policy.TransitionThreshold != nil {
		opts.TransitionThreshold = *policy.TransitionThreshold
	}
	return opts
}

// names resolves display names for every entity the events reference
func (s *Service) names(ctx context.Context, list []timeline.TimelineEvent) (map[string]string, error) {
	names := make(map[string]string)
	resolve := func(id string) error {
		if id == "" {
			return nil
		}
		if _, done := names[id]; done {
			return nil
		}
		entity, err := s.backend.GetEntity(ctx, id)
		if err != nil {
			return errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to resolve entity")
		}
		names[id] = id
		if entity != nil && entity.Name != "" {
			names[id] = entity.Name
		}
		return nil
	}

	for _, e := range list {
		if err := resolve(e.LocationID); err != nil {
			return nil, err
		}
		for _, id := range e.CharacterIDs {
			if err := resolve(id); err != nil {
				return nil, err
			}
		}
	}
	return names, nil
}

// ListInconsistencies returns the stored findings of a manuscript
func (s *Service) ListInconsistencies(ctx context.Context, manuscriptID string, includeResolved bool) ([]timeline.Inconsistency, error) {
	if err := s.requireManuscript(ctx, manuscriptID); err != nil {
		return nil, err
	}
	items, err := s.backend.ListInconsistencies(ctx, manuscriptID, includeResolved)
	if err != nil {
		return nil, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to list inconsistencies")
	}
	return items, nil
}

// GetOrCreateTravelProfile returns the manuscript's default travel profile
func (s *Service) GetOrCreateTravelProfile(ctx context.Context, manuscriptID string) (*timeline.TravelSpeedProfile, error) {
	if err := s.requireManuscript(ctx, manuscriptID); err != nil {
		return nil, err
	}
	return s.travel.GetOrCreateProfile(ctx, manuscriptID)
}

// SetTravelProfile upserts a default, character or mode specific speed
func (s *Service) SetTravelProfile(ctx context.Context, manuscriptID, subject string, speed float64, mode string) (*timeline.TravelSpeedProfile, error) {
	if err := s.requireManuscript(ctx, manuscriptID); err != nil {
		return nil, err
	}
	return s.travel.SetProfile(ctx, manuscriptID, subject, speed, mode)
}

// EffectiveSpeed returns the speed that applies to a character
func (s *Service) EffectiveSpeed(ctx context.Context, manuscriptID, characterID, mode string) (float64, error) {
	if err := s.requireManuscript(ctx, manuscriptID); err != nil {
		return 0, err
	}
	return s.travel.EffectiveSpeed(ctx, manuscriptID, characterID, mode)
}

// SetValidationPolicy stores per-manuscript overrides of the engine defaults
func (s *Service) SetValidationPolicy(ctx context.Context, policy timeline.ValidationPolicy) error {
	if err := s.requireManuscript(ctx, policy.ManuscriptID); err != nil {
		return err
	}
	return s.travel.SetPolicy(ctx, policy)
}

// SetLocationDistance declares the distance between two locations for a
// manuscript. Use SetWorldDistance for distances shared by a whole world.
func (s *Service) SetLocationDistance(ctx context.Context, manuscriptID, a, b string, distance float64) error {
	if err := s.requireManuscript(ctx, manuscriptID); err != nil {
		return err
	}
	return s.graph.SetDistance(ctx, manuscriptID, a, b, distance)
}

// SetWorldDistance declares a distance visible to every manuscript of the world
func (s *Service) SetWorldDistance(ctx context.Context, worldID, a, b string, distance float64) error {
	return s.graph.SetDistance(ctx, worldID, a, b, distance)
}

// GetLocationDistance looks up a distance as the detector would see it
func (s *Service) GetLocationDistance(ctx context.Context, manuscriptID, a, b string) (float64, bool, error) {
	if err := s.requireManuscript(ctx, manuscriptID); err != nil {
		return 0, false, err
	}
	return s.graph.GetDistance(ctx, manuscriptID, a, b)
}

// CreateEvent adds an event to a manuscript's timeline
func (s *Service) CreateEvent(ctx context.Context, in events.NewEvent) (*timeline.TimelineEvent, error) {
	return s.events.CreateEvent(ctx, in)
}

// UpsertEntities registers characters and locations from the entity layer
func (s *Service) UpsertEntities(ctx context.Context, entities []timeline.Entity) error {
	now := s.now()
	for i := range entities {
		if entities[i].CreatedAt.IsZero() {
			entities[i].CreatedAt = now
		}
		entities[i].UpdatedAt = now
	}
	if err := s.backend.UpsertEntities(ctx, entities); err != nil {
		return errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to store entities")
	}
	return nil
}

// UpsertManuscript registers a manuscript from the persistence layer
func (s *Service) UpsertManuscript(ctx context.Context, manuscript timeline.Manuscript) error {
	if manuscript.ID == "" {
		return errors.ValidationRequired("id")
	}
	if manuscript.CreatedAt.IsZero() {
		manuscript.CreatedAt = s.now()
	}
	if err := s.backend.UpsertManuscript(ctx, manuscript); err != nil {
		return errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to store manuscript")
	}
	return nil
}

// ListManuscripts returns the manuscripts of a world
func (s *Service) ListManuscripts(ctx context.Context, worldID string) ([]timeline.Manuscript, error) {
	items, err := s.backend.ListManuscripts(ctx, worldID)
	if err != nil {
		return nil, errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to list manuscripts")
	}
	return items, nil
}

func (s *Service) requireManuscript(ctx context.Context, manuscriptID string) error {
	if manuscriptID == "" {
		return errors.ValidationRequired("manuscriptId")
	}
	manuscript, err := s.backend.GetManuscript(ctx, manuscriptID)
	if err != nil {
		return errors.Classify(err, errors.ErrCodeStorageTransaction, "failed to load manuscript")
	}
	if manuscript == nil {
		return errors.NotFound(errors.ErrCodeManuscriptNotFound, "manuscript", manuscriptID)
	}
	return nil
}

// manuscriptLocks hands out one mutex per manuscript and frees it when unused
type manuscriptLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newManuscriptLocks() *manuscriptLocks {
	return &manuscriptLocks{locks: make(map[string]*refMutex)}
}

func (l *manuscriptLocks) lock(manuscriptID string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[manuscriptID]
	if !ok {
		m = &refMutex{}
		l.locks[manuscriptID] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, manuscriptID)
		}
		l.mu.Unlock()
	}
}
