package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/JamesPrial/timeline-core/pkg/logging"
	"github.com/JamesPrial/timeline-core/pkg/timeline"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSpeed               = 5.0
	DefaultHoursPerOrderGap    = 24.0
	DefaultTransitionThreshold = 50.0
	DefaultScanWorkers         = 4
)

type Settings struct {
	StorageType string         `yaml:"storageType" env:"TIMELINE_STORAGE_TYPE"`
	StoragePath string         `yaml:"storagePath" env:"TIMELINE_STORAGE_PATH"`
	Sqlite      SqliteSettings `yaml:"sqlite"`
	Logging     logging.Config `yaml:"logging"`
	Engine      EngineSettings `yaml:"engine"`
	Scan        ScanSettings   `yaml:"scan"`
}

type SqliteSettings struct {
	WALMode bool `yaml:"walMode" env:"TIMELINE_SQLITE_WAL"`
}

// EngineSettings are the validation policy defaults. Manuscripts may override
// the heuristic, tolerance and threshold through a stored ValidationPolicy.
type EngineSettings struct {
	// DefaultSpeed is in distance units per hour.
	DefaultSpeed float64 `yaml:"defaultSpeed" env:"TIMELINE_DEFAULT_SPEED"`
	// HoursPerOrderGap is the elapsed time assumed per order index step when
	// timestamps are missing or not comparable.
	HoursPerOrderGap    float64 `yaml:"hoursPerOrderGap" env:"TIMELINE_HOURS_PER_ORDER_GAP"`
	Tolerance           float64 `yaml:"tolerance" env:"TIMELINE_TOLERANCE"`
	TransitionThreshold float64 `yaml:"transitionThreshold" env:"TIMELINE_TRANSITION_THRESHOLD"`
	// FallbackDistance is used when no edge is declared. Nil disables it.
	FallbackDistance    *float64 `yaml:"fallbackDistance,omitempty"`
	TravelEventTypes    []string `yaml:"travelEventTypes" env:"TIMELINE_TRAVEL_EVENT_TYPES" envSeparator:","`
	NonLinearEventTypes []string `yaml:"nonLinearEventTypes" env:"TIMELINE_NONLINEAR_EVENT_TYPES" envSeparator:","`
}

type ScanSettings struct {
	Workers int `yaml:"workers" env:"TIMELINE_SCAN_WORKERS"`
}

// Default returns settings with every engine default filled in
func Default() *Settings {
	return &Settings{
		StorageType: "memory",
		Logging:     *logging.DefaultConfig(),
		Engine: EngineSettings{
			DefaultSpeed:        DefaultSpeed,
			HoursPerOrderGap:    DefaultHoursPerOrderGap,
			TransitionThreshold: DefaultTransitionThreshold,
			TravelEventTypes:    []string{string(timeline.EventTypeTravel), string(timeline.EventTypeTransit)},
			NonLinearEventTypes: []string{string(timeline.EventTypeFlashback), string(timeline.EventTypeDream)},
		},
		Scan: ScanSettings{Workers: DefaultScanWorkers},
	}
}

// Validate validates the configuration settings and normalizes case-insensitive values
func (s *Settings) Validate() error {
	validStorageTypes := map[string]bool{
		"memory": true,
		"sqlite": true,
		"":       true, // Empty defaults to memory
	}
	normalizedStorageType := strings.ToLower(strings.TrimSpace(s.StorageType))
	if !validStorageTypes[normalizedStorageType] {
		return fmt.Errorf("storageType must be one of [memory, sqlite], got '%s'", s.StorageType)
	}
	s.StorageType = normalizedStorageType

	if normalizedStorageType == "sqlite" && strings.TrimSpace(s.StoragePath) == "" {
		return fmt.Errorf("storagePath cannot be empty when storageType is sqlite")
	}

	if err := s.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	e := &s.Engine
	if !positive(e.DefaultSpeed) {
		return fmt.Errorf("engine.defaultSpeed must be greater than 0, got %v", e.DefaultSpeed)
	}
	if !nonNegative(e.HoursPerOrderGap) {
		return fmt.Errorf("engine.hoursPerOrderGap must be >= 0, got %v", e.HoursPerOrderGap)
	}
	if !nonNegative(e.Tolerance) {
		return fmt.Errorf("engine.tolerance must be >= 0, got %v", e.Tolerance)
	}
	if !nonNegative(e.TransitionThreshold) {
		return fmt.Errorf("engine.transitionThreshold must be >= 0, got %v", e.TransitionThreshold)
	}
	if e.FallbackDistance != nil && !nonNegative(*e.FallbackDistance) {
		return fmt.Errorf("engine.fallbackDistance must be >= 0, got %v", *e.FallbackDistance)
	}
	e.TravelEventTypes = normalizeTypes(e.TravelEventTypes)
	e.NonLinearEventTypes = normalizeTypes(e.NonLinearEventTypes)

	if s.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be at least 1, got %d", s.Scan.Workers)
	}

	return nil
}

// TravelTypes returns the configured travel event types as a set
func (e EngineSettings) TravelTypes() map[timeline.EventType]bool {
	return typeSet(e.TravelEventTypes)
}

// NonLinearTypes returns the configured non-linear event types as a set
func (e EngineSettings) NonLinearTypes() map[timeline.EventType]bool {
	return typeSet(e.NonLinearEventTypes)
}

// Load reads a YAML file on top of the defaults, applies TIMELINE_* environment
// overrides and validates the result
func Load(path string) (*Settings, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	settings := Default()
	if err := yaml.Unmarshal(bytes, settings); err != nil {
		return nil, err
	}

	return finish(settings)
}

// LoadFromEnv builds settings from the defaults and the environment only
func LoadFromEnv() (*Settings, error) {
	return finish(Default())
}

func finish(settings *Settings) (*Settings, error) {
	if err := env.Parse(settings); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

func normalizeTypes(types []string) []string {
	out := make([]string, 0, len(types))
	for _, t := range timeline.NormalizeIDs(types) {
		out = append(out, string(timeline.ParseEventType(t)))
	}
	return out
}

func typeSet(types []string) map[timeline.EventType]bool {
	set := make(map[timeline.EventType]bool, len(types))
	for _, t := range types {
		set[timeline.ParseEventType(t)] = true
	}
	return set
}
