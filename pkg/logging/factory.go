package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Factory creates and manages loggers for different components
type Factory struct {
	config  *Config
	loggers map[string]*slog.Logger
	mu      sync.RWMutex

	handler slog.Handler
	closer  io.Closer
}

// NewFactory creates a new logger factory
func NewFactory(config *Config) (*Factory, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	f := &Factory{
		config:  config,
		loggers: make(map[string]*slog.Logger),
	}

	writer, err := f.openOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize handler: %w", err)
	}
	f.handler = f.newHandler(writer)

	return f, nil
}

// NewFactoryWithWriter creates a factory that writes to w regardless of the configured output
func NewFactoryWithWriter(config *Config, w io.Writer) (*Factory, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	f := &Factory{
		config:  config,
		loggers: make(map[string]*slog.Logger),
	}
	f.handler = f.newHandler(w)
	return f, nil
}

func (f *Factory) openOutput() (io.Writer, error) {
	switch f.config.Output {
	case LogOutputStdout:
		return os.Stdout, nil
	case LogOutputFile:
		file, err := os.OpenFile(f.config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		f.closer = file
		return file, nil
	default:
		return os.Stderr, nil
	}
}

// newHandler creates the base slog handler. Its level is the most verbose level
// configured anywhere; component loggers filter on top of it.
func (f *Factory) newHandler(writer io.Writer) slog.Handler {
	minLevel := slogLevel(f.config.Level)
	for _, level := range f.config.ComponentLevels {
		if l := slogLevel(level); l < minLevel {
			minLevel = l
		}
	}

	opts := &slog.HandlerOptions{
		Level:     minLevel,
		AddSource: f.config.EnableCaller,
	}

	if f.config.Format == LogFormatText {
		return slog.NewTextHandler(writer, opts)
	}
	return slog.NewJSONHandler(writer, opts)
}

// GetLogger returns a logger for a specific component
func (f *Factory) GetLogger(component string) *slog.Logger {
	f.mu.RLock()
	if logger, exists := f.loggers[component]; exists {
		f.mu.RUnlock()
		return logger
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double-check after acquiring write lock
	if logger, exists := f.loggers[component]; exists {
		return logger
	}

	level := f.config.GetLevelForComponent(component)
	handler := &levelHandler{handler: f.handler, level: slogLevel(level)}
	logger := slog.New(handler).With(slog.String("component", component))

	f.loggers[component] = logger
	return logger
}

// WithContext creates a logger carrying the request-scoped values found in ctx
func (f *Factory) WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = f.GetLogger("default")
	}

	var args []any
	if f.config.EnableRequestID {
		if reqID := GetRequestID(ctx); reqID != "" {
			args = append(args, slog.String("request_id", reqID))
		}
	}
	if op := GetOperation(ctx); op != "" {
		args = append(args, slog.String("operation", op))
	}
	if manuscriptID := GetManuscriptID(ctx); manuscriptID != "" {
		args = append(args, slog.String("manuscript_id", manuscriptID))
	}
	if worldID := GetWorldID(ctx); worldID != "" {
		args = append(args, slog.String("world_id", worldID))
	}
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}

// UpdateLevel dynamically updates the log level for a component
func (f *Factory) UpdateLevel(component string, level LogLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.config.ComponentLevels == nil {
		f.config.ComponentLevels = make(map[string]LogLevel)
	}
	f.config.ComponentLevels[component] = level

	// Remove cached logger to force recreation with new level
	delete(f.loggers, component)
}

// Close releases the log file, if any
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closer != nil {
		if err := f.closer.Close(); err != nil {
			return fmt.Errorf("failed to close log output: %w", err)
		}
		f.closer = nil
	}
	return nil
}

// slogLevel converts our LogLevel to slog.Level
func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// levelHandler filters records below a component's level
type levelHandler struct {
	handler slog.Handler
	level   slog.Level
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.handler.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.handler.Handle(ctx, record)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{handler: h.handler.WithAttrs(attrs), level: h.level}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{handler: h.handler.WithGroup(name), level: h.level}
}

// Global factory instance
var (
	globalFactory *Factory
	globalMu      sync.RWMutex
)

// Initialize sets up the global logger factory
func Initialize(config *Config) error {
	factory, err := NewFactory(config)
	if err != nil {
		return err
	}
	return setGlobal(factory)
}

// InitializeWithWriter sets up the global logger factory writing to w
func InitializeWithWriter(config *Config, w io.Writer) error {
	factory, err := NewFactoryWithWriter(config, w)
	if err != nil {
		return err
	}
	return setGlobal(factory)
}

func setGlobal(factory *Factory) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalFactory != nil {
		if err := globalFactory.Close(); err != nil {
			return fmt.Errorf("failed to close existing factory: %w", err)
		}
	}
	globalFactory = factory
	return nil
}

// GetGlobalLogger returns a logger from the global factory
func GetGlobalLogger(component string) *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalFactory == nil {
		// Return default logger if not initialized
		return slog.Default().With(slog.String("component", component))
	}

	return globalFactory.GetLogger(component)
}

// Shutdown gracefully shuts down the global logging factory
func Shutdown() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalFactory == nil {
		return nil
	}

	err := globalFactory.Close()
	globalFactory = nil
	return err
}

// UpdateGlobalLevel dynamically updates the log level for a component
func UpdateGlobalLevel(component string, level LogLevel) {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalFactory == nil {
		return
	}

	globalFactory.UpdateLevel(component, level)
}
