package errors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JamesPrial/timeline-core/pkg/logging"
)

// Logger provides centralized error logging
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a new error logger for a component using the global logging factory
func NewLogger(component string) *Logger {
	return &Logger{
		logger: logging.GetGlobalLogger(component),
	}
}

// NewLoggerWithSlog creates a new error logger with a specific slog logger
func NewLoggerWithSlog(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

// LogError logs an error with full context while returning a safe error for clients
func (l *Logger) LogError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("error_type", fmt.Sprintf("%T", err)),
	}
	if requestID := logging.GetRequestID(ctx); requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}
	if manuscriptID := logging.GetManuscriptID(ctx); manuscriptID != "" {
		attrs = append(attrs, slog.String("manuscript_id", manuscriptID))
	}

	if appErr, ok := as(err); ok {
		attrs = append(attrs,
			slog.String("error_code", string(appErr.Code)),
			slog.String("error_message", appErr.Message),
		)
		if appErr.Internal != nil {
			attrs = append(attrs, slog.String("internal_error", appErr.Internal.Error()))
		}
		if appErr.Details != nil {
			attrs = append(attrs, slog.Any("error_details", appErr.Details))
		}
		l.logger.LogAttrs(ctx, levelFor(appErr.Code), "Application error occurred", attrs...)
		return appErr
	}

	attrs = append(attrs,
		slog.String("error", err.Error()),
		slog.String("error_code", string(ErrCodeInternal)),
	)
	l.logger.LogAttrs(ctx, slog.LevelError, "Unexpected error occurred", attrs...)
	return Internal(err)
}

// LogAndWrap logs an error and wraps it with an AppError
func (l *Logger) LogAndWrap(ctx context.Context, err error, code ErrorCode, message, operation string) *AppError {
	if err == nil {
		return nil
	}
	appErr := Wrap(err, code, message)
	l.LogError(ctx, appErr, operation)
	return appErr
}

// levelFor determines the log level for an error code
func levelFor(code ErrorCode) slog.Level {
	switch {
	case strings.HasPrefix(string(code), "VALIDATION_"):
		return slog.LevelWarn
	case IsAny(New(code, ""), notFoundCodes...):
		return slog.LevelInfo
	case code == ErrCodePartialScanFailure:
		return slog.LevelWarn
	case strings.HasPrefix(string(code), "STORAGE_"), code == ErrCodeInternal:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
