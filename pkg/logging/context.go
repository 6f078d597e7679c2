package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Context keys for logging metadata
type contextKey string

const (
	contextKeyRequestID    contextKey = "request_id"
	contextKeyOperation    contextKey = "operation"
	contextKeyManuscriptID contextKey = "manuscript_id"
	contextKeyWorldID      contextKey = "world_id"
	contextKeyStartTime    contextKey = "start_time"
)

func stringValue(ctx context.Context, key contextKey) string {
	if val := ctx.Value(key); val != nil {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, contextKeyRequestID)
}

// WithOperation adds an operation name to the context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, contextKeyOperation, operation)
}

// GetOperation retrieves the operation from context
func GetOperation(ctx context.Context) string {
	return stringValue(ctx, contextKeyOperation)
}

// WithManuscriptID scopes the context to a manuscript
func WithManuscriptID(ctx context.Context, manuscriptID string) context.Context {
	return context.WithValue(ctx, contextKeyManuscriptID, manuscriptID)
}

// GetManuscriptID retrieves the manuscript ID from context
func GetManuscriptID(ctx context.Context) string {
	return stringValue(ctx, contextKeyManuscriptID)
}

// WithWorldID scopes the context to a story world
func WithWorldID(ctx context.Context, worldID string) context.Context {
	return context.WithValue(ctx, contextKeyWorldID, worldID)
}

// GetWorldID retrieves the world ID from context
func GetWorldID(ctx context.Context) string {
	return stringValue(ctx, contextKeyWorldID)
}

// WithStartTime adds the start time to the context
func WithStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, contextKeyStartTime, startTime)
}

// GetStartTime retrieves the start time from context
func GetStartTime(ctx context.Context) time.Time {
	if val := ctx.Value(contextKeyStartTime); val != nil {
		if t, ok := val.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

// NewRequestContext creates a new request context with a generated request ID
func NewRequestContext(ctx context.Context, operation string) context.Context {
	if GetRequestID(ctx) == "" {
		ctx = WithRequestID(ctx, GenerateID())
	}
	if operation != "" {
		ctx = WithOperation(ctx, operation)
	}
	return WithStartTime(ctx, time.Now())
}

// GenerateID generates a random ID for requests
func GenerateID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
