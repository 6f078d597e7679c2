package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// TestLogger captures logs for testing and verification
type TestLogger struct {
	mu      sync.Mutex
	entries []TestLogEntry
	buffer  *bytes.Buffer
}

// TestLogEntry represents a captured log entry
type TestLogEntry struct {
	Level     string
	Message   string
	Component string
	Attrs     map[string]interface{}
}

// NewTestLogger creates a new test logger that captures log output
func NewTestLogger() *TestLogger {
	return &TestLogger{buffer: bytes.NewBuffer(nil)}
}

// Write lets the TestLogger act as the output of a JSON handler
func (tl *TestLogger) Write(p []byte) (int, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.buffer.Write(p)
}

// GetLogger returns a slog.Logger that writes to this test logger
func (tl *TestLogger) GetLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(tl, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// GetEntries returns all captured log entries
func (tl *TestLogger) GetEntries() []TestLogEntry {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	tl.parseBuffer()
	entries := make([]TestLogEntry, len(tl.entries))
	copy(entries, tl.entries)
	return entries
}

// GetEntriesWithMessage returns log entries containing the specified message
func (tl *TestLogger) GetEntriesWithMessage(message string) []TestLogEntry {
	var filtered []TestLogEntry
	for _, entry := range tl.GetEntries() {
		if strings.Contains(entry.Message, message) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// parseBuffer parses the JSON log buffer and converts to entries
func (tl *TestLogger) parseBuffer() {
	if tl.buffer.Len() == 0 {
		return
	}

	for _, line := range strings.Split(strings.TrimSpace(tl.buffer.String()), "\n") {
		if line == "" {
			continue
		}
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}

		entry := TestLogEntry{Attrs: make(map[string]interface{})}
		for key, value := range raw {
			switch key {
			case "level":
				entry.Level, _ = value.(string)
			case "msg":
				entry.Message, _ = value.(string)
			case "component":
				entry.Component, _ = value.(string)
			case "time":
			default:
				entry.Attrs[key] = value
			}
		}
		tl.entries = append(tl.entries, entry)
	}

	tl.buffer.Reset()
}

// Clear resets all captured entries and buffer
func (tl *TestLogger) Clear() {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	tl.entries = tl.entries[:0]
	tl.buffer.Reset()
}

// AssertLogged verifies that a log entry with the specified level and message was captured
func (tl *TestLogger) AssertLogged(t *testing.T, level, message string) {
	t.Helper()

	entries := tl.GetEntries()
	for _, entry := range entries {
		if strings.EqualFold(entry.Level, level) && strings.Contains(entry.Message, message) {
			return
		}
	}

	t.Errorf("Expected log entry with level=%s message=%s not found. Captured entries:", level, message)
	for i, entry := range entries {
		t.Errorf("  [%d] %s: %s", i, entry.Level, entry.Message)
	}
}
