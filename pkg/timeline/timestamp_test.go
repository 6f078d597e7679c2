package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStoryTime(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantOK   bool
		wantKind TimestampKind
		wantHrs  float64
	}{
		{name: "empty", input: "", wantOK: false},
		{name: "garbage", input: "the next morning", wantOK: false},
		{name: "day count", input: "Day 3", wantOK: true, wantKind: TimestampDayCount, wantHrs: 48},
		{name: "day count with time", input: "day 2 06:30", wantOK: true, wantKind: TimestampDayCount, wantHrs: 30.5},
		{name: "day count invalid clock", input: "Day 2 25:00", wantOK: false},
		{name: "bare number", input: "36", wantOK: false},
		{name: "year", input: "1888", wantOK: false},
		{name: "hours word", input: "36 hours", wantOK: true, wantKind: TimestampHours, wantHrs: 36},
		{name: "hours suffix", input: "4.5h", wantOK: true, wantKind: TimestampHours, wantHrs: 4.5},
		{name: "offset form", input: "T+12 hours", wantOK: true, wantKind: TimestampHours, wantHrs: 12},
		{name: "calendar date", input: "1970-01-02", wantOK: true, wantKind: TimestampCalendar, wantHrs: 24},
		{name: "calendar date time", input: "1970-01-01 06:00", wantOK: true, wantKind: TimestampCalendar, wantHrs: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := ParseStoryTime(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantKind, st.Kind)
				assert.InDelta(t, tt.wantHrs, st.Hours, 1e-9)
			}
		})
	}
}

func TestElapsedHours(t *testing.T) {
	elapsed, ok := ElapsedHours("Day 1 08:00", "Day 2 10:00")
	require.True(t, ok)
	assert.InDelta(t, 26.0, elapsed, 1e-9)

	elapsed, ok = ElapsedHours("Day 4", "Day 2")
	require.True(t, ok)
	assert.InDelta(t, -48.0, elapsed, 1e-9)

	_, ok = ElapsedHours("Day 1", "36h")
	assert.False(t, ok, "mixed units are not comparable")

	_, ok = ElapsedHours("1888", "1889")
	assert.False(t, ok, "years fall back to the order heuristic")

	_, ok = ElapsedHours("", "Day 2")
	assert.False(t, ok)
}

func TestDedupKeyIsOrderInsensitive(t *testing.T) {
	a := DedupKey(InconsistencyLocationConflict, []string{"e2", "e1"})
	b := DedupKey(InconsistencyLocationConflict, []string{"e1", "e2", "e1"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, DedupKey(InconsistencyTimestampViolation, []string{"e1", "e2"}))
}

func TestParseEventType(t *testing.T) {
	assert.Equal(t, EventTypeTravel, ParseEventType(" travel "))
	assert.Equal(t, EventTypeScene, ParseEventType(""))
	assert.Equal(t, EventType("BATTLE"), ParseEventType("Battle"))
}

func TestNormalizeIDs(t *testing.T) {
	assert.Equal(t, []string{"b", "a"}, NormalizeIDs([]string{" b", "a", "", "b"}))
}
