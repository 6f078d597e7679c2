package timeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimestampKind identifies the unit family an in-story timestamp was written in.
// Only timestamps of the same kind can be compared.
type TimestampKind int

const (
	TimestampUnknown TimestampKind = iota
	// TimestampCalendar is an absolute date or date-time ("1888-09-30 23:15").
	TimestampCalendar
	// TimestampDayCount is a relative story day ("Day 3", "Day 3 14:00").
	TimestampDayCount
	// TimestampHours is an hour offset ("36h", "T+12", "4.5 hours"). A bare number
	// is not one; it is more often a year.
	TimestampHours
)

// StoryTime is a parsed in-story timestamp expressed in hours
type StoryTime struct {
	Kind  TimestampKind
	Hours float64
}

var (
	dayCountPattern = regexp.MustCompile(`(?i)^day\s+(-?\d+)(?:[,\s]+(\d{1,2}):(\d{2}))?$`)
	hoursPattern    = regexp.MustCompile(`(?i)^(t\+)?(-?\d+(?:\.\d+)?)\s*(h|hr|hrs|hour|hours)?$`)

	calendarLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}
)

// ParseStoryTime parses an in-story timestamp. The second result is false when the
// string is empty or in no recognized form.
func ParseStoryTime(raw string) (StoryTime, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return StoryTime{}, false
	}

	for _, layout := range calendarLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return StoryTime{Kind: TimestampCalendar, Hours: float64(t.Unix()) / 3600}, true
		}
	}

	if m := dayCountPattern.FindStringSubmatch(s); m != nil {
		day, err := strconv.Atoi(m[1])
		if err != nil {
			return StoryTime{}, false
		}
		hours := float64(day-1) * 24
		if m[2] != "" {
			h, _ := strconv.Atoi(m[2])
			min, _ := strconv.Atoi(m[3])
			if h > 23 || min > 59 {
				return StoryTime{}, false
			}
			hours += float64(h) + float64(min)/60
		}
		return StoryTime{Kind: TimestampDayCount, Hours: hours}, true
	}

	if m := hoursPattern.FindStringSubmatch(s); m != nil && (m[1] != "" || m[3] != "") {
		h, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return StoryTime{}, false
		}
		return StoryTime{Kind: TimestampHours, Hours: h}, true
	}

	return StoryTime{}, false
}

// ElapsedHours returns to-from in hours when both timestamps parse in a common unit
func ElapsedHours(from, to string) (float64, bool) {
	a, ok := ParseStoryTime(from)
	if !ok {
		return 0, false
	}
	b, ok := ParseStoryTime(to)
	if !ok || a.Kind != b.Kind {
		return 0, false
	}
	return b.Hours - a.Hours, true
}
