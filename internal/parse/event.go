package parse

import (
	"fmt"
	"strings"
	"time"
)

// RawEvent is the canonical form of one upstream calendar event, before
// occupancy classification. Point events (explicit check-in / check-out
// markers) carry a zero End.
type RawEvent struct {
	ExternalID string
	Title      string
	EventType  string
	Start      time.Time
	End        time.Time
}

// Upstream feeds disagree on field names. Each alias list is checked in order;
// the first present, non-empty value wins.
var (
	startKeys = []string{"start", "start_date", "start_time", "check_in", "checkin", "dtstart"}
	endKeys   = []string{"end", "end_date", "end_time", "check_out", "checkout", "dtend"}
	idKeys    = []string{"id", "uid", "external_id", "booking_reference"}
	titleKeys = []string{"title", "summary", "guest_name", "name"}
	typeKeys  = []string{"event_type", "type", "kind", "category"}
)

// Timestamp layouts seen across Google-style and iCal-style feeds.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"20060102T150405Z",
	"20060102T150405",
	"2006-01-02",
}

// ParseEvent extracts a RawEvent from one source-specific payload. Timestamps
// without an explicit offset are interpreted in loc and converted to UTC.
func ParseEvent(fields map[string]any, loc *time.Location) (RawEvent, error) {
	if loc == nil {
		loc = time.UTC
	}

	ev := RawEvent{
		ExternalID: stringField(fields, idKeys),
		Title:      stringField(fields, titleKeys),
		EventType:  strings.ToLower(stringField(fields, typeKeys)),
	}

	start, startKey, err := timeField(fields, startKeys, loc)
	if err != nil {
		return RawEvent{}, err
	}
	if startKey == "" {
		return RawEvent{}, fmt.Errorf("event has no recognizable start field: %v", fields)
	}
	ev.Start = start

	end, endKey, err := timeField(fields, endKeys, loc)
	if err != nil {
		return RawEvent{}, err
	}
	ev.End = end

	// A bare check-in/check-out marker arrives as a point event; infer its
	// type from the field name when the feed does not label it.
	if ev.EventType == "" {
		switch {
		case endKey == "" && (startKey == "check_in" || startKey == "checkin"):
			ev.EventType = "check_in"
		default:
			ev.EventType = "booking"
		}
	}

	if !ev.End.IsZero() && !ev.Start.Before(ev.End) {
		return RawEvent{}, fmt.Errorf("event %q has start %s not before end %s", ev.ExternalID, ev.Start, ev.End)
	}

	return ev, nil
}

func stringField(fields map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func timeField(fields map[string]any, keys []string, loc *time.Location) (time.Time, string, error) {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		ts, err := parseTimestamp(s, loc)
		if err != nil {
			return time.Time{}, "", fmt.Errorf("field %q: %w", k, err)
		}
		return ts, k, nil
	}
	return time.Time{}, "", nil
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timeLayouts {
		// Layouts with an explicit offset already carry their zone.
		if t, err := time.Parse(layout, s); err == nil && hasOffset(layout) {
			return t.UTC(), nil
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func hasOffset(layout string) bool {
	return strings.Contains(layout, "Z07") || strings.HasSuffix(layout, "Z")
}
