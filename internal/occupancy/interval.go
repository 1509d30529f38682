package occupancy

import (
	"sort"
	"strings"
	"time"

	"rental-thermostat-backend/internal/parse"
)

// Kind classifies occupancy state. Intervals produced by normalization are
// always KindBooked spans; the other kinds describe the state an evaluation
// lands in relative to those spans.
type Kind string

const (
	KindCheckIn  Kind = "CHECK_IN"
	KindCheckOut Kind = "CHECK_OUT"
	KindBooked   Kind = "BOOKED"
	KindVacant   Kind = "VACANT"
)

// Interval is one guest-occupied time span, half-open [Start, End).
// Immutable once produced; a new sync supersedes the whole set.
type Interval struct {
	ThermostatID int64
	SourceID     string
	Start        time.Time
	End          time.Time
	Kind         Kind
}

// Covers reports whether ts falls inside the interval.
func (iv Interval) Covers(ts time.Time) bool {
	return !ts.Before(iv.Start) && ts.Before(iv.End)
}

// Covers reports whether any interval in the set covers ts.
func Covers(intervals []Interval, ts time.Time) bool {
	for _, iv := range intervals {
		if iv.Covers(ts) {
			return true
		}
	}
	return false
}

// occupancyTypes are the raw event types that represent a guest stay.
// Maintenance and cleaning blocks do not drive HVAC comfort settings.
var occupancyTypes = map[string]bool{
	"":            true,
	"booking":     true,
	"booked":      true,
	"reservation": true,
	"stay":        true,
}

// Normalize converts raw calendar events from one source into the canonical
// interval set for a thermostat: occupancy spans only, overlaps within the
// source merged by union, sorted by start. Back-to-back bookings that share a
// boundary instant stay distinct, so check-out and check-in windows at the
// turnover still line up.
func Normalize(thermostatID int64, sourceID string, events []parse.RawEvent) []Interval {
	spans := collectSpans(events)
	if len(spans) == 0 {
		return nil
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i][0].Equal(spans[j][0]) {
			return spans[i][1].Before(spans[j][1])
		}
		return spans[i][0].Before(spans[j][0])
	})

	merged := [][2]time.Time{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s[0].Before(last[1]) {
			// Overlap within the same source: take the union.
			if s[1].After(last[1]) {
				last[1] = s[1]
			}
			continue
		}
		merged = append(merged, s)
	}

	intervals := make([]Interval, 0, len(merged))
	for _, s := range merged {
		intervals = append(intervals, Interval{
			ThermostatID: thermostatID,
			SourceID:     sourceID,
			Start:        s[0],
			End:          s[1],
			Kind:         KindBooked,
		})
	}
	return intervals
}

// collectSpans keeps full-stay events as-is and pairs explicit check-in /
// check-out point markers into spans. An unpaired marker carries too little
// information to bound a stay and is dropped.
func collectSpans(events []parse.RawEvent) [][2]time.Time {
	var spans [][2]time.Time
	var points []parse.RawEvent

	for _, ev := range events {
		evType := strings.ToLower(ev.EventType)
		switch {
		case evType == "check_in" || evType == "checkin" || evType == "check_out" || evType == "checkout":
			points = append(points, ev)
		case !occupancyTypes[evType]:
			continue
		case !ev.End.IsZero():
			spans = append(spans, [2]time.Time{ev.Start, ev.End})
		}
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Start.Before(points[j].Start) })

	var open *time.Time
	for _, p := range points {
		evType := strings.ToLower(p.EventType)
		if evType == "check_in" || evType == "checkin" {
			start := p.Start
			open = &start
			continue
		}
		if open != nil && p.Start.After(*open) {
			spans = append(spans, [2]time.Time{*open, p.Start})
			open = nil
		}
	}

	return spans
}
