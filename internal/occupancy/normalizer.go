package occupancy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"rental-thermostat-backend/internal/calendar"
	"rental-thermostat-backend/internal/telemetry"
)

// Snapshot is the normalized occupancy view of one thermostat for one
// evaluation cycle. An empty interval set means VACANT.
type Snapshot struct {
	ThermostatID int64
	Intervals    []Interval
	Stale        bool // at least one source was served from last-known-good
	Changed      bool // interval set differs from the previous snapshot
	FetchedAt    time.Time
}

// Normalizer pulls raw events from every configured calendar source and
// reduces them to canonical occupancy intervals. When a source is unreachable
// it falls back to that source's last-known-good set: stale occupancy is safer
// for HVAC control than pretending the property is vacant.
type Normalizer struct {
	sources  []calendar.Source
	lastGood *cache.Cache
	logger   zerolog.Logger
}

// NewNormalizer creates a normalizer over the given calendar sources.
func NewNormalizer(sources []calendar.Source, logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		sources:  sources,
		lastGood: cache.New(cache.NoExpiration, cache.NoExpiration),
		logger:   logger.With().Str("component", "occupancy").Logger(),
	}
}

// Refresh fetches the latest calendar state for a thermostat and returns the
// normalized snapshot. The snapshot always reflects every source: fresh
// intervals where the fetch succeeded, last-known-good where it did not.
func (n *Normalizer) Refresh(ctx context.Context, thermostatID, propertyID int64, now time.Time) Snapshot {
	snap := Snapshot{
		ThermostatID: thermostatID,
		FetchedAt:    now,
	}

	for _, src := range n.sources {
		key := sourceKey(thermostatID, src.ID())

		events, err := src.FetchEvents(ctx, propertyID, now.AddDate(0, -1, 0))
		if err != nil {
			telemetry.CalendarFetchFailures.WithLabelValues(src.ID()).Inc()
			snap.Stale = true
			if prev, found := n.lastGood.Get(key); found {
				snap.Intervals = append(snap.Intervals, prev.([]Interval)...)
			}
			n.logger.Warn().Err(err).
				Int64("thermostat_id", thermostatID).
				Str("source_id", src.ID()).
				Msg("calendar source failed, using last-known-good occupancy")
			continue
		}

		intervals := Normalize(thermostatID, src.ID(), events)
		n.lastGood.Set(key, intervals, cache.NoExpiration)
		snap.Intervals = append(snap.Intervals, intervals...)
	}

	sortIntervals(snap.Intervals)

	prevKey := combinedKey(thermostatID)
	if prev, found := n.lastGood.Get(prevKey); found {
		snap.Changed = !equalIntervals(prev.([]Interval), snap.Intervals)
	} else {
		snap.Changed = len(snap.Intervals) > 0
	}
	n.lastGood.Set(prevKey, snap.Intervals, cache.NoExpiration)

	return snap
}

func sourceKey(thermostatID int64, sourceID string) string {
	return fmt.Sprintf("%d/%s", thermostatID, sourceID)
}

func combinedKey(thermostatID int64) string {
	return fmt.Sprintf("%d/_combined", thermostatID)
}

func sortIntervals(intervals []Interval) {
	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].Start.Equal(intervals[j].Start) {
			return intervals[i].SourceID < intervals[j].SourceID
		}
		return intervals[i].Start.Before(intervals[j].Start)
	})
}

func equalIntervals(a, b []Interval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].SourceID != b[i].SourceID ||
			!a[i].Start.Equal(b[i].Start) ||
			!a[i].End.Equal(b[i].End) {
			return false
		}
	}
	return true
}
