package main

import (
	"github.com/presence-radar/corepipe/internal/clock"
	"github.com/presence-radar/corepipe/internal/obslog"
	"github.com/presence-radar/corepipe/internal/smoother"
	"github.com/presence-radar/corepipe/internal/telemetry"
	"github.com/presence-radar/corepipe/internal/telemetry/store"
	"github.com/presence-radar/corepipe/internal/zones"
)

// hostPublisher is the pipeline.Publisher implementation wiring every
// completed tick to obslog logging, the sqlite telemetry buffer, and the
// rolling percentile aggregator. It is the demo host's concrete realization
// of the abstract "publisher" collaborator in spec.md §6.
type hostPublisher struct {
	store *store.Store
	agg   *telemetry.Aggregator
	clock clock.Clock

	// occupiedSinceMS tracks, per zone, the timestamp its smoothed output
	// last became occupied, so a transition back to vacant can report a
	// completed occupancy-duration sample to the aggregator.
	occupiedSinceMS map[string]uint32
}

// Publish implements pipeline.Publisher: it logs zone events, persists the
// tick to the sqlite telemetry buffer, and feeds the rolling percentile
// aggregator.
func (h *hostPublisher) Publish(frame smoother.Frame, events []zones.Event) {
	if h.occupiedSinceMS == nil {
		h.occupiedSinceMS = make(map[string]uint32)
	}

	for _, ev := range events {
		obslog.Logf("zone event: kind=%d zone=%s track=%d ts=%d", ev.Kind, ev.ZoneID, ev.TrackID, ev.TimestampMS)
	}

	for _, z := range frame.Zones[:frame.Count] {
		wasOccupied := false
		if since, ok := h.occupiedSinceMS[z.ZoneID]; ok {
			wasOccupied = since != 0
		}
		if z.Occupied && !wasOccupied {
			h.occupiedSinceMS[z.ZoneID] = frame.TimestampMS
		} else if !z.Occupied && wasOccupied {
			started := h.occupiedSinceMS[z.ZoneID]
			h.agg.RecordOccupancyDuration(z.ZoneID, float64(frame.TimestampMS-started))
			h.occupiedSinceMS[z.ZoneID] = 0
		}
	}

	nowUnix := h.clock.Now().Unix()
	if err := h.store.InsertZoneEvents(events, nowUnix); err != nil {
		obslog.Logf("presenced: insert zone events: %v", err)
	}
	if err := h.store.InsertSmoothedFrame(frame, nowUnix); err != nil {
		obslog.Logf("presenced: insert smoothed frame: %v", err)
	}
}
