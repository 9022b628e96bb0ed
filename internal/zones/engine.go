package zones

import (
	"fmt"
	"math"

	"github.com/presence-radar/corepipe/internal/tracker"
)

// Engine owns the active ZoneMap and per-zone runtime state. Reconfiguration
// via Load is atomic: the prior map remains in effect for the tick in
// progress, and a rejected replacement leaves it untouched. All per-zone
// runtime data lives in fixed arrays indexed by a zone's position in
// active.Zones, so Tick and ForceVacant allocate nothing — the same
// discipline internal/tracker's associate uses.
type Engine struct {
	active ZoneMap

	// states holds one runtime State per zone slot, indexed by position in
	// active.Zones; only Include zones have a meaningful entry.
	states [MaxZones]State
	// members and memberCount hold the previous tick's (zone, track) set,
	// used to diff Enter/Exit events without a map.
	members     [MaxZones][MaxMembersPerZone]uint8
	memberCount [MaxZones]int

	// movingThresholdMMPS is the speed magnitude above which a member
	// track sets a zone's has_moving flag; defaults to
	// MovingThresholdMMPS and is adjustable via SetMovingThreshold.
	movingThresholdMMPS float64

	tracksExcluded   int
	occupancyChanges int
}

// NewEngine returns an Engine with an empty ZoneMap.
func NewEngine() *Engine {
	return &Engine{movingThresholdMMPS: MovingThresholdMMPS}
}

// SetMovingThreshold sets the speed magnitude (mm/s) above which a member
// track sets a zone's has_moving flag, effective on the next Tick.
func (e *Engine) SetMovingThreshold(mmps int) {
	e.movingThresholdMMPS = float64(mmps)
}

// Load validates newMap in full before replacing the active map; on any
// validation failure the prior map remains active and Load returns an
// error describing the first violation found. Load runs only on
// reconfiguration, not on the tick path, so the linear duplicate-id scan
// below trades a little time for not needing a map.
func (e *Engine) Load(newMap ZoneMap) error {
	if len(newMap.Zones) > MaxZones {
		return fmt.Errorf("zones: %d zones exceeds capacity %d", len(newMap.Zones), MaxZones)
	}
	for i, z := range newMap.Zones {
		if z.ID == "" {
			return fmt.Errorf("zones: empty zone id")
		}
		for j := 0; j < i; j++ {
			if newMap.Zones[j].ID == z.ID {
				return fmt.Errorf("zones: duplicate zone id %q", z.ID)
			}
		}
		if len(z.Vertices) < MinVertices || len(z.Vertices) > MaxVertices {
			return fmt.Errorf("zones: zone %q has %d vertices, want %d-%d", z.ID, len(z.Vertices), MinVertices, MaxVertices)
		}
		if !simple(z.Vertices) {
			return fmt.Errorf("zones: zone %q polygon is self-intersecting", z.ID)
		}
	}

	e.active = newMap
	e.states = [MaxZones]State{}
	e.members = [MaxZones][MaxMembersPerZone]uint8{}
	e.memberCount = [MaxZones]int{}
	for i, z := range newMap.Zones {
		if z.Type == Include {
			e.states[i] = State{ZoneID: z.ID}
		}
	}
	return nil
}

// Tick evaluates every confirmed/occluded track in tf against the active
// map and returns the resulting Frame plus any ZoneEvents, in the order
// specified by spec.md §4.3: exclude suppression first, then per include
// zone (in map order) the occupancy flip event followed by per-track
// Enter/Exit events.
func (e *Engine) Tick(tf tracker.Frame, timestampMS uint32) (Frame, EventBatch) {
	tracks := tf.Tracks[:tf.Count]

	// excludedFlags is indexed by position in tracks, not by track id: at
	// most tracker.MaxTracks tracks exist in any tick, so a fixed array
	// sized to that ceiling needs no map.
	var excludedFlags [tracker.MaxTracks]bool
	for _, z := range e.active.Zones {
		if z.Type != Exclude {
			continue
		}
		for i, tk := range tracks {
			if excludedFlags[i] {
				continue
			}
			if Contains(z.Vertices, Point{X: tk.XMM, Y: tk.YMM}) {
				excludedFlags[i] = true
				e.tracksExcluded++
			}
		}
	}

	var frame Frame
	frame.TimestampMS = timestampMS
	var batch EventBatch

	for zi, z := range e.active.Zones {
		if z.Type != Include {
			continue
		}
		st := &e.states[zi]

		var memberIDs [MaxMembersPerZone]uint8
		memberCount := 0
		hasMoving := false
		for i, tk := range tracks {
			if excludedFlags[i] {
				continue
			}
			if !Contains(z.Vertices, Point{X: tk.XMM, Y: tk.YMM}) {
				continue
			}
			if memberCount < MaxMembersPerZone {
				memberIDs[memberCount] = tk.TrackID
				memberCount++
			}
			speed := math.Hypot(float64(tk.VXMMPS), float64(tk.VYMMPS))
			if speed > e.movingThresholdMMPS {
				hasMoving = true
			}
		}
		insertionSortUint8(memberIDs[:memberCount])

		st.TargetCount = memberCount
		st.HasMoving = hasMoving
		st.TrackIDs = [MaxMembersPerZone]uint8{}
		copy(st.TrackIDs[:memberCount], memberIDs[:memberCount])

		nowOccupied := memberCount > 0
		if nowOccupied != st.Occupied {
			st.Occupied = nowOccupied
			st.LastChangeMS = timestampMS
			e.occupancyChanges++
			kind := Vacant
			if nowOccupied {
				kind = Occupied
			}
			batch.push(Event{Kind: kind, ZoneID: z.ID, TimestampMS: timestampMS})
		}

		prevCount := e.memberCount[zi]
		prevIDs := e.members[zi]
		for i := 0; i < memberCount; i++ {
			id := memberIDs[i]
			found := false
			for j := 0; j < prevCount; j++ {
				if prevIDs[j] == id {
					found = true
					break
				}
			}
			if !found {
				batch.push(Event{Kind: Enter, ZoneID: z.ID, TrackID: id, TimestampMS: timestampMS})
			}
		}
		for j := 0; j < prevCount; j++ {
			id := prevIDs[j]
			found := false
			for i := 0; i < memberCount; i++ {
				if memberIDs[i] == id {
					found = true
					break
				}
			}
			if !found {
				batch.push(Event{Kind: Exit, ZoneID: z.ID, TrackID: id, TimestampMS: timestampMS})
			}
		}
		e.members[zi] = memberIDs
		e.memberCount[zi] = memberCount

		frame.States[frame.Count] = *st
		frame.Count++
	}

	return frame, batch
}

// insertionSortUint8 sorts ids ascending in place. ids is bounded to
// MaxMembersPerZone elements, so a manual insertion sort is cheap and
// allocation-free, unlike sort.Slice's reflection-backed interface sort.
func insertionSortUint8(ids []uint8) {
	for i := 1; i < len(ids); i++ {
		v := ids[i]
		j := i - 1
		for j >= 0 && ids[j] > v {
			ids[j+1] = ids[j]
			j--
		}
		ids[j+1] = v
	}
}

// Snapshot returns the Engine's current counters.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		TracksExcluded:   e.tracksExcluded,
		OccupancyChanges: e.occupancyChanges,
		ActiveZones:      len(e.active.Zones),
		Version:          e.active.Version,
	}
}

// ForceVacant marks every include zone Vacant immediately, emitting Exit
// for every current member and Vacant for every zone that was occupied.
// The pipeline watchdog calls this on radar silence (spec.md §7).
func (e *Engine) ForceVacant(timestampMS uint32) EventBatch {
	var batch EventBatch
	for zi, z := range e.active.Zones {
		if z.Type != Include {
			continue
		}
		st := &e.states[zi]
		prevCount := e.memberCount[zi]
		for j := 0; j < prevCount; j++ {
			batch.push(Event{Kind: Exit, ZoneID: z.ID, TrackID: e.members[zi][j], TimestampMS: timestampMS})
		}
		e.memberCount[zi] = 0
		if st.Occupied {
			st.Occupied = false
			st.LastChangeMS = timestampMS
			st.TargetCount = 0
			st.TrackIDs = [MaxMembersPerZone]uint8{}
			e.occupancyChanges++
			batch.push(Event{Kind: Vacant, ZoneID: z.ID, TimestampMS: timestampMS})
		}
	}
	return batch
}
