// Package pipeline wires FrameParser, Tracker, ZoneEngine, and Smoother
// into the single-threaded cooperative tick described in spec.md §5: a
// frame with sequence N is fully processed, publisher included, before any
// byte of frame N+1 is parsed. The pipeline owns no goroutines; the
// embedding host supplies bytes and drives time.
package pipeline

import (
	"github.com/presence-radar/corepipe/internal/parse"
	"github.com/presence-radar/corepipe/internal/smoother"
	"github.com/presence-radar/corepipe/internal/tracker"
	"github.com/presence-radar/corepipe/internal/zones"
)

// Publisher receives the result of one completed tick: the smoothed
// per-zone occupancy plus any zone events raised during it, in the order
// spec.md §4.3 specifies.
type Publisher interface {
	Publish(frame smoother.Frame, events []zones.Event)
}

// Tick is returned by Pipeline.Feed for every completed DetectionFrame, for
// callers that want the intermediate frames (e.g. a debug recorder)
// alongside what was handed to Publisher.
type Tick struct {
	Detections parse.DetectionFrame
	Tracks     tracker.Frame
	Zones      zones.Frame
	Smoothed   smoother.Frame
	Events     zones.EventBatch
}

// Snapshot aggregates every component's counters for introspection.
type Snapshot struct {
	Parser   parse.Snapshot
	Tracker  tracker.Snapshot
	Zones    zones.Snapshot
	Smoother smoother.Snapshot
	Watchdog WatchdogSnapshot
}

// Pipeline owns one instance of each of the four core components plus the
// disconnect/reconnect watchdog. It is not safe for concurrent use — it
// expects the single-threaded cooperative tick model of spec.md §5.
type Pipeline struct {
	parser    *parse.Parser
	tracker   *tracker.Tracker
	zones     *zones.Engine
	smoother  *smoother.Smoother
	watchdog  *Watchdog
	publisher Publisher
}

// New constructs a Pipeline for one radar dialect, publishing every
// completed tick to pub.
func New(dialect parse.Dialect, trackerCfg tracker.Config, disconnectTimeoutMS uint32, pub Publisher) *Pipeline {
	return &Pipeline{
		parser:    parse.NewParser(dialect),
		tracker:   tracker.NewTracker(trackerCfg),
		zones:     zones.NewEngine(),
		smoother:  smoother.New(),
		watchdog:  NewWatchdog(disconnectTimeoutMS),
		publisher: pub,
	}
}

// LoadZones atomically replaces the active zone map. See zones.Engine.Load.
func (p *Pipeline) LoadZones(m zones.ZoneMap) error {
	return p.zones.Load(m)
}

// SetGateBaseMM forwards to the tracker's external configuration surface.
func (p *Pipeline) SetGateBaseMM(mm float32) error { return p.tracker.SetGateBaseMM(mm) }

// SetOcclusionTimeoutFrames forwards to the tracker's external
// configuration surface.
func (p *Pipeline) SetOcclusionTimeoutFrames(frames int) error {
	return p.tracker.SetOcclusionTimeoutFrames(frames)
}

// SetSensitivity forwards to the smoother's external configuration
// surface.
func (p *Pipeline) SetSensitivity(zoneID string, sensitivity uint8) error {
	return p.smoother.SetSensitivity(zoneID, sensitivity)
}

// SetHoldBounds forwards to the smoother's global hold-timer floor/ceiling.
func (p *Pipeline) SetHoldBounds(minHoldMS, maxHoldMS uint32) {
	p.smoother.SetHoldBounds(minHoldMS, maxHoldMS)
}

// SetMovingThreshold forwards to the zone engine's has_moving speed
// threshold.
func (p *Pipeline) SetMovingThreshold(mmps int) {
	p.zones.SetMovingThreshold(mmps)
}

// Feed hands raw bytes from the byte-source collaborator to the parser. It
// loops internally until every byte of data is consumed, running one full
// tick (tracker -> zone engine -> smoother -> publisher) per completed
// DetectionFrame, and returns every Tick produced. nowMS is the current
// monotonic millisecond clock reading, supplied by the clock collaborator.
func (p *Pipeline) Feed(data []byte, nowMS uint32) []Tick {
	var ticks []Tick
	for len(data) > 0 {
		consumed, df, ok := p.parser.Feed(data, nowMS)
		data = data[consumed:]
		if !ok {
			continue
		}
		ticks = append(ticks, p.runTick(df, nowMS))
	}
	return ticks
}

// CheckWatchdog should be called by the host on every clock tick, even
// when no bytes arrived, so radar silence is detected promptly. It is a
// no-op while the radar is within its disconnect timeout.
func (p *Pipeline) CheckWatchdog(nowMS uint32) *Tick {
	if !p.watchdog.CheckSilence(nowMS) {
		return nil
	}
	p.tracker.Flush()
	events := p.zones.ForceVacant(nowMS)
	// Every include zone is now vacant in the zone engine; ticking it with no
	// tracks lists them without emitting further events. Each one's smoother
	// phase is forced to Vacant so no zone keeps reporting occupied through a
	// hold timer across the silent interval.
	zoneFrame, _ := p.zones.Tick(tracker.Frame{}, nowMS)
	var smoothInputs [zones.MaxZones]smoother.Input
	n := 0
	for _, st := range zoneFrame.States[:zoneFrame.Count] {
		p.smoother.ForceVacant(st.ZoneID, nowMS)
		smoothInputs[n] = smoother.Input{ZoneID: st.ZoneID, RawOccupied: false}
		n++
	}
	smoothed := p.smoother.Tick(smoothInputs[:n], nowMS)
	t := Tick{Smoothed: smoothed, Events: events}
	if p.publisher != nil {
		p.publisher.Publish(smoothed, events.Slice())
	}
	return &t
}

func (p *Pipeline) runTick(df parse.DetectionFrame, nowMS uint32) Tick {
	p.watchdog.RecordValidFrame(nowMS)

	trackFrame := p.tracker.Tick(df)
	zoneFrame, events := p.zones.Tick(trackFrame, nowMS)

	var inputs [zones.MaxZones]smoother.Input
	n := 0
	for _, st := range zoneFrame.States[:zoneFrame.Count] {
		in := smoother.Input{ZoneID: st.ZoneID, RawOccupied: st.Occupied}
		if st.TargetCount > 0 {
			in.HasConfidence = true
			in.Confidence = averageConfidence(trackFrame, st.TrackIDs[:st.TargetCount])
		}
		inputs[n] = in
		n++
	}
	smoothed := p.smoother.Tick(inputs[:n], nowMS)

	if p.publisher != nil {
		p.publisher.Publish(smoothed, events.Slice())
	}

	return Tick{
		Detections: df,
		Tracks:     trackFrame,
		Zones:      zoneFrame,
		Smoothed:   smoothed,
		Events:     events,
	}
}

// averageConfidence derives a zone's confidence indicator from its member
// tracks (spec.md §9 open question: has_moving weighting by confidence is
// resolved by also deriving an average-confidence indicator the smoother
// may use for its hold multiplier).
func averageConfidence(tf tracker.Frame, memberIDs []uint8) uint8 {
	if len(memberIDs) == 0 {
		return 0
	}
	var sum int
	var n int
	for _, id := range memberIDs {
		for i := 0; i < tf.Count; i++ {
			if tf.Tracks[i].TrackID == id {
				sum += int(tf.Tracks[i].Confidence)
				n++
				break
			}
		}
	}
	if n == 0 {
		return 0
	}
	return uint8(sum / n)
}

// Snapshot aggregates every component's current counters.
func (p *Pipeline) Snapshot() Snapshot {
	return Snapshot{
		Parser:   p.parser.Snapshot(),
		Tracker:  p.tracker.Snapshot(),
		Zones:    p.zones.Snapshot(),
		Smoother: p.smoother.Snapshot(),
		Watchdog: p.watchdog.Snapshot(),
	}
}
