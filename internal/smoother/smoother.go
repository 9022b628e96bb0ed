// Package smoother turns noisy raw per-zone occupancy into a flicker-free
// signal via a 4-state hysteresis machine per zone: Vacant, Entering,
// Occupied, Holding. Sensitivity (0-100) maps to hold/enter-delay timers;
// configuration changes apply on the next tick without resetting phase.
package smoother

import "fmt"

// Phase is one of the four smoother states. Vacant is the zero value, the
// natural starting state for a zone that has never reported raw occupancy.
type Phase uint8

const (
	Vacant Phase = iota
	Entering
	Occupied
	Holding
)

func (p Phase) String() string {
	switch p {
	case Vacant:
		return "Vacant"
	case Entering:
		return "Entering"
	case Occupied:
		return "Occupied"
	case Holding:
		return "Holding"
	default:
		return "Unknown"
	}
}

// Bounds are the global floor/ceiling applied to the sensitivity-derived
// hold timer, after the mapping; the lower bound wins over the formula.
const (
	DefaultMinHoldMS = 100
	DefaultMaxHoldMS = 10000

	defaultSensitivity = 50
)

// Input is one zone's raw occupancy reading for a tick, plus an optional
// confidence indicator derived from its member tracks.
type Input struct {
	ZoneID        string
	RawOccupied   bool
	Confidence    uint8
	HasConfidence bool
}

// Output is one zone's smoothed result for a tick.
type Output struct {
	ZoneID           string
	Occupied         bool
	Phase            Phase
	PhaseStartedMS   uint32
}

// MaxZones bounds the number of zones a Smoother can report per tick,
// mirroring zones.MaxZones; duplicated here rather than imported so the
// smoother stays decoupled from the zone engine's package.
const MaxZones = 16

// Frame is every zone's Output for one tick. Zones is a fixed array rather
// than a slice so Tick never allocates to report it; only Zones[:Count] is
// valid.
type Frame struct {
	Zones       [MaxZones]Output
	Count       int
	TimestampMS uint32
}

// Snapshot exposes the Smoother's counters for introspection.
type Snapshot struct {
	StateChanges            int
	HoldExtensions          int
	FalseOccupancyPrevented int
}

type zoneState struct {
	phase          Phase
	enteredMS      uint32
	sensitivity    uint8
	holdMultiplier float64
}

// Smoother holds one hysteresis state machine per zone id it has seen.
type Smoother struct {
	zones     map[string]*zoneState
	minHoldMS uint32
	maxHoldMS uint32

	stateChanges            int
	holdExtensions          int
	falseOccupancyPrevented int
}

// New returns a Smoother using the default global hold bounds.
func New() *Smoother {
	return &Smoother{
		zones:     make(map[string]*zoneState),
		minHoldMS: DefaultMinHoldMS,
		maxHoldMS: DefaultMaxHoldMS,
	}
}

// SetHoldBounds sets the global hold-timer floor/ceiling applied after the
// sensitivity mapping (spec.md §4.4); the floor wins over the formula. It
// takes effect on the next tick and does not reset any zone's phase.
func (s *Smoother) SetHoldBounds(minHoldMS, maxHoldMS uint32) {
	s.minHoldMS = minHoldMS
	s.maxHoldMS = maxHoldMS
}

// SetSensitivity sets zoneID's sensitivity (0-100), effective immediately
// on the next Tick. It does not reset the zone's current phase.
func (s *Smoother) SetSensitivity(zoneID string, sensitivity uint8) error {
	if sensitivity > 100 {
		return fmt.Errorf("smoother: sensitivity %d out of range [0,100]", sensitivity)
	}
	zs := s.zoneFor(zoneID)
	zs.sensitivity = sensitivity
	return nil
}

func (s *Smoother) zoneFor(zoneID string) *zoneState {
	zs, ok := s.zones[zoneID]
	if !ok {
		zs = &zoneState{sensitivity: defaultSensitivity}
		s.zones[zoneID] = zs
	}
	return zs
}

func (s *Smoother) timers(zs *zoneState) (holdMS, enterDelayMS uint32) {
	sens := float64(zs.sensitivity)
	hold := uint32((100 - sens) * 50)
	if hold < s.minHoldMS {
		hold = s.minHoldMS
	}
	if hold > s.maxHoldMS {
		hold = s.maxHoldMS
	}
	delay := uint32((100 - sens) * 5)
	return hold, delay
}

// Tick advances every zone in inputs by one tick and returns the resulting
// Frame.
func (s *Smoother) Tick(inputs []Input, nowMS uint32) Frame {
	frame := Frame{TimestampMS: nowMS}
	for _, in := range inputs {
		if frame.Count >= MaxZones {
			break
		}
		zs := s.zoneFor(in.ZoneID)
		s.step(zs, in, nowMS)
		frame.Zones[frame.Count] = Output{
			ZoneID:         in.ZoneID,
			Occupied:       zs.phase == Occupied || zs.phase == Holding,
			Phase:          zs.phase,
			PhaseStartedMS: zs.enteredMS,
		}
		frame.Count++
	}
	return frame
}

func (s *Smoother) step(zs *zoneState, in Input, nowMS uint32) {
	holdMS, enterDelayMS := s.timers(zs)

	switch zs.phase {
	case Vacant:
		if in.RawOccupied {
			s.enterPhase(zs, Entering, nowMS)
		}

	case Entering:
		elapsed := nowMS - zs.enteredMS
		if !in.RawOccupied {
			s.falseOccupancyPrevented++
			s.enterPhase(zs, Vacant, nowMS)
		} else if elapsed >= enterDelayMS {
			s.enterPhase(zs, Occupied, nowMS)
		}

	case Occupied:
		if !in.RawOccupied {
			s.enterPhase(zs, Holding, nowMS)
			zs.holdMultiplier = 1.0
			if in.HasConfidence {
				switch {
				case in.Confidence > 80:
					zs.holdMultiplier = 1.5
				case in.Confidence < 30:
					zs.holdMultiplier = 0.5
				}
			}
			if zs.holdMultiplier > 1.0 {
				s.holdExtensions++
			}
		}

	case Holding:
		if in.RawOccupied {
			s.enterPhase(zs, Occupied, nowMS)
			return
		}
		effectiveHold := uint32(float64(holdMS) * zs.holdMultiplier)
		if nowMS-zs.enteredMS >= effectiveHold {
			s.enterPhase(zs, Vacant, nowMS)
		}
	}
}

func (s *Smoother) enterPhase(zs *zoneState, p Phase, nowMS uint32) {
	zs.phase = p
	zs.enteredMS = nowMS
	s.stateChanges++
}

// Snapshot returns the Smoother's current counters.
func (s *Smoother) Snapshot() Snapshot {
	return Snapshot{
		StateChanges:            s.stateChanges,
		HoldExtensions:          s.holdExtensions,
		FalseOccupancyPrevented: s.falseOccupancyPrevented,
	}
}

// ForceVacant immediately forces zoneID to Vacant, e.g. on radar
// disconnect. It does count as a state change if the phase actually
// changes.
func (s *Smoother) ForceVacant(zoneID string, nowMS uint32) {
	zs := s.zoneFor(zoneID)
	if zs.phase != Vacant {
		s.enterPhase(zs, Vacant, nowMS)
	}
}
