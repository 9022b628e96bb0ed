// Package tracker maintains up to three persistent Kalman-filtered tracks
// across radar ticks: it associates new detections to existing tracks with
// a gated greedy nearest-neighbour search, predicts through brief
// occlusions, and reports stable confidence-scored positions. It never
// returns an error; anomalies are recovered locally and counted.
package tracker

import "github.com/presence-radar/corepipe/internal/parse"

// MaxTracks is the hardware ceiling on simultaneously active tracks.
const MaxTracks = parse.MaxDetections

// State is one of the four track lifecycle phases. Only Confirmed and
// Occluded are ever reported outward in a TrackFrame.
type State uint8

const (
	// Retired is terminal until the slot is reused by a new track. It is
	// the zero value so an unspawned track slot reads as free without
	// explicit initialization.
	Retired State = iota
	// Tentative tracks are newly spawned and unconfirmed.
	Tentative
	// Confirmed tracks have accumulated enough consecutive hits to be
	// reported outward.
	Confirmed
	// Occluded tracks are Confirmed tracks that just missed a detection;
	// they coast on prediction and are still reported outward.
	Occluded
)

func (s State) String() string {
	switch s {
	case Tentative:
		return "Tentative"
	case Confirmed:
		return "Confirmed"
	case Occluded:
		return "Occluded"
	case Retired:
		return "Retired"
	default:
		return "Unknown"
	}
}

// track is one Kalman-filtered target estimate. P is the 4x4 error
// covariance, row-major, for state vector [X, Y, VX, VY].
type track struct {
	id    uint8
	state State

	x, y   float32 // mm
	vx, vy float32 // mm/s
	p      [16]float32

	hits   int
	misses int

	firstSeenMS uint32
	lastSeenMS  uint32

	confidence uint8
}

func (t *track) inUse() bool { return t.state != Retired }

// View is a single reported track in a TrackFrame: position, velocity,
// confidence, and a visible state restricted to Confirmed/Occluded.
type View struct {
	TrackID    uint8
	XMM        int32
	YMM        int32
	VXMMPS     int32
	VYMMPS     int32
	Confidence uint8
	State      State
}

// Frame is a snapshot of tracks reported outward for one tick.
type Frame struct {
	Tracks      [MaxTracks]View
	Count       int
	TimestampMS uint32
}

// Snapshot exposes the Tracker's counters for introspection.
type Snapshot struct {
	Confirmations int
	Retirements   int
	IDSwitches    int
	FilterResets  int
	ActiveTracks  int
}

// Config holds the tunable parameters of the tracker. All fields have
// defaults via DefaultConfig; the two that are part of the core's external
// configuration surface (§6) are mutated through SetGateBaseMM and
// SetOcclusionTimeoutFrames, which range-check their input.
type Config struct {
	// NominalDtMS is the fixed radar frame cadence used for the Kalman
	// transition matrix.
	NominalDtMS float32

	// GateBaseMM is the gate radius at zero predicted speed.
	GateBaseMM float32
	// GateVelocityFactorMMPerMPS is "k": additional gate radius per m/s of
	// predicted speed.
	GateVelocityFactorMMPerMPS float32
	// GateMaxMM caps the per-track gate radius regardless of speed.
	GateMaxMM float32

	ProcessNoisePos float32
	ProcessNoiseVel float32
	MeasurementNoise float32

	ConfirmThreshold       int
	TentativeDrop          int
	OcclusionTimeoutFrames int

	// MinCovDiag / MaxCovDiag bound every covariance diagonal element;
	// stepping outside either bound forces a filter reset.
	MinCovDiag float32
	MaxCovDiag float32

	// ResetCovPos / ResetCovVel are the covariance diagonal values assigned
	// to a freshly reset or spawned track (position, position, velocity,
	// velocity).
	ResetCovPos float32
	ResetCovVel float32
}

// DefaultConfig returns the spec's default tunables at the documented 33 Hz
// / 30 ms cadence.
func DefaultConfig() Config {
	return Config{
		NominalDtMS:                30,
		GateBaseMM:                 500,
		GateVelocityFactorMMPerMPS: 100,
		GateMaxMM:                  1000,
		ProcessNoisePos:            4,
		ProcessNoiseVel:            4,
		MeasurementNoise:           100,
		ConfirmThreshold:           3,
		TentativeDrop:              3,
		OcclusionTimeoutFrames:     33,
		MinCovDiag:                 1e-6,
		MaxCovDiag:                 1e12,
		ResetCovPos:                10,
		ResetCovVel:                1,
	}
}
