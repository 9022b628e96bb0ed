package tracker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presence-radar/corepipe/internal/parse"
)

func oneDetectionFrame(x, y, speed int16, seq uint32, ms uint32) parse.DetectionFrame {
	var f parse.DetectionFrame
	f.Seq = seq
	f.TimestampMS = ms
	f.Count = 1
	f.Detections[0] = parse.Detection{XMM: x, YMM: y, SpeedMMPS: speed, Valid: true}
	return f
}

func emptyFrame(seq, ms uint32) parse.DetectionFrame {
	return parse.DetectionFrame{Seq: seq, TimestampMS: ms}
}

// TestStationaryTargetConfirmsAtTick3 matches spec.md §8 scenario 1: a
// single stationary target confirms from tick 3 onward with a stable id.
func TestStationaryTargetConfirmsAtTick3(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	var lastID uint8
	for i := 0; i < 100; i++ {
		ms := uint32(i) * 30
		frame := tr.Tick(oneDetectionFrame(1000, 2000, 0, uint32(i), ms))
		if i >= 2 { // zero-indexed tick 3
			require.Equal(t, 1, frame.Count, "tick %d", i)
			assert.Equal(t, Confirmed, frame.Tracks[0].State)
			if lastID == 0 {
				lastID = frame.Tracks[0].TrackID
			} else {
				assert.Equal(t, lastID, frame.Tracks[0].TrackID, "tick %d: id switch", i)
			}
		}
	}
	assert.NotZero(t, lastID)
	snap := tr.Snapshot()
	assert.Equal(t, 1, snap.Confirmations)
}

// TestBriefOcclusionBridging matches spec.md §8 scenario 2 and the
// "occlusion bridging" / "retire" testable properties.
func TestBriefOcclusionBridging(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	ms := uint32(0)
	var id uint8

	for i := 0; i < 50; i++ {
		frame := tr.Tick(oneDetectionFrame(0, 2000, 0, uint32(i), ms))
		ms += 30
		if i == 2 {
			id = frame.Tracks[0].TrackID
		}
	}

	// 20 frames with no valid detections: track should become Occluded,
	// then retire only if it exceeds the occlusion timeout. 20 < 33 so it
	// must stay alive and bridge back to Confirmed.
	var lastFrame Frame
	for i := 0; i < 20; i++ {
		lastFrame = tr.Tick(emptyFrame(uint32(50+i), ms))
		ms += 30
	}
	require.Equal(t, 1, lastFrame.Count)
	assert.Equal(t, Occluded, lastFrame.Tracks[0].State)
	assert.Equal(t, id, lastFrame.Tracks[0].TrackID)

	var reacquired Frame
	for i := 0; i < 30; i++ {
		reacquired = tr.Tick(oneDetectionFrame(0, 2050, 0, uint32(70+i), ms))
		ms += 30
	}
	require.Equal(t, 1, reacquired.Count)
	assert.Equal(t, Confirmed, reacquired.Tracks[0].State)
	assert.Equal(t, id, reacquired.Tracks[0].TrackID, "track id must survive occlusion bridging")
}

// TestOccludedTrackRetiresAfterTimeout matches the "tracker retire"
// testable property: occlusion_timeout_frames consecutive misses retires
// the track and it stops appearing in output.
func TestOccludedTrackRetiresAfterTimeout(t *testing.T) {
	cfg := DefaultConfig()
	tr := NewTracker(cfg)
	ms := uint32(0)
	for i := 0; i < 5; i++ {
		tr.Tick(oneDetectionFrame(100, 100, 0, uint32(i), ms))
		ms += 30
	}

	var last Frame
	for i := 0; i < cfg.OcclusionTimeoutFrames+1; i++ {
		last = tr.Tick(emptyFrame(uint32(5+i), ms))
		ms += 30
	}
	assert.Equal(t, 0, last.Count, "track must be retired and absent from output")
	assert.GreaterOrEqual(t, tr.Snapshot().Retirements, 1)
}

// TestTrackerCapacity asserts at most MaxTracks non-retired tracks exist
// even when more than MaxTracks detections arrive repeatedly.
func TestTrackerCapacity(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	var f parse.DetectionFrame
	f.Count = 3
	f.Detections[0] = parse.Detection{XMM: -3000, YMM: 1000, Valid: true}
	f.Detections[1] = parse.Detection{XMM: 0, YMM: 1000, Valid: true}
	f.Detections[2] = parse.Detection{XMM: 3000, YMM: 1000, Valid: true}

	for i := 0; i < 10; i++ {
		f.Seq = uint32(i)
		f.TimestampMS = uint32(i) * 30
		tr.Tick(f)
		assert.LessOrEqual(t, tr.Snapshot().ActiveTracks, MaxTracks)
	}
}

// TestFilterDivergenceResetsWithoutChangingID matches spec.md §8 scenario 6.
func TestFilterDivergenceResetsWithoutChangingID(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	ms := uint32(0)
	var frame Frame
	for i := 0; i < 5; i++ {
		frame = tr.Tick(oneDetectionFrame(500, 500, 0, uint32(i), ms))
		ms += 30
	}
	id := frame.Tracks[0].TrackID

	// Force a divergent covariance directly; the predict-time finite guard
	// must catch it on the next Tick and reset without touching track_id.
	tr.tracks[0].p[0] = float32(math.NaN())

	before := tr.Snapshot().FilterResets
	next := tr.Tick(oneDetectionFrame(520, 520, 0, 5, ms))
	require.Equal(t, 1, next.Count)
	assert.Equal(t, id, next.Tracks[0].TrackID)
	assert.Greater(t, tr.Snapshot().FilterResets, before)
}
