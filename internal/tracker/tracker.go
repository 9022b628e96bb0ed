package tracker

import (
	"fmt"
	"math"

	"github.com/presence-radar/corepipe/internal/parse"
)

// Tracker owns up to MaxTracks Kalman-filtered tracks. It runs as part of a
// single-threaded cooperative tick: Tick must complete before the next
// DetectionFrame is fed to it. Tracker allocates nothing after NewTracker.
type Tracker struct {
	cfg    Config
	tracks [MaxTracks]track
	nextID uint8 // skips zero, wraps mod 256

	// ghosts remembers the last few retired tracks' final position and
	// time, so spawn can flag a probable identity discontinuity: a new
	// track appearing where one was just retired is likely the same
	// physical target having lost its id, rather than a genuinely new
	// target (spec.md §4.2 id_switches).
	ghosts   [MaxTracks]ghost
	ghostPos int

	haveLastTick bool
	lastTickMS   uint32

	confirmations int
	retirements   int
	idSwitches    int
	filterResets  int
}

// ghost is a just-retired track's last known position and time.
type ghost struct {
	x, y      float32
	retiredMS uint32
	valid     bool
}

// idSwitchRadiusMM and idSwitchWindowMS bound the "same target, new id"
// heuristic: a spawn within this radius and this soon after a retirement is
// counted as a probable id switch rather than a genuinely new target.
// idSwitchRadiusMM is tighter than the default gate radius (spec.md §6's
// 300-1000mm range) since this is meant to catch only a near-exact
// reappearance, not any nearby motion.
const (
	idSwitchRadiusMM = 300
	idSwitchWindowMS = 300
)

// NewTracker constructs a Tracker with cfg. Matrices implied by cfg (F, H,
// Q, R) are not materialized as objects — the fixed 4-state structure lets
// predict/update apply them as direct array arithmetic, matching the
// constant-velocity model with no per-tick allocation.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg, nextID: 1}
}

// SetGateBaseMM sets the base gate radius (before the velocity term).
// Range 300-1000mm per spec.md §6; out-of-range values are rejected.
func (t *Tracker) SetGateBaseMM(mm float32) error {
	if mm < 300 || mm > 1000 {
		return fmt.Errorf("tracker: gate base %.0fmm out of range [300,1000]", mm)
	}
	t.cfg.GateBaseMM = mm
	return nil
}

// SetOcclusionTimeoutFrames sets how many consecutive misses an Occluded
// track tolerates before retiring. Range 33-99 per spec.md §6.
func (t *Tracker) SetOcclusionTimeoutFrames(frames int) error {
	if frames < 33 || frames > 99 {
		return fmt.Errorf("tracker: occlusion timeout %d frames out of range [33,99]", frames)
	}
	t.cfg.OcclusionTimeoutFrames = frames
	return nil
}

// Tick advances the tracker by one DetectionFrame and returns the
// resulting Frame of Confirmed/Occluded tracks.
func (t *Tracker) Tick(df parse.DetectionFrame) Frame {
	dtMS := t.cfg.NominalDtMS
	if t.haveLastTick {
		elapsed := df.TimestampMS - t.lastTickMS // unsigned subtraction tolerates the ~49-day wrap
		if elapsed > uint32(2*t.cfg.NominalDtMS) {
			missTicks := int(elapsed/uint32(t.cfg.NominalDtMS)) - 1
			if missTicks > t.cfg.OcclusionTimeoutFrames {
				missTicks = t.cfg.OcclusionTimeoutFrames
			}
			for i := 0; i < missTicks; i++ {
				t.missTick(df.TimestampMS)
			}
		}
	}
	t.haveLastTick = true
	t.lastTickMS = df.TimestampMS

	// 1. Predict every non-retired track.
	for i := range t.tracks {
		if t.tracks[i].inUse() {
			t.predict(&t.tracks[i], dtMS)
		}
	}

	// 2. Associate.
	trackAssigned, detAssigned := t.associate(df.Detections[:])

	// 3. Update matched, miss unmatched.
	for i := range t.tracks {
		tr := &t.tracks[i]
		if !tr.inUse() {
			continue
		}
		if di := trackAssigned[i]; di >= 0 {
			t.update(tr, df.Detections[di], df.TimestampMS)
		} else {
			t.miss(tr)
		}
	}

	// 4. Lifecycle transitions.
	for i := range t.tracks {
		t.transition(&t.tracks[i])
	}

	// 5. Spawn new tentative tracks for unmatched detections.
	for di := 0; di < df.Count; di++ {
		if detAssigned[di] {
			continue
		}
		det := df.Detections[di]
		if !det.Valid {
			continue
		}
		t.spawn(det, df.TimestampMS)
	}

	// 6. Confidence for all active tracks.
	for i := range t.tracks {
		if t.tracks[i].inUse() {
			t.tracks[i].confidence = computeConfidence(&t.tracks[i])
		}
	}

	return t.buildFrame(df.TimestampMS)
}

// missTick advances every active track by one nominal tick with no
// detections at all, applying the same predict/miss/lifecycle sequence a
// normal tick would. Used to bridge a large timestamp jump (spec.md §7
// "Time anomalies") one nominal tick at a time, up to the occlusion
// timeout.
func (t *Tracker) missTick(nowMS uint32) {
	for i := range t.tracks {
		tr := &t.tracks[i]
		if !tr.inUse() {
			continue
		}
		t.predict(tr, t.cfg.NominalDtMS)
		t.miss(tr)
		t.transition(tr)
	}
}

func (t *Tracker) buildFrame(nowMS uint32) Frame {
	var f Frame
	f.TimestampMS = nowMS
	for i := range t.tracks {
		tr := &t.tracks[i]
		if tr.state != Confirmed && tr.state != Occluded {
			continue
		}
		f.Tracks[f.Count] = View{
			TrackID:    tr.id,
			XMM:        int32(tr.x),
			YMM:        int32(tr.y),
			VXMMPS:     int32(tr.vx),
			VYMMPS:     int32(tr.vy),
			Confidence: tr.confidence,
			State:      tr.state,
		}
		f.Count++
	}
	return f
}

// predict applies the constant-velocity Kalman prediction: x' = F*x,
// P' = F*P*Fᵀ + Q. F is identity with dt on the (position<-velocity)
// off-diagonals; applying it as direct array arithmetic avoids a 4x4
// general matrix multiply and any allocation.
func (t *Tracker) predict(tr *track, dtMS float32) {
	dt := dtMS / 1000 // seconds, since vx/vy are mm/s

	tr.x += tr.vx * dt
	tr.y += tr.vy * dt

	P := tr.p
	var fp [16]float32
	for j := 0; j < 4; j++ {
		fp[0*4+j] = P[0*4+j] + dt*P[2*4+j]
		fp[1*4+j] = P[1*4+j] + dt*P[3*4+j]
		fp[2*4+j] = P[2*4+j]
		fp[3*4+j] = P[3*4+j]
	}
	for i := 0; i < 4; i++ {
		tr.p[i*4+0] = fp[i*4+0] + dt*fp[i*4+2]
		tr.p[i*4+1] = fp[i*4+1] + dt*fp[i*4+3]
		tr.p[i*4+2] = fp[i*4+2]
		tr.p[i*4+3] = fp[i*4+3]
	}

	tr.p[0*4+0] += t.cfg.ProcessNoisePos * dt
	tr.p[1*4+1] += t.cfg.ProcessNoisePos * dt
	tr.p[2*4+2] += t.cfg.ProcessNoiseVel * dt
	tr.p[3*4+3] += t.cfg.ProcessNoiseVel * dt

	if !t.guardState(tr) {
		// No measurement is available at predict time, so the best
		// recoverable state is last-known position with velocity zeroed
		// and covariance reset to the high-uncertainty default; the next
		// matched detection will correct it.
		tr.vx, tr.vy = 0, 0
		tr.p = [16]float32{
			t.cfg.ResetCovPos, 0, 0, 0,
			0, t.cfg.ResetCovPos, 0, 0,
			0, 0, t.cfg.ResetCovVel, 0,
			0, 0, 0, t.cfg.ResetCovVel,
		}
		t.filterResets++
	}
}

// candidate is one gated (track, detection) pairing considered during
// association.
type candidate struct {
	trackIdx int
	detIdx   int
	dist     float32
}

// maxCandidates bounds the candidate list at MaxTracks*MaxDetections, the
// worst case where every track gates every detection.
const maxCandidates = MaxTracks * parse.MaxDetections

// associate performs gated greedy nearest-neighbour matching: repeatedly
// take the globally cheapest remaining candidate pair until none remain.
// Ties break on lower track index, then lower detection index, making the
// result deterministic regardless of slot iteration order. trackAssigned[i]
// is the assigned detection index for track i, or -1 if unmatched;
// detAssigned[j] is true if detection j was claimed. Both are fixed-size
// arrays and the candidate list is a fixed-size scratch array, so this
// performs no allocation.
func (t *Tracker) associate(dets []parse.Detection) (trackAssigned [MaxTracks]int, detAssigned [parse.MaxDetections]bool) {
	for i := range trackAssigned {
		trackAssigned[i] = -1
	}

	var candidates [maxCandidates]candidate
	n := 0
	for ti := range t.tracks {
		tr := &t.tracks[ti]
		if !tr.inUse() {
			continue
		}
		gate := gateRadius(tr, t.cfg)
		for di, d := range dets {
			if !d.Valid {
				continue
			}
			dx := float32(d.XMM) - tr.x
			dy := float32(d.YMM) - tr.y
			dist := float32(math.Sqrt(float64(dx*dx + dy*dy)))
			if dist <= gate {
				candidates[n] = candidate{trackIdx: ti, detIdx: di, dist: dist}
				n++
			}
		}
	}
	cands := candidates[:n]

	// Insertion sort: n is bounded by MaxTracks*MaxDetections (9), so this
	// is cheap and allocation-free, unlike sort.Slice's reflection-backed
	// interface sort.
	for i := 1; i < len(cands); i++ {
		c := cands[i]
		j := i - 1
		for j >= 0 && candidateLess(c, cands[j]) {
			cands[j+1] = cands[j]
			j--
		}
		cands[j+1] = c
	}

	var trackTaken [MaxTracks]bool
	var detTaken [parse.MaxDetections]bool
	for _, c := range cands {
		if trackTaken[c.trackIdx] || detTaken[c.detIdx] {
			continue
		}
		trackTaken[c.trackIdx] = true
		detTaken[c.detIdx] = true
		trackAssigned[c.trackIdx] = c.detIdx
		detAssigned[c.detIdx] = true
	}
	return trackAssigned, detAssigned
}

// candidateLess reports whether a sorts before b: lower distance first,
// ties broken by lower track index then lower detection index.
func candidateLess(a, b candidate) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	if a.trackIdx != b.trackIdx {
		return a.trackIdx < b.trackIdx
	}
	return a.detIdx < b.detIdx
}

// gateRadius computes the per-track gate: base + |predicted speed in m/s| *
// k, capped at GateMaxMM.
func gateRadius(tr *track, cfg Config) float32 {
	speedMMPS := float32(math.Sqrt(float64(tr.vx*tr.vx + tr.vy*tr.vy)))
	speedMPS := speedMMPS / 1000
	gate := cfg.GateBaseMM + speedMPS*cfg.GateVelocityFactorMMPerMPS
	if gate > cfg.GateMaxMM {
		gate = cfg.GateMaxMM
	}
	return gate
}

// update applies the standard Kalman correction for a matched track. On
// singular innovation covariance, any non-finite state component, or any
// out-of-bound covariance diagonal element, the filter is reset to the measurement with a
// high-uncertainty covariance rather than propagating garbage.
func (t *Tracker) update(tr *track, det parse.Detection, nowMS uint32) {
	zx, zy := float32(det.XMM), float32(det.YMM)
	yx, yy := zx-tr.x, zy-tr.y

	s00 := tr.p[0*4+0] + t.cfg.MeasurementNoise
	s01 := tr.p[0*4+1]
	s10 := tr.p[1*4+0]
	s11 := tr.p[1*4+1] + t.cfg.MeasurementNoise

	det2 := s00*s11 - s01*s10
	if det2 < 1e-6 {
		t.resetTrack(tr, zx, zy, nowMS)
		return
	}

	invS00 := s11 / det2
	invS01 := -s01 / det2
	invS10 := -s10 / det2
	invS11 := s00 / det2

	var k [8]float32
	for i := 0; i < 4; i++ {
		k[i*2+0] = tr.p[i*4+0]*invS00 + tr.p[i*4+1]*invS10
		k[i*2+1] = tr.p[i*4+0]*invS01 + tr.p[i*4+1]*invS11
	}

	tr.x += k[0*2+0]*yx + k[0*2+1]*yy
	tr.y += k[1*2+0]*yx + k[1*2+1]*yy
	tr.vx += k[2*2+0]*yx + k[2*2+1]*yy
	tr.vy += k[3*2+0]*yx + k[3*2+1]*yy

	var iMinusKH [16]float32
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			identity := float32(0)
			if i == j {
				identity = 1
			}
			var kh float32
			switch j {
			case 0:
				kh = k[i*2+0]
			case 1:
				kh = k[i*2+1]
			}
			iMinusKH[i*4+j] = identity - kh
		}
	}
	var newP [16]float32
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float32
			for kk := 0; kk < 4; kk++ {
				sum += iMinusKH[i*4+kk] * tr.p[kk*4+j]
			}
			newP[i*4+j] = sum
		}
	}
	tr.p = newP

	if !t.guardState(tr) {
		t.resetTrack(tr, zx, zy, nowMS)
		return
	}

	tr.hits++
	tr.misses = 0
	tr.lastSeenMS = nowMS
}

// guardState verifies that every covariance diagonal element lies within
// [MinCovDiag, MaxCovDiag] and that the whole state is finite. It returns
// false (and leaves tr unreset — the caller resets) when either check fails.
func (t *Tracker) guardState(tr *track) bool {
	for i := 0; i < 4; i++ {
		d := tr.p[i*4+i]
		if d > t.cfg.MaxCovDiag || d < t.cfg.MinCovDiag {
			return false
		}
	}
	return isFiniteTrack(tr)
}

func isFiniteTrack(tr *track) bool {
	vals := []float32{tr.x, tr.y, tr.vx, tr.vy}
	for _, v := range vals {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	for i := 0; i < 4; i++ {
		v := tr.p[i*4+i]
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}

// resetTrack reinitialises tr from a fresh measurement with a
// high-uncertainty covariance, preserving its track_id, lifecycle state,
// and hit/miss streak. Scenario 6 (spec.md §8) requires the id to survive
// a divergence reset.
func (t *Tracker) resetTrack(tr *track, zx, zy float32, nowMS uint32) {
	tr.x, tr.y, tr.vx, tr.vy = zx, zy, 0, 0
	tr.p = [16]float32{
		t.cfg.ResetCovPos, 0, 0, 0,
		0, t.cfg.ResetCovPos, 0, 0,
		0, 0, t.cfg.ResetCovVel, 0,
		0, 0, 0, t.cfg.ResetCovVel,
	}
	tr.hits++
	tr.misses = 0
	tr.lastSeenMS = nowMS
	t.filterResets++
}

func (t *Tracker) miss(tr *track) {
	tr.misses++
	tr.hits = 0
}

// transition applies the lifecycle state machine (spec.md §4.2 step 4).
func (t *Tracker) transition(tr *track) {
	switch tr.state {
	case Tentative:
		if tr.hits >= t.cfg.ConfirmThreshold {
			tr.state = Confirmed
			t.confirmations++
		} else if tr.misses >= t.cfg.TentativeDrop {
			tr.state = Retired
			t.retirements++
			t.recordGhost(tr)
		}
	case Confirmed:
		if tr.misses >= 1 {
			tr.state = Occluded
		}
	case Occluded:
		if tr.hits >= 1 {
			tr.state = Confirmed
		} else if tr.misses >= t.cfg.OcclusionTimeoutFrames {
			tr.state = Retired
			t.retirements++
			t.recordGhost(tr)
		}
	case Retired:
		// terminal until the slot is reused by spawn
	}
}

// spawn places a new Tentative track in the first free (Retired) slot for
// an unmatched detection, allocating a track_id from the wrapping counter.
func (t *Tracker) spawn(det parse.Detection, nowMS uint32) {
	for i := range t.tracks {
		if t.tracks[i].inUse() {
			continue
		}
		t.tracks[i] = track{
			id:    t.allocateID(),
			state: Tentative,
			x:     float32(det.XMM),
			y:     float32(det.YMM),
			p: [16]float32{
				t.cfg.ResetCovPos, 0, 0, 0,
				0, t.cfg.ResetCovPos, 0, 0,
				0, 0, t.cfg.ResetCovVel, 0,
				0, 0, 0, t.cfg.ResetCovVel,
			},
			hits:        1,
			firstSeenMS: nowMS,
			lastSeenMS:  nowMS,
		}
		t.checkIDSwitch(float32(det.XMM), float32(det.YMM), nowMS)
		return
	}
	// No free slot: the detection is dropped for this tick and may be
	// picked up again next tick if it recurs (spec.md §7 "Resource
	// exhaustion").
}

// recordGhost remembers tr's last known position and time in a small ring
// buffer of recently retired tracks, for checkIDSwitch to compare against.
func (t *Tracker) recordGhost(tr *track) {
	t.ghosts[t.ghostPos] = ghost{x: tr.x, y: tr.y, retiredMS: tr.lastSeenMS, valid: true}
	t.ghostPos = (t.ghostPos + 1) % len(t.ghosts)
}

// checkIDSwitch flags a probable identity discontinuity: a new track
// spawning within idSwitchRadiusMM of, and idSwitchWindowMS after, a
// just-retired track's last known position is likely the same physical
// target having been assigned a new id (spec.md §4.2 id_switches), rather
// than an independent new arrival.
func (t *Tracker) checkIDSwitch(x, y float32, nowMS uint32) {
	for _, g := range t.ghosts {
		if !g.valid {
			continue
		}
		if nowMS-g.retiredMS > idSwitchWindowMS { // unsigned subtraction tolerates the ~49-day wrap
			continue
		}
		dx, dy := x-g.x, y-g.y
		if dx*dx+dy*dy <= idSwitchRadiusMM*idSwitchRadiusMM {
			t.idSwitches++
			return
		}
	}
}

func (t *Tracker) allocateID() uint8 {
	id := t.nextID
	t.nextID++
	if t.nextID == 0 {
		t.nextID = 1
	}
	return id
}

// computeConfidence derives a 0-100 confidence score from the track's
// current hit/miss streak and age; it is never filtered or smoothed.
func computeConfidence(tr *track) uint8 {
	conf := 50
	if tr.hits > 0 {
		bonus := 5 * tr.hits
		if bonus > 30 {
			bonus = 30
		}
		conf += bonus
	}
	if tr.misses > 0 {
		penalty := 8 * tr.misses
		if penalty > 40 {
			penalty = 40
		}
		conf -= penalty
	}
	ageSeconds := int((tr.lastSeenMS - tr.firstSeenMS) / 1000)
	ageBonus := ageSeconds
	if ageBonus > 20 {
		ageBonus = 20
	}
	conf += ageBonus

	if conf < 0 {
		conf = 0
	}
	if conf > 100 {
		conf = 100
	}
	return uint8(conf)
}

// Snapshot returns the tracker's current counters.
func (t *Tracker) Snapshot() Snapshot {
	active := 0
	for i := range t.tracks {
		if t.tracks[i].inUse() {
			active++
		}
	}
	return Snapshot{
		Confirmations: t.confirmations,
		Retirements:   t.retirements,
		IDSwitches:    t.idSwitches,
		FilterResets:  t.filterResets,
		ActiveTracks:  active,
	}
}

// Flush retires every active track immediately, without counting the
// retirements as confirmations lost to occlusion timeout. The pipeline
// watchdog calls this on radar silence (spec.md §5, §7 "Radar silence").
func (t *Tracker) Flush() {
	for i := range t.tracks {
		if t.tracks[i].inUse() {
			t.tracks[i] = track{}
		}
	}
	t.ghosts = [MaxTracks]ghost{}
	t.ghostPos = 0
	t.haveLastTick = false
}
