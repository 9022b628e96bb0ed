package pipeline

// DefaultDisconnectTimeoutMS is the spec default: radar silence at least this
// long forces every track and zone to clear (spec.md §5, §7 "Radar
// silence").
const DefaultDisconnectTimeoutMS = 3000

// WatchdogSnapshot exposes the Watchdog's counters for introspection.
type WatchdogSnapshot struct {
	Disconnects int
	Silent      bool
}

// Watchdog tracks time since the last valid frame and reports when the
// embedding host should treat the radar as disconnected. It holds no clock
// of its own — the host supplies nowMS on every call, matching the
// pipeline's host-driven tick model.
type Watchdog struct {
	timeoutMS    uint32
	haveFrame    bool
	lastFrameMS  uint32
	silent       bool
	disconnects  int
}

// NewWatchdog returns a Watchdog using timeoutMS as the disconnect
// threshold. A zero value falls back to DefaultDisconnectTimeoutMS.
func NewWatchdog(timeoutMS uint32) *Watchdog {
	if timeoutMS == 0 {
		timeoutMS = DefaultDisconnectTimeoutMS
	}
	return &Watchdog{timeoutMS: timeoutMS}
}

// RecordValidFrame marks nowMS as the moment a valid frame last arrived,
// clearing any prior silence.
func (w *Watchdog) RecordValidFrame(nowMS uint32) {
	w.haveFrame = true
	w.lastFrameMS = nowMS
	w.silent = false
}

// CheckSilence reports whether the radar has just crossed into silence as
// of nowMS: it returns true exactly once per silence episode, on the tick
// whose elapsed time first reaches the timeout, using wrap-tolerant unsigned subtraction
// for elapsed time.
func (w *Watchdog) CheckSilence(nowMS uint32) bool {
	if !w.haveFrame || w.silent {
		return false
	}
	elapsed := nowMS - w.lastFrameMS
	if elapsed < w.timeoutMS {
		return false
	}
	w.silent = true
	w.disconnects++
	return true
}

// Snapshot returns the Watchdog's current counters.
func (w *Watchdog) Snapshot() WatchdogSnapshot {
	return WatchdogSnapshot{Disconnects: w.disconnects, Silent: w.silent}
}
