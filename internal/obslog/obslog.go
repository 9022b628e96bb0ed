// Package obslog centralises diagnostic logging for the host binaries that
// embed the presence pipeline. The core packages (parse, tracker, zones,
// smoother, pipeline) never call into this package directly — they report
// soft failures through counters on their Snapshot() structs, and it is the
// embedding host's job to decide whether, and how, those counters become log
// lines. See cmd/presenced for the one caller that does.
package obslog

import "log"

// Logf is the package-level logging hook. It defaults to log.Printf and can
// be swapped out by a host binary, e.g. to mute logging in tests or to
// redirect it to a structured sink.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger installs f as the active logging hook. Passing nil installs a
// no-op logger rather than leaving Logf unset.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
