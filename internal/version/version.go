// Package version holds build-time identifiers for cmd/presenced, set via
// -ldflags at build time.
package version

var (
	// Version is the presenced release tag.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)
