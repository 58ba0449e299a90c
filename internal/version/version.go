package version

import "fmt"

// binaryName is the name the installer ships under.
const binaryName = "server-installer"

var (
	// Version is the installer's semantic version. Overridden via ldflags on release builds.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none" for local builds).
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version line with commit and build time,
// prefixed with the binary name so it is self-identifying in logs.
func Full() string {
	return fmt.Sprintf("%s %s (commit: %s, built at: %s)", binaryName, Version, Commit, BuildTime)
}
