// Package version exposes the installer's build metadata.
//
// Version, Commit, and BuildTime are injected via Go ldflags on release
// builds and default to local-build placeholders otherwise. Full renders a
// self-identifying version line for the CLI `version` subcommand.
package version
