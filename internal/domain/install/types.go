package install

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Mode is the deployment mode, chosen exactly once per run.
// It is not persisted; every run re-selects it.
type Mode int

const (
	// ModeHostService deploys the server tree directly on the host
	// and manages it through a systemd unit.
	ModeHostService Mode = iota
	// ModeContainer builds and runs the server as a container bound to
	// the host network.
	ModeContainer
)

// String returns a human-readable mode label.
func (m Mode) String() string {
	if m == ModeContainer {
		return "container"
	}

	return "host-service"
}

// State describes an installation found on disk at orchestration start.
// It is read once and never mutated in place: the tree itself is replaced
// wholesale during an upgrade.
type State struct {
	// Root is the filesystem location of the deployed tree.
	Root string
	// Present reports whether the root exists on disk.
	Present bool
	// ConfigDir is the fixed relative path within Root holding user configuration.
	ConfigDir string
}

// ConfigPath returns the absolute path of the preserved config directory.
func (s State) ConfigPath() string {
	return filepath.Join(s.Root, s.ConfigDir)
}

// DetectState inspects the filesystem for an existing installation.
func DetectState(root, configDir string) (State, error) {
	state := State{
		Root:      filepath.Clean(root),
		ConfigDir: configDir,
	}

	if _, err := os.Stat(state.Root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}

		return state, fmt.Errorf("inspect install root: %w", err)
	}

	state.Present = true

	return state, nil
}

// Backup is a transient copy of the config subpath, staged outside the
// installation root during the wipe/restore window. Exactly one backup may
// exist per run.
type Backup struct {
	// Source is the config path the backup was taken from.
	Source string
	// StagingDir is the temporary holding area outside the installation root.
	StagingDir string
}

// BundleKind distinguishes the two artifact bundles of a deployment.
type BundleKind int

const (
	// BundleServer is the server source tree, keyed by the selected channel.
	BundleServer BundleKind = iota
	// BundleUIRelease is the prebuilt UI bundle, always fetched at latest.
	BundleUIRelease
)

// String returns a human-readable bundle label.
func (k BundleKind) String() string {
	if k == BundleUIRelease {
		return "ui-release"
	}

	return "server"
}

// Bundle describes one downloadable artifact archive and where it is staged.
// Both bundles must be fully fetched and extracted before the live root is touched.
type Bundle struct {
	// Kind tells server source apart from the UI release.
	Kind BundleKind
	// URL is the archive download location.
	URL string
	// Archive is the local path of the downloaded archive.
	Archive string
	// ExtractDir is the staging directory the archive is unpacked into.
	ExtractDir string
}
