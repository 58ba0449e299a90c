package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/hendriksen-mark/server-installer/internal/logger"
)

const (
	// markerFilename marks that an installer run is in progress, to avoid
	// two invocations racing over the installation root.
	markerFilename = "server-installer-run-marker.bin"

	// markerLifetime is the period after which a stale run marker is ignored.
	markerLifetime = 30 * time.Minute

	// installerExecutable is the process name checked during stale-marker recovery.
	installerExecutable = "server-installer"
)

// markerPath returns the location of the run marker.
func markerPath() string {
	return filepath.Join(os.TempDir(), markerFilename)
}

// IsInstallerRunningNow checks presence of the run marker and attempts
// recovery if it looks stale.
func IsInstallerRunningNow(ctx context.Context) bool {
	fileInfo, err := os.Stat(markerPath())
	if err == nil {
		if time.Since(fileInfo.ModTime()) <= markerLifetime {
			return true
		}

		logger.Info(ctx, "The run marker is too old, attempting cleanup")

		if anotherInstallerAlive() {
			return true
		}

		if err = os.Remove(markerPath()); err != nil {
			return true
		}

		return false
	}

	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	logger.Infof(ctx, "Unable to read run marker: %v", err)

	return false
}

// createMarker writes the run marker for this invocation.
func createMarker() error {
	marker, err := os.Create(markerPath())
	if err != nil {
		return err
	}

	return marker.Close()
}

// removeMarker deletes the run marker, best effort.
func removeMarker() {
	if _, err := os.Stat(markerPath()); err == nil {
		_ = os.Remove(markerPath())
	}
}

// anotherInstallerAlive reports whether a different installer process is
// still running, which means a stale-looking marker is actually owned.
func anotherInstallerAlive() bool {
	processList, err := ps.Processes()
	if err != nil {
		return true
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() == installerExecutable {
			return true
		}
	}

	return false
}
