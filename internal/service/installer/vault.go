package installer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hendriksen-mark/server-installer/internal/domain/install"
	"github.com/hendriksen-mark/server-installer/internal/fsutil"
	"github.com/hendriksen-mark/server-installer/internal/logger"
)

// stagingPattern names the temporary directory holding the backed-up configuration.
const stagingPattern = "server-installer-config-"

var (
	errBackupAlreadyTaken = errors.New("a config backup already exists for this run")
	errConfigUnreadable   = errors.New("config directory is unreadable")
)

// Vault preserves the configuration directory across the destructive
// wipe/restore window of a host-service upgrade. At most one backup exists
// per run.
type Vault struct {
	// stagingRoot is the parent of staging directories. Empty means the OS
	// temp directory. Swappable in tests.
	stagingRoot string
	// backup is the single backup taken during this run, nil until taken
	// and after a successful restore is discarded.
	backup *install.Backup
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{}
}

// Backup copies the config subpath to a staging location outside the
// installation root. Taking a second backup during the same run is an error.
func (v *Vault) Backup(ctx context.Context, state install.State) (*install.Backup, error) {
	if v.backup != nil {
		return nil, errBackupAlreadyTaken
	}

	source := state.ConfigPath()

	if _, err := os.Stat(source); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errConfigUnreadable, source, err)
	}

	staging, err := os.MkdirTemp(v.stagingRoot, stagingPattern)
	if err != nil {
		return nil, fmt.Errorf("create staging location: %w", err)
	}

	if err = fsutil.CopyTree(source, staging); err != nil {
		// The staging dir holds no complete backup yet, so it is safe to drop.
		_ = os.RemoveAll(staging)

		return nil, fmt.Errorf("back up config: %w", err)
	}

	v.backup = &install.Backup{
		Source:     source,
		StagingDir: staging,
	}

	logger.InfoKV(ctx, "Config backed up", "source", source, "staging", staging)

	return v.backup, nil
}

// Restore replaces the freshly laid-down tree's config subpath with the
// staged content. Whatever the new tree shipped under that subpath is removed
// first, so the directory ends up exactly as it was before the run. At this
// point the old tree is already gone, so a failure is unrecoverable from the
// tool's own records and is reported as a DataLossRiskError; the staging
// directory is never deleted on that path.
func (v *Vault) Restore(ctx context.Context, backup *install.Backup, destination string) error {
	if err := os.RemoveAll(destination); err != nil {
		return &install.DataLossRiskError{
			StagingDir: backup.StagingDir,
			Err:        err,
		}
	}

	if err := fsutil.CopyTree(backup.StagingDir, destination); err != nil {
		return &install.DataLossRiskError{
			StagingDir: backup.StagingDir,
			Err:        err,
		}
	}

	logger.InfoKV(ctx, "Config restored", "destination", destination)

	return nil
}

// Discard removes the staging directory after a successful restore.
func (v *Vault) Discard() {
	if v.backup == nil {
		return
	}

	_ = os.RemoveAll(v.backup.StagingDir)
	v.backup = nil
}

// Pending returns the staging location of an unconsumed backup, if any.
// Used to tell the operator where their configuration survived a failed run.
func (v *Vault) Pending() (string, bool) {
	if v.backup == nil {
		return "", false
	}

	return v.backup.StagingDir, true
}
