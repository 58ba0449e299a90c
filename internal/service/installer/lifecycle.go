package installer

import (
	"context"

	"github.com/hendriksen-mark/server-installer/internal/deploy"
	"github.com/hendriksen-mark/server-installer/internal/domain/install"
	"github.com/hendriksen-mark/server-installer/internal/logger"
)

// Lifecycle wraps a deployment strategy with stop/replace/start semantics
// that are identical for first installs and upgrades.
type Lifecycle struct {
	vault *Vault
}

// NewLifecycle creates a lifecycle manager sharing the run's vault.
func NewLifecycle(vault *Vault) *Lifecycle {
	return &Lifecycle{
		vault: vault,
	}
}

// ApplyUpgrade executes the stop/replace/start sequence:
//
//  1. Stop the previous service, only if one is installed.
//  2. Install the replacement from staged content (the destructive step).
//  3. Restore the config backup into the new tree, when one was taken.
//  4. Start the replacement.
//
// A fatal failure at any stage aborts the remaining sequence; there is no
// roll-forward past a failed step and no automatic rollback. In particular
// the replacement is never started when the restore failed.
func (l *Lifecycle) ApplyUpgrade(
	ctx context.Context,
	strategy deploy.Strategy,
	state install.State,
	backup *install.Backup,
	restorePath string,
) error {
	logger.InfoKV(ctx, "Applying deployment",
		"strategy", strategy.Name(), "existing_install", state.Present)

	if state.Present {
		if err := strategy.StopPrevious(ctx); err != nil {
			return err
		}
	}

	if err := strategy.Install(ctx); err != nil {
		return err
	}

	if backup != nil {
		if err := l.vault.Restore(ctx, backup, restorePath); err != nil {
			return err
		}

		l.vault.Discard()
	}

	return strategy.Start(ctx)
}
