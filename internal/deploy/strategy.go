package deploy

import "context"

// Plan carries the inputs a strategy needs to replace a deployment.
// All paths are explicit; no operation depends on the working directory.
type Plan struct {
	// Root is the installation root on the host.
	Root string
	// Channel is the selected release channel name.
	Channel string
	// ServerTree is the fully staged and validated server source tree.
	ServerTree string
	// UITree is the fully staged UI release content (the dist directory).
	UITree string
	// ConfigPath is the host path of the preserved configuration directory.
	ConfigPath string
}

// Strategy is one of the two mutually exclusive deployment mechanisms.
// A strategy is selected exactly once per run; switching modes between runs
// on top of an existing installation is not supported.
type Strategy interface {
	// Name identifies the strategy in logs and errors.
	Name() string

	// PreservesConfigInPlace reports whether the strategy consumes the
	// configuration directly from its original host path (container mode
	// bind-mounts it) instead of requiring a backup/restore cycle.
	PreservesConfigInPlace() bool

	// StopPrevious halts the previously deployed service instance.
	// Callers invoke it only when a prior installation exists; container
	// mode additionally tolerates an absent prior container.
	StopPrevious(ctx context.Context) error

	// Install replaces the deployment from the staged plan content.
	// For the host-service variant this is the destructive swap step and
	// must only run after the plan is fully staged and validated.
	Install(ctx context.Context) error

	// Start brings the replacement service up. It is never called when an
	// earlier step failed.
	Start(ctx context.Context) error
}
