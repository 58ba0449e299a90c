package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hendriksen-mark/server-installer/internal/config"
	"github.com/hendriksen-mark/server-installer/internal/deploy"
	"github.com/hendriksen-mark/server-installer/internal/domain/install"
	"github.com/hendriksen-mark/server-installer/internal/domain/release"
	"github.com/hendriksen-mark/server-installer/internal/logger"
	"github.com/hendriksen-mark/server-installer/internal/repository/catalog"
)

var errInstallerAlreadyRunning = errors.New("the installer is already running")

// Options are inputs accepted by the installer entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// Channel pre-seeds the release channel selection (1-based index or
	// exact name). Empty means ask interactively.
	Channel string
	// Mode pre-seeds the deployment mode selection (1-based index or name).
	// Empty means ask interactively.
	Mode string
	// NonInteractive suppresses all prompts; unset selections resolve to
	// their defaults.
	NonInteractive bool
	// Input is where operator answers are read from (defaults to stdin).
	Input io.Reader
	// Output is where prompts are written to (defaults to stdout).
	Output io.Writer
}

// strategyFactory builds the deployment strategy for a mode. Swappable in tests.
type strategyFactory func(mode install.Mode, plan deploy.Plan) deploy.Strategy

// runner holds the collaborators and mutable state for a single provisioning
// run. It is intentionally unexported—call Run(ctx, Options) from callers.
type runner struct {
	cfg        *config.Config
	opts       *Options
	catalog    catalog.Repository
	checker    *ConflictChecker
	vault      *Vault
	fetcher    *Fetcher
	lifecycle  *Lifecycle
	exec       deploy.Runner
	prompt     *prompter
	strategy   strategyFactory
	stagingDir string
}

// Run executes the provisioning flow and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "server-installer")

	r, err := newRunner(ctx, opts)
	if err != nil {
		return err
	}

	defer r.cleanup(ctx)

	if err = r.Run(ctx); err != nil {
		logger.ErrorKV(ctx, "Provisioning failed", "error", err)
		return err
	}

	logger.Info(ctx, "Provisioning completed")

	return nil
}

// newRunner prepares the run: it guards against concurrent invocations,
// loads settings, and wires the collaborators.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	if IsInstallerRunningNow(ctx) {
		return nil, errInstallerAlreadyRunning
	}

	if err := createMarker(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		removeMarker()

		return nil, err
	}

	input := opts.Input
	if input == nil {
		input = os.Stdin
	}

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	vault := NewVault()

	r := &runner{
		cfg:       cfg,
		opts:      opts,
		catalog:   catalog.NewGitHubRepository(cfg.CatalogURL, cfg.Timeout),
		checker:   NewConflictChecker(),
		vault:     vault,
		fetcher:   NewFetcher(cfg.Timeout),
		lifecycle: NewLifecycle(vault),
		exec:      deploy.NewExecRunner(),
		prompt:    newPrompter(input, output),
	}

	r.strategy = r.buildStrategy

	return r, nil
}

// Run executes the provisioning workflow for this runner instance:
// 1) Resolve release channels (catalog or fallback).
// 2) Resolve channel and deployment mode choices.
// 3) Detect the existing installation.
// 4) Check reserved ports, fresh installs only.
// 5) Stage both artifact bundles fully before touching the live root.
// 6) Back up the config when the strategy replaces the tree.
// 7) Apply stop/replace/restore/start through the lifecycle manager.
func (r *runner) Run(ctx context.Context) error {
	channels := r.resolveChannels(ctx)

	channelChoice := r.chooseChannel(ctx, channels)
	mode := r.chooseMode(ctx)

	state, err := install.DetectState(r.cfg.InstallRoot, r.cfg.ConfigDirName)
	if err != nil {
		return err
	}

	if !state.Present {
		logger.Info(ctx, "Fresh install, checking reserved ports")

		if err = r.checker.CheckPortsFree(ctx, r.cfg.ReservedPorts); err != nil {
			return err
		}
	}

	logger.Info(ctx, "Staging artifact bundles")

	serverTree, uiTree, err := r.stageBundles(ctx, channelChoice.Channel.Name)
	if err != nil {
		return err
	}

	plan := deploy.Plan{
		Root:       r.cfg.InstallRoot,
		Channel:    channelChoice.Channel.Name,
		ServerTree: serverTree,
		UITree:     uiTree,
		ConfigPath: r.cfg.ConfigPath(),
	}

	strategy := r.strategy(mode, plan)

	var backup *install.Backup

	if state.Present && !strategy.PreservesConfigInPlace() {
		if backup, err = r.vault.Backup(ctx, state); err != nil {
			return err
		}
	}

	if err = r.lifecycle.ApplyUpgrade(ctx, strategy, state, backup, r.cfg.ConfigPath()); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Deployment active",
		"mode", mode.String(),
		"channel", channelChoice.Channel.Name,
		"channel_provenance", channelChoice.Provenance.String())

	return nil
}

// resolveChannels queries the catalog, falling back to the fixed default
// sequence when it is unreachable. The fallback is reported, never fatal.
func (r *runner) resolveChannels(ctx context.Context) []release.Channel {
	channels, err := r.catalog.ListChannels(ctx)
	if err != nil || len(channels) == 0 {
		logger.Warnf(ctx, "Release catalog unavailable, using default channels: %v", err)
		return release.DefaultChannels()
	}

	return channels
}

// chooseChannel resolves the channel selection from the pre-seeded option or
// an interactive prompt. Invalid input resolves to the first channel and is
// reported to the operator via provenance.
func (r *runner) chooseChannel(ctx context.Context, channels []release.Channel) release.Choice {
	input := r.opts.Channel

	if input == "" && !r.opts.NonInteractive {
		var menu strings.Builder

		menu.WriteString("Select a release channel:\n")

		for i, channel := range channels {
			fmt.Fprintf(&menu, "  %d) %s (%s)\n", i+1, channel.Name, channel.Stability)
		}

		fmt.Fprintf(&menu, "Enter a number [default 1, %s]: ", channels[0].Name)

		input = r.prompt.ask(menu.String())
	}

	choice := release.Choose(channels, input)
	if choice.Provenance == release.ProvenanceFallback {
		logger.InfoKV(ctx, "Using default release channel",
			"channel", choice.Channel.Name, "input", input)
	}

	return choice
}

// chooseMode resolves the deployment mode from the pre-seeded option or an
// interactive prompt. Invalid input resolves to host-service mode.
func (r *runner) chooseMode(ctx context.Context) install.Mode {
	input := r.opts.Mode

	if input == "" && !r.opts.NonInteractive {
		input = r.prompt.ask(
			"Select a deployment mode:\n" +
				"  1) host-service (systemd)\n" +
				"  2) container (docker)\n" +
				"Enter a number [default 1, host-service]: ")
	}

	mode, explicit := parseMode(input)
	if !explicit {
		logger.InfoKV(ctx, "Using default deployment mode", "mode", mode.String(), "input", input)
	}

	return mode
}

// parseMode maps operator input to a deployment mode, reporting whether the
// input selected it explicitly.
func parseMode(input string) (install.Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "host", "host-service", "systemd":
		return install.ModeHostService, true
	case "2", "container", "docker":
		return install.ModeContainer, true
	default:
		return install.ModeHostService, false
	}
}

// stageBundles fetches and extracts both artifact bundles into a staging
// directory outside the installation root, returning the located server tree
// and UI content. Nothing under the live root is touched here.
func (r *runner) stageBundles(ctx context.Context, channel string) (string, string, error) {
	staging, err := os.MkdirTemp("", "server-installer-")
	if err != nil {
		return "", "", fmt.Errorf("create staging directory: %w", err)
	}

	r.stagingDir = staging

	bundles := []*install.Bundle{
		{
			Kind:       install.BundleServer,
			URL:        r.cfg.ServerArchive(channel),
			Archive:    filepath.Join(staging, "server.zip"),
			ExtractDir: filepath.Join(staging, "server"),
		},
		{
			Kind:       install.BundleUIRelease,
			URL:        r.cfg.UIReleaseURL,
			Archive:    filepath.Join(staging, "ui.zip"),
			ExtractDir: filepath.Join(staging, "ui"),
		},
	}

	for _, bundle := range bundles {
		if err = os.MkdirAll(bundle.ExtractDir, 0o755); err != nil {
			return "", "", fmt.Errorf("create extraction target: %w", err)
		}

		if err = r.fetcher.Fetch(ctx, bundle); err != nil {
			return "", "", err
		}

		if err = r.fetcher.Extract(ctx, bundle); err != nil {
			return "", "", err
		}
	}

	serverTree, err := ServerTreeRoot(bundles[0].ExtractDir)
	if err != nil {
		return "", "", err
	}

	return serverTree, UIDistRoot(bundles[1].ExtractDir), nil
}

// buildStrategy constructs the strategy for the selected mode.
//
//nolint:ireturn // The point of the selection is returning one of two implementations.
func (r *runner) buildStrategy(mode install.Mode, plan deploy.Plan) deploy.Strategy {
	if mode == install.ModeContainer {
		return deploy.NewContainer(r.exec, plan, r.cfg.ContainerImage, r.cfg.ContainerName)
	}

	return deploy.NewHostService(r.exec, plan, r.cfg.ServiceUnit, r.cfg.ServiceUnitDir)
}

// cleanup removes the run marker and staged artifacts. A pending config
// backup is deliberately left in place and its location reported: on the
// data-loss path it is the only remaining copy of the operator's
// configuration.
func (r *runner) cleanup(ctx context.Context) {
	removeMarker()

	if r.stagingDir != "" {
		if _, err := os.Stat(r.stagingDir); err == nil {
			_ = os.RemoveAll(r.stagingDir)
		}
	}

	if staging, pending := r.vault.Pending(); pending {
		logger.WarnKV(ctx, "Config backup was not consumed, preserving it",
			"staging", staging)
	}

	logger.Info(ctx, "The installer has finished")
}
