package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hendriksen-mark/server-installer/internal/config"
	"github.com/hendriksen-mark/server-installer/internal/logger"
	"github.com/hendriksen-mark/server-installer/internal/service/installer"
	"github.com/hendriksen-mark/server-installer/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// channel pre-selects the release channel (number or name).
	channel string

	// mode pre-selects the deployment mode (number or name).
	mode string

	// nonInteractive disables prompts; unset selections use defaults.
	nonInteractive bool

	// logLevel sets the minimum logging level.
	logLevel string

	// rootCmd represents the base command for installing and upgrading the server stack.
	rootCmd = &cobra.Command{
		Use:   "server-installer",
		Short: "Install or upgrade the extension server stack",
		Long: "Installs or upgrades the extension server stack: resolves a release channel, " +
			"stages the server and UI bundles, preserves the configuration directory, " +
			"and deploys either as a systemd service or a container.",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			options := &installer.Options{
				ConfigPath:     configPath,
				Channel:        channel,
				Mode:           mode,
				NonInteractive: nonInteractive,
			}

			return installer.Run(ctx, options)
		},
	}
)

// Execute runs the server-installer CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&channel, "channel", "", "release channel, by number or name")
	rootCmd.Flags().StringVar(&mode, "mode", "", "deployment mode: host-service or container")
	rootCmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; use defaults for unset selections")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "logging level: debug, info, warn or error")
}
