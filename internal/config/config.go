package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds provisioning parameters shared by the installer components.
type Config struct {
	// InstallRoot is the filesystem location of the deployed server tree.
	InstallRoot string `yaml:"install_root"`
	// ConfigDirName is the relative path inside InstallRoot holding user configuration.
	// Its content is the only part of the tree that survives upgrades.
	ConfigDirName string `yaml:"config_dir"`
	// CatalogURL is the list-branches endpoint used to discover release channels.
	CatalogURL string `yaml:"catalog_url"`
	// ServerArchiveURL is a template with a single %s placeholder for the channel name.
	ServerArchiveURL string `yaml:"server_archive_url"`
	// UIReleaseURL points at the latest UI release archive. The UI stream is not
	// pinned to the server channel.
	UIReleaseURL string `yaml:"ui_release_url"`
	// ServiceUnit is the systemd unit name used in host-service mode.
	ServiceUnit string `yaml:"service_unit"`
	// ServiceUnitDir is the directory the unit file is written into.
	ServiceUnitDir string `yaml:"service_unit_dir"`
	// ContainerImage is the image name (namespace/service) used in container mode.
	ContainerImage string `yaml:"container_image"`
	// ContainerName is the name of the running container instance.
	ContainerName string `yaml:"container_name"`
	// ReservedPorts are the listening ports the deployed stack needs free on a fresh install.
	ReservedPorts []uint32 `yaml:"reserved_ports"`
	// Timeout is the duration for network operations.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the default filename for installer settings.
	DefaultConfigFilename = "server-installer-settings.yaml"

	// DefaultInstallRoot is where the host-service deployment lives.
	DefaultInstallRoot = "/opt/extension-server"

	// DefaultConfigDirName is the config subpath preserved across upgrades.
	DefaultConfigDirName = "config"

	// DefaultCatalogURL lists the branches of the server repository.
	DefaultCatalogURL = "https://api.github.com/repos/hendriksen-mark/raspberry_extension_server/branches"

	// DefaultServerArchiveURL is the source archive for a given channel.
	DefaultServerArchiveURL = "https://github.com/hendriksen-mark/raspberry_extension_server/archive/%s.zip"

	// DefaultUIReleaseURL is the prebuilt UI bundle, always at latest.
	DefaultUIReleaseURL = "https://github.com/hendriksen-mark/raspberry_extension_server_ui/releases/latest/download/raspberry_extension_server_ui-release.zip"

	// DefaultServiceUnit is the systemd unit rewritten on every host-service deployment.
	DefaultServiceUnit = "extension-server.service"

	// DefaultServiceUnitDir is where the unit file is materialized.
	DefaultServiceUnitDir = "/etc/systemd/system"

	// DefaultContainerImage is tagged :ci for continuous reuse of build layers.
	DefaultContainerImage = "hendriksenmark/extension-server"

	// DefaultContainerName identifies the running container instance.
	DefaultContainerName = "extension-server"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Minute

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInstallRootRequired is returned when the install root is not absolute.
	errInstallRootRequired = errors.New("install root must be an absolute path")
	// errConfigDirEscapes is returned when the config subpath points outside the root.
	errConfigDirEscapes = errors.New("config dir must be a relative path inside the install root")
	// errArchiveTemplate is returned when the server archive URL has no channel placeholder.
	errArchiveTemplate = errors.New("server archive URL must contain a %s channel placeholder")
)

// DefaultReservedPorts returns the ports the deployed stack listens on.
// Checked only on fresh installs; an upgrade already owns them.
func DefaultReservedPorts() []uint32 {
	return []uint32{80, 443}
}

// Default returns a configuration populated with all defaults.
func Default() *Config {
	return &Config{
		InstallRoot:      DefaultInstallRoot,
		ConfigDirName:    DefaultConfigDirName,
		CatalogURL:       DefaultCatalogURL,
		ServerArchiveURL: DefaultServerArchiveURL,
		UIReleaseURL:     DefaultUIReleaseURL,
		ServiceUnit:      DefaultServiceUnit,
		ServiceUnitDir:   DefaultServiceUnitDir,
		ContainerImage:   DefaultContainerImage,
		ContainerName:    DefaultContainerName,
		ReservedPorts:    DefaultReservedPorts(),
		Timeout:          DefaultTimeout,
	}
}

// Load reads configuration from the provided path and validates essential fields.
// A missing file is not an error: defaults are returned so the installer works
// out of the box.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting,
// filling defaults for omitted ones.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.InstallRoot == "" {
		cfg.InstallRoot = DefaultInstallRoot
	}

	if !filepath.IsAbs(cfg.InstallRoot) {
		return fmt.Errorf("%s: %w", cfg.InstallRoot, errInstallRootRequired)
	}

	if cfg.ConfigDirName == "" {
		cfg.ConfigDirName = DefaultConfigDirName
	}

	if filepath.IsAbs(cfg.ConfigDirName) || strings.HasPrefix(filepath.Clean(cfg.ConfigDirName), "..") {
		return fmt.Errorf("%s: %w", cfg.ConfigDirName, errConfigDirEscapes)
	}

	if cfg.CatalogURL == "" {
		cfg.CatalogURL = DefaultCatalogURL
	}

	if cfg.ServerArchiveURL == "" {
		cfg.ServerArchiveURL = DefaultServerArchiveURL
	}

	if !strings.Contains(cfg.ServerArchiveURL, "%s") {
		return fmt.Errorf("%s: %w", cfg.ServerArchiveURL, errArchiveTemplate)
	}

	if cfg.UIReleaseURL == "" {
		cfg.UIReleaseURL = DefaultUIReleaseURL
	}

	for _, raw := range []string{cfg.CatalogURL, cfg.UIReleaseURL} {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("invalid URL %s: %w", raw, err)
		}
	}

	if cfg.ServiceUnit == "" {
		cfg.ServiceUnit = DefaultServiceUnit
	}

	if cfg.ServiceUnitDir == "" {
		cfg.ServiceUnitDir = DefaultServiceUnitDir
	}

	if cfg.ContainerImage == "" {
		cfg.ContainerImage = DefaultContainerImage
	}

	if cfg.ContainerName == "" {
		cfg.ContainerName = DefaultContainerName
	}

	if len(cfg.ReservedPorts) == 0 {
		cfg.ReservedPorts = DefaultReservedPorts()
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return nil
}

// ConfigPath returns the absolute path of the preserved config directory.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.InstallRoot, c.ConfigDirName)
}

// ServerArchive returns the download URL of the server bundle for a channel.
func (c *Config) ServerArchive(channel string) string {
	return fmt.Sprintf(c.ServerArchiveURL, channel)
}
