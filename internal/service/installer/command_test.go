package installer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/require"

	"github.com/hendriksen-mark/server-installer/internal/config"
	"github.com/hendriksen-mark/server-installer/internal/deploy"
	"github.com/hendriksen-mark/server-installer/internal/domain/install"
	"github.com/hendriksen-mark/server-installer/internal/domain/release"
)

// errExecFailed is the generic failure returned by the fake exec runner.
var errExecFailed = errors.New("exec failed")

// fakeExecRunner records every command and fails lines matching failOn.
type fakeExecRunner struct {
	commands [][]string
	failOn   string
}

func (r *fakeExecRunner) Run(ctx context.Context, name string, args ...string) error {
	_, err := r.Output(ctx, name, args...)
	return err
}

func (r *fakeExecRunner) Output(_ context.Context, name string, args ...string) (string, error) {
	command := append([]string{name}, args...)
	r.commands = append(r.commands, command)

	if r.failOn != "" && strings.Contains(strings.Join(command, " "), r.failOn) {
		return "", errExecFailed
	}

	return "", nil
}

// ran reports whether any recorded command line contains the substring.
func (r *fakeExecRunner) ran(substring string) bool {
	for _, command := range r.commands {
		if strings.Contains(strings.Join(command, " "), substring) {
			return true
		}
	}

	return false
}

// fakeCatalog serves a fixed channel list.
type fakeCatalog struct {
	channels []release.Channel
	err      error
}

func (f *fakeCatalog) ListChannels(context.Context) ([]release.Channel, error) {
	return f.channels, f.err
}

// completeServerZip builds a server bundle satisfying the tree layout contract.
func completeServerZip(t *testing.T) []byte {
	t.Helper()

	return buildZip(t, map[string]string{
		"raspberry_extension_server-main/api.py":                    "print('server')",
		"raspberry_extension_server-main/flaskUI/base.html":         "<html/>",
		"raspberry_extension_server-main/ServerObjects/objects.py":  "",
		"raspberry_extension_server-main/services/mqtt.py":          "",
		"raspberry_extension_server-main/configManager/settings.py": "",
		"raspberry_extension_server-main/config/default.json":       `{"defaults":true}`,
	})
}

// completeUIZip builds a UI release bundle with a dist layout.
func completeUIZip(t *testing.T) []byte {
	t.Helper()

	return buildZip(t, map[string]string{
		"dist/index.html":      "<html>ui</html>",
		"dist/assets/index.js": "render()",
	})
}

// artifactServer serves the server bundle for any channel and the UI bundle,
// optionally failing the UI download with the provided status.
func artifactServer(t *testing.T, serverZip, uiZip []byte, uiStatus int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/archive/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(serverZip)
	})

	mux.HandleFunc("/ui.zip", func(w http.ResponseWriter, _ *http.Request) {
		if uiStatus != 0 {
			w.WriteHeader(uiStatus)
			return
		}

		_, _ = w.Write(uiZip)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

// testConfig builds installer settings pointing at the artifact server, with
// the install root and unit directory under temp locations.
func testConfig(t *testing.T, artifactURL string) *config.Config {
	t.Helper()

	return &config.Config{
		InstallRoot:      filepath.Join(t.TempDir(), "extension-server"),
		ConfigDirName:    "config",
		CatalogURL:       artifactURL + "/branches",
		ServerArchiveURL: artifactURL + "/archive/%s.zip",
		UIReleaseURL:     artifactURL + "/ui.zip",
		ServiceUnit:      "extension-server.service",
		ServiceUnitDir:   t.TempDir(),
		ContainerImage:   "hendriksenmark/extension-server",
		ContainerName:    "extension-server",
		ReservedPorts:    []uint32{80, 443},
		Timeout:          time.Minute,
	}
}

// newTestRunner wires a runner with fakes for everything that would touch the
// host: the exec runner, the socket table, and the release catalog.
func newTestRunner(t *testing.T, cfg *config.Config, opts *Options, channels []release.Channel) (*runner, *fakeExecRunner) {
	t.Helper()

	exec := &fakeExecRunner{}
	vault := NewVault()

	r := &runner{
		cfg:       cfg,
		opts:      opts,
		catalog:   &fakeCatalog{channels: channels},
		checker:   &ConflictChecker{connections: staticConnections(nil, nil)},
		vault:     vault,
		fetcher:   NewFetcher(cfg.Timeout),
		lifecycle: NewLifecycle(vault),
		exec:      exec,
		prompt:    newPrompter(strings.NewReader(""), io.Discard),
	}

	r.strategy = r.buildStrategy

	t.Cleanup(func() {
		if r.stagingDir != "" {
			_ = os.RemoveAll(r.stagingDir)
		}
	})

	return r, exec
}

func defaultTestChannels() []release.Channel {
	return []release.Channel{
		release.NewChannel("main"),
		release.NewChannel("dev"),
	}
}

func TestRun_FreshHostServiceInstall(t *testing.T) {
	t.Parallel()

	server := artifactServer(t, completeServerZip(t), completeUIZip(t), 0)
	cfg := testConfig(t, server.URL)

	r, exec := newTestRunner(t, cfg,
		&Options{Channel: "1", Mode: "1", NonInteractive: true},
		defaultTestChannels())

	require.NoError(t, r.Run(context.Background()))

	// The staged tree replaced the (absent) root and carries the UI assets.
	require.FileExists(t, filepath.Join(cfg.InstallRoot, "api.py"))
	require.FileExists(t, filepath.Join(cfg.InstallRoot, "flaskUI", "templates", "index.html"))
	require.FileExists(t, filepath.Join(cfg.InstallRoot, "flaskUI", "assets", "index.js"))

	// The unit is rendered for the selected channel.
	unitContent, err := os.ReadFile(filepath.Join(cfg.ServiceUnitDir, cfg.ServiceUnit))
	require.NoError(t, err)
	require.Contains(t, string(unitContent), "Environment=SERVER_BRANCH=main")
	require.Contains(t, string(unitContent), "WorkingDirectory="+cfg.InstallRoot)

	// Fresh installs never stop a previous service.
	require.False(t, exec.ran("systemctl stop"))
	require.True(t, exec.ran("systemctl daemon-reload"))
	require.True(t, exec.ran("systemctl enable extension-server.service"))
	require.True(t, exec.ran("systemctl restart extension-server.service"))
}

func TestRun_HostServiceUpgradePreservesConfig(t *testing.T) {
	t.Parallel()

	server := artifactServer(t, completeServerZip(t), completeUIZip(t), 0)
	cfg := testConfig(t, server.URL)

	// An existing installation with user configuration and a stale file.
	configFile := filepath.Join(cfg.ConfigPath(), "settings.json")
	require.NoError(t, os.MkdirAll(cfg.ConfigPath(), 0o755))
	require.NoError(t, os.WriteFile(configFile, []byte(`{"user":"tuned"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InstallRoot, "stale.py"), []byte("old"), 0o644))

	r, exec := newTestRunner(t, cfg,
		&Options{Channel: "dev", Mode: "host", NonInteractive: true},
		defaultTestChannels())

	require.NoError(t, r.Run(context.Background()))

	// The old tree is gone, the config content survived byte for byte.
	require.NoFileExists(t, filepath.Join(cfg.InstallRoot, "stale.py"))

	content, err := os.ReadFile(configFile)
	require.NoError(t, err)
	require.Equal(t, `{"user":"tuned"}`, string(content))

	// The config dir holds exactly what it held before the run: content the
	// new server bundle shipped under it does not leak in.
	entries, err := os.ReadDir(cfg.ConfigPath())
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	require.Equal(t, []string{"settings.json"}, names)

	// The consumed backup left no staging behind.
	_, pending := r.vault.Pending()
	require.False(t, pending)

	// Upgrades stop the previous service before the swap.
	require.True(t, exec.ran("systemctl stop extension-server.service"))

	unitContent, err := os.ReadFile(filepath.Join(cfg.ServiceUnitDir, cfg.ServiceUnit))
	require.NoError(t, err)
	require.Contains(t, string(unitContent), "Environment=SERVER_BRANCH=dev")
}

func TestRun_TwiceInSuccessionIsIdempotent(t *testing.T) {
	t.Parallel()

	server := artifactServer(t, completeServerZip(t), completeUIZip(t), 0)
	cfg := testConfig(t, server.URL)
	ctx := context.Background()

	first, _ := newTestRunner(t, cfg,
		&Options{Channel: "1", Mode: "1", NonInteractive: true},
		defaultTestChannels())
	require.NoError(t, first.Run(ctx))

	configFile := filepath.Join(cfg.ConfigPath(), "default.json")
	before, err := os.ReadFile(configFile)
	require.NoError(t, err)

	second, exec := newTestRunner(t, cfg,
		&Options{Channel: "1", Mode: "1", NonInteractive: true},
		defaultTestChannels())
	require.NoError(t, second.Run(ctx))

	// Same channel, same config content, service restarted again.
	after, err := os.ReadFile(configFile)
	require.NoError(t, err)
	require.Equal(t, before, after)

	unitContent, err := os.ReadFile(filepath.Join(cfg.ServiceUnitDir, cfg.ServiceUnit))
	require.NoError(t, err)
	require.Contains(t, string(unitContent), "Environment=SERVER_BRANCH=main")

	require.True(t, exec.ran("systemctl stop extension-server.service"))
	require.True(t, exec.ran("systemctl restart extension-server.service"))

	_, pending := second.vault.Pending()
	require.False(t, pending)
}

func TestRun_ContainerUpgradeSkipsBackup(t *testing.T) {
	t.Parallel()

	server := artifactServer(t, completeServerZip(t), completeUIZip(t), 0)
	cfg := testConfig(t, server.URL)

	configFile := filepath.Join(cfg.ConfigPath(), "settings.json")
	require.NoError(t, os.MkdirAll(cfg.ConfigPath(), 0o755))
	require.NoError(t, os.WriteFile(configFile, []byte("mounted"), 0o644))

	r, _ := newTestRunner(t, cfg,
		&Options{Channel: "1", Mode: "container", NonInteractive: true},
		defaultTestChannels())

	strategy := &fakeStrategy{preserves: true}
	r.strategy = func(install.Mode, deploy.Plan) deploy.Strategy {
		return strategy
	}

	require.NoError(t, r.Run(context.Background()))

	// Config stays in place: no backup cycle, the file is untouched.
	require.Equal(t, []string{"stop", "install", "start"}, strategy.calls)

	_, pending := r.vault.Pending()
	require.False(t, pending)

	content, err := os.ReadFile(configFile)
	require.NoError(t, err)
	require.Equal(t, "mounted", string(content))
}

func TestRun_PortConflictAbortsFreshInstall(t *testing.T) {
	t.Parallel()

	server := artifactServer(t, completeServerZip(t), completeUIZip(t), 0)
	cfg := testConfig(t, server.URL)

	r, exec := newTestRunner(t, cfg,
		&Options{Channel: "1", Mode: "1", NonInteractive: true},
		defaultTestChannels())

	r.checker = &ConflictChecker{
		connections: staticConnections([]psnet.ConnectionStat{
			{Status: "LISTEN", Laddr: psnet.Addr{Port: 443}},
		}, nil),
	}

	err := r.Run(context.Background())

	var portErr *install.PortInUseError

	require.ErrorAs(t, err, &portErr)

	// Nothing was staged or touched.
	require.Empty(t, r.stagingDir)
	require.NoDirExists(t, cfg.InstallRoot)
	require.Empty(t, exec.commands)
}

func TestRun_UIBundleFailureLeavesPriorInstallIntact(t *testing.T) {
	t.Parallel()

	server := artifactServer(t, completeServerZip(t), nil, http.StatusNotFound)
	cfg := testConfig(t, server.URL)

	marker := filepath.Join(cfg.InstallRoot, "api.py")
	require.NoError(t, os.MkdirAll(cfg.ConfigPath(), 0o755))
	require.NoError(t, os.WriteFile(marker, []byte("live"), 0o644))

	r, exec := newTestRunner(t, cfg,
		&Options{Channel: "1", Mode: "1", NonInteractive: true},
		defaultTestChannels())

	err := r.Run(context.Background())

	var netErr *install.NetworkError

	require.ErrorAs(t, err, &netErr)
	require.Equal(t, cfg.UIReleaseURL, netErr.URL)

	// Staging failed before any destructive step: the live tree is intact
	// and no service command ever ran.
	content, readErr := os.ReadFile(marker)
	require.NoError(t, readErr)
	require.Equal(t, "live", string(content))
	require.Empty(t, exec.commands)
}

func TestResolveChannels_FallsBackWhenCatalogUnavailable(t *testing.T) {
	t.Parallel()

	r := &runner{catalog: &fakeCatalog{err: &install.NetworkError{URL: "http://down.invalid", Err: errors.New("refused")}}}

	require.Equal(t, release.DefaultChannels(), r.resolveChannels(context.Background()))

	r = &runner{catalog: &fakeCatalog{}}

	require.Equal(t, release.DefaultChannels(), r.resolveChannels(context.Background()))
}

func TestChooseChannelAndMode_Interactive(t *testing.T) {
	t.Parallel()

	var output bytes.Buffer

	r := &runner{
		opts:   &Options{},
		prompt: newPrompter(strings.NewReader("2\n2\n"), &output),
	}

	choice := r.chooseChannel(context.Background(), defaultTestChannels())
	require.Equal(t, "dev", choice.Channel.Name)
	require.Equal(t, release.ProvenanceExplicit, choice.Provenance)

	mode := r.chooseMode(context.Background())
	require.Equal(t, install.ModeContainer, mode)

	require.Contains(t, output.String(), "Select a release channel")
	require.Contains(t, output.String(), "Select a deployment mode")
}

func TestChooseChannel_EOFResolvesToDefault(t *testing.T) {
	t.Parallel()

	r := &runner{
		opts:   &Options{},
		prompt: newPrompter(strings.NewReader(""), io.Discard),
	}

	choice := r.chooseChannel(context.Background(), defaultTestChannels())
	require.Equal(t, "main", choice.Channel.Name)
	require.Equal(t, release.ProvenanceFallback, choice.Provenance)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		want     install.Mode
		explicit bool
	}{
		{input: "1", want: install.ModeHostService, explicit: true},
		{input: "host", want: install.ModeHostService, explicit: true},
		{input: "host-service", want: install.ModeHostService, explicit: true},
		{input: "systemd", want: install.ModeHostService, explicit: true},
		{input: "2", want: install.ModeContainer, explicit: true},
		{input: "container", want: install.ModeContainer, explicit: true},
		{input: "Docker", want: install.ModeContainer, explicit: true},
		{input: "", want: install.ModeHostService, explicit: false},
		{input: "3", want: install.ModeHostService, explicit: false},
		{input: "kubernetes", want: install.ModeHostService, explicit: false},
	}

	for _, tt := range tests {
		mode, explicit := parseMode(tt.input)

		require.Equal(t, tt.want, mode, "input %q", tt.input)
		require.Equal(t, tt.explicit, explicit, "input %q", tt.input)
	}
}

func TestBuildStrategy_SelectsByMode(t *testing.T) {
	t.Parallel()

	r := &runner{cfg: config.Default(), exec: &fakeExecRunner{}}
	plan := deploy.Plan{Root: "/opt/extension-server", Channel: "main"}

	require.IsType(t, &deploy.HostService{}, r.buildStrategy(install.ModeHostService, plan))
	require.IsType(t, &deploy.Container{}, r.buildStrategy(install.ModeContainer, plan))
}
