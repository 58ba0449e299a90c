package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/go-systemd/v22/unit"
	goupdate "github.com/doitdistributed/go-update"

	"github.com/hendriksen-mark/server-installer/internal/domain/install"
	"github.com/hendriksen-mark/server-installer/internal/fsutil"
	"github.com/hendriksen-mark/server-installer/internal/logger"
)

const (
	// DefaultUnitDir is where the service unit is materialized.
	DefaultUnitDir = "/etc/systemd/system"

	// entryScript is the top-level entry point of the deployed server tree.
	entryScript = "api.py"

	// pythonInterpreter runs the entry script.
	pythonInterpreter = "/usr/bin/python3"

	// unitFileMode is the permission for the rendered service unit.
	unitFileMode os.FileMode = 0o644
)

// serverTreeEntries are the fixed subdirectories and the entry script a
// complete server tree must contain before it may replace the live root.
//
//nolint:gochecknoglobals // Fixed layout contract of the deployed tree.
var serverTreeEntries = []string{
	"flaskUI",
	"ServerObjects",
	"services",
	"configManager",
	entryScript,
}

var (
	errIncompleteServerTree = errors.New("staged server tree is incomplete")
	errIncompleteUITree     = errors.New("staged UI release is incomplete")
)

// HostService deploys the server tree directly on the host and manages it
// through a systemd unit that is rewritten, not patched, on every deployment.
type HostService struct {
	// runner executes systemctl commands.
	runner Runner
	// plan holds the staged content and target paths.
	plan Plan
	// unitName is the systemd unit rewritten on every deployment.
	unitName string
	// unitDir is where the unit file lives (DefaultUnitDir outside of tests).
	unitDir string
}

// NewHostService creates the host-service strategy.
func NewHostService(runner Runner, plan Plan, unitName, unitDir string) *HostService {
	if unitDir == "" {
		unitDir = DefaultUnitDir
	}

	return &HostService{
		runner:   runner,
		plan:     plan,
		unitName: unitName,
		unitDir:  unitDir,
	}
}

// Name implements Strategy.
func (s *HostService) Name() string {
	return "host-service"
}

// PreservesConfigInPlace implements Strategy. The host-service variant
// replaces the whole tree, so configuration must be backed up and restored.
func (s *HostService) PreservesConfigInPlace() bool {
	return false
}

// StopPrevious implements Strategy by stopping the managed unit.
func (s *HostService) StopPrevious(ctx context.Context) error {
	logger.InfoKV(ctx, "Stopping previous service", "unit", s.unitName)

	if err := s.runner.Run(ctx, "systemctl", "stop", s.unitName); err != nil {
		return &install.ServiceControlError{Op: "stop service", Err: err}
	}

	return nil
}

// Install implements Strategy. It validates the staged content, then performs
// the destructive swap: the old root is removed, the staged server tree and
// UI assets are laid down, and the service unit is rewritten atomically.
func (s *HostService) Install(ctx context.Context) error {
	if err := s.validateStaged(); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Replacing installation root", "root", s.plan.Root)

	if err := os.RemoveAll(s.plan.Root); err != nil {
		return fmt.Errorf("remove previous tree: %w", err)
	}

	if err := fsutil.CopyTree(s.plan.ServerTree, s.plan.Root); err != nil {
		return fmt.Errorf("lay out server tree: %w", err)
	}

	if err := s.placeUIAssets(); err != nil {
		return fmt.Errorf("lay out UI assets: %w", err)
	}

	if err := s.writeUnit(); err != nil {
		return fmt.Errorf("write service unit: %w", err)
	}

	if err := s.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return &install.ServiceControlError{Op: "reload service manager", Err: err}
	}

	if err := s.runner.Run(ctx, "systemctl", "enable", s.unitName); err != nil {
		return &install.ServiceControlError{Op: "enable service", Err: err}
	}

	return nil
}

// Start implements Strategy by starting the freshly installed unit.
func (s *HostService) Start(ctx context.Context) error {
	logger.InfoKV(ctx, "Starting service", "unit", s.unitName)

	if err := s.runner.Run(ctx, "systemctl", "restart", s.unitName); err != nil {
		return &install.ServiceControlError{Op: "start service", Err: err}
	}

	return nil
}

// validateStaged checks completeness of both staged bundles. It runs before
// any destructive step, so a failure here leaves the previous installation
// fully intact.
func (s *HostService) validateStaged() error {
	for _, entry := range serverTreeEntries {
		if _, err := os.Stat(filepath.Join(s.plan.ServerTree, entry)); err != nil {
			return fmt.Errorf("%w: missing %s", errIncompleteServerTree, entry)
		}
	}

	if _, err := os.Stat(filepath.Join(s.plan.UITree, "index.html")); err != nil {
		return fmt.Errorf("%w: missing index.html", errIncompleteUITree)
	}

	return nil
}

// placeUIAssets copies the staged UI release into the web UI subdirectory:
// index.html into the templates folder and the assets folder alongside it.
func (s *HostService) placeUIAssets() error {
	templates := filepath.Join(s.plan.Root, "flaskUI", "templates")

	err := fsutil.CopyFile(
		filepath.Join(s.plan.UITree, "index.html"),
		filepath.Join(templates, "index.html"))
	if err != nil {
		return err
	}

	assets := filepath.Join(s.plan.UITree, "assets")
	if _, err = os.Stat(assets); errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	return fsutil.CopyTree(assets, filepath.Join(s.plan.Root, "flaskUI", "assets"))
}

// writeUnit renders the service unit parameterized by the selected channel
// and replaces any prior unit file atomically (write-to-temp, then move).
func (s *HostService) writeUnit() error {
	options := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", "Raspberry extension server"),
		unit.NewUnitOption("Unit", "After", "network-online.target"),
		unit.NewUnitOption("Unit", "Wants", "network-online.target"),
		unit.NewUnitOption("Service", "Type", "simple"),
		unit.NewUnitOption("Service", "WorkingDirectory", s.plan.Root),
		unit.NewUnitOption("Service", "ExecStart",
			fmt.Sprintf("%s %s", pythonInterpreter, filepath.Join(s.plan.Root, entryScript))),
		unit.NewUnitOption("Service", "Environment", "SERVER_BRANCH="+s.plan.Channel),
		unit.NewUnitOption("Service", "Restart", "on-failure"),
		unit.NewUnitOption("Service", "RestartSec", "5"),
		unit.NewUnitOption("Install", "WantedBy", "multi-user.target"),
	}

	unitPath := filepath.Join(s.unitDir, s.unitName)

	if _, err := os.Stat(unitPath); errors.Is(err, os.ErrNotExist) {
		// goupdate.Apply needs an existing target to replace.
		if err = os.WriteFile(unitPath, nil, unitFileMode); err != nil {
			return err
		}
	}

	applyOptions := goupdate.Options{
		TargetPath: unitPath,
		TargetMode: unitFileMode,
	}

	if err := goupdate.Apply(unit.Serialize(options), applyOptions); err != nil {
		return err
	}

	// Apply leaves a .old copy of the replaced file behind.
	oldPath := unitPath + ".old"
	if _, err := os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	return nil
}

// UnitPath returns the location of the managed unit file.
func (s *HostService) UnitPath() string {
	return filepath.Join(s.unitDir, s.unitName)
}
