package deploy

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes host commands. Strategies depend on this interface so
// tests can record invocations instead of touching systemd or a container
// runtime.
type Runner interface {
	// Run executes the command and fails on a non-zero exit.
	Run(ctx context.Context, name string, args ...string) error
	// Output executes the command and returns its combined output,
	// which is available even when the command failed.
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	output, err := r.Output(ctx, name, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(output))
	}

	return nil
}

// Output implements Runner.
func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	//nolint:gosec // Command names and arguments come from installer settings, not remote input.
	command := exec.CommandContext(ctx, name, args...)

	output, err := command.CombinedOutput()

	return string(output), err
}
