package deploy

import (
	"context"
	"errors"
	"strings"
)

// errCommandFailed is the generic failure returned by the fake runner.
var errCommandFailed = errors.New("command failed")

// fakeRunner records every invocation and fails commands matching failOn.
type fakeRunner struct {
	// commands holds each invocation as name followed by args.
	commands [][]string
	// failOn is a substring of the joined command line that triggers a failure.
	failOn string
	// failOutput is returned as combined output for failed commands.
	failOutput string
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	_, err := r.Output(ctx, name, args...)
	return err
}

func (r *fakeRunner) Output(_ context.Context, name string, args ...string) (string, error) {
	command := append([]string{name}, args...)
	r.commands = append(r.commands, command)

	line := strings.Join(command, " ")
	if r.failOn != "" && strings.Contains(line, r.failOn) {
		return r.failOutput, errCommandFailed
	}

	return "", nil
}

// ran reports whether any recorded command line contains the substring.
func (r *fakeRunner) ran(substring string) bool {
	for _, command := range r.commands {
		if strings.Contains(strings.Join(command, " "), substring) {
			return true
		}
	}

	return false
}
