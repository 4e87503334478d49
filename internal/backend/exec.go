package backend

import (
	"context"
	"os/exec"
)

type execCommandFunc func(ctx context.Context, name string, args ...string) commandRunner

type commandRunner interface {
	CombinedOutput() ([]byte, error)
	Start() error
}

type execCmd struct {
	ctx  context.Context
	name string
	args []string
}

// CombinedOutput runs the command bound to the caller's context.
func (e *execCmd) CombinedOutput() ([]byte, error) {
	return exec.CommandContext(e.ctx, e.name, e.args...).CombinedOutput() //nolint:gosec // command names come from fixed per-OS tables
}

// Start launches the command detached from the caller's context so that a
// started application outlives the request.
func (e *execCmd) Start() error {
	cmd := exec.Command(e.name, e.args...) //nolint:gosec // command names come from fixed per-OS tables
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait() //nolint:errcheck // reap only
	return nil
}

func defaultExecCommand(ctx context.Context, name string, args ...string) commandRunner {
	return &execCmd{ctx: ctx, name: name, args: args}
}
