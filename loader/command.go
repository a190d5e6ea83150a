package loader

import (
	"context"
	"os/exec"
)

// CommandBuilder creates the command used to run a test binary. The returned
// function releases anything the builder allocated for the command.
type CommandBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// DefaultCommandBuilder builds a plain exec.CommandContext command
func DefaultCommandBuilder(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	return exec.CommandContext(ctx, name, arg...), func() {}
}
