//go:build windows

package detector

import (
	"context"
	"os/exec"
)

func shellCommand(ctx context.Context, cmdStr string) *exec.Cmd {
	// #nosec G204
	return exec.CommandContext(ctx, "cmd", "/c", cmdStr)
}

func noopCommand(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, "cmd", "/c", "rem")
}
