package detector

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds a single run of a command probe.
const DefaultCommandTimeout = 5 * time.Second

// shellMeta are the characters that make a probe command need a shell.
const shellMeta = "|&;<>*?`$\"'(){}[]~"

// CommandDetector reports ready when Command exits with status zero.
// A run still going after Timeout is killed and counts as not ready.
type CommandDetector struct {
	Command string
	Timeout time.Duration
}

// probeCommand splits cmdStr into an argv, going through the platform shell
// only when cmdStr uses shell syntax. An empty command always succeeds.
func probeCommand(ctx context.Context, cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	switch {
	case cmdStr == "":
		return noopCommand(ctx)
	case strings.ContainsAny(cmdStr, shellMeta):
		return shellCommand(ctx, cmdStr)
	}
	argv := strings.Fields(cmdStr)
	// #nosec G204
	return exec.CommandContext(ctx, argv[0], argv[1:]...)
}

func (d CommandDetector) Alive() (bool, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := probeCommand(ctx, d.Command).Run()
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return false, nil
	}
	return false, err
}

func (d CommandDetector) Describe() string { return "cmd:" + d.Command }
