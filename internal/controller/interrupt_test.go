//go:build !windows

package controller

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/xprocess/internal/process"
	"github.com/loykin/xprocess/internal/starter"
)

const (
	envInterruptHelper = "XPROCESS_INTERRUPT_HELPER" // "signal" or "released"
	envInterruptRoot   = "XPROCESS_INTERRUPT_ROOT"
)

// interruptHelperIfRequested runs a controller with NotifyOnInterrupt in a
// separate process and sends that process SIGINT.
func interruptHelperIfRequested() {
	mode := os.Getenv(envInterruptHelper)
	if mode == "" {
		return
	}
	_ = os.Unsetenv(envInterruptHelper)
	c, err := New(os.Getenv(envInterruptRoot))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	switch mode {
	case "signal":
		spec := linesSpec(0, "ready")
		spec.TerminateOnInterrupt = true
		if _, _, err := c.Ensure("flagged", starter.Static(spec)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		_ = c.NotifyOnInterrupt(ctx)
	case "released":
		_ = c.NotifyOnInterrupt(ctx)
		cancel()
		time.Sleep(200 * time.Millisecond)
	}
	_ = syscall.Kill(os.Getpid(), syscall.SIGINT)
	time.Sleep(30 * time.Second)
	os.Exit(0)
}

func runInterruptHelper(t *testing.T, mode string) (string, error) {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	root := t.TempDir()
	cmd := exec.Command(exe, "-test.run=^$")
	cmd.Env = append(os.Environ(), envInterruptHelper+"="+mode, envInterruptRoot+"="+root)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err = cmd.Run()
	t.Logf("helper output:\n%s", out.String())
	return root, err
}

func requireKilledBy(t *testing.T, err error, sig syscall.Signal) {
	t.Helper()
	var ee *exec.ExitError
	require.ErrorAs(t, err, &ee, "helper should not exit normally")
	ws, ok := ee.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	require.True(t, ws.Signaled(), "helper exited with status %d", ws.ExitStatus())
	assert.Equal(t, sig, ws.Signal())
}

func TestNotifyOnInterruptCleansUpAndReraises(t *testing.T) {
	root, err := runInterruptHelper(t, "signal")
	requireKilledBy(t, err, syscall.SIGINT)

	info := process.Load(root, "flagged")
	require.True(t, info.HasPID(), "helper recorded the flagged process")
	assert.Eventually(t, func() bool { return !info.IsRunning(true) }, 5*time.Second, 50*time.Millisecond,
		"flagged process terminated on interrupt")
}

func TestNotifyOnInterruptReleasesSignalsWhenDone(t *testing.T) {
	_, err := runInterruptHelper(t, "released")
	requireKilledBy(t, err, syscall.SIGINT)
}

func TestNotifyOnInterruptStopIsIdempotent(t *testing.T) {
	c := newController(t)
	stop := c.NotifyOnInterrupt(context.Background())
	stop()
	stop()
	_, _, err := c.Ensure("open", starter.Static(linesSpec(0, "ready")))
	require.NoError(t, err, "stopping the watcher does not close the controller")
}
