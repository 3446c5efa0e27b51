package controller

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/xprocess/internal/history"
	"github.com/loykin/xprocess/internal/metrics"
	"github.com/loykin/xprocess/internal/process"
	"github.com/loykin/xprocess/internal/starter"
)

type ensureOptions struct {
	restart bool
}

// EnsureOption customizes Ensure.
type EnsureOption func(*ensureOptions)

// WithRestart forces a fresh launch even if the process is running.
func WithRestart(v bool) EnsureOption {
	return func(o *ensureOptions) { o.restart = v }
}

// Ensure makes sure the process registered as name is running and returns its
// pid and log path.
//
// A running process is reused unless restart is requested: its log is read
// from the current end so only new output is observed. Otherwise any stale
// process under name is terminated, p is asked for a launch Spec, the process
// is spawned with its output appended to the log and Ensure blocks until it
// is ready.
//
// When readiness cannot be established the error is a *starter.StartupError
// and the process is left running; pid and log path are still returned.
func (c *Controller) Ensure(name string, p starter.Preparer, opts ...EnsureOption) (int, string, error) {
	if err := ValidateName(name); err != nil {
		return 0, "", err
	}
	if p == nil {
		return 0, "", fmt.Errorf("%s: %w: nil preparer", name, starter.ErrInvalidSpec)
	}
	var o ensureOptions
	for _, fn := range opts {
		fn(&o)
	}

	// registered before anything is acquired so that Close releases it on
	// every path
	res := process.NewResources(c.procWaitTimeout)
	if err := c.register(res); err != nil {
		return 0, "", err
	}

	info := c.Info(name)
	if !o.restart && info.IsRunning(true) {
		return c.reuse(info, res)
	}
	return c.launchAndWait(info, p, res)
}

func (c *Controller) reuse(info *process.Info, res *process.Resources) (int, string, error) {
	rf, err := c.openLog(info, res)
	if err != nil {
		return 0, "", err
	}
	if _, err := rf.Seek(0, io.SeekEnd); err != nil {
		return 0, "", fmt.Errorf("%s: seek log: %w", info.Name, err)
	}
	c.setLogFile(info.Name, rf)
	c.log.Info("reusing running process", "name", info.Name, "pid", info.PID)
	metrics.IncEnsure(info.Name, metrics.OutcomeReuse)
	c.emit(history.EventReuse, info, "running", nil)
	return info.PID, info.LogPath, nil
}

func (c *Controller) launchAndWait(stale *process.Info, p starter.Preparer, res *process.Resources) (int, string, error) {
	name := stale.Name
	if stale.HasPID() {
		r := c.terminate(stale)
		c.debug.Debug("terminated stale process", "name", name, "pid", stale.PID, "result", r.String())
	}
	// the stale Info keeps its termination flag for the resources that own it
	info := process.Load(c.root, name)
	info.SetDebugger(c.debug)

	if err := os.MkdirAll(info.ControlDir, 0o750); err != nil {
		return 0, "", fmt.Errorf("%s: create control dir: %w", name, err)
	}
	spec, err := p.Prepare(info.ControlDir)
	if err != nil {
		return 0, "", fmt.Errorf("%s: prepare: %w", name, err)
	}
	if err := spec.Validate(); err != nil {
		return 0, "", fmt.Errorf("%s: %w", name, err)
	}
	spec = spec.WithDefaults()

	started := time.Now()
	if err := c.spawn(info, spec, res); err != nil {
		metrics.IncEnsure(name, metrics.OutcomeFailed)
		return 0, "", err
	}
	c.setLaunched(name, res)
	c.log.Info("process started", "name", name, "pid", info.PID, "log", info.LogPath)

	rf, err := c.openLog(info, res)
	if err != nil {
		return info.PID, info.LogPath, err
	}
	c.setLogFile(name, rf)
	blockStart, err := rf.Seek(0, io.SeekCurrent)
	if err != nil {
		return info.PID, info.LogPath, fmt.Errorf("%s: seek log: %w", name, err)
	}

	tail := starter.NewTail(rf)
	w := starter.NewWaiter(name, spec, c.debug)
	if err := w.Wait(tail); err != nil {
		var se *starter.StartupError
		if errors.As(err, &se) {
			c.log.Warn("startup detection failed", "name", name, "pid", info.PID, "reason", se.Reason.String())
		}
		// Logs reports the whole failed run
		if _, serr := rf.Seek(blockStart, io.SeekStart); serr != nil {
			c.debug.Debug("rewind log failed", "name", name, "error", serr)
		}
		metrics.IncEnsure(name, metrics.OutcomeFailed)
		c.emit(history.EventStartupFailed, info, "failed", err)
		return info.PID, info.LogPath, err
	}
	if err := tail.Rewind(); err != nil {
		c.debug.Debug("rewind log failed", "name", name, "error", err)
	}
	c.debug.Debug("process startup detected", "name", name)
	metrics.IncEnsure(name, metrics.OutcomeLaunch)
	metrics.ObserveStartup(name, time.Since(started).Seconds())
	c.emit(history.EventLaunch, info, "ready", nil)
	return info.PID, info.LogPath, nil
}

// spawn starts the process with its combined output going to the log file
// and records its pid.
func (c *Controller) spawn(info *process.Info, spec starter.Spec, res *process.Resources) error {
	flags := os.O_CREATE | os.O_WRONLY
	if c.persistLogs {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(info.LogPath, flags, 0o600)
	if err != nil {
		return fmt.Errorf("%s: open log: %w", info.Name, err)
	}
	// the child holds its own descriptor
	defer func() { _ = out.Close() }()
	if c.persistLogs {
		if _, err := out.WriteString(BlockDelimiter + "\n"); err != nil {
			return fmt.Errorf("%s: write log delimiter: %w", info.Name, err)
		}
	}

	dir := spec.Launch.WorkDir
	if dir == "" {
		dir = info.ControlDir
	}
	c.debug.Debug(fmt.Sprintf("%s$ %s", dir, strings.Join(spec.Args, " ")))

	// #nosec G204
	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Dir = dir
	cmd.Env = c.envM.Merge(spec.Env, spec.CleanEnv)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Stdin = spec.Launch.Stdin
	cmd.ExtraFiles = spec.Launch.ExtraFiles
	cmd.SysProcAttr = spec.Launch.SysProcAttr
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = processGroupAttrs()
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: start: %w", info.Name, err)
	}
	res.SetCmd(cmd)
	res.SetInfo(info, spec.TerminateOnInterrupt)
	if err := info.Record(cmd.Process.Pid); err != nil {
		// no pid file would lead Terminate to the child
		r := info.Terminate(process.WithTimeout(time.Second))
		res.Reap()
		c.debug.Debug("terminated unrecorded process", "name", info.Name, "pid", cmd.Process.Pid, "result", r.String())
		return fmt.Errorf("%s: record pid: %w", info.Name, err)
	}
	return nil
}

// openLog opens a read handle on the log. With persisted logs it is moved
// past every earlier run's block.
func (c *Controller) openLog(info *process.Info, res *process.Resources) (*os.File, error) {
	rf, err := os.Open(info.LogPath)
	if err != nil {
		return nil, fmt.Errorf("%s: open log: %w", info.Name, err)
	}
	res.AddFile(rf)
	if !c.persistLogs {
		return rf, nil
	}
	bf, err := os.Open(info.LogPath)
	if err != nil {
		return nil, fmt.Errorf("%s: open log: %w", info.Name, err)
	}
	res.AddFile(bf)
	off, err := lastBlockOffset(bf)
	if err != nil {
		return nil, fmt.Errorf("%s: scan log blocks: %w", info.Name, err)
	}
	if _, err := rf.Seek(off, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%s: seek log: %w", info.Name, err)
	}
	return rf, nil
}
