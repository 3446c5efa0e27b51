package process

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/loykin/xprocess/internal/logger"
)

// File names inside a control directory.
const (
	LogFileName = "xprocess.log"
	PIDFileName = "xprocess.PID"
)

// Info identifies the process registered under a logical name and offers
// liveness checks and recursive termination of its process tree.
//
// PID is only meaningful together with a successful IsRunning check: the pid
// file may be stale and the OS may have handed the pid to an unrelated
// process. When the pid file carries a start time the reuse is detected;
// otherwise it is an accepted limitation.
type Info struct {
	Name       string
	ControlDir string
	LogPath    string
	PIDPath    string
	PID        int   // 0 when no process was ever recorded
	StartUnix  int64 // 0 when unknown

	signalSent atomic.Bool
	debug      logger.Debugger
}

// Load resolves the Info for name under root, reading the pid file if one
// exists. It does not create anything on disk.
func Load(root, name string) *Info {
	dir := filepath.Join(root, name)
	info := &Info{
		Name:       name,
		ControlDir: dir,
		LogPath:    filepath.Join(dir, LogFileName),
		PIDPath:    filepath.Join(dir, PIDFileName),
	}
	if pid, meta, err := ReadPIDFile(info.PIDPath); err == nil {
		info.PID = pid
		info.StartUnix = meta.StartUnix
	}
	return info
}

// SetDebugger sets the sink for termination diagnostics.
func (i *Info) SetDebugger(d logger.Debugger) { i.debug = d }

func (i *Info) debugger() logger.Debugger { return logger.OrNop(i.debug) }

// HasPID reports whether a pid has been recorded.
func (i *Info) HasPID() bool { return i.PID > 0 }

// Record stores pid as the current process for this name and persists it
// together with the process start time.
func (i *Info) Record(pid int) error {
	i.PID = pid
	i.StartUnix = startUnix(pid)
	i.signalSent.Store(false)
	return WritePIDFile(i.PIDPath, pid, PIDMeta{StartUnix: i.StartUnix})
}

// TerminationSignalSent reports whether Terminate dispatched signals to the
// recorded process. A process that was signaled owes its exit status to its
// parent.
func (i *Info) TerminationSignalSent() bool { return i.signalSent.Load() }

// IsRunning reports whether the recorded process exists. With ignoreZombies
// a process that exited but was not reaped yet counts as not running.
func (i *Info) IsRunning(ignoreZombies bool) bool {
	if !i.HasPID() {
		return false
	}
	p, ok := lookup(i.PID)
	if !ok {
		return false
	}
	if i.StartUnix > 0 {
		if cur := startUnix(i.PID); cur > 0 && !sameStart(cur, i.StartUnix) {
			return false
		}
	}
	if ignoreZombies && isZombie(p) {
		return false
	}
	return true
}

// Describe renders "<pid> <name> LIVE|DEAD <logpath>".
func (i *Info) Describe() string {
	state := "DEAD"
	if i.IsRunning(true) {
		state = "LIVE"
	}
	return fmt.Sprintf("%s %s %s %s", i.PIDString(), i.Name, state, i.LogPath)
}

// PIDString renders the pid, or "None" when none was recorded.
func (i *Info) PIDString() string {
	if !i.HasPID() {
		return "None"
	}
	return fmt.Sprint(i.PID)
}

// sameStart tolerates the one second jitter between /proc based and
// gopsutil based start time computations.
func sameStart(a, b int64) bool {
	d := a - b
	return d >= -1 && d <= 1
}
