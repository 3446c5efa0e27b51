package process

import (
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Result is the outcome of Info.Terminate.
type Result int

const (
	ResultFailed     Result = -1 // some process in the kill set survived, or the OS refused
	ResultNoop       Result = 0  // nothing recorded or nothing running
	ResultTerminated Result = 1
)

func (r Result) String() string {
	switch r {
	case ResultTerminated:
		return "TERMINATED"
	case ResultFailed:
		return "FAILED TO TERMINATE"
	default:
		return "NO PROCESS FOUND"
	}
}

// DefaultTerminateTimeout bounds each of the two signal stages.
const DefaultTerminateTimeout = 20 * time.Second

const exitPollInterval = 50 * time.Millisecond

type terminateOptions struct {
	tree    bool
	timeout time.Duration
}

// TerminateOption customizes Terminate.
type TerminateOption func(*terminateOptions)

// WithProcessTree selects whether descendants are terminated too (default true).
func WithProcessTree(v bool) TerminateOption {
	return func(o *terminateOptions) { o.tree = v }
}

// WithTimeout sets how long each stage waits for exits (default 20s).
func WithTimeout(d time.Duration) TerminateOption {
	return func(o *terminateOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Terminate shuts down the recorded process, and by default its whole tree.
//
// Every process in the kill set receives SIGTERM, leaves first and the root
// last. Survivors of the first stage get SIGKILL. Zombies count as exited.
// Errors talking to the OS never escape: they turn into ResultFailed.
func (i *Info) Terminate(opts ...TerminateOption) (res Result) {
	o := terminateOptions{tree: true, timeout: DefaultTerminateTimeout}
	for _, fn := range opts {
		fn(&o)
	}
	if !i.HasPID() {
		return ResultNoop
	}
	root, ok := lookup(i.PID)
	if !ok || !i.IsRunning(false) {
		return ResultNoop
	}

	log := i.debugger()
	defer func() {
		if r := recover(); r != nil {
			log.Debug("error while terminating process", "name", i.Name, "pid", i.PID, "panic", r)
			res = ResultFailed
		}
	}()

	kill := []*gopsproc.Process{root}
	if o.tree {
		children, err := descendants(root)
		if err != nil {
			log.Debug("error while terminating process", "name", i.Name, "pid", i.PID, "error", err)
			return ResultFailed
		}
		kill = append(kill, children...)
	}

	var sigErr error
	for idx := len(kill) - 1; idx >= 0; idx-- {
		if err := terminateProc(kill[idx]); err != nil && !isGone(err) && sigErr == nil {
			sigErr = err
		}
	}
	// the signal went out even if what follows fails
	i.signalSent.Store(true)

	alive := waitExited(kill, o.timeout)
	for _, p := range alive {
		if err := killProc(p); err != nil && !isGone(err) && sigErr == nil {
			sigErr = err
		}
	}
	if len(alive) > 0 {
		alive = waitExited(alive, o.timeout)
	}

	if len(alive) > 0 {
		pids := make([]int32, 0, len(alive))
		for _, p := range alive {
			pids = append(pids, p.Pid)
		}
		log.Debug("could not terminate process", "name", i.Name, "alive", pids)
		return ResultFailed
	}
	if sigErr != nil {
		log.Debug("error while terminating process", "name", i.Name, "pid", i.PID, "error", sigErr)
		return ResultFailed
	}
	log.Debug("process terminated", "name", i.Name, "pid", i.PID, "killed", len(kill))
	return ResultTerminated
}

// waitExited polls until every process has exited or timeout elapses and
// returns the ones still alive.
func waitExited(procs []*gopsproc.Process, timeout time.Duration) []*gopsproc.Process {
	deadline := time.Now().Add(timeout)
	alive := procs
	for {
		next := alive[:0:0]
		for _, p := range alive {
			if !exited(p) {
				next = append(next, p)
			}
		}
		alive = next
		if len(alive) == 0 || !time.Now().Before(deadline) {
			return alive
		}
		time.Sleep(exitPollInterval)
	}
}
