package process

import (
	"io"
	"os/exec"
	"sync"
	"time"
)

// DefaultWaitTimeout bounds how long Release waits for the exit status of a
// signaled process.
const DefaultWaitTimeout = 60 * time.Second

// Resources binds one launched process to the handles the controller holds
// for it: read handles on its log file and the exec.Cmd used to collect its
// exit status. Release must run exactly once on every exit path; it is safe
// to call more than once.
type Resources struct {
	mu                   sync.Mutex
	files                []io.Closer
	info                 *Info
	cmd                  *exec.Cmd
	terminateOnInterrupt bool
	waitTimeout          time.Duration

	once     sync.Once
	reapOnce sync.Once
	reaped   bool
	released bool
}

// NewResources returns an empty bundle. waitTimeout <= 0 selects DefaultWaitTimeout.
func NewResources(waitTimeout time.Duration) *Resources {
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	return &Resources{waitTimeout: waitTimeout}
}

// AddFile registers a handle to be closed by Release. Files added after
// Release are closed immediately.
func (r *Resources) AddFile(c io.Closer) {
	if c == nil {
		return
	}
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		_ = c.Close()
		return
	}
	r.files = append(r.files, c)
	r.mu.Unlock()
}

// SetInfo associates the Info whose termination flag decides whether an exit
// status is owed.
func (r *Resources) SetInfo(info *Info, terminateOnInterrupt bool) {
	r.mu.Lock()
	r.info = info
	r.terminateOnInterrupt = terminateOnInterrupt
	r.mu.Unlock()
}

// SetCmd records the started command this process owns.
func (r *Resources) SetCmd(cmd *exec.Cmd) {
	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()
}

// Info returns the associated Info, or nil.
func (r *Resources) Info() *Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

// TerminateOnInterrupt reports whether the process should be terminated when
// the owning session is interrupted.
func (r *Resources) TerminateOnInterrupt() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminateOnInterrupt
}

// PID returns the pid of the owned command, or 0.
func (r *Resources) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.cmd.Process == nil {
		return 0
	}
	return r.cmd.Process.Pid
}

// Release closes every registered file and, when the process was signaled,
// collects its exit status so that it does not linger as a zombie. A process
// that was never signaled is left running: it may be reused by a later
// session.
func (r *Resources) Release() {
	r.once.Do(func() {
		r.mu.Lock()
		files := r.files
		r.files = nil
		r.released = true
		r.mu.Unlock()

		for _, f := range files {
			_ = f.Close()
		}
		r.Reap()
	})
}

// Reap collects the exit status of the owned command if it was signaled.
// Only the first call after the signal does any work. It reports whether the
// status has been collected.
func (r *Resources) Reap() bool {
	r.mu.Lock()
	info, cmd, timeout := r.info, r.cmd, r.waitTimeout
	r.mu.Unlock()
	if info == nil || cmd == nil || cmd.Process == nil || !info.TerminationSignalSent() {
		return false
	}
	r.reapOnce.Do(func() {
		ok := waitWithTimeout(cmd, timeout)
		r.mu.Lock()
		r.reaped = ok
		r.mu.Unlock()
	})
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reaped
}

// waitWithTimeout collects the exit status of cmd, giving up after timeout.
// It reports whether the status was collected.
func waitWithTimeout(cmd *exec.Cmd, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
