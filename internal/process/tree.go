package process

import (
	"bytes"
	"errors"
	"os"
	"runtime"
	"strconv"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// lookup resolves pid to a live OS process handle.
func lookup(pid int) (*gopsproc.Process, bool) {
	if pid <= 0 {
		return nil, false
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return nil, false
	}
	return p, true
}

// Descendants returns every process transitively spawned by pid, parents
// before their children. The tree is read from the OS at call time.
func Descendants(pid int) ([]int, error) {
	root, ok := lookup(pid)
	if !ok {
		return nil, nil
	}
	procs, err := descendants(root)
	if err != nil {
		return nil, err
	}
	pids := make([]int, 0, len(procs))
	for _, p := range procs {
		pids = append(pids, int(p.Pid))
	}
	return pids, nil
}

func descendants(root *gopsproc.Process) ([]*gopsproc.Process, error) {
	var out []*gopsproc.Process
	seen := map[int32]bool{root.Pid: true}
	var walk func(p *gopsproc.Process) error
	walk = func(p *gopsproc.Process) error {
		children, err := p.Children()
		if err != nil {
			if isNoChildren(err) || isGone(err) {
				return nil
			}
			return err
		}
		for _, c := range children {
			if seen[c.Pid] {
				continue
			}
			seen[c.Pid] = true
			out = append(out, c)
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}

// exited reports whether p is gone or a zombie. A zombie no longer holds its
// resources even though its parent has not collected the exit status.
func exited(p *gopsproc.Process) bool {
	running, err := p.IsRunning()
	if err != nil || !running {
		return true
	}
	return isZombie(p)
}

func isZombie(p *gopsproc.Process) bool {
	if runtime.GOOS == "linux" {
		return isZombieLinux(int(p.Pid))
	}
	st, err := p.Status()
	if err != nil {
		return false
	}
	for _, s := range st {
		if s == gopsproc.Zombie {
			return true
		}
	}
	return false
}

// isZombieLinux reads the state straight from /proc, which avoids the cost of
// a full gopsutil status parse in tight wait loops.
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

func isNoChildren(err error) bool {
	return errors.Is(err, gopsproc.ErrorNoChildren)
}

// isGone reports errors that mean the target no longer exists.
func isGone(err error) bool {
	return errors.Is(err, gopsproc.ErrorProcessNotRunning) ||
		errors.Is(err, syscall.ESRCH) ||
		errors.Is(err, os.ErrProcessDone) ||
		errors.Is(err, os.ErrNotExist)
}
