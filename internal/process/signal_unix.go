//go:build !windows

package process

import (
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Signal senders for the two termination stages.
var (
	terminateProc = func(p *gopsproc.Process) error { return p.SendSignal(syscall.SIGTERM) }
	killProc      = func(p *gopsproc.Process) error { return p.SendSignal(syscall.SIGKILL) }
)
