//go:build windows

package process

import gopsproc "github.com/shirou/gopsutil/v4/process"

// Windows has no cooperative termination signal for arbitrary processes;
// both stages end in TerminateProcess.
var (
	terminateProc = func(p *gopsproc.Process) error { return p.Terminate() }
	killProc      = func(p *gopsproc.Process) error { return p.Kill() }
)
