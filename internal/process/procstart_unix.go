//go:build !windows

package process

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shirou/gopsutil/v4/host"
	sysconf "github.com/tklauser/go-sysconf"
)

// statStartUnix adds the start tick recorded in /proc/<pid>/stat to the boot
// time. Systems without procfs yield 0.
func statStartUnix(pid int) int64 {
	b, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0
	}
	ticks, ok := startTicks(b)
	if !ok {
		return 0
	}
	boot, err := host.BootTime()
	if err != nil || boot == 0 {
		return 0
	}
	hz, err := sysconf.Sysconf(sysconf.SC_CLK_TCK)
	if err != nil || hz <= 0 {
		hz = 100
	}
	return int64(boot) + ticks/hz
}

// startTicks extracts starttime, the 20th field after the parenthesised
// command name (which may itself hold spaces and parentheses).
func startTicks(stat []byte) (int64, bool) {
	i := bytes.LastIndexByte(stat, ')')
	if i < 0 {
		return 0, false
	}
	fields := bytes.Fields(stat[i+1:])
	if len(fields) < 20 {
		return 0, false
	}
	v, err := strconv.ParseInt(string(fields[19]), 10, 64)
	return v, err == nil && v > 0
}
