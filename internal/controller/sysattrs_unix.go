//go:build !windows

package controller

import "syscall"

// processGroupAttrs puts the child in its own process group so that a Ctrl-C
// in the terminal does not reach it.
func processGroupAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
