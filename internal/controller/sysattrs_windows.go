//go:build windows

package controller

import "syscall"

const createNewProcessGroup = 0x00000200

func processGroupAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: createNewProcessGroup, HideWindow: true}
}
