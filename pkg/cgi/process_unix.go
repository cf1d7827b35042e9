//go:build !windows

package cgi

import (
	"os/exec"
	"syscall"
)

// configureProcess starts the interpreter in its own process group.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
