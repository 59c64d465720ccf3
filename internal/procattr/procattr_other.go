//go:build unix && !linux

// Package procattr configures child processes so that a whole process tree
// can be signalled at once and does not outlive the daemon.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set puts the child in its own process group. Pdeathsig is Linux-only.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// SetSession starts the child in a new session with the given terminal as
// its controlling tty. Used for interactive shells.
func SetSession(cmd *exec.Cmd, ctty int) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    ctty,
	}
}
