//go:build unix

package procattr

import (
	"errors"
	"os"
	"syscall"
)

// KillGroup sends SIGKILL to the process group led by p, falling back to
// the process alone when the group is gone. A process that already exited
// is not an error.
func KillGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err == nil {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
