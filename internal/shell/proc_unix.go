//go:build unix

package shell

import (
	"os/exec"
	"syscall"
)

// configureProcess starts the child in its own process group so a timeout
// also kills whatever it spawned.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
