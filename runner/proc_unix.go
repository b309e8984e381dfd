//go:build unix

package runner

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureCommand puts the test into its own process group so a timeout
// reaches everything it spawned.
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcess(proc *os.Process) error {
	if err := unix.Kill(-proc.Pid, unix.SIGKILL); err != nil {
		return proc.Kill()
	}
	return nil
}
