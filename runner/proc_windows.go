//go:build windows

package runner

import (
	"os"
	"os/exec"
)

func configureCommand(*exec.Cmd) {}

func killProcess(proc *os.Process) error {
	return proc.Kill()
}
