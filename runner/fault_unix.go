//go:build unix

package runner

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

// resultFromState translates a unix wait status into the closed fault set.
func resultFromState(state *os.ProcessState) ProcessResult {
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || ws.Exited() {
		return ProcessResult{State: ProcessExited, ExitCode: state.ExitCode()}
	}
	if !ws.Signaled() {
		return ProcessResult{State: ProcessError, ExitCode: state.ExitCode(), FaultDescription: state.String()}
	}
	kind, desc := faultFromSignal(ws.Signal())
	return ProcessResult{State: ProcessException, ExitCode: state.ExitCode(), Fault: kind, FaultDescription: desc}
}

func faultFromSignal(sig syscall.Signal) (types.FaultKind, string) {
	switch sig {
	case unix.SIGSEGV:
		return types.FaultSegmentation, "Segmentation fault"
	case unix.SIGBUS:
		return types.FaultSegmentation, "Bus error"
	case unix.SIGILL:
		return types.FaultIllegalInstruction, "Illegal instruction"
	case unix.SIGINT:
		return types.FaultInterrupt, "User interrupt"
	case unix.SIGFPE:
		return types.FaultNumerical, "Floating-point exception"
	}
	name := unix.SignalName(sig)
	if name == "" {
		return types.FaultOther, fmt.Sprintf("Signal %d", int(sig))
	}
	return types.FaultOther, fmt.Sprintf("Signal %d (%s)", int(sig), name)
}

// killedResult is the outcome of a process group killed after its top
// process had already exited.
func killedResult() ProcessResult {
	kind, desc := faultFromSignal(unix.SIGKILL)
	return ProcessResult{State: ProcessException, ExitCode: -1, Fault: kind, FaultDescription: desc}
}
