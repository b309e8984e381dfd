//go:build windows

package runner

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

// resultFromState translates NTSTATUS exit codes into the closed fault set.
func resultFromState(state *os.ProcessState) ProcessResult {
	code := state.ExitCode()
	kind, desc, ok := faultFromStatus(windows.NTStatus(uint32(code)))
	if !ok {
		return ProcessResult{State: ProcessExited, ExitCode: code}
	}
	return ProcessResult{State: ProcessException, ExitCode: code, Fault: kind, FaultDescription: desc}
}

func faultFromStatus(status windows.NTStatus) (types.FaultKind, string, bool) {
	switch status {
	case windows.STATUS_ACCESS_VIOLATION, windows.STATUS_DATATYPE_MISALIGNMENT,
		windows.STATUS_IN_PAGE_ERROR, windows.STATUS_STACK_OVERFLOW:
		return types.FaultSegmentation, "Segmentation fault", true
	case windows.STATUS_ILLEGAL_INSTRUCTION, windows.STATUS_PRIVILEGED_INSTRUCTION:
		return types.FaultIllegalInstruction, "Illegal instruction", true
	case windows.STATUS_CONTROL_C_EXIT:
		return types.FaultInterrupt, "User interrupt", true
	case windows.STATUS_FLOAT_DENORMAL_OPERAND, windows.STATUS_FLOAT_DIVIDE_BY_ZERO,
		windows.STATUS_FLOAT_INEXACT_RESULT, windows.STATUS_FLOAT_INVALID_OPERATION,
		windows.STATUS_FLOAT_OVERFLOW, windows.STATUS_FLOAT_STACK_CHECK,
		windows.STATUS_FLOAT_UNDERFLOW, windows.STATUS_INTEGER_DIVIDE_BY_ZERO,
		windows.STATUS_INTEGER_OVERFLOW:
		return types.FaultNumerical, "Floating-point exception", true
	case windows.STATUS_NO_MEMORY, windows.STATUS_INVALID_DISPOSITION,
		windows.STATUS_NONCONTINUABLE_EXCEPTION, windows.STATUS_ARRAY_BOUNDS_EXCEEDED,
		windows.STATUS_BREAKPOINT, windows.STATUS_SINGLE_STEP:
		return types.FaultOther, fmt.Sprintf("Exception 0x%08x", uint32(status)), true
	}
	return types.FaultNone, "", false
}

// killedResult matches the exit code TerminateProcess leaves behind.
func killedResult() ProcessResult {
	return ProcessResult{State: ProcessExited, ExitCode: 1}
}
