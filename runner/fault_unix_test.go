//go:build unix

package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

func TestFaultFromSignal(t *testing.T) {
	tests := []struct {
		sig  unix.Signal
		want types.FaultKind
	}{
		{unix.SIGSEGV, types.FaultSegmentation},
		{unix.SIGBUS, types.FaultSegmentation},
		{unix.SIGILL, types.FaultIllegalInstruction},
		{unix.SIGINT, types.FaultInterrupt},
		{unix.SIGFPE, types.FaultNumerical},
		{unix.SIGABRT, types.FaultOther},
	}
	for _, tt := range tests {
		kind, desc := faultFromSignal(tt.sig)
		assert.Equal(t, tt.want, kind, unix.SignalName(tt.sig))
		assert.NotEmpty(t, desc)
	}

	_, desc := faultFromSignal(unix.SIGABRT)
	assert.Equal(t, "Signal 6 (SIGABRT)", desc)
}
