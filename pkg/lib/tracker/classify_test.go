//go:build linux

package tracker

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
)

func exitStatus(code int) syscall.WaitStatus {
	return syscall.WaitStatus(code << 8)
}

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		name     string
		ws       syscall.WaitStatus
		sentinel int
		want     lib.TerminationOutcome
	}{
		{"clean exit", exitStatus(0), DefaultSentinel, lib.Exited(0)},
		{"failing exit", exitStatus(3), DefaultSentinel, lib.Exited(3)},
		{"killed", syscall.WaitStatus(syscall.SIGKILL), DefaultSentinel, lib.Signaled(syscall.SIGKILL)},
		{"segfault", syscall.WaitStatus(syscall.SIGSEGV), DefaultSentinel, lib.Signaled(syscall.SIGSEGV)},
		{"sentinel disabled", exitStatus(127), NoSentinel, lib.Exited(127)},
		{"custom sentinel", exitStatus(126), 126, lib.LaunchFailed("child exited with reserved status 126")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Classify(tc.ws, tc.sentinel)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestClassifySentinel(t *testing.T) {
	got, err := Classify(exitStatus(DefaultSentinel), DefaultSentinel)
	require.NoError(t, err)
	require.Equal(t, lib.OutcomeLaunchFailed, got.Kind)
	require.Zero(t, got.ExitCode)
	require.False(t, got.Success())
}

func TestClassifyStopped(t *testing.T) {
	ws := syscall.WaitStatus(0x7f | int(syscall.SIGSTOP)<<8)
	require.True(t, ws.Stopped())
	_, err := Classify(ws, DefaultSentinel)
	require.True(t, status.IsInternalError(err))
}
