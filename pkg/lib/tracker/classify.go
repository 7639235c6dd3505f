package tracker

import (
	"fmt"
	"syscall"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
)

const (
	// DefaultSentinel is the exit status a shell uses when it cannot execute
	// the requested program.
	DefaultSentinel = 127
	// NoSentinel disables sentinel matching.
	NoSentinel = -1
)

// Classify turns a raw wait status into a TerminationOutcome.
//
// An exit status equal to sentinel is reported as a launch failure. A benchmark
// that legitimately exits with the sentinel value is indistinguishable from a
// failed exec; pass NoSentinel when running binaries directly, where exec
// failures are reported by Start instead.
func Classify(ws syscall.WaitStatus, sentinel int) (lib.TerminationOutcome, error) {
	switch {
	case ws.Exited():
		code := ws.ExitStatus()
		if sentinel != NoSentinel && code == sentinel {
			return lib.LaunchFailed(fmt.Sprintf("child exited with reserved status %d", code)), nil
		}
		return lib.Exited(code), nil
	case ws.Signaled():
		return lib.Signaled(ws.Signal()), nil
	default:
		return lib.TerminationOutcome{}, status.InternalErrorf("unexpected wait status %#x", uint32(ws))
	}
}
