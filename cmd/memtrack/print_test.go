package main

import (
	"bytes"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apiv1 "github.com/zksecurity/zkvm-benchmarks/api/v1"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
)

func TestPrintStatusTable(t *testing.T) {
	var buf bytes.Buffer
	printStatusTable(&buf, "3f2a", &apiv1.RunStatus{
		State: "finished",
		Usage: &apiv1.MemoryUsage{PeakBytes: 512 << 20, Outcome: &apiv1.Outcome{Kind: "signaled", Signal: int32(syscall.SIGKILL)}},
	}, &apiv1.TrackingRequest{Path: "/bin/prover", Args: []string{"fib", "10"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	require.Equal(t, lines[0], lines[2])
	require.Equal(t, lines[0], lines[4])
	require.Contains(t, lines[3], "finished")
	require.Contains(t, lines[3], "512MiB")
	require.Contains(t, lines[3], "signaled(killed)")
	require.Contains(t, lines[3], "/bin/prover fib 10")
	require.Equal(t, len(lines[1]), len(lines[3]), "columns line up")
}

func TestPrintStatusTableQueued(t *testing.T) {
	var buf bytes.Buffer
	printStatusTable(&buf, "3f2a", &apiv1.RunStatus{State: "queued"}, nil)
	require.Contains(t, buf.String(), "queued")
	require.NotContains(t, buf.String(), "error:")
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf, lib.TrackingRequest{Path: "/bin/prover"}, &lib.MemoryUsage{
		Peak:     64 << 20,
		Result:   lib.Signaled(syscall.SIGTERM),
		Duration: 3 * time.Second,
		OOMKills: 1,
	}, true)
	out := buf.String()
	require.Contains(t, out, "signaled(terminated) (timed out)")
	require.Contains(t, out, "64MiB (67108864 bytes)")
	require.Contains(t, out, "oom kills:")

	buf.Reset()
	printUsage(&buf, lib.TrackingRequest{Path: "/nope"}, &lib.MemoryUsage{Result: lib.LaunchFailed("no such file or directory")}, false)
	require.Contains(t, buf.String(), "launch failed: no such file or directory")
	require.NotContains(t, buf.String(), "peak memory")
}

func TestDescribeOutcome(t *testing.T) {
	require.Equal(t, "exited(2)", describeOutcome(&apiv1.Outcome{Kind: "exited", ExitCode: 2}))
	require.Equal(t, "launch failed", describeOutcome(&apiv1.Outcome{Kind: "launch_failed"}))
	require.Empty(t, describeOutcome(nil))
}

func TestRunRequiresPath(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"run"})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "benchmark path is required")
}
