//go:build linux

package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/cgroup"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
)

const (
	helperEnv = "MEMTRACK_TRACKER_HELPER"
	// signalAllocMiB is touched by the "signal" helper before it kills itself.
	signalAllocMiB = 16
)

// TestMain lets the test binary double as the tracked benchmark.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		os.Exit(helper(os.Args[1:]))
	}
	os.Exit(m.Run())
}

func helper(args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: exit|alloc|signal N")
		return 2
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	switch args[0] {
	case "exit":
		return n
	case "signal":
		buf := make([]byte, signalAllocMiB<<20)
		for i := 0; i < len(buf); i += 4096 {
			buf[i] = 1
		}
		_ = syscall.Kill(os.Getpid(), syscall.Signal(n))
		runtime.KeepAlive(buf)
		select {}
	case "alloc":
		buf := make([]byte, n<<20)
		for i := 0; i < len(buf); i += 4096 {
			buf[i] = 1
		}
		fmt.Println(len(buf))
		return 0
	}
	return 2
}

func helperRequest(args ...string) lib.TrackingRequest {
	return lib.TrackingRequest{Path: os.Args[0], Args: args}
}

func systemTracker(t *testing.T, mutate func(*Options)) *Tracker {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}
	var st syscall.Statfs_t
	if err := syscall.Statfs("/sys/fs/cgroup", &st); err != nil || st.Type != 0x63677270 {
		t.Skip("requires a unified cgroup hierarchy at /sys/fs/cgroup")
	}
	opts := DefaultOptions()
	opts.Guard = NewGuard()
	opts.Env = []string{helperEnv + "=1"}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

func TestRunRejectsEmptyPath(t *testing.T) {
	tr := New(Options{Roots: []cgroup.Root{{Path: t.TempDir(), Layout: cgroup.LayoutV2}}, Guard: NewGuard()})
	usage, err := tr.Run(context.Background(), lib.TrackingRequest{})
	require.Nil(t, usage)
	require.True(t, status.IsInvalidArgumentError(err))
}

func TestRunRequiresRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root")
	}
	tr := New(Options{RequireRoot: true, Guard: NewGuard()})
	_, err := tr.Run(context.Background(), helperRequest("exit", "0"))
	require.ErrorIs(t, err, status.ErrPermissionDenied)
}

func TestRunWithoutRoots(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent")
	tr := New(Options{Roots: []cgroup.Root{{Path: missing}}, Guard: NewGuard()})
	usage, err := tr.Run(context.Background(), helperRequest("exit", "0"))
	require.Nil(t, usage)
	require.ErrorIs(t, err, status.ErrResourceUnavailable)
}

func TestRunCloneIntoPlainDirectory(t *testing.T) {
	root := t.TempDir()
	tr := New(Options{
		Roots:    []cgroup.Root{{Path: root, Layout: cgroup.LayoutV2}},
		JoinMode: JoinCgroupFD,
		Guard:    NewGuard(),
	})
	var states []lib.RunState
	usage, err := tr.Run(context.Background(),
		lib.TrackingRequest{Path: "/bin/true"},
		WithRunID("r1"),
		WithStateHook(func(ev lib.RunEvent) {
			require.Equal(t, "r1", ev.RunID)
			states = append(states, ev.State)
		}),
	)
	// A group directory that is not a cgroup rejects the clone; the benchmark
	// itself is fine.
	require.Nil(t, usage)
	require.ErrorIs(t, err, status.ErrResourceUnavailable)
	require.False(t, status.IsLaunchFailedError(err))
	require.Equal(t, []lib.RunState{lib.RunStateGroupCreated, lib.RunStateGroupDestroyed, lib.RunStateIdle}, states)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Empty(t, entries, "resource group left behind")
}

func TestStartFailure(t *testing.T) {
	for _, tc := range []struct {
		err    error
		launch bool
	}{
		{&os.PathError{Op: "fork/exec", Path: "/nope", Err: syscall.ENOENT}, true},
		{&os.PathError{Op: "fork/exec", Path: "/etc", Err: syscall.EACCES}, true},
		{&os.PathError{Op: "fork/exec", Path: "/x", Err: syscall.ENOEXEC}, true},
		{&os.PathError{Op: "fork/exec", Path: "/x", Err: syscall.EAGAIN}, true},
		{&exec.Error{Name: "bench", Err: exec.ErrNotFound}, true},
		{&os.PathError{Op: "fork/exec", Path: "/bin/true", Err: syscall.EBADF}, false},
		{&os.PathError{Op: "fork/exec", Path: "/bin/true", Err: syscall.EBUSY}, false},
		{&os.PathError{Op: "fork/exec", Path: "/bin/true", Err: syscall.EOPNOTSUPP}, false},
	} {
		var se *startError
		require.Equal(t, tc.launch, errors.As(startFailure(tc.err), &se), tc.err.Error())
	}

	for _, errno := range []syscall.Errno{syscall.ENOSYS, syscall.EOPNOTSUPP, syscall.EINVAL} {
		require.True(t, errnoIn(&os.PathError{Op: "fork/exec", Err: errno}, cloneUnsupportedErrnos), errno.Error())
	}
	require.False(t, errnoIn(&os.PathError{Op: "fork/exec", Err: syscall.EBADF}, cloneUnsupportedErrnos))
}

func TestRunNonexistentPath(t *testing.T) {
	for _, mode := range []JoinMode{JoinAuto, JoinParent} {
		t.Run(mode.String(), func(t *testing.T) {
			tr := systemTracker(t, func(o *Options) { o.JoinMode = mode })
			var states []lib.RunState
			usage, err := tr.Run(context.Background(),
				lib.TrackingRequest{Path: "/nonexistent/memtrack-benchmark"},
				WithStateHook(func(ev lib.RunEvent) { states = append(states, ev.State) }),
			)
			require.ErrorIs(t, err, status.ErrLaunchFailed)
			require.NotNil(t, usage)
			require.Equal(t, lib.OutcomeLaunchFailed, usage.Result.Kind)
			require.Contains(t, usage.Result.Reason, "no such file")
			require.Zero(t, usage.Peak)
			require.Equal(t, []lib.RunState{lib.RunStateGroupCreated, lib.RunStateGroupDestroyed, lib.RunStateIdle}, states)

			leftover, err := filepath.Glob(filepath.Join("/sys/fs/cgroup", lib.GroupNamePrefix+"*"))
			require.NoError(t, err)
			require.NotContains(t, leftover, filepath.Join("/sys/fs/cgroup", usage.Group))
			require.NoDirExists(t, filepath.Join("/sys/fs/cgroup", usage.Group))
		})
	}
}

func TestRunExited(t *testing.T) {
	tr := systemTracker(t, nil)
	for _, code := range []int{0, 3, DefaultSentinel} {
		usage, err := tr.Run(context.Background(), helperRequest("exit", strconv.Itoa(code)))
		require.NoError(t, err)
		require.Equal(t, lib.Exited(code), usage.Result)
		require.NoDirExists(t, filepath.Join("/sys/fs/cgroup", usage.Group))
	}
}

func TestRunSignaled(t *testing.T) {
	tr := systemTracker(t, nil)
	usage, err := tr.Run(context.Background(), helperRequest("signal", strconv.Itoa(int(syscall.SIGKILL))))
	require.NoError(t, err)
	require.Equal(t, lib.Signaled(syscall.SIGKILL), usage.Result)
	require.GreaterOrEqual(t, usage.Peak, uint64(signalAllocMiB<<20))
	require.Equal(t, Measure(usage.RawPeak, usage.Baseline), usage.Peak)
}

func TestRunMeasuresAllocation(t *testing.T) {
	const (
		allocMiB  = 64
		tolerance = 32 << 20
	)
	for _, mode := range []JoinMode{JoinCgroupFD, JoinParent} {
		t.Run(mode.String(), func(t *testing.T) {
			tr := systemTracker(t, func(o *Options) { o.JoinMode = mode })
			var stdout, trace bytes.Buffer
			var states []lib.RunState
			usage, err := tr.Run(context.Background(), helperRequest("alloc", strconv.Itoa(allocMiB)),
				WithStdio(nil, &stdout, nil),
				WithTrace(&trace),
				WithStateHook(func(ev lib.RunEvent) { states = append(states, ev.State) }),
			)
			if mode == JoinCgroupFD && status.IsLaunchFailedError(err) {
				t.Skipf("clone into cgroup unavailable: %s", err)
			}
			require.NoError(t, err)
			require.True(t, usage.Result.Success(), usage.Result.String())
			require.Equal(t, strconv.Itoa(allocMiB<<20)+"\n", stdout.String())
			require.GreaterOrEqual(t, usage.Peak, uint64(allocMiB<<20))
			require.Less(t, usage.Peak, uint64(allocMiB<<20+tolerance))
			require.Equal(t, Measure(usage.RawPeak, usage.Baseline), usage.Peak)
			require.Equal(t, []lib.RunState{
				lib.RunStateGroupCreated,
				lib.RunStateChildLaunched,
				lib.RunStateChildTerminated,
				lib.RunStateMemoryRead,
				lib.RunStateGroupDestroyed,
				lib.RunStateIdle,
			}, states)

			lines := strings.Split(strings.TrimSpace(trace.String()), "\n")
			require.True(t, strings.HasPrefix(lines[0], "0 "), lines[0])
			require.Equal(t, fmt.Sprintf("PEAK %d", usage.Peak), lines[len(lines)-1])
		})
	}
}

func TestRunMemoryMax(t *testing.T) {
	tr := systemTracker(t, nil)
	usage, err := tr.Run(context.Background(), helperRequest("alloc", "256"), WithMemoryMax(32<<20))
	require.NoError(t, err)
	if usage.Result.Success() {
		t.Skip("allocation was absorbed by swap")
	}
	require.Equal(t, lib.Signaled(syscall.SIGKILL), usage.Result)
	require.GreaterOrEqual(t, usage.OOMKills, uint64(1))
}

func TestRunDistinctGroups(t *testing.T) {
	tr := systemTracker(t, nil)
	a, err := tr.Run(context.Background(), helperRequest("exit", "0"))
	require.NoError(t, err)
	b, err := tr.Run(context.Background(), helperRequest("exit", "0"))
	require.NoError(t, err)
	require.NotEqual(t, a.Group, b.Group)
}

func TestRunShellSentinel(t *testing.T) {
	tr := systemTracker(t, func(o *Options) { o.Shell = true })
	usage, err := tr.Run(context.Background(), lib.TrackingRequest{Path: "/nonexistent/benchmark"},
		WithStdio(nil, nil, nil))
	require.ErrorIs(t, err, status.ErrLaunchFailed)
	require.Equal(t, lib.OutcomeLaunchFailed, usage.Result.Kind)
}
