package lib

import (
	"encoding/json"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "exited(0)", Exited(0).String())
	require.Equal(t, "signaled(killed)", Signaled(syscall.SIGKILL).String())
	require.Equal(t, "launch failed: no such file", LaunchFailed("no such file").String())
	require.Equal(t, "launch failed", LaunchFailed("").String())
	require.True(t, Exited(0).Success())
	require.False(t, Exited(1).Success())
	require.False(t, Signaled(syscall.SIGTERM).Success())
}

func TestStatesEncodeAsNames(t *testing.T) {
	b, err := json.Marshal(RunEvent{RunID: "r", State: RunStateMemoryRead})
	require.NoError(t, err)
	require.Contains(t, string(b), `"state":"memory_read"`)

	var ev RunEvent
	require.NoError(t, json.Unmarshal(b, &ev))
	require.Equal(t, RunStateMemoryRead, ev.State)

	var js JobState
	require.NoError(t, js.UnmarshalText([]byte("canceled")))
	require.Equal(t, JobStateCanceled, js)
	require.True(t, js.Done())
	require.False(t, JobStateRunning.Done())
	require.Error(t, js.UnmarshalText([]byte("paused")))
	require.Equal(t, "unknown", RunState(42).String())
}

func TestNewGroupName(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		name := NewGroupName()
		require.True(t, strings.HasPrefix(name, GroupNamePrefix))
		require.False(t, seen[name])
		seen[name] = true
	}
}
