package lib

import (
	"fmt"
	"syscall"
	"time"
)

// TrackingRequest names the benchmark binary to run and its argument vector.
// Args does not include argv[0].
type TrackingRequest struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
}

// OutcomeKind tags a TerminationOutcome.
type OutcomeKind int

const (
	OutcomeUnspecified OutcomeKind = iota
	OutcomeExited
	OutcomeSignaled
	OutcomeLaunchFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeExited:
		return "exited"
	case OutcomeSignaled:
		return "signaled"
	case OutcomeLaunchFailed:
		return "launch_failed"
	default:
		return "unspecified"
	}
}

// TerminationOutcome records how a tracked child terminated. Only the fields
// matching Kind are meaningful.
type TerminationOutcome struct {
	Kind     OutcomeKind    `json:"kind"`
	ExitCode int            `json:"exit_code,omitempty"`
	Signal   syscall.Signal `json:"signal,omitempty"`
	// Reason describes why the launch failed.
	Reason string `json:"reason,omitempty"`
}

func Exited(code int) TerminationOutcome {
	return TerminationOutcome{Kind: OutcomeExited, ExitCode: code}
}

func Signaled(sig syscall.Signal) TerminationOutcome {
	return TerminationOutcome{Kind: OutcomeSignaled, Signal: sig}
}

func LaunchFailed(reason string) TerminationOutcome {
	return TerminationOutcome{Kind: OutcomeLaunchFailed, Reason: reason}
}

func (o TerminationOutcome) String() string {
	switch o.Kind {
	case OutcomeExited:
		return fmt.Sprintf("exited(%d)", o.ExitCode)
	case OutcomeSignaled:
		return fmt.Sprintf("signaled(%s)", o.Signal)
	case OutcomeLaunchFailed:
		if o.Reason == "" {
			return "launch failed"
		}
		return "launch failed: " + o.Reason
	default:
		return "unspecified"
	}
}

// Success reports a clean exit with status 0.
func (o TerminationOutcome) Success() bool {
	return o.Kind == OutcomeExited && o.ExitCode == 0
}

// Pressure mirrors one line group of a PSI file (memory.pressure).
type Pressure struct {
	Some *PressureMetrics `json:"some,omitempty"`
	Full *PressureMetrics `json:"full,omitempty"`
}

type PressureMetrics struct {
	Avg10  float64 `json:"avg10"`
	Avg60  float64 `json:"avg60"`
	Avg300 float64 `json:"avg300"`
	// Total stall time in microseconds.
	Total int64 `json:"total"`
}

// MemoryUsage is the result of one tracked run.
//
// Peak is the group's high-water mark minus Baseline, clamped at zero. When
// Result is a launch failure Peak is zero and must not be treated as a
// measurement.
type MemoryUsage struct {
	Peak   uint64             `json:"peak_bytes"`
	Result TerminationOutcome `json:"result"`

	// RawPeak is the unadjusted peak counter read after the child terminated.
	RawPeak uint64 `json:"raw_peak_bytes"`
	// Baseline is the peak counter read right before the child was created.
	Baseline uint64 `json:"baseline_bytes"`
	// MaxRSS is the child's own maximum resident set size from rusage.
	MaxRSS   uint64        `json:"max_rss_bytes"`
	OOMKills uint64        `json:"oom_kills"`
	Group    string        `json:"group"`
	Duration time.Duration `json:"duration_ns"`
	Pressure *Pressure     `json:"pressure,omitempty"`
}

// RunState is the per-run lifecycle of a tracked execution.
type RunState int

const (
	RunStateIdle RunState = iota
	RunStateGroupCreated
	RunStateChildLaunched
	RunStateChildTerminated
	RunStateMemoryRead
	RunStateGroupDestroyed
)

var runStateNames = []string{
	"idle",
	"group_created",
	"child_launched",
	"child_terminated",
	"memory_read",
	"group_destroyed",
}

func (s RunState) String() string {
	if s < 0 || int(s) >= len(runStateNames) {
		return "unknown"
	}
	return runStateNames[s]
}

func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RunState) UnmarshalText(b []byte) error {
	for i, name := range runStateNames {
		if name == string(b) {
			*s = RunState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", b)
}

// RunEvent is emitted on every RunState transition.
type RunEvent struct {
	RunID string    `json:"run_id"`
	State RunState  `json:"state"`
	Time  time.Time `json:"time"`
	Err   string    `json:"error,omitempty"`
}

// JobState is the lifecycle of a run submitted to the daemon.
type JobState int

const (
	JobStateUnspecified JobState = iota
	// JobStateQueued waits for the concurrency guard.
	JobStateQueued
	JobStateRunning
	// JobStateFinished produced a MemoryUsage; the outcome may still be a
	// launch failure or a signal.
	JobStateFinished
	// JobStateFailed ended with an error and no usable measurement.
	JobStateFailed
	// JobStateCanceled was stopped before it left the queue.
	JobStateCanceled
)

var jobStateNames = []string{"unspecified", "queued", "running", "finished", "failed", "canceled"}

func (s JobState) String() string {
	if s < 0 || int(s) >= len(jobStateNames) {
		return "unknown"
	}
	return jobStateNames[s]
}

func (s JobState) Done() bool {
	return s == JobStateFinished || s == JobStateFailed || s == JobStateCanceled
}

func (s JobState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *JobState) UnmarshalText(b []byte) error {
	for i, name := range jobStateNames {
		if name == string(b) {
			*s = JobState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown job state %q", b)
}

// JobStatus is a snapshot of a daemon run.
type JobStatus struct {
	ID      string          `json:"id"`
	Request TrackingRequest `json:"request"`
	State   JobState        `json:"state"`
	Pid     int             `json:"pid,omitempty"`
	Queued  time.Time       `json:"queued"`
	Started *time.Time      `json:"started,omitempty"`
	Ended   *time.Time      `json:"ended,omitempty"`
	Usage   *MemoryUsage    `json:"usage,omitempty"`
	Error   string          `json:"error,omitempty"`
	Stdout  string          `json:"stdout,omitempty"`
	Stderr  string          `json:"stderr,omitempty"`
}
