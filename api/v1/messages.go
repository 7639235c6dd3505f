// Package v1 is the wire API of the memory tracking daemon.
package v1

import (
	"time"
)

type TrackingRequest struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
}

type StartRequest struct {
	Request *TrackingRequest `json:"request"`
	// MemoryMaxBytes overrides the daemon's memory ceiling when non-zero.
	MemoryMaxBytes uint64 `json:"memory_max_bytes,omitempty"`
}

type StartResponse struct {
	RunID  string     `json:"run_id"`
	Status *RunStatus `json:"status"`
}

type StatusRequest struct {
	RunID string `json:"run_id"`
}

type StatusResponse struct {
	Request *TrackingRequest `json:"request"`
	Status  *RunStatus       `json:"status"`
}

type StopRequest struct {
	RunID string `json:"run_id"`
}

type StopResponse struct {
	Request *TrackingRequest `json:"request"`
	Status  *RunStatus       `json:"status"`
}

type WatchRequest struct {
	RunID string `json:"run_id"`
}

// RunEvent is one state transition of a tracked run.
type RunEvent struct {
	RunID string    `json:"run_id"`
	State string    `json:"state"`
	Time  time.Time `json:"time"`
	Error string    `json:"error,omitempty"`
}

type RunStatus struct {
	// State is one of "queued", "running", "finished", "failed", "canceled".
	State     string       `json:"state"`
	Pid       int32        `json:"pid,omitempty"`
	QueueTime time.Time    `json:"queue_time"`
	StartTime *time.Time   `json:"start_time,omitempty"`
	EndTime   *time.Time   `json:"end_time,omitempty"`
	Usage     *MemoryUsage `json:"usage,omitempty"`
	Error     string       `json:"error,omitempty"`
	Stdout    string       `json:"stdout,omitempty"`
	Stderr    string       `json:"stderr,omitempty"`
}

type MemoryUsage struct {
	PeakBytes     uint64   `json:"peak_bytes"`
	RawPeakBytes  uint64   `json:"raw_peak_bytes"`
	BaselineBytes uint64   `json:"baseline_bytes"`
	MaxRSSBytes   uint64   `json:"max_rss_bytes,omitempty"`
	OOMKills      uint64   `json:"oom_kills,omitempty"`
	Group         string   `json:"group"`
	DurationMs    int64    `json:"duration_ms"`
	Outcome       *Outcome `json:"outcome"`
}

type Outcome struct {
	// Kind is one of "exited", "signaled", "launch_failed".
	Kind     string `json:"kind"`
	ExitCode int32  `json:"exit_code,omitempty"`
	Signal   int32  `json:"signal,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
