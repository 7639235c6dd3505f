package main

import (
	apiv1 "github.com/zksecurity/zkvm-benchmarks/api/v1"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
)

func toAPIRequest(r lib.TrackingRequest) *apiv1.TrackingRequest {
	return &apiv1.TrackingRequest{Path: r.Path, Args: r.Args}
}

func toAPIRunStatus(st *lib.JobStatus) *apiv1.RunStatus {
	rs := &apiv1.RunStatus{
		State:     st.State.String(),
		Pid:       int32(st.Pid),
		QueueTime: st.Queued,
		StartTime: st.Started,
		EndTime:   st.Ended,
		Error:     st.Error,
		Stdout:    st.Stdout,
		Stderr:    st.Stderr,
	}
	if st.Usage != nil {
		rs.Usage = toAPIMemoryUsage(st.Usage)
	}
	return rs
}

func toAPIMemoryUsage(u *lib.MemoryUsage) *apiv1.MemoryUsage {
	return &apiv1.MemoryUsage{
		PeakBytes:     u.Peak,
		RawPeakBytes:  u.RawPeak,
		BaselineBytes: u.Baseline,
		MaxRSSBytes:   u.MaxRSS,
		OOMKills:      u.OOMKills,
		Group:         u.Group,
		DurationMs:    u.Duration.Milliseconds(),
		Outcome:       toAPIOutcome(u.Result),
	}
}

func toAPIOutcome(o lib.TerminationOutcome) *apiv1.Outcome {
	out := &apiv1.Outcome{Kind: o.Kind.String(), Reason: o.Reason}
	switch o.Kind {
	case lib.OutcomeExited:
		out.ExitCode = int32(o.ExitCode)
	case lib.OutcomeSignaled:
		out.Signal = int32(o.Signal)
	}
	return out
}

func toAPIRunEvent(ev lib.RunEvent) *apiv1.RunEvent {
	return &apiv1.RunEvent{RunID: ev.RunID, State: ev.State.String(), Time: ev.Time, Error: ev.Err}
}
