package runner

import (
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
)

// Status returns the current status of a run by identifier.
func (runner *Runner) Status(id string) (*lib.JobStatus, error) {
	j, err := runner.getJob(id)
	if err != nil {
		return nil, err
	}
	st := j.lockAndGetStatus()
	return &st, nil
}

func (runner *Runner) getJob(id string) (*job, error) {
	runner.mu.RLock()
	j := runner.jobs[id]
	runner.mu.RUnlock()
	if j == nil {
		return nil, status.NotFoundErrorf("run %q not found", id)
	}
	return j, nil
}

func (j *job) lockAndGetStatus() lib.JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()

	st := lib.JobStatus{
		ID:      j.id,
		Request: j.request,
		State:   j.state,
		Pid:     j.pid,
		Queued:  j.queued,
		Stdout:  j.stdout.String(),
		Stderr:  j.stderr.String(),
	}
	if j.started != nil {
		t := *j.started
		st.Started = &t
	}
	if j.ended != nil {
		t := *j.ended
		st.Ended = &t
	}
	if j.usage != nil {
		u := *j.usage
		st.Usage = &u
	}
	if j.err != nil {
		st.Error = j.err.Error()
	}
	return st
}
