package runner

import (
	"context"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
)

// Watch streams the state events of a run from the beginning. The channel is
// closed once the run is over or ctx is done.
func (runner *Runner) Watch(ctx context.Context, id string) (<-chan lib.RunEvent, error) {
	j, err := runner.getJob(id)
	if err != nil {
		return nil, err
	}
	return j.events.Subscribe(ctx, 8), nil
}

// Wait blocks until the run is over or ctx is done and returns its status.
func (runner *Runner) Wait(ctx context.Context, id string) (*lib.JobStatus, error) {
	j, err := runner.getJob(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	st := j.lockAndGetStatus()
	return &st, nil
}
