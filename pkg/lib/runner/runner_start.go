package runner

import (
	"context"
	"time"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/eventlog"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/metrics"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/tracker"
)

// Start queues a tracked run and returns its initial status. memoryMax, if
// non-zero, overrides the tracker's memory ceiling for this run.
func (runner *Runner) Start(req lib.TrackingRequest, memoryMax uint64) (*lib.JobStatus, error) {
	if req.Path == "" {
		return nil, status.InvalidArgumentErrorf("executable path is required")
	}
	stdout, err := newTail(runner.outputTail)
	if err != nil {
		return nil, status.InvalidArgumentErrorf("output tail: %s", err)
	}
	stderr, err := newTail(runner.outputTail)
	if err != nil {
		return nil, status.InvalidArgumentErrorf("output tail: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		id: lib.NewID(),
		request: lib.TrackingRequest{
			Path: req.Path,
			Args: append([]string(nil), req.Args...),
		},
		memoryMax: memoryMax,
		events:    eventlog.New[lib.RunEvent](),
		stdout:    stdout,
		stderr:    stderr,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     lib.JobStateQueued,
		queued:    time.Now(),
	}

	runner.mu.Lock()
	runner.jobs[j.id] = j
	runner.mu.Unlock()

	logger.Info().Str("run", j.id).Str("path", req.Path).Msg("run queued")
	go j.run(ctx, runner.tracker)

	st := j.lockAndGetStatus()
	return &st, nil
}

func (j *job) run(ctx context.Context, t Tracker) {
	defer close(j.done)
	defer j.cancel()

	opts := []tracker.RunOption{
		tracker.WithRunID(j.id),
		tracker.WithStdio(nil, j.stdout, j.stderr),
		tracker.WithStateHook(j.onState),
		tracker.WithLaunchHook(j.onLaunch),
	}
	if j.memoryMax > 0 {
		opts = append(opts, tracker.WithMemoryMax(j.memoryMax))
	}
	usage, err := t.Run(ctx, j.request, opts...)

	j.mu.Lock()
	now := time.Now()
	j.ended = &now
	j.usage = usage
	j.err = err
	switch {
	case usage != nil:
		j.state = lib.JobStateFinished
	case j.started == nil && ctx.Err() != nil:
		j.state = lib.JobStateCanceled
	default:
		j.state = lib.JobStateFailed
	}
	state := j.state
	j.mu.Unlock()
	j.events.Close()

	if state != lib.JobStateCanceled {
		metrics.ObserveRun(usage)
	}
	metrics.JobsTotal.WithLabelValues(state.String()).Inc()

	ev := logger.Info().Str("run", j.id).Stringer("state", state)
	if usage != nil {
		ev = ev.Stringer("outcome", usage.Result).Uint64("peak", usage.Peak)
	}
	ev.Err(err).Msg("run ended")
}

func (j *job) onState(ev lib.RunEvent) {
	if ev.State == lib.RunStateGroupCreated {
		j.mu.Lock()
		now := time.Now()
		j.started = &now
		j.state = lib.JobStateRunning
		j.mu.Unlock()
	}
	j.events.Append(ev)
}

func (j *job) onLaunch(pid int) {
	j.mu.Lock()
	j.pid = pid
	stop := j.stopRequested
	j.mu.Unlock()
	if stop && pid > 0 {
		// Stop arrived between leaving the queue and the launch.
		killGroup(pid)
	}
}
