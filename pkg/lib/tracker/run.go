package tracker

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
)

// Run executes req inside a fresh resource group and returns its peak memory
// and termination outcome.
//
// ctx only bounds the wait for the concurrency guard. Once the child has been
// started Run blocks until it terminates; callers that need a time limit
// signal the pid handed to WithLaunchHook and treat the resulting Signaled
// outcome as a timeout.
//
// Peak is the group's peak counter after termination minus a baseline read
// right before the child is created. With JoinParent the harness is briefly a
// member of the group, so the figure is only exact if the harness does not
// grow between the baseline and the fork.
//
// If the child could not be started, Run returns a MemoryUsage whose Result is
// a launch failure together with an error matching status.ErrLaunchFailed. A
// peak counter that cannot be parsed yields the usage measured so far and an
// error matching status.ErrCorruptedCounter. The group is removed on every
// path.
func (t *Tracker) Run(ctx context.Context, req lib.TrackingRequest, opts ...RunOption) (*lib.MemoryUsage, error) {
	if req.Path == "" {
		return nil, status.InvalidArgumentErrorf("executable path is required")
	}
	if t.opts.RequireRoot && os.Geteuid() != 0 {
		return nil, status.PermissionDeniedErrorf("memory tracking requires root privileges to manage cgroups")
	}
	cfg := t.resolve(opts)

	release, err := t.guard.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	r := &run{t: t, cfg: cfg, req: req}
	return r.execute()
}

// run walks one execution through
// Idle -> GroupCreated -> ChildLaunched -> ChildTerminated -> MemoryRead -> GroupDestroyed -> Idle.
type run struct {
	t     *Tracker
	cfg   *RunConfig
	req   lib.TrackingRequest
	state lib.RunState
}

func (r *run) transition(state lib.RunState, err error) {
	r.state = state
	ev := lib.RunEvent{RunID: r.cfg.RunID, State: state, Time: r.t.clock.Now()}
	if err != nil {
		ev.Err = err.Error()
	}
	logger.Debug().Str("run", r.cfg.RunID).Stringer("state", state).Msg("tracked run transition")
	if r.cfg.OnState != nil {
		r.cfg.OnState(ev)
	}
}

func (r *run) execute() (usage *lib.MemoryUsage, err error) {
	group, err := r.t.groups.Create()
	if err != nil {
		return nil, err
	}
	r.transition(lib.RunStateGroupCreated, nil)
	defer func() {
		if derr := group.Destroy(); derr != nil {
			// The measurement is already taken; a leftover directory does not
			// change it.
			logger.Warn().Err(derr).Str("group", group.Path).Msg("resource group not removed")
		}
		r.transition(lib.RunStateGroupDestroyed, err)
		r.transition(lib.RunStateIdle, nil)
	}()

	if err := group.SetMemoryMax(r.cfg.MemoryMax); err != nil {
		return nil, err
	}

	start := r.t.clock.Now()
	c, err := r.t.launch(r.req, group, r.cfg)
	if err != nil {
		if status.IsLaunchFailedError(err) {
			logger.Info().Str("path", r.req.Path).Err(err).Msg("benchmark could not be launched")
			return &lib.MemoryUsage{Result: lib.LaunchFailed(status.Message(err)), Group: group.Name}, err
		}
		return nil, err
	}
	pid := c.cmd.Process.Pid
	r.transition(lib.RunStateChildLaunched, nil)
	logger.Debug().Int("pid", pid).Str("group", group.Name).Msg("benchmark started")
	if r.cfg.OnLaunch != nil {
		r.cfg.OnLaunch(pid)
	}

	var trace *sampler
	if r.cfg.Trace != nil {
		trace = newSampler(r.t.clock, group.ReadCurrent, r.cfg.Trace, r.t.opts.SampleInterval, r.t.opts.PollInterval)
		initial, _ := group.ReadPeak()
		if err := trace.begin(initial); err != nil {
			logger.Warn().Err(err).Msg("cannot write memory trace")
		}
		go trace.run()
	}

	ws, peakRSS, waitErr := c.wait()
	if trace != nil {
		trace.stop()
	}
	r.transition(lib.RunStateChildTerminated, waitErr)
	if waitErr != nil {
		return nil, waitErr
	}

	outcome, err := Classify(ws, r.t.opts.Sentinel)
	if err != nil {
		return nil, err
	}
	usage = &lib.MemoryUsage{
		Result:   outcome,
		Baseline: c.baseline,
		Group:    group.Name,
		Duration: r.t.clock.Since(start),
		MaxRSS:   peakRSS,
	}
	logger.Debug().Int("pid", pid).Stringer("outcome", outcome).Msg("benchmark terminated")
	if outcome.Kind == lib.OutcomeLaunchFailed {
		return usage, status.LaunchFailedErrorf("%s: %s", r.req.Path, outcome.Reason)
	}

	raw, err := group.ReadPeak()
	if err != nil {
		if trace != nil {
			if terr := trace.abort(err); terr != nil {
				logger.Warn().Err(terr).Msg("cannot write memory trace")
			}
		}
		return usage, err
	}
	usage.RawPeak = raw
	usage.Peak = Measure(raw, c.baseline)
	if n, err := group.ReadOOMKills(); err == nil {
		usage.OOMKills = n
	}
	if p, err := group.ReadPressure(); err == nil {
		usage.Pressure = p
	}
	r.transition(lib.RunStateMemoryRead, nil)

	if trace != nil {
		if err := trace.finish(usage.Peak); err != nil {
			logger.Warn().Err(err).Msg("cannot write memory trace")
		}
	}
	return usage, nil
}

// child is a started benchmark process.
type child struct {
	cmd      *exec.Cmd
	baseline uint64
}

// wait reaps the child and returns its raw wait status and the peak resident
// set size of its largest descendant.
func (c *child) wait() (syscall.WaitStatus, uint64, error) {
	err := c.cmd.Wait()
	ps := c.cmd.ProcessState
	if ps == nil {
		return 0, 0, status.InternalErrorf("wait for pid %d: %s", c.cmd.Process.Pid, err)
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// The process is gone; only copying its output failed.
		logger.Warn().Err(err).Int("pid", c.cmd.Process.Pid).Msg("benchmark output was not fully copied")
	}
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok {
		return 0, 0, status.InternalErrorf("unsupported wait status %T", ps.Sys())
	}
	return ws, maxRSS(ps), nil
}

// startError marks an error returned by exec.Cmd.Start.
type startError struct {
	err error
}

func (e *startError) Error() string { return e.err.Error() }
func (e *startError) Unwrap() error { return e.err }
