package runner

import (
	"errors"
	"syscall"
	"time"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
)

// Stop ends a run. A queued run is removed from the queue; a running one has
// its process group killed, which the tracker reports as Signaled(SIGKILL).
// Stop returns the final status, or the current one if the run did not finish
// within the stop wait.
func (runner *Runner) Stop(id string) (*lib.JobStatus, error) {
	j, err := runner.getJob(id)
	if err != nil {
		return nil, err
	}

	j.mu.Lock()
	if j.state.Done() {
		j.mu.Unlock()
		st := j.lockAndGetStatus()
		return &st, nil
	}
	j.stopRequested = true
	pid := j.pid
	j.mu.Unlock()

	logger.Info().Str("run", id).Int("pid", pid).Msg("stopping run")
	// Only aborts a wait for the guard; a launched child ignores it.
	j.cancel()
	if pid > 0 {
		killGroup(pid)
	}

	timer := time.NewTimer(runner.stopWait)
	defer timer.Stop()
	select {
	case <-j.done:
	case <-timer.C:
		logger.Warn().Str("run", id).Msg("run did not finish within the stop wait")
	}
	st := j.lockAndGetStatus()
	return &st, nil
}

// killGroup sends SIGKILL to the process group led by pid.
func killGroup(pid int) {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		logger.Warn().Err(err).Int("pid", pid).Msg("failed to kill process group")
	}
}
