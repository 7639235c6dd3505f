package tracker

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
)

// Guard serializes tracked runs. Group creation and root-level accounting are
// host-wide state, so at most one run may touch the cgroup filesystem at a
// time. The guard only covers callers sharing it inside one process; a second
// harness process is not excluded.
//
// It is a plain mutual exclusion, not a fair queue: a caller may wait for the
// full duration of an unrelated benchmark.
type Guard struct {
	sem     *semaphore.Weighted
	waiting atomic.Int64
}

func NewGuard() *Guard {
	return &Guard{sem: semaphore.NewWeighted(1)}
}

var processGuard = NewGuard()

// ProcessGuard returns the guard shared by every Tracker that is not given
// one explicitly.
func ProcessGuard() *Guard {
	return processGuard
}

// Acquire blocks until the guard is free or ctx is done. The returned release
// function may be called more than once.
func (g *Guard) Acquire(ctx context.Context) (release func(), err error) {
	g.waiting.Add(1)
	err = g.sem.Acquire(ctx, 1)
	g.waiting.Add(-1)
	if err != nil {
		return nil, status.CanceledErrorf("waiting for another tracked run: %s", err)
	}
	var once sync.Once
	return func() {
		once.Do(func() { g.sem.Release(1) })
	}, nil
}

// TryAcquire takes the guard only if it is free.
func (g *Guard) TryAcquire() (release func(), ok bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	var once sync.Once
	return func() {
		once.Do(func() { g.sem.Release(1) })
	}, true
}

// Do runs fn while holding the guard.
func (g *Guard) Do(ctx context.Context, fn func() error) error {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Waiting reports how many callers are blocked in Acquire.
func (g *Guard) Waiting() int {
	return int(g.waiting.Load())
}
