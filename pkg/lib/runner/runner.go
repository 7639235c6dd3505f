// Package runner keeps a registry of tracked runs submitted by the daemon.
// Runs are queued behind the tracker's concurrency guard and execute one at a
// time; their state events, output tails and results stay queryable by id.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/eventlog"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/log"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/tracker"
)

var logger = log.Named("runner")

const (
	DefaultOutputTail = 64 << 10
	defaultStopWait   = time.Second
)

// Tracker performs a single tracked run.
type Tracker interface {
	Run(ctx context.Context, req lib.TrackingRequest, opts ...tracker.RunOption) (*lib.MemoryUsage, error)
}

// Runner manages runs started through it.
type Runner struct {
	tracker    Tracker
	outputTail int64
	stopWait   time.Duration

	mu   sync.RWMutex
	jobs map[string]*job
}

type Option func(*Runner)

// WithOutputTail bounds how many trailing bytes of stdout and stderr are kept
// per run.
func WithOutputTail(bytes int64) Option {
	return func(r *Runner) {
		if bytes > 0 {
			r.outputTail = bytes
		}
	}
}

// WithStopWait bounds how long Stop waits for a signalled run to finish.
func WithStopWait(d time.Duration) Option {
	return func(r *Runner) { r.stopWait = d }
}

func NewRunner(t Tracker, opts ...Option) *Runner {
	r := &Runner{
		tracker:    t,
		outputTail: DefaultOutputTail,
		stopWait:   defaultStopWait,
		jobs:       make(map[string]*job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type job struct {
	id        string
	request   lib.TrackingRequest
	memoryMax uint64
	events    *eventlog.Log[lib.RunEvent]
	stdout    *tail
	stderr    *tail
	cancel    context.CancelFunc
	done      chan struct{}

	mu            sync.RWMutex
	state         lib.JobState
	pid           int
	queued        time.Time
	started       *time.Time
	ended         *time.Time
	usage         *lib.MemoryUsage
	err           error
	stopRequested bool
}
