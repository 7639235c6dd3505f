// Package tracker runs a benchmark binary inside its own resource group and
// reports the group's peak memory together with how the process terminated.
package tracker

import (
	"io"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/cgroup"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/log"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
)

var logger = log.Named("tracker")

// JoinMode selects how the child becomes a member of its group before its
// program image is replaced.
type JoinMode int

const (
	// JoinAuto clones into the group and falls back to JoinParent on kernels
	// without clone3 or on v1 hierarchies.
	JoinAuto JoinMode = iota
	// JoinCgroupFD creates the child directly inside the group
	// (CLONE_INTO_CGROUP). Requires cgroup v2 and Linux 5.7.
	JoinCgroupFD
	// JoinParent moves the harness itself into the group before forking, so
	// the child inherits membership, and moves it back after the fork.
	JoinParent
)

func (m JoinMode) String() string {
	switch m {
	case JoinCgroupFD:
		return "cgroupfd"
	case JoinParent:
		return "parent"
	default:
		return "auto"
	}
}

func ParseJoinMode(s string) (JoinMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return JoinAuto, nil
	case "cgroupfd", "clone":
		return JoinCgroupFD, nil
	case "parent", "inherit":
		return JoinParent, nil
	}
	return JoinAuto, status.InvalidArgumentErrorf("unknown join mode %q", s)
}

// Options configure a Tracker.
type Options struct {
	// Roots are the candidate cgroup roots, tried in order.
	Roots    []cgroup.Root
	JoinMode JoinMode
	// Sentinel is the exit status reserved for "could not exec". Zero selects
	// DefaultSentinel in shell mode and NoSentinel otherwise, since a direct
	// launch reports exec failures from Start.
	Sentinel int
	// RequireRoot fails runs fast when the harness is not running as root.
	RequireRoot bool
	// Shell runs the request through /bin/sh -c with the path and arguments
	// joined by spaces.
	Shell bool
	// MemoryMax is the default memory ceiling of each group; zero means none.
	MemoryMax uint64
	// Credential, if set, is applied to the child before exec.
	Credential *syscall.Credential
	// Env is appended to the harness environment for the child.
	Env []string

	SampleInterval time.Duration
	PollInterval   time.Duration

	// Guard serializes runs; nil means ProcessGuard().
	Guard *Guard
	Clock clockwork.Clock
}

func DefaultOptions() Options {
	return Options{
		Roots:          cgroup.Roots(cgroup.DefaultRoots...),
		JoinMode:       JoinAuto,
		RequireRoot:    true,
		SampleInterval: DefaultSampleInterval,
		PollInterval:   DefaultPollInterval,
	}
}

// Tracker performs tracked runs.
type Tracker struct {
	opts   Options
	groups *cgroup.Allocator
	guard  *Guard
	clock  clockwork.Clock
}

func New(opts Options) *Tracker {
	if opts.Sentinel == 0 {
		opts.Sentinel = NoSentinel
		if opts.Shell {
			opts.Sentinel = DefaultSentinel
		}
	}
	if len(opts.Roots) == 0 {
		opts.Roots = cgroup.Roots(cgroup.DefaultRoots...)
	}
	guard := opts.Guard
	if guard == nil {
		guard = ProcessGuard()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		opts:   opts,
		groups: cgroup.NewAllocator(opts.Roots),
		guard:  guard,
		clock:  clock,
	}
}

func (t *Tracker) Options() Options {
	return t.opts
}

func (t *Tracker) Guard() *Guard {
	return t.guard
}

// RunOption customizes a single Run.
type RunOption func(*RunConfig)

// RunConfig is the resolved form of a Run's options.
type RunConfig struct {
	RunID     string
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
	Trace     io.Writer
	MemoryMax uint64
	OnState   func(lib.RunEvent)
	OnLaunch  func(pid int)
}

// ApplyRunOptions resolves opts over an empty RunConfig.
func ApplyRunOptions(opts ...RunOption) RunConfig {
	var c RunConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithRunID tags state events with id.
func WithRunID(id string) RunOption {
	return func(c *RunConfig) { c.RunID = id }
}

// WithStdio connects the child's standard streams. Nil streams are attached
// to the null device.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) RunOption {
	return func(c *RunConfig) {
		c.Stdin, c.Stdout, c.Stderr = stdin, stdout, stderr
	}
}

// WithTrace writes a memory trace of the run to w. The trace ends with a
// "PEAK <bytes>" line, or with "ERROR <reason>" if the peak counter could not
// be read after the child terminated.
func WithTrace(w io.Writer) RunOption {
	return func(c *RunConfig) { c.Trace = w }
}

// WithMemoryMax overrides the group's memory ceiling for this run.
func WithMemoryMax(bytes uint64) RunOption {
	return func(c *RunConfig) { c.MemoryMax = bytes }
}

// WithStateHook is called on every state transition of the run.
func WithStateHook(fn func(lib.RunEvent)) RunOption {
	return func(c *RunConfig) { c.OnState = fn }
}

// WithLaunchHook receives the child's pid once it has been started. Callers
// that need a timeout signal this pid (or its process group) themselves.
func WithLaunchHook(fn func(pid int)) RunOption {
	return func(c *RunConfig) { c.OnLaunch = fn }
}

func (t *Tracker) resolve(opts []RunOption) *RunConfig {
	cfg := &RunConfig{MemoryMax: t.opts.MemoryMax}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
