package tracker

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultSampleInterval = 50 * time.Millisecond
	DefaultPollInterval   = time.Millisecond
)

// sampler writes a memory trace while the child runs. Every poll it reads the
// current usage; once a sample window has elapsed it emits
// "<elapsed microseconds> <max bytes seen in the window>". A trace ends with
// "PEAK <bytes>", or with "ERROR <reason>" when the peak could not be read.
type sampler struct {
	clock  clockwork.Clock
	read   func() (uint64, error)
	w      io.Writer
	window time.Duration
	poll   time.Duration

	start time.Time
	next  time.Duration
	max   uint64

	done    chan struct{}
	stopped chan struct{}
}

func newSampler(clock clockwork.Clock, read func() (uint64, error), w io.Writer, window, poll time.Duration) *sampler {
	if window <= 0 {
		window = DefaultSampleInterval
	}
	if poll <= 0 || poll > window {
		poll = DefaultPollInterval
	}
	return &sampler{
		clock:   clock,
		read:    read,
		w:       w,
		window:  window,
		poll:    poll,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// begin records time zero with the given initial reading.
func (s *sampler) begin(initial uint64) error {
	s.start = s.clock.Now()
	s.next = s.window
	_, err := fmt.Fprintf(s.w, "0 %d\n", initial)
	return err
}

func (s *sampler) observe() error {
	v, err := s.read()
	if err != nil {
		return err
	}
	if v > s.max {
		s.max = v
	}
	elapsed := s.clock.Since(s.start)
	if elapsed <= s.next {
		return nil
	}
	_, err = fmt.Fprintf(s.w, "%d %d\n", elapsed.Microseconds(), s.max)
	s.max = 0
	for s.next < elapsed {
		s.next += s.window
	}
	return err
}

func (s *sampler) run() {
	defer close(s.stopped)
	ticker := s.clock.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.Chan():
			if err := s.observe(); err != nil {
				logger.Debug().Err(err).Msg("memory trace sample failed")
			}
		}
	}
}

func (s *sampler) stop() {
	close(s.done)
	<-s.stopped
}

func (s *sampler) finish(peak uint64) error {
	_, err := fmt.Fprintf(s.w, "PEAK %d\n", peak)
	return err
}

// abort ends a trace whose peak could not be read. The line replaces the PEAK
// line so readers never mistake a partial trace for a complete one.
func (s *sampler) abort(cause error) error {
	_, err := fmt.Fprintf(s.w, "ERROR %s\n", strings.ReplaceAll(cause.Error(), "\n", " "))
	return err
}
