package eventlog

import (
	"sync"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
)

// Broadcaster fans values out to subscribers. Each subscriber channel holds a
// single value; a subscriber that falls behind sees only the latest one.
type Broadcaster[T any] struct {
	messageReceiver chan T
	mu              sync.Mutex
	subscribers     map[chan T]struct{}
	stopped         bool
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	b := &Broadcaster[T]{
		messageReceiver: make(chan T, 1),
		subscribers:     make(map[chan T]struct{}),
	}
	go b.start()
	return b
}

func (b *Broadcaster[T]) start() {
	for msg := range b.messageReceiver {
		// Copy the set so the lock is not held while sending.
		b.mu.Lock()
		subscribers := make([]chan T, 0, len(b.subscribers))
		for s := range b.subscribers {
			subscribers = append(subscribers, s)
		}
		b.mu.Unlock()

		for _, s := range subscribers {
			replaceLatest(s, msg)
		}
	}

	b.mu.Lock()
	for s := range b.subscribers {
		close(s)
	}
	b.subscribers = nil
	b.stopped = true
	b.mu.Unlock()
	logger.Debug().Msg("broadcaster stopped")
}

// replaceLatest sends msg without blocking, dropping the value already
// buffered in ch if it is full.
func replaceLatest[T any](ch chan T, msg T) {
	for {
		select {
		case ch <- msg:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Stop closes every subscriber channel once pending values are delivered.
// Stop must be called at most once.
func (b *Broadcaster[T]) Stop() {
	close(b.messageReceiver)
}

func (b *Broadcaster[T]) Subscribe() (chan T, error) {
	ch := make(chan T, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return nil, status.FailedPreconditionErrorf("failed to subscribe: broadcaster is stopped")
	}
	b.subscribers[ch] = struct{}{}
	return ch, nil
}

func (b *Broadcaster[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Publish queues msg for delivery. If the broadcaster has not yet forwarded
// the previous value, that value is replaced.
func (b *Broadcaster[T]) Publish(msg T) {
	replaceLatest(b.messageReceiver, msg)
}
