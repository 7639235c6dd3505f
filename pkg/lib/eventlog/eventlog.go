// Package eventlog keeps an append-only history of values that any number of
// readers can replay and then follow live.
package eventlog

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/log"
)

var logger = log.Named("eventlog")

// node is an element of the singly linked list. The list starts with an empty
// sentinel so appends never special-case the head.
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// Log is an append-only list. Appends are serialized; readers walk the list
// without locks and never observe a partially linked node.
type Log[T any] struct {
	head *node[T]

	mu     sync.Mutex
	tail   *node[T]
	size   atomic.Int64
	closed bool

	broadcaster *Broadcaster[struct{}]
}

func New[T any]() *Log[T] {
	sentinel := &node[T]{}
	return &Log[T]{
		head:        sentinel,
		tail:        sentinel,
		broadcaster: NewBroadcaster[struct{}](),
	}
}

// Append adds v to the end of the log. Appends after Close are dropped.
func (l *Log[T]) Append(v T) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		logger.Debug().Msg("append to closed log dropped")
		return
	}
	n := &node[T]{value: v}
	l.tail.next.Store(n)
	l.tail = n
	l.size.Add(1)
	l.broadcaster.Publish(struct{}{})
}

// Close marks the log complete. Subscribers drain the remaining values and
// their channels are closed.
func (l *Log[T]) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.broadcaster.Stop()
}

func (l *Log[T]) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Log[T]) Len() int {
	return int(l.size.Load())
}

// Subscribe replays the log from the start and then follows new values until
// the log is closed or ctx is done. The returned channel is closed afterwards.
func (l *Log[T]) Subscribe(ctx context.Context, capacity int) <-chan T {
	ch := make(chan T, capacity)
	notifier, err := l.broadcaster.Subscribe()
	if err != nil {
		notifier = nil
	}
	go l.follow(ctx, notifier, ch)
	return ch
}

func (l *Log[T]) follow(ctx context.Context, notifier chan struct{}, ch chan T) {
	defer close(ch)
	if notifier != nil {
		defer l.broadcaster.Unsubscribe(notifier)
	}
	prev := l.head
	for {
		current := prev.next.Load()
		if current != nil {
			select {
			case ch <- current.value:
				prev = current
			case <-ctx.Done():
				return
			}
			continue
		}
		if notifier == nil {
			return
		}
		select {
		case _, ok := <-notifier:
			if !ok {
				// Closed: everything appended is already linked, walk the rest.
				notifier = nil
			}
		case <-ctx.Done():
			return
		}
	}
}

// ForEach visits the values in insertion order until iter returns false.
func (l *Log[T]) ForEach(iter func(T) bool) {
	if l == nil || iter == nil {
		return
	}
	for cur := l.head.next.Load(); cur != nil; cur = cur.next.Load() {
		if !iter(cur.value) {
			return
		}
	}
}

// Values returns a snapshot of the log.
func (l *Log[T]) Values() []T {
	out := make([]T, 0, l.Len())
	l.ForEach(func(v T) bool {
		out = append(out, v)
		return true
	})
	return out
}
