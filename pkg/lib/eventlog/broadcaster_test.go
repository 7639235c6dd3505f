package eventlog

import (
	"testing"
	"time"
)

func recvWithTimeout[T any](t *testing.T, ch <-chan T, d time.Duration) (T, bool) {
	t.Helper()
	var zero T
	select {
	case v, ok := <-ch:
		return v, ok
	case <-time.After(d):
		return zero, false
	}
}

func assertNoRecv[T any](t *testing.T, ch <-chan T, d time.Duration) {
	t.Helper()
	if v, ok := recvWithTimeout(t, ch, d); ok {
		t.Fatalf("unexpected receive: %v", v)
	}
}

func TestBroadcaster_MultipleSubscribersReceive(t *testing.T) {
	b := NewBroadcaster[int]()
	defer b.Stop()

	ch1, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	b.Publish(1)
	if v, ok := recvWithTimeout(t, ch1, 200*time.Millisecond); !ok || v != 1 {
		t.Fatalf("ch1 did not receive initial message, ok=%v v=%d", ok, v)
	}

	ch2, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	b.Publish(2)
	if v, ok := recvWithTimeout(t, ch1, 200*time.Millisecond); !ok || v != 2 {
		t.Fatalf("ch1 did not receive broadcast 2, ok=%v v=%d", ok, v)
	}
	if v, ok := recvWithTimeout(t, ch2, 200*time.Millisecond); !ok || v != 2 {
		t.Fatalf("ch2 did not receive broadcast 2, ok=%v v=%d", ok, v)
	}
}

func TestBroadcaster_SlowSubscriberSeesLatest(t *testing.T) {
	b := NewBroadcaster[int]()
	defer b.Stop()

	slow, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	slow <- -1

	b.Publish(42)
	time.Sleep(10 * time.Millisecond)

	if v, ok := recvWithTimeout(t, slow, 200*time.Millisecond); !ok || v != 42 {
		t.Fatalf("slow did not receive latest 42, ok=%v v=%d", ok, v)
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster[int]()
	defer b.Stop()

	a, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	other, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	b.Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Fatalf("unsubscribed channel should be closed")
	}
	// A second unsubscribe must not close the channel twice.
	b.Unsubscribe(a)

	b.Publish(7)
	if v, ok := recvWithTimeout(t, other, 200*time.Millisecond); !ok || v != 7 {
		t.Fatalf("remaining subscriber missed message, ok=%v v=%d", ok, v)
	}
}

func TestBroadcaster_StopClosesSubscribers(t *testing.T) {
	b := NewBroadcaster[int]()
	ch, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	b.Stop()

	select {
	case _, ok := <-ch:
		if ok {
			// A pending value may still be delivered; the close must follow.
			if _, ok := recvWithTimeout(t, ch, 200*time.Millisecond); ok {
				t.Fatalf("channel not closed after Stop")
			}
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("channel not closed after Stop")
	}

	deadline := time.Now().Add(time.Second)
	for {
		if _, err := b.Subscribe(); err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Subscribe after Stop should fail")
		}
		time.Sleep(time.Millisecond)
	}
}
