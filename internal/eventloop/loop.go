// Package eventloop provides the single logical event loop that beagle's
// controllers run on.
//
// Every controller, dispatcher, handshake and serial session keeps its state
// confined to one Loop. Device reads, websocket reads, stdin, UI events and
// timers run on their own goroutines and hand their results over with Post,
// so the confined state is never touched concurrently and callbacks observe
// events in the order they were posted.
package eventloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Loop runs posted functions one at a time in FIFO order.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped chan struct{}
	closed  bool
}

// New creates an idle loop. Nothing runs until Run or RunPending is called.
func New() *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Post enqueues fn. It reports false once the loop has been stopped.
// Safe to call from any goroutine.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run processes posted functions until ctx is cancelled or Stop is called.
// Run and RunPending must not be used concurrently.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopped:
			l.RunPending()
			return nil
		case <-l.wake:
		}
	}
}

// RunPending runs queued functions, including ones they enqueue, until the
// queue is empty. It returns the number of functions run.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
		n++
	}
}

// Stop makes Run return after draining what is already queued. Later Posts
// are rejected. Stop is idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.stopped)
}

// Stopped is closed once Stop has been called.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}

// Timer is a stoppable one-shot callback scheduled on a Loop.
type Timer struct {
	t       *time.Timer
	stopped atomic.Bool
}

// AfterFunc posts fn onto the loop once d has elapsed. A Timer stopped
// before fn runs guarantees fn never runs, even if the expiry was already
// queued.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	timer := &Timer{}
	timer.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if timer.stopped.Load() {
				return
			}
			timer.stopped.Store(true)
			fn()
		})
	})
	return timer
}

// Stop cancels the timer. It reports whether the call prevented fn from
// running.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	t.t.Stop()
	return t.stopped.CompareAndSwap(false, true)
}
