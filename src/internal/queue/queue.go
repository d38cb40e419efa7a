// Package queue provides the serialized execution context used by the DNS
// engine and the tunnel server.
//
// Every piece of engine state is touched only from functions submitted to a
// single Executor, so the engines need no locks of their own. Callbacks that
// originate on other goroutines (socket I/O, timers, resolver replies) are
// posted onto the executor before they touch that state.
package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/log"
)

// Task is a handle to work scheduled with After.
type Task interface {
	// Cancel prevents the task from running. Calling it after the task
	// already ran, or more than once, is a no-op.
	Cancel()
}

// Executor runs submitted functions one at a time, in submission order.
type Executor interface {
	// Async schedules fn and returns immediately.
	Async(fn func())
	// After schedules fn to run on the executor once d has elapsed.
	After(d time.Duration, fn func()) Task
	// Sync schedules fn and waits until it has run. It must not be called
	// from a function that is itself running on the same executor.
	Sync(fn func())
}

// Queue is a goroutine-backed Executor with an unbounded FIFO.
type Queue struct {
	name string

	mu      sync.Mutex
	pending []func()
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// New creates a queue and starts its worker goroutine.
func New(name string) *Queue {
	q := &Queue{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.loop()
	return q
}

// Name returns the queue name used in log messages.
func (q *Queue) Name() string {
	return q.name
}

// Async implements Executor. Functions submitted after Stop are dropped.
func (q *Queue) Async(fn func()) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Sync implements Executor. If the queue is stopped before fn gets to run,
// Sync returns without running it.
func (q *Queue) Sync(fn func()) {
	finished := make(chan struct{})
	q.Async(func() {
		defer close(finished)
		fn()
	})

	select {
	case <-finished:
	case <-q.done:
	}
}

// After implements Executor.
func (q *Queue) After(d time.Duration, fn func()) Task {
	t := &timerTask{}
	t.timer = time.AfterFunc(d, func() {
		q.Async(func() {
			if t.cancelled.Load() {
				return
			}
			fn()
		})
	})
	return t
}

// Stop stops accepting new work. Already queued functions still run.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the worker goroutine has exited after Stop.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) loop() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.pending) == 0 {
			if q.stopped {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			q.mu.Lock()
		}
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, fn := range batch {
			q.run(fn)
		}
	}
}

// run executes fn, keeping the worker alive if it panics.
func (q *Queue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[%s] queued task panicked: %v", q.name, r)
		}
	}()
	fn()
}

type timerTask struct {
	timer     *time.Timer
	cancelled atomic.Bool
}

// Cancel implements Task.
func (t *timerTask) Cancel() {
	if t.cancelled.Swap(true) {
		return
	}
	t.timer.Stop()
}
