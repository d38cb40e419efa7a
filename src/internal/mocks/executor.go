package mocks

import (
	"sort"
	"sync"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/queue"
)

// ManualExecutor is a queue.Executor driven by the test.
//
// Async work is buffered until Drain is called, and After work only becomes
// due when the virtual clock is moved forward with Advance. This makes
// expiry and pacing behaviour deterministic.
type ManualExecutor struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	pending []func()
	timers  []*manualTask

	// AsyncCalls counts Async submissions, AfterCalls counts After submissions.
	AsyncCalls int
	AfterCalls int
}

// NewManualExecutor creates an executor whose virtual clock starts at zero.
func NewManualExecutor() *ManualExecutor {
	return &ManualExecutor{now: time.Unix(0, 0)}
}

var _ queue.Executor = (*ManualExecutor)(nil)

// Async buffers fn until the next Drain.
func (e *ManualExecutor) Async(fn func()) {
	e.mu.Lock()
	e.AsyncCalls++
	e.pending = append(e.pending, fn)
	e.mu.Unlock()
}

// After registers fn to become due once the clock advances past d.
func (e *ManualExecutor) After(d time.Duration, fn func()) queue.Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.AfterCalls++
	e.seq++
	t := &manualTask{due: e.now.Add(d), seq: e.seq, fn: fn}
	e.timers = append(e.timers, t)
	return t
}

// Sync runs fn inline and then drains anything it queued.
func (e *ManualExecutor) Sync(fn func()) {
	fn()
	e.Drain()
}

// Drain runs buffered work until none is left.
func (e *ManualExecutor) Drain() {
	for {
		e.mu.Lock()
		if len(e.pending) == 0 {
			e.mu.Unlock()
			return
		}
		fn := e.pending[0]
		e.pending = e.pending[1:]
		e.mu.Unlock()

		fn()
	}
}

// Advance moves the clock forward, running every task that becomes due in
// chronological order, and drains after each one.
func (e *ManualExecutor) Advance(d time.Duration) {
	e.Drain()

	e.mu.Lock()
	target := e.now.Add(d)
	e.mu.Unlock()

	for {
		e.mu.Lock()
		sort.SliceStable(e.timers, func(i, j int) bool {
			if e.timers[i].due.Equal(e.timers[j].due) {
				return e.timers[i].seq < e.timers[j].seq
			}
			return e.timers[i].due.Before(e.timers[j].due)
		})
		if len(e.timers) == 0 || e.timers[0].due.After(target) {
			e.now = target
			e.mu.Unlock()
			return
		}
		t := e.timers[0]
		e.timers = e.timers[1:]
		e.now = t.due
		e.mu.Unlock()

		if !t.cancelled {
			t.fired = true
			t.fn()
		}
		e.Drain()
	}
}

// Now returns the virtual time.
func (e *ManualExecutor) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// ScheduledCount returns the number of timers that have neither fired nor
// been cancelled.
func (e *ManualExecutor) ScheduledCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, t := range e.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}

type manualTask struct {
	due       time.Time
	seq       int
	fn        func()
	cancelled bool
	fired     bool
}

// Cancel implements queue.Task.
func (t *manualTask) Cancel() {
	t.cancelled = true
}
