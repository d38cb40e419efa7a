package queue

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_RunsInSubmissionOrder(t *testing.T) {
	q := New("test")
	defer q.Stop()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.Async(func() { got = append(got, i) })
	}
	q.Sync(func() {})

	if len(got) != 100 {
		t.Fatalf("expected 100 tasks to run, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestQueue_SerializesConcurrentSubmitters(t *testing.T) {
	q := New("test")
	defer q.Stop()

	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				q.Async(func() { counter++ })
			}
		}()
	}
	wg.Wait()

	var final int
	q.Sync(func() { final = counter })
	if final != 8*500 {
		t.Errorf("expected %d increments, got %d", 8*500, final)
	}
}

func TestQueue_AfterFires(t *testing.T) {
	q := New("test")
	defer q.Stop()

	fired := make(chan struct{})
	q.After(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled task did not fire")
	}
}

func TestQueue_CancelBeforeAndAfterFire(t *testing.T) {
	q := New("test")
	defer q.Stop()

	ran := false
	task := q.After(20*time.Millisecond, func() { ran = true })
	task.Cancel()

	time.Sleep(60 * time.Millisecond)
	q.Sync(func() {})
	if ran {
		t.Error("cancelled task ran")
	}

	fired := make(chan struct{})
	task = q.After(time.Millisecond, func() { close(fired) })
	<-fired
	// Cancelling after the task ran must be harmless.
	task.Cancel()
	task.Cancel()
}

func TestQueue_StopDrainsPendingWork(t *testing.T) {
	q := New("test")

	ran := 0
	for i := 0; i < 10; i++ {
		q.Async(func() { ran++ })
	}
	q.Stop()
	<-q.Done()

	if ran != 10 {
		t.Errorf("expected pending work to drain, ran %d", ran)
	}

	q.Async(func() { ran++ })
	q.Sync(func() { ran++ })
	if ran != 10 {
		t.Errorf("expected work after Stop to be dropped, ran %d", ran)
	}
}

func TestQueue_SurvivesPanickingTask(t *testing.T) {
	q := New("test")
	defer q.Stop()

	q.Async(func() { panic("boom") })

	ok := false
	q.Sync(func() { ok = true })
	if !ok {
		t.Error("queue stopped running after a panic")
	}
}
