package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := New(4, zerolog.Nop())
	p.Start()

	var n int64
	var wg sync.WaitGroup
	const tasks = 500
	wg.Add(tasks)
	for i := 0; i < tasks; i++ {
		p.Submit(func() {
			atomic.AddInt64(&n, 1)
			wg.Done()
		})
	}
	wg.Wait()
	if got := atomic.LoadInt64(&n); got != tasks {
		t.Fatalf("ran %d tasks, want %d", got, tasks)
	}
	p.Stop()
}

func TestPoolSurvivesPanickingTask(t *testing.T) {
	p := New(2, zerolog.Nop())
	p.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	p.Submit(func() { panic("boom") })
	p.Submit(func() { wg.Done() })
	wg.Wait()
	p.Stop()
}

func TestPoolDrainsQueueOnShutdown(t *testing.T) {
	p := New(1, zerolog.Nop())
	p.Start()

	var ran int64
	block := make(chan struct{})
	p.Submit(func() { <-block })
	for i := 0; i < 10; i++ {
		p.Submit(func() { atomic.AddInt64(&ran, 1) })
	}

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	// Stop must wait for the queued tasks to drain, not just return.
	select {
	case <-done:
		t.Fatal("Stop returned before the blocking task was released")
	case <-time.After(50 * time.Millisecond):
	}
	close(block)
	<-done

	if got := atomic.LoadInt64(&ran); got != 10 {
		t.Fatalf("drained %d queued tasks, want 10", got)
	}

	// Submissions after shutdown are discarded, not queued.
	p.Submit(func() { atomic.AddInt64(&ran, 1) })
	if p.Discarded() != 1 {
		t.Fatalf("Discarded() = %d, want 1", p.Discarded())
	}
}
