package pipeline

import (
	"sync/atomic"
	"testing"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := NewPool(3, 2)
	var ran int64
	// More tasks than buffer+workers, so the overflow path is taken too.
	for i := 0; i < 20; i++ {
		p.Dispatch(func() {
			atomic.AddInt64(&ran, 1)
		})
	}
	p.Stop()
	if got := atomic.LoadInt64(&ran); got != 20 {
		t.Fatalf("ran = %d, want 20", got)
	}
}

func TestPoolStopIsIdempotent(t *testing.T) {
	p := NewPool(1, 0)
	p.Dispatch(func() {})
	p.Stop()
	p.Stop()
}

func TestPoolDispatchAfterStopRunsInline(t *testing.T) {
	p := NewPool(2, 4)
	p.Stop()

	// Must not panic on the closed channel; the task runs synchronously.
	ran := false
	p.Dispatch(func() { ran = true })
	if !ran {
		t.Fatal("task did not run after Stop")
	}
}

func TestPoolDispatchRacingStop(t *testing.T) {
	p := NewPool(2, 0)
	var ran int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			p.Dispatch(func() {
				atomic.AddInt64(&ran, 1)
			})
		}
	}()
	p.Stop()
	<-done
	if got := atomic.LoadInt64(&ran); got != 100 {
		t.Fatalf("ran = %d, want 100", got)
	}
}
