package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestHandlerPool_BasicExecution(t *testing.T) {
	pool := NewHandlerPool(2)
	defer pool.Shutdown()

	var ran int64
	err := pool.Submit(context.Background(), "searchMessages", func(ctx context.Context) {
		atomic.AddInt64(&ran, 1)
	})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	pool.Wait()

	if atomic.LoadInt64(&ran) != 1 {
		t.Error("work did not execute")
	}
	if s := pool.Stats(); s.Completed != 1 || s.Active != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestHandlerPool_DefaultSize(t *testing.T) {
	if got := NewHandlerPool(0).Size(); got != 1 {
		t.Errorf("expected size 1, got %d", got)
	}
}

func TestHandlerPool_FailsFastWhenKeyIsFull(t *testing.T) {
	pool := NewHandlerPool(2)
	defer pool.Shutdown()

	block := make(chan struct{})
	for i := 0; i < 2; i++ {
		if err := pool.Submit(context.Background(), "checkCalendar", func(ctx context.Context) { <-block }); err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}

	begin := time.Now()
	err := pool.Submit(context.Background(), "checkCalendar", func(ctx context.Context) {})
	if !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("expected ErrPoolExhausted, got %v", err)
	}
	if waited := time.Since(begin); waited > 50*time.Millisecond {
		t.Errorf("submit waited %v for a slot", waited)
	}
	if got := pool.InUse("checkCalendar"); got != 2 {
		t.Errorf("expected 2 slots in use, got %d", got)
	}
	if s := pool.Stats(); s.Rejected != 1 {
		t.Errorf("expected 1 rejection, got %d", s.Rejected)
	}

	close(block)
	pool.Wait()

	if err := pool.Submit(context.Background(), "checkCalendar", func(ctx context.Context) {}); err != nil {
		t.Errorf("slots were not returned: %v", err)
	}
	pool.Wait()
}

func TestHandlerPool_KeysDoNotShareSlots(t *testing.T) {
	pool := NewHandlerPool(1)
	defer pool.Shutdown()

	block := make(chan struct{})
	defer close(block)
	if err := pool.Submit(context.Background(), "checkCalendar", func(ctx context.Context) { <-block }); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	ran := make(chan struct{})
	if err := pool.Submit(context.Background(), "trackDecisions", func(ctx context.Context) { close(ran) }); err != nil {
		t.Fatalf("other key was refused: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("work for the other key did not run")
	}
}

func TestHandlerPool_ConcurrencyLimit(t *testing.T) {
	poolSize := 3
	pool := NewHandlerPool(poolSize)
	defer pool.Shutdown()

	var maxConcurrent int64
	var current int64
	var mu sync.Mutex
	var accepted, rejected int64

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Submit(context.Background(), "summarizeThread", func(ctx context.Context) {
				c := atomic.AddInt64(&current, 1)
				mu.Lock()
				if c > maxConcurrent {
					maxConcurrent = c
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)
				atomic.AddInt64(&current, -1)
			})
			if err == nil {
				atomic.AddInt64(&accepted, 1)
			} else {
				atomic.AddInt64(&rejected, 1)
			}
		}()
	}
	wg.Wait()
	pool.Wait()

	if maxConcurrent > int64(poolSize) {
		t.Errorf("max concurrent %d exceeded pool size %d", maxConcurrent, poolSize)
	}
	if accepted == 0 {
		t.Error("no work was accepted")
	}
	if accepted+rejected != 10 {
		t.Errorf("expected 10 answers, got %d", accepted+rejected)
	}
}

func TestHandlerPool_PanicRecovery(t *testing.T) {
	pool := NewHandlerPool(2)
	defer pool.Shutdown()

	err := pool.Submit(context.Background(), "categorizeMessage", func(ctx context.Context) {
		panic("test panic")
	})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	pool.Wait()

	if s := pool.Stats(); s.Panics != 1 {
		t.Errorf("expected 1 panic, got %d", s.Panics)
	}

	var ran int64
	err = pool.Submit(context.Background(), "categorizeMessage", func(ctx context.Context) {
		atomic.AddInt64(&ran, 1)
	})
	if err != nil {
		t.Fatalf("submit after panic failed: %v", err)
	}

	pool.Wait()

	if atomic.LoadInt64(&ran) != 1 {
		t.Error("work after panic did not execute")
	}
}

func TestHandlerPool_SubmitRefusesEndedContext(t *testing.T) {
	pool := NewHandlerPool(1)
	defer pool.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.Submit(ctx, "searchMessages", func(ctx context.Context) {
		t.Error("work ran with an ended context")
	})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	pool.Wait()
}

func TestHandlerPool_PassesContextToWork(t *testing.T) {
	pool := NewHandlerPool(1)
	defer pool.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	observed := make(chan error, 1)
	pool.Submit(ctx, "searchMessages", func(ctx context.Context) {
		<-ctx.Done()
		observed <- ctx.Err()
	})
	cancel()

	select {
	case err := <-observed:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("work did not observe cancellation")
	}
}

func TestHandlerPool_GracefulShutdown(t *testing.T) {
	pool := NewHandlerPool(5)

	var completed int64
	for i := 0; i < 5; i++ {
		pool.Submit(context.Background(), "trackDecisions", func(ctx context.Context) {
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt64(&completed, 1)
		})
	}

	pool.Shutdown()

	if atomic.LoadInt64(&completed) != 5 {
		t.Errorf("expected 5 completed after shutdown, got %d", atomic.LoadInt64(&completed))
	}
}

func TestHandlerPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewHandlerPool(2)
	pool.Shutdown()
	pool.Shutdown()

	err := pool.Submit(context.Background(), "trackDecisions", func(ctx context.Context) {})
	if err != ErrPoolShutdown {
		t.Errorf("expected ErrPoolShutdown, got %v", err)
	}
}

func TestHandlerPool_ManyConcurrentCompletions(t *testing.T) {
	pool := NewHandlerPool(64)
	defer pool.Shutdown()

	var completed int64
	count := 50

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Submit(context.Background(), "searchMessages", func(ctx context.Context) {
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt64(&completed, 1)
			})
		}()
	}
	wg.Wait()
	pool.Wait()

	if atomic.LoadInt64(&completed) != int64(count) {
		t.Errorf("expected %d completed, got %d", count, atomic.LoadInt64(&completed))
	}
	if s := pool.Stats(); s.Completed != int64(count) {
		t.Errorf("expected stats completed=%d, got %d", count, s.Completed)
	}
}
