package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// PoolStats tracks handler pool operational counters.
type PoolStats struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Panics    int64 `json:"panics"`
	Rejected  int64 `json:"rejected"`
}

var (
	// ErrPoolShutdown is returned when work is submitted to a shut-down pool.
	ErrPoolShutdown = errors.New("handler pool is shut down")
	// ErrPoolExhausted is returned when every slot of a key is taken.
	ErrPoolExhausted = errors.New("handler pool slots exhausted")
)

// HandlerPool runs handler goroutines with a separate slot budget per key
// (the action name). A goroutine that outlives its deadline keeps its slot
// until the handler actually returns, so a hung back-end can only exhaust
// its own key.
type HandlerPool struct {
	size   int
	slots  map[string]chan struct{}
	wg     sync.WaitGroup
	stats  PoolStats
	mu     sync.Mutex
	closed bool
}

// NewHandlerPool creates a pool allowing size concurrent goroutines per key.
func NewHandlerPool(size int) *HandlerPool {
	if size <= 0 {
		size = 1
	}
	return &HandlerPool{
		size:  size,
		slots: make(map[string]chan struct{}),
	}
}

// Size returns the per-key concurrency limit.
func (p *HandlerPool) Size() int { return p.size }

// Submit starts fn on a pool goroutine under key's budget. It never waits
// for a slot: a full key yields ErrPoolExhausted. An already-ended ctx
// yields ctx.Err(), and a shut-down pool ErrPoolShutdown.
func (p *HandlerPool) Submit(ctx context.Context, key string, fn func(ctx context.Context)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// wg.Add must happen under the lock so Shutdown's wg.Wait cannot miss it.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolShutdown
	}
	sem, ok := p.slots[key]
	if !ok {
		sem = make(chan struct{}, p.size)
		p.slots[key] = sem
	}
	select {
	case sem <- struct{}{}:
	default:
		p.mu.Unlock()
		atomic.AddInt64(&p.stats.Rejected, 1)
		return ErrPoolExhausted
	}
	p.wg.Add(1)
	atomic.AddInt64(&p.stats.Active, 1)
	p.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&p.stats.Panics, 1)
			}
			atomic.AddInt64(&p.stats.Active, -1)
			atomic.AddInt64(&p.stats.Completed, 1)
			<-sem
			p.wg.Done()
		}()
		fn(ctx)
	}()

	return nil
}

// InUse reports how many of key's slots are taken.
func (p *HandlerPool) InUse(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots[key])
}

// Wait blocks until all submitted work completes.
func (p *HandlerPool) Wait() {
	p.wg.Wait()
}

// Shutdown stops accepting work and waits for running handlers to return.
func (p *HandlerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns a snapshot of the pool counters.
func (p *HandlerPool) Stats() PoolStats {
	return PoolStats{
		Active:    atomic.LoadInt64(&p.stats.Active),
		Completed: atomic.LoadInt64(&p.stats.Completed),
		Panics:    atomic.LoadInt64(&p.stats.Panics),
		Rejected:  atomic.LoadInt64(&p.stats.Rejected),
	}
}
