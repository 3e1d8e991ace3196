package transcode

import (
	"container/list"
	"context"
	"sync"
)

// Pool is a bounded work pool with a FIFO queue of waiters. spec.md defines
// two independent pools, streaming and download, with different admission
// policies layered on top by the facade: Acquire blocks the caller until a
// slot is free (used for file-based cache transcodes and ephemeral
// downloads); TryAcquire returns immediately with "not now" when the pool
// is at capacity (used for start_live_transcode, which cannot be usefully
// queued).
type Pool struct {
	name           string
	maxConcurrency int

	mu      sync.Mutex
	running int
	waiters *list.List // of *waiter

	sibling *Pool
}

type waiter struct {
	ch chan struct{}
}

// NewPool creates a pool bounded to maxConcurrency concurrent tasks.
func NewPool(name string, maxConcurrency int) *Pool {
	return &Pool{
		name:           name,
		maxConcurrency: maxConcurrency,
		waiters:        list.New(),
	}
}

// SetSibling records the other pool so a completion in this pool can prompt
// the sibling to try draining its own queue, per spec.md §4.7's "signals
// the other pool to try draining too."
func (p *Pool) SetSibling(other *Pool) {
	p.sibling = other
}

// TryAcquire attempts to claim a slot without blocking. Returns false
// ("not now") if the pool is already at capacity.
func (p *Pool) TryAcquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running >= p.maxConcurrency {
		return false
	}
	p.running++
	return true
}

// Acquire blocks until a slot is available or ctx is cancelled, enqueuing
// the caller in FIFO order if the pool is currently at capacity.
func (p *Pool) Acquire(ctx context.Context) error {
	p.mu.Lock()
	if p.running < p.maxConcurrency {
		p.running++
		p.mu.Unlock()
		return nil
	}

	w := &waiter{ch: make(chan struct{})}
	elem := p.waiters.PushBack(w)
	p.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		// If we weren't already woken, remove ourselves from the queue.
		select {
		case <-w.ch:
			// Woken concurrently with cancellation; slot already granted.
			p.mu.Unlock()
			p.Release()
			return nil
		default:
			p.waiters.Remove(elem)
		}
		p.mu.Unlock()
		return ctx.Err()
	}
}

// Release frees a slot, waking the next queued waiter (if any) in FIFO
// order. The slot transfers directly to the woken waiter so running count
// never touches zero between handoffs. Afterwards it prompts the sibling
// pool, if any, to try draining its own queue too.
func (p *Pool) Release() {
	p.mu.Lock()
	if front := p.waiters.Front(); front != nil {
		p.waiters.Remove(front)
		w := front.Value.(*waiter)
		p.mu.Unlock()
		close(w.ch)
	} else {
		p.running--
		p.mu.Unlock()
	}

	if p.sibling != nil {
		p.sibling.tryDrainQueue()
	}
}

// tryDrainQueue opportunistically grants a free slot to a queued waiter.
// Called when a sibling pool completes a task, since a transcode's exit may
// have freed shared host resources.
func (p *Pool) tryDrainQueue() {
	p.mu.Lock()
	if p.running >= p.maxConcurrency {
		p.mu.Unlock()
		return
	}
	front := p.waiters.Front()
	if front == nil {
		p.mu.Unlock()
		return
	}
	p.waiters.Remove(front)
	p.running++
	w := front.Value.(*waiter)
	p.mu.Unlock()
	close(w.ch)
}
