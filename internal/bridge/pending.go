// Package bridge wires the partner's callback-style ad lifecycle to the
// adapter's suspend/resume call contract. Its core primitive is a
// single-resolution pending operation: partner SDKs may fire both a
// terminal success and a terminal failure for the same ad object in edge
// cases, and only the first resolution may win.
package bridge

import (
	"context"
	"sync"
)

// outcome is the terminal result of a pending operation
type outcome[T any] struct {
	value T
	err   error
}

// Pending is a one-shot completion handle. Exactly one Resolve or Fail
// wins; later attempts are silent no-ops. A resolution arriving after the
// waiter has given up is discarded without blocking or leaking.
type Pending[T any] struct {
	once sync.Once
	done chan outcome[T]

	mu     sync.Mutex
	onLate func()
}

// NewPending creates an unresolved pending operation
func NewPending[T any]() *Pending[T] {
	return &Pending[T]{
		// Buffered so a resolver never blocks on an absent waiter
		done: make(chan outcome[T], 1),
	}
}

// OnLate registers a hook invoked when a resolution attempt loses the
// race. Used for metrics; must not block.
func (p *Pending[T]) OnLate(fn func()) {
	p.mu.Lock()
	p.onLate = fn
	p.mu.Unlock()
}

// Resolve completes the operation successfully. Returns false if the
// operation already had a terminal result.
func (p *Pending[T]) Resolve(value T) bool {
	return p.settle(outcome[T]{value: value})
}

// Fail completes the operation with an error. Returns false if the
// operation already had a terminal result.
func (p *Pending[T]) Fail(err error) bool {
	return p.settle(outcome[T]{err: err})
}

func (p *Pending[T]) settle(o outcome[T]) bool {
	won := false
	p.once.Do(func() {
		p.done <- o
		won = true
	})
	if !won {
		p.mu.Lock()
		fn := p.onLate
		p.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
	return won
}

// Await blocks until the operation resolves or the context ends. On
// context expiry the eventual resolution is silently discarded.
func (p *Pending[T]) Await(ctx context.Context) (T, error) {
	select {
	case o := <-p.done:
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
