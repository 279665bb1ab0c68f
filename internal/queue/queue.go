// Package queue provides a thread-safe FIFO hand-off between a producer and
// one or more consumers, with blocking, timed and interruptible pops.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/spectral-tracks/internal/timeutil"
)

// ErrInterrupted is returned by Pop when Interrupt was called while the
// caller was waiting.
var ErrInterrupted = errors.New("queue: interrupted")

// Queue is an unbounded FIFO guarded by a mutex and condition variable.
//
// Push never blocks, so a producer that outpaces its consumer grows the queue
// without limit; there is no backpressure. Callers that need a bound must
// enforce it themselves.
//
// Interrupt wakes every goroutine currently blocked in a pop and makes that
// pop fail once. Items are left in place, and pops that start after the
// interrupt behave normally.
type Queue[T any] struct {
	cond *sync.Cond

	mu      sync.Mutex
	items   []T
	epoch   uint64
	waiters int
	clock   timeutil.Clock
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	clock timeutil.Clock
}

// WithClock sets the clock used for timed pops.
func WithClock(c timeutil.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New creates an empty queue.
func New[T any](opts ...Option) *Queue[T] {
	o := options{clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	q := &Queue[T]{clock: o.clock}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends v and wakes one waiting consumer.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.cond.Signal()
}

// TryPop removes the head item if there is one.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// WaitAndPop blocks until an item is available or the queue is interrupted.
// It returns false on interruption.
func (q *Queue[T]) WaitAndPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	epoch := q.epoch
	q.waiters++
	for len(q.items) == 0 && q.epoch == epoch {
		q.cond.Wait()
	}
	q.waiters--
	if q.epoch != epoch {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// TimedWaitAndPop is WaitAndPop with a deadline. It returns false on timeout
// or interruption. A non-positive timeout makes it equivalent to TryPop.
func (q *Queue[T]) TimedWaitAndPop(timeout time.Duration) (T, bool) {
	if timeout <= 0 {
		return q.TryPop()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) > 0 {
		return q.popLocked(), true
	}

	expired := false
	timer := q.clock.AfterFunc(timeout, func() {
		q.mu.Lock()
		expired = true
		q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer timer.Stop()

	epoch := q.epoch
	q.waiters++
	for len(q.items) == 0 && q.epoch == epoch && !expired {
		q.cond.Wait()
	}
	q.waiters--
	if q.epoch != epoch || len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// Pop blocks until an item is available, ctx is done, or the queue is
// interrupted.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	epoch := q.epoch
	q.waiters++
	for len(q.items) == 0 && q.epoch == epoch && ctx.Err() == nil {
		q.cond.Wait()
	}
	q.waiters--
	switch {
	case q.epoch != epoch:
		return zero, ErrInterrupted
	case len(q.items) > 0:
		return q.popLocked(), nil
	default:
		return zero, ctx.Err()
	}
}

// Interrupt wakes all goroutines blocked in a pop; each of them returns
// false (or ErrInterrupted) once.
func (q *Queue[T]) Interrupt() {
	q.mu.Lock()
	q.epoch++
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue holds no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Waiters returns the number of goroutines currently blocked in a pop.
func (q *Queue[T]) Waiters() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiters
}

func (q *Queue[T]) popLocked() T {
	var zero T
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return v
}
