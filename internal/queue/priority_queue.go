package queue

import (
	"context"
	"fmt"

	"github.com/notifyhub/waitlist/internal/domain"
)

// Sizes configures the buffer of each priority tier.
type Sizes struct {
	High   int
	Normal int
	Low    int
}

// DefaultSizes leaves room for a large campaign in the normal tier while
// keeping retries and welcome sweeps bounded.
var DefaultSizes = Sizes{High: 1000, Normal: 5000, Low: 2000}

// PriorityQueue routes tasks to one of three buffered channels.
//
// Welcome sweeps use high, first campaign attempts use normal and retries
// use low. Workers dequeue via the double-select pattern, so high-priority
// tasks are always served before normal or low ones while normal and low
// still compete fairly when high is empty.
type PriorityQueue struct {
	high   chan Task
	normal chan Task
	low    chan Task
}

func New(sizes Sizes) *PriorityQueue {
	return &PriorityQueue{
		high:   make(chan Task, sizes.High),
		normal: make(chan Task, sizes.Normal),
		low:    make(chan Task, sizes.Low),
	}
}

// Enqueue places t on its priority channel, waiting for room while ctx is
// live. A full tier therefore applies back-pressure to the producer instead
// of dropping work; the error on ctx expiry wraps domain.ErrQueueFull.
func (q *PriorityQueue) Enqueue(ctx context.Context, t Task) error {
	var ch chan Task
	switch t.Priority {
	case domain.PriorityHigh:
		ch = q.high
	case domain.PriorityNormal:
		ch = q.normal
	case domain.PriorityLow:
		ch = q.low
	default:
		return fmt.Errorf("unknown priority %q", t.Priority)
	}

	select {
	case ch <- t:
		return nil
	default:
	}

	select {
	case ch <- t:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrQueueFull, ctx.Err())
	}
}

// Dequeue blocks until a task is available or ctx is cancelled.
//
//  1. A non-blocking select checks the high channel first.
//  2. Only when high is empty does the goroutine enter a fair blocking
//     select across all three channels plus the done signal.
//
// Returns (Task{}, false) when ctx is cancelled.
func (q *PriorityQueue) Dequeue(ctx context.Context) (Task, bool) {
	select {
	case t := <-q.high:
		return t, true
	default:
	}

	select {
	case t := <-q.high:
		return t, true
	case t := <-q.normal:
		return t, true
	case t := <-q.low:
		return t, true
	case <-ctx.Done():
		return Task{}, false
	}
}

// Depths returns the number of tasks waiting in each tier.
func (q *PriorityQueue) Depths() (high, normal, low int) {
	return len(q.high), len(q.normal), len(q.low)
}

var (
	_ Queue         = (*PriorityQueue)(nil)
	_ DepthReporter = (*PriorityQueue)(nil)
)
