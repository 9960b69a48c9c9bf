package worker

import (
	"context"

	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/queue"
)

// Handler delivers one kind of task. The pool calls Attempt up to the
// configured number of times, then exactly one of Succeeded or Failed.
type Handler interface {
	// Attempt performs a single delivery. ctx carries the attempt deadline.
	Attempt(ctx context.Context, t queue.Task) error
	Succeeded(ctx context.Context, t queue.Task)
	// Failed receives the last attempt error wrapped in
	// domain.ErrDeliveryExhausted, or the reason a retry was abandoned.
	Failed(ctx context.Context, t queue.Task, err error)
}

// Registry maps each email kind to its handler.
type Registry map[domain.EmailKind]Handler

// Abandoner is implemented by handlers that hold resources for a task
// between dequeue and outcome. The pool calls Abandoned instead of Succeeded
// or Failed when shutdown drops the task before it resolves.
type Abandoner interface {
	Abandoned(ctx context.Context, t queue.Task)
}
