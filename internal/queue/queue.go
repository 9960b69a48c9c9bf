package queue

import (
	"context"
	"time"

	"github.com/notifyhub/waitlist/internal/domain"
)

// Task is the unit of dispatch work. It carries ids only: workers load the
// member and campaign from the store, keeping the queue lightweight and the
// domain data authoritative.
type Task struct {
	ID         string           `json:"id"`
	Kind       domain.EmailKind `json:"kind"`
	MemberID   string           `json:"member_id"`
	CampaignID string           `json:"campaign_id,omitempty"`
	Priority   domain.Priority  `json:"priority"`
	// Attempt counts delivery attempts already made.
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue is implemented by the in-memory PriorityQueue and by AMQPQueue.
type Queue interface {
	// Enqueue blocks until the task is accepted or ctx is done.
	Enqueue(ctx context.Context, t Task) error
	// Dequeue blocks until a task is available. It returns false once ctx
	// is cancelled or the queue is closed.
	Dequeue(ctx context.Context) (Task, bool)
}

// DepthReporter is implemented by queues that can report their backlog
// per priority tier.
type DepthReporter interface {
	Depths() (high, normal, low int)
}
