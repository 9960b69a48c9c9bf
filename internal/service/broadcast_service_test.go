package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/waitlist/internal/config"
	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/mailer"
	"github.com/notifyhub/waitlist/internal/queue"
	"github.com/notifyhub/waitlist/internal/ratelimiter"
	"github.com/notifyhub/waitlist/internal/service"
	"github.com/notifyhub/waitlist/internal/worker"
)

var validBroadcast = domain.BroadcastRequest{Subject: "Beta is open", Message: "Come and try it."}

func (f *fixture) join(t *testing.T, emails ...string) {
	t.Helper()
	for _, email := range emails {
		if _, _, err := f.memberSvc.Join(context.Background(), domain.JoinRequest{Email: email}); err != nil {
			t.Fatalf("join %s: %v", email, err)
		}
	}
}

func (f *fixture) broadcaster(t *testing.T, q queue.Queue, hooks service.Hooks) *service.BroadcastService {
	t.Helper()
	svc := service.NewBroadcastService(f.members, f.campaigns, q,
		mailer.DefaultStaticContent("Acme"), hooks, zap.NewNop())
	t.Cleanup(svc.Close)
	return svc
}

// refusingQueue rejects every task as a closed queue would.
type refusingQueue struct{}

func (refusingQueue) Enqueue(context.Context, queue.Task) error { return domain.ErrQueueClosed }

func (refusingQueue) Dequeue(context.Context) (queue.Task, bool) { return queue.Task{}, false }

func waitSettled(t *testing.T, f *fixture, id string, within time.Duration) *domain.Campaign {
	t.Helper()
	deadline := time.Now().Add(within)
	for {
		c, err := f.campaigns.GetByID(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if c.IsCompleted() || time.Now().After(deadline) {
			return c
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcast_NoRecipients(t *testing.T) {
	f := newFixture()
	svc := f.broadcaster(t, queue.New(queue.DefaultSizes), service.Hooks{})

	_, err := svc.Broadcast(context.Background(), validBroadcast, "admin-1")
	if !errors.Is(err, domain.ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}

	stats, _ := f.campaigns.Stats(context.Background())
	if stats.TotalCampaigns != 0 {
		t.Fatal("no campaign may be created without recipients")
	}
}

func TestBroadcast_Validation(t *testing.T) {
	f := newFixture()
	f.join(t, "a@example.com")
	svc := f.broadcaster(t, queue.New(queue.DefaultSizes), service.Hooks{})

	cases := map[string]domain.BroadcastRequest{
		"empty subject": {Subject: "   ", Message: "x"},
		"empty message": {Subject: "x", Message: ""},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Broadcast(context.Background(), req, "admin-1"); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestBroadcast_QueuesOneTaskPerMember(t *testing.T) {
	f := newFixture()
	f.join(t, "a@example.com", "b@example.com", "c@example.com", "d@example.com")
	q := queue.New(queue.DefaultSizes)
	var created atomic.Int32
	svc := f.broadcaster(t, q, service.Hooks{CampaignCreated: func() { created.Add(1) }})

	c, err := svc.Broadcast(context.Background(), validBroadcast, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.RecipientsCount != 4 || c.SentCount != 0 || c.FailedCount != 0 {
		t.Fatalf("unexpected counters %+v", c)
	}
	if c.Status != domain.CampaignSending || c.SentBy != "admin-1" {
		t.Fatalf("unexpected campaign %+v", c)
	}
	if created.Load() != 1 {
		t.Fatalf("expected one CampaignCreated, got %d", created.Load())
	}

	svc.Wait()
	_, normal, _ := q.Depths()
	if normal != 4 {
		t.Fatalf("expected 4 normal-priority tasks, got %d", normal)
	}

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		task, _ := q.Dequeue(context.Background())
		if task.Kind != domain.EmailCampaignUpdate || task.CampaignID != c.ID || task.Attempt != 0 {
			t.Fatalf("unexpected task %+v", task)
		}
		seen[task.MemberID] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected one task per member, got %d distinct", len(seen))
	}
}

// A campaign larger than the queue buffer is fed in as workers drain it:
// Broadcast does not wait for that, and every member gets an attempt.
func TestBroadcast_FanOutLargerThanQueue(t *testing.T) {
	const total = 40
	f := newFixture()
	for i := 0; i < total; i++ {
		f.join(t, fmt.Sprintf("m%02d@example.com", i))
	}
	before := map[string]int{}
	for i := 0; i < total; i++ {
		email := fmt.Sprintf("m%02d@example.com", i)
		before[email] = f.transport.callsTo(email)
	}

	q := queue.New(queue.Sizes{High: 1, Normal: 5, Low: 1})
	cfg := &config.Config{
		Workers:        2,
		MaxAttempts:    3,
		AttemptTimeout: time.Second,
		RetryBackoff:   []time.Duration{time.Millisecond},
	}
	dispatcher := service.NewCampaignDispatcher(f.members, f.campaigns, f.renderer, f.transport, service.Hooks{}, zap.NewNop())
	pool := worker.NewPool(cfg, q, worker.Registry{domain.EmailCampaignUpdate: dispatcher},
		ratelimiter.New(20), zap.NewNop(), worker.MetricHooks{})

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	defer func() {
		cancel()
		pool.Wait()
	}()

	svc := f.broadcaster(t, q, service.Hooks{})
	start := time.Now()
	c, err := svc.Broadcast(context.Background(), validBroadcast, "admin-1")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	// Past the burst of 20 the limiter allows 20/s, so draining takes about a second.
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Fatalf("broadcast waited for the queue to drain: %v", elapsed)
	}

	c = waitSettled(t, f, c.ID, 5*time.Second)
	if c.Status != domain.CampaignCompleted || c.SentCount != total || c.FailedCount != 0 {
		t.Fatalf("expected completed %d/0, got %s %d/%d", total, c.Status, c.SentCount, c.FailedCount)
	}
	for email, n := range before {
		if got := f.transport.callsTo(email) - n; got != 1 {
			t.Fatalf("%s: expected exactly one campaign email, got %d", email, got)
		}
	}
}

// Tasks a closed queue refuses are recorded as failures so the campaign
// can still complete.
func TestBroadcast_RefusedTasksCountAsFailed(t *testing.T) {
	f := newFixture()
	f.join(t, "a@example.com", "b@example.com", "c@example.com")
	svc := f.broadcaster(t, refusingQueue{}, service.Hooks{})

	c, err := svc.Broadcast(context.Background(), validBroadcast, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Wait()

	c, _ = f.campaigns.GetByID(context.Background(), c.ID)
	if c.FailedCount != 3 || c.SentCount != 0 || c.Status != domain.CampaignCompleted {
		t.Fatalf("expected 3 failures and a completed campaign, got %+v", c)
	}
}

// Close unblocks a fan-out stuck on a full queue without counting the
// unqueued members as failed.
func TestBroadcast_CloseStopsBlockedFanOut(t *testing.T) {
	f := newFixture()
	f.join(t, "a@example.com", "b@example.com", "c@example.com")
	q := queue.New(queue.Sizes{High: 1, Normal: 1, Low: 1})
	svc := service.NewBroadcastService(f.members, f.campaigns, q,
		mailer.DefaultStaticContent("Acme"), service.Hooks{}, zap.NewNop())

	c, err := svc.Broadcast(context.Background(), validBroadcast, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		svc.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return while the fan-out was blocked")
	}

	c, _ = f.campaigns.GetByID(context.Background(), c.ID)
	if c.FailedCount != 0 || c.Status != domain.CampaignSending {
		t.Fatalf("unqueued members must not be counted, got %+v", c)
	}
	if _, err := svc.Broadcast(context.Background(), validBroadcast, "admin-1"); !errors.Is(err, domain.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed after Close, got %v", err)
	}
}

func TestBroadcast_CallerCancellationDoesNotAbortFanOut(t *testing.T) {
	f := newFixture()
	f.join(t, "a@example.com", "b@example.com")
	q := queue.New(queue.DefaultSizes)
	svc := f.broadcaster(t, q, service.Hooks{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// ListAll and Create on the mocks ignore ctx, so only fan-out sees it.
	c, err := svc.Broadcast(ctx, validBroadcast, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Wait()

	c, _ = f.campaigns.GetByID(context.Background(), c.ID)
	if _, normal, _ := q.Depths(); normal != 2 || c.FailedCount != 0 {
		t.Fatalf("expected both tasks queued, got depth=%d failed=%d", normal, c.FailedCount)
	}
}

// Three members, one unreachable: two deliveries, one terminal failure,
// and a completed campaign.
func TestBroadcast_EndToEnd(t *testing.T) {
	f := newFixture()
	f.join(t, "a@example.com", "b@example.com", "c@example.com")
	f.transport.fail["c@example.com"] = true
	welcomeCalls := f.transport.callsTo("c@example.com")

	var completed atomic.Int32
	hooks := service.Hooks{CampaignCompleted: func() { completed.Add(1) }}

	q := queue.New(queue.DefaultSizes)
	cfg := &config.Config{
		Workers:        3,
		MaxAttempts:    3,
		AttemptTimeout: time.Second,
		RetryBackoff:   []time.Duration{time.Millisecond},
	}
	dispatcher := service.NewCampaignDispatcher(f.members, f.campaigns, f.renderer, f.transport, hooks, zap.NewNop())
	pool := worker.NewPool(cfg, q, worker.Registry{domain.EmailCampaignUpdate: dispatcher},
		ratelimiter.New(0), zap.NewNop(), worker.MetricHooks{})

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	defer func() {
		cancel()
		pool.Wait()
	}()

	c, err := f.broadcaster(t, q, hooks).Broadcast(context.Background(), validBroadcast, "admin-1")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	c = waitSettled(t, f, c.ID, 3*time.Second)

	if c.Status != domain.CampaignCompleted || c.SentCount != 2 || c.FailedCount != 1 {
		t.Fatalf("expected completed 2/1, got %s %d/%d", c.Status, c.SentCount, c.FailedCount)
	}
	if completed.Load() != 1 {
		t.Fatalf("expected exactly one completion, got %d", completed.Load())
	}
	if got := f.transport.callsTo("c@example.com") - welcomeCalls; got != 3 {
		t.Fatalf("expected 3 attempts to the unreachable member, got %d", got)
	}

	all, _ := f.members.ListAll(context.Background())
	for _, m := range all {
		want := 1
		if m.Email == "c@example.com" {
			want = 0
		}
		if m.UpdatesReceived != want {
			t.Fatalf("%s: expected updates_received=%d, got %d", m.Email, want, m.UpdatesReceived)
		}
	}
}
