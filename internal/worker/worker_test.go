package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/waitlist/internal/config"
	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/queue"
	"github.com/notifyhub/waitlist/internal/ratelimiter"
	"github.com/notifyhub/waitlist/internal/worker"
)

var errTransport = errors.New("smtp: connection refused")

// fakeHandler records every call the pool makes.
type fakeHandler struct {
	mu         sync.Mutex
	attempts   map[string]int
	priorities []domain.Priority
	succeeded  int
	failed     int
	failedErr  error

	// fn decides the outcome of attempt n (1-based) for a task.
	fn        func(ctx context.Context, t queue.Task, n int) error
	outcomes  chan string
	abandoned chan string
}

func newFakeHandler(fn func(ctx context.Context, t queue.Task, n int) error) *fakeHandler {
	return &fakeHandler{
		attempts:  map[string]int{},
		fn:        fn,
		outcomes:  make(chan string, 16),
		abandoned: make(chan string, 16),
	}
}

func (h *fakeHandler) Attempt(ctx context.Context, t queue.Task) error {
	h.mu.Lock()
	h.attempts[t.ID]++
	n := h.attempts[t.ID]
	h.priorities = append(h.priorities, t.Priority)
	h.mu.Unlock()
	return h.fn(ctx, t, n)
}

func (h *fakeHandler) Succeeded(_ context.Context, t queue.Task) {
	h.mu.Lock()
	h.succeeded++
	h.mu.Unlock()
	h.outcomes <- "succeeded:" + t.ID
}

func (h *fakeHandler) Failed(_ context.Context, t queue.Task, err error) {
	h.mu.Lock()
	h.failed++
	h.failedErr = err
	h.mu.Unlock()
	h.outcomes <- "failed:" + t.ID
}

func (h *fakeHandler) Abandoned(_ context.Context, t queue.Task) {
	h.abandoned <- t.ID
}

func testConfig() *config.Config {
	return &config.Config{
		Workers:        2,
		MaxAttempts:    3,
		AttemptTimeout: 50 * time.Millisecond,
		RetryBackoff:   []time.Duration{time.Millisecond, 2 * time.Millisecond},
	}
}

// runPool starts a pool over a fresh queue and returns an enqueue function.
func runPool(t *testing.T, h worker.Handler, hooks worker.MetricHooks) func(queue.Task) {
	t.Helper()
	q := queue.New(queue.DefaultSizes)
	ctx, cancel := context.WithCancel(context.Background())

	pool := worker.NewPool(testConfig(), q,
		worker.Registry{domain.EmailCampaignUpdate: h},
		ratelimiter.New(0), zap.NewNop(), hooks)
	pool.Start(ctx)

	t.Cleanup(func() {
		cancel()
		pool.Wait()
	})

	return func(task queue.Task) {
		if err := q.Enqueue(context.Background(), task); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
}

func campaignTask(id string) queue.Task {
	return queue.Task{
		ID:         id,
		Kind:       domain.EmailCampaignUpdate,
		MemberID:   "member-" + id,
		CampaignID: "campaign-1",
		Priority:   domain.PriorityNormal,
	}
}

func waitOutcome(t *testing.T, h *fakeHandler) string {
	t.Helper()
	select {
	case o := <-h.outcomes:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task outcome")
		return ""
	}
}

func assertNoMoreOutcomes(t *testing.T, h *fakeHandler) {
	t.Helper()
	select {
	case o := <-h.outcomes:
		t.Fatalf("unexpected extra outcome %q", o)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestPool_SuccessCallsSucceededOnce(t *testing.T) {
	h := newFakeHandler(func(context.Context, queue.Task, int) error { return nil })
	var sent atomic.Int32
	enqueue := runPool(t, h, worker.MetricHooks{
		OnSent: func(domain.EmailKind, time.Duration) { sent.Add(1) },
	})

	enqueue(campaignTask("a"))

	if got := waitOutcome(t, h); got != "succeeded:a" {
		t.Fatalf("unexpected outcome %q", got)
	}
	assertNoMoreOutcomes(t, h)
	if sent.Load() != 1 {
		t.Fatalf("expected one OnSent, got %d", sent.Load())
	}
}

func TestPool_RetryCapThenFailedOnce(t *testing.T) {
	h := newFakeHandler(func(context.Context, queue.Task, int) error { return errTransport })
	var retries, failures atomic.Int32
	enqueue := runPool(t, h, worker.MetricHooks{
		OnRetry:  func(domain.EmailKind) { retries.Add(1) },
		OnFailed: func(domain.EmailKind) { failures.Add(1) },
	})

	enqueue(campaignTask("a"))

	if got := waitOutcome(t, h); got != "failed:a" {
		t.Fatalf("unexpected outcome %q", got)
	}
	assertNoMoreOutcomes(t, h)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.attempts["a"] != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", h.attempts["a"])
	}
	if h.succeeded != 0 || h.failed != 1 {
		t.Fatalf("expected 0 succeeded / 1 failed, got %d / %d", h.succeeded, h.failed)
	}
	if !errors.Is(h.failedErr, domain.ErrDeliveryExhausted) || !errors.Is(h.failedErr, errTransport) {
		t.Fatalf("failure should wrap exhaustion and the last error, got %v", h.failedErr)
	}
	if retries.Load() != 2 || failures.Load() != 1 {
		t.Fatalf("expected 2 retries and 1 failure, got %d and %d", retries.Load(), failures.Load())
	}
}

func TestPool_RetriesRunAtLowPriority(t *testing.T) {
	h := newFakeHandler(func(_ context.Context, _ queue.Task, n int) error {
		if n < 3 {
			return errTransport
		}
		return nil
	})
	enqueue := runPool(t, h, worker.MetricHooks{})

	enqueue(campaignTask("a"))

	if got := waitOutcome(t, h); got != "succeeded:a" {
		t.Fatalf("unexpected outcome %q", got)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	want := []domain.Priority{domain.PriorityNormal, domain.PriorityLow, domain.PriorityLow}
	if len(h.priorities) != len(want) {
		t.Fatalf("expected %d attempts, got %d", len(want), len(h.priorities))
	}
	for i, p := range want {
		if h.priorities[i] != p {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, p, h.priorities[i])
		}
	}
	if h.failed != 0 {
		t.Fatal("a task that eventually succeeds must not be reported failed")
	}
}

func TestPool_TimeoutCountsAsFailedAttempt(t *testing.T) {
	h := newFakeHandler(func(ctx context.Context, _ queue.Task, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	})
	enqueue := runPool(t, h, worker.MetricHooks{})

	enqueue(campaignTask("slow"))

	if got := waitOutcome(t, h); got != "failed:slow" {
		t.Fatalf("unexpected outcome %q", got)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.attempts["slow"] != 3 {
		t.Fatalf("expected 3 timed-out attempts, got %d", h.attempts["slow"])
	}
	if !errors.Is(h.failedErr, context.DeadlineExceeded) {
		t.Fatalf("expected deadline in failure chain, got %v", h.failedErr)
	}
}

func TestPool_PanicCountsAsFailedAttempt(t *testing.T) {
	h := newFakeHandler(func(_ context.Context, _ queue.Task, n int) error {
		if n == 1 {
			panic("template exploded")
		}
		return nil
	})
	enqueue := runPool(t, h, worker.MetricHooks{})

	enqueue(campaignTask("p"))

	if got := waitOutcome(t, h); got != "succeeded:p" {
		t.Fatalf("unexpected outcome %q", got)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.attempts["p"] != 2 {
		t.Fatalf("expected a retry after the panic, got %d attempts", h.attempts["p"])
	}
}

func TestPool_ManyTasksEachResolvedOnce(t *testing.T) {
	h := newFakeHandler(func(_ context.Context, t queue.Task, _ int) error {
		if t.ID[0] == 'f' {
			return errTransport
		}
		return nil
	})
	h.outcomes = make(chan string, 64)
	enqueue := runPool(t, h, worker.MetricHooks{})

	ids := []string{"s1", "s2", "s3", "f1", "s4", "f2"}
	for _, id := range ids {
		enqueue(campaignTask(id))
	}

	seen := map[string]int{}
	for range ids {
		seen[waitOutcome(t, h)]++
	}
	assertNoMoreOutcomes(t, h)

	for _, id := range ids {
		want := "succeeded:" + id
		if id[0] == 'f' {
			want = "failed:" + id
		}
		if seen[want] != 1 {
			t.Fatalf("expected %s exactly once, got %v", want, seen)
		}
	}
}

// A handler that ignores ctx and reports success after the deadline has
// passed still loses the attempt.
func TestPool_OverrunIgnoringContextCountsAsFailed(t *testing.T) {
	h := newFakeHandler(func(context.Context, queue.Task, int) error {
		time.Sleep(150 * time.Millisecond)
		return nil
	})
	q := queue.New(queue.DefaultSizes)
	cfg := testConfig()
	cfg.MaxAttempts = 1
	cfg.AttemptTimeout = 50 * time.Millisecond

	var sent atomic.Int32
	pool := worker.NewPool(cfg, q, worker.Registry{domain.EmailCampaignUpdate: h},
		ratelimiter.New(0), zap.NewNop(), worker.MetricHooks{
			OnSent: func(domain.EmailKind, time.Duration) { sent.Add(1) },
		})
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	defer func() {
		cancel()
		pool.Wait()
	}()

	if err := q.Enqueue(context.Background(), campaignTask("late")); err != nil {
		t.Fatal(err)
	}

	if got := waitOutcome(t, h); got != "failed:late" {
		t.Fatalf("unexpected outcome %q", got)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.succeeded != 0 || sent.Load() != 0 {
		t.Fatal("an overrun attempt must not be reported delivered")
	}
	if !errors.Is(h.failedErr, context.DeadlineExceeded) {
		t.Fatalf("expected deadline in failure chain, got %v", h.failedErr)
	}
}

func waitAbandoned(t *testing.T, h *fakeHandler, id string) {
	t.Helper()
	select {
	case got := <-h.abandoned:
		if got != id {
			t.Fatalf("expected %s abandoned, got %s", id, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Abandoned")
	}
}

func TestPool_ShutdownDuringBackoffAbandonsTask(t *testing.T) {
	h := newFakeHandler(func(context.Context, queue.Task, int) error { return errTransport })
	q := queue.New(queue.DefaultSizes)
	cfg := testConfig()
	cfg.RetryBackoff = []time.Duration{time.Hour}

	retried := make(chan struct{}, 1)
	pool := worker.NewPool(cfg, q, worker.Registry{domain.EmailCampaignUpdate: h},
		ratelimiter.New(0), zap.NewNop(), worker.MetricHooks{
			OnRetry: func(domain.EmailKind) { retried <- struct{}{} },
		})
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	if err := q.Enqueue(context.Background(), campaignTask("r")); err != nil {
		t.Fatal(err)
	}
	select {
	case <-retried:
	case <-time.After(2 * time.Second):
		t.Fatal("first attempt never scheduled a retry")
	}

	cancel()
	pool.Wait()

	waitAbandoned(t, h, "r")
	assertNoMoreOutcomes(t, h)
}

func TestPool_ShutdownWhileRateLimitedAbandonsTask(t *testing.T) {
	h := newFakeHandler(func(context.Context, queue.Task, int) error { return nil })
	q := queue.New(queue.DefaultSizes)
	cfg := testConfig()
	cfg.Workers = 1

	// One send per second: the second task waits on the limiter.
	pool := worker.NewPool(cfg, q, worker.Registry{domain.EmailCampaignUpdate: h},
		ratelimiter.New(1), zap.NewNop(), worker.MetricHooks{})
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for _, id := range []string{"first", "second"} {
		if err := q.Enqueue(context.Background(), campaignTask(id)); err != nil {
			t.Fatal(err)
		}
	}
	if got := waitOutcome(t, h); got != "succeeded:first" {
		t.Fatalf("unexpected outcome %q", got)
	}
	time.Sleep(20 * time.Millisecond)

	cancel()
	pool.Wait()

	waitAbandoned(t, h, "second")
	assertNoMoreOutcomes(t, h)
}
