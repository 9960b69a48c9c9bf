package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/queue"
	"github.com/notifyhub/waitlist/internal/ratelimiter"
)

// Worker is a single goroutine that pulls tasks from the queue, applies
// per-kind rate limiting, runs the kind's handler and schedules retries.
type Worker struct {
	id          int
	q           queue.Queue
	handlers    Registry
	limiter     *ratelimiter.KindLimiters
	maxAttempts int
	timeout     time.Duration
	backoff     []time.Duration
	logger      *zap.Logger
	hooks       MetricHooks
	retries     *sync.WaitGroup
}

// Run blocks until ctx is cancelled, processing one task per iteration.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Debug("worker started")
	for {
		t, ok := w.q.Dequeue(ctx)
		if !ok {
			reason := "queue closed"
			if ctx.Err() != nil {
				reason = "context cancelled"
			}
			w.logger.Info("worker stopping", zap.String("reason", reason))
			return
		}
		w.process(ctx, t)
	}
}

func (w *Worker) process(ctx context.Context, t queue.Task) {
	log := w.logger.With(
		zap.String("task_id", t.ID),
		zap.String("kind", string(t.Kind)),
		zap.String("member_id", t.MemberID),
		zap.Int("attempt", t.Attempt+1),
	)
	if t.CampaignID != "" {
		log = log.With(zap.String("campaign_id", t.CampaignID))
	}

	h, ok := w.handlers[t.Kind]
	if !ok {
		log.Error("no handler registered for task kind")
		return
	}

	// Outcome hooks must land even when shutdown starts mid-attempt.
	hookCtx := context.WithoutCancel(ctx)

	if err := w.limiter.Wait(ctx, t.Kind); err != nil {
		log.Warn("task abandoned while rate limited", zap.Error(err))
		abandon(hookCtx, h, t)
		return
	}

	start := time.Now()
	err := w.attempt(ctx, h, t)
	elapsed := time.Since(start)

	if err == nil {
		h.Succeeded(hookCtx, t)
		w.hooks.OnSent(t.Kind, elapsed)
		log.Info("email delivered", zap.Duration("latency", elapsed))
		return
	}

	t.Attempt++
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("delivery attempt timed out", zap.Duration("timeout", w.timeout), zap.Error(err))
	} else {
		log.Warn("delivery attempt failed", zap.Error(err))
	}

	if t.Attempt >= w.maxAttempts {
		h.Failed(hookCtx, t, fmt.Errorf("%w after %d attempts: %w", domain.ErrDeliveryExhausted, t.Attempt, err))
		w.hooks.OnFailed(t.Kind)
		log.Error("delivery failed permanently", zap.Error(err))
		return
	}

	w.hooks.OnRetry(t.Kind)
	w.scheduleRetry(ctx, h, t, log)
}

// attempt runs one handler call under the attempt deadline. A panic in the
// handler is reported as a failed attempt, and so is a handler that ignores
// ctx and returns nil after the deadline has passed.
func (w *Worker) attempt(ctx context.Context, h Handler, t queue.Task) (err error) {
	actx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	err = h.Attempt(actx, t)
	if err == nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("attempt overran %v: %w", w.timeout, context.DeadlineExceeded)
	}
	return err
}

func abandon(ctx context.Context, h Handler, t queue.Task) {
	if a, ok := h.(Abandoner); ok {
		a.Abandoned(ctx, t)
	}
}

// scheduleRetry re-enqueues t at low priority once its backoff has elapsed.
//
// Backoff schedule, indexed by attempts already made:
//
//	attempt 1 → backoff[0]  (default 5 s)
//	attempt 2 → backoff[1]  (default 30 s)
//	attempt N > len(backoff) → last entry (clamped)
func (w *Worker) scheduleRetry(ctx context.Context, h Handler, t queue.Task, log *zap.Logger) {
	idx := t.Attempt - 1
	if idx >= len(w.backoff) {
		idx = len(w.backoff) - 1
	}
	delay := w.backoff[idx]
	t.Priority = domain.PriorityLow

	w.retries.Add(1)
	go func() {
		defer w.retries.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			log.Warn("retry dropped by shutdown", zap.Duration("backoff", delay))
			abandon(context.WithoutCancel(ctx), h, t)
			return
		}

		if err := w.q.Enqueue(ctx, t); err != nil {
			log.Error("could not re-enqueue retry", zap.Error(err))
			h.Failed(context.WithoutCancel(ctx), t, fmt.Errorf("re-enqueue retry: %w", err))
			w.hooks.OnFailed(t.Kind)
		}
	}()
}
