package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/waitlist/internal/config"
	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/queue"
	"github.com/notifyhub/waitlist/internal/ratelimiter"
)

// MetricHooks carries the metric callbacks injected by main. Nil fields are
// no-ops.
type MetricHooks struct {
	OnSent   func(kind domain.EmailKind, latency time.Duration)
	OnFailed func(kind domain.EmailKind)
	OnRetry  func(kind domain.EmailKind)
}

func (h *MetricHooks) fill() {
	if h.OnSent == nil {
		h.OnSent = func(domain.EmailKind, time.Duration) {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func(domain.EmailKind) {}
	}
	if h.OnRetry == nil {
		h.OnRetry = func(domain.EmailKind) {}
	}
}

// Pool manages the lifecycle of all workers and of their pending retries.
// All workers share one queue; its ordering decides which task runs next.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
	retries sync.WaitGroup
}

// NewPool creates cfg.Workers identical workers.
func NewPool(
	cfg *config.Config,
	q queue.Queue,
	handlers Registry,
	limiter *ratelimiter.KindLimiters,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	hooks.fill()
	p := &Pool{}

	backoff := cfg.RetryBackoff
	if len(backoff) == 0 {
		backoff = []time.Duration{0}
	}

	p.workers = make([]*Worker, cfg.Workers)
	for i := range p.workers {
		p.workers[i] = &Worker{
			id:          i,
			q:           q,
			handlers:    handlers,
			limiter:     limiter,
			maxAttempts: cfg.MaxAttempts,
			timeout:     cfg.AttemptTimeout,
			backoff:     backoff,
			logger:      logger.With(zap.Int("worker_id", i)),
			hooks:       hooks,
			retries:     &p.retries,
		}
	}
	return p
}

// Start launches all workers. Cancelling ctx stops them and abandons any
// retry still waiting out its backoff.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker and retry timer has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
	p.retries.Wait()
}
