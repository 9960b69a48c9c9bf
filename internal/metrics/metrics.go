package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/queue"
	"github.com/notifyhub/waitlist/internal/service"
	"github.com/notifyhub/waitlist/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	EmailsSent         *prometheus.CounterVec
	EmailsFailed       *prometheus.CounterVec
	EmailAttemptsRetry *prometheus.CounterVec
	EmailLatency       *prometheus.HistogramVec
	CampaignsCreated   prometheus.Counter
	CampaignsCompleted prometheus.Counter
	MembersJoined      prometheus.Counter
}

// New registers all instruments with reg. A custom registry keeps tests
// isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EmailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total number of delivered emails.",
		}, []string{"kind"}),

		EmailsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emails_failed_total",
			Help: "Total number of emails that failed permanently.",
		}, []string{"kind"}),

		EmailAttemptsRetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "email_attempts_failed_total",
			Help: "Failed delivery attempts that were scheduled for retry.",
		}, []string{"kind"}),

		EmailLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "email_delivery_seconds",
			Help:    "Latency of successful delivery attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		CampaignsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campaigns_created_total",
			Help: "Campaigns broadcast by administrators.",
		}),
		CampaignsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campaigns_completed_total",
			Help: "Campaigns whose every recipient reached a terminal outcome.",
		}),
		MembersJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "members_joined_total",
			Help: "Waitlist signups.",
		}),
	}

	reg.MustRegister(
		m.EmailsSent,
		m.EmailsFailed,
		m.EmailAttemptsRetry,
		m.EmailLatency,
		m.CampaignsCreated,
		m.CampaignsCompleted,
		m.MembersJoined,
	)

	return m
}

// RegisterQueueDepth exposes the tiers of d as gauges sampled on scrape.
func RegisterQueueDepth(reg prometheus.Registerer, d queue.DepthReporter) {
	tier := func(name, help string, pick func(h, n, l int) int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return float64(pick(d.Depths()))
		})
	}
	reg.MustRegister(
		tier("queue_depth_high", "Tasks waiting in the high-priority tier.", func(h, _, _ int) int { return h }),
		tier("queue_depth_normal", "Tasks waiting in the normal-priority tier.", func(_, n, _ int) int { return n }),
		tier("queue_depth_low", "Tasks waiting in the low-priority tier.", func(_, _, l int) int { return l }),
	)
}

func (m *Metrics) sent(kind domain.EmailKind, latency time.Duration) {
	m.EmailsSent.WithLabelValues(string(kind)).Inc()
	m.EmailLatency.WithLabelValues(string(kind)).Observe(latency.Seconds())
}

func (m *Metrics) failed(kind domain.EmailKind) {
	m.EmailsFailed.WithLabelValues(string(kind)).Inc()
}

// WorkerHooks returns the callbacks expected by worker.MetricHooks.
func (m *Metrics) WorkerHooks() worker.MetricHooks {
	return worker.MetricHooks{
		OnSent:   m.sent,
		OnFailed: m.failed,
		OnRetry: func(kind domain.EmailKind) {
			m.EmailAttemptsRetry.WithLabelValues(string(kind)).Inc()
		},
	}
}

// ServiceHooks returns the callbacks expected by service.Hooks.
func (m *Metrics) ServiceHooks() service.Hooks {
	return service.Hooks{
		MemberJoined:      m.MembersJoined.Inc,
		CampaignCreated:   m.CampaignsCreated.Inc,
		CampaignCompleted: m.CampaignsCompleted.Inc,
		EmailSent:         m.sent,
		EmailFailed:       m.failed,
	}
}
