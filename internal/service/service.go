package service

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/notifyhub/waitlist/internal/domain"
)

var tracer = otel.Tracer("github.com/notifyhub/waitlist/internal/service")

// Hooks carries the metric callbacks injected by main. Nil fields are no-ops.
type Hooks struct {
	MemberJoined      func()
	CampaignCreated   func()
	CampaignCompleted func()
	EmailSent         func(kind domain.EmailKind, latency time.Duration)
	EmailFailed       func(kind domain.EmailKind)
}

func (h Hooks) filled() Hooks {
	if h.MemberJoined == nil {
		h.MemberJoined = func() {}
	}
	if h.CampaignCreated == nil {
		h.CampaignCreated = func() {}
	}
	if h.CampaignCompleted == nil {
		h.CampaignCompleted = func() {}
	}
	if h.EmailSent == nil {
		h.EmailSent = func(domain.EmailKind, time.Duration) {}
	}
	if h.EmailFailed == nil {
		h.EmailFailed = func(domain.EmailKind) {}
	}
	return h
}

// WelcomeClaims is the in-flight guard for welcome emails. A member is
// claimed from the moment a welcome send starts or is queued until it
// resolves, so signup, resend and the sweeper never overlap.
type WelcomeClaims struct {
	m sync.Map
}

func NewWelcomeClaims() *WelcomeClaims {
	return &WelcomeClaims{}
}

func (c *WelcomeClaims) Claim(memberID string) bool {
	_, taken := c.m.LoadOrStore(memberID, struct{}{})
	return !taken
}

func (c *WelcomeClaims) Release(memberID string) {
	c.m.Delete(memberID)
}
