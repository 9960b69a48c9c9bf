package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/notifyhub/waitlist/internal/domain"
)

// KindLimiters holds one token bucket per email kind, so a large campaign
// cannot starve welcome emails of transport capacity.
type KindLimiters struct {
	limiters map[domain.EmailKind]*rate.Limiter
}

// New creates a limiter granting perSecond sends per kind with burst equal
// to the rate. perSecond <= 0 disables limiting.
func New(perSecond int) *KindLimiters {
	limit, burst := rate.Limit(perSecond), perSecond
	if perSecond <= 0 {
		limit, burst = rate.Inf, 1
	}

	return &KindLimiters{
		limiters: map[domain.EmailKind]*rate.Limiter{
			domain.EmailWelcome:        rate.NewLimiter(limit, burst),
			domain.EmailCampaignUpdate: rate.NewLimiter(limit, burst),
		},
	}
}

// Wait blocks until the kind's bucket grants a token or ctx is done.
// Unknown kinds are not limited.
func (kl *KindLimiters) Wait(ctx context.Context, kind domain.EmailKind) error {
	l, ok := kl.limiters[kind]
	if !ok {
		return ctx.Err()
	}
	return l.Wait(ctx)
}
