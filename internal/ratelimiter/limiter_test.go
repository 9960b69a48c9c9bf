package ratelimiter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/ratelimiter"
)

func TestWait_BurstThenBlocks(t *testing.T) {
	l := ratelimiter.New(2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Wait(ctx, domain.EmailWelcome); err != nil {
			t.Fatalf("burst token %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, domain.EmailWelcome); err == nil {
		t.Fatal("expected third immediate token to be refused")
	}
}

func TestWait_KindsAreIndependent(t *testing.T) {
	l := ratelimiter.New(1)
	ctx := context.Background()

	if err := l.Wait(ctx, domain.EmailCampaignUpdate); err != nil {
		t.Fatalf("campaign token: %v", err)
	}
	if err := l.Wait(ctx, domain.EmailWelcome); err != nil {
		t.Fatalf("welcome should not share the campaign bucket: %v", err)
	}
}

func TestWait_Disabled(t *testing.T) {
	l := ratelimiter.New(0)
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background(), domain.EmailCampaignUpdate); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestWait_CancelledContext(t *testing.T) {
	l := ratelimiter.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx, domain.EmailWelcome); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
