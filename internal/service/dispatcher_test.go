package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/queue"
	"github.com/notifyhub/waitlist/internal/service"
)

func welcomeTask(memberID string) queue.Task {
	return queue.Task{ID: "t-" + memberID, Kind: domain.EmailWelcome, MemberID: memberID, Priority: domain.PriorityHigh}
}

func TestWelcomeDispatcher_DeliversAndRecords(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := &domain.Member{ID: "m1", Email: "ada@example.com", JoinedAt: time.Now()}
	if err := f.members.Create(ctx, m); err != nil {
		t.Fatal(err)
	}
	d := service.NewWelcomeDispatcher(f.members, f.renderer, f.transport, f.claims, zap.NewNop())
	f.claims.Claim(m.ID)

	if err := d.Attempt(ctx, welcomeTask(m.ID)); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	d.Succeeded(ctx, welcomeTask(m.ID))

	stored, _ := f.members.GetByID(ctx, m.ID)
	if !stored.WelcomeEmailSent {
		t.Fatal("expected welcome flag to be set")
	}
	if !f.claims.Claim(m.ID) {
		t.Fatal("claim should be released after success")
	}
}

func TestWelcomeDispatcher_SkipsAlreadyWelcomed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := &domain.Member{ID: "m1", Email: "ada@example.com", WelcomeEmailSent: true}
	if err := f.members.Create(ctx, m); err != nil {
		t.Fatal(err)
	}
	d := service.NewWelcomeDispatcher(f.members, f.renderer, f.transport, f.claims, zap.NewNop())

	if err := d.Attempt(ctx, welcomeTask(m.ID)); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if f.transport.callsTo("ada@example.com") != 0 {
		t.Fatal("already-welcomed member must not be emailed again")
	}
}

func TestWelcomeDispatcher_FailedReleasesClaim(t *testing.T) {
	f := newFixture()
	d := service.NewWelcomeDispatcher(f.members, f.renderer, f.transport, f.claims, zap.NewNop())
	f.claims.Claim("m1")

	d.Failed(context.Background(), welcomeTask("m1"), errors.New("boom"))
	if !f.claims.Claim("m1") {
		t.Fatal("claim should be released after failure")
	}
}

func TestWelcomeDispatcher_AbandonedReleasesClaim(t *testing.T) {
	f := newFixture()
	d := service.NewWelcomeDispatcher(f.members, f.renderer, f.transport, f.claims, zap.NewNop())
	f.claims.Claim("m1")

	d.Abandoned(context.Background(), welcomeTask("m1"))
	if !f.claims.Claim("m1") {
		t.Fatal("claim should be released when the task is dropped")
	}
}

func TestCampaignDispatcher_SettledCampaignIsNotOvercounted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := &domain.Member{ID: "m1", Email: "ada@example.com"}
	_ = f.members.Create(ctx, m)
	c := &domain.Campaign{ID: "c1", Subject: "s", Message: "m", RecipientsCount: 1, Status: domain.CampaignSending}
	_ = f.campaigns.Create(ctx, c)

	d := service.NewCampaignDispatcher(f.members, f.campaigns, f.renderer, f.transport, service.Hooks{}, zap.NewNop())
	task := queue.Task{ID: "t1", Kind: domain.EmailCampaignUpdate, MemberID: m.ID, CampaignID: c.ID}

	if err := d.Attempt(ctx, task); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	d.Succeeded(ctx, task)
	d.Failed(ctx, task, errors.New("late duplicate"))

	got, _ := f.campaigns.GetByID(ctx, c.ID)
	if got.SentCount != 1 || got.FailedCount != 0 || !got.IsCompleted() {
		t.Fatalf("expected 1/0 completed, got %d/%d %s", got.SentCount, got.FailedCount, got.Status)
	}

	msgs := f.transport.delivered()
	if len(msgs) != 1 || msgs[0].Subject != "s" {
		t.Fatalf("expected the campaign email, got %+v", msgs)
	}
}
