package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/waitlist/internal/mailer"
	"github.com/notifyhub/waitlist/internal/repository"
	"github.com/notifyhub/waitlist/internal/service"
)

var errRelayDown = errors.New("relay unavailable")

// fakeTransport records messages and fails for configured recipients.
type fakeTransport struct {
	mu    sync.Mutex
	fail  map[string]bool
	sent  []*mailer.Message
	calls map[string]int
}

func newFakeTransport(failing ...string) *fakeTransport {
	ft := &fakeTransport{fail: map[string]bool{}, calls: map[string]int{}}
	for _, email := range failing {
		ft.fail[email] = true
	}
	return ft
}

func (ft *fakeTransport) Send(ctx context.Context, msg *mailer.Message) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.calls[msg.To]++
	if ft.fail[msg.To] {
		return errRelayDown
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ft.sent = append(ft.sent, msg)
	return nil
}

func (ft *fakeTransport) callsTo(email string) int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.calls[email]
}

func (ft *fakeTransport) delivered() []*mailer.Message {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]*mailer.Message(nil), ft.sent...)
}

type fixture struct {
	members   *repository.MockMemberRepository
	campaigns *repository.MockCampaignRepository
	admins    *repository.MockAdminRepository
	transport *fakeTransport
	renderer  *mailer.Renderer
	claims    *service.WelcomeClaims
	memberSvc *service.MemberService
}

func newFixture(failing ...string) *fixture {
	_, members, campaigns, admins := repository.NewMockStore()
	f := &fixture{
		members:   members,
		campaigns: campaigns,
		admins:    admins,
		transport: newFakeTransport(failing...),
		renderer:  mailer.NewRenderer("Acme"),
		claims:    service.NewWelcomeClaims(),
	}
	f.memberSvc = service.NewMemberService(members, f.renderer, f.transport, f.claims,
		time.Second, service.Hooks{}, zap.NewNop())
	return f
}
