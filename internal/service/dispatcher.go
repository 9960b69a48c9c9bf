package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/notifyhub/waitlist/internal/mailer"
	"github.com/notifyhub/waitlist/internal/queue"
	"github.com/notifyhub/waitlist/internal/repository"
	"github.com/notifyhub/waitlist/internal/worker"
)

// CampaignDispatcher delivers campaign_update tasks and settles the
// campaign counters.
type CampaignDispatcher struct {
	members   repository.MemberRepository
	campaigns repository.CampaignRepository
	renderer  *mailer.Renderer
	transport mailer.Transport
	hooks     Hooks
	logger    *zap.Logger
}

func NewCampaignDispatcher(
	members repository.MemberRepository,
	campaigns repository.CampaignRepository,
	renderer *mailer.Renderer,
	transport mailer.Transport,
	hooks Hooks,
	logger *zap.Logger,
) *CampaignDispatcher {
	return &CampaignDispatcher{
		members:   members,
		campaigns: campaigns,
		renderer:  renderer,
		transport: transport,
		hooks:     hooks.filled(),
		logger:    logger,
	}
}

func (d *CampaignDispatcher) Attempt(ctx context.Context, t queue.Task) error {
	ctx, span := tracer.Start(ctx, "CampaignDispatcher.Attempt")
	defer span.End()
	span.SetAttributes(
		attribute.String("campaign.id", t.CampaignID),
		attribute.String("member.id", t.MemberID),
		attribute.Int("attempt", t.Attempt+1),
	)

	err := d.attempt(ctx, t)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (d *CampaignDispatcher) attempt(ctx context.Context, t queue.Task) error {
	m, err := d.members.GetByID(ctx, t.MemberID)
	if err != nil {
		return fmt.Errorf("load member: %w", err)
	}
	c, err := d.campaigns.GetByID(ctx, t.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}

	msg, err := d.renderer.Update(m, c)
	if err != nil {
		return err
	}
	return d.transport.Send(ctx, msg)
}

func (d *CampaignDispatcher) Succeeded(ctx context.Context, t queue.Task) {
	log := d.logger.With(zap.String("campaign_id", t.CampaignID), zap.String("member_id", t.MemberID))

	recordSuccess(ctx, d.campaigns, t.CampaignID, d.hooks, log)
	if err := d.members.IncrementUpdatesReceived(ctx, t.MemberID, time.Now().UTC()); err != nil {
		log.Error("could not record update on member", zap.Error(err))
	}
}

func (d *CampaignDispatcher) Failed(ctx context.Context, t queue.Task, err error) {
	log := d.logger.With(zap.String("campaign_id", t.CampaignID), zap.String("member_id", t.MemberID))
	if m, lookupErr := d.members.GetByID(ctx, t.MemberID); lookupErr == nil {
		log = log.With(zap.String("email", m.Email))
	}
	log.Error("campaign email failed", zap.Error(err))

	recordFailure(ctx, d.campaigns, t.CampaignID, d.hooks, log)
}

// WelcomeDispatcher delivers welcome tasks queued by the sweeper.
type WelcomeDispatcher struct {
	members   repository.MemberRepository
	renderer  *mailer.Renderer
	transport mailer.Transport
	claims    *WelcomeClaims
	logger    *zap.Logger
}

func NewWelcomeDispatcher(
	members repository.MemberRepository,
	renderer *mailer.Renderer,
	transport mailer.Transport,
	claims *WelcomeClaims,
	logger *zap.Logger,
) *WelcomeDispatcher {
	return &WelcomeDispatcher{
		members:   members,
		renderer:  renderer,
		transport: transport,
		claims:    claims,
		logger:    logger,
	}
}

// Attempt skips members whose welcome email went out since the task was
// queued.
func (d *WelcomeDispatcher) Attempt(ctx context.Context, t queue.Task) error {
	m, err := d.members.GetByID(ctx, t.MemberID)
	if err != nil {
		return fmt.Errorf("load member: %w", err)
	}
	if m.WelcomeEmailSent {
		return nil
	}
	return deliverWelcome(ctx, d.renderer, d.transport, m)
}

func (d *WelcomeDispatcher) Succeeded(ctx context.Context, t queue.Task) {
	defer d.claims.Release(t.MemberID)

	m, err := d.members.GetByID(ctx, t.MemberID)
	if err != nil {
		d.logger.Error("could not reload member", zap.String("member_id", t.MemberID), zap.Error(err))
		return
	}
	if m.WelcomeEmailSent {
		return
	}
	if err := d.members.MarkWelcomeSent(ctx, m.ID, time.Now().UTC()); err != nil {
		d.logger.Error("welcome email sent but not recorded", zap.String("member_id", m.ID), zap.Error(err))
		return
	}
	d.logger.Info("welcome email sent", zap.String("member_id", m.ID), zap.String("email", m.Email))
}

func (d *WelcomeDispatcher) Failed(_ context.Context, t queue.Task, err error) {
	defer d.claims.Release(t.MemberID)
	d.logger.Warn("welcome email failed", zap.String("member_id", t.MemberID), zap.Error(err))
}

// Abandoned hands the member back to the sweeper when shutdown drops the
// task before it resolves.
func (d *WelcomeDispatcher) Abandoned(_ context.Context, t queue.Task) {
	d.claims.Release(t.MemberID)
	d.logger.Info("welcome task dropped, claim released", zap.String("member_id", t.MemberID))
}

var (
	_ worker.Handler   = (*CampaignDispatcher)(nil)
	_ worker.Handler   = (*WelcomeDispatcher)(nil)
	_ worker.Abandoner = (*WelcomeDispatcher)(nil)
	_ worker.Claimer   = (*WelcomeClaims)(nil)
)
