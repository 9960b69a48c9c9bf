package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/queue"
	"github.com/notifyhub/waitlist/internal/repository"
)

// BroadcastService fans a campaign out to every member. Broadcast returns
// once the campaign is recorded; tasks are queued by a background fan-out
// and workers settle the campaign counters.
type BroadcastService struct {
	members       repository.MemberRepository
	campaigns     repository.CampaignRepository
	q             queue.Queue
	staticContent string
	hooks         Hooks
	logger        *zap.Logger

	// base bounds every fan-out; Close cancels it.
	base   context.Context
	stop   context.CancelFunc
	mu     sync.Mutex // guards closed and fanout.Add
	closed bool
	fanout sync.WaitGroup
}

func NewBroadcastService(
	members repository.MemberRepository,
	campaigns repository.CampaignRepository,
	q queue.Queue,
	staticContent string,
	hooks Hooks,
	logger *zap.Logger,
) *BroadcastService {
	base, stop := context.WithCancel(context.Background())
	return &BroadcastService{
		members:       members,
		campaigns:     campaigns,
		q:             q,
		staticContent: staticContent,
		hooks:         hooks.filled(),
		logger:        logger,
		base:          base,
		stop:          stop,
	}
}

// Broadcast creates a campaign addressed to the current member list and
// starts queueing one task per member. An empty list yields
// domain.ErrNoRecipients and no campaign.
func (s *BroadcastService) Broadcast(ctx context.Context, req domain.BroadcastRequest, adminID string) (*domain.Campaign, error) {
	ctx, span := tracer.Start(ctx, "BroadcastService.Broadcast")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	members, err := s.members.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, domain.ErrNoRecipients
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrQueueClosed
	}

	now := time.Now().UTC()
	c := &domain.Campaign{
		ID:              uuid.New().String(),
		Subject:         strings.TrimSpace(req.Subject),
		Message:         req.Message,
		StaticContent:   s.staticContent,
		RecipientsCount: len(members),
		Status:          domain.CampaignSending,
		SentBy:          adminID,
		SentAt:          now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.hooks.CampaignCreated()
	span.SetAttributes(
		attribute.String("campaign.id", c.ID),
		attribute.Int("campaign.recipients", c.RecipientsCount),
	)
	s.logger.Info("campaign created",
		zap.String("campaign_id", c.ID),
		zap.String("subject", c.Subject),
		zap.Int("recipients", c.RecipientsCount),
	)

	s.fanout.Add(1)
	go s.enqueueAll(c.ID, members)

	return c, nil
}

// enqueueAll blocks on a full queue for as long as it takes, so campaigns
// larger than the queue buffer are fed in as workers drain it. Only a queue
// that refuses a task outright turns it into a failure; shutdown leaves the
// remaining members unqueued.
func (s *BroadcastService) enqueueAll(campaignID string, members []*domain.Member) {
	defer s.fanout.Done()
	log := s.logger.With(zap.String("campaign_id", campaignID))

	queued, rejected := 0, 0
	for i, m := range members {
		err := s.q.Enqueue(s.base, queue.Task{
			ID:         uuid.New().String(),
			Kind:       domain.EmailCampaignUpdate,
			MemberID:   m.ID,
			CampaignID: campaignID,
			Priority:   domain.PriorityNormal,
			EnqueuedAt: time.Now().UTC(),
		})
		switch {
		case err == nil:
			queued++
		case s.base.Err() != nil:
			log.Warn("campaign fan-out stopped by shutdown",
				zap.Int("queued", queued), zap.Int("not_queued", len(members)-i))
			return
		default:
			rejected++
			log.Error("queue refused campaign email",
				zap.String("member_id", m.ID), zap.String("email", m.Email), zap.Error(err))
			recordFailure(context.Background(), s.campaigns, campaignID, s.hooks, log)
		}
	}

	log.Info("campaign queued", zap.Int("queued", queued), zap.Int("rejected", rejected))
}

// Wait blocks until every fan-out started so far has finished.
func (s *BroadcastService) Wait() {
	s.fanout.Wait()
}

// Close refuses new broadcasts, stops fan-outs still blocked on the queue
// and waits for them to return.
func (s *BroadcastService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.stop()
	s.fanout.Wait()
}

// recordFailure counts one terminal failure against the campaign.
func recordFailure(ctx context.Context, campaigns repository.CampaignRepository, id string, hooks Hooks, log *zap.Logger) {
	c, err := campaigns.IncrementFailed(ctx, id)
	switch {
	case errors.Is(err, domain.ErrCampaignSettled):
		log.Warn("campaign already settled, failure not counted")
	case err != nil:
		log.Error("could not record campaign failure", zap.Error(err))
	case c.IsCompleted():
		hooks.CampaignCompleted()
		log.Info("campaign completed", zap.Int("sent", c.SentCount), zap.Int("failed", c.FailedCount))
	}
}

// recordSuccess counts one delivery against the campaign.
func recordSuccess(ctx context.Context, campaigns repository.CampaignRepository, id string, hooks Hooks, log *zap.Logger) {
	c, err := campaigns.IncrementSent(ctx, id)
	switch {
	case errors.Is(err, domain.ErrCampaignSettled):
		log.Warn("campaign already settled, delivery not counted")
	case err != nil:
		log.Error("could not record campaign delivery", zap.Error(err))
	case c.IsCompleted():
		hooks.CampaignCompleted()
		log.Info("campaign completed", zap.Int("sent", c.SentCount), zap.Int("failed", c.FailedCount))
	}
}
