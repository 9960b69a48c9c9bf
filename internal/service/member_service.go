package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/mailer"
	"github.com/notifyhub/waitlist/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// MemberService owns signups and the welcome email. Welcome delivery
// failures are logged and reported as a flag, never as an error: a signup
// that reached the store has succeeded.
type MemberService struct {
	members     repository.MemberRepository
	renderer    *mailer.Renderer
	transport   mailer.Transport
	claims      *WelcomeClaims
	sendTimeout time.Duration
	hooks       Hooks
	logger      *zap.Logger
}

func NewMemberService(
	members repository.MemberRepository,
	renderer *mailer.Renderer,
	transport mailer.Transport,
	claims *WelcomeClaims,
	sendTimeout time.Duration,
	hooks Hooks,
	logger *zap.Logger,
) *MemberService {
	return &MemberService{
		members:     members,
		renderer:    renderer,
		transport:   transport,
		claims:      claims,
		sendTimeout: sendTimeout,
		hooks:       hooks.filled(),
		logger:      logger,
	}
}

// Join validates and stores a signup, then sends the welcome email
// synchronously. The bool reports whether the welcome email went out.
func (s *MemberService) Join(ctx context.Context, req domain.JoinRequest) (*domain.Member, bool, error) {
	ctx, span := tracer.Start(ctx, "MemberService.Join")
	defer span.End()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	m := &domain.Member{
		ID:       uuid.New().String(),
		Email:    req.Email,
		Name:     req.Name,
		JoinedAt: time.Now().UTC(),
	}
	if err := s.members.Create(ctx, m); err != nil {
		return nil, false, err
	}
	s.hooks.MemberJoined()
	span.SetAttributes(attribute.String("member.id", m.ID))

	s.logger.Info("member joined waitlist", zap.String("member_id", m.ID), zap.String("email", m.Email))

	sent := s.SendWelcome(ctx, m)
	return m, sent, nil
}

// SendWelcome delivers the welcome email to m and records it. It returns
// false without sending when another welcome send for m is in flight.
func (s *MemberService) SendWelcome(ctx context.Context, m *domain.Member) bool {
	if !s.claims.Claim(m.ID) {
		s.logger.Debug("welcome email already in flight", zap.String("member_id", m.ID))
		return false
	}
	defer s.claims.Release(m.ID)

	// The request may end before the relay answers; the send must not.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sendTimeout)
	defer cancel()

	log := s.logger.With(zap.String("member_id", m.ID), zap.String("email", m.Email))

	start := time.Now()
	if err := deliverWelcome(ctx, s.renderer, s.transport, m); err != nil {
		s.hooks.EmailFailed(domain.EmailWelcome)
		log.Warn("welcome email failed", zap.Error(err))
		return false
	}
	s.hooks.EmailSent(domain.EmailWelcome, time.Since(start))

	now := time.Now().UTC()
	if err := s.members.MarkWelcomeSent(ctx, m.ID, now); err != nil {
		log.Error("welcome email sent but not recorded", zap.Error(err))
		return true
	}
	m.WelcomeEmailSent = true
	m.WelcomeEmailSentAt = &now

	log.Info("welcome email sent")
	return true
}

// ResendWelcome sends the welcome email again regardless of earlier
// deliveries and returns the refreshed member.
func (s *MemberService) ResendWelcome(ctx context.Context, id string) (*domain.Member, bool, error) {
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	sent := s.SendWelcome(ctx, m)
	return m, sent, nil
}

func (s *MemberService) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	return s.members.GetByID(ctx, id)
}

// List applies paging defaults and returns one page of members plus the
// total matching count.
func (s *MemberService) List(ctx context.Context, f domain.MemberFilter) ([]*domain.Member, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if !f.SortBy.IsValid() {
		f.SortBy = domain.SortByJoinedAt
		f.SortDesc = true
	}
	return s.members.List(ctx, f)
}

// Recent returns the n most recent signups.
func (s *MemberService) Recent(ctx context.Context, n int) ([]*domain.Member, error) {
	members, _, err := s.members.List(ctx, domain.MemberFilter{
		SortBy:   domain.SortByJoinedAt,
		SortDesc: true,
		Page:     1,
		Limit:    n,
	})
	return members, err
}

func (s *MemberService) Stats(ctx context.Context) (*domain.MemberStats, error) {
	return s.members.Stats(ctx, time.Now())
}

var exportHeader = []string{
	"ID", "Email", "Name", "Joined At", "Welcome Email Sent", "Updates Received", "Last Update Received",
}

// Export writes every member as CSV, oldest first.
func (s *MemberService) Export(ctx context.Context, w io.Writer) error {
	members, err := s.members.ListAll(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, m := range members {
		name := ""
		if m.Name != nil {
			name = *m.Name
		}
		lastUpdate := ""
		if m.LastUpdateReceivedAt != nil {
			lastUpdate = m.LastUpdateReceivedAt.UTC().Format(time.DateTime)
		}
		welcome := "No"
		if m.WelcomeEmailSent {
			welcome = "Yes"
		}
		record := []string{
			m.ID,
			m.Email,
			name,
			m.JoinedAt.UTC().Format(time.DateTime),
			welcome,
			strconv.Itoa(m.UpdatesReceived),
			lastUpdate,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func deliverWelcome(ctx context.Context, r *mailer.Renderer, t mailer.Transport, m *domain.Member) error {
	msg, err := r.Welcome(m)
	if err != nil {
		return err
	}
	return t.Send(ctx, msg)
}
