package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/queue"
	"github.com/notifyhub/waitlist/internal/repository"
)

// Claimer tracks members whose welcome email is already queued or being
// sent. Claim reports false when the member is taken.
type Claimer interface {
	Claim(memberID string) bool
	Release(memberID string)
}

// WelcomeSweeper periodically enqueues welcome emails for members whose
// signup-time delivery failed. The schedule is a standard five-field cron
// expression or a descriptor such as "@every 30m".
type WelcomeSweeper struct {
	members  repository.MemberRepository
	q        queue.Queue
	claims   Claimer
	schedule string
	batch    int
	logger   *zap.Logger
}

func NewWelcomeSweeper(
	members repository.MemberRepository,
	q queue.Queue,
	claims Claimer,
	schedule string,
	batch int,
	logger *zap.Logger,
) *WelcomeSweeper {
	return &WelcomeSweeper{
		members:  members,
		q:        q,
		claims:   claims,
		schedule: schedule,
		batch:    batch,
		logger:   logger,
	}
}

// Run starts the cron scheduler and blocks until ctx is cancelled and any
// running sweep has finished.
func (s *WelcomeSweeper) Run(ctx context.Context) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	logger := cronLogger{s.logger.Sugar()}

	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("welcome sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("parse welcome sweep schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.logger.Info("welcome sweeper started", zap.String("schedule", s.schedule))

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("welcome sweeper stopped")
	return nil
}

// Sweep enqueues one batch of pending welcome emails at high priority and
// returns how many were queued.
func (s *WelcomeSweeper) Sweep(ctx context.Context) (int, error) {
	pending, err := s.members.ListPendingWelcome(ctx, s.batch)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, m := range pending {
		if !s.claims.Claim(m.ID) {
			continue
		}
		err := s.q.Enqueue(ctx, queue.Task{
			ID:         uuid.NewString(),
			Kind:       domain.EmailWelcome,
			MemberID:   m.ID,
			Priority:   domain.PriorityHigh,
			EnqueuedAt: time.Now().UTC(),
		})
		if err != nil {
			s.claims.Release(m.ID)
			s.logger.Warn("could not enqueue welcome email", zap.String("member_id", m.ID), zap.Error(err))
			continue
		}
		queued++
	}

	if queued > 0 {
		s.logger.Info("queued pending welcome emails", zap.Int("count", queued))
	}
	return queued, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
