package repository

import (
	"context"
	"time"

	"github.com/notifyhub/waitlist/internal/domain"
)

// MemberRepository defines all persistence operations for waitlist members.
// Implementations: pgx (pg_member_repo.go), SQLite (sqlite_member_repo.go)
// and a hand-written in-memory mock for tests (mock_member_repo.go).
type MemberRepository interface {
	// Create inserts m. It returns domain.ErrDuplicateEmail when the email
	// is already registered.
	Create(ctx context.Context, m *domain.Member) error
	GetByID(ctx context.Context, id string) (*domain.Member, error)
	// ListAll returns every member in one consistent read.
	ListAll(ctx context.Context) ([]*domain.Member, error)
	List(ctx context.Context, filter domain.MemberFilter) ([]*domain.Member, int, error)
	ListPendingWelcome(ctx context.Context, limit int) ([]*domain.Member, error)
	MarkWelcomeSent(ctx context.Context, id string, at time.Time) error
	// IncrementUpdatesReceived atomically adds one to updates_received and
	// stamps last_update_received_at.
	IncrementUpdatesReceived(ctx context.Context, id string, at time.Time) error
	Stats(ctx context.Context, now time.Time) (*domain.MemberStats, error)
}

// CampaignRepository defines all persistence operations for campaigns.
type CampaignRepository interface {
	Create(ctx context.Context, c *domain.Campaign) error
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, page, limit int) ([]*domain.Campaign, int, error)

	// IncrementSent and IncrementFailed bump one counter and flip the status
	// to completed when sent+failed reaches recipients_count, as a single
	// linearizable step. They never push the sum past recipients_count:
	// such calls return domain.ErrCampaignSettled.
	IncrementSent(ctx context.Context, id string) (*domain.Campaign, error)
	IncrementFailed(ctx context.Context, id string) (*domain.Campaign, error)

	Stats(ctx context.Context) (*domain.CampaignStats, error)
}

// AdminRepository defines persistence for administrator accounts.
type AdminRepository interface {
	Create(ctx context.Context, a *domain.Admin) error
	GetByID(ctx context.Context, id string) (*domain.Admin, error)
	GetByEmail(ctx context.Context, email string) (*domain.Admin, error)

	// RevokeToken denylists a token id until expiresAt. Revoking twice is
	// not an error. Expired entries are pruned as a side effect.
	RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Store bundles the repositories of one backend.
type Store struct {
	Members   MemberRepository
	Campaigns CampaignRepository
	Admins    AdminRepository
}

// counter names the campaign column an increment targets.
type counter string

const (
	counterSent   counter = "sent_count"
	counterFailed counter = "failed_count"
)
