package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/notifyhub/waitlist/internal/domain"
)

// MockMemberRepository is a hand-written, in-memory implementation of
// MemberRepository used in unit tests.
type MockMemberRepository struct {
	mu      sync.RWMutex
	members map[string]*domain.Member

	// Optional error overrides; set in tests to simulate failure paths.
	CreateErr          error
	GetByIDErr         error
	ListAllErr         error
	MarkWelcomeSentErr error
	IncrementErr       error
}

func NewMockMemberRepository() *MockMemberRepository {
	return &MockMemberRepository{members: make(map[string]*domain.Member)}
}

func (m *MockMemberRepository) Create(_ context.Context, mem *domain.Member) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.members {
		if existing.Email == mem.Email {
			return domain.ErrDuplicateEmail
		}
	}
	clone := *mem
	m.members[mem.ID] = &clone
	return nil
}

func (m *MockMemberRepository) GetByID(_ context.Context, id string) (*domain.Member, error) {
	if m.GetByIDErr != nil {
		return nil, m.GetByIDErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *mem
	return &clone, nil
}

func (m *MockMemberRepository) ListAll(_ context.Context) ([]*domain.Member, error) {
	if m.ListAllErr != nil {
		return nil, m.ListAllErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := m.snapshot(func(*domain.Member) bool { return true })
	sort.Slice(result, func(i, j int) bool { return result[i].JoinedAt.Before(result[j].JoinedAt) })
	return result, nil
}

func (m *MockMemberRepository) List(_ context.Context, f domain.MemberFilter) ([]*domain.Member, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	search := strings.ToLower(f.Search)
	result := m.snapshot(func(mem *domain.Member) bool {
		if search == "" {
			return true
		}
		if strings.Contains(mem.Email, search) {
			return true
		}
		return mem.Name != nil && strings.Contains(strings.ToLower(*mem.Name), search)
	})

	sort.Slice(result, func(i, j int) bool {
		if f.SortDesc {
			return memberLess(result[j], result[i], f.SortBy)
		}
		return memberLess(result[i], result[j], f.SortBy)
	})

	total := len(result)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := total
	if f.Limit > 0 && start+f.Limit < total {
		end = start + f.Limit
	}
	return result[start:end], total, nil
}

func (m *MockMemberRepository) ListPendingWelcome(_ context.Context, limit int) ([]*domain.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := m.snapshot(func(mem *domain.Member) bool { return !mem.WelcomeEmailSent })
	sort.Slice(result, func(i, j int) bool { return result[i].JoinedAt.Before(result[j].JoinedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockMemberRepository) MarkWelcomeSent(_ context.Context, id string, at time.Time) error {
	if m.MarkWelcomeSentErr != nil {
		return m.MarkWelcomeSentErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok {
		return domain.ErrNotFound
	}
	mem.WelcomeEmailSent = true
	mem.WelcomeEmailSentAt = &at
	return nil
}

func (m *MockMemberRepository) IncrementUpdatesReceived(_ context.Context, id string, at time.Time) error {
	if m.IncrementErr != nil {
		return m.IncrementErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok {
		return domain.ErrNotFound
	}
	mem.UpdatesReceived++
	mem.LastUpdateReceivedAt = &at
	return nil
}

func (m *MockMemberRepository) Stats(_ context.Context, now time.Time) (*domain.MemberStats, error) {
	day, week, month := domain.StatsWindows(now)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s domain.MemberStats
	for _, mem := range m.members {
		s.Total++
		if !mem.JoinedAt.Before(day) {
			s.JoinedToday++
		}
		if !mem.JoinedAt.Before(week) {
			s.JoinedThisWeek++
		}
		if !mem.JoinedAt.Before(month) {
			s.JoinedThisMonth++
		}
		if mem.WelcomeEmailSent {
			s.WelcomeSent++
		}
	}
	s.WelcomePending = s.Total - s.WelcomeSent
	return &s, nil
}

// snapshot must be called with m.mu held.
func (m *MockMemberRepository) snapshot(keep func(*domain.Member) bool) []*domain.Member {
	result := make([]*domain.Member, 0, len(m.members))
	for _, mem := range m.members {
		if keep(mem) {
			clone := *mem
			result = append(result, &clone)
		}
	}
	return result
}

func memberLess(a, b *domain.Member, by domain.SortField) bool {
	switch by {
	case domain.SortByEmail:
		return a.Email < b.Email
	case domain.SortByName:
		return a.DisplayName() < b.DisplayName()
	case domain.SortByUpdatesReceived:
		return a.UpdatesReceived < b.UpdatesReceived
	default:
		return a.JoinedAt.Before(b.JoinedAt)
	}
}
