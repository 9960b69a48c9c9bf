package repository

import (
	"context"
	"sync"
	"time"

	"github.com/notifyhub/waitlist/internal/domain"
)

type MockAdminRepository struct {
	mu      sync.RWMutex
	admins  map[string]*domain.Admin
	revoked map[string]time.Time
}

func NewMockAdminRepository() *MockAdminRepository {
	return &MockAdminRepository{
		admins:  make(map[string]*domain.Admin),
		revoked: make(map[string]time.Time),
	}
}

// NewMockStore bundles fresh in-memory repositories.
func NewMockStore() (*Store, *MockMemberRepository, *MockCampaignRepository, *MockAdminRepository) {
	members := NewMockMemberRepository()
	campaigns := NewMockCampaignRepository()
	admins := NewMockAdminRepository()
	return &Store{Members: members, Campaigns: campaigns, Admins: admins}, members, campaigns, admins
}

func (m *MockAdminRepository) Create(_ context.Context, a *domain.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.admins {
		if existing.Email == a.Email {
			return domain.ErrDuplicateEmail
		}
	}
	clone := *a
	m.admins[a.ID] = &clone
	return nil
}

func (m *MockAdminRepository) GetByID(_ context.Context, id string) (*domain.Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.admins[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (m *MockAdminRepository) GetByEmail(_ context.Context, email string) (*domain.Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.admins {
		if a.Email == email {
			clone := *a
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockAdminRepository) RevokeToken(_ context.Context, tokenID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, exp := range m.revoked {
		if exp.Before(now) {
			delete(m.revoked, id)
		}
	}
	if _, ok := m.revoked[tokenID]; !ok {
		m.revoked[tokenID] = expiresAt
	}
	return nil
}

func (m *MockAdminRepository) IsTokenRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.revoked[tokenID]
	return ok, nil
}
