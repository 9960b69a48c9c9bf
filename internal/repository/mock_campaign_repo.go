package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/waitlist/internal/domain"
)

// MockCampaignRepository is an in-memory CampaignRepository. Increments are
// serialised by one mutex, giving the same guarantees as the SQL stores.
type MockCampaignRepository struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign

	CreateErr          error
	IncrementSentErr   error
	IncrementFailedErr error
}

func NewMockCampaignRepository() *MockCampaignRepository {
	return &MockCampaignRepository{campaigns: make(map[string]*domain.Campaign)}
}

func (m *MockCampaignRepository) Create(_ context.Context, c *domain.Campaign) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *c
	m.campaigns[c.ID] = &clone
	return nil
}

func (m *MockCampaignRepository) GetByID(_ context.Context, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (m *MockCampaignRepository) List(_ context.Context, page, limit int) ([]*domain.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.Campaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		clone := *c
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	total := len(result)
	start := (page - 1) * limit
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + limit
	if limit <= 0 || end > total {
		end = total
	}
	return result[start:end], total, nil
}

func (m *MockCampaignRepository) IncrementSent(_ context.Context, id string) (*domain.Campaign, error) {
	if m.IncrementSentErr != nil {
		return nil, m.IncrementSentErr
	}
	return m.increment(id, counterSent)
}

func (m *MockCampaignRepository) IncrementFailed(_ context.Context, id string) (*domain.Campaign, error) {
	if m.IncrementFailedErr != nil {
		return nil, m.IncrementFailedErr
	}
	return m.increment(id, counterFailed)
}

func (m *MockCampaignRepository) increment(id string, col counter) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if c.Settled() {
		return nil, domain.ErrCampaignSettled
	}
	if col == counterSent {
		c.SentCount++
	} else {
		c.FailedCount++
	}
	if c.Settled() {
		c.Status = domain.CampaignCompleted
	}
	c.UpdatedAt = time.Now().UTC()
	clone := *c
	return &clone, nil
}

func (m *MockCampaignRepository) Stats(_ context.Context) (*domain.CampaignStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s domain.CampaignStats
	for _, c := range m.campaigns {
		s.TotalCampaigns++
		s.TotalEmailsSent += c.SentCount
	}
	return &s, nil
}
