package service

import (
	"context"

	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/repository"
)

const dashboardRecent = 5

// Dashboard is the admin overview.
type Dashboard struct {
	Members         *domain.MemberStats   `json:"members"`
	Campaigns       *domain.CampaignStats `json:"campaigns"`
	RecentMembers   []*domain.Member      `json:"recent_signups"`
	RecentCampaigns []*domain.Campaign    `json:"recent_campaigns"`
}

// CampaignService serves campaign history and the dashboard.
type CampaignService struct {
	campaigns repository.CampaignRepository
	members   *MemberService
}

func NewCampaignService(campaigns repository.CampaignRepository, members *MemberService) *CampaignService {
	return &CampaignService{campaigns: campaigns, members: members}
}

func (s *CampaignService) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.campaigns.GetByID(ctx, id)
}

// List returns one page of campaigns, newest first.
func (s *CampaignService) List(ctx context.Context, page, limit int) ([]*domain.Campaign, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return s.campaigns.List(ctx, page, limit)
}

func (s *CampaignService) Dashboard(ctx context.Context) (*Dashboard, error) {
	memberStats, err := s.members.Stats(ctx)
	if err != nil {
		return nil, err
	}
	campaignStats, err := s.campaigns.Stats(ctx)
	if err != nil {
		return nil, err
	}
	recentMembers, err := s.members.Recent(ctx, dashboardRecent)
	if err != nil {
		return nil, err
	}
	recentCampaigns, _, err := s.campaigns.List(ctx, 1, dashboardRecent)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Members:         memberStats,
		Campaigns:       campaignStats,
		RecentMembers:   recentMembers,
		RecentCampaigns: recentCampaigns,
	}, nil
}
