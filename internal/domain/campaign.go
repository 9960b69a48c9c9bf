package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxSubjectLength = 255
	maxMessageLength = 5000
)

// CampaignStatus tracks the lifecycle of a broadcast.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

// Campaign is one administrator-initiated broadcast and its delivery ledger.
// RecipientsCount is a snapshot taken when the campaign was created.
type Campaign struct {
	ID              string         `json:"id"`
	Subject         string         `json:"subject"`
	Message         string         `json:"message"`
	StaticContent   string         `json:"static_content,omitempty"`
	RecipientsCount int            `json:"recipients_count"`
	SentCount       int            `json:"sent_count"`
	FailedCount     int            `json:"failed_count"`
	Status          CampaignStatus `json:"status"`
	SentBy          string         `json:"sent_by"`
	SentAt          time.Time      `json:"sent_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (c *Campaign) IsCompleted() bool {
	return c.Status == CampaignCompleted
}

// Settled reports whether every recipient has a terminal outcome.
func (c *Campaign) Settled() bool {
	return c.SentCount+c.FailedCount >= c.RecipientsCount
}

// Pending is the number of recipients without a terminal outcome yet.
func (c *Campaign) Pending() int {
	p := c.RecipientsCount - c.SentCount - c.FailedCount
	if p < 0 {
		return 0
	}
	return p
}

// SuccessRate returns the delivered share as a percentage.
func (c *Campaign) SuccessRate() float64 {
	if c.RecipientsCount == 0 {
		return 0
	}
	return float64(c.SentCount) / float64(c.RecipientsCount) * 100
}

// BroadcastRequest is the inbound payload for an admin broadcast.
type BroadcastRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (r *BroadcastRequest) Validate() error {
	subject := strings.TrimSpace(r.Subject)
	if subject == "" || utf8.RuneCountInString(subject) > maxSubjectLength {
		return ErrInvalidSubject
	}
	message := strings.TrimSpace(r.Message)
	if message == "" || utf8.RuneCountInString(r.Message) > maxMessageLength {
		return ErrInvalidMessage
	}
	return nil
}

// CampaignStats aggregates every campaign ever sent.
type CampaignStats struct {
	TotalCampaigns  int `json:"total_email_updates"`
	TotalEmailsSent int `json:"total_emails_sent"`
}
