package domain

// EmailKind identifies which email a dispatch task delivers.
type EmailKind string

const (
	EmailWelcome        EmailKind = "welcome"
	EmailCampaignUpdate EmailKind = "campaign_update"
)

func (k EmailKind) IsValid() bool {
	switch k {
	case EmailWelcome, EmailCampaignUpdate:
		return true
	}
	return false
}

// Priority controls queue ordering. High is processed first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}
