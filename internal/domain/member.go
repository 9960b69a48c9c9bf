package domain

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxEmailLength = 255
	maxNameLength  = 255
)

// Member is a single waitlist signup.
type Member struct {
	ID                   string     `json:"id"`
	Email                string     `json:"email"`
	Name                 *string    `json:"name,omitempty"`
	JoinedAt             time.Time  `json:"joined_at"`
	WelcomeEmailSent     bool       `json:"welcome_email_sent"`
	WelcomeEmailSentAt   *time.Time `json:"welcome_email_sent_at,omitempty"`
	UpdatesReceived      int        `json:"updates_received"`
	LastUpdateReceivedAt *time.Time `json:"last_update_received_at,omitempty"`
}

// DisplayName is the greeting used in emails.
func (m *Member) DisplayName() string {
	if m.Name == nil || strings.TrimSpace(*m.Name) == "" {
		return "there"
	}
	return *m.Name
}

// JoinRequest is the inbound payload for a public signup.
type JoinRequest struct {
	Email string  `json:"email"`
	Name  *string `json:"name,omitempty"`
}

// Normalize trims whitespace and lower-cases the email so uniqueness is
// checked on the canonical form. An all-blank name becomes nil.
func (r *JoinRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			r.Name = nil
		} else {
			r.Name = &name
		}
	}
}

func (r *JoinRequest) Validate() error {
	if !ValidEmail(r.Email) {
		return ErrInvalidEmail
	}
	if r.Name != nil && utf8.RuneCountInString(*r.Name) > maxNameLength {
		return ErrInvalidName
	}
	return nil
}

// ValidEmail reports whether s is a bare RFC 5322 address (no display name).
func ValidEmail(s string) bool {
	if s == "" || len(s) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && addr.Name == ""
}

// SortField is a whitelisted column for member listings.
type SortField string

const (
	SortByJoinedAt        SortField = "joined_at"
	SortByEmail           SortField = "email"
	SortByName            SortField = "name"
	SortByUpdatesReceived SortField = "updates_received"
)

func (f SortField) IsValid() bool {
	switch f {
	case SortByJoinedAt, SortByEmail, SortByName, SortByUpdatesReceived:
		return true
	}
	return false
}

// MemberFilter holds query parameters for the admin member listing.
type MemberFilter struct {
	Search   string
	SortBy   SortField
	SortDesc bool
	Page     int
	Limit    int
}

// Offset returns the row offset for the filter's page.
func (f MemberFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// MemberStats summarises signups relative to a reference instant.
type MemberStats struct {
	Total           int `json:"total"`
	JoinedToday     int `json:"joined_today"`
	JoinedThisWeek  int `json:"joined_this_week"`
	JoinedThisMonth int `json:"joined_this_month"`
	WelcomeSent     int `json:"welcome_emails_sent"`
	WelcomePending  int `json:"pending_welcome_emails"`
}

// StatsWindows returns the UTC start of the day, ISO week (Monday) and month
// containing now.
func StatsWindows(now time.Time) (day, week, month time.Time) {
	now = now.UTC()
	day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	week = day.AddDate(0, 0, -offset)
	month = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return day, week, month
}
