package domain

import "time"

// Admin is an operator allowed to broadcast campaigns.
type Admin struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// LoginRequest is the inbound payload for admin login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	if !ValidEmail(r.Email) {
		return ErrInvalidEmail
	}
	if len(r.Password) < 6 {
		return ErrInvalidPassword
	}
	return nil
}
