package domain

import (
	"errors"
	"fmt"
)

// ErrValidation is the parent of every input validation error. Handlers test
// for it with errors.Is and answer 422.
var ErrValidation = errors.New("validation failed")

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrInvalidEmail    = fmt.Errorf("%w: email must be a valid address of at most 255 characters", ErrValidation)
	ErrInvalidName     = fmt.Errorf("%w: name must be at most 255 characters", ErrValidation)
	ErrInvalidSubject  = fmt.Errorf("%w: subject must be between 1 and 255 characters", ErrValidation)
	ErrInvalidMessage  = fmt.Errorf("%w: message must be between 1 and 5000 characters", ErrValidation)
	ErrInvalidPassword = fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)

	ErrNotFound           = errors.New("not found")
	ErrDuplicateEmail     = errors.New("email is already on the waitlist")
	ErrNoRecipients       = errors.New("no waitlist members to send updates to")
	ErrCampaignSettled    = errors.New("campaign has already accounted for every recipient")
	ErrDeliveryExhausted  = errors.New("delivery attempts exhausted")
	ErrQueueFull          = errors.New("queue is at capacity, try again later")
	ErrQueueClosed        = errors.New("queue is closed")
	ErrInvalidCredentials = errors.New("the provided credentials are incorrect")
	ErrAdminInactive      = errors.New("account is inactive")
	ErrUnauthorized       = errors.New("admin authentication required")
)
