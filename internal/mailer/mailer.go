// Package mailer renders waitlist emails and hands them to a delivery
// transport (SMTP, an HTTP relay, or the log).
package mailer

import (
	"context"
	"errors"
)

// Message is a fully rendered email ready for delivery.
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
	TextBody string
}

// Transport abstracts delivery to a mail backend. Send must honour ctx:
// callers bound every attempt with a deadline.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

// ErrInvalidMessage is returned by transports for messages without a
// recipient or body.
var ErrInvalidMessage = errors.New("mailer: message has no recipient or body")

func (m *Message) validate() error {
	if m == nil || m.To == "" || (m.HTMLBody == "" && m.TextBody == "") {
		return ErrInvalidMessage
	}
	return nil
}

// Sender identifies the From header of outgoing mail.
type Sender struct {
	Address string
	Name    string
}
