package mailer

import (
	"context"

	"go.uber.org/zap"
)

// LogTransport records messages in the log instead of delivering them.
// Used for local development.
type LogTransport struct {
	log *zap.Logger
}

func NewLogTransport(log *zap.Logger) *LogTransport {
	return &LogTransport{log: log}
}

func (t *LogTransport) Send(ctx context.Context, msg *Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.log.Info("email delivered to log",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTMLBody)),
		zap.Int("text_bytes", len(msg.TextBody)),
	)
	return nil
}

var _ Transport = (*LogTransport)(nil)
