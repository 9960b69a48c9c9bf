package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookRequest is the JSON body posted to the mail relay.
type WebhookRequest struct {
	From     string `json:"from"`
	FromName string `json:"from_name,omitempty"`
	To       string `json:"to"`
	ToName   string `json:"to_name,omitempty"`
	Subject  string `json:"subject"`
	HTML     string `json:"html,omitempty"`
	Text     string `json:"text,omitempty"`
}

// WebhookTransport delivers messages by POSTing them to an HTTP relay.
// The URL is injected from config so tests can point to httptest.
type WebhookTransport struct {
	url        string
	from       Sender
	httpClient *http.Client
}

func NewWebhookTransport(url string, timeout time.Duration, from Sender) *WebhookTransport {
	return &WebhookTransport{
		url:  url,
		from: from,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts msg and treats any 2xx response as accepted.
func (t *WebhookTransport) Send(ctx context.Context, msg *Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	body, err := json.Marshal(WebhookRequest{
		From:     t.from.Address,
		FromName: t.from.Name,
		To:       msg.To,
		ToName:   msg.ToName,
		Subject:  msg.Subject,
		HTML:     msg.HTMLBody,
		Text:     msg.TextBody,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected relay status: %d", resp.StatusCode)
	}
	return nil
}

var _ Transport = (*WebhookTransport)(nil)
