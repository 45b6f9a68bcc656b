package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookSender posts notifications as JSON to a single configured
// webhook URL (Slack/Discord-compatible incoming-webhook shape).
type WebhookSender struct {
	http *resty.Client
	url  string
}

// NewWebhookSender builds a Sender that posts to url.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		http: resty.New().SetTimeout(10 * time.Second).SetRetryCount(2),
		url:  url,
	}
}

type webhookPayload struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Send posts title/message to the webhook URL.
func (w *WebhookSender) Send(ctx context.Context, title, message string) error {
	resp, err := w.http.R().
		SetContext(ctx).
		SetBody(webhookPayload{Title: title, Text: message}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("post webhook: status %d", resp.StatusCode())
	}
	return nil
}
