package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/event"
)

// WebhookPayload is the JSON document posted to generic webhooks.
type WebhookPayload struct {
	ID            int64     `json:"id"`
	Type          string    `json:"type"`
	Message       string    `json:"message"`
	Severity      string    `json:"severity"`
	SourceAddress string    `json:"sourceAddress"`
	Actor         string    `json:"actor"`
	Timestamp     time.Time `json:"timestamp"`
}

// WebhookChannel posts events as JSON to an arbitrary URL.
type WebhookChannel struct {
	*poster
}

// NewWebhookChannel returns a WebhookChannel. A nil client uses a 30s-timeout default.
func NewWebhookChannel(client *http.Client) *WebhookChannel {
	return &WebhookChannel{poster: newPoster("webhook", client)}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, conf config.NotificationConf, e event.Event) error {
	return c.post(ctx, conf.Destination, conf.WebhookHeaders, WebhookPayload{
		ID:            e.ID,
		Type:          e.Type,
		Message:       e.Message,
		Severity:      string(e.Severity),
		SourceAddress: e.SourceAddress,
		Actor:         e.Actor,
		Timestamp:     e.Timestamp.UTC(),
	})
}
