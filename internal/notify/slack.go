package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gyaneshwarpardhi/auditlog/internal/config"
	"github.com/gyaneshwarpardhi/auditlog/internal/event"
)

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string `json:"color"`
	Text   string `json:"text"`
	Footer string `json:"footer"`
	TS     int64  `json:"ts"`
}

// SlackChannel posts to a Slack incoming-webhook URL.
type SlackChannel struct {
	*poster
}

// NewSlackChannel returns a SlackChannel. A nil client uses a 30s-timeout default.
func NewSlackChannel(client *http.Client) *SlackChannel {
	return &SlackChannel{poster: newPoster("slack", client)}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Send(ctx context.Context, conf config.NotificationConf, e event.Event) error {
	msg := slackMessage{
		Text: Subject(e),
		Attachments: []slackAttachment{{
			Color:  slackColor(e.Severity),
			Text:   fmt.Sprintf("%s\nIP: %s · User: %s", e.Message, e.SourceAddress, e.Actor),
			Footer: fmt.Sprintf("auditlog · event #%d", e.ID),
			TS:     e.Timestamp.Unix(),
		}},
	}
	return c.post(ctx, conf.Destination, nil, msg)
}

func slackColor(s event.Severity) string {
	switch s {
	case event.SeverityError:
		return "danger"
	case event.SeverityWarning:
		return "warning"
	default:
		return "good"
	}
}
