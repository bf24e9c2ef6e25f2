package alerts

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

// SlackNotifier mirrors pushes into a Slack channel, typically a clinic or
// family on-call room.
type SlackNotifier struct {
	webhookURL string
	channel    string
	client     *resty.Client
}

// NewSlackNotifier creates a Slack incoming-webhook notifier.
func NewSlackNotifier(webhookURL, channel string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		channel:    channel,
		client:     newChannelClient(""),
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

func severityColor(sev model.Severity) string {
	switch sev {
	case model.SeverityWarning:
		return "#ff9900"
	case model.SeverityUrgent:
		return "#ff0000"
	case model.SeverityCritical:
		return "#cc0000"
	}
	return "#36a64f"
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// attachment renders a push as one colored Slack attachment.
func attachment(push Push, at time.Time) slackAttachment {
	fields := []slackField{
		{Title: "Owner", Value: push.OwnerID, Short: true},
		{Title: "Category", Value: string(push.Category), Short: true},
	}
	if push.GlucoseValue > 0 {
		fields = append(fields, slackField{Title: "Glucose", Value: strconv.Itoa(push.GlucoseValue) + " " + model.UnitMgDL, Short: true})
	}
	if push.Severity != "" {
		fields = append(fields, slackField{Title: "Severity", Value: string(push.Severity), Short: true})
	}
	if len(push.RecipientIDs) > 0 {
		fields = append(fields, slackField{Title: "Recipients", Value: strings.Join(push.RecipientIDs, ", ")})
	}

	return slackAttachment{
		Color:  severityColor(push.Severity),
		Title:  push.Title,
		Text:   push.Body,
		Fields: fields,
		Footer: "Gluco Guardian",
		Ts:     at.Unix(),
	}
}

func (s *SlackNotifier) Send(ctx context.Context, push Push) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(slackMessage{
			Channel:     s.channel,
			Attachments: []slackAttachment{attachment(push, time.Now())},
		}).
		Post(s.webhookURL)
	if err != nil {
		return fmt.Errorf("deliver push to slack: %w", err)
	}
	if resp.IsError() {
		return rejected("slack", resp)
	}
	return nil
}
