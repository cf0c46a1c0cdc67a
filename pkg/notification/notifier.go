// Package notification dispatches budget alerts and safety violations to
// Slack, following the teacher's split between a real delivery target and
// a file-backed (here: no-op) one (SPEC_FULL.md §4.12).
package notification

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// Severity selects which Slack channel a notification is routed to.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Message is one notification to deliver.
type Message struct {
	Severity Severity
	Title    string
	Body     string
	StoryID  string
}

// Sink delivers a Message. Notifier's zero-value-disabled mode and its
// real Slack-backed mode both satisfy this interface so callers never
// branch on whether notifications are enabled.
type Sink interface {
	Notify(ctx context.Context, msg Message) error
}

// ChannelRouting maps each severity to the Slack channel it's posted to.
type ChannelRouting struct {
	Info     string
	Warning  string
	Critical string
	// Budget and Safety override the severity-based channel for their
	// respective alert families when set (SPEC_FULL.md §7).
	Budget string
	Safety string
}

func (r ChannelRouting) channelFor(msg Message, family string) string {
	switch family {
	case "budget":
		if r.Budget != "" {
			return r.Budget
		}
	case "safety":
		if r.Safety != "" {
			return r.Safety
		}
	}
	switch msg.Severity {
	case SeverityCritical:
		return r.Critical
	case SeverityWarning:
		return r.Warning
	default:
		return r.Info
	}
}

// SlackNotifier posts messages to Slack via slack-go/slack, routing by
// severity (and, for budget/safety alert families, a dedicated channel).
type SlackNotifier struct {
	client  *slack.Client
	routing ChannelRouting
}

func NewSlackNotifier(token string, routing ChannelRouting) *SlackNotifier {
	return &SlackNotifier{client: slack.New(token), routing: routing}
}

func (n *SlackNotifier) Notify(ctx context.Context, msg Message) error {
	return n.notifyFamily(ctx, msg, "")
}

// NotifyBudgetAlert routes msg to the dedicated budget channel.
func (n *SlackNotifier) NotifyBudgetAlert(ctx context.Context, msg Message) error {
	return n.notifyFamily(ctx, msg, "budget")
}

// NotifySafetyViolation routes msg to the dedicated safety channel.
func (n *SlackNotifier) NotifySafetyViolation(ctx context.Context, msg Message) error {
	return n.notifyFamily(ctx, msg, "safety")
}

func (n *SlackNotifier) notifyFamily(ctx context.Context, msg Message, family string) error {
	channel := n.routing.channelFor(msg, family)
	if channel == "" {
		return fmt.Errorf("notification: no Slack channel configured for severity %s", msg.Severity)
	}
	text := fmt.Sprintf("*[%s]* %s\n%s", msg.Severity, msg.Title, msg.Body)
	_, _, err := n.client.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("notification: posting to %s: %w", channel, err)
	}
	return nil
}

// WebhookNotifier posts messages to a single incoming Slack webhook
// (SLACK_WEBHOOK_URL), used when no bot token is configured. Severity is
// rendered into the message text since an incoming webhook is bound to
// one fixed channel.
type WebhookNotifier struct {
	webhookURL string
}

func NewWebhookNotifier(webhookURL string) *WebhookNotifier {
	return &WebhookNotifier{webhookURL: webhookURL}
}

func (n *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	text := fmt.Sprintf("*[%s]* %s\n%s", msg.Severity, msg.Title, msg.Body)
	err := slack.PostWebhookContext(ctx, n.webhookURL, &slack.WebhookMessage{Text: text})
	if err != nil {
		return fmt.Errorf("notification: posting webhook: %w", err)
	}
	return nil
}

// NoopSink is the disabled-notifications sink used when SLACK_ENABLED is
// unset or false.
type NoopSink struct{}

func (NoopSink) Notify(ctx context.Context, msg Message) error { return nil }

// NewSink returns a token-based SlackNotifier when a bot token is
// configured, a WebhookNotifier when only a webhook URL is, or a NoopSink
// when disabled — callers never need to branch on configuration
// themselves.
func NewSink(enabled bool, token, webhookURL string, routing ChannelRouting) Sink {
	switch {
	case !enabled:
		return NoopSink{}
	case token != "":
		return NewSlackNotifier(token, routing)
	case webhookURL != "":
		return NewWebhookNotifier(webhookURL)
	default:
		return NoopSink{}
	}
}
