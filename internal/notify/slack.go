// Package notify fans out OmniOrchestrator events (alerts, scaling
// decisions, backup outcomes) to Slack, adapted from the alert-notifier
// pattern used elsewhere in the stack.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier posts OmniOrchestrator events to a single configured Slack
// channel. If botToken is empty it is a no-op (logging only), so the
// autoscaler and backup coordinator can call it unconditionally.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Notifier. botToken/channel empty disables Slack posting.
func New(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled returns true if the notifier has a configured client and channel.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// SeverityEmoji returns the emoji prefix for an alert severity.
func SeverityEmoji(severity string) string {
	switch severity {
	case "critical":
		return "\U0001F534"
	case "warning":
		return "\U0001F7E1"
	case "info":
		return "\U0001F535"
	default:
		return "⚪"
	}
}

// AlertEvent describes an Alert transition worth notifying about.
type AlertEvent struct {
	AlertID     int64
	Title       string
	Severity    string
	Description string
	Status      string
}

// PostAlert sends an alert notification to the configured channel.
func (n *Notifier) PostAlert(ctx context.Context, ev AlertEvent) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping alert post", "alert_id", ev.AlertID, "title", ev.Title)
		return nil
	}

	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType,
			fmt.Sprintf("%s %s", SeverityEmoji(ev.Severity), ev.Title), true, false),
	)

	fields := []*goslack.TextBlockObject{
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Severity:* %s", ev.Severity), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Status:* %s", ev.Status), false, false),
	}

	blocks := []goslack.Block{header, goslack.NewSectionBlock(nil, fields, nil)}
	if ev.Description != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, ev.Description, false, false), nil, nil,
		))
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionBlocks(blocks...),
		goslack.MsgOptionText(fmt.Sprintf("%s %s", SeverityEmoji(ev.Severity), ev.Title), false),
	)
	if err != nil {
		return fmt.Errorf("posting alert to slack: %w", err)
	}
	return nil
}

// ScaleEvent describes an autoscaler decision worth notifying about.
type ScaleEvent struct {
	ResourceID   string
	ResourceType string
	Direction    string // "up", "down", "maintain"
	FromCapacity int
	ToCapacity   int
	Reason       string
}

// PostScaleEvent notifies the configured channel of an autoscaler decision.
func (n *Notifier) PostScaleEvent(ctx context.Context, ev ScaleEvent) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping scale event", "resource_id", ev.ResourceID)
		return nil
	}

	text := fmt.Sprintf("autoscaler: %s %s %d -> %d (%s)", ev.ResourceType, ev.Direction, ev.FromCapacity, ev.ToCapacity, ev.Reason)
	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting scale event to slack: %w", err)
	}
	return nil
}

// BackupEvent describes a backup coordinator run outcome.
type BackupEvent struct {
	BackupID int64
	Type     string
	Status   string
	Message  string
}

// PostBackupEvent notifies the configured channel of a backup outcome.
func (n *Notifier) PostBackupEvent(ctx context.Context, ev BackupEvent) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping backup event", "backup_id", ev.BackupID)
		return nil
	}

	text := fmt.Sprintf("backup #%d (%s): %s — %s", ev.BackupID, ev.Type, ev.Status, ev.Message)
	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting backup event to slack: %w", err)
	}
	return nil
}
