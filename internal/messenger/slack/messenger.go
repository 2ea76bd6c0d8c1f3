package slack

import (
	"context"
	"fmt"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/subtrack/internal/messenger"
)

// Platform is the registry key for Slack.
const Platform = "slack"

// SlackAPI abstracts the subset of the Slack client used by SlackMessenger.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackMessenger implements messenger.Messenger for Slack.
type SlackMessenger struct {
	api SlackAPI
}

// Compile-time interface check.
var _ messenger.Messenger = (*SlackMessenger)(nil) //nolint:gochecknoglobals // compile-time check

// NewSlackMessenger creates a SlackMessenger with the given API client.
func NewSlackMessenger(api SlackAPI) *SlackMessenger {
	return &SlackMessenger{api: api}
}

// NewClient returns a Slack Web API client for the bot token.
func NewClient(botToken string) *slacklib.Client {
	return slacklib.New(botToken)
}

// SendMessage posts a report to a Slack channel and returns the message timestamp as MessageID.
// The plain text doubles as the notification fallback for the blocks.
func (m *SlackMessenger) SendMessage(ctx context.Context, channelID, text string) (messenger.MessageID, error) {
	opts := []slacklib.MsgOption{slacklib.MsgOptionText(text, false)}
	if blocks := BuildReportBlocks(text); len(blocks) > 0 {
		opts = append(opts, slacklib.MsgOptionBlocks(blocks...))
	}

	_, ts, err := m.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", fmt.Errorf("slack.SlackMessenger.SendMessage: %w", err)
	}

	return messenger.MessageID(ts), nil
}

// Platform returns the messenger platform identifier.
func (m *SlackMessenger) Platform() string {
	return Platform
}
