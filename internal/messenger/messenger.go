package messenger

import "context"

// MessageID uniquely identifies a message within a messenger platform.
type MessageID string

// Messenger abstracts outbound delivery to a chat platform (Telegram, Slack).
// Implementations handle platform-specific API calls; the interface is platform-agnostic.
type Messenger interface {
	// SendMessage posts a text message to a chat or channel and returns its platform message ID.
	SendMessage(ctx context.Context, chatID, text string) (MessageID, error)

	// Platform returns the messenger platform identifier (e.g. "telegram", "slack").
	Platform() string
}
