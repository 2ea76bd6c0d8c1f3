package telegram

import (
	"context"
	"fmt"

	"github.com/gosuda/subtrack/internal/messenger"
)

// Platform is the registry key for Telegram.
const Platform = "telegram"

// TelegramAPI abstracts the subset of the Telegram Bot API used by TelegramMessenger.
// This allows testing without real HTTP calls.
type TelegramAPI interface {
	SendMessage(chatID, text string) (messageID string, err error)
}

// TelegramMessenger implements messenger.Messenger for Telegram.
type TelegramMessenger struct {
	api TelegramAPI
}

// Compile-time interface check.
var _ messenger.Messenger = (*TelegramMessenger)(nil) //nolint:gochecknoglobals // compile-time check

// NewTelegramMessenger creates a TelegramMessenger with the given API client.
func NewTelegramMessenger(api TelegramAPI) *TelegramMessenger {
	return &TelegramMessenger{api: api}
}

// SendMessage posts a text message to a Telegram chat and returns the message ID.
// Private chats use the user's numeric ID as chat ID.
func (m *TelegramMessenger) SendMessage(ctx context.Context, chatID, text string) (messenger.MessageID, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("telegram.TelegramMessenger.SendMessage: %w", err)
	}

	msgID, err := m.api.SendMessage(chatID, text)
	if err != nil {
		return "", fmt.Errorf("telegram.TelegramMessenger.SendMessage: %w", err)
	}

	return messenger.MessageID(msgID), nil
}

// Platform returns the messenger platform identifier.
func (m *TelegramMessenger) Platform() string {
	return Platform
}
