package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

const defaultPollTimeout = 30

// ErrInvalidChatID is returned when a chat ID is neither numeric nor a @channel username.
var ErrInvalidChatID = errors.New("telegram: invalid chat id") //nolint:gochecknoglobals // sentinel error

// Update is a text message received by the bot.
type Update struct {
	ChatID   int64
	UserID   int64
	Username string
	Text     string
}

// UpdateHandler processes one incoming update.
type UpdateHandler func(ctx context.Context, u Update)

// Client is a TelegramAPI backed by the Bot API. With an empty token it runs
// in dry mode: sends are logged and dropped, and Start blocks until ctx ends.
type Client struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
	dryRun      bool
	dryCounter  atomic.Int64
}

// Compile-time interface check.
var _ TelegramAPI = (*Client)(nil) //nolint:gochecknoglobals // compile-time check

// NewClient connects to the Bot API. pollTimeout is the long-poll timeout in seconds.
func NewClient(token string, pollTimeout int) (*Client, error) {
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return &Client{pollTimeout: pollTimeout, dryRun: true}, nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram.NewClient: %w", err)
	}

	return &Client{api: api, pollTimeout: pollTimeout}, nil
}

// DryRun reports whether the client has no bot token.
func (c *Client) DryRun() bool {
	return c.dryRun
}

// Username returns the bot's @username, or "" in dry mode.
func (c *Client) Username() string {
	if c.dryRun {
		return ""
	}
	return c.api.Self.UserName
}

// SendMessage sends text to a numeric chat ID or a @channel username.
func (c *Client) SendMessage(chatID, text string) (string, error) {
	msg, err := newMessage(chatID, text)
	if err != nil {
		return "", err
	}

	if c.dryRun {
		log.Info().Str("chat_id", chatID).Str("text", text).Msg("telegram: dry run, message not sent")
		return "dry-" + strconv.FormatInt(c.dryCounter.Add(1), 10), nil
	}

	sent, err := c.api.Send(msg)
	if err != nil {
		return "", fmt.Errorf("telegram.Client.SendMessage: %w", err)
	}

	return strconv.Itoa(sent.MessageID), nil
}

// Start long-polls for updates and passes text messages to handler until ctx is done.
func (c *Client) Start(ctx context.Context, handler UpdateHandler) error {
	if handler == nil {
		return errors.New("telegram.Client.Start: update handler is required")
	}

	if c.dryRun {
		log.Warn().Msg("telegram: bot token is empty, running in dry mode")
		<-ctx.Done()
		return nil
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = c.pollTimeout
	updates := c.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			return nil
		case raw, ok := <-updates:
			if !ok {
				return nil
			}
			u, ok := toUpdate(raw)
			if !ok {
				continue
			}
			handler(ctx, u)
		}
	}
}

func newMessage(chatID, text string) (tgbotapi.MessageConfig, error) {
	chatID = strings.TrimSpace(chatID)
	if strings.HasPrefix(chatID, "@") && len(chatID) > 1 {
		return tgbotapi.NewMessageToChannel(chatID, text), nil
	}

	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("telegram.Client.SendMessage: %q: %w", chatID, ErrInvalidChatID)
	}

	return tgbotapi.NewMessage(id, text), nil
}

func toUpdate(raw tgbotapi.Update) (Update, bool) {
	msg := raw.Message
	if msg == nil || msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		return Update{}, false
	}

	u := Update{ChatID: msg.Chat.ID, Text: msg.Text}
	if msg.From != nil {
		u.UserID = msg.From.ID
		u.Username = msg.From.UserName
	}

	return u, true
}
