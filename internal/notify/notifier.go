package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/subtrack/internal/messenger"
)

// DefaultPlatform is used for recipients written without a platform prefix.
const DefaultPlatform = "telegram"

// ErrPlatformNotFound is returned when a messenger platform is not registered.
var ErrPlatformNotFound = errors.New("notify: platform not found") //nolint:gochecknoglobals // sentinel error

// ErrInvalidRecipient is returned for an empty recipient or chat ID.
var ErrInvalidRecipient = errors.New("notify: invalid recipient") //nolint:gochecknoglobals // sentinel error

// MessengerRegistry maps platform names to Messenger implementations.
type MessengerRegistry interface {
	Get(platform string) (messenger.Messenger, bool)
}

// Recorder observes delivery outcomes.
type Recorder interface {
	ObserveDelivery(platform string, err error)
}

// Recipient is a chat on a specific platform.
type Recipient struct {
	Platform string
	ChatID   string
}

func (r Recipient) String() string {
	return r.Platform + ":" + r.ChatID
}

// ParseRecipient parses "platform:chat_id". A bare chat ID targets DefaultPlatform.
// Telegram chat IDs may be negative and Slack channel IDs never contain a colon,
// so the first colon always separates the platform.
func ParseRecipient(raw string) (Recipient, error) {
	raw = strings.TrimSpace(raw)
	platform, chatID, found := strings.Cut(raw, ":")
	if !found {
		platform, chatID = DefaultPlatform, raw
	}

	platform = strings.ToLower(strings.TrimSpace(platform))
	chatID = strings.TrimSpace(chatID)
	if platform == "" || chatID == "" {
		return Recipient{}, fmt.Errorf("notify.ParseRecipient: %q: %w", raw, ErrInvalidRecipient)
	}

	return Recipient{Platform: platform, ChatID: chatID}, nil
}

// DeliveryResult is the outcome of sending to one recipient.
type DeliveryResult struct {
	Recipient string
	MessageID messenger.MessageID
	Err       error
}

// Notifier fans a message out to report recipients across platforms.
type Notifier struct {
	messengers MessengerRegistry
	recorder   Recorder
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithRecorder sets the delivery outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(n *Notifier) { n.recorder = r }
}

// New creates a new Notifier with the given messenger registry.
func New(messengers MessengerRegistry, opts ...Option) *Notifier {
	n := &Notifier{messengers: messengers}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Broadcast sends text to every recipient. Each delivery is independent:
// a failure is logged and reported in its DeliveryResult, and the loop continues.
func (n *Notifier) Broadcast(ctx context.Context, recipients []string, text string) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(recipients))

	for _, raw := range recipients {
		res := DeliveryResult{Recipient: raw}
		platform := "unknown"

		rcpt, err := ParseRecipient(raw)
		if err == nil {
			platform = rcpt.Platform
			res.MessageID, err = n.NotifyVia(ctx, rcpt.Platform, rcpt.ChatID, text)
		}

		if err != nil {
			res.Err = err
			log.Warn().Err(err).Str("recipient", raw).Msg("notify: delivery failed")
		} else {
			log.Debug().Str("recipient", raw).Str("message_id", string(res.MessageID)).Msg("notify: delivered")
		}

		if n.recorder != nil {
			n.recorder.ObserveDelivery(platform, err)
		}
		results = append(results, res)
	}

	return results
}

// NotifyVia sends a message using a specific platform and chat ID directly.
func (n *Notifier) NotifyVia(ctx context.Context, platform, chatID, text string) (messenger.MessageID, error) {
	msg, ok := n.messengers.Get(platform)
	if !ok {
		return "", fmt.Errorf("notify.Notifier.NotifyVia: platform %q: %w", platform, ErrPlatformNotFound)
	}

	id, err := msg.SendMessage(ctx, chatID, text)
	if err != nil {
		return "", fmt.Errorf("notify.Notifier.NotifyVia: send: %w", err)
	}

	return id, nil
}

// Failed counts results that carry an error.
func Failed(results []DeliveryResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
