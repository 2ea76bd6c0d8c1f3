package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/subtrack/internal/messenger"
)

const maxRequestBytes = 1 << 20

const notAllowedText = "Reports are not available in this channel."

// Replier answers chat command text. *bot.Handler satisfies this interface.
type Replier interface {
	Reply(ctx context.Context, text string) (reply string, ok bool, err error)
}

// Handler serves Slack slash commands and Events API callbacks, answering
// report commands through a Replier.
type Handler struct {
	signingSecret string
	replier       Replier
	poster        messenger.Messenger
	appCommand    string
	allowed       map[string]struct{}
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithPoster sets the messenger used to answer mentions and direct messages.
// Without one, events are acknowledged but not answered.
func WithPoster(m messenger.Messenger) HandlerOption {
	return func(h *Handler) { h.poster = m }
}

// WithAppCommand overrides DefaultAppCommand.
func WithAppCommand(command string) HandlerOption {
	return func(h *Handler) { h.appCommand = command }
}

// WithAllowedChannels restricts commands to the given channel IDs.
// An empty list allows every channel.
func WithAllowedChannels(ids []string) HandlerOption {
	return func(h *Handler) {
		if len(ids) == 0 {
			h.allowed = nil
			return
		}
		h.allowed = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			h.allowed[id] = struct{}{}
		}
	}
}

// NewHandler creates a Slack request handler verifying requests with signingSecret.
func NewHandler(signingSecret string, replier Replier, opts ...HandlerOption) *Handler {
	h := &Handler{
		signingSecret: signingSecret,
		replier:       replier,
		appCommand:    DefaultAppCommand,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// slackEvent represents the outer envelope of Slack Events API payloads.
type slackEvent struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

// innerEvent represents the inner event within an event_callback.
type innerEvent struct {
	Type        string `json:"type"`
	Subtype     string `json:"subtype,omitempty"`
	Channel     string `json:"channel"`
	ChannelType string `json:"channel_type,omitempty"`
	Text        string `json:"text"`
	User        string `json:"user"`
	BotID       string `json:"bot_id,omitempty"`
}

// slashResponse is the synchronous reply to a slash command.
type slashResponse struct {
	ResponseType string           `json:"response_type"`
	Text         string           `json:"text"`
	Blocks       []slacklib.Block `json:"blocks,omitempty"`
}

// HandleCommands is an http.HandlerFunc for POST /slack/commands.
func (h *Handler) HandleCommands(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readVerified(w, r)
	if !ok {
		return
	}

	// The body was consumed for signature verification; re-create it for form parsing.
	r.Body = io.NopCloser(bytes.NewReader(body))
	sc, err := slacklib.SlashCommandParse(r)
	if err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	if !h.channelAllowed(sc.ChannelID) {
		log.Debug().Str("channel", sc.ChannelID).Str("user", sc.UserID).Msg("slack: channel not allowed")
		writeJSON(w, slashResponse{ResponseType: "ephemeral", Text: notAllowedText})
		return
	}

	text := SlashCommandText(h.appCommand, sc.Command, sc.Text)
	reply, handled, replyErr := h.replier.Reply(r.Context(), text)
	if replyErr != nil {
		log.Error().Err(replyErr).Str("channel", sc.ChannelID).Msg("slack: command failed")
	}
	if !handled {
		writeJSON(w, slashResponse{ResponseType: "ephemeral", Text: "Unknown command."})
		return
	}

	writeJSON(w, slashResponse{
		ResponseType: "in_channel",
		Text:         reply,
		Blocks:       BuildReportBlocks(reply),
	})
}

// HandleEvents is an http.HandlerFunc for POST /slack/events.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readVerified(w, r)
	if !ok {
		return
	}

	var envelope slackEvent
	if unmarshalErr := json.Unmarshal(body, &envelope); unmarshalErr != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	switch envelope.Type {
	case "url_verification":
		writeJSON(w, map[string]string{"challenge": envelope.Challenge})
	case "event_callback":
		// Slack redelivers when the first ack was slow; the original delivery already replied.
		if r.Header.Get("X-Slack-Retry-Num") != "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.handleEventCallback(r.Context(), w, envelope.Event)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) handleEventCallback(ctx context.Context, w http.ResponseWriter, rawEvent json.RawMessage) {
	var evt innerEvent
	if unmarshalErr := json.Unmarshal(rawEvent, &evt); unmarshalErr != nil {
		http.Error(w, "invalid event JSON", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	if evt.BotID != "" || evt.Subtype != "" {
		return
	}

	var text string
	switch {
	case evt.Type == "app_mention":
		t, ok := MentionText(evt.Text)
		if !ok {
			return
		}
		text = t
	case evt.Type == "message" && evt.ChannelType == "im":
		text = DirectText(evt.Text)
	default:
		return
	}
	if text == "" || !h.channelAllowed(evt.Channel) {
		return
	}

	reply, handled, err := h.replier.Reply(ctx, text)
	if !handled {
		return
	}
	if err != nil {
		log.Error().Err(err).Str("channel", evt.Channel).Msg("slack: command failed")
	}
	if h.poster == nil {
		log.Warn().Str("channel", evt.Channel).Msg("slack: no bot token, event reply dropped")
		return
	}
	if _, sendErr := h.poster.SendMessage(ctx, evt.Channel, reply); sendErr != nil {
		log.Warn().Err(sendErr).Str("channel", evt.Channel).Msg("slack: reply failed")
	}
}

func (h *Handler) channelAllowed(channelID string) bool {
	if h.allowed == nil {
		return true
	}
	_, ok := h.allowed[channelID]
	return ok
}

// readVerified reads the body and checks the Slack signature, writing the
// error response itself when either fails.
func (h *Handler) readVerified(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return nil, false
	}

	if verifyErr := h.verifySignature(r.Header, body); verifyErr != nil {
		log.Warn().Err(verifyErr).Msg("slack: rejected request")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return nil, false
	}
	return body, true
}

// verifySignature validates the Slack request signature using the signing secret.
func (h *Handler) verifySignature(header http.Header, body []byte) error {
	sv, err := slacklib.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return fmt.Errorf("slack.Handler.verifySignature: create verifier: %w", err)
	}

	if _, writeErr := sv.Write(body); writeErr != nil {
		return fmt.Errorf("slack.Handler.verifySignature: write body: %w", writeErr)
	}

	if ensureErr := sv.Ensure(); ensureErr != nil {
		return fmt.Errorf("slack.Handler.verifySignature: ensure: %w", ensureErr)
	}

	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("slack: encode response")
	}
}
