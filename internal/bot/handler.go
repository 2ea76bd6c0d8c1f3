// Package bot answers chat commands with report queries.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/subtrack/internal/messenger"
	"github.com/gosuda/subtrack/internal/messenger/telegram"
	"github.com/gosuda/subtrack/internal/report"
)

const helpText = "Available commands:\n" +
	"/stats - all-time subscriptions and unsubscriptions\n" +
	"/today - counts for the current day\n" +
	"/report - yesterday's report\n" +
	"/help - this message"

const failureText = "⚠️ Report is temporarily unavailable, try again later."

// Reports is the read side the bot queries.
type Reports interface {
	Report(ctx context.Context, loc *time.Location, ref time.Time, dayOffset int) (*report.DayReport, error)
	Totals(ctx context.Context) (*report.Totals, error)
}

// Recorder observes handled commands.
type Recorder interface {
	ObserveCommand(command string)
}

// Handler turns commands into rendered replies.
type Handler struct {
	reports  Reports
	loc      *time.Location
	label    string
	botName  string
	clock    func() time.Time
	recorder Recorder
	allowed  map[int64]struct{}
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(h *Handler) { h.clock = clock }
}

// WithRecorder sets the command recorder.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) { h.recorder = r }
}

// WithBotName makes the handler ignore commands addressed to other bots.
func WithBotName(name string) Option {
	return func(h *Handler) { h.botName = name }
}

// WithAllowedChats restricts Telegram commands to the given chat IDs.
// An empty list allows every chat.
func WithAllowedChats(ids []int64) Option {
	return func(h *Handler) {
		if len(ids) == 0 {
			h.allowed = nil
			return
		}
		h.allowed = make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			h.allowed[id] = struct{}{}
		}
	}
}

// NewHandler creates a Handler reporting in loc under label.
func NewHandler(reports Reports, loc *time.Location, label string, opts ...Option) *Handler {
	h := &Handler{
		reports: reports,
		loc:     loc,
		label:   label,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Reply answers a message. ok is false when the text is not a command for this bot.
// Query failures produce a generic reply and a non-nil error for logging.
func (h *Handler) Reply(ctx context.Context, text string) (string, bool, error) {
	cmd, ok := ParseCommand(text, h.botName)
	if !ok {
		return "", false, nil
	}

	if h.recorder != nil {
		h.recorder.ObserveCommand(string(cmd.Action))
	}

	reply, err := h.answer(ctx, cmd)
	if err != nil {
		return failureText, true, fmt.Errorf("bot.Handler.Reply: %s: %w", cmd.Action, err)
	}

	return reply, true, nil
}

func (h *Handler) answer(ctx context.Context, cmd Command) (string, error) {
	switch cmd.Action {
	case CommandActionStats:
		t, err := h.reports.Totals(ctx)
		if err != nil {
			return "", err
		}
		return report.RenderTotals(h.label, t), nil
	case CommandActionToday:
		r, err := h.reports.Report(ctx, h.loc, h.clock(), 0)
		if err != nil {
			return "", err
		}
		return report.RenderToday(h.label, r), nil
	case CommandActionReport:
		r, err := h.reports.Report(ctx, h.loc, h.clock(), -1)
		if err != nil {
			return "", err
		}
		return report.RenderDaily(h.label, r), nil
	case CommandActionHelp:
		return helpText, nil
	default:
		return "Unknown command.\n\n" + helpText, nil
	}
}

// Telegram returns an update handler that replies through m.
func (h *Handler) Telegram(m messenger.Messenger) telegram.UpdateHandler {
	return func(ctx context.Context, u telegram.Update) {
		if h.allowed != nil {
			if _, ok := h.allowed[u.ChatID]; !ok {
				log.Debug().Int64("chat_id", u.ChatID).Str("username", u.Username).Msg("bot: chat not allowed")
				return
			}
		}

		reply, ok, err := h.Reply(ctx, u.Text)
		if !ok {
			return
		}
		if err != nil {
			log.Error().Err(err).Int64("chat_id", u.ChatID).Msg("bot: command failed")
		}

		if _, sendErr := m.SendMessage(ctx, strconv.FormatInt(u.ChatID, 10), reply); sendErr != nil {
			log.Warn().Err(sendErr).Int64("chat_id", u.ChatID).Msg("bot: reply failed")
		}
	}
}
