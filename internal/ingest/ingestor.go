// Package ingest turns webhook payloads of unknown shape into audit events.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/subtrack/internal/domain"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusIgnored Status = "ignored"
)

const reasonUnknownEvent = "unknown event"

// Result is the webhook reply. Ignored results carry the received value and
// the parsed fields for diagnostics.
type Result struct {
	Status        Status             `json:"status"`
	Reason        string             `json:"reason,omitempty"`
	ReceivedEvent *string            `json:"received_event,omitempty"`
	Data          Fields             `json:"data,omitzero"`
	Event         *domain.AuditEvent `json:"-"`
}

// Appender is the write side of domain.EventRepository.
type Appender interface {
	Append(ctx context.Context, ev domain.NewAuditEvent, loc *time.Location) (*domain.AuditEvent, error)
}

// EventPublisher fans accepted events out to live subscribers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev *domain.AuditEvent) error
}

// Recorder observes ingestion outcomes ("ok", "ignored", "failed").
type Recorder interface {
	ObserveIngest(status string)
}

// Ingestor validates and normalizes webhook payloads. It holds no mutable
// state and is safe for concurrent use.
type Ingestor struct {
	events    Appender
	loc       *time.Location
	source    string
	publisher EventPublisher
	recorder  Recorder
}

// Option configures optional Ingestor collaborators.
type Option func(*Ingestor)

func WithPublisher(p EventPublisher) Option {
	return func(i *Ingestor) {
		i.publisher = p
	}
}

func WithRecorder(r Recorder) Option {
	return func(i *Ingestor) {
		i.recorder = r
	}
}

// WithSource overrides the source tag stamped on events (default "getcourse").
func WithSource(source string) Option {
	return func(i *Ingestor) {
		i.source = source
	}
}

func New(events Appender, loc *time.Location, opts ...Option) *Ingestor {
	i := &Ingestor{
		events: events,
		loc:    loc,
		source: domain.SourceGetCourse,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest parses raw, and either appends exactly one event (StatusOK) or
// returns StatusIgnored without touching the store. Only a store failure is
// returned as an error.
func (i *Ingestor) Ingest(ctx context.Context, raw []byte, contentType string) (*Result, error) {
	fields := ParseFields(raw, contentType)

	received := fields.String("event")
	kind, err := domain.ParseEventKind(received)
	if err != nil {
		i.observe(string(StatusIgnored))
		log.Debug().Str("event", received).Msg("ingest: ignoring unknown event")
		return &Result{
			Status:        StatusIgnored,
			Reason:        reasonUnknownEvent,
			ReceivedEvent: &received,
			Data:          fields,
		}, nil
	}

	email := fields.String("user_email")
	if email == "" {
		email = fields.String("email")
	}

	ev, err := i.events.Append(ctx, domain.NewAuditEvent{
		Email:  optional(email),
		UserID: optional(fields.String("telegram_id")),
		Kind:   kind,
		Source: i.source,
	}, i.loc)
	if err != nil {
		i.observe("failed")
		return nil, fmt.Errorf("ingest.Ingestor.Ingest: %w", err)
	}
	i.observe(string(StatusOK))

	if i.publisher != nil {
		if pubErr := i.publisher.PublishEvent(ctx, ev); pubErr != nil {
			log.Warn().Err(pubErr).Int64("event_id", ev.ID).Msg("ingest: publish live event")
		}
	}

	return &Result{Status: StatusOK, Event: ev}, nil
}

func (i *Ingestor) observe(status string) {
	if i.recorder != nil {
		i.recorder.ObserveIngest(status)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
