package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type EventKind string

const (
	EventKindSubscribe   EventKind = "subscribe"
	EventKindUnsubscribe EventKind = "unsubscribe"
)

// SourceGetCourse tags events delivered by the GetCourse webhook.
const SourceGetCourse = "getcourse"

// EventKinds lists every kind the audit log accepts, in report order.
func EventKinds() []EventKind {
	return []EventKind{EventKindSubscribe, EventKindUnsubscribe}
}

// Valid reports whether k is one of the persisted kinds.
func (k EventKind) Valid() bool {
	return k == EventKindSubscribe || k == EventKindUnsubscribe
}

// ParseEventKind normalizes a raw event name (trimmed, lower-cased) and
// rejects anything outside the closed set.
func ParseEventKind(raw string) (EventKind, error) {
	k := EventKind(strings.ToLower(strings.TrimSpace(raw)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, raw)
	}
	return k, nil
}

// AuditEvent is one persisted subscribe/unsubscribe occurrence.
// Events are never updated or deleted once written.
type AuditEvent struct {
	ID        int64     `json:"id"`
	Email     *string   `json:"email,omitempty"`
	UserID    *string   `json:"user_id,omitempty"`
	Kind      EventKind `json:"event"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"ts"`
}

// NewAuditEvent carries the caller-supplied part of an AuditEvent. The ID and
// Timestamp are assigned by the repository.
type NewAuditEvent struct {
	Email  *string
	UserID *string
	Kind   EventKind
	Source string
}

// Validate checks the fields a repository must not persist unchecked.
func (e NewAuditEvent) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEventKind, e.Kind)
	}
	if strings.TrimSpace(e.Source) == "" {
		return ErrMissingSource
	}
	return nil
}

// EventRepository is the append-only audit log.
type EventRepository interface {
	// Append persists one event stamped with the repository clock expressed in loc.
	Append(ctx context.Context, ev NewAuditEvent, loc *time.Location) (*AuditEvent, error)
	// CountInRange counts events of kind with timestamp in [start, end).
	CountInRange(ctx context.Context, kind EventKind, start, end time.Time) (int64, error)
	TotalCount(ctx context.Context, kind EventKind) (int64, error)
}
