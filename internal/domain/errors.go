package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrUnknownEventKind = errors.New("domain: unknown event kind")
	ErrMissingSource    = errors.New("domain: event source is required")
	ErrInvalidRange     = errors.New("domain: invalid time range")
	ErrStoreUnavailable = errors.New("domain: store unavailable")
	ErrNilLocation      = errors.New("domain: time zone is required")
)

// StoreError reports a failed read or write against the event store.
// It matches ErrStoreUnavailable under errors.Is.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// NewStoreError wraps err as a StoreError for operation op.
func NewStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
