package checkin

import (
	"context"
	"errors"
	"fmt"

	"checkin/internal/attendee"
	"checkin/internal/store"
)

// ErrUnknownKind is returned for a kind the service holds no roster for.
var ErrUnknownKind = errors.New("unknown attendee kind")

// FetchError reports a failed roster load. The roster is left empty.
type FetchError struct {
	Kind attendee.Kind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s roster: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RemoteWriteError reports a write the store rejected or never answered.
type RemoteWriteError struct {
	Kind attendee.Kind
	ID   string
	Op   string
	Err  error
}

func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Kind, e.ID, e.Err)
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }

// Retryable reports whether the failure was a timeout or a transient network
// error, so the same request may succeed later.
func (e *RemoteWriteError) Retryable() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(e.Err, &timeout) && timeout.Timeout()
}

// NotFound reports whether the target record does not exist.
func (e *RemoteWriteError) NotFound() bool {
	return errors.Is(e.Err, store.ErrNotFound)
}
