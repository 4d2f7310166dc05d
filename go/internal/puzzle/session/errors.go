package session

import (
	"errors"
	"fmt"
)

// ErrSessionExists is returned when bootstrapping a session that already has a record
var ErrSessionExists = errors.New("session already exists")

// SessionNotFoundError is returned when joining a session that has no record.
// Non-host participants never create the record themselves.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.SessionID)
}

// SyncError wraps a failure talking to the shared store. Local state stays
// authoritative; propagation stops until the store is reachable again.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func syncErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var notFound *SessionNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, ErrSessionExists) {
		return err
	}
	return &SyncError{Op: op, Err: err}
}
