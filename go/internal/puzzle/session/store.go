package session

import (
	"context"
	"time"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
)

// Subscription delivers updates for a subtree until Stop is called
type Subscription[T any] interface {
	Updates() <-chan T
	Stop() error
}

// Store is the shared key-value tree sessions are synchronized through.
// Writes are last-write-wins per key.
type Store interface {
	// CreateSession writes the root record, failing with ErrSessionExists if
	// one is already present.
	CreateSession(ctx context.Context, sessionID string, rec Record) error
	// GetSession returns *SessionNotFoundError when no record exists.
	GetSession(ctx context.Context, sessionID string) (Record, error)
	// CompleteSession marks the session completed. It reports true only for
	// the call that performed the transition.
	CompleteSession(ctx context.Context, sessionID string, at time.Time) (bool, error)

	PutPiece(ctx context.Context, sessionID string, ev placement.Event) error
	Pieces(ctx context.Context, sessionID string) ([]placement.Event, error)
	WatchPieces(ctx context.Context, sessionID string) (Subscription[placement.Event], error)

	PutPlayer(ctx context.Context, sessionID string, p Player) error
	RemovePlayer(ctx context.Context, sessionID string, playerID string) error
	Players(ctx context.Context, sessionID string) (Roster, error)
	// WatchPlayers delivers a full roster snapshot on every change.
	WatchPlayers(ctx context.Context, sessionID string) (Subscription[Roster], error)
}
