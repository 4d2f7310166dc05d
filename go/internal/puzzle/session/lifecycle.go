package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
)

// Bootstrap creates the session record. Only the host calls it, exactly once
// per session; a second call fails with ErrSessionExists.
func Bootstrap(ctx context.Context, store Store, sessionID string, rec Record) (Record, error) {
	if rec.Status == "" {
		rec.Status = StatusActive
	}
	if err := store.CreateSession(ctx, sessionID, rec); err != nil {
		return Record{}, syncErr("bootstrap", err)
	}

	log.Info().
		Str("session_id", sessionID).
		Str("puzzle_id", rec.PuzzleID).
		Int("difficulty", rec.Difficulty).
		Msg("session bootstrapped")

	return rec, nil
}

// Join loads an existing session record. It never creates one; a missing
// record surfaces as *SessionNotFoundError.
func Join(ctx context.Context, store Store, sessionID string) (Record, error) {
	rec, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return Record{}, syncErr("join", err)
	}
	return rec, nil
}

// Subscriptions holds the two subtree subscriptions of a session view
type Subscriptions struct {
	Pieces  Subscription[placement.Event]
	Players Subscription[Roster]

	once sync.Once
	err  error
}

// Subscribe acquires the pieces and players subscriptions together. If the
// second one fails the first is released before returning.
func Subscribe(ctx context.Context, store Store, sessionID string) (*Subscriptions, error) {
	pieces, err := store.WatchPieces(ctx, sessionID)
	if err != nil {
		return nil, syncErr("watch pieces", err)
	}

	players, err := store.WatchPlayers(ctx, sessionID)
	if err != nil {
		if stopErr := pieces.Stop(); stopErr != nil {
			log.Error().Err(stopErr).Str("session_id", sessionID).Msg("failed to stop pieces subscription")
		}
		return nil, syncErr("watch players", err)
	}

	return &Subscriptions{Pieces: pieces, Players: players}, nil
}

// Close releases both subscriptions. It is safe to call more than once.
func (s *Subscriptions) Close() error {
	s.once.Do(func() {
		pErr := s.Pieces.Stop()
		rErr := s.Players.Stop()
		switch {
		case pErr != nil:
			s.err = fmt.Errorf("stop pieces subscription: %w", pErr)
		case rErr != nil:
			s.err = fmt.Errorf("stop players subscription: %w", rErr)
		}
	})
	return s.err
}
