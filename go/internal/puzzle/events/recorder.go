package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/leaderboard"
)

// CompletionStore persists leaderboard entries
type CompletionStore interface {
	RecordCompletion(ctx context.Context, entry leaderboard.Entry) (bool, error)
}

// RecordCompletions returns a Handler that turns PuzzleCompleted events into
// leaderboard entries. Other event types are acknowledged and skipped.
func RecordCompletions(store CompletionStore) Handler {
	return func(ctx context.Context, event Event) error {
		if event.Type != EventTypePuzzleCompleted {
			return nil
		}

		var p PuzzleCompletedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			// a malformed payload will never succeed; drop it
			log.Error().Err(err).Str("session_id", event.SessionID).Msg("invalid PuzzleCompleted payload")
			return nil
		}

		duration := p.CompletedAt.Sub(p.StartedAt)
		if duration <= 0 {
			log.Warn().Str("session_id", event.SessionID).Msg("completion without positive duration, skipping")
			return nil
		}

		name := p.HostName
		if len(p.Players) > 1 {
			name = fmt.Sprintf("%s +%d", p.HostName, len(p.Players)-1)
		}

		meta, err := json.Marshal(map[string]any{"players": p.Players})
		if err != nil {
			return fmt.Errorf("marshal entry metadata: %w", err)
		}

		_, err = store.RecordCompletion(ctx, leaderboard.Entry{
			PuzzleID:    p.PuzzleID,
			SessionID:   event.SessionID,
			PlayerName:  name,
			Difficulty:  p.Difficulty,
			Duration:    duration,
			CompletedAt: p.CompletedAt,
			Metadata:    meta,
		})
		return err
	}
}
