package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type LeaderboardEntry struct {
	ID          uuid.UUID             `json:"id"`
	PuzzleID    string                `json:"puzzle_id"`
	SessionID   string                `json:"session_id"`
	PlayerName  string                `json:"player_name"`
	Difficulty  int32                 `json:"difficulty"`
	DurationMs  int64                 `json:"duration_ms"`
	CompletedAt time.Time             `json:"completed_at"`
	Metadata    pqtype.NullRawMessage `json:"metadata"`
}
