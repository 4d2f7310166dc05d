package leaderboard

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLimit is the number of records TopScores returns when no limit is given
	DefaultLimit = 10
	// MaxLimit caps a single TopScores page
	MaxLimit = 100
)

// Entry is one completed solve
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	PuzzleID    string          `json:"puzzleId"`
	SessionID   string          `json:"sessionId"`
	PlayerName  string          `json:"playerName"`
	Difficulty  int             `json:"difficulty"`
	Duration    time.Duration   `json:"duration"`
	CompletedAt time.Time       `json:"completedAt"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}
