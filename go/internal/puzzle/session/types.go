package session

import (
	"time"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
)

// Status is the lifecycle status of a shared session
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Record is the root record of a shared session. Pieces and players live in
// their own subtrees next to it.
type Record struct {
	PuzzleID    string                    `json:"puzzleId"`
	HostID      string                    `json:"hostId"`
	Difficulty  int                       `json:"difficulty"`
	Seed        int64                     `json:"seed"`
	Image       placement.ImageDimensions `json:"image"`
	Rotation    bool                      `json:"rotation"`
	Status      Status                    `json:"status"`
	CreatedAt   time.Time                 `json:"createdAt"`
	CompletedAt *time.Time                `json:"completedAt,omitempty"`
}

// InitialState derives the starting layout every participant shares
func (r Record) InitialState() (placement.State, error) {
	var opts []placement.Option
	if r.Rotation {
		opts = append(opts, placement.WithRandomRotation())
	}
	return placement.Initialize(r.Image, r.Difficulty, r.Seed, opts...)
}

// Player is a connected participant
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Color    string    `json:"color"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Roster is a snapshot of the players subtree keyed by player id
type Roster map[string]Player

// Clone returns an independent copy of the snapshot
func (r Roster) Clone() Roster {
	out := make(Roster, len(r))
	for id, p := range r {
		out[id] = p
	}
	return out
}
