package placement

import "github.com/mcdev12/jigsaw/go/internal/puzzle/piece"

// Event is a placement or rotation of a single piece. It is the unit that is
// propagated between clients; Timestamp is stamped (in unix milliseconds) when
// the event is published and is zero for events fresh out of the engine.
type Event struct {
	PieceID   string     `json:"pieceId"`
	Slot      piece.Slot `json:"slot"`
	Rotation  int        `json:"rotation"`
	Timestamp int64      `json:"timestamp"`
}

// Direction of a quarter turn
type Direction int

const (
	Clockwise        Direction = 1
	CounterClockwise Direction = -1
)

// Degrees returns the rotation delta for the direction
func (d Direction) Degrees() int {
	if d < 0 {
		return -90
	}
	return 90
}

func eventFor(p piece.Piece) Event {
	return Event{
		PieceID:  p.ID,
		Slot:     p.Current,
		Rotation: p.Rotation,
	}
}
