package placement

import "github.com/mcdev12/jigsaw/go/internal/puzzle/piece"

// Notifier receives board notifications
type Notifier interface {
	// PiecePlaced fires when a piece becomes correct
	PiecePlaced(p piece.Piece)
	// PuzzleCompleted fires once, on the transition to completed
	PuzzleCompleted(s State)
}

// NopNotifier ignores all notifications
type NopNotifier struct{}

func (NopNotifier) PiecePlaced(piece.Piece) {}
func (NopNotifier) PuzzleCompleted(State) {}

// Board holds the current State and is the single mutation entry point for a
// puzzle view. It is not safe for concurrent use; callers serialize access.
type Board struct {
	state    State
	notifier Notifier
}

// NewBoard wraps an initialized state
func NewBoard(s State, notifier Notifier) *Board {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Board{state: s, notifier: notifier}
}

// State returns the current snapshot
func (b *Board) State() State {
	return b.state
}

// Reset replaces the state wholesale, e.g. on a difficulty or image change.
// No notifications are raised for the new state.
func (b *Board) Reset(s State) {
	b.state = s
}

// Move applies a local drop and returns the events to publish
func (b *Board) Move(pieceID string, target piece.Slot) ([]Event, error) {
	next, events, err := Move(b.state, pieceID, target)
	if err != nil {
		return nil, err
	}
	touched := make([]string, 0, len(events)+1)
	touched = append(touched, pieceID)
	for _, ev := range events {
		if ev.PieceID != pieceID {
			touched = append(touched, ev.PieceID)
		}
	}
	b.commit(next, touched...)
	return events, nil
}

// Rotate applies a local quarter turn and returns the event to publish
func (b *Board) Rotate(pieceID string, dir Direction) (Event, error) {
	next, ev, err := Rotate(b.state, pieceID, dir)
	if err != nil {
		return Event{}, err
	}
	b.commit(next, pieceID)
	return ev, nil
}

// ApplyRemote merges an accepted remote event. Nothing is returned for
// publishing, which keeps remote merges from echoing back out.
func (b *Board) ApplyRemote(ev Event) error {
	touched := []string{ev.PieceID}
	if occupant, found := b.state.occupant(ev.Slot, ev.PieceID); found {
		touched = append(touched, occupant.ID)
	}

	next, err := ApplyRemote(b.state, ev)
	if err != nil {
		return err
	}
	b.commit(next, touched...)
	return nil
}

func (b *Board) commit(next State, touched ...string) {
	prev := b.state
	b.state = next

	for _, id := range touched {
		if next.IsCorrect(id) && !prev.IsCorrect(id) {
			p, _ := next.Piece(id)
			b.notifier.PiecePlaced(p)
		}
	}
	if next.Completed() && !prev.Completed() {
		b.notifier.PuzzleCompleted(next)
	}
}
