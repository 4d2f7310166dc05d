package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/piece"
)

type recordingNotifier struct {
	placed    []string
	completed int
}

func (r *recordingNotifier) PiecePlaced(p piece.Piece) { r.placed = append(r.placed, p.ID) }
func (r *recordingNotifier) PuzzleCompleted(State) { r.completed++ }

func TestBoardCompletesOnceForThreeByThree(t *testing.T) {
	s, err := Initialize(testImage, 3, 2024)
	require.NoError(t, err)
	require.Equal(t, 9, s.Len())

	n := &recordingNotifier{}
	b := NewBoard(s, n)

	initiallyCorrect := s.CorrectCount()
	for _, p := range s.Pieces() {
		_, err := b.Move(p.ID, p.Correct)
		require.NoError(t, err)
	}

	assert.True(t, CheckCompletion(b.State()))
	assert.Equal(t, 1, n.completed)
	assert.Len(t, n.placed, 9-initiallyCorrect)

	// Turning a piece a full circle afterwards must not re-fire completion
	id := s.Pieces()[0].ID
	for i := 0; i < 4; i++ {
		_, err := b.Rotate(id, Clockwise)
		require.NoError(t, err)
	}
	assert.True(t, CheckCompletion(b.State()))
	assert.Equal(t, 1, n.completed)

	// Dropping a piece on its own slot is a no-op that publishes nothing
	events, err := b.Move(id, s.Pieces()[0].Correct)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 1, n.completed)
}

func TestBoardRemoteMergeNotifies(t *testing.T) {
	s, err := Initialize(testImage, 2, 8)
	require.NoError(t, err)

	n := &recordingNotifier{}
	b := NewBoard(s, n)

	for _, p := range s.Pieces() {
		require.NoError(t, b.ApplyRemote(Event{PieceID: p.ID, Slot: p.Correct, Timestamp: 1}))
	}
	assert.Equal(t, 1, n.completed)
	assert.True(t, b.State().Completed())
}

func TestBoardRemoteMergeNotifiesDisplacedPiece(t *testing.T) {
	s, err := Initialize(testImage, 3, 5)
	require.NoError(t, err)

	// q is out of place and a sits on q's home slot
	var q piece.Piece
	for _, p := range s.Pieces() {
		if !s.IsCorrect(p.ID) {
			q = p
			break
		}
	}
	a, found := s.occupant(q.Correct, q.ID)
	require.True(t, found)

	n := &recordingNotifier{}
	b := NewBoard(s, n)
	require.NoError(t, b.ApplyRemote(Event{PieceID: a.ID, Slot: q.Current, Rotation: a.Rotation, Timestamp: 1}))

	assert.True(t, b.State().IsCorrect(q.ID))
	assert.Contains(t, n.placed, q.ID)
}

func TestBoardErrorsLeaveStateUntouched(t *testing.T) {
	s, err := Initialize(testImage, 2, 8)
	require.NoError(t, err)
	b := NewBoard(s, nil)

	_, err = b.Move("missing", piece.Slot{})
	require.Error(t, err)
	_, err = b.Rotate("missing", Clockwise)
	require.Error(t, err)
	assert.Equal(t, s.Pieces(), b.State().Pieces())
}
