package placement

import (
	"math/rand"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/piece"
)

// ImageDimensions is the pixel size of the source image
type ImageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// State is an immutable snapshot of a puzzle. Operations in this package return
// a new State and never modify the maps of the one they were given.
type State struct {
	size      int
	order     []string
	pieces    map[string]piece.Piece
	correct   map[string]struct{}
	completed bool
}

// Size returns the grid side length (the difficulty)
func (s State) Size() int { return s.size }

// Len returns the number of pieces
func (s State) Len() int { return len(s.pieces) }

// CorrectCount returns how many pieces are currently correct
func (s State) CorrectCount() int { return len(s.correct) }

// Completed reports the latched completion flag. Once set it stays set for
// every state derived from this one.
func (s State) Completed() bool { return s.completed }

// Piece looks up a piece by id
func (s State) Piece(id string) (piece.Piece, bool) {
	p, ok := s.pieces[id]
	return p, ok
}

// IsCorrect reports whether the piece is in the correct set
func (s State) IsCorrect(id string) bool {
	_, ok := s.correct[id]
	return ok
}

// Pieces returns all pieces in row-major order of their correct slot
func (s State) Pieces() []piece.Piece {
	out := make([]piece.Piece, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.pieces[id])
	}
	return out
}

// Option tweaks puzzle initialization
type Option func(*options)

type options struct {
	randomRotation bool
}

// WithRandomRotation scatters initial rotations over quarter turns
func WithRandomRotation() Option {
	return func(o *options) { o.randomRotation = true }
}

// Initialize cuts the image into difficulty x difficulty pieces and scatters
// them over a seeded permutation of the grid.
func Initialize(img ImageDimensions, difficulty int, seed int64, opts ...Option) (State, error) {
	if img.Width <= 0 || img.Height <= 0 || difficulty < 1 {
		return State{}, &InvalidImageError{Width: img.Width, Height: img.Height, Difficulty: difficulty}
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	n := difficulty * difficulty
	w := float64(img.Width) / float64(difficulty)
	h := float64(img.Height) / float64(difficulty)

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)
	if n > 1 && isIdentity(perm) {
		// never hand out a solved board
		perm = append(perm[1:], perm[0])
	}

	s := State{
		size:    difficulty,
		order:   make([]string, 0, n),
		pieces:  make(map[string]piece.Piece, n),
		correct: make(map[string]struct{}),
	}

	for i := 0; i < n; i++ {
		correct := slotAt(i, difficulty)
		p := piece.New(correct, slotAt(perm[i], difficulty), piece.Dimensions{
			Width:   w,
			Height:  h,
			OffsetX: float64(correct.X) * w,
			OffsetY: float64(correct.Y) * h,
		})
		if o.randomRotation {
			p.Rotation = rng.Intn(4) * 90
		}
		s.order = append(s.order, p.ID)
		s.pieces[p.ID] = p
		s.recompute(p.ID)
	}
	s.refreshCompleted()

	return s, nil
}

// Move drops a piece onto target. If another piece occupies target the two
// swap slots and an event is produced for each of them.
func Move(s State, pieceID string, target piece.Slot) (State, []Event, error) {
	p, ok := s.pieces[pieceID]
	if !ok {
		return s, nil, &UnknownPieceError{PieceID: pieceID}
	}
	if !s.inGrid(target) {
		return s, nil, &InvalidSlotError{Slot: target, Size: s.size}
	}

	next := s.clone()

	// Dropping a piece where it already is changes nothing but correctness
	// is still re-derived.
	if p.Current == target {
		next.recompute(pieceID)
		next.refreshCompleted()
		return next, nil, nil
	}

	moved := piece.WithSlot(p, target)
	next.pieces[pieceID] = moved
	next.recompute(pieceID)
	events := []Event{eventFor(moved)}

	if occupant, found := s.occupant(target, pieceID); found {
		displaced := piece.WithSlot(occupant, p.Current)
		next.pieces[occupant.ID] = displaced
		next.recompute(occupant.ID)
		events = append(events, eventFor(displaced))
	}

	next.refreshCompleted()
	return next, events, nil
}

// Rotate turns a piece a quarter turn in the given direction
func Rotate(s State, pieceID string, dir Direction) (State, Event, error) {
	p, ok := s.pieces[pieceID]
	if !ok {
		return s, Event{}, &UnknownPieceError{PieceID: pieceID}
	}

	next := s.clone()
	rotated := piece.WithRotation(p, dir.Degrees())
	next.pieces[pieceID] = rotated
	next.recompute(pieceID)
	next.refreshCompleted()

	return next, eventFor(rotated), nil
}

// ApplyRemote merges an event produced by another client. It sets the piece's
// slot and rotation absolutely, so applying the same event twice is a no-op.
// A piece already on the target slot takes the incoming piece's old slot, the
// same swap the writer performed, so no two pieces ever share a slot even if
// the writer's event for the displaced piece never arrives.
func ApplyRemote(s State, ev Event) (State, error) {
	p, ok := s.pieces[ev.PieceID]
	if !ok {
		return s, &UnknownPieceError{PieceID: ev.PieceID}
	}
	if !s.inGrid(ev.Slot) {
		return s, &InvalidSlotError{Slot: ev.Slot, Size: s.size}
	}
	if p.Current == ev.Slot && p.Rotation == ev.Rotation {
		return s, nil
	}

	next := s.clone()
	updated := piece.WithSlot(p, ev.Slot)
	updated.Rotation = ev.Rotation
	next.pieces[ev.PieceID] = updated
	next.recompute(ev.PieceID)

	if p.Current != ev.Slot {
		if occupant, found := s.occupant(ev.Slot, ev.PieceID); found {
			next.pieces[occupant.ID] = piece.WithSlot(occupant, p.Current)
			next.recompute(occupant.ID)
		}
	}

	next.refreshCompleted()
	return next, nil
}

// CheckCompletion reports whether every piece is currently correct. An empty
// puzzle is never complete.
func CheckCompletion(s State) bool {
	return len(s.pieces) > 0 && len(s.correct) == len(s.pieces)
}

func isIdentity(perm []int) bool {
	for i, v := range perm {
		if i != v {
			return false
		}
	}
	return true
}

func slotAt(i, size int) piece.Slot {
	return piece.Slot{X: i % size, Y: i / size}
}

func (s State) inGrid(slot piece.Slot) bool {
	return slot.X >= 0 && slot.Y >= 0 && slot.X < s.size && slot.Y < s.size
}

func (s State) occupant(slot piece.Slot, except string) (piece.Piece, bool) {
	for _, id := range s.order {
		if id == except {
			continue
		}
		if p := s.pieces[id]; p.Current == slot {
			return p, true
		}
	}
	return piece.Piece{}, false
}

// clone copies the mutable maps. order is shared since it never changes after
// Initialize.
func (s State) clone() State {
	next := State{
		size:      s.size,
		order:     s.order,
		pieces:    make(map[string]piece.Piece, len(s.pieces)),
		correct:   make(map[string]struct{}, len(s.correct)),
		completed: s.completed,
	}
	for id, p := range s.pieces {
		next.pieces[id] = p
	}
	for id := range s.correct {
		next.correct[id] = struct{}{}
	}
	return next
}

// recompute must only be called on a freshly cloned state
func (s *State) recompute(id string) {
	if piece.IsCorrect(s.pieces[id]) {
		s.correct[id] = struct{}{}
	} else {
		delete(s.correct, id)
	}
}

func (s *State) refreshCompleted() {
	if !s.completed && CheckCompletion(*s) {
		s.completed = true
	}
}
