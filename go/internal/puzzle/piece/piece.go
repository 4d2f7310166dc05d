package piece

import "fmt"

// Slot is a discrete grid coordinate a piece can occupy
type Slot struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (s Slot) String() string {
	return fmt.Sprintf("(%d,%d)", s.X, s.Y)
}

// Dimensions is the piece extent and its offset into the source image
type Dimensions struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
}

// Piece is a single puzzle unit. Values are never mutated in place; use
// WithSlot and WithRotation to derive a changed copy.
type Piece struct {
	ID         string     `json:"id"`
	Correct    Slot       `json:"correct_slot"`
	Current    Slot       `json:"current_slot"`
	Rotation   int        `json:"rotation"`
	Dimensions Dimensions `json:"dimensions"`
}

// IDFor derives the stable piece identifier from its correct slot
func IDFor(correct Slot) string {
	return fmt.Sprintf("p%d_%d", correct.X, correct.Y)
}

// New creates a piece whose current slot starts at the given position
func New(correct, current Slot, dims Dimensions) Piece {
	return Piece{
		ID:         IDFor(correct),
		Correct:    correct,
		Current:    current,
		Dimensions: dims,
	}
}

// IsCorrect reports whether the piece sits on its correct slot with no net rotation
func IsCorrect(p Piece) bool {
	return p.Current == p.Correct && NormalizedRotation(p.Rotation) == 0
}

// WithSlot returns a copy of p moved to slot. Rotation is unchanged.
func WithSlot(p Piece, slot Slot) Piece {
	p.Current = slot
	return p
}

// WithRotation returns a copy of p rotated by delta degrees. No wraparound is
// applied; comparisons go through NormalizedRotation.
func WithRotation(p Piece, delta int) Piece {
	p.Rotation += delta
	return p
}

// NormalizedRotation maps any rotation into [0, 360)
func NormalizedRotation(rotation int) int {
	r := rotation % 360
	if r < 0 {
		r += 360
	}
	return r
}
