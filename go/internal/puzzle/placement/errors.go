package placement

import (
	"fmt"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/piece"
)

// InvalidImageError is returned when a puzzle cannot be cut from the given
// image dimensions and difficulty.
type InvalidImageError struct {
	Width      int
	Height     int
	Difficulty int
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("invalid image %dx%d for difficulty %d", e.Width, e.Height, e.Difficulty)
}

// UnknownPieceError is returned when an operation names a piece not in the puzzle
type UnknownPieceError struct {
	PieceID string
}

func (e *UnknownPieceError) Error() string {
	return fmt.Sprintf("unknown piece %q", e.PieceID)
}

// InvalidSlotError is returned when a move targets a slot outside the grid
type InvalidSlotError struct {
	Slot piece.Slot
	Size int
}

func (e *InvalidSlotError) Error() string {
	return fmt.Sprintf("slot %s outside %dx%d grid", e.Slot, e.Size, e.Size)
}
