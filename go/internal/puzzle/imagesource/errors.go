package imagesource

import (
	"errors"
	"fmt"
)

// ErrUnknownPuzzle is wrapped by ImageLoadError when the catalog has no entry
var ErrUnknownPuzzle = errors.New("unknown puzzle")

// ImageLoadError reports that a puzzle image could not be resolved to pixel
// dimensions. Callers may retry.
type ImageLoadError struct {
	PuzzleID string
	URL      string
	Err      error
}

func (e *ImageLoadError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("load image for puzzle %q: %v", e.PuzzleID, e.Err)
	}
	return fmt.Sprintf("load image for puzzle %q from %s: %v", e.PuzzleID, e.URL, e.Err)
}

func (e *ImageLoadError) Unwrap() error { return e.Err }
