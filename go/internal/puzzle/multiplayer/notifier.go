package multiplayer

import (
	"github.com/mcdev12/jigsaw/go/internal/puzzle/piece"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
)

// Notifier receives everything a session view reacts to. Callbacks run on the
// session event loop and must not block.
type Notifier interface {
	placement.Notifier

	PlayerJoined(p session.Player)
	PlayerLeft(p session.Player)
	// PieceUpdated fires for every local event published and every remote
	// event accepted by the staleness filter.
	PieceUpdated(ev placement.Event, remote bool)
	SyncError(err error)
}

// NopNotifier ignores all notifications
type NopNotifier struct{}

func (NopNotifier) PiecePlaced(piece.Piece) {}
func (NopNotifier) PuzzleCompleted(placement.State) {}
func (NopNotifier) PlayerJoined(session.Player) {}
func (NopNotifier) PlayerLeft(session.Player) {}
func (NopNotifier) PieceUpdated(placement.Event, bool) {}
func (NopNotifier) SyncError(error) {}
