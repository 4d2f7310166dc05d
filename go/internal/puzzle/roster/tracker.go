package roster

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
)

// Handler receives membership notifications
type Handler interface {
	PlayerJoined(p session.Player)
	PlayerLeft(p session.Player)
}

// LeavePolicy decides what happens to players missing from a new snapshot
type LeavePolicy interface {
	// Departed returns the players to drop given the previous membership
	// and the latest snapshot.
	Departed(previous, snapshot session.Roster) []session.Player
}

// KeepAll never removes players. A player who disconnects stays listed.
type KeepAll struct{}

func (KeepAll) Departed(session.Roster, session.Roster) []session.Player { return nil }

// DropMissing removes players that are absent from the latest snapshot
type DropMissing struct{}

func (DropMissing) Departed(previous, snapshot session.Roster) []session.Player {
	var gone []session.Player
	for id, p := range previous {
		if _, ok := snapshot[id]; !ok {
			gone = append(gone, p)
		}
	}
	sortPlayers(gone)
	return gone
}

// Tracker keeps the connected player set for a session and raises one join
// notification per newly observed player id.
type Tracker struct {
	players session.Roster
	seen    map[string]struct{}
	policy  LeavePolicy
	handler Handler
}

// NewTracker creates a tracker. A nil policy means KeepAll.
func NewTracker(handler Handler, policy LeavePolicy) *Tracker {
	if policy == nil {
		policy = KeepAll{}
	}
	return &Tracker{
		players: make(session.Roster),
		seen:    make(map[string]struct{}),
		policy:  policy,
		handler: handler,
	}
}

// Observe diffs a roster snapshot against the current membership. It returns
// the players that joined with this snapshot.
func (t *Tracker) Observe(snapshot session.Roster) []session.Player {
	var joined []session.Player
	for id, p := range snapshot {
		if _, ok := t.seen[id]; !ok {
			t.seen[id] = struct{}{}
			joined = append(joined, p)
		}
		t.players[id] = p
	}
	sortPlayers(joined)

	departed := t.policy.Departed(t.players, snapshot)
	for _, p := range departed {
		delete(t.players, p.ID)
		// a returning player is announced again
		delete(t.seen, p.ID)
	}

	if t.handler != nil {
		for _, p := range joined {
			log.Debug().Str("player_id", p.ID).Str("name", p.Name).Msg("player joined")
			t.handler.PlayerJoined(p)
		}
		for _, p := range departed {
			log.Debug().Str("player_id", p.ID).Msg("player left")
			t.handler.PlayerLeft(p)
		}
	}

	return joined
}

// Players returns a copy of the current membership
func (t *Tracker) Players() session.Roster {
	return t.players.Clone()
}

// Len returns the number of tracked players
func (t *Tracker) Len() int {
	return len(t.players)
}

func sortPlayers(ps []session.Player) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].JoinedAt.Before(ps[j].JoinedAt)
	})
}
