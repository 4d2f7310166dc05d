package roster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
)

type recordingHandler struct {
	joined []string
	left   []string
}

func (h *recordingHandler) PlayerJoined(p session.Player) { h.joined = append(h.joined, p.ID) }
func (h *recordingHandler) PlayerLeft(p session.Player) { h.left = append(h.left, p.ID) }

func player(id string, joinedAt time.Duration) session.Player {
	return session.Player{ID: id, Name: "name-" + id, Color: "#fff", JoinedAt: time.Unix(0, 0).Add(joinedAt)}
}

func TestObserveRaisesOneJoinPerPlayer(t *testing.T) {
	h := &recordingHandler{}
	tr := NewTracker(h, nil)

	alice, bob := player("alice", time.Second), player("bob", 2*time.Second)

	joined := tr.Observe(session.Roster{"alice": alice})
	assert.Equal(t, []session.Player{alice}, joined)

	// same membership again, then bob joins, then a color change
	tr.Observe(session.Roster{"alice": alice})
	tr.Observe(session.Roster{"alice": alice, "bob": bob})
	bob.Color = "#000"
	tr.Observe(session.Roster{"alice": alice, "bob": bob})

	assert.Equal(t, []string{"alice", "bob"}, h.joined)
	assert.Equal(t, "#000", tr.Players()["bob"].Color)
	assert.Empty(t, h.left)
}

func TestObserveOrdersSimultaneousJoins(t *testing.T) {
	h := &recordingHandler{}
	tr := NewTracker(h, KeepAll{})

	tr.Observe(session.Roster{
		"c": player("c", 3*time.Second),
		"a": player("a", time.Second),
		"b": player("b", time.Second),
	})
	assert.Equal(t, []string{"a", "b", "c"}, h.joined)
}

func TestKeepAllRetainsMissingPlayers(t *testing.T) {
	h := &recordingHandler{}
	tr := NewTracker(h, KeepAll{})

	tr.Observe(session.Roster{"alice": player("alice", 0), "bob": player("bob", 0)})
	tr.Observe(session.Roster{"alice": player("alice", 0)})

	assert.Equal(t, 2, tr.Len())
	assert.Empty(t, h.left)
}

func TestDropMissingRemovesAndReannounces(t *testing.T) {
	h := &recordingHandler{}
	tr := NewTracker(h, DropMissing{})

	tr.Observe(session.Roster{"alice": player("alice", 0), "bob": player("bob", 0)})
	tr.Observe(session.Roster{"alice": player("alice", 0)})

	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, []string{"bob"}, h.left)

	tr.Observe(session.Roster{"alice": player("alice", 0), "bob": player("bob", 0)})
	assert.Equal(t, []string{"alice", "bob", "bob"}, h.joined)
}
