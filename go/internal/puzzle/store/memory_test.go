package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/piece"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
)

func TestMemoryPieceWatchIsScopedToSession(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	sub, err := m.WatchPieces(ctx, "s1")
	require.NoError(t, err)

	ev := placement.Event{PieceID: "p0_0", Slot: piece.Slot{X: 1, Y: 1}, Timestamp: 5}
	require.NoError(t, m.PutPiece(ctx, "s2", placement.Event{PieceID: "p0_0"}))
	require.NoError(t, m.PutPiece(ctx, "s1", ev))

	select {
	case got := <-sub.Updates():
		assert.Equal(t, ev, got)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	require.NoError(t, sub.Stop())
	require.NoError(t, sub.Stop())
	_, open := <-sub.Updates()
	assert.False(t, open)

	// writes after stop do not panic on the closed channel
	require.NoError(t, m.PutPiece(ctx, "s1", ev))
}

func TestMemoryPlayerWatchDeliversSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemory()
	require.NoError(t, m.PutPlayer(ctx, "s1", session.Player{ID: "a"}))

	sub, err := m.WatchPlayers(ctx, "s1")
	require.NoError(t, err)

	first := <-sub.Updates()
	assert.Len(t, first, 1)

	require.NoError(t, m.PutPlayer(ctx, "s1", session.Player{ID: "b"}))
	second := <-sub.Updates()
	assert.Len(t, second, 2)

	require.NoError(t, m.RemovePlayer(ctx, "s1", "a"))
	third := <-sub.Updates()
	assert.Equal(t, session.Roster{"b": {ID: "b"}}, third)

	cancel()
	select {
	case _, open := <-sub.Updates():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription not released on context cancel")
	}
}
