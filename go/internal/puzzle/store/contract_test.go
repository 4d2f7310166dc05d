package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/piece"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/placement"
	"github.com/mcdev12/jigsaw/go/internal/puzzle/session"
)

// runStoreContract exercises the behavior every session.Store shares
func runStoreContract(t *testing.T, newStore func(t *testing.T) session.Store) {
	t.Run("session record", func(t *testing.T) {
		testSessionRecord(t, newStore(t))
	})
	t.Run("concurrent completion", func(t *testing.T) {
		testConcurrentCompletion(t, newStore(t))
	})
	t.Run("pieces", func(t *testing.T) {
		testPieces(t, newStore(t))
	})
	t.Run("piece watch", func(t *testing.T) {
		testPieceWatch(t, newStore(t))
	})
	t.Run("player watch", func(t *testing.T) {
		testPlayerWatch(t, newStore(t))
	})
}

func nextUpdate[T any](t *testing.T, sub session.Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.Updates():
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no update delivered")
	}
	var zero T
	return zero
}

func testSessionRecord(t *testing.T, s session.Store) {
	ctx := context.Background()

	_, err := s.GetSession(ctx, "s1")
	var notFound *session.SessionNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "s1", notFound.SessionID)

	rec := session.Record{PuzzleID: "lake", HostID: "h", Difficulty: 3, Seed: 9, Status: session.StatusActive}
	require.NoError(t, s.CreateSession(ctx, "s1", rec))
	assert.ErrorIs(t, s.CreateSession(ctx, "s1", rec), session.ErrSessionExists)

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = s.CompleteSession(ctx, "missing", time.Now())
	assert.True(t, errors.As(err, &notFound))

	at := time.Unix(100, 0).UTC()
	flipped, err := s.CompleteSession(ctx, "s1", at)
	require.NoError(t, err)
	assert.True(t, flipped)
	flipped, err = s.CompleteSession(ctx, "s1", at.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, flipped)

	got, err = s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, at.Equal(*got.CompletedAt))
}

func testConcurrentCompletion(t *testing.T, s session.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, "s1", session.Record{PuzzleID: "lake", Difficulty: 2, Status: session.StatusActive}))

	const writers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		flipped int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.CompleteSession(ctx, "s1", time.Unix(int64(i), 0))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				flipped++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, flipped)
}

func testPieces(t *testing.T, s session.Store) {
	ctx := context.Background()

	got, err := s.Pieces(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got)

	a := placement.Event{PieceID: "p0_0", Slot: piece.Slot{X: 1, Y: 0}, Timestamp: 1}
	b := placement.Event{PieceID: "p1_0", Slot: piece.Slot{X: 0, Y: 0}, Rotation: 90, Timestamp: 2}
	require.NoError(t, s.PutPiece(ctx, "s1", a))
	require.NoError(t, s.PutPiece(ctx, "s1", b))
	require.NoError(t, s.PutPiece(ctx, "s2", placement.Event{PieceID: "p0_0", Timestamp: 3}))

	// last write wins per piece
	a.Slot = piece.Slot{X: 1, Y: 1}
	a.Timestamp = 4
	require.NoError(t, s.PutPiece(ctx, "s1", a))

	got, err = s.Pieces(ctx, "s1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []placement.Event{a, b}, got)
}

func testPieceWatch(t *testing.T, s session.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutPiece(ctx, "s1", placement.Event{PieceID: "p1_1", Timestamp: 1}))

	sub, err := s.WatchPieces(ctx, "s1")
	require.NoError(t, err)

	// only writes after the watch started, only for this session
	ev := placement.Event{PieceID: "p0_0", Slot: piece.Slot{X: 1, Y: 1}, Timestamp: 5}
	require.NoError(t, s.PutPiece(ctx, "s2", placement.Event{PieceID: "p0_0", Timestamp: 2}))
	require.NoError(t, s.PutPiece(ctx, "s1", ev))
	assert.Equal(t, ev, nextUpdate(t, sub))

	require.NoError(t, sub.Stop())
	require.NoError(t, sub.Stop())
	for range sub.Updates() {
	}

	// writes after stop do not panic on the closed channel
	require.NoError(t, s.PutPiece(ctx, "s1", ev))
}

func testPlayerWatch(t *testing.T, s session.Store) {
	ctx := context.Background()
	alice := session.Player{ID: "alice", Name: "Alice", Color: "#f00"}
	require.NoError(t, s.PutPlayer(ctx, "s1", alice))

	sub, err := s.WatchPlayers(ctx, "s1")
	require.NoError(t, err)
	defer sub.Stop()

	assert.Equal(t, session.Roster{"alice": alice}, nextUpdate(t, sub))

	bob := session.Player{ID: "bob", Name: "Bob"}
	require.NoError(t, s.PutPlayer(ctx, "s1", bob))
	require.NoError(t, s.PutPlayer(ctx, "s2", session.Player{ID: "carol"}))
	assert.Equal(t, session.Roster{"alice": alice, "bob": bob}, nextUpdate(t, sub))

	require.NoError(t, s.RemovePlayer(ctx, "s1", "alice"))
	assert.Equal(t, session.Roster{"bob": bob}, nextUpdate(t, sub))

	roster, err := s.Players(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, session.Roster{"bob": bob}, roster)
}

func TestMemoryContract(t *testing.T) {
	runStoreContract(t, func(*testing.T) session.Store { return NewMemory() })
}
