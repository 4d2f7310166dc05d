package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/leaderboard"
)

type fakeStore struct {
	entries []leaderboard.Entry
	err     error
}

func (f *fakeStore) RecordCompletion(_ context.Context, e leaderboard.Entry) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.entries = append(f.entries, e)
	return true, nil
}

func completedEvent(t *testing.T, p PuzzleCompletedPayload) Event {
	t.Helper()
	ev, err := NewEvent(EventTypePuzzleCompleted, "s1", p.CompletedAt, p)
	require.NoError(t, err)
	return ev
}

func TestMsgIDDedupesLifecycleTransitions(t *testing.T) {
	at := time.Now()
	a, err := NewEvent(EventTypePuzzleCompleted, "s1", at, struct{}{})
	require.NoError(t, err)
	b, err := NewEvent(EventTypePuzzleCompleted, "s1", at.Add(time.Second), struct{}{})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.MsgID(), b.MsgID())

	j1, _ := NewEvent(EventTypePlayerJoined, "s1", at, struct{}{})
	j2, _ := NewEvent(EventTypePlayerJoined, "s1", at, struct{}{})
	assert.NotEqual(t, j1.MsgID(), j2.MsgID())
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "puzzle.events.PuzzleCompleted", DefaultJetStreamConfig().Subject(EventTypePuzzleCompleted))
	assert.Equal(t, "puzzle.events.PuzzleCompleted", DefaultConsumerConfig().SubjectFilter)
}

func TestDecode(t *testing.T) {
	ev := completedEvent(t, PuzzleCompletedPayload{PuzzleID: "lighthouse"})
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, ev.SessionID, got.SessionID)
	assert.JSONEq(t, string(ev.Payload), string(got.Payload))

	_, err = Decode([]byte(`{"eventType":"PuzzleCompleted"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestRecordCompletions(t *testing.T) {
	started := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	handle := RecordCompletions(store)

	ev := completedEvent(t, PuzzleCompletedPayload{
		PuzzleID:    "lighthouse",
		Difficulty:  5,
		HostName:    "Alice",
		Players:     []string{"Alice", "Bob"},
		StartedAt:   started,
		CompletedAt: started.Add(3 * time.Minute),
	})
	require.NoError(t, handle(context.Background(), ev))

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	assert.Equal(t, "lighthouse", entry.PuzzleID)
	assert.Equal(t, "s1", entry.SessionID)
	assert.Equal(t, "Alice +1", entry.PlayerName)
	assert.Equal(t, 5, entry.Difficulty)
	assert.Equal(t, 3*time.Minute, entry.Duration)
	assert.JSONEq(t, `{"players":["Alice","Bob"]}`, string(entry.Metadata))
}

func TestRecordCompletionsSkipsOtherEvents(t *testing.T) {
	store := &fakeStore{}
	handle := RecordCompletions(store)

	joined, err := NewEvent(EventTypePlayerJoined, "s1", time.Now(), PlayerJoinedPayload{PlayerID: "p"})
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), joined))

	noDuration := completedEvent(t, PuzzleCompletedPayload{PuzzleID: "lighthouse"})
	require.NoError(t, handle(context.Background(), noDuration))

	assert.Empty(t, store.entries)
}

func TestRecordCompletionsPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("db down")
	handle := RecordCompletions(&fakeStore{err: boom})

	started := time.Now()
	ev := completedEvent(t, PuzzleCompletedPayload{
		PuzzleID:    "lighthouse",
		Difficulty:  3,
		StartedAt:   started,
		CompletedAt: started.Add(time.Minute),
	})
	assert.ErrorIs(t, handle(context.Background(), ev), boom)
}
