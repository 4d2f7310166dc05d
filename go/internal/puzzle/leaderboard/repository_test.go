package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/leaderboard/db"
)

type fakeQuerier struct {
	got  db.TopScoresParams
	rows []db.LeaderboardEntry
	err  error
}

func (f *fakeQuerier) TopScores(_ context.Context, arg db.TopScoresParams) ([]db.LeaderboardEntry, error) {
	f.got = arg
	if f.err != nil {
		return nil, f.err
	}
	if int(arg.Limit) < len(f.rows) {
		return f.rows[:arg.Limit], nil
	}
	return f.rows, nil
}

func TestTopScoresDefaultsLimit(t *testing.T) {
	q := &fakeQuerier{}
	repo := NewRepositoryWithQuerier(q)

	_, err := repo.TopScores(context.Background(), "lighthouse", 4, 0)
	require.NoError(t, err)
	assert.Equal(t, db.TopScoresParams{PuzzleID: "lighthouse", Difficulty: 4, Limit: DefaultLimit}, q.got)

	_, err = repo.TopScores(context.Background(), "lighthouse", 4, 5000)
	require.NoError(t, err)
	assert.EqualValues(t, MaxLimit, q.got.Limit)
}

func TestTopScoresMapsRows(t *testing.T) {
	completed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := uuid.New()
	q := &fakeQuerier{rows: []db.LeaderboardEntry{
		{
			ID:          id,
			PuzzleID:    "lighthouse",
			SessionID:   "s1",
			PlayerName:  "Alice",
			Difficulty:  4,
			DurationMs:  65_000,
			CompletedAt: completed,
			Metadata:    pqtype.NullRawMessage{RawMessage: json.RawMessage(`{"players":2}`), Valid: true},
		},
		{PuzzleID: "lighthouse", SessionID: "s2", Difficulty: 4, DurationMs: 90_000},
	}}
	repo := NewRepositoryWithQuerier(q)

	entries, err := repo.TopScores(context.Background(), "lighthouse", 4, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, Entry{
		ID:          id,
		PuzzleID:    "lighthouse",
		SessionID:   "s1",
		PlayerName:  "Alice",
		Difficulty:  4,
		Duration:    65 * time.Second,
		CompletedAt: completed,
		Metadata:    json.RawMessage(`{"players":2}`),
	}, entries[0])
}

func TestTopScoresValidation(t *testing.T) {
	repo := NewRepositoryWithQuerier(&fakeQuerier{})

	_, err := repo.TopScores(context.Background(), "", 4, 10)
	assert.Error(t, err)
	_, err = repo.TopScores(context.Background(), "lighthouse", 0, 10)
	assert.Error(t, err)
}

func TestTopScoresWrapsQueryError(t *testing.T) {
	boom := errors.New("connection refused")
	repo := NewRepositoryWithQuerier(&fakeQuerier{err: boom})

	_, err := repo.TopScores(context.Background(), "lighthouse", 4, 10)
	assert.ErrorIs(t, err, boom)
}

func TestRecordCompletionRequiresConnection(t *testing.T) {
	repo := NewRepositoryWithQuerier(&fakeQuerier{})

	recorded, err := repo.RecordCompletion(context.Background(), Entry{PuzzleID: "lighthouse"})
	assert.Error(t, err)
	assert.False(t, recorded)
}
