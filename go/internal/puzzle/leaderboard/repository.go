package leaderboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jigsaw/go/internal/puzzle/leaderboard/db"
	"github.com/mcdev12/jigsaw/go/internal/sqlutil"
)

// Querier defines the read queries the repository needs from the database layer
type Querier interface {
	TopScores(ctx context.Context, arg db.TopScoresParams) ([]db.LeaderboardEntry, error)
}

// Repository reads and records leaderboard entries
type Repository struct {
	conn    *sql.DB
	queries Querier
}

// NewRepository creates a repository on top of a Postgres connection
func NewRepository(conn *sql.DB) *Repository {
	return &Repository{
		conn:    conn,
		queries: db.New(conn),
	}
}

// NewRepositoryWithQuerier creates a read-only repository over a custom querier
func NewRepositoryWithQuerier(querier Querier) *Repository {
	return &Repository{queries: querier}
}

// TopScores returns up to limit entries for a puzzle at a difficulty, fastest
// first. A limit of zero or less means DefaultLimit.
func (r *Repository) TopScores(ctx context.Context, puzzleID string, difficulty, limit int) ([]Entry, error) {
	if puzzleID == "" {
		return nil, errors.New("puzzle id is required")
	}
	if difficulty < 1 {
		return nil, fmt.Errorf("invalid difficulty %d", difficulty)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := r.queries.TopScores(ctx, db.TopScoresParams{
		PuzzleID:   puzzleID,
		Difficulty: int32(difficulty),
		Limit:      int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query top scores: %w", err)
	}

	entries := make([]Entry, len(rows))
	for i, row := range rows {
		entries[i] = dbEntryToModel(row)
	}
	return entries, nil
}

// RecordCompletion inserts an entry and notifies listeners in one transaction.
// A second entry for the same session is ignored and reported as not recorded.
func (r *Repository) RecordCompletion(ctx context.Context, entry Entry) (bool, error) {
	if r.conn == nil {
		return false, errors.New("repository has no database connection")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	recorded := false
	err := sqlutil.Run(ctx, r.conn, func(tx *sql.Tx) *db.Queries { return db.New(tx) }, func(q *db.Queries) error {
		_, err := q.InsertEntry(ctx, db.InsertEntryParams{
			ID:          entry.ID,
			PuzzleID:    entry.PuzzleID,
			SessionID:   entry.SessionID,
			PlayerName:  entry.PlayerName,
			Difficulty:  int32(entry.Difficulty),
			DurationMs:  entry.Duration.Milliseconds(),
			CompletedAt: entry.CompletedAt,
			Metadata:    sqlutil.ToNullRawMessage(entry.Metadata),
		})
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to insert leaderboard entry: %w", err)
		}
		recorded = true
		if err := q.NotifyLeaderboard(ctx, entry.PuzzleID); err != nil {
			return fmt.Errorf("failed to notify leaderboard listeners: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	log.Info().
		Str("session_id", entry.SessionID).
		Str("puzzle_id", entry.PuzzleID).
		Dur("duration", entry.Duration).
		Bool("recorded", recorded).
		Msg("completion recorded")

	return recorded, nil
}

func dbEntryToModel(row db.LeaderboardEntry) Entry {
	return Entry{
		ID:          row.ID,
		PuzzleID:    row.PuzzleID,
		SessionID:   row.SessionID,
		PlayerName:  row.PlayerName,
		Difficulty:  int(row.Difficulty),
		Duration:    time.Duration(row.DurationMs) * time.Millisecond,
		CompletedAt: row.CompletedAt,
		Metadata:    sqlutil.FromNullRawMessage(row.Metadata),
	}
}
