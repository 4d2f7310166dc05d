package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const insertEntry = `-- name: InsertEntry :one
INSERT INTO leaderboard_entries (
    id, puzzle_id, session_id, player_name, difficulty, duration_ms, completed_at, metadata
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8
)
ON CONFLICT (session_id) DO NOTHING
RETURNING id, puzzle_id, session_id, player_name, difficulty, duration_ms, completed_at, metadata
`

type InsertEntryParams struct {
	ID          uuid.UUID             `json:"id"`
	PuzzleID    string                `json:"puzzle_id"`
	SessionID   string                `json:"session_id"`
	PlayerName  string                `json:"player_name"`
	Difficulty  int32                 `json:"difficulty"`
	DurationMs  int64                 `json:"duration_ms"`
	CompletedAt time.Time             `json:"completed_at"`
	Metadata    pqtype.NullRawMessage `json:"metadata"`
}

// InsertEntry returns sql.ErrNoRows when the session already has an entry
func (q *Queries) InsertEntry(ctx context.Context, arg InsertEntryParams) (LeaderboardEntry, error) {
	row := q.db.QueryRowContext(ctx, insertEntry,
		arg.ID,
		arg.PuzzleID,
		arg.SessionID,
		arg.PlayerName,
		arg.Difficulty,
		arg.DurationMs,
		arg.CompletedAt,
		arg.Metadata,
	)
	var i LeaderboardEntry
	err := row.Scan(
		&i.ID,
		&i.PuzzleID,
		&i.SessionID,
		&i.PlayerName,
		&i.Difficulty,
		&i.DurationMs,
		&i.CompletedAt,
		&i.Metadata,
	)
	return i, err
}

const notifyLeaderboard = `-- name: NotifyLeaderboard :exec
SELECT pg_notify('leaderboard_updates', $1::text)
`

func (q *Queries) NotifyLeaderboard(ctx context.Context, puzzleID string) error {
	_, err := q.db.ExecContext(ctx, notifyLeaderboard, puzzleID)
	return err
}

const topScores = `-- name: TopScores :many
SELECT id, puzzle_id, session_id, player_name, difficulty, duration_ms, completed_at, metadata
FROM leaderboard_entries
WHERE puzzle_id = $1 AND difficulty = $2
ORDER BY duration_ms ASC, completed_at ASC
LIMIT $3
`

type TopScoresParams struct {
	PuzzleID   string `json:"puzzle_id"`
	Difficulty int32  `json:"difficulty"`
	Limit      int32  `json:"limit"`
}

func (q *Queries) TopScores(ctx context.Context, arg TopScoresParams) ([]LeaderboardEntry, error) {
	rows, err := q.db.QueryContext(ctx, topScores, arg.PuzzleID, arg.Difficulty, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LeaderboardEntry
	for rows.Next() {
		var i LeaderboardEntry
		if err := rows.Scan(
			&i.ID,
			&i.PuzzleID,
			&i.SessionID,
			&i.PlayerName,
			&i.Difficulty,
			&i.DurationMs,
			&i.CompletedAt,
			&i.Metadata,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertPuzzle = `-- name: UpsertPuzzle :exec
INSERT INTO puzzles (id, title, image_url, width, height, premium)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    image_url = EXCLUDED.image_url,
    width = EXCLUDED.width,
    height = EXCLUDED.height,
    premium = EXCLUDED.premium
`

// UpsertPuzzleSQL is exported for the catalog seeder, which runs it through pgx
const UpsertPuzzleSQL = upsertPuzzle
