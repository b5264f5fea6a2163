package server

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gamenight-server/internal/scoreboard"
)

// Committer is the narrow contract through which finalized rosters leave the
// core. Implementations persist each entry as a permanent record; the caller
// clears the in-progress roster afterwards.
type Committer interface {
	CommitScores(ctx context.Context, eventID, gameID int, entries []scoreboard.Entry) error
	ListScores(ctx context.Context, eventID, gameID int) ([]ScoreRecord, error)
}

// ScoreRecord is one committed, permanent score row.
type ScoreRecord struct {
	ID         int64   `json:"id"`
	EventID    int     `json:"event_id"`
	GameID     int     `json:"game_id"`
	PlayerName string  `json:"player_name"`
	Score      float64 `json:"score"`
}

// ScoreCommitter persists finalized scores to PostgreSQL.
type ScoreCommitter struct {
	pool *pgxpool.Pool
}

func NewScoreCommitter(pool *pgxpool.Pool) *ScoreCommitter {
	return &ScoreCommitter{pool: pool}
}

// CommitScores inserts one row per entry in a single batch. The core calls
// this exactly once per explicit submit; dedup of replays is this layer's
// concern, and plain inserts are acceptable for the domain (re-submitting a
// roster is a user action, not a retry loop).
func (sc *ScoreCommitter) CommitScores(ctx context.Context, eventID, gameID int, entries []scoreboard.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO scores (event_id, game_id, player_name, score) VALUES ($1, $2, $3, $4)`,
			eventID, gameID, e.Name, e.Score,
		)
	}

	results := sc.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("commit scores for game %d: %w", gameID, err)
		}
	}

	return nil
}

// ListScores returns committed scores for an event/game, highest first.
// Zero ids match everything, mirroring the optional query filters.
func (sc *ScoreCommitter) ListScores(ctx context.Context, eventID, gameID int) ([]ScoreRecord, error) {
	query := `SELECT id, event_id, game_id, player_name, score FROM scores WHERE 1=1`
	args := []any{}

	if eventID != 0 {
		args = append(args, eventID)
		query += fmt.Sprintf(" AND event_id = $%d", len(args))
	}
	if gameID != 0 {
		args = append(args, gameID)
		query += fmt.Sprintf(" AND game_id = $%d", len(args))
	}
	query += " ORDER BY score DESC"

	rows, err := sc.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var records []ScoreRecord
	for rows.Next() {
		var r ScoreRecord
		if err := rows.Scan(&r.ID, &r.EventID, &r.GameID, &r.PlayerName, &r.Score); err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score rows: %w", err)
	}

	return records, nil
}
