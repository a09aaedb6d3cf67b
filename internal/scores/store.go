// internal/scores/store.go
//
// Finished-game results and leaderboards.
// Rows are keyed by session, so recording the same game twice is ignored.

package scores

import (
	"context"
	"database/sql"
	"time"
)

// DefaultLimit caps leaderboard rows when no limit is given.
const DefaultLimit = 20

type Result struct {
	SessionID string    `json:"sessionId"`
	Owner     string    `json:"owner"`
	Mode      string    `json:"mode"`
	Date      string    `json:"date,omitempty"`
	Score     uint64    `json:"score"`
	MaxTile   uint32    `json:"maxTile"`
	Moves     int       `json:"moves"`
	Sealed    bool      `json:"sealed"`
	CreatedAt time.Time `json:"createdAt"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// InsertResult records r. A second result for the same session is ignored.
func (s *Store) InsertResult(ctx context.Context, r Result) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO results
            (session_id, owner, mode, date, score, max_tile, moves, sealed)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Owner, r.Mode, r.Date, int64(r.Score), r.MaxTile, r.Moves, r.Sealed,
	)
	return err
}

// Leaderboard returns the best results for mode, optionally limited to one
// date. Ties go to the fewer moves, then the earlier finish.
func (s *Store) Leaderboard(ctx context.Context, mode, date string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT session_id, owner, mode, date, score, max_tile, moves, sealed, created_at
        FROM results
        WHERE mode = ? AND (? = '' OR date = ?)
        ORDER BY score DESC, moves ASC, created_at ASC, id ASC
        LIMIT ?`, mode, date, date, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Result, 0, limit)
	for rows.Next() {
		var (
			r     Result
			score int64
		)
		if err := rows.Scan(&r.SessionID, &r.Owner, &r.Mode, &r.Date, &score, &r.MaxTile, &r.Moves, &r.Sealed, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Score = uint64(score)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Best returns owner's top score in mode, or 0 if they have none.
func (s *Store) Best(ctx context.Context, owner, mode string) (uint64, error) {
	var best sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(score) FROM results WHERE owner = ? AND mode = ?`, owner, mode,
	).Scan(&best)
	if err != nil {
		return 0, err
	}
	return uint64(best.Int64), nil
}
