// internal/claims/ledger.go
//
// Durable record of claimed achievements.
// Each identity can claim a given achievement once; repeat mints are no-ops,
// so a player who restarts or reconnects cannot claim twice.

package claims

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/sealed2048/internal/progress"
)

// ErrNoIdentity is returned when a claim carries no identity.
var ErrNoIdentity = errors.New("claim has no identity")

// Entry is one recorded claim.
type Entry struct {
	Identity      string    `json:"identity"`
	AchievementID string    `json:"achievementId"`
	SessionID     string    `json:"sessionId"`
	Threshold     uint32    `json:"threshold"`
	ClaimedAt     time.Time `json:"claimedAt"`
}

type Ledger struct{ db *sql.DB }

func NewLedger(db *sql.DB) *Ledger { return &Ledger{db: db} }

// Mint records c. Identities are stored lower-cased.
func (l *Ledger) Mint(ctx context.Context, c progress.Claim) error {
	id := strings.ToLower(strings.TrimSpace(c.Identity))
	if id == "" {
		return ErrNoIdentity
	}
	at := c.ClaimedAt
	if at.IsZero() {
		at = time.Now()
	}
	res, err := l.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO claims
            (identity, achievement_id, session_id, threshold, claimed_at)
        VALUES (?, ?, ?, ?, ?)`,
		id, c.Achievement.ID, c.SessionID, c.Achievement.Threshold, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		log.Debug().Str("identity", id).Str("achievement", c.Achievement.ID).Msg("claim already recorded")
	}
	return nil
}

// ClaimsFor lists an identity's claims, oldest first.
func (l *Ledger) ClaimsFor(ctx context.Context, identity string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
        SELECT identity, achievement_id, session_id, threshold, claimed_at
        FROM claims
        WHERE identity = ?
        ORDER BY claimed_at ASC, threshold ASC`,
		strings.ToLower(strings.TrimSpace(identity)),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Identity, &e.AchievementID, &e.SessionID, &e.Threshold, &e.ClaimedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
