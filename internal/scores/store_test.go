package scores

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/sealed2048/internal/database"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.OpenMigrated(filepath.Join(t.TempDir(), "scores.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestLeaderboardOrdering(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	for _, r := range []Result{
		{SessionID: "a", Owner: "alice", Mode: "daily", Date: "2026-10-17", Score: 1200, MaxTile: 128, Moves: 150},
		{SessionID: "b", Owner: "bob", Mode: "daily", Date: "2026-10-17", Score: 1200, MaxTile: 128, Moves: 120, Sealed: true},
		{SessionID: "c", Owner: "carol", Mode: "daily", Date: "2026-10-17", Score: 3000, MaxTile: 256, Moves: 300},
		{SessionID: "d", Owner: "dave", Mode: "daily", Date: "2026-10-16", Score: 9000, MaxTile: 512, Moves: 500},
		{SessionID: "e", Owner: "erin", Mode: "classic", Score: 50000, MaxTile: 2048, Moves: 1000},
	} {
		require.NoError(t, s.InsertResult(ctx, r))
	}

	rows, err := s.Leaderboard(ctx, "daily", "2026-10-17", 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{rows[0].SessionID, rows[1].SessionID, rows[2].SessionID})
	assert.True(t, rows[1].Sealed)
	assert.False(t, rows[0].CreatedAt.IsZero())

	all, err := s.Leaderboard(ctx, "daily", "", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "d", all[0].SessionID)

	best, err := s.Best(ctx, "erin", "classic")
	require.NoError(t, err)
	assert.Equal(t, uint64(50000), best)
	best, err = s.Best(ctx, "nobody", "classic")
	require.NoError(t, err)
	assert.Zero(t, best)
}

func TestInsertResultIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	r := Result{SessionID: "same", Owner: "o", Mode: "classic", Score: 10, MaxTile: 8, Moves: 3}
	require.NoError(t, s.InsertResult(ctx, r))
	r.Score = 99999
	require.NoError(t, s.InsertResult(ctx, r))

	rows, err := s.Leaderboard(ctx, "classic", "", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(10), rows[0].Score)
}

func TestLeaderboardQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("disk I/O error")
	mock.ExpectQuery("SELECT session_id").WillReturnError(boom)
	mock.ExpectExec("INSERT OR IGNORE INTO results").WillReturnError(sql.ErrConnDone)

	s := NewStore(db)
	_, err = s.Leaderboard(context.Background(), "classic", "", 5)
	assert.ErrorIs(t, err, boom)
	err = s.InsertResult(context.Background(), Result{SessionID: "x"})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}
