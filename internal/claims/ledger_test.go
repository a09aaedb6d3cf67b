package claims

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/sealed2048/internal/database"
	"github.com/robalobadob/sealed2048/internal/progress"
)

const addr = "0x52908400098527886E0F7030069857D2E4169EE7"

func TestMintIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenMigrated(filepath.Join(t.TempDir(), "claims.db"))
	require.NoError(t, err)
	defer db.Close()
	l := NewLedger(db)

	at := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	c := progress.Claim{
		Identity:    addr,
		SessionID:   "s1",
		Achievement: progress.Achievement{ID: "tile-128", Threshold: 128, Unlocked: true, Claimed: true},
		ClaimedAt:   at,
	}
	require.NoError(t, l.Mint(ctx, c))
	c.SessionID = "s2"
	require.NoError(t, l.Mint(ctx, c))

	c.Achievement = progress.Achievement{ID: "tile-256", Threshold: 256}
	c.ClaimedAt = at.Add(time.Minute)
	require.NoError(t, l.Mint(ctx, c))

	got, err := l.ClaimsFor(ctx, addr)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tile-128", got[0].AchievementID)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.Equal(t, uint32(128), got[0].Threshold)
	assert.True(t, got[0].ClaimedAt.Equal(at))
	assert.Equal(t, "tile-256", got[1].AchievementID)

	none, err := l.ClaimsFor(ctx, "0x0000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMintRequiresIdentity(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	err = NewLedger(db).Mint(context.Background(), progress.Claim{})
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestMintWrapsDatabaseErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("database is locked")
	mock.ExpectExec("INSERT OR IGNORE INTO claims").
		WithArgs("0x52908400098527886e0f7030069857d2e4169ee7", "tile-512", "s9", int64(512), sqlmock.AnyArg()).
		WillReturnError(boom)

	err = NewLedger(db).Mint(context.Background(), progress.Claim{
		Identity:    addr,
		SessionID:   "s9",
		Achievement: progress.Achievement{ID: "tile-512", Threshold: 512},
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
