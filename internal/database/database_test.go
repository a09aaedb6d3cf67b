package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMigratedCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.db")
	db, err := OpenMigrated(path)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"results", "claims"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	// second run is a no-op and keeps the handle usable
	require.NoError(t, Migrate(db))
	require.NoError(t, db.Ping())
}
