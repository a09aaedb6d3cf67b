package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir isolates Load from any .env or tiles.toml in the package directory.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestDefaults(t *testing.T) {
	chdir(t)
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5175", c.Port)
	assert.Equal(t, "aead", c.Sealing.Mode)
	assert.Equal(t, 24*time.Hour, c.Sealing.MaxPermit)
	assert.Equal(t, []string{"testnet", "mainnet"}, c.Sealing.Environments)
	assert.Equal(t, 8*time.Second, c.Readiness.BootTimeout)
	assert.Equal(t, 250*time.Millisecond, c.Readiness.PollInterval)
	assert.Equal(t, 10000, c.Sessions.Capacity)
	assert.Equal(t, 14, c.JWT.ExpiresDays)
	assert.InDelta(t, 20.0, c.RateLimit.RPS, 0.001)
}

func TestEnvironmentOverrides(t *testing.T) {
	chdir(t)
	t.Setenv("TILES_SEALING_MODE", "mock")
	t.Setenv("TILES_READINESS_BOOT_TIMEOUT", "2s")
	t.Setenv("TILES_SESSIONS_CAPACITY", "12")
	t.Setenv("PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mock", c.Sealing.Mode)
	assert.Equal(t, 2*time.Second, c.Readiness.BootTimeout)
	assert.Equal(t, 12, c.Sessions.Capacity)
	assert.Equal(t, "9999", c.Port)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestConfigFileAndDotenv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiles.toml"), []byte(`
[daily]
salt = "from-file"

[play]
identity = "0x52908400098527886E0F7030069857D2E4169EE7"
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TILES_DB_PATH=/tmp/tiles-test.db\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("TILES_DB_PATH") })

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", c.Daily.Salt)
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", c.Play.Identity)
	assert.Equal(t, "/tmp/tiles-test.db", c.DB.Path)
}

func TestValidate(t *testing.T) {
	chdir(t)
	t.Setenv("TILES_SEALING_MODE", "quantum")
	_, err := Load()
	assert.ErrorContains(t, err, "sealing.mode")

	t.Setenv("TILES_SEALING_MODE", "aead")
	t.Setenv("TILES_SEALING_SECRET", "short")
	_, err = Load()
	assert.ErrorContains(t, err, "sealing.secret")

	t.Setenv("TILES_SEALING_SECRET", "long-enough-secret-value")
	t.Setenv("NODE_ENV", "production")
	_, err = Load()
	assert.ErrorContains(t, err, "production")
}
