package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/marktree/internal/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, config.BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "marktree:", cfg.Redis.Prefix)
	assert.Equal(t, 30*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, 100*time.Millisecond, cfg.File.Debounce)
	assert.Equal(t, 50*time.Millisecond, cfg.Reconcile.Window)
	assert.Equal(t, 10*time.Second, cfg.Drag.StaleAfter)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marktree.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
store:
  backend: redis
redis:
  addr: cache:6379
  db: 2
reconcile:
  window: 250ms
`)
	t.Setenv("MARKTREE_REDIS_DB", "5")
	t.Setenv("MARKTREE_DRAG_STALE_AFTER", "3s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.String("redis-addr", "", "")
	require.NoError(t, flags.Parse([]string{"--redis-addr", "other:6380"}))

	cfg, err := config.Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level, "unchanged flag keeps the file value")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, config.BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "other:6380", cfg.Redis.Addr, "flag wins")
	assert.Equal(t, 5, cfg.Redis.DB, "env wins over file")
	assert.Equal(t, 250*time.Millisecond, cfg.Reconcile.Window)
	assert.Equal(t, 3*time.Second, cfg.Drag.StaleAfter)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("Missing Explicit File", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
		assert.Error(t, err)
	})

	t.Run("Unknown Backend", func(t *testing.T) {
		_, err := config.Load(writeConfig(t, "store:\n  backend: sqlite\n"), nil)
		assert.ErrorContains(t, err, "unknown store backend")
	})

	t.Run("Bad Duration", func(t *testing.T) {
		_, err := config.Load(writeConfig(t, "file:\n  debounce: soon\n"), nil)
		assert.Error(t, err)
	})

	t.Run("Negative Window", func(t *testing.T) {
		_, err := config.Load(writeConfig(t, "reconcile:\n  window: -1s\n"), nil)
		assert.ErrorContains(t, err, "reconcile.window")
	})
}
