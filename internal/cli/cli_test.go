package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/marktree/internal/cli"
	"github.com/aretw0/marktree/internal/config"
	"github.com/aretw0/marktree/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig(backend string) *config.Config {
	return &config.Config{
		Log:       config.LogConfig{Level: "info"},
		Store:     config.StoreConfig{Backend: backend},
		Redis:     config.RedisConfig{Prefix: "marktree:", LockTTL: time.Second},
		File:      config.FileConfig{Debounce: 10 * time.Millisecond},
		Reconcile: config.ReconcileConfig{Window: 10 * time.Millisecond},
		Drag:      config.DragConfig{StaleAfter: time.Second},
	}
}

const seed = `
- title: Work
  children:
    - title: Tracker
      url: https://tracker.example
    - title: Wiki
      url: https://wiki.example
- title: Later
`

func TestCreateEngine_MemoryWithSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0644))

	cfg := baseConfig(config.BackendMemory)
	cfg.Store.Seed = path
	rt, err := cli.CreateEngine(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer rt.Close()
	assert.Nil(t, rt.Watch)

	snap, err := rt.Engine.Tree(context.Background())
	require.NoError(t, err)
	root, _ := snap.Node(domain.RootID)
	require.Len(t, root.Children, 2)
	assert.Equal(t, "Work", root.Children[0].Title)
	assert.Len(t, root.Children[0].Children, 2)

	var buf bytes.Buffer
	require.NoError(t, cli.NewPlainTreePrinter(&buf, false).Print(snap, ""))
	assert.Equal(t, "Work/\n  Tracker  https://tracker.example\n  Wiki  https://wiki.example\nLater/\n", buf.String())

	buf.Reset()
	err = cli.NewPlainTreePrinter(&buf, false).Print(snap, "missing")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestCreateEngine_File(t *testing.T) {
	cfg := baseConfig(config.BackendFile)
	cfg.File.Path = filepath.Join(t.TempDir(), "bookmarks.json")

	rt, err := cli.CreateEngine(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, rt.Watch)

	ctx := context.Background()
	f, err := rt.Engine.Create(ctx, domain.CreateDetails{ParentID: domain.RootID, Title: "F"})
	require.NoError(t, err)
	_, err = rt.Engine.Create(ctx, domain.CreateDetails{ParentID: f.ID, Title: "A", URL: "https://a"})
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	// A second runtime over the same file sees the same tree.
	again, err := cli.CreateEngine(ctx, cfg, nil)
	require.NoError(t, err)
	children, err := again.Engine.Children(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "A", children[0].Title)
}

func TestCreateEngine_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig(config.BackendRedis)
	cfg.Redis.Addr = mr.Addr()

	rt, err := cli.CreateEngine(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	ctx := context.Background()
	f, err := rt.Engine.Create(ctx, domain.CreateDetails{ParentID: domain.RootID, Title: "F"})
	require.NoError(t, err)
	a, err := rt.Engine.Create(ctx, domain.CreateDetails{ParentID: domain.RootID, Title: "A", URL: "https://a"})
	require.NoError(t, err)

	moved, err := rt.Engine.Move(ctx, a.ID, domain.Append(f.ID))
	require.NoError(t, err)
	assert.Equal(t, f.ID, moved.ParentID)
	assert.False(t, mr.Exists("marktree:lock:move:"+a.ID), "move lock released")
}

func TestCreateEngine_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := baseConfig(config.BackendRedis)
	cfg.Redis.Addr = addr
	_, err := cli.CreateEngine(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "error connecting to redis")
}

func TestNewLogger(t *testing.T) {
	cfg := baseConfig(config.BackendMemory)
	logger, err := cli.NewLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.Log.Level = "chatty"
	_, err = cli.NewLogger(cfg)
	assert.Error(t, err)
}
