package file_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/marktree/pkg/adapters/file"
	"github.com/aretw0/marktree/pkg/domain"
	"github.com/aretw0/marktree/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	store, err := file.New(filepath.Join(t.TempDir(), "bookmarks.json"))
	require.NoError(t, err)
	ports.RunBookmarkStoreContract(t, store)
}

func TestFileStore_EventContract(t *testing.T) {
	store, err := file.New(filepath.Join(t.TempDir(), "bookmarks.json"))
	require.NoError(t, err)
	ports.RunEventSourceContract(t, store, store)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "bookmarks.json")

	first, err := file.New(path)
	require.NoError(t, err)
	f, err := first.Create(ctx, domain.CreateDetails{ParentID: domain.RootID, Title: "F"})
	require.NoError(t, err)
	a, err := first.Create(ctx, domain.CreateDetails{ParentID: f.ID, Title: "A", URL: "https://a"})
	require.NoError(t, err)
	_, err = first.Create(ctx, domain.CreateDetails{ParentID: f.ID, Title: "B", URL: "https://b"})
	require.NoError(t, err)
	_, err = first.Move(ctx, a.ID, domain.Append(f.ID))
	require.NoError(t, err)

	second, err := file.New(path)
	require.NoError(t, err)
	children, err := second.GetChildren(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "B", children[0].Title)
	assert.Equal(t, "A", children[1].Title)
	assert.Equal(t, 1, children[1].Index)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_FailedWriteLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "store")
	store, err := file.New(filepath.Join(dir, "bookmarks.json"))
	require.NoError(t, err)
	f, err := store.Create(ctx, domain.CreateDetails{ParentID: domain.RootID, Title: "F"})
	require.NoError(t, err)
	g, err := store.Create(ctx, domain.CreateDetails{ParentID: domain.RootID, Title: "G"})
	require.NoError(t, err)
	a, err := store.Create(ctx, domain.CreateDetails{ParentID: g.ID, Title: "A", URL: "https://a"})
	require.NoError(t, err)

	events, err := store.Subscribe(ctx)
	require.NoError(t, err)

	// The document can no longer be written: its directory is now a plain file.
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0644))

	n, err := store.Move(ctx, a.ID, domain.At(f.ID, 0))
	assert.Error(t, err)
	assert.Nil(t, n)

	n, err = store.Create(ctx, domain.CreateDetails{ParentID: f.ID, Title: "B", URL: "https://b"})
	assert.Error(t, err)
	assert.Nil(t, n)

	title := "Renamed"
	n, err = store.Update(ctx, a.ID, domain.Changes{Title: &title})
	assert.Error(t, err)
	assert.Nil(t, n)

	assert.Error(t, store.Remove(ctx, g.ID))

	children, err := store.GetChildren(ctx, f.ID)
	require.NoError(t, err)
	assert.Empty(t, children, "F keeps its last saved children")
	children, err = store.GetChildren(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "A", children[0].Title)

	select {
	case ev := <-events:
		t.Fatalf("event published for an unsaved write: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	// Once the directory is back, writes go through and are published.
	require.NoError(t, os.Remove(dir))
	_, err = store.Move(ctx, a.ID, domain.At(f.ID, 0))
	require.NoError(t, err)
	select {
	case ev := <-events:
		assert.Equal(t, domain.MutationMoved, ev.Kind)
		assert.Equal(t, a.ID, ev.ID)
		assert.Equal(t, f.ID, ev.ParentID)
	case <-time.After(time.Second):
		t.Fatal("moved event not published")
	}
}

func TestFileStore_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookmarks.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err := file.New(path)
	assert.Error(t, err)
}

func TestFileStore_WatchPublishesExternalEdits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "bookmarks.json")
	store, err := file.New(path, file.WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	f, err := store.Create(ctx, domain.CreateDetails{ParentID: domain.RootID, Title: "F"})
	require.NoError(t, err)

	events, err := store.Subscribe(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()
	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	// Another program renames the folder.
	roots, err := store.GetTree(ctx)
	require.NoError(t, err)
	roots[0].Children[0].Title = "Renamed"
	data, err := json.Marshal(map[string]any{"roots": roots})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	select {
	case ev := <-events:
		assert.Equal(t, domain.MutationChanged, ev.Kind)
		assert.Equal(t, f.ID, ev.ID)
		assert.Equal(t, "file", ev.Origin)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for external edit")
	}

	children, err := store.GetChildren(ctx, domain.RootID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", children[0].Title)

	cancel()
	assert.NoError(t, <-done)
}
