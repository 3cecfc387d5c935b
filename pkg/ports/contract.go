package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/marktree/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBookmarkStoreContract runs a suite of tests to verify that a BookmarkStore implementation
// adheres to the defined interface contract. The store must contain the root folder
// domain.RootID and may contain anything else.
func RunBookmarkStoreContract(t *testing.T, store BookmarkStore) {
	ctx := context.Background()
	suffix := time.Now().Format("150405.000")

	newFolder := func(t *testing.T, parentID, title string) *domain.Node {
		t.Helper()
		n, err := store.Create(ctx, domain.CreateDetails{ParentID: parentID, Title: title + " " + suffix})
		require.NoError(t, err)
		require.NotEmpty(t, n.ID)
		return n
	}
	newBookmarks := func(t *testing.T, parentID string, titles ...string) map[string]string {
		t.Helper()
		ids := make(map[string]string, len(titles))
		for _, title := range titles {
			n, err := store.Create(ctx, domain.CreateDetails{ParentID: parentID, Title: title, URL: "https://example.com/" + title})
			require.NoError(t, err)
			ids[title] = n.ID
		}
		return ids
	}
	titles := func(t *testing.T, parentID string) []string {
		t.Helper()
		children, err := store.GetChildren(ctx, parentID)
		require.NoError(t, err)
		out := make([]string, len(children))
		for i, c := range children {
			assert.Equal(t, i, c.Index, "indices must be contiguous")
			assert.Equal(t, parentID, c.ParentID)
			out[i] = c.Title
		}
		return out
	}

	t.Run("Tree Has Root", func(t *testing.T) {
		roots, err := store.GetTree(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, roots)
		assert.Equal(t, domain.RootID, roots[0].ID)
		assert.True(t, roots[0].IsFolder())
	})

	t.Run("Create Appends And Indexes", func(t *testing.T) {
		f := newFolder(t, domain.RootID, "create")
		newBookmarks(t, f.ID, "A", "B", "C")
		assert.Equal(t, []string{"A", "B", "C"}, titles(t, f.ID))

		at := 1
		n, err := store.Create(ctx, domain.CreateDetails{ParentID: f.ID, Title: "X", URL: "https://example.com/x", Index: &at})
		require.NoError(t, err)
		assert.Equal(t, 1, n.Index)
		assert.Equal(t, []string{"A", "X", "B", "C"}, titles(t, f.ID))
	})

	t.Run("Same Parent Move Uses Post-Removal Index", func(t *testing.T) {
		f := newFolder(t, domain.RootID, "reorder")
		ids := newBookmarks(t, f.ID, "A", "B", "C", "D", "E")

		moved, err := store.Move(ctx, ids["A"], domain.At(f.ID, 1))
		require.NoError(t, err)
		assert.Equal(t, f.ID, moved.ParentID)
		assert.Equal(t, 1, moved.Index)
		assert.Equal(t, []string{"B", "A", "C", "D", "E"}, titles(t, f.ID))

		moved, err = store.Move(ctx, ids["B"], domain.Append(f.ID))
		require.NoError(t, err)
		assert.Equal(t, 4, moved.Index)
		assert.Equal(t, []string{"A", "C", "D", "E", "B"}, titles(t, f.ID))

		_, err = store.Move(ctx, ids["B"], domain.At(f.ID, 0))
		require.NoError(t, err)
		assert.Equal(t, []string{"B", "A", "C", "D", "E"}, titles(t, f.ID))
	})

	t.Run("Cross Parent Move", func(t *testing.T) {
		src := newFolder(t, domain.RootID, "src")
		dst := newFolder(t, domain.RootID, "dst")
		ids := newBookmarks(t, src.ID, "A", "B")
		newBookmarks(t, dst.ID, "P", "Q")

		moved, err := store.Move(ctx, ids["A"], domain.At(dst.ID, 0))
		require.NoError(t, err)
		assert.Equal(t, dst.ID, moved.ParentID)
		assert.Equal(t, 0, moved.Index)
		assert.Equal(t, []string{"A", "P", "Q"}, titles(t, dst.ID))
		assert.Equal(t, []string{"B"}, titles(t, src.ID))

		_, err = store.Move(ctx, ids["B"], domain.At(dst.ID, 3))
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "P", "Q", "B"}, titles(t, dst.ID))
		assert.Empty(t, titles(t, src.ID))
	})

	t.Run("Move Rejections", func(t *testing.T) {
		f := newFolder(t, domain.RootID, "reject")
		inner := newFolder(t, f.ID, "inner")
		ids := newBookmarks(t, f.ID, "A")

		_, err := store.Move(ctx, "missing-"+suffix, domain.Append(f.ID))
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)

		_, err = store.Move(ctx, ids["A"], domain.Append("missing-"+suffix))
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)

		_, err = store.Move(ctx, f.ID, domain.Append(inner.ID))
		assert.ErrorIs(t, err, domain.ErrInvalidTarget, "folder into its own descendant")

		_, err = store.Move(ctx, inner.ID, domain.Append(ids["A"]))
		assert.ErrorIs(t, err, domain.ErrInvalidTarget, "into a bookmark")

		_, err = store.Move(ctx, ids["A"], domain.At(f.ID, 5))
		assert.ErrorIs(t, err, domain.ErrInvalidTarget, "index past the end")

		_, err = store.Move(ctx, domain.RootID, domain.Append(f.ID))
		assert.ErrorIs(t, err, domain.ErrInvalidTarget, "root is immovable")

		assert.Len(t, titles(t, f.ID), 2, "rejected moves leave the tree untouched")
	})

	t.Run("Update", func(t *testing.T) {
		f := newFolder(t, domain.RootID, "update")
		ids := newBookmarks(t, f.ID, "A")
		title := "Renamed"
		n, err := store.Update(ctx, ids["A"], domain.Changes{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", n.Title)
		assert.Equal(t, "https://example.com/A", n.URL)

		_, err = store.Update(ctx, "missing-"+suffix, domain.Changes{Title: &title})
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)
	})

	t.Run("Remove Subtree", func(t *testing.T) {
		f := newFolder(t, domain.RootID, "remove")
		inner := newFolder(t, f.ID, "inner")
		newBookmarks(t, inner.ID, "deep")
		ids := newBookmarks(t, f.ID, "A", "B")

		require.NoError(t, store.Remove(ctx, inner.ID))
		assert.Equal(t, []string{"A", "B"}, titles(t, f.ID))

		_, err := store.GetChildren(ctx, inner.ID)
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)

		require.NoError(t, store.Remove(ctx, ids["A"]))
		assert.Equal(t, []string{"B"}, titles(t, f.ID))

		assert.ErrorIs(t, store.Remove(ctx, ids["A"]), domain.ErrNodeNotFound)
	})

	t.Run("GetTree Nests Children", func(t *testing.T) {
		f := newFolder(t, domain.RootID, "nested")
		inner := newFolder(t, f.ID, "inner")
		newBookmarks(t, inner.ID, "leaf")

		roots, err := store.GetTree(ctx)
		require.NoError(t, err)
		snap := domain.NewSnapshot(roots, 1, time.Now())
		n, ok := snap.Node(inner.ID)
		require.True(t, ok)
		require.Len(t, n.Children, 1)
		assert.Equal(t, "leaf", n.Children[0].Title)
		assert.True(t, snap.IsAncestor(f.ID, n.Children[0].ID))
	})
}

// RunEventSourceContract verifies that mutations performed through store are reported by events.
func RunEventSourceContract(t *testing.T, store BookmarkStore, events EventSource) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := events.Subscribe(ctx)
	require.NoError(t, err)

	f, err := store.Create(ctx, domain.CreateDetails{ParentID: domain.RootID, Title: "events"})
	require.NoError(t, err)
	a, err := store.Create(ctx, domain.CreateDetails{ParentID: f.ID, Title: "A", URL: "https://example.com/a"})
	require.NoError(t, err)
	_, err = store.Create(ctx, domain.CreateDetails{ParentID: f.ID, Title: "B", URL: "https://example.com/b"})
	require.NoError(t, err)
	_, err = store.Move(ctx, a.ID, domain.Append(f.ID))
	require.NoError(t, err)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "channel closed before the move was reported")
			if ev.Kind == domain.MutationMoved && ev.ID == a.ID {
				assert.Equal(t, f.ID, ev.ParentID)
				assert.Equal(t, 1, ev.Index)
				cancel()
				// The channel must close once the subscription context is done.
				for range ch {
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for moved event")
		}
	}
}
