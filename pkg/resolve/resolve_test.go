package resolve_test

import (
	"fmt"
	"testing"

	"github.com/aretw0/marktree/pkg/domain"
	"github.com/aretw0/marktree/pkg/resolve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func siblings(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('A' + i))
	}
	return out
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestResolve_SameParentFormula(t *testing.T) {
	for n := 1; n <= 8; n++ {
		order := siblings(n)
		for src := 0; src < n; src++ {
			for gap := 0; gap <= n; gap++ {
				name := fmt.Sprintf("n=%d/src=%d/gap=%d", n, src, gap)
				candidate := domain.DragCandidate{ItemID: order[src], SourceParentID: "p", SourceIndex: src}
				dest, err := resolve.Resolve(candidate, domain.InsertionPoint("p", gap))

				if gap == src || gap == src+1 {
					assert.ErrorIs(t, err, domain.ErrDegenerateMove, name)
					continue
				}
				require.NoError(t, err, name)
				require.NotNil(t, dest.Index, name)

				want := gap
				if gap > src {
					want = gap - 1
				}
				assert.Equal(t, want, *dest.Index, name)

				// The item must land exactly in the gap the user pointed at: after
				// everything that was left of the gap, before everything right of it.
				final := resolve.Apply(order, order[src], dest)
				assert.Equal(t, want, indexOf(final, order[src]), name)
				if gap > 0 && gap-1 != src {
					assert.Less(t, indexOf(final, order[gap-1]), indexOf(final, order[src]), name)
				}
				if gap < n && gap != src {
					assert.Greater(t, indexOf(final, order[gap]), indexOf(final, order[src]), name)
				}
			}
		}
	}
}

func TestResolve_CrossParentKeepsIndex(t *testing.T) {
	for src := 0; src < 5; src++ {
		for k := 0; k <= 5; k++ {
			candidate := domain.DragCandidate{ItemID: "x", SourceParentID: "A", SourceIndex: src}
			dest, err := resolve.Resolve(candidate, domain.InsertionPoint("B", k))
			require.NoError(t, err)
			assert.Equal(t, "B", dest.ParentID)
			require.NotNil(t, dest.Index)
			assert.Equal(t, k, *dest.Index)
		}
	}
}

func TestResolve_InverseRestoresOrder(t *testing.T) {
	order := siblings(6)
	for i := 0; i < len(order); i++ {
		for j := 0; j <= len(order); j++ {
			if j == i || j == i+1 {
				continue
			}
			item := order[i]
			dest, err := resolve.Resolve(domain.DragCandidate{ItemID: item, SourceParentID: "p", SourceIndex: i}, domain.InsertionPoint("p", j))
			require.NoError(t, err)
			moved := resolve.Apply(order, item, dest)

			// Move back: the gap that restores index i in the pre-move order.
			at := indexOf(moved, item)
			back := i
			if i > at {
				back = i + 1
			}
			dest, err = resolve.Resolve(domain.DragCandidate{ItemID: item, SourceParentID: "p", SourceIndex: at}, domain.InsertionPoint("p", back))
			require.NoError(t, err)
			assert.Equal(t, order, resolve.Apply(moved, item, dest), "i=%d j=%d", i, j)
		}
	}
}

func TestResolve_Scenarios(t *testing.T) {
	t.Run("Move First To Gap Two", func(t *testing.T) {
		order := []string{"A", "B", "C", "D", "E"}
		dest, err := resolve.Resolve(domain.DragCandidate{ItemID: "A", SourceParentID: "f", SourceIndex: 0}, domain.InsertionPoint("f", 2))
		require.NoError(t, err)
		assert.Equal(t, 1, *dest.Index)
		assert.Equal(t, []string{"B", "A", "C", "D", "E"}, resolve.Apply(order, "A", dest))
	})

	t.Run("Header Drop Prepends", func(t *testing.T) {
		dest, err := resolve.Resolve(domain.DragCandidate{ItemID: "X", SourceParentID: "other", SourceIndex: 3}, domain.FolderTarget("F", true))
		require.NoError(t, err)
		assert.Equal(t, "F", dest.ParentID)
		require.NotNil(t, dest.Index)
		assert.Equal(t, 0, *dest.Index)
		assert.Equal(t, []string{"X", "P", "Q"}, resolve.Insert([]string{"P", "Q"}, "X", dest.Index))
	})

	t.Run("Folder Body Drop Appends", func(t *testing.T) {
		dest, err := resolve.Resolve(domain.DragCandidate{ItemID: "X", SourceParentID: "other"}, domain.FolderTarget("F", false))
		require.NoError(t, err)
		assert.Nil(t, dest.Index)
		assert.Equal(t, []string{"P", "Q", "X"}, resolve.Insert([]string{"P", "Q"}, "X", dest.Index))
	})

	t.Run("Header Drop On Own Parent At Top Is No-Op", func(t *testing.T) {
		_, err := resolve.Resolve(domain.DragCandidate{ItemID: "P", SourceParentID: "F", SourceIndex: 0}, domain.FolderTarget("F", true))
		assert.ErrorIs(t, err, domain.ErrDegenerateMove)
	})

	t.Run("Folder Dropped On Itself", func(t *testing.T) {
		_, err := resolve.Resolve(domain.DragCandidate{ItemID: "F", SourceParentID: "0"}, domain.FolderTarget("F", false))
		assert.ErrorIs(t, err, domain.ErrDegenerateMove)
	})
}

func TestResolve_InvalidInput(t *testing.T) {
	cases := map[string]struct {
		candidate domain.DragCandidate
		target    domain.InsertionTarget
	}{
		"empty item":      {domain.DragCandidate{}, domain.InsertionPoint("p", 0)},
		"empty parent":    {domain.DragCandidate{ItemID: "a"}, domain.InsertionPoint("", 0)},
		"empty folder":    {domain.DragCandidate{ItemID: "a"}, domain.FolderTarget("", false)},
		"negative gap":    {domain.DragCandidate{ItemID: "a", SourceParentID: "q"}, domain.InsertionPoint("p", -1)},
		"negative source": {domain.DragCandidate{ItemID: "a", SourceParentID: "p", SourceIndex: -2}, domain.InsertionPoint("p", 3)},
		"unknown kind":    {domain.DragCandidate{ItemID: "a"}, domain.InsertionTarget{Kind: "bogus"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := resolve.Resolve(tc.candidate, tc.target)
			assert.ErrorIs(t, err, domain.ErrInvalidTarget)
		})
	}
}
