package drag_test

import (
	"testing"
	"time"

	"github.com/aretw0/marktree/pkg/domain"
	"github.com/aretw0/marktree/pkg/drag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Layout(t *testing.T) {
	root := &domain.Node{ID: domain.RootID, Children: []*domain.Node{
		{ID: "F", ParentID: domain.RootID, Children: []*domain.Node{
			{ID: "A", ParentID: "F", URL: "https://a"},
			{ID: "S", ParentID: "F", Index: 1},
		}},
	}}
	doc := drag.Render(domain.NewSnapshot([]*domain.Node{root}, 1, time.Now()))

	header := doc.Header("F")
	require.NotNil(t, header)
	assert.Equal(t, drag.Rect{Width: drag.Width, Height: drag.RowHeight}, header.Rect())

	for i := 0; i <= 2; i++ {
		gap := doc.Gap("F", i)
		require.NotNil(t, gap, "gap %d", i)
		assert.Equal(t, drag.Indent, gap.Rect().X)
	}
	require.NotNil(t, doc.Gap("S", 0), "empty folder keeps one insertion point")
	assert.Nil(t, doc.Gap("S", 1))

	a := doc.Item("A")
	require.NotNil(t, a)
	assert.Equal(t, drag.RowHeight+drag.GapHeight, a.Rect().Y)

	// Nested folder contents are indented one level further.
	assert.Equal(t, 2*drag.Indent, doc.Gap("S", 0).Rect().X)

	container := doc.Container("F").Rect()
	last := doc.Gap("F", 2).Rect()
	assert.Equal(t, last.Y+last.Height, container.Y+container.Height, "container spans its last gap")
}

func TestDoc_HitTesting(t *testing.T) {
	doc := drag.NewDoc(drag.Rect{Width: 100, Height: 100})
	box := drag.El("div", drag.Rect{Width: 100, Height: 50}, "class", "box outer")
	inner := drag.El("span", drag.Rect{X: 10, Y: 10, Width: 20, Height: 20}, drag.AttrBookmarkID, "x")
	ghost := drag.El("div", drag.Rect{Width: 100, Height: 100})
	ghost.Transparent = true
	doc.Root().Append(box.Append(inner), ghost)

	assert.True(t, box.HasClass("box"))
	assert.True(t, box.HasClass("outer"))

	stack := doc.ElementsFromPoint(15, 15)
	require.Len(t, stack, 2)
	assert.Same(t, inner, stack[0])
	assert.Same(t, box, stack[1])
	assert.Same(t, inner, doc.ElementFromPoint(15, 15))
	assert.Nil(t, doc.ElementFromPoint(50, 80))

	// Right and bottom edges are exclusive.
	assert.Same(t, box, doc.ElementFromPoint(30, 30))

	items := doc.DraggableItems()
	require.Len(t, items, 1)
	assert.Same(t, inner, items[0])

	doc.MarkDragging(inner)
	assert.Equal(t, []*drag.Node{inner}, doc.Dragging())
	doc.ClearDragging()
	assert.Empty(t, doc.Dragging())
}
