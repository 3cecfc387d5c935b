package drag

import (
	"strconv"

	"github.com/aretw0/marktree/pkg/domain"
)

// Layout metrics used by Render.
const (
	RowHeight = 20.0
	GapHeight = 4.0
	Indent    = 16.0
	Width     = 320.0
)

// Render lays out the folders below the root of snap as a vertical list, the way the
// bookmark view draws them: a header row per folder, then an insertion point before
// every child and after the last one. Every folder is drawn expanded.
func Render(snap *domain.Snapshot) *Doc {
	doc := NewDoc(Rect{Width: Width, Height: 1 << 20})
	y := 0.0
	for _, root := range snap.Roots {
		for _, folder := range root.Children {
			if folder.IsFolder() {
				doc.root.Append(renderFolder(folder, 0, &y))
			}
		}
	}
	return doc
}

func renderFolder(folder *domain.Node, depth int, y *float64) *Node {
	x := float64(depth) * Indent
	top := *y

	container := El("div", Rect{}, "class", "folder", AttrFolderID, folder.ID)
	header := El("div", Rect{X: x, Y: *y, Width: Width - x, Height: RowHeight},
		"class", ClassFolderHeader,
		AttrFolderID, folder.ID,
		AttrBookmarkID, folder.ID,
		AttrParentID, folder.ParentID,
		AttrIndex, strconv.Itoa(folder.Index),
	)
	container.Append(header)
	*y += RowHeight

	gap := func(i int) *Node {
		g := El("div", Rect{X: x + Indent, Y: *y, Width: Width - x - Indent, Height: GapHeight},
			"class", ClassInsertionPoint,
			AttrParentID, folder.ID,
			AttrIndex, strconv.Itoa(i),
		)
		*y += GapHeight
		return g
	}

	for i, child := range folder.Children {
		container.Append(gap(i))
		if child.IsFolder() {
			container.Append(renderFolder(child, depth+1, y))
			continue
		}
		container.Append(El("div", Rect{X: x + Indent, Y: *y, Width: Width - x - Indent, Height: RowHeight},
			"class", "bookmark",
			AttrBookmarkID, child.ID,
			AttrParentID, folder.ID,
			AttrIndex, strconv.Itoa(i),
		))
		*y += RowHeight
	}
	container.Append(gap(len(folder.Children)))

	container.rect = Rect{X: x, Y: top, Width: Width - x, Height: *y - top}
	return container
}
