package drag

// Attribute and class names of the DOM contract.
const (
	AttrBookmarkID = "data-bookmark-id"
	AttrID         = "data-id"
	AttrParentID   = "data-parent-id"
	AttrIndex      = "data-index"
	AttrFolderID   = "data-folder-id"

	ClassInsertionPoint = "insertion-point"
	ClassFolderHeader   = "folder-header"
	ClassDragging       = "dragging"
)

// Rect is an element's bounding box in viewport coordinates.
type Rect struct {
	X, Y, Width, Height float64
}

// Contains reports whether (x, y) lies inside r. The right and bottom edges are exclusive.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// MidY is the vertical midpoint.
func (r Rect) MidY() float64 {
	return r.Y + r.Height/2
}

// Center returns the middle of r.
func (r Rect) Center() (x, y float64) {
	return r.X + r.Width/2, r.MidY()
}

func (r Rect) area() float64 {
	return r.Width * r.Height
}

// Element is the read-only view of a DOM element the controller needs.
type Element interface {
	Attr(name string) (string, bool)
	HasClass(class string) bool
	// Parent returns nil at the top of the tree.
	Parent() Element
	Rect() Rect
}

// Surface answers hit-testing questions about the rendered tree.
type Surface interface {
	// ElementFromPoint returns the topmost element at (x, y), or nil.
	ElementFromPoint(x, y float64) Element
	// ElementsFromPoint returns every element at (x, y), topmost first.
	ElementsFromPoint(x, y float64) []Element
	// DraggableItems returns every element that represents a draggable item.
	DraggableItems() []Element
}

// Marker applies and removes the visual "dragging" state.
type Marker interface {
	MarkDragging(el Element)
	ClearDragging()
}

// itemID returns the item id an element carries, if any.
func itemID(el Element) (string, bool) {
	if id, ok := el.Attr(AttrBookmarkID); ok && id != "" {
		return id, true
	}
	if id, ok := el.Attr(AttrID); ok && id != "" {
		return id, true
	}
	return "", false
}

// ancestors calls fn for el and each of its ancestors until fn returns true.
func ancestors(el Element, fn func(Element) bool) bool {
	for cur := el; cur != nil; cur = cur.Parent() {
		if fn(cur) {
			return true
		}
	}
	return false
}
