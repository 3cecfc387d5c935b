package drag

import (
	"strconv"
	"strings"
)

// Doc is an in-memory element tree implementing Surface and Marker.
// It backs tests and headless hosts. Later siblings and deeper elements paint on top.
// A Doc is not safe for concurrent mutation.
type Doc struct {
	root *Node
}

// Node is one element of a Doc.
type Node struct {
	Tag      string
	attrs    map[string]string
	classes  map[string]bool
	rect     Rect
	parent   *Node
	children []*Node

	// Transparent elements are skipped by hit tests, like pointer-events: none.
	Transparent bool
}

// El creates a detached element. attrs are name/value pairs; "class" is split on spaces.
func El(tag string, rect Rect, attrs ...string) *Node {
	n := &Node{Tag: tag, rect: rect, attrs: make(map[string]string), classes: make(map[string]bool)}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.SetAttr(attrs[i], attrs[i+1])
	}
	return n
}

// NewDoc creates a document whose root covers the given viewport.
func NewDoc(viewport Rect) *Doc {
	root := El("body", viewport)
	root.Transparent = true
	return &Doc{root: root}
}

// Root returns the document root.
func (d *Doc) Root() *Node {
	return d.root
}

// Append adds children to n and returns n.
func (n *Node) Append(children ...*Node) *Node {
	for _, c := range children {
		c.parent = n
		n.children = append(n.children, c)
	}
	return n
}

// SetAttr sets an attribute.
func (n *Node) SetAttr(name, value string) {
	if name == "class" {
		for _, c := range strings.Fields(value) {
			n.classes[c] = true
		}
	}
	n.attrs[name] = value
}

// Attr implements Element.
func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

// HasClass implements Element.
func (n *Node) HasClass(class string) bool {
	return n.classes[class]
}

// Parent implements Element.
func (n *Node) Parent() Element {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// Rect implements Element.
func (n *Node) Rect() Rect {
	return n.rect
}

// Children returns the child elements.
func (n *Node) Children() []*Node {
	return n.children
}

// walk visits n and its descendants in document order.
func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.walk(fn)
	}
}

// Find returns the first element, in document order, for which match is true.
func (d *Doc) Find(match func(*Node) bool) *Node {
	var found *Node
	d.root.walk(func(n *Node) {
		if found == nil && match(n) {
			found = n
		}
	})
	return found
}

// Item returns the element of the item with the given id.
func (d *Doc) Item(id string) *Node {
	return d.Find(func(n *Node) bool {
		v, ok := itemID(n)
		return ok && v == id && !n.HasClass(ClassFolderHeader)
	})
}

// Gap returns the insertion point marker at index in parentID.
func (d *Doc) Gap(parentID string, index int) *Node {
	return d.Find(func(n *Node) bool {
		if !n.HasClass(ClassInsertionPoint) {
			return false
		}
		p, _ := n.Attr(AttrParentID)
		i, _ := n.Attr(AttrIndex)
		return p == parentID && i == strconv.Itoa(index)
	})
}

// Header returns the header element of folderID.
func (d *Doc) Header(folderID string) *Node {
	return d.Find(func(n *Node) bool {
		id, _ := n.Attr(AttrFolderID)
		return n.HasClass(ClassFolderHeader) && id == folderID
	})
}

// Container returns the element holding the children of folderID.
func (d *Doc) Container(folderID string) *Node {
	return d.Find(func(n *Node) bool {
		id, _ := n.Attr(AttrFolderID)
		return !n.HasClass(ClassFolderHeader) && id == folderID
	})
}

// ElementsFromPoint implements Surface.
func (d *Doc) ElementsFromPoint(x, y float64) []Element {
	var hits []Element
	d.root.walk(func(n *Node) {
		if !n.Transparent && n.rect.Contains(x, y) {
			hits = append(hits, n)
		}
	})
	// Document order paints bottom to top.
	for i, j := 0, len(hits)-1; i < j; i, j = i+1, j-1 {
		hits[i], hits[j] = hits[j], hits[i]
	}
	return hits
}

// ElementFromPoint implements Surface.
func (d *Doc) ElementFromPoint(x, y float64) Element {
	hits := d.ElementsFromPoint(x, y)
	if len(hits) == 0 {
		return nil
	}
	return hits[0]
}

// DraggableItems implements Surface.
func (d *Doc) DraggableItems() []Element {
	var items []Element
	d.root.walk(func(n *Node) {
		if _, ok := itemID(n); ok {
			items = append(items, n)
		}
	})
	return items
}

// MarkDragging implements Marker.
func (d *Doc) MarkDragging(el Element) {
	if n, ok := el.(*Node); ok {
		n.classes[ClassDragging] = true
	}
}

// ClearDragging implements Marker.
func (d *Doc) ClearDragging() {
	d.root.walk(func(n *Node) {
		delete(n.classes, ClassDragging)
	})
}

// Dragging returns the elements currently marked as dragging.
func (d *Doc) Dragging() []*Node {
	var out []*Node
	d.root.walk(func(n *Node) {
		if n.classes[ClassDragging] {
			out = append(out, n)
		}
	})
	return out
}
