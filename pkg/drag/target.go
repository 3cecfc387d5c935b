package drag

import (
	"strconv"

	"github.com/aretw0/marktree/pkg/domain"
)

// targetAt resolves the release point of ev, trying in order the event target's
// ancestry, the topmost element at the point, and the whole element stack at the point.
func (c *Controller) targetAt(ev Event) (domain.InsertionTarget, bool) {
	if ev.Target != nil {
		if t, ok := c.targetFrom(ev.Target, ev.Y); ok {
			return t, true
		}
	}
	if c.surface == nil {
		return domain.InsertionTarget{}, false
	}
	if el := c.surface.ElementFromPoint(ev.X, ev.Y); el != nil {
		if t, ok := c.targetFrom(el, ev.Y); ok {
			return t, true
		}
	}
	for _, el := range c.surface.ElementsFromPoint(ev.X, ev.Y) {
		if t, ok := c.targetFrom(el, ev.Y); ok {
			return t, true
		}
	}
	return domain.InsertionTarget{}, false
}

// targetFrom applies the element rules to el, then to each ancestor.
func (c *Controller) targetFrom(el Element, y float64) (domain.InsertionTarget, bool) {
	var target domain.InsertionTarget
	found := ancestors(el, func(cur Element) bool {
		var ok bool
		target, ok = c.match(cur, y)
		return ok
	})
	return target, found
}

func (c *Controller) match(el Element, y float64) (domain.InsertionTarget, bool) {
	if el.HasClass(ClassInsertionPoint) {
		parentID, okParent := el.Attr(AttrParentID)
		raw, okIndex := el.Attr(AttrIndex)
		index, err := strconv.Atoi(raw)
		if okParent && okIndex && parentID != "" && err == nil && index >= 0 {
			return domain.InsertionPoint(parentID, index), true
		}
		return domain.InsertionTarget{}, false
	}

	if el.HasClass(ClassFolderHeader) {
		if id := headerFolderID(el); id != "" {
			return domain.FolderTarget(id, true), true
		}
		return domain.InsertionTarget{}, false
	}

	if id, ok := itemID(el); ok {
		if parentID, index, known := c.position(el, id); known {
			if y >= el.Rect().MidY() {
				index++
			}
			return domain.InsertionPoint(parentID, index), true
		}
	}

	if id, ok := el.Attr(AttrFolderID); ok && id != "" {
		return domain.FolderTarget(id, false), true
	}
	return domain.InsertionTarget{}, false
}

// headerFolderID finds the folder a header belongs to: its own ids first, then the
// nearest enclosing container.
func headerFolderID(el Element) string {
	if id, ok := el.Attr(AttrFolderID); ok && id != "" {
		return id
	}
	if id, ok := itemID(el); ok {
		return id
	}
	var id string
	ancestors(el.Parent(), func(cur Element) bool {
		v, ok := cur.Attr(AttrFolderID)
		if ok && v != "" {
			id = v
			return true
		}
		return false
	})
	return id
}
