package domain

import "time"

// Snapshot is an immutable, organized copy of the whole tree plus a monotonic
// version stamp. It is built once and never mutated; consumers must treat the
// nodes it hands out as read-only.
type Snapshot struct {
	Version   uint64    `json:"version"`
	FetchedAt time.Time `json:"fetchedAt"`
	Roots     []*Node   `json:"roots"`

	byID map[string]*Node
}

// NewSnapshot indexes an already organized tree.
func NewSnapshot(roots []*Node, version uint64, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		Version:   version,
		FetchedAt: fetchedAt,
		Roots:     roots,
		byID:      make(map[string]*Node),
	}
	s.Walk(func(n *Node) bool {
		s.byID[n.ID] = n
		return true
	})
	return s
}

// Len returns the number of nodes in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byID)
}

// Node looks up a node by id.
func (s *Snapshot) Node(id string) (*Node, bool) {
	if s == nil {
		return nil, false
	}
	n, ok := s.byID[id]
	return n, ok
}

// Children returns the ordered children of parentID. An empty parentID returns the roots.
func (s *Snapshot) Children(parentID string) []*Node {
	if s == nil {
		return nil
	}
	if parentID == "" {
		return s.Roots
	}
	if n, ok := s.byID[parentID]; ok {
		return n.Children
	}
	return nil
}

// Position returns the parent and sibling index of id.
func (s *Snapshot) Position(id string) (parentID string, index int, ok bool) {
	n, found := s.Node(id)
	if !found {
		return "", 0, false
	}
	return n.ParentID, n.Index, true
}

// IsAncestor reports whether ancestorID is id itself or one of its ancestors.
func (s *Snapshot) IsAncestor(ancestorID, id string) bool {
	for cur, ok := s.Node(id); ok; cur, ok = s.Node(cur.ParentID) {
		if cur.ID == ancestorID {
			return true
		}
		if cur.ParentID == "" {
			break
		}
	}
	return false
}

// Walk visits nodes depth-first in sibling order. Returning false skips the subtree.
func (s *Snapshot) Walk(fn func(*Node) bool) {
	if s == nil {
		return
	}
	var walk func([]*Node)
	walk = func(list []*Node) {
		for _, n := range list {
			if n == nil {
				continue
			}
			if fn(n) && len(n.Children) > 0 {
				walk(n.Children)
			}
		}
	}
	walk(s.Roots)
}

// Order returns the child ids of parentID in order.
func (s *Snapshot) Order(parentID string) []string {
	children := s.Children(parentID)
	ids := make([]string, len(children))
	for i, c := range children {
		ids[i] = c.ID
	}
	return ids
}
