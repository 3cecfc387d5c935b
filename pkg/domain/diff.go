package domain

import "sort"

// Diff calculates the mutation events that turn oldSnap into newSnap.
// If oldSnap is nil, every node of newSnap is reported as created.
// Same-parent index shifts caused only by inserts or removals of siblings are not
// reported; a node is "moved" when its parent changed or its order relative to the
// siblings present in both snapshots changed.
func Diff(oldSnap, newSnap *Snapshot) []MutationEvent {
	if newSnap == nil {
		return nil
	}

	var events []MutationEvent

	// 1. Created, changed and moved
	relOld := relativeOrder(oldSnap, newSnap)
	relNew := relativeOrder(newSnap, oldSnap)
	newSnap.Walk(func(n *Node) bool {
		prev, existed := oldSnap.Node(n.ID)
		if !existed {
			events = append(events, MutationEvent{
				Kind:     MutationCreated,
				ID:       n.ID,
				ParentID: n.ParentID,
				Index:    n.Index,
			})
			return true
		}
		if prev.ParentID != n.ParentID || relOld[n.ID] != relNew[n.ID] {
			events = append(events, MutationEvent{
				Kind:        MutationMoved,
				ID:          n.ID,
				ParentID:    n.ParentID,
				Index:       n.Index,
				OldParentID: prev.ParentID,
				OldIndex:    prev.Index,
			})
		}
		if prev.Title != n.Title || prev.URL != n.URL {
			events = append(events, MutationEvent{
				Kind:     MutationChanged,
				ID:       n.ID,
				ParentID: n.ParentID,
				Index:    n.Index,
			})
		}
		return true
	})

	// 2. Removed (only the top-most removed node of a removed subtree)
	var removed []MutationEvent
	oldSnap.Walk(func(n *Node) bool {
		if _, ok := newSnap.Node(n.ID); ok {
			return true
		}
		removed = append(removed, MutationEvent{
			Kind:     MutationRemoved,
			ID:       n.ID,
			ParentID: n.ParentID,
			Index:    n.Index,
		})
		return false
	})
	sort.SliceStable(removed, func(i, j int) bool {
		return removed[i].ID < removed[j].ID
	})
	return append(events, removed...)
}

// relativeOrder ranks every node of s among its siblings, counting only siblings
// that exist under the same parent in other.
func relativeOrder(s, other *Snapshot) map[string]int {
	rank := make(map[string]int)
	if s == nil {
		return rank
	}
	rankList := func(list []*Node) {
		pos := 0
		for _, n := range list {
			if o, ok := other.Node(n.ID); ok && o.ParentID == n.ParentID {
				rank[n.ID] = pos
				pos++
			}
		}
	}
	rankList(s.Roots)
	s.Walk(func(n *Node) bool {
		rankList(n.Children)
		return true
	})
	return rank
}
