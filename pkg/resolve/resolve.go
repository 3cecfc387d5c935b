// Package resolve turns a drag candidate and a drop target into the exact
// destination handed to the store's move primitive.
//
// Stores index a moved item among its siblings after the item has been removed
// from its old position. Insertion points, on the other hand, are numbered in the
// pre-move order the user sees. Resolve is the only place where one is converted
// into the other.
package resolve

import (
	"fmt"

	"github.com/aretw0/marktree/pkg/domain"
)

// Resolve computes the destination for moving candidate to target.
//
// It returns domain.ErrDegenerateMove when the target denotes the item's current
// slot (or the item itself) and domain.ErrInvalidTarget for malformed input.
func Resolve(candidate domain.DragCandidate, target domain.InsertionTarget) (domain.Destination, error) {
	if candidate.ItemID == "" {
		return domain.Destination{}, fmt.Errorf("%w: empty item id", domain.ErrInvalidTarget)
	}

	switch target.Kind {
	case domain.TargetFolder:
		if target.FolderID == "" {
			return domain.Destination{}, fmt.Errorf("%w: empty folder id", domain.ErrInvalidTarget)
		}
		if target.FolderID == candidate.ItemID {
			return domain.Destination{}, fmt.Errorf("%w: %s dropped on itself", domain.ErrDegenerateMove, candidate.ItemID)
		}
		if target.AtHeader {
			// A header drop is a gap drop at index 0 of that folder.
			return insertAt(candidate, target.FolderID, 0)
		}
		return domain.Append(target.FolderID), nil

	case domain.TargetInsertionPoint:
		if target.ParentID == "" {
			return domain.Destination{}, fmt.Errorf("%w: empty parent id", domain.ErrInvalidTarget)
		}
		return insertAt(candidate, target.ParentID, target.InsertionIndex)

	default:
		return domain.Destination{}, fmt.Errorf("%w: unknown target kind %q", domain.ErrInvalidTarget, target.Kind)
	}
}

func insertAt(candidate domain.DragCandidate, parentID string, insertionIndex int) (domain.Destination, error) {
	if insertionIndex < 0 {
		return domain.Destination{}, fmt.Errorf("%w: negative insertion index %d", domain.ErrInvalidTarget, insertionIndex)
	}

	// Removing the item from another parent does not shift this parent's indices.
	if parentID != candidate.SourceParentID {
		return domain.At(parentID, insertionIndex), nil
	}

	if candidate.SourceIndex < 0 {
		return domain.Destination{}, fmt.Errorf("%w: negative source index %d", domain.ErrInvalidTarget, candidate.SourceIndex)
	}
	if insertionIndex == candidate.SourceIndex || insertionIndex == candidate.SourceIndex+1 {
		return domain.Destination{}, fmt.Errorf("%w: %s already at %s[%d]",
			domain.ErrDegenerateMove, candidate.ItemID, parentID, candidate.SourceIndex)
	}
	if insertionIndex > candidate.SourceIndex {
		// The removal already closed the gap the item leaves behind.
		return domain.At(parentID, insertionIndex-1), nil
	}
	return domain.At(parentID, insertionIndex), nil
}

// Apply simulates a same-parent move on an ordered sibling list using the store
// convention: remove itemID, then insert it at dest.Index (nil appends). Indices past
// the end are clamped. The input slice is not modified.
func Apply(order []string, itemID string, dest domain.Destination) []string {
	rest := make([]string, 0, len(order))
	for _, id := range order {
		if id != itemID {
			rest = append(rest, id)
		}
	}
	return Insert(rest, itemID, dest.Index)
}

// Insert places itemID at index in order (nil appends, out of range clamps).
func Insert(order []string, itemID string, index *int) []string {
	at := len(order)
	if index != nil && *index >= 0 && *index < at {
		at = *index
	}
	out := make([]string, 0, len(order)+1)
	out = append(out, order[:at]...)
	out = append(out, itemID)
	return append(out, order[at:]...)
}
