package domain

import (
	"fmt"
	"time"
)

// DragCandidate is the item tentatively identified as being dragged.
type DragCandidate struct {
	ItemID         string `json:"itemId"`
	SourceParentID string `json:"sourceParentId"`
	SourceIndex    int    `json:"sourceIndex"`
}

// TargetKind distinguishes the two kinds of drop targets.
type TargetKind string

const (
	// TargetFolder is a drop directly on a folder (header or body).
	TargetFolder TargetKind = "folder"
	// TargetInsertionPoint is a drop on a gap marker between siblings.
	TargetInsertionPoint TargetKind = "insertionPoint"
)

// InsertionTarget is where a gesture was released.
//
// For TargetFolder, FolderID and AtHeader are meaningful; AtHeader means prepend.
// For TargetInsertionPoint, ParentID and InsertionIndex are meaningful. The index is
// the gap position in the current, pre-move sibling order: 0 is before the first
// child, N is after the last of N children.
type InsertionTarget struct {
	Kind           TargetKind `json:"kind"`
	FolderID       string     `json:"folderId,omitempty"`
	AtHeader       bool       `json:"atHeader,omitempty"`
	ParentID       string     `json:"parentId,omitempty"`
	InsertionIndex int        `json:"insertionIndex,omitempty"`
}

// FolderTarget builds a drop-on-folder target.
func FolderTarget(folderID string, atHeader bool) InsertionTarget {
	return InsertionTarget{Kind: TargetFolder, FolderID: folderID, AtHeader: atHeader}
}

// InsertionPoint builds a drop-on-gap target.
func InsertionPoint(parentID string, insertionIndex int) InsertionTarget {
	return InsertionTarget{Kind: TargetInsertionPoint, ParentID: parentID, InsertionIndex: insertionIndex}
}

// Container returns the folder that would receive the item.
func (t InsertionTarget) Container() string {
	if t.Kind == TargetFolder {
		return t.FolderID
	}
	return t.ParentID
}

func (t InsertionTarget) String() string {
	switch t.Kind {
	case TargetFolder:
		if t.AtHeader {
			return fmt.Sprintf("folder(%s, header)", t.FolderID)
		}
		return fmt.Sprintf("folder(%s)", t.FolderID)
	case TargetInsertionPoint:
		return fmt.Sprintf("gap(%s@%d)", t.ParentID, t.InsertionIndex)
	default:
		return "unknown"
	}
}

// Destination is the argument of the store's move primitive. Index is expressed among
// the siblings after the item's removal from its old position; nil appends.
type Destination struct {
	ParentID string `json:"parentId"`
	Index    *int   `json:"index,omitempty"`
}

// At is a convenience constructor for an indexed destination.
func At(parentID string, index int) Destination {
	return Destination{ParentID: parentID, Index: &index}
}

// Append is a convenience constructor for an append destination.
func Append(parentID string) Destination {
	return Destination{ParentID: parentID}
}

func (d Destination) String() string {
	if d.Index == nil {
		return d.ParentID + "[end]"
	}
	return fmt.Sprintf("%s[%d]", d.ParentID, *d.Index)
}

// MoveRequest exists for the duration of one in-flight external move call.
type MoveRequest struct {
	ItemID         string    `json:"itemId"`
	TargetParentID string    `json:"targetParentId"`
	TargetIndex    *int      `json:"targetIndex,omitempty"`
	IssuedAt       time.Time `json:"issuedAt"`
}
