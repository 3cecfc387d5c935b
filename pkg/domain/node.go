package domain

import "time"

// RootID is the conventional identifier of the invisible tree root.
const RootID = "0"

// Node represents a bookmark or a folder as returned by the external store.
// Folders have no URL and may have children; bookmarks have a URL and no children.
type Node struct {
	ID        string    `json:"id" yaml:"id"`
	ParentID  string    `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	Title     string    `json:"title" yaml:"title"`
	URL       string    `json:"url,omitempty" yaml:"url,omitempty"`
	Index     int       `json:"index" yaml:"index"`
	DateAdded time.Time `json:"dateAdded,omitempty" yaml:"dateAdded,omitempty"`

	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsFolder reports whether the node can hold children.
func (n *Node) IsFolder() bool {
	return n != nil && n.URL == ""
}

// Clone returns a deep copy of the node and its subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	if n.Children != nil {
		cp.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			cp.Children[i] = child.Clone()
		}
	}
	return &cp
}

// Shallow returns a copy of the node without its children.
func (n *Node) Shallow() Node {
	cp := *n
	cp.Children = nil
	return cp
}

// CreateDetails describes a node to be created by a store.
// A nil Index appends to the parent.
type CreateDetails struct {
	ParentID string `json:"parentId"`
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
	Index    *int   `json:"index,omitempty"`
}

// Changes describes an in-place update of a node. Nil fields are left untouched.
type Changes struct {
	Title *string `json:"title,omitempty"`
	URL   *string `json:"url,omitempty"`
}
