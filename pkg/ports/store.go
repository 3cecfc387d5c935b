package ports

import (
	"context"

	"github.com/aretw0/marktree/pkg/domain"
)

// TreeReader reads the externally owned tree.
type TreeReader interface {
	// GetTree returns the whole tree as a forest of root nodes with children populated.
	GetTree(ctx context.Context) ([]*domain.Node, error)

	// GetChildren returns the ordered direct children of parentID, without grandchildren.
	// Returns domain.ErrNodeNotFound if the parent does not exist.
	GetChildren(ctx context.Context, parentID string) ([]*domain.Node, error)
}

// TreeWriter mutates the externally owned tree.
type TreeWriter interface {
	// Move relocates id under dest.ParentID. dest.Index is interpreted among the
	// siblings after id has been removed from its old position; nil appends.
	// Returns the moved node with its final ParentID and Index.
	Move(ctx context.Context, id string, dest domain.Destination) (*domain.Node, error)

	// Create inserts a new bookmark (URL set) or folder (URL empty).
	Create(ctx context.Context, details domain.CreateDetails) (*domain.Node, error)

	// Remove deletes id and its whole subtree.
	Remove(ctx context.Context, id string) error

	// Update changes title and/or url in place.
	Update(ctx context.Context, id string, changes domain.Changes) (*domain.Node, error)
}

// BookmarkStore is the full external store API.
type BookmarkStore interface {
	TreeReader
	TreeWriter
}

// EventSource delivers the store's mutation notifications.
type EventSource interface {
	// Subscribe returns a channel of events that is closed when ctx is done.
	Subscribe(ctx context.Context) (<-chan domain.MutationEvent, error)
}
