/*
Package domain contains the core domain models of the marktree engine.

It defines the bookmark tree as read from the external store, the immutable cache
snapshot built from it, the drag/drop vocabulary (candidates, insertion targets,
destinations) and the mutation events exchanged with stores. This package is kept
pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Node: a folder or a bookmark, with a 0-based contiguous sibling Index.
  - Snapshot: a versioned, organized, read-only copy of the whole tree.
  - DragCandidate: the item tentatively being dragged.
  - InsertionTarget: where a gesture was released (folder or gap marker).
  - Destination: the (parent, index) pair handed to the store's move primitive.
  - MutationEvent: a created/moved/changed/removed notification from a store.
*/
package domain
