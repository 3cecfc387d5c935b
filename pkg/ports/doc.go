/*
Package ports defines the driven ports (interfaces) of the marktree engine.

These interfaces decouple the reorder-and-synchronize core from the store that owns
the bookmark tree, allowing the engine to work against memory, a JSON file or Redis.

# Key Interfaces

  - TreeReader: Reads the full tree or one folder's children.
  - TreeWriter: Moves, creates, removes and updates nodes.
  - EventSource: Delivers created/moved/changed/removed notifications.
  - DistributedLocker: Guards in-flight moves across processes sharing one store.
*/
package ports
