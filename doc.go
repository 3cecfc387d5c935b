/*
Package marktree keeps a bookmark tree view consistent while users reorder it by drag and drop.

Given a dragged item and the place it was released, marktree resolves the destination
parent and index the store expects, issues at most one move per item at a time,
invalidates its cached snapshot and refreshes consumers when the store reports changes
made elsewhere (another view, another process, a hand-edited file).

# Architecture

The engine is assembled from small components around one store port:

  - pkg/cache: on-demand snapshot of the whole tree, fetched once per invalidation.
  - pkg/resolve: the index arithmetic that turns a drop target into a store destination.
  - pkg/coordinator: in-flight guard, store move, cache invalidation and moved notification.
  - pkg/reconcile: store events invalidate the cache; refreshes are coalesced.
  - pkg/drag: the gesture state machine over a DOM-like surface.

Stores live in pkg/adapters (memory, file, redis) and all pass the contract suite in pkg/ports.

# Usage

	store, err := memory.NewFromNodes(seed)
	if err != nil {
		log.Fatal(err)
	}
	eng := marktree.New(store, store)
	go eng.Run(ctx)

	eng.OnRefresh(func() { redraw() })
	ctrl := eng.Drag(surface)

	// wire the host's input events
	ctrl.PointerDown(drag.Event{Target: el, X: x, Y: y, Source: drag.SourcePointer})
	ctrl.PointerMove(ev)
	res := ctrl.PointerUp(ctx, ev)
*/
package marktree
