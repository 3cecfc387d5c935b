package marktree

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/marktree/pkg/cache"
	"github.com/aretw0/marktree/pkg/coordinator"
	"github.com/aretw0/marktree/pkg/domain"
	"github.com/aretw0/marktree/pkg/drag"
	"github.com/aretw0/marktree/pkg/ports"
	"github.com/aretw0/marktree/pkg/reconcile"
)

// Engine is the high-level entry point for the marktree library.
// It wires the tree cache, move coordinator and event reconciler around one store
// and hands out drag controllers bound to them.
type Engine struct {
	store  ports.BookmarkStore
	events ports.EventSource

	cache       *cache.Cache
	coordinator *coordinator.Coordinator
	reconciler  *reconcile.Reconciler

	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	locker     ports.DistributedLocker
	lockTTL    time.Duration
	window     time.Duration
	staleAfter time.Duration
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLocker guards moves across processes sharing the store.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = locker
		e.lockTTL = ttl
	}
}

// WithRefreshWindow sets how long store events are coalesced before consumers refresh.
func WithRefreshWindow(d time.Duration) Option {
	return func(e *Engine) {
		e.window = d
	}
}

// WithStaleAfter sets when an unfinished drag candidate may be replaced.
func WithStaleAfter(d time.Duration) Option {
	return func(e *Engine) {
		e.staleAfter = d
	}
}

// New creates an engine over store. events may be nil, in which case the cache is
// refreshed only by the engine's own writes.
func New(store ports.BookmarkStore, events ports.EventSource, opts ...Option) *Engine {
	eng := &Engine{
		store:      store,
		events:     events,
		window:     reconcile.DefaultWindow,
		staleAfter: drag.DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(eng)
	}

	// Ensure logger is initialized (so we don't pass nil down, which would overwrite defaults)
	if eng.logger == nil {
		eng.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	eng.cache = cache.New(store,
		cache.WithLogger(eng.logger),
		cache.WithHooks(eng.hooks),
	)

	coordOpts := []coordinator.Option{
		coordinator.WithLogger(eng.logger),
		coordinator.WithHooks(eng.hooks),
	}
	if eng.locker != nil {
		coordOpts = append(coordOpts, coordinator.WithLocker(eng.locker, eng.lockTTL))
	}
	eng.coordinator = coordinator.New(store, eng.cache, coordOpts...)

	eng.reconciler = reconcile.New(events, eng.cache,
		reconcile.WithWindow(eng.window),
		reconcile.WithLogger(eng.logger),
		reconcile.WithHooks(eng.hooks),
	)
	return eng
}

// Tree returns the current snapshot, fetching it when the cache is empty.
func (e *Engine) Tree(ctx context.Context) (*domain.Snapshot, error) {
	return e.cache.Get(ctx)
}

// Children returns the ordered children of parentID from the current snapshot.
func (e *Engine) Children(ctx context.Context, parentID string) ([]*domain.Node, error) {
	snap, err := e.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Node(parentID); !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, parentID)
	}
	return snap.Children(parentID), nil
}

// Move places itemID at dest. The index counts siblings after the item's removal.
func (e *Engine) Move(ctx context.Context, itemID string, dest domain.Destination) (*domain.Node, error) {
	return e.coordinator.Move(ctx, itemID, dest)
}

// Drop resolves a drop target for a dragged item and moves it.
func (e *Engine) Drop(ctx context.Context, candidate domain.DragCandidate, target domain.InsertionTarget) (*domain.Node, error) {
	return e.coordinator.Drop(ctx, candidate, target)
}

// Create adds a node to the store.
func (e *Engine) Create(ctx context.Context, details domain.CreateDetails) (*domain.Node, error) {
	node, err := e.store.Create(ctx, details)
	if err != nil {
		return nil, err
	}
	e.cache.Invalidate()
	return node, nil
}

// Update changes a node's title or URL.
func (e *Engine) Update(ctx context.Context, id string, changes domain.Changes) (*domain.Node, error) {
	node, err := e.store.Update(ctx, id, changes)
	if err != nil {
		return nil, err
	}
	e.cache.Invalidate()
	return node, nil
}

// Remove deletes a node and its subtree.
func (e *Engine) Remove(ctx context.Context, id string) error {
	if err := e.store.Remove(ctx, id); err != nil {
		return err
	}
	e.cache.Invalidate()
	return nil
}

// Drag creates a gesture controller for surface, bound to the engine's cache and
// coordinator. Each view should own one controller.
func (e *Engine) Drag(surface drag.Surface, opts ...drag.Option) *drag.Controller {
	base := []drag.Option{
		drag.WithLogger(e.logger),
		drag.WithHooks(e.hooks),
		drag.WithStaleAfter(e.staleAfter),
	}
	return drag.NewController(surface, e.coordinator, e.cache, append(base, opts...)...)
}

// OnMoved registers fn for the in-process notification sent after each successful move.
func (e *Engine) OnMoved(fn func(domain.MovedNotification)) (cancel func()) {
	return e.coordinator.OnMoved(fn)
}

// OnRefresh registers fn to run after store events have been coalesced and the
// cache repopulated.
func (e *Engine) OnRefresh(fn func()) (cancel func()) {
	return e.reconciler.OnRefresh(fn)
}

// InFlight reports whether a move for itemID is pending.
func (e *Engine) InFlight(itemID string) bool {
	return e.coordinator.InFlight(itemID)
}

// Run consumes store events until ctx is done. Without an event source it just waits.
func (e *Engine) Run(ctx context.Context) error {
	if e.events == nil {
		<-ctx.Done()
		return nil
	}
	e.logger.Info("Reconciler started", "window", e.window)
	defer e.logger.Info("Reconciler stopped")
	return e.reconciler.Run(ctx)
}

// Store returns the underlying store.
func (e *Engine) Store() ports.BookmarkStore {
	return e.store
}
