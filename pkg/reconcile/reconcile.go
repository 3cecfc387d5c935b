// Package reconcile keeps the tree cache coherent with the store's mutation events.
//
// Every event invalidates the cache at once. Refreshing consumers is deferred by a short
// window so that one logical operation reported as several granular events causes a
// single refetch and a single round of refresh hooks.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/marktree/internal/logging"
	"github.com/aretw0/marktree/pkg/domain"
	"github.com/aretw0/marktree/pkg/ports"
)

// DefaultWindow is the default coalescing window.
const DefaultWindow = 50 * time.Millisecond

// ErrSourceClosed is returned by Run when the event source stops delivering before ctx ends.
var ErrSourceClosed = errors.New("event source closed")

// Cache is the part of the tree cache the reconciler needs.
type Cache interface {
	Get(ctx context.Context) (*domain.Snapshot, error)
	Invalidate()
}

// Reconciler is safe for concurrent use.
type Reconciler struct {
	events ports.EventSource
	cache  Cache
	window time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending int
	ctx     context.Context
	hooks   map[int]func()
	nextID  int

	refreshMu sync.Mutex // one refresh at a time

	lifecycle domain.LifecycleHooks
	logger    *slog.Logger
}

// Option configures the Reconciler.
type Option func(*Reconciler)

// WithWindow sets the coalescing window. Zero refreshes on the next scheduler tick.
func WithWindow(d time.Duration) Option {
	return func(r *Reconciler) {
		r.window = d
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithHooks registers lifecycle callbacks (OnMutation and OnRefresh are used).
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Reconciler) {
		r.lifecycle = hooks
	}
}

// New creates a Reconciler. events may be nil when Handle is fed directly.
func New(events ports.EventSource, cache Cache, opts ...Option) *Reconciler {
	r := &Reconciler{
		events: events,
		cache:  cache,
		window: DefaultWindow,
		ctx:    context.Background(),
		hooks:  make(map[int]func()),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run subscribes to the event source and handles events until ctx is done.
// A pending refresh is flushed before Run returns.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.events == nil {
		return errors.New("reconcile: no event source")
	}
	ch, err := r.events.Subscribe(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.ctx = context.Background()
		r.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			r.Flush(context.Background())
			return nil
		case ev, ok := <-ch:
			if !ok {
				r.Flush(context.Background())
				if ctx.Err() != nil {
					return nil
				}
				return ErrSourceClosed
			}
			r.Handle(ev)
		}
	}
}

// Handle invalidates the cache and schedules a refresh. The event's origin is ignored:
// self-caused and foreign events are treated alike.
func (r *Reconciler) Handle(ev domain.MutationEvent) {
	r.cache.Invalidate()

	r.mu.Lock()
	r.pending++
	ctx := r.ctx
	if r.timer == nil {
		r.timer = time.AfterFunc(r.window, func() {
			r.refresh(ctx)
		})
	}
	r.mu.Unlock()

	r.logger.Debug("Mutation received", "kind", ev.Kind, "item_id", ev.ID, "parent_id", ev.ParentID)
	r.lifecycle.Mutation(ctx, &ev)
}

// Flush runs a pending refresh now. It is a no-op when nothing is pending.
func (r *Reconciler) Flush(ctx context.Context) {
	r.refresh(ctx)
}

// OnRefresh registers fn to be called after every successful repopulation of the cache.
// The returned function unregisters it.
func (r *Reconciler) OnRefresh(fn func()) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.hooks[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.hooks, id)
	}
}

// Pending returns the number of events not yet covered by a refresh.
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

func (r *Reconciler) refresh(ctx context.Context) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	r.mu.Lock()
	coalesced := r.pending
	r.pending = 0
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()

	if coalesced == 0 {
		return
	}

	event := &domain.RefreshEvent{
		EventBase: domain.EventBase{Timestamp: time.Now()},
		Coalesced: coalesced,
	}
	snap, err := r.cache.Get(ctx)
	if err != nil {
		r.logger.Error("Refresh failed, consumers keep their last view", "events", coalesced, "err", err)
		event.Err = err
		r.lifecycle.Refresh(ctx, event)
		return
	}
	event.Version = snap.Version
	r.logger.Debug("Refreshing consumers", "events", coalesced, "version", snap.Version)

	for _, fn := range r.snapshotHooks() {
		fn()
	}
	r.lifecycle.Refresh(ctx, event)
}

func (r *Reconciler) snapshotHooks() []func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int, 0, len(r.hooks))
	for id := range r.hooks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), len(ids))
	for i, id := range ids {
		fns[i] = r.hooks[id]
	}
	return fns
}
