// Package coordinator issues moves against the external store, one at a time per item.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/marktree/internal/logging"
	"github.com/aretw0/marktree/pkg/domain"
	"github.com/aretw0/marktree/pkg/ports"
	"github.com/aretw0/marktree/pkg/resolve"
)

const unlockTimeout = 5 * time.Second

// Cache is the part of the tree cache the coordinator needs.
type Cache interface {
	Invalidate()
	Peek() *domain.Snapshot
}

// Coordinator serializes moves per item. Moves of different items run in parallel.
type Coordinator struct {
	store ports.TreeWriter
	cache Cache

	mu       sync.Mutex
	inFlight map[string]domain.MoveRequest
	subs     map[int]func(domain.MovedNotification)
	nextSub  int

	locker  ports.DistributedLocker // Optional cross-process guard
	lockTTL time.Duration
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLocker extends the in-flight guard to every process sharing the locker.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(c *Coordinator) {
		c.locker = locker
		c.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Coordinator.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithHooks registers lifecycle callbacks (only OnMove is used).
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Coordinator) {
		c.hooks = hooks
	}
}

// New creates a Coordinator writing to store and invalidating cache.
func New(store ports.TreeWriter, cache Cache, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		cache:    cache,
		inFlight: make(map[string]domain.MoveRequest),
		subs:     make(map[int]func(domain.MovedNotification)),
		lockTTL:  30 * time.Second,
		logger:   logging.NewNop(), // Default to no-op
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Move issues exactly one store move for itemID.
//
// While a move for itemID is in flight, Move returns domain.ErrAlreadyInFlight without
// contacting the store. On success the cache is invalidated and OnMoved subscribers are
// notified before Move returns. On failure the cache is left untouched and the error
// wraps domain.ErrMoveRejected.
func (c *Coordinator) Move(ctx context.Context, itemID string, dest domain.Destination) (*domain.Node, error) {
	// Read before the store call: its event may invalidate or refill the cache meanwhile.
	fromParentID, _, _ := c.cache.Peek().Position(itemID)
	return c.move(ctx, itemID, dest, fromParentID)
}

// Drop resolves target against candidate and moves the item. Local no-ops return
// domain.ErrDegenerateMove or domain.ErrInvalidTarget without touching the store.
func (c *Coordinator) Drop(ctx context.Context, candidate domain.DragCandidate, target domain.InsertionTarget) (*domain.Node, error) {
	dest, err := resolve.Resolve(candidate, target)
	if err != nil {
		return nil, err
	}
	return c.move(ctx, candidate.ItemID, dest, candidate.SourceParentID)
}

func (c *Coordinator) move(ctx context.Context, itemID string, dest domain.Destination, fromParentID string) (*domain.Node, error) {
	if itemID == "" || dest.ParentID == "" {
		return nil, fmt.Errorf("%w: empty id", domain.ErrInvalidTarget)
	}
	start := time.Now()
	event := &domain.MoveEvent{ItemID: itemID, Destination: dest}

	req, err := c.acquire(itemID, dest)
	if err != nil {
		c.report(ctx, event, start, domain.MoveResultInFlight, err)
		return nil, err
	}
	node, err := c.issue(ctx, req, dest)
	c.release(itemID)

	if err != nil {
		result := domain.MoveResultRejected
		if errors.Is(err, domain.ErrAlreadyInFlight) {
			result = domain.MoveResultInFlight
		} else {
			c.logger.Error("Move rejected",
				"item_id", itemID,
				"parent_id", dest.ParentID,
				"index", dest.String(),
				"err", err,
			)
		}
		c.report(ctx, event, start, result, err)
		return nil, err
	}

	c.cache.Invalidate()
	c.report(ctx, event, start, domain.MoveResultOK, nil)
	c.logger.Debug("Moved", "item_id", itemID, "parent_id", node.ParentID, "index", node.Index)

	c.notify(domain.MovedNotification{
		FromID:       itemID,
		FromParentID: fromParentID,
		ToParentID:   node.ParentID,
		ToIndex:      node.Index,
	})
	return node, nil
}

// InFlight reports whether a move for itemID is pending in this process.
func (c *Coordinator) InFlight(itemID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[itemID]
	return ok
}

// Pending returns the in-flight requests ordered by issue time.
func (c *Coordinator) Pending() []domain.MoveRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.MoveRequest, 0, len(c.inFlight))
	for _, req := range c.inFlight {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].IssuedAt.Before(out[j].IssuedAt)
	})
	return out
}

// OnMoved registers fn to be called synchronously after every successful move.
// The returned function unregisters it.
func (c *Coordinator) OnMoved(fn func(domain.MovedNotification)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Coordinator) acquire(itemID string, dest domain.Destination) (domain.MoveRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, busy := c.inFlight[itemID]; busy {
		return domain.MoveRequest{}, fmt.Errorf("%w: %s (issued %s ago)",
			domain.ErrAlreadyInFlight, itemID, c.now().Sub(prev.IssuedAt).Round(time.Millisecond))
	}
	req := domain.MoveRequest{
		ItemID:         itemID,
		TargetParentID: dest.ParentID,
		TargetIndex:    dest.Index,
		IssuedAt:       c.now(),
	}
	c.inFlight[itemID] = req
	return req, nil
}

func (c *Coordinator) release(itemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, itemID)
}

// issue performs the store call, holding the distributed lock when configured.
func (c *Coordinator) issue(ctx context.Context, req domain.MoveRequest, dest domain.Destination) (*domain.Node, error) {
	if c.locker != nil {
		unlock, err := c.locker.TryLock(ctx, "move:"+req.ItemID, c.lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrAlreadyInFlight) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s to %s: %w", domain.ErrMoveRejected, req.ItemID, dest, err)
		}
		defer func() {
			// The caller may be gone; the lock must still be released.
			unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
			defer cancel()
			if err := unlock(unlockCtx); err != nil {
				c.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"item_id", req.ItemID,
					"err", err,
				)
			}
		}()
	}

	node, err := c.store.Move(ctx, req.ItemID, dest)
	if err != nil {
		return nil, fmt.Errorf("%w: %s to %s: %w", domain.ErrMoveRejected, req.ItemID, dest, err)
	}
	return node, nil
}

func (c *Coordinator) notify(n domain.MovedNotification) {
	c.mu.Lock()
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(domain.MovedNotification), len(ids))
	for i, id := range ids {
		fns[i] = c.subs[id]
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}

func (c *Coordinator) report(ctx context.Context, e *domain.MoveEvent, start time.Time, result string, err error) {
	e.Timestamp = c.now()
	e.Duration = time.Since(start)
	e.Result = result
	e.Err = err
	c.hooks.Move(ctx, e)
}
