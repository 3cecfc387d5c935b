// Package cache holds the last fetched, organized view of the external tree.
//
// A Cache is a read-through cache with exactly two operations that matter: Get, which
// returns the current snapshot or fetches a new one, and Invalidate, which drops it.
// Snapshots are immutable and replaced wholesale, so consumers may share them freely
// and compare pointers to detect change.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/marktree/internal/logging"
	"github.com/aretw0/marktree/pkg/domain"
	"github.com/aretw0/marktree/pkg/ports"
	"golang.org/x/sync/singleflight"
)

// Cache is safe for concurrent use.
type Cache struct {
	reader ports.TreeReader

	mu         sync.Mutex
	snap       *domain.Snapshot
	generation uint64 // bumped by Invalidate
	version    uint64 // bumped by every stored or returned fetch

	group  singleflight.Group
	hooks  domain.LifecycleHooks
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Cache.
type Option func(*Cache)

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithHooks registers lifecycle callbacks (only OnFetch is used).
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Cache) {
		c.hooks = hooks
	}
}

// WithClock overrides the clock used for FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty cache reading from reader.
func New(reader ports.TreeReader, opts ...Option) *Cache {
	c := &Cache{
		reader: reader,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current snapshot, fetching and organizing the full tree on a miss.
// Concurrent misses share one fetch. A fetch that straddles Invalidate is returned to
// its callers but not stored. On failure the error wraps domain.ErrFetchFailed and the
// cache stays empty.
func (c *Cache) Get(ctx context.Context) (*domain.Snapshot, error) {
	c.mu.Lock()
	if c.snap != nil {
		snap := c.snap
		c.mu.Unlock()
		return snap, nil
	}
	gen := c.generation
	c.mu.Unlock()

	v, err, shared := c.group.Do(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return c.fetch(ctx, gen)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("Shared tree fetch", "generation", gen)
	}
	return v.(*domain.Snapshot), nil
}

// Peek returns the current snapshot or nil. It never performs I/O.
func (c *Cache) Peek() *domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Invalidate drops the current snapshot. Invalidating an empty cache is a no-op.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = nil
	c.generation++
}

func (c *Cache) fetch(ctx context.Context, gen uint64) (*domain.Snapshot, error) {
	start := time.Now()
	roots, err := c.reader.GetTree(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
		c.logger.Error("Tree fetch failed", "err", err)
		c.hooks.Fetch(ctx, &domain.FetchEvent{
			EventBase: domain.EventBase{Timestamp: c.now()},
			Duration:  time.Since(start),
			Err:       err,
		})
		return nil, err
	}

	organized, fixed := Organize(roots)
	if fixed > 0 {
		c.logger.Warn("Store returned non-contiguous sibling indices, renumbered", "nodes", fixed)
	}

	c.mu.Lock()
	c.version++
	snap := domain.NewSnapshot(organized, c.version, c.now())
	if c.generation == gen {
		c.snap = snap
	} else {
		c.logger.Debug("Discarding fetch that straddled an invalidation", "version", snap.Version)
	}
	c.mu.Unlock()

	c.hooks.Fetch(ctx, &domain.FetchEvent{
		EventBase: domain.EventBase{Timestamp: snap.FetchedAt},
		Version:   snap.Version,
		Nodes:     snap.Len(),
		Duration:  time.Since(start),
	})
	return snap, nil
}

// Organize deep-copies roots, orders every sibling list by Index and renumbers it
// contiguously from 0, fixing ParentID along the way. It returns the copy and the
// number of nodes whose Index or ParentID had to change.
func Organize(roots []*domain.Node) ([]*domain.Node, int) {
	out := make([]*domain.Node, 0, len(roots))
	for _, r := range roots {
		if r != nil {
			out = append(out, r.Clone())
		}
	}
	fixed := organizeList(out, "")
	return out, fixed
}

func organizeList(list []*domain.Node, parentID string) int {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Index < list[j].Index
	})
	fixed := 0
	for i, n := range list {
		if n.Index != i || n.ParentID != parentID {
			fixed++
		}
		n.Index = i
		n.ParentID = parentID
		if len(n.Children) > 0 {
			kept := n.Children[:0]
			for _, c := range n.Children {
				if c != nil {
					kept = append(kept, c)
				}
			}
			n.Children = kept
			fixed += organizeList(n.Children, n.ID)
		}
	}
	return fixed
}
