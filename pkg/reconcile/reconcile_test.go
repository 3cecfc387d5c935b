package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/marktree/pkg/adapters/memory"
	"github.com/aretw0/marktree/pkg/cache"
	"github.com/aretw0/marktree/pkg/domain"
	"github.com/aretw0/marktree/pkg/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.NewFromNodes([]*domain.Node{
		{ID: "F", Title: "F", Children: []*domain.Node{
			{ID: "A", Title: "A", URL: "https://a"},
			{ID: "B", Title: "B", URL: "https://b"},
			{ID: "C", Title: "C", URL: "https://c"},
		}},
	})
	require.NoError(t, err)
	return store
}

// startRun runs r in the background and returns a stop function yielding Run's error.
func startRun(t *testing.T, r *reconcile.Reconciler) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	// Subscribe happens synchronously at the top of Run; give it a moment.
	time.Sleep(20 * time.Millisecond)
	return func() error {
		cancel()
		return <-done
	}
}

func TestReconciler_ForeignMoveRefreshesOnce(t *testing.T) {
	store := newStore(t)
	c := cache.New(store)
	r := reconcile.New(store, c, reconcile.WithWindow(10*time.Millisecond))

	var refreshes atomic.Int32
	r.OnRefresh(func() { refreshes.Add(1) })

	before, err := c.Get(context.Background())
	require.NoError(t, err)
	stop := startRun(t, r)
	defer stop()

	// Another view moves C to the front; this engine issued nothing.
	_, err = store.Move(context.Background(), "C", domain.At("F", 0))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return refreshes.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), refreshes.Load(), "exactly one refresh")

	after := c.Peek()
	require.NotNil(t, after, "refresh repopulates the cache")
	assert.NotSame(t, before, after)
	assert.Equal(t, []string{"C", "A", "B"}, after.Order("F"))
}

func TestReconciler_BurstCoalesces(t *testing.T) {
	store := newStore(t)
	c := cache.New(store)

	var events []*domain.RefreshEvent
	var mu sync.Mutex
	r := reconcile.New(nil, c,
		reconcile.WithWindow(time.Hour),
		reconcile.WithHooks(domain.LifecycleHooks{
			OnRefresh: func(_ context.Context, e *domain.RefreshEvent) {
				mu.Lock()
				defer mu.Unlock()
				events = append(events, e)
			},
		}),
	)
	var refreshes int
	r.OnRefresh(func() { refreshes++ })

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	for _, kind := range []domain.MutationKind{domain.MutationRemoved, domain.MutationCreated, domain.MutationChanged, domain.MutationMoved} {
		r.Handle(domain.MutationEvent{Kind: kind, ID: "x"})
		assert.Nil(t, c.Peek(), "every event invalidates at once")
	}
	assert.Equal(t, 4, r.Pending())

	r.Flush(context.Background())
	r.Flush(context.Background())

	assert.Equal(t, 1, refreshes)
	assert.Zero(t, r.Pending())
	require.Len(t, events, 1)
	assert.Equal(t, 4, events[0].Coalesced)
	assert.NotNil(t, c.Peek())
}

func TestReconciler_OriginIsIgnored(t *testing.T) {
	c := cache.New(newStore(t))
	r := reconcile.New(nil, c, reconcile.WithWindow(time.Hour))
	var refreshes int
	r.OnRefresh(func() { refreshes++ })

	for _, origin := range []string{"self", "other-tab", ""} {
		r.Handle(domain.MutationEvent{Kind: domain.MutationMoved, ID: "A", Origin: origin})
		r.Flush(context.Background())
	}
	assert.Equal(t, 3, refreshes)
}

type failingReader struct{ *memory.Store }

func (failingReader) GetTree(context.Context) ([]*domain.Node, error) {
	return nil, errors.New("store unreachable")
}

func TestReconciler_FailedRefreshSkipsHooks(t *testing.T) {
	c := cache.New(failingReader{newStore(t)})

	var failed *domain.RefreshEvent
	r := reconcile.New(nil, c, reconcile.WithWindow(time.Hour), reconcile.WithHooks(domain.LifecycleHooks{
		OnRefresh: func(_ context.Context, e *domain.RefreshEvent) { failed = e },
	}))
	called := false
	r.OnRefresh(func() { called = true })

	r.Handle(domain.MutationEvent{Kind: domain.MutationChanged, ID: "A"})
	r.Flush(context.Background())

	assert.False(t, called)
	require.NotNil(t, failed)
	assert.ErrorIs(t, failed.Err, domain.ErrFetchFailed)
	assert.Nil(t, c.Peek())
}

func TestReconciler_CancelledHook(t *testing.T) {
	c := cache.New(newStore(t))
	r := reconcile.New(nil, c, reconcile.WithWindow(time.Hour))
	var a, b int
	cancelA := r.OnRefresh(func() { a++ })
	r.OnRefresh(func() { b++ })
	cancelA()

	r.Handle(domain.MutationEvent{Kind: domain.MutationChanged})
	r.Flush(context.Background())
	assert.Zero(t, a)
	assert.Equal(t, 1, b)
}

func TestReconciler_CacheCoherence(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := cache.New(store)
	r := reconcile.New(store, c, reconcile.WithWindow(5*time.Millisecond))
	stop := startRun(t, r)

	_, err := c.Get(ctx)
	require.NoError(t, err)

	g, err := store.Create(ctx, domain.CreateDetails{ParentID: domain.RootID, Title: "G"})
	require.NoError(t, err)
	_, err = store.Move(ctx, "A", domain.At(g.ID, 0))
	require.NoError(t, err)
	_, err = store.Move(ctx, "C", domain.At("F", 0))
	require.NoError(t, err)
	require.NoError(t, store.Remove(ctx, "B"))
	title := "Renamed"
	_, err = store.Update(ctx, "C", domain.Changes{Title: &title})
	require.NoError(t, err)

	roots, err := store.GetTree(ctx)
	require.NoError(t, err)
	fresh := domain.NewSnapshot(roots, 0, time.Time{})

	require.Eventually(t, func() bool {
		snap := c.Peek()
		return snap != nil && r.Pending() == 0 && len(domain.Diff(fresh, snap)) == 0
	}, 2*time.Second, 5*time.Millisecond, "cache converges to a fresh fetch")
	require.NoError(t, stop())

	got := c.Peek()
	assert.Equal(t, []string{"C"}, got.Order("F"))
	assert.Equal(t, []string{"A"}, got.Order(g.ID))
}

type closingSource struct{}

func (closingSource) Subscribe(context.Context) (<-chan domain.MutationEvent, error) {
	ch := make(chan domain.MutationEvent)
	close(ch)
	return ch, nil
}

func TestReconciler_RunEnds(t *testing.T) {
	c := cache.New(newStore(t))

	err := reconcile.New(closingSource{}, c).Run(context.Background())
	assert.ErrorIs(t, err, reconcile.ErrSourceClosed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, reconcile.New(memory.NewStore(), c).Run(ctx))

	assert.Error(t, reconcile.New(nil, c).Run(context.Background()))
}
