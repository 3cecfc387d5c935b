package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/marktree/internal/logging"
	"github.com/aretw0/marktree/pkg/domain"
)

// subscriberBuffer bounds how far a slow subscriber may lag before events are dropped.
// A dropped event is always preceded by an undelivered one, so the subscriber still
// learns that the tree changed.
const subscriberBuffer = 64

// Fanout broadcasts mutation events to every live subscriber.
type Fanout struct {
	mu     sync.RWMutex
	subs   map[chan domain.MutationEvent]struct{}
	logger *slog.Logger
}

// NewFanout creates an empty broadcaster. A nil logger discards warnings.
func NewFanout(logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Fanout{
		subs:   make(map[chan domain.MutationEvent]struct{}),
		logger: logger,
	}
}

// Subscribe registers a subscriber whose channel is closed when ctx is done.
func (f *Fanout) Subscribe(ctx context.Context) <-chan domain.MutationEvent {
	ch := make(chan domain.MutationEvent, subscriberBuffer)

	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, ch)
		close(ch)
	}()
	return ch
}

// Publish delivers ev to every subscriber without blocking.
func (f *Fanout) Publish(ev domain.MutationEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
			f.logger.Warn("Subscriber buffer full, dropping event", "kind", ev.Kind, "item_id", ev.ID)
		}
	}
}

// Len returns the number of live subscribers.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
