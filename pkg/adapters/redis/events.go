package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/marktree/pkg/domain"
)

// Subscribe implements ports.EventSource over Redis PUBLISH/SUBSCRIBE.
// Events from every process sharing the prefix are delivered, including this one's.
func (s *Store) Subscribe(ctx context.Context) (<-chan domain.MutationEvent, error) {
	pubsub := s.client.Subscribe(ctx, s.channel())
	// Wait for confirmation so that no event published after Subscribe returns is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.channel(), err)
	}

	out := make(chan domain.MutationEvent, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev domain.MutationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.logger.Warn("Ignoring malformed event", "channel", msg.Channel, "err", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
