package http

import (
	"log/slog"
	"sync"
)

// Message is one server-sent event.
type Message struct {
	Event string
	Data  string
}

// StreamManager handles active SSE connections
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- Message]struct{} // Event name -> Set of Channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- Message]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a channel receiving the given event names.
// The returned func unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(events ...string) (chan Message, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Message, 10)
	for _, ev := range events {
		if _, ok := sm.subscribers[ev]; !ok {
			sm.subscribers[ev] = make(map[chan<- Message]struct{})
		}
		sm.subscribers[ev][ch] = struct{}{}
	}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		for _, ev := range events {
			if subs, ok := sm.subscribers[ev]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(sm.subscribers, ev)
				}
			}
		}
		close(ch)
	}
}

// Broadcast delivers msg to every subscriber of msg.Event without blocking.
func (sm *StreamManager) Broadcast(msg Message) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	subs := sm.subscribers[msg.Event]
	sm.logger.Debug("StreamManager: Broadcasting", "event", msg.Event, "subscribers", len(subs), "payload_size", len(msg.Data))
	for ch := range subs {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping message", "event", msg.Event)
		}
	}
}

// Len returns the number of distinct subscribers to event.
func (sm *StreamManager) Len(event string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[event])
}
