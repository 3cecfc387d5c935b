package domain

import (
	"context"
	"time"
)

// MutationKind is the kind of change a store reports.
type MutationKind string

const (
	MutationCreated MutationKind = "created"
	MutationMoved   MutationKind = "moved"
	MutationChanged MutationKind = "changed"
	MutationRemoved MutationKind = "removed"
)

// MutationEvent is a change notification delivered by a store's event source.
// Events are authoritative regardless of who caused them. An empty ID means
// "something changed" without detail (e.g. an external file rewrite).
type MutationEvent struct {
	Kind        MutationKind `json:"kind"`
	ID          string       `json:"id,omitempty"`
	ParentID    string       `json:"parentId,omitempty"`
	Index       int          `json:"index,omitempty"`
	OldParentID string       `json:"oldParentId,omitempty"`
	OldIndex    int          `json:"oldIndex,omitempty"`
	Origin      string       `json:"origin,omitempty"`
}

// MovedNotification is fired in-process right after a successful move issued by this
// engine, ahead of the store's own (slower, cross-view) event.
type MovedNotification struct {
	FromID       string `json:"fromId"`
	FromParentID string `json:"fromParentId"`
	ToParentID   string `json:"toParentId"`
	ToIndex      int    `json:"toIndex"`
}

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventFetch   EventType = "fetch"
	EventMove    EventType = "move"
	EventRefresh EventType = "refresh"
	EventGesture EventType = "gesture"
)

// EventBase contains common fields for all lifecycle events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// FetchEvent describes one full-tree read performed by the cache.
type FetchEvent struct {
	EventBase
	Version  uint64        `json:"version,omitempty"`
	Nodes    int           `json:"nodes,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// MoveEvent describes one move attempt handled by the coordinator.
type MoveEvent struct {
	EventBase
	ItemID      string        `json:"item_id"`
	Destination Destination   `json:"destination"`
	Duration    time.Duration `json:"duration"`
	Result      string        `json:"result"`
	Err         error         `json:"-"`
}

// Move results.
const (
	MoveResultOK       = "ok"
	MoveResultRejected = "rejected"
	MoveResultInFlight = "in_flight"
)

// RefreshEvent describes one coalesced consumer refresh.
type RefreshEvent struct {
	EventBase
	Coalesced int    `json:"coalesced"`
	Version   uint64 `json:"version,omitempty"`
	Err       error  `json:"-"`
}

// GestureEvent describes how a drag gesture ended.
type GestureEvent struct {
	EventBase
	ItemID  string          `json:"item_id,omitempty"`
	Target  InsertionTarget `json:"target"`
	Outcome string          `json:"outcome"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnFetch    func(context.Context, *FetchEvent)
	OnMove     func(context.Context, *MoveEvent)
	OnMutation func(context.Context, *MutationEvent)
	OnRefresh  func(context.Context, *RefreshEvent)
	OnGesture  func(context.Context, *GestureEvent)
}

// Fetch invokes OnFetch when set.
func (h LifecycleHooks) Fetch(ctx context.Context, e *FetchEvent) {
	if h.OnFetch != nil {
		e.Type = EventFetch
		h.OnFetch(ctx, e)
	}
}

// Move invokes OnMove when set.
func (h LifecycleHooks) Move(ctx context.Context, e *MoveEvent) {
	if h.OnMove != nil {
		e.Type = EventMove
		h.OnMove(ctx, e)
	}
}

// Mutation invokes OnMutation when set.
func (h LifecycleHooks) Mutation(ctx context.Context, e *MutationEvent) {
	if h.OnMutation != nil {
		h.OnMutation(ctx, e)
	}
}

// Refresh invokes OnRefresh when set.
func (h LifecycleHooks) Refresh(ctx context.Context, e *RefreshEvent) {
	if h.OnRefresh != nil {
		e.Type = EventRefresh
		h.OnRefresh(ctx, e)
	}
}

// Gesture invokes OnGesture when set.
func (h LifecycleHooks) Gesture(ctx context.Context, e *GestureEvent) {
	if h.OnGesture != nil {
		e.Type = EventGesture
		h.OnGesture(ctx, e)
	}
}
