// Package drag turns the redundant pointer, mouse and native drag/drop listener layers of
// a bookmark view into one gesture state machine with a single candidate slot.
//
// Every layer forwards its events to the same Controller. The first layer to identify an
// item owns the gesture; later layers of the same physical gesture are ignored, and the
// gesture is resolved at most once.
package drag

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/marktree/internal/logging"
	"github.com/aretw0/marktree/pkg/domain"
)

// DefaultStaleAfter is how long a candidate may wait for its release before a new
// pointer-down is allowed to replace it.
const DefaultStaleAfter = 10 * time.Second

// State is the controller's gesture state.
type State int

const (
	StateIdle State = iota
	StateCandidate
	StateDragging
	StateResolving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCandidate:
		return "candidate"
	case StateDragging:
		return "dragging"
	case StateResolving:
		return "resolving"
	default:
		return "unknown"
	}
}

// Source names the listener layer an event came from.
type Source string

const (
	SourcePointer Source = "pointer"
	SourceMouse   Source = "mouse"
	SourceNative  Source = "native"
)

// Event is one pointer, mouse or native drag event.
type Event struct {
	Target Element
	X, Y   float64
	Source Source
}

// Outcome is how a gesture ended.
type Outcome int

const (
	// OutcomeIgnored: the event belonged to a layer that lost the race, or there was no gesture.
	OutcomeIgnored Outcome = iota
	// OutcomeMoved: the store accepted the move.
	OutcomeMoved
	// OutcomeNoTarget: the release point resolved to no valid container.
	OutcomeNoTarget
	// OutcomeNoOp: the target denotes the item's current slot.
	OutcomeNoOp
	// OutcomeRejected: the store or the in-flight guard refused the move.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeMoved:
		return "moved"
	case OutcomeNoTarget:
		return "no_target"
	case OutcomeNoOp:
		return "no_op"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result describes a finished gesture. Only OutcomeRejected carries Err.
type Result struct {
	Outcome   Outcome
	Candidate domain.DragCandidate
	Target    domain.InsertionTarget
	Node      *domain.Node
	Err       error
}

// Mover issues the move for a resolved gesture.
type Mover interface {
	Drop(ctx context.Context, candidate domain.DragCandidate, target domain.InsertionTarget) (*domain.Node, error)
}

// Snapshots gives the controller the current cached tree without I/O.
type Snapshots interface {
	Peek() *domain.Snapshot
}

// Controller is safe for concurrent use.
type Controller struct {
	surface Surface
	mover   Mover
	tree    Snapshots
	marker  Marker

	staleAfter time.Duration
	now        func() time.Time
	hooks      domain.LifecycleHooks
	logger     *slog.Logger

	mu          sync.Mutex
	state       State
	candidate   *domain.DragCandidate
	candidateEl Element
	since       time.Time
	down        *[2]float64 // last pointer-down coordinates, kept for salvage
}

// Option configures the Controller.
type Option func(*Controller)

// WithMarker sets the visual marker. A Surface that also implements Marker is used by default.
func WithMarker(m Marker) Option {
	return func(c *Controller) {
		c.marker = m
	}
}

// WithStaleAfter sets how long an unreleased candidate is honoured.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Controller) {
		c.staleAfter = d
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithHooks registers lifecycle callbacks (only OnGesture is used).
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Controller) {
		c.hooks = hooks
	}
}

// NewController creates an idle controller. tree may be nil, in which case source
// positions come from data-parent-id and data-index only.
func NewController(surface Surface, mover Mover, tree Snapshots, opts ...Option) *Controller {
	c := &Controller{
		surface:    surface,
		mover:      mover,
		tree:       tree,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		logger:     logging.NewNop(),
	}
	if m, ok := surface.(Marker); ok {
		c.marker = m
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current gesture state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Candidate returns the current candidate, if any.
func (c *Controller) Candidate() (domain.DragCandidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.candidate == nil {
		return domain.DragCandidate{}, false
	}
	return *c.candidate, true
}

// PointerDown starts a gesture on the item under ev.Target. It reports whether the
// event recorded a new candidate; a layer arriving while a fresh candidate exists is ignored.
func (c *Controller) PointerDown(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateResolving:
		return false
	case StateCandidate, StateDragging:
		if c.now().Sub(c.since) <= c.staleAfter {
			c.logger.Debug("Pointer-down ignored, gesture already has a candidate",
				"source", ev.Source, "item_id", c.candidate.ItemID)
			return false
		}
		c.logger.Debug("Replacing abandoned candidate", "item_id", c.candidate.ItemID)
		c.resetLocked()
	}

	pt := [2]float64{ev.X, ev.Y}
	c.down = &pt

	cand, el, ok := c.identify(ev.Target)
	if !ok {
		c.logger.Debug("Pointer-down found no item, keeping coordinates", "source", ev.Source, "x", ev.X, "y", ev.Y)
		return false
	}
	c.candidate = &cand
	c.candidateEl = el
	c.since = c.now()
	c.state = StateCandidate
	c.logger.Debug("Candidate recorded", "source", ev.Source, "item_id", cand.ItemID,
		"parent_id", cand.SourceParentID, "index", cand.SourceIndex)
	return true
}

// DragStart is the native drag/drop layer's pointer-down.
func (c *Controller) DragStart(ev Event) bool {
	if ev.Source == "" {
		ev.Source = SourceNative
	}
	return c.PointerDown(ev)
}

// PointerMove promotes a candidate to a drag and marks the item.
func (c *Controller) PointerMove(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCandidate {
		return
	}
	c.state = StateDragging
	if c.marker != nil && c.candidateEl != nil {
		c.marker.MarkDragging(c.candidateEl)
	}
}

// PointerUp resolves the gesture at the release point and issues the move.
// The controller is Idle again when PointerUp returns, whatever the outcome.
func (c *Controller) PointerUp(ctx context.Context, ev Event) Result {
	c.mu.Lock()
	if c.state == StateResolving || (c.candidate == nil && c.down == nil) {
		c.mu.Unlock()
		return Result{Outcome: OutcomeIgnored}
	}
	var cand *domain.DragCandidate
	if c.candidate != nil {
		cp := *c.candidate
		cand = &cp
	}
	down := c.down
	c.state = StateResolving
	c.mu.Unlock()

	defer c.reset()

	res := c.resolve(ctx, ev, cand, down)
	c.hooks.Gesture(ctx, &domain.GestureEvent{
		EventBase: domain.EventBase{Timestamp: c.now()},
		ItemID:    res.Candidate.ItemID,
		Target:    res.Target,
		Outcome:   res.Outcome.String(),
	})
	return res
}

// Drop is the native drag/drop layer's pointer-up.
func (c *Controller) Drop(ctx context.Context, ev Event) Result {
	if ev.Source == "" {
		ev.Source = SourceNative
	}
	return c.PointerUp(ctx, ev)
}

// Cancel abandons the current gesture. A gesture already resolving cannot be cancelled.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateResolving {
		return
	}
	c.resetLocked()
}

func (c *Controller) resolve(ctx context.Context, ev Event, cand *domain.DragCandidate, down *[2]float64) Result {
	if cand == nil {
		salvaged, ok := c.salvage(down)
		if !ok {
			c.logger.Debug("No candidate and salvage failed", "source", ev.Source)
			return Result{Outcome: OutcomeNoTarget}
		}
		c.logger.Debug("Candidate salvaged from pointer-down coordinates", "item_id", salvaged.ItemID)
		cand = &salvaged
	}

	res := Result{Candidate: *cand}
	target, ok := c.targetAt(ev)
	if !ok {
		res.Outcome = OutcomeNoTarget
		return res
	}
	res.Target = target

	// A folder cannot be dropped into its own subtree.
	if snap := c.snapshot(); snap != nil && target.Container() != cand.ItemID && snap.IsAncestor(cand.ItemID, target.Container()) {
		res.Outcome = OutcomeNoTarget
		return res
	}

	node, err := c.mover.Drop(ctx, *cand, target)
	switch {
	case err == nil:
		res.Outcome = OutcomeMoved
		res.Node = node
	case errors.Is(err, domain.ErrMoveRejected), errors.Is(err, domain.ErrAlreadyInFlight):
		res.Outcome = OutcomeRejected
		res.Err = err
		c.logger.Warn("Drop rejected", "item_id", cand.ItemID, "target", target.String(), "err", err)
	case errors.Is(err, domain.ErrDegenerateMove):
		res.Outcome = OutcomeNoOp
	case errors.Is(err, domain.ErrInvalidTarget), errors.Is(err, domain.ErrNoResolvableTarget):
		res.Outcome = OutcomeNoTarget
	default:
		res.Outcome = OutcomeRejected
		res.Err = err
		c.logger.Warn("Drop failed", "item_id", cand.ItemID, "target", target.String(), "err", err)
	}
	return res
}

// identify finds the item carried by el or its ancestors.
func (c *Controller) identify(el Element) (domain.DragCandidate, Element, bool) {
	var cand domain.DragCandidate
	var found Element
	ok := ancestors(el, func(cur Element) bool {
		id, has := itemID(cur)
		if !has {
			return false
		}
		parentID, index, known := c.position(cur, id)
		if !known {
			return false
		}
		cand = domain.DragCandidate{ItemID: id, SourceParentID: parentID, SourceIndex: index}
		found = cur
		return true
	})
	return cand, found, ok
}

// position prefers the cached snapshot over the element's own attributes.
func (c *Controller) position(el Element, id string) (string, int, bool) {
	if parentID, index, ok := c.snapshot().Position(id); ok {
		return parentID, index, true
	}
	parentID, ok := el.Attr(AttrParentID)
	if !ok || parentID == "" {
		return "", 0, false
	}
	raw, ok := el.Attr(AttrIndex)
	if !ok {
		return "", 0, false
	}
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return "", 0, false
	}
	return parentID, index, true
}

// salvage hit-tests the last pointer-down coordinates against the draggable items,
// preferring the smallest item that contains them.
func (c *Controller) salvage(down *[2]float64) (domain.DragCandidate, bool) {
	if down == nil || c.surface == nil {
		return domain.DragCandidate{}, false
	}
	var best Element
	for _, el := range c.surface.DraggableItems() {
		r := el.Rect()
		if !r.Contains(down[0], down[1]) {
			continue
		}
		if best == nil || r.area() < best.Rect().area() {
			best = el
		}
	}
	if best == nil {
		return domain.DragCandidate{}, false
	}
	cand, _, ok := c.identify(best)
	return cand, ok
}

func (c *Controller) snapshot() *domain.Snapshot {
	if c.tree == nil {
		return nil
	}
	return c.tree.Peek()
}

func (c *Controller) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	c.state = StateIdle
	c.candidate = nil
	c.candidateEl = nil
	c.down = nil
	if c.marker != nil {
		c.marker.ClearDragging()
	}
}
