package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/marktree/internal/logging"
	"github.com/aretw0/marktree/pkg/domain"
	"github.com/google/uuid"
)

// Store implements ports.BookmarkStore and ports.EventSource in memory.
// Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*domain.Node

	events  *Fanout
	publish func(domain.MutationEvent)
	origin  string
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger configures a logger for dropped events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithOrigin tags every event published by this store.
func WithOrigin(origin string) Option {
	return func(s *Store) {
		s.origin = origin
	}
}

// WithPublisher sends events to fn instead of the store's own subscribers.
// Subscribe then yields nothing; fn is called with the store lock held.
func WithPublisher(fn func(domain.MutationEvent)) Option {
	return func(s *Store) {
		s.publish = fn
	}
}

// WithClock overrides the clock used for DateAdded.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator overrides the id generator used by Create.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

// NewStore creates an empty store holding only the root folder.
func NewStore(opts ...Option) *Store {
	s := &Store{
		nodes:  make(map[string]*domain.Node),
		origin: "memory",
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = NewFanout(s.logger)
	if s.publish == nil {
		s.publish = s.events.Publish
	}
	s.nodes[domain.RootID] = &domain.Node{ID: domain.RootID, DateAdded: s.now()}
	return s
}

// GetTree returns a deep copy of the whole tree.
func (s *Store) GetTree(ctx context.Context) ([]*domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return []*domain.Node{s.nodes[domain.RootID].Clone()}, nil
}

// GetChildren returns copies of the direct children of parentID.
func (s *Store) GetChildren(ctx context.Context, parentID string) ([]*domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parent, ok := s.nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, parentID)
	}
	out := make([]*domain.Node, len(parent.Children))
	for i, c := range parent.Children {
		cp := c.Shallow()
		out[i] = &cp
	}
	return out, nil
}

// Move relocates id. dest.Index counts siblings after id's removal.
func (s *Store) Move(ctx context.Context, id string, dest domain.Destination) (*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	if id == domain.RootID {
		return nil, fmt.Errorf("%w: root cannot be moved", domain.ErrInvalidTarget)
	}
	parent, err := s.folder(dest.ParentID)
	if err != nil {
		return nil, err
	}
	if s.isAncestor(id, parent.ID) {
		return nil, fmt.Errorf("%w: %s cannot move into its own subtree", domain.ErrInvalidTarget, id)
	}

	oldParent := s.nodes[n.ParentID]
	oldIndex := n.Index

	remaining := len(parent.Children)
	if parent == oldParent {
		remaining--
	}
	at, err := position(dest.Index, remaining)
	if err != nil {
		return nil, err
	}

	oldParent.Children = detach(oldParent.Children, n.Index)
	parent.Children = insert(parent.Children, n, at)
	n.ParentID = parent.ID
	renumber(oldParent)
	renumber(parent)

	s.publish(domain.MutationEvent{
		Kind:        domain.MutationMoved,
		ID:          id,
		ParentID:    n.ParentID,
		Index:       n.Index,
		OldParentID: oldParent.ID,
		OldIndex:    oldIndex,
		Origin:      s.origin,
	})
	cp := n.Shallow()
	return &cp, nil
}

// Create inserts a new bookmark or folder.
func (s *Store) Create(ctx context.Context, details domain.CreateDetails) (*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, err := s.folder(details.ParentID)
	if err != nil {
		return nil, err
	}
	at, err := position(details.Index, len(parent.Children))
	if err != nil {
		return nil, err
	}

	n := &domain.Node{
		ID:        s.newID(),
		ParentID:  parent.ID,
		Title:     details.Title,
		URL:       details.URL,
		DateAdded: s.now(),
	}
	if _, exists := s.nodes[n.ID]; exists {
		return nil, fmt.Errorf("%w: duplicate id %s", domain.ErrInvalidTarget, n.ID)
	}
	parent.Children = insert(parent.Children, n, at)
	renumber(parent)
	s.nodes[n.ID] = n

	s.publish(domain.MutationEvent{
		Kind:     domain.MutationCreated,
		ID:       n.ID,
		ParentID: n.ParentID,
		Index:    n.Index,
		Origin:   s.origin,
	})
	cp := n.Shallow()
	return &cp, nil
}

// Remove deletes id and its subtree.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	if id == domain.RootID {
		return fmt.Errorf("%w: root cannot be removed", domain.ErrInvalidTarget)
	}

	parent := s.nodes[n.ParentID]
	index := n.Index
	parent.Children = detach(parent.Children, index)
	renumber(parent)
	s.forget(n)

	s.publish(domain.MutationEvent{
		Kind:     domain.MutationRemoved,
		ID:       id,
		ParentID: parent.ID,
		Index:    index,
		Origin:   s.origin,
	})
	return nil
}

// Update changes title and/or url in place.
func (s *Store) Update(ctx context.Context, id string, changes domain.Changes) (*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	if changes.URL != nil && (n.IsFolder() || *changes.URL == "") {
		return nil, fmt.Errorf("%w: url of %s cannot be changed to %q", domain.ErrInvalidTarget, id, *changes.URL)
	}
	if changes.Title != nil {
		n.Title = *changes.Title
	}
	if changes.URL != nil {
		n.URL = *changes.URL
	}

	s.publish(domain.MutationEvent{
		Kind:     domain.MutationChanged,
		ID:       id,
		ParentID: n.ParentID,
		Index:    n.Index,
		Origin:   s.origin,
	})
	cp := n.Shallow()
	return &cp, nil
}

// Subscribe implements ports.EventSource.
func (s *Store) Subscribe(ctx context.Context) (<-chan domain.MutationEvent, error) {
	return s.events.Subscribe(ctx), nil
}

// Replace swaps the whole tree for roots, which must contain the root folder, and
// publishes the events that describe the difference. It returns those events.
func (s *Store) Replace(roots []*domain.Node) ([]domain.MutationEvent, error) {
	var root *domain.Node
	for _, r := range roots {
		if r != nil && r.ID == domain.RootID {
			root = r.Clone()
		}
	}
	if root == nil {
		return nil, fmt.Errorf("%w: tree has no root folder %q", domain.ErrInvalidTarget, domain.RootID)
	}

	nodes := make(map[string]*domain.Node)
	if err := index(nodes, root, ""); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := domain.NewSnapshot([]*domain.Node{s.nodes[domain.RootID]}, 0, time.Time{})
	after := domain.NewSnapshot([]*domain.Node{root}, 0, time.Time{})
	events := domain.Diff(before, after)
	s.nodes = nodes
	for i := range events {
		events[i].Origin = s.origin
		s.publish(events[i])
	}
	return events, nil
}

func (s *Store) folder(id string) (*domain.Node, error) {
	parent, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	if !parent.IsFolder() {
		return nil, fmt.Errorf("%w: %s is not a folder", domain.ErrInvalidTarget, id)
	}
	return parent, nil
}

func (s *Store) isAncestor(ancestorID, id string) bool {
	for cur, ok := s.nodes[id]; ok; cur, ok = s.nodes[cur.ParentID] {
		if cur.ID == ancestorID {
			return true
		}
	}
	return false
}

func (s *Store) forget(n *domain.Node) {
	delete(s.nodes, n.ID)
	for _, c := range n.Children {
		s.forget(c)
	}
}

func index(nodes map[string]*domain.Node, n *domain.Node, parentID string) error {
	if n.ID == "" {
		return fmt.Errorf("%w: node %q has no id", domain.ErrInvalidTarget, n.Title)
	}
	if _, dup := nodes[n.ID]; dup {
		return fmt.Errorf("%w: duplicate id %s", domain.ErrInvalidTarget, n.ID)
	}
	n.ParentID = parentID
	nodes[n.ID] = n
	renumber(n)
	for _, c := range n.Children {
		if err := index(nodes, c, n.ID); err != nil {
			return err
		}
	}
	return nil
}

// position validates an insertion index against length siblings; nil appends.
func position(index *int, length int) (int, error) {
	if index == nil {
		return length, nil
	}
	if *index < 0 || *index > length {
		return 0, fmt.Errorf("%w: index %d out of range [0,%d]", domain.ErrInvalidTarget, *index, length)
	}
	return *index, nil
}

func detach(list []*domain.Node, at int) []*domain.Node {
	return append(list[:at:at], list[at+1:]...)
}

func insert(list []*domain.Node, n *domain.Node, at int) []*domain.Node {
	out := make([]*domain.Node, 0, len(list)+1)
	out = append(out, list[:at]...)
	out = append(out, n)
	return append(out, list[at:]...)
}

func renumber(parent *domain.Node) {
	for i, c := range parent.Children {
		c.Index = i
	}
}
