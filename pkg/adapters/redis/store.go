// Package redis implements a bookmark store shared by several processes through Redis.
//
// Each node is a hash ({prefix}node:{id}); each folder's ordered children are a list
// ({prefix}children:{id}). Mutations run as optimistic transactions (WATCH/MULTI) and
// are announced on the {prefix}events channel, which every process subscribes to.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/marktree/internal/logging"
	"github.com/aretw0/marktree/pkg/domain"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

const maxTxRetries = 10

// Store implements ports.BookmarkStore and ports.EventSource using Redis.
type Store struct {
	client *backend.Client
	prefix string
	origin string
	newID  func() string
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithOrigin tags events published by this process.
func WithOrigin(origin string) Option {
	return func(s *Store) {
		s.origin = origin
	}
}

// WithIDGenerator overrides the id generator used by Create.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "marktree:",
		origin: "redis",
		newID:  uuid.NewString,
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client returns the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) nodeKey(id string) string {
	return s.prefix + "node:" + id
}

func (s *Store) childrenKey(id string) string {
	return s.prefix + "children:" + id
}

func (s *Store) channel() string {
	return s.prefix + "events"
}

// Init creates the root folder if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	err := s.client.HSetNX(ctx, s.nodeKey(domain.RootID), "id", domain.RootID).Err()
	if err != nil {
		return fmt.Errorf("failed to initialize root: %w", err)
	}
	return s.client.HSetNX(ctx, s.nodeKey(domain.RootID), "dateAdded", s.now().UTC().Format(time.RFC3339Nano)).Err()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// GetTree loads the whole tree level by level, one pipeline per level.
func (s *Store) GetTree(ctx context.Context) ([]*domain.Node, error) {
	root, err := s.loadNode(ctx, s.client, domain.RootID)
	if err != nil {
		return nil, err
	}

	level := []*domain.Node{root}
	for len(level) > 0 {
		pipe := s.client.Pipeline()
		lists := make([]*backend.StringSliceCmd, len(level))
		for i, n := range level {
			lists[i] = pipe.LRange(ctx, s.childrenKey(n.ID), 0, -1)
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("failed to read children: %w", err)
		}

		pipe = s.client.Pipeline()
		type pending struct {
			parent *domain.Node
			cmd    *backend.MapStringStringCmd
		}
		var reads []pending
		for i, n := range level {
			for _, id := range lists[i].Val() {
				reads = append(reads, pending{parent: n, cmd: pipe.HGetAll(ctx, s.nodeKey(id))})
			}
		}
		if len(reads) == 0 {
			break
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to read nodes: %w", err)
		}

		var next []*domain.Node
		for _, r := range reads {
			n, err := decodeNode(r.cmd.Val())
			if err != nil {
				return nil, err
			}
			n.Index = len(r.parent.Children)
			r.parent.Children = append(r.parent.Children, n)
			if n.IsFolder() {
				next = append(next, n)
			}
		}
		level = next
	}
	return []*domain.Node{root}, nil
}

// GetChildren returns the direct children of parentID.
func (s *Store) GetChildren(ctx context.Context, parentID string) ([]*domain.Node, error) {
	if _, err := s.loadNode(ctx, s.client, parentID); err != nil {
		return nil, err
	}
	return s.children(ctx, s.client, parentID)
}

// Move relocates id. dest.Index counts siblings after id's removal.
func (s *Store) Move(ctx context.Context, id string, dest domain.Destination) (*domain.Node, error) {
	if id == domain.RootID {
		return nil, fmt.Errorf("%w: root cannot be moved", domain.ErrInvalidTarget)
	}

	var moved *domain.Node
	var ev domain.MutationEvent
	err := s.transact(ctx, func(tx *backend.Tx) error {
		n, err := s.loadNode(ctx, tx, id)
		if err != nil {
			return err
		}
		parent, err := s.loadFolder(ctx, tx, dest.ParentID)
		if err != nil {
			return err
		}
		if err := s.checkNotDescendant(ctx, tx, id, parent); err != nil {
			return err
		}

		oldKey, newKey := s.childrenKey(n.ParentID), s.childrenKey(parent.ID)
		if err := tx.Watch(ctx, oldKey, newKey).Err(); err != nil {
			return err
		}
		oldList, err := tx.LRange(ctx, oldKey, 0, -1).Result()
		if err != nil {
			return err
		}
		oldIndex := indexOf(oldList, id)
		if oldIndex < 0 {
			return fmt.Errorf("%w: %s missing from its parent list", domain.ErrNodeNotFound, id)
		}
		oldList = without(oldList, id)

		newList := oldList
		if parent.ID != n.ParentID {
			if newList, err = tx.LRange(ctx, newKey, 0, -1).Result(); err != nil {
				return err
			}
		}
		at, err := position(dest.Index, len(newList))
		if err != nil {
			return err
		}
		newList = insertAt(newList, id, at)

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			if parent.ID != n.ParentID {
				replaceList(ctx, pipe, oldKey, oldList)
			}
			replaceList(ctx, pipe, newKey, newList)
			pipe.HSet(ctx, s.nodeKey(id), "parentId", parent.ID)
			return nil
		})
		if err != nil {
			return err
		}

		ev = domain.MutationEvent{
			Kind: domain.MutationMoved, ID: id, ParentID: parent.ID, Index: at,
			OldParentID: n.ParentID, OldIndex: oldIndex, Origin: s.origin,
		}
		n.ParentID, n.Index = parent.ID, at
		moved = n
		return nil
	}, s.nodeKey(id))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ev)
	return moved, nil
}

// Create inserts a new bookmark or folder.
func (s *Store) Create(ctx context.Context, details domain.CreateDetails) (*domain.Node, error) {
	n := &domain.Node{
		ID:        s.newID(),
		ParentID:  details.ParentID,
		Title:     details.Title,
		URL:       details.URL,
		DateAdded: s.now().UTC(),
	}

	err := s.transact(ctx, func(tx *backend.Tx) error {
		if _, err := s.loadFolder(ctx, tx, details.ParentID); err != nil {
			return err
		}
		list, err := tx.LRange(ctx, s.childrenKey(details.ParentID), 0, -1).Result()
		if err != nil {
			return err
		}
		at, err := position(details.Index, len(list))
		if err != nil {
			return err
		}
		n.Index = at
		list = insertAt(list, n.ID, at)

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.HSet(ctx, s.nodeKey(n.ID), encodeNode(n))
			replaceList(ctx, pipe, s.childrenKey(details.ParentID), list)
			return nil
		})
		return err
	}, s.nodeKey(details.ParentID), s.childrenKey(details.ParentID))
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.MutationEvent{
		Kind: domain.MutationCreated, ID: n.ID, ParentID: n.ParentID, Index: n.Index, Origin: s.origin,
	})
	return n, nil
}

// Remove deletes id and its subtree.
func (s *Store) Remove(ctx context.Context, id string) error {
	if id == domain.RootID {
		return fmt.Errorf("%w: root cannot be removed", domain.ErrInvalidTarget)
	}

	var ev domain.MutationEvent
	err := s.transact(ctx, func(tx *backend.Tx) error {
		n, err := s.loadNode(ctx, tx, id)
		if err != nil {
			return err
		}
		parentKey := s.childrenKey(n.ParentID)
		if err := tx.Watch(ctx, parentKey).Err(); err != nil {
			return err
		}
		list, err := tx.LRange(ctx, parentKey, 0, -1).Result()
		if err != nil {
			return err
		}
		index := indexOf(list, id)

		subtree := []string{id}
		for i := 0; i < len(subtree); i++ {
			key := s.childrenKey(subtree[i])
			if err := tx.Watch(ctx, key).Err(); err != nil {
				return err
			}
			ids, err := tx.LRange(ctx, key, 0, -1).Result()
			if err != nil {
				return err
			}
			subtree = append(subtree, ids...)
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			replaceList(ctx, pipe, parentKey, without(list, id))
			for _, sub := range subtree {
				pipe.Del(ctx, s.nodeKey(sub), s.childrenKey(sub))
			}
			return nil
		})
		if err != nil {
			return err
		}
		ev = domain.MutationEvent{
			Kind: domain.MutationRemoved, ID: id, ParentID: n.ParentID, Index: index, Origin: s.origin,
		}
		return nil
	}, s.nodeKey(id))
	if err != nil {
		return err
	}
	s.publish(ctx, ev)
	return nil
}

// Update changes title and/or url in place.
func (s *Store) Update(ctx context.Context, id string, changes domain.Changes) (*domain.Node, error) {
	var updated *domain.Node
	err := s.transact(ctx, func(tx *backend.Tx) error {
		n, err := s.loadNode(ctx, tx, id)
		if err != nil {
			return err
		}
		if changes.URL != nil && (n.IsFolder() || *changes.URL == "") {
			return fmt.Errorf("%w: url of %s cannot be changed to %q", domain.ErrInvalidTarget, id, *changes.URL)
		}
		fields := map[string]interface{}{}
		if changes.Title != nil {
			n.Title = *changes.Title
			fields["title"] = n.Title
		}
		if changes.URL != nil {
			n.URL = *changes.URL
			fields["url"] = n.URL
		}
		if list, err := tx.LRange(ctx, s.childrenKey(n.ParentID), 0, -1).Result(); err == nil {
			n.Index = indexOf(list, id)
		}
		updated = n
		if len(fields) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.HSet(ctx, s.nodeKey(id), fields)
			return nil
		})
		return err
	}, s.nodeKey(id))
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.MutationEvent{
		Kind: domain.MutationChanged, ID: id, ParentID: updated.ParentID, Index: updated.Index, Origin: s.origin,
	})
	return updated, nil
}

// transact runs fn as an optimistic transaction over keys, retrying on conflicts.
func (s *Store) transact(ctx context.Context, fn func(tx *backend.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, backend.TxFailedErr) {
			s.logger.Debug("Redis transaction conflict, retrying", "attempt", attempt+1)
			continue
		}
		return err
	}
	return fmt.Errorf("redis transaction retries exhausted: %w", backend.TxFailedErr)
}

func (s *Store) loadNode(ctx context.Context, c backend.Cmdable, id string) (*domain.Node, error) {
	fields, err := c.HGetAll(ctx, s.nodeKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	return decodeNode(fields)
}

func (s *Store) loadFolder(ctx context.Context, c backend.Cmdable, id string) (*domain.Node, error) {
	n, err := s.loadNode(ctx, c, id)
	if err != nil {
		return nil, err
	}
	if !n.IsFolder() {
		return nil, fmt.Errorf("%w: %s is not a folder", domain.ErrInvalidTarget, id)
	}
	return n, nil
}

// checkNotDescendant walks up from parent, watching each ancestor, and fails if id is found.
func (s *Store) checkNotDescendant(ctx context.Context, tx *backend.Tx, id string, parent *domain.Node) error {
	for cur := parent; ; {
		if cur.ID == id {
			return fmt.Errorf("%w: %s cannot move into its own subtree", domain.ErrInvalidTarget, id)
		}
		if cur.ParentID == "" {
			return nil
		}
		if err := tx.Watch(ctx, s.nodeKey(cur.ParentID)).Err(); err != nil {
			return err
		}
		next, err := s.loadNode(ctx, tx, cur.ParentID)
		if err != nil {
			return err
		}
		cur = next
	}
}

func (s *Store) children(ctx context.Context, c backend.Cmdable, parentID string) ([]*domain.Node, error) {
	ids, err := c.LRange(ctx, s.childrenKey(parentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	out := make([]*domain.Node, 0, len(ids))
	for i, id := range ids {
		n, err := s.loadNode(ctx, c, id)
		if err != nil {
			return nil, err
		}
		n.Index = i
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) publish(ctx context.Context, ev domain.MutationEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("Failed to marshal event", "err", err)
		return
	}
	if err := s.client.Publish(ctx, s.channel(), data).Err(); err != nil {
		// The mutation is committed; subscribers catch up on their next event.
		s.logger.Warn("Failed to publish event", "kind", ev.Kind, "item_id", ev.ID, "err", err)
	}
}

func encodeNode(n *domain.Node) map[string]interface{} {
	fields := map[string]interface{}{
		"id":        n.ID,
		"parentId":  n.ParentID,
		"title":     n.Title,
		"dateAdded": n.DateAdded.Format(time.RFC3339Nano),
	}
	if n.URL != "" {
		fields["url"] = n.URL
	}
	return fields
}

func decodeNode(fields map[string]string) (*domain.Node, error) {
	n := &domain.Node{
		ID:       fields["id"],
		ParentID: fields["parentId"],
		Title:    fields["title"],
		URL:      fields["url"],
	}
	if raw := fields["dateAdded"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("node %s: bad dateAdded: %w", n.ID, err)
		}
		n.DateAdded = t
	}
	return n, nil
}

func replaceList(ctx context.Context, pipe backend.Pipeliner, key string, ids []string) {
	pipe.Del(ctx, key)
	if len(ids) == 0 {
		return
	}
	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	pipe.RPush(ctx, key, values...)
}

func position(index *int, length int) (int, error) {
	if index == nil {
		return length, nil
	}
	if *index < 0 || *index > length {
		return 0, fmt.Errorf("%w: index %d out of range [0,%d]", domain.ErrInvalidTarget, *index, length)
	}
	return *index, nil
}

func indexOf(list []string, id string) int {
	for i, v := range list {
		if v == id {
			return i
		}
	}
	return -1
}

func without(list []string, id string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func insertAt(list []string, id string, at int) []string {
	out := make([]string, 0, len(list)+1)
	out = append(out, list[:at]...)
	out = append(out, id)
	return append(out, list[at:]...)
}
