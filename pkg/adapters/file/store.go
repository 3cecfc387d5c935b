// Package file implements a bookmark store persisted as a single JSON document.
//
// Every write is applied to an in-memory tree and then written atomically. Its events
// are published only once the document is on disk; a failed write restores the tree.
// Edits made to the document by other programs are picked up by Watch, diffed against
// the tree and published as mutation events.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/marktree/internal/logging"
	"github.com/aretw0/marktree/pkg/adapters/memory"
	"github.com/aretw0/marktree/pkg/domain"
)

// document is the on-disk layout.
type document struct {
	Roots []*domain.Node `json:"roots"`
}

// Store implements ports.BookmarkStore and ports.EventSource on top of a JSON file.
type Store struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	// mu serializes "mutate then persist" against "read then replace".
	mu     sync.Mutex
	tree   *memory.Store
	events *memory.Fanout
	staged []domain.MutationEvent // tree events not yet published, guarded by mu
}

// Option configures the Store.
type Option func(*Store)

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithDebounce sets how long Watch waits for a burst of filesystem events to settle.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		s.debounce = d
	}
}

// New opens the document at path, creating it with an empty root folder when missing.
// If path is empty, it defaults to ".marktree/bookmarks.json".
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = filepath.Join(".marktree", "bookmarks.json")
	}
	s := &Store{
		path:     path,
		debounce: 100 * time.Millisecond,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = memory.NewFanout(s.logger)
	s.tree = memory.NewStore(
		memory.WithLogger(s.logger),
		memory.WithOrigin("file"),
		memory.WithPublisher(s.stage),
	)

	roots, err := s.read()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := s.persist(context.Background()); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if _, err := s.tree.Replace(roots); err != nil {
			return nil, fmt.Errorf("invalid bookmark file %s: %w", path, err)
		}
	}
	s.staged = nil
	return s, nil
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// GetTree returns a deep copy of the whole tree.
func (s *Store) GetTree(ctx context.Context) ([]*domain.Node, error) {
	return s.tree.GetTree(ctx)
}

// GetChildren returns copies of the direct children of parentID.
func (s *Store) GetChildren(ctx context.Context, parentID string) ([]*domain.Node, error) {
	return s.tree.GetChildren(ctx, parentID)
}

// Move relocates id and persists the document.
func (s *Store) Move(ctx context.Context, id string, dest domain.Destination) (*domain.Node, error) {
	var n *domain.Node
	err := s.apply(ctx, func() (err error) {
		n, err = s.tree.Move(ctx, id, dest)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Create inserts a node and persists the document.
func (s *Store) Create(ctx context.Context, details domain.CreateDetails) (*domain.Node, error) {
	var n *domain.Node
	err := s.apply(ctx, func() (err error) {
		n, err = s.tree.Create(ctx, details)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Remove deletes a subtree and persists the document.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.apply(ctx, func() error {
		return s.tree.Remove(ctx, id)
	})
}

// Update changes a node and persists the document.
func (s *Store) Update(ctx context.Context, id string, changes domain.Changes) (*domain.Node, error) {
	var n *domain.Node
	err := s.apply(ctx, func() (err error) {
		n, err = s.tree.Update(ctx, id, changes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Subscribe implements ports.EventSource. Events cover writes made through this Store
// and, while Watch runs, external edits of the document.
func (s *Store) Subscribe(ctx context.Context) (<-chan domain.MutationEvent, error) {
	return s.events.Subscribe(ctx), nil
}

// Reload re-reads the document and publishes the difference to the in-memory tree.
func (s *Store) Reload() ([]domain.MutationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roots, err := s.read()
	if err != nil {
		return nil, err
	}
	events, err := s.tree.Replace(roots)
	if err != nil {
		s.staged = nil
		return nil, err
	}
	s.commit()
	return events, nil
}

// apply runs op on the tree and writes the document. When the write fails the tree
// is put back as it was and op's events are dropped.
func (s *Store) apply(ctx context.Context, op func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := s.tree.GetTree(ctx)
	if err != nil {
		return err
	}
	s.staged = nil
	if err := op(); err != nil {
		s.staged = nil
		return err
	}
	if err := s.persist(ctx); err != nil {
		if _, rerr := s.tree.Replace(before); rerr != nil {
			s.logger.Error("Failed to restore bookmark tree", "path", s.path, "err", rerr)
		}
		s.staged = nil
		return err
	}
	s.commit()
	return nil
}

// stage collects tree events; the tree calls it with its own lock held.
func (s *Store) stage(ev domain.MutationEvent) {
	s.staged = append(s.staged, ev)
}

func (s *Store) commit() {
	for _, ev := range s.staged {
		s.events.Publish(ev)
	}
	s.staged = nil
}

func (s *Store) read() ([]*domain.Node, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bookmark file: %w", err)
	}
	return doc.Roots, nil
}

// persist writes the document atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) persist(ctx context.Context) error {
	roots, err := s.tree.GetTree(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(document{Roots: roots}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bookmarks: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure bookmark directory: %w", err)
	}

	// Same directory, so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(s.path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace bookmark file: %w", err)
	}
	return nil
}
