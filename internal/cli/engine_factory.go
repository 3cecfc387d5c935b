package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/marktree"
	"github.com/aretw0/marktree/internal/config"
	"github.com/aretw0/marktree/internal/logging"
	"github.com/aretw0/marktree/pkg/adapters/file"
	"github.com/aretw0/marktree/pkg/adapters/memory"
	"github.com/aretw0/marktree/pkg/adapters/redis"
	"github.com/aretw0/marktree/pkg/domain"
	"github.com/aretw0/marktree/pkg/observability"
	"github.com/aretw0/marktree/pkg/ports"
)

// Runtime is an engine plus the backend-specific pieces a command may need.
type Runtime struct {
	Engine  *marktree.Engine
	Metrics *observability.Metrics
	Logger  *slog.Logger

	// Watch follows external edits of the backing store until ctx is done.
	// It is nil for backends that report their own events.
	Watch func(ctx context.Context) error

	closers []func() error
}

// Close releases backend connections.
func (r *Runtime) Close() error {
	var errs []string
	for _, c := range r.closers {
		if err := c(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NewLogger builds the application logger from cfg.
func NewLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(level, cfg.Log.Format), nil
}

// CreateEngine initializes a marktree engine over the configured store backend.
func CreateEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	rt := &Runtime{
		Metrics: observability.NewMetrics(),
		Logger:  logger,
	}

	var (
		store  ports.BookmarkStore
		events ports.EventSource
		opts   []marktree.Option
	)

	switch cfg.Store.Backend {
	case config.BackendMemory:
		var seed []*domain.Node
		if cfg.Store.Seed != "" {
			var err error
			if seed, err = memory.LoadSeedFile(cfg.Store.Seed); err != nil {
				return nil, err
			}
		}
		s, err := memory.NewFromNodes(seed, memory.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("error seeding memory store: %w", err)
		}
		store, events = s, s

	case config.BackendFile:
		s, err := file.New(cfg.File.Path,
			file.WithLogger(logger),
			file.WithDebounce(cfg.File.Debounce),
		)
		if err != nil {
			return nil, fmt.Errorf("error opening %s: %w", cfg.File.Path, err)
		}
		store, events = s, s
		rt.Watch = s.Watch

	case config.BackendRedis:
		s := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithLogger(logger),
		)
		rt.closers = append(rt.closers, s.Close)
		if err := s.Ping(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("error connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		if err := s.Init(ctx); err != nil {
			rt.Close()
			return nil, err
		}
		store, events = s, s
		opts = append(opts, marktree.WithLocker(redis.NewLocker(s.Client(), cfg.Redis.Prefix), cfg.Redis.LockTTL))

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	opts = append(opts,
		marktree.WithLogger(logger),
		marktree.WithLifecycleHooks(observability.Combine(
			rt.Metrics.Hooks(),
			observability.LoggingHooks(logger),
		)),
		marktree.WithRefreshWindow(cfg.Reconcile.Window),
		marktree.WithStaleAfter(cfg.Drag.StaleAfter),
	)
	rt.Engine = marktree.New(store, events, opts...)
	logger.Debug("Engine created", "backend", cfg.Store.Backend)
	return rt, nil
}
