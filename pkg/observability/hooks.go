package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/marktree/pkg/domain"
)

// LoggingHooks logs every lifecycle event at debug level, failures at warn.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnFetch: func(ctx context.Context, e *domain.FetchEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "fetch", "duration", e.Duration, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "fetch", "version", e.Version, "nodes", e.Nodes, "duration", e.Duration)
		},
		OnMove: func(ctx context.Context, e *domain.MoveEvent) {
			logger.DebugContext(ctx, "move",
				"item_id", e.ItemID,
				"parent_id", e.Destination.ParentID,
				"index", e.Destination.String(),
				"result", e.Result,
			)
		},
		OnMutation: func(ctx context.Context, e *domain.MutationEvent) {
			logger.DebugContext(ctx, "mutation", "kind", e.Kind, "item_id", e.ID, "origin", e.Origin)
		},
		OnRefresh: func(ctx context.Context, e *domain.RefreshEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "refresh", "coalesced", e.Coalesced, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "refresh", "coalesced", e.Coalesced, "version", e.Version)
		},
		OnGesture: func(ctx context.Context, e *domain.GestureEvent) {
			logger.DebugContext(ctx, "gesture", "item_id", e.ItemID, "target", e.Target.String(), "outcome", e.Outcome)
		},
	}
}

// Combine merges hooks so each event reaches every non-nil callback, in order.
func Combine(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range hooks {
		out.OnFetch = chain(out.OnFetch, h.OnFetch)
		out.OnMove = chain(out.OnMove, h.OnMove)
		out.OnMutation = chain(out.OnMutation, h.OnMutation)
		out.OnRefresh = chain(out.OnRefresh, h.OnRefresh)
		out.OnGesture = chain(out.OnGesture, h.OnGesture)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
