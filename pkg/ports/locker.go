package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for cross-process move guards.
// It lets coordinators in several processes agree that an item already has a move in flight.
type DistributedLocker interface {
	// TryLock acquires the lock for key without waiting.
	// It returns domain.ErrAlreadyInFlight when another holder owns the key.
	// The returned UnlockFunc MUST be called to release the lock; the TTL bounds a crashed holder.
	TryLock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
