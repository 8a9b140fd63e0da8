package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for distributed concurrency control.
// It lets the scheduler extend write grants across multiple processes sharing a gateway.
type DistributedLocker interface {
	// Lock attempts to acquire a distributed lock for the given key (e.g., a lock name).
	// It blocks until the lock is acquired or the context is canceled.
	// The lock stays held until the UnlockFunc is called; ttl bounds how long a holder that
	// crashed without unlocking keeps others out.
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
