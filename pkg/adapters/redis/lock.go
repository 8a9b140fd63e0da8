package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/lockstep/internal/logging"
	"github.com/aretw0/lockstep/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

var (
	// ErrLockAcquire is returned when the lock cannot be acquired.
	ErrLockAcquire = errors.New("failed to acquire distributed lock")
)

// compare-and-delete: only the holder that wrote the token may release.
const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// extends the lease only while the token still matches.
const refreshScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// DefaultPollInterval is how often a contended lock is retried.
const DefaultPollInterval = 100 * time.Millisecond

// Locker implements ports.DistributedLocker using Redis.
// A held lock is refreshed every third of its TTL until unlocked, so the TTL only bounds
// how long a crashed holder blocks other processes.
type Locker struct {
	client *backend.Client
	prefix string
	poll   time.Duration
	logger *slog.Logger
}

// LockerOption configures the Locker.
type LockerOption func(*Locker)

// WithLockerLogger reports leases lost before release.
func WithLockerLogger(logger *slog.Logger) LockerOption {
	return func(l *Locker) {
		l.logger = logger
	}
}

// NewLocker creates a new Redis locker.
func NewLocker(client *backend.Client, prefix string, opts ...LockerOption) *Locker {
	l := &Locker{
		client: client,
		prefix: prefix,
		poll:   DefaultPollInterval,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock acquires a distributed lock for the given key using Redis SET NX PX.
// It tries once immediately, then polls until ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := xid.New().String()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: redis error on %s: %v", ErrLockAcquire, key, err)
		}
		if ok {
			stop := make(chan struct{})
			var once sync.Once
			go l.keepAlive(key, lockKey, token, ttl, stop)
			return func(ctx context.Context) error {
				once.Do(func() { close(stop) })
				return l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// keepAlive extends the lease of a held lock until stop is closed or the lease is lost.
func (l *Locker) keepAlive(key, lockKey, token string, ttl time.Duration, stop <-chan struct{}) {
	interval := ttl / 3
	if interval < time.Millisecond {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := l.client.Eval(ctx, refreshScript, []string{lockKey}, token, ttl.Milliseconds()).Int()
		cancel()

		select {
		case <-stop:
			return
		default:
		}
		if err != nil {
			l.logger.Warn("Failed to refresh distributed lock", "lock", key, "err", err)
			continue
		}
		if n == 0 {
			l.logger.Warn("Distributed lock lost before release", "lock", key)
			return
		}
	}
}
