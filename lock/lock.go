// Package lock provides a Redis-backed mutual exclusion primitive that
// doubles as a rate limiter.
//
// A lock is a single Redis key holding a random owner token with an
// expiry. Holding the lock past the protected operation for a configured
// wait time turns the mutex into a minimum inter-call spacing: two calls
// through the same key are at least that far apart. Fetchers use it keyed
// by target domain, receivers keyed by their logical name.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yakimka/feed-watchdog/errors"
	"github.com/yakimka/feed-watchdog/redisclient"
)

// Defaults mirror the limits of the external APIs the locks protect
const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
)

// releaseScript deletes the lock only if we still own it. An owner
// mismatch means the lock expired and was taken over; releasing it would
// steal it from the new holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker acquires locks on a shared Redis connection
type Locker struct {
	client *redisclient.Client
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) bool
}

// LockerOption configures optional locker behavior
type LockerOption func(*Locker)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) LockerOption {
	return func(l *Locker) {
		l.logger = logger
	}
}

// withSleep replaces the sleep function. Test hook.
func withSleep(sleep func(ctx context.Context, d time.Duration) bool) LockerOption {
	return func(l *Locker) {
		l.sleep = sleep
	}
}

// NewLocker creates a locker on the given Redis connection
func NewLocker(client *redisclient.Client, opts ...LockerOption) *Locker {
	l := &Locker{
		client: client,
		logger: slog.Default(),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// options holds per-call lock configuration
type options struct {
	timeout          time.Duration
	waitAfterRelease time.Duration
	retries          int
	required         bool
}

// Option configures one WithLock call
type Option func(*options)

// WithTimeout bounds how long a crashed holder can keep the lock
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithWaitAfterRelease holds the lock for d after the protected operation
// finishes, enforcing a minimum spacing between calls through the same key
func WithWaitAfterRelease(d time.Duration) Option {
	return func(o *options) {
		o.waitAfterRelease = d
	}
}

// WithRetries overrides how many acquisition attempts are made
func WithRetries(n int) Option {
	return func(o *options) {
		o.retries = n
	}
}

// Required makes acquisition failure an error instead of a logged skip.
// Fetchers and receivers keep the best-effort default: skipping a cycle is
// cheaper than risking duplicate or out-of-order external calls.
func Required() Option {
	return func(o *options) {
		o.required = true
	}
}

// WithLock runs fn under mutual exclusion scoped to key.
//
// Acquisition is retried with a full-timeout pause between attempts. On
// exhaustion the call returns ErrLockNotAcquired when Required, otherwise
// it logs a warning and returns nil without running fn.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error, opts ...Option) error {
	o := options{
		timeout: DefaultTimeout,
		retries: DefaultRetries,
	}
	for _, opt := range opts {
		opt(&o)
	}

	for attempt := 0; attempt < o.retries; attempt++ {
		token, acquired, err := l.acquire(ctx, key, o.timeout)
		if err != nil {
			return err
		}
		if acquired {
			fnErr := fn(ctx)

			// the pause belongs inside the critical section: it is the
			// minimum spacing between consecutive calls on this key
			if o.waitAfterRelease > 0 {
				l.sleep(ctx, o.waitAfterRelease)
			}
			l.release(ctx, key, token)
			return fnErr
		}

		if attempt < o.retries-1 {
			l.logger.Warn("lock busy, retrying", "component", "lock", "key", key, "attempt", attempt+1)
			if !l.sleep(ctx, o.timeout) {
				break
			}
		}
	}

	if o.required {
		return errors.WrapTransient(errors.ErrLockNotAcquired, "Locker", "WithLock", "acquisition of "+key)
	}
	l.logger.Warn("lock not acquired, skipping operation", "component", "lock", "key", key)
	return nil
}

// acquire attempts a single SET NX PX with a fresh owner token
func (l *Locker) acquire(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	token := newToken()
	ok, err := l.client.Redis().SetNX(ctx, key, token, timeout).Result()
	if err != nil {
		return "", false, errors.WrapTransient(err, "Locker", "acquire", "lock set")
	}
	return token, ok, nil
}

// release deletes the lock if still owned. Losing ownership is expected
// when the protected operation outlived the expiry; the takeover holder
// keeps the lock.
func (l *Locker) release(ctx context.Context, key, token string) {
	deleted, err := releaseScript.Run(ctx, l.client.Redis(), []string{key}, token).Int()
	if err != nil {
		l.logger.Error("lock release failed", "component", "lock", "key", key, "error", err)
		return
	}
	if deleted == 0 {
		l.logger.Debug("lock not owned at release", "component", "lock", "key", key)
	}
}

func newToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
