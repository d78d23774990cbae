package redisstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	auth "github.com/goliatone/go-growth-auth"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultLockRetry = 25 * time.Millisecond
	lockPrefix       = "growth:lock:"
)

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a SubjectLocker using SET NX with a TTL. The TTL bounds how long
// a crashed holder can block others.
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	logger auth.Logger
}

var _ auth.SubjectLocker = (*Locker)(nil)

// LockerOption customizes a Locker.
type LockerOption func(*Locker)

// WithLockTTL sets the lease length.
func WithLockTTL(ttl time.Duration) LockerOption {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLockRetry sets the polling interval while waiting.
func WithLockRetry(retry time.Duration) LockerOption {
	return func(l *Locker) {
		if retry > 0 {
			l.retry = retry
		}
	}
}

// WithLockLogger overrides the logger.
func WithLockLogger(logger auth.Logger) LockerOption {
	return func(l *Locker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLocker builds a Locker on client.
func NewLocker(client redis.UniversalClient, opts ...LockerOption) *Locker {
	l := &Locker{
		client: client,
		ttl:    defaultLockTTL,
		retry:  defaultLockRetry,
		logger: auth.NoopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Lock waits until the subject's lease is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, subjectID string) (func(), error) {
	key := lockPrefix + subjectID
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { l.unlock(key, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := unlockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.logger.Warn("redis lock release failed, lease will expire", "key", key, "error", err)
	}
}
