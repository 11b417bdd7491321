package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

// ErrLockHeld is returned when another writer holds the record lock.
var ErrLockHeld = errors.New("billing record is locked by another writer")

// Locker serializes writers of one billing record. The version check in the
// repository stays authoritative; the lock only keeps writers from racing
// into conflicts.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// NoopLocker never blocks.
type NoopLocker struct{}

func (NoopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

// RedisLocker takes a short lived redis lock per record.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker locks through rdb. ttl bounds how long a crashed writer
// can hold a record; wait bounds how long a writer queues for it.
func NewRedisLocker(rdb redislock.RedisClient, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	retries := int(l.wait / (50 * time.Millisecond))
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}
	return func() {
		// Release with a fresh context: the request context may already be done.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = lock.Release(ctx)
	}, nil
}

func lockKey(id fmt.Stringer) string {
	return "billing:lock:" + id.String()
}
