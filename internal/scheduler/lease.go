package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease decides whether this replica may run the next escalation pass.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
}

// AlwaysLease is used when only one replica runs the scheduler.
type AlwaysLease struct{}

func (AlwaysLease) Acquire(context.Context) (bool, error) { return true, nil }

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLease grants a pass to whichever replica sets the key first. The key
// expires after ttl, which should be a little shorter than the scheduler interval.
type RedisLease struct {
	client setNXer
	key    string
	owner  string
	ttl    time.Duration
}

// NewRedisLease creates a lease held under key by owner.
func NewRedisLease(client setNXer, key, owner string, ttl time.Duration) *RedisLease {
	return &RedisLease{client: client, key: key, owner: owner, ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	return ok, nil
}

// OpenRedis parses url and checks the server is reachable.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
