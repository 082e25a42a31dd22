package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	leaseKeyPrefix    = "stock:lease:"
	leaseMinPoll      = 5 * time.Millisecond
	leaseMaxPoll      = 100 * time.Millisecond
	leaseReleaseGrace = 2 * time.Second
)

// releaseLeaseScript deletes the lease only while it still carries our token,
// so an expired holder cannot free a lease someone else has since taken.
var releaseLeaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

var errLeaseLost = errors.New("lease expired before release")

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

// Acquire polls SET NX PX until the lease is taken or ctx is done.
func (r *RedisAdapter) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	redisKey := leaseKeyPrefix + key
	token := uuid.NewString()

	poll := leaseMinPoll
	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("acquire lease %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		poll = min(poll*2, leaseMaxPoll)
	}

	release := func(ctx context.Context) error {
		n, err := releaseLeaseScript.Run(ctx, r.client, []string{redisKey}, token).Int()
		if err != nil {
			return fmt.Errorf("release lease %s: %w", key, err)
		}
		if n == 0 {
			return errLeaseLost
		}
		return nil
	}
	return release, nil
}
