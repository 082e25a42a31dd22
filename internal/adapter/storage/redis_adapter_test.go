package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/port"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisLease_AcquireRelease(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	client.Del(ctx, leaseKeyPrefix+"test-lease")

	release, err := adapter.Acquire(ctx, "test-lease", time.Minute)
	require.NoError(t, err)

	ttl, err := client.PTTL(ctx, leaseKeyPrefix+"test-lease").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, release(ctx))
	exists, _ := client.Exists(ctx, leaseKeyPrefix+"test-lease").Result()
	assert.Zero(t, exists)
}

func TestRedisLease_WaitsForHolder(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	client.Del(ctx, leaseKeyPrefix+"contended")

	release, err := adapter.Acquire(ctx, "contended", time.Minute)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = adapter.Acquire(waitCtx, "contended", time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, release(ctx))
	release, err = adapter.Acquire(ctx, "contended", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestRedisLease_ExpiredLeaseNotStolen(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	client.Del(ctx, leaseKeyPrefix+"expiring")

	stale, err := adapter.Acquire(ctx, "expiring", 20*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	fresh, err := adapter.Acquire(ctx, "expiring", time.Minute)
	require.NoError(t, err)

	// the stale holder must not free the new lease
	assert.ErrorIs(t, stale(ctx), errLeaseLost)
	exists, _ := client.Exists(ctx, leaseKeyPrefix+"expiring").Result()
	assert.EqualValues(t, 1, exists)

	require.NoError(t, fresh(ctx))
}

func TestRedisLease_ConcurrentSectionsAreExclusive(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	client.Del(ctx, leaseKeyPrefix+LeaseKey(keyI1))

	inner := seededLedger(t, 5*time.Second)
	ledger := NewLeasedLedger(inner, NewRedisAdapter(client), 30*time.Second, 10*time.Second, zap.NewNop())

	var inside atomic.Int32
	var overlap atomic.Bool
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ledger.ExecuteLocked(ctx, keyI1, func(ctx context.Context, tx port.BalanceLedger) error {
				if inside.Add(1) > 1 {
					overlap.Store(true)
				}
				defer inside.Add(-1)
				return tx.ApplyDelta(ctx, "b-old", 0)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load())
}
