package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/port"
)

// mockLocker hands out one lease per key, blocking other acquirers.
type mockLocker struct {
	mu         sync.Mutex
	held       map[string]chan struct{}
	acquired   []string
	released   []string
	releaseErr error
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[string]chan struct{})}
}

func (m *mockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	for {
		m.mu.Lock()
		wait, busy := m.held[key]
		if !busy {
			freed := make(chan struct{})
			m.held[key] = freed
			m.acquired = append(m.acquired, key)
			m.mu.Unlock()
			return func(context.Context) error {
				m.mu.Lock()
				defer m.mu.Unlock()
				delete(m.held, key)
				m.released = append(m.released, key)
				close(freed)
				return m.releaseErr
			}, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

func TestLeasedLedger_AcquiresAndReleases(t *testing.T) {
	inner := seededLedger(t, time.Second)
	locker := newMockLocker()
	l := NewLeasedLedger(inner, locker, time.Minute, time.Second, zap.NewNop())

	err := l.ExecuteLocked(context.Background(), keyI1, func(ctx context.Context, tx port.BalanceLedger) error {
		return tx.ApplyDelta(ctx, "b-old", 3)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"t1:i1"}, locker.acquired)
	assert.Equal(t, []string{"t1:i1"}, locker.released)

	rows, err := inner.ListBalances(context.Background(), "t1", "i1", "w1")
	require.NoError(t, err)
	assert.Equal(t, 3, rows[0].ReservedQty)
}

func TestLeasedLedger_ReleasesOnError(t *testing.T) {
	locker := newMockLocker()
	l := NewLeasedLedger(seededLedger(t, time.Second), locker, time.Minute, time.Second, zap.NewNop())
	boom := errors.New("boom")

	err := l.ExecuteLocked(context.Background(), keyI1, func(context.Context, port.BalanceLedger) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Len(t, locker.released, 1)
}

func TestLeasedLedger_WaitTimeout(t *testing.T) {
	locker := newMockLocker()
	l := NewLeasedLedger(seededLedger(t, time.Second), locker, time.Minute, 30*time.Millisecond, zap.NewNop())

	release, err := locker.Acquire(context.Background(), LeaseKey(keyI1), time.Minute)
	require.NoError(t, err)
	defer release(context.Background())

	err = l.ExecuteLocked(context.Background(), keyI1, func(context.Context, port.BalanceLedger) error {
		t.Fatal("section entered while lease is held")
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
}

func TestLeasedLedger_CallerCancelled(t *testing.T) {
	locker := newMockLocker()
	l := NewLeasedLedger(seededLedger(t, time.Second), locker, time.Minute, time.Second, zap.NewNop())

	release, err := locker.Acquire(context.Background(), LeaseKey(keyI1), time.Minute)
	require.NoError(t, err)
	defer release(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = l.ExecuteLocked(ctx, keyI1, func(context.Context, port.BalanceLedger) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLeasedLedger_ReleaseFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	locker := newMockLocker()
	locker.releaseErr = errLeaseLost
	l := NewLeasedLedger(seededLedger(t, time.Second), locker, time.Minute, time.Second, zap.New(core))

	err := l.ExecuteLocked(context.Background(), keyI1, func(context.Context, port.BalanceLedger) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("lease release failed").Len())
}
