package storage

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/port"
)

// LeasedLedger takes a cluster-wide lease for the item before delegating to
// the inner ledger, for deployments where several processes share one store
// whose own locking is not enough. The lease is released when the inner
// transaction ends; its TTL frees it if the holder dies.
type LeasedLedger struct {
	inner       port.LedgerRepository
	locker      port.LeaseLocker
	ttl         time.Duration
	waitTimeout time.Duration
	log         *zap.Logger
}

func NewLeasedLedger(inner port.LedgerRepository, locker port.LeaseLocker, ttl, waitTimeout time.Duration, log *zap.Logger) *LeasedLedger {
	return &LeasedLedger{inner: inner, locker: locker, ttl: ttl, waitTimeout: waitTimeout, log: log}
}

func LeaseKey(key port.LockKey) string {
	return key.TenantID + ":" + key.ItemID
}

func (l *LeasedLedger) ExecuteLocked(ctx context.Context, key port.LockKey, fn func(ctx context.Context, ledger port.BalanceLedger) error) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.waitTimeout)
	release, err := l.locker.Acquire(waitCtx, LeaseKey(key), l.ttl)
	cancel()
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return domain.ErrLockTimeout
		}
		return err
	}

	defer func() {
		// the caller's ctx may already be cancelled; release on a fresh one
		relCtx, relCancel := context.WithTimeout(context.Background(), leaseReleaseGrace)
		defer relCancel()
		if err := release(relCtx); err != nil {
			l.log.Warn("lease release failed", zap.String("lease", LeaseKey(key)), zap.Error(err))
		}
	}()

	return l.inner.ExecuteLocked(ctx, key, fn)
}
