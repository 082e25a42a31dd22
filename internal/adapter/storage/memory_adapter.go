package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/port"
)

// MemoryLedger is a single-process ledger. Each item has its own weighted
// semaphore of size one, so waiters are served in arrival order and items
// never block each other. Only valid when one process owns the ledger.
type MemoryLedger struct {
	mu          sync.RWMutex
	rows        map[string]*domain.BalanceRow
	locks       itemLocks
	lockTimeout time.Duration
	now         func() time.Time
}

func NewMemoryLedger(lockTimeout time.Duration) *MemoryLedger {
	return &MemoryLedger{
		rows:        make(map[string]*domain.BalanceRow),
		locks:       itemLocks{sems: make(map[port.LockKey]*semaphore.Weighted)},
		lockTimeout: lockTimeout,
		now:         time.Now,
	}
}

type itemLocks struct {
	mu   sync.Mutex
	sems map[port.LockKey]*semaphore.Weighted
}

func (l *itemLocks) get(key port.LockKey) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.sems[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.sems[key] = sem
	}
	return sem
}

func (m *MemoryLedger) ExecuteLocked(ctx context.Context, key port.LockKey, fn func(ctx context.Context, ledger port.BalanceLedger) error) error {
	sem := m.locks.get(key)

	lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	err := sem.Acquire(lockCtx, 1)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.ErrLockTimeout
	}
	defer sem.Release(1)

	tx := &memoryTx{ledger: m, key: key, staged: make(map[string]int)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	// a cancelled caller must not see its deltas survive
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.commit(tx.staged)
}

func (m *MemoryLedger) commit(staged map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, delta := range staged {
		row, ok := m.rows[id]
		if !ok {
			return fmt.Errorf("balance %s vanished: %w", id, domain.ErrConstraintViolation)
		}
		next := row.ReservedQty + delta
		if next < 0 || next > row.ActualQty {
			return fmt.Errorf("balance %s: reserved %d outside [0, %d]: %w", id, next, row.ActualQty, domain.ErrConstraintViolation)
		}
	}

	now := m.now()
	for id, delta := range staged {
		if delta == 0 {
			continue
		}
		row := m.rows[id]
		row.ReservedQty += delta
		row.UpdatedAt = now
	}
	return nil
}

func (m *MemoryLedger) ListBalances(ctx context.Context, tenantID, itemID, warehouseID string) ([]domain.BalanceRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filter(func(r *domain.BalanceRow) bool {
		return r.TenantID == tenantID && r.ItemID == itemID && (warehouseID == "" || r.WarehouseID == warehouseID)
	}), nil
}

func (m *MemoryLedger) ListTenantBalances(ctx context.Context, tenantID string) ([]domain.BalanceRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filter(func(r *domain.BalanceRow) bool { return r.TenantID == tenantID }), nil
}

// filter expects m.mu to be held.
func (m *MemoryLedger) filter(keep func(*domain.BalanceRow) bool) []domain.BalanceRow {
	out := make([]domain.BalanceRow, 0)
	for _, r := range m.rows {
		if keep(r) {
			out = append(out, *r)
		}
	}
	sortFIFO(out)
	return out
}

// Upsert records stock for an item/warehouse pair, as a receiving process
// would. A missing ID or CreatedAt is filled in.
func (m *MemoryLedger) Upsert(row domain.BalanceRow) (domain.BalanceRow, error) {
	if !row.Valid() {
		return row, fmt.Errorf("balance %s: %w", row.ID, domain.ErrConstraintViolation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now

	stored := row
	m.rows[row.ID] = &stored
	return row, nil
}

// SetActual changes the physical quantity, refusing to drop it below what is
// already reserved.
func (m *MemoryLedger) SetActual(balanceID string, actual int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[balanceID]
	if !ok {
		return domain.NewNotFound("balance", balanceID)
	}
	if actual < row.ReservedQty || actual < 0 {
		return fmt.Errorf("balance %s: actual %d below reserved %d: %w", balanceID, actual, row.ReservedQty, domain.ErrConstraintViolation)
	}
	row.ActualQty = actual
	row.UpdatedAt = m.now()
	return nil
}

type memoryTx struct {
	ledger *MemoryLedger
	key    port.LockKey
	staged map[string]int
}

func (t *memoryTx) ListBalances(ctx context.Context, tenantID, itemID, warehouseID string) ([]domain.BalanceRow, error) {
	rows, err := t.ledger.ListBalances(ctx, tenantID, itemID, warehouseID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].ReservedQty += t.staged[rows[i].ID]
	}
	return rows, nil
}

func (t *memoryTx) ApplyDelta(ctx context.Context, balanceID string, reservedDelta int) error {
	t.ledger.mu.RLock()
	row, ok := t.ledger.rows[balanceID]
	var current domain.BalanceRow
	if ok {
		current = *row
	}
	t.ledger.mu.RUnlock()

	if !ok {
		return domain.NewNotFound("balance", balanceID)
	}
	if current.TenantID != t.key.TenantID || current.ItemID != t.key.ItemID {
		return fmt.Errorf("balance %s is outside the locked item: %w", balanceID, domain.ErrConstraintViolation)
	}

	next := current.ReservedQty + t.staged[balanceID] + reservedDelta
	if next < 0 || next > current.ActualQty {
		return fmt.Errorf("balance %s: reserved %d outside [0, %d]: %w", balanceID, next, current.ActualQty, domain.ErrConstraintViolation)
	}
	t.staged[balanceID] += reservedDelta
	return nil
}

func sortFIFO(rows []domain.BalanceRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})
}
