package port

import (
	"context"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

// LockKey scopes the exclusive section to one item of one tenant.
type LockKey struct {
	TenantID string
	ItemID   string
}

// BalanceLedger is the ledger as seen from inside a locked transaction.
type BalanceLedger interface {
	// ListBalances returns rows oldest first; an empty warehouseID means all warehouses
	ListBalances(ctx context.Context, tenantID, itemID, warehouseID string) ([]domain.BalanceRow, error)

	// ApplyDelta adds reservedDelta to reserved quantity, failing with
	// domain.ErrConstraintViolation when 0 <= reserved <= actual would break
	ApplyDelta(ctx context.Context, balanceID string, reservedDelta int) error
}

type LedgerRepository interface {
	// ExecuteLocked runs fn in a transaction that holds the exclusive section
	// for key. The transaction commits when fn returns nil and rolls back
	// otherwise; the section is released when the transaction ends.
	ExecuteLocked(ctx context.Context, key LockKey, fn func(ctx context.Context, ledger BalanceLedger) error) error
}

// BalanceReader serves committed ledger state without locking.
type BalanceReader interface {
	ListBalances(ctx context.Context, tenantID, itemID, warehouseID string) ([]domain.BalanceRow, error)
	ListTenantBalances(ctx context.Context, tenantID string) ([]domain.BalanceRow, error)
}

// CatalogRepository resolves master data. Lookups return nil, nil when the
// record does not exist for the tenant.
type CatalogRepository interface {
	FindItemByCode(ctx context.Context, tenantID, code string) (*domain.Item, error)
	FindItemByID(ctx context.Context, tenantID, id string) (*domain.Item, error)
	FindWarehouseByCode(ctx context.Context, tenantID, code string) (*domain.Warehouse, error)
	FindWarehouseByID(ctx context.Context, tenantID, id string) (*domain.Warehouse, error)
	FindOrder(ctx context.Context, tenantID, orderID string) (*domain.Order, error)
}
