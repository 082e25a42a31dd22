package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/port"
)

const errLockWaitTimeout = 1205

//go:embed schema.sql
var schemaSQL string

const balanceColumns = `id, tenant_id, item_id, warehouse_id, actual_qty, reserved_qty, created_at, updated_at`

// MySQLAdapter is the ledger on InnoDB. The per-item section is the row lock
// taken on the item by SELECT ... FOR UPDATE, so it ends with the transaction.
type MySQLAdapter struct {
	db              *sql.DB
	lockWaitSeconds int
}

func NewMySQLAdapter(db *sql.DB, lockTimeout time.Duration) *MySQLAdapter {
	// innodb_lock_wait_timeout has whole-second granularity, minimum 1
	secs := int(math.Ceil(lockTimeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return &MySQLAdapter{db: db, lockWaitSeconds: secs}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) ExecuteLocked(ctx context.Context, key port.LockKey, fn func(ctx context.Context, ledger port.BalanceLedger) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", m.lockWaitSeconds)); err != nil {
		return fmt.Errorf("set lock wait timeout: %w", err)
	}

	var itemID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM items WHERE tenant_id = ? AND id = ? FOR UPDATE`,
		key.TenantID, key.ItemID,
	).Scan(&itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFound("item", key.ItemID)
	}
	if err != nil {
		return fmt.Errorf("lock item: %w", mapLockError(err))
	}

	if err := fn(ctx, &mysqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListBalances(ctx context.Context, tenantID, itemID, warehouseID string) ([]domain.BalanceRow, error) {
	query, args := balanceQuery(tenantID, itemID, warehouseID)
	return queryBalances(ctx, m.db, query, args...)
}

func (m *MySQLAdapter) ListTenantBalances(ctx context.Context, tenantID string) ([]domain.BalanceRow, error) {
	return queryBalances(ctx, m.db, `
		SELECT `+balanceColumns+`
		FROM stock_balances WHERE tenant_id = ?
		ORDER BY item_id, created_at, id`, tenantID)
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) ListBalances(ctx context.Context, tenantID, itemID, warehouseID string) ([]domain.BalanceRow, error) {
	query, args := balanceQuery(tenantID, itemID, warehouseID)
	rows, err := queryBalances(ctx, t.tx, query+" FOR UPDATE", args...)
	if err != nil {
		return nil, mapLockError(err)
	}
	return rows, nil
}

func (t *mysqlTx) ApplyDelta(ctx context.Context, balanceID string, reservedDelta int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE stock_balances
		SET reserved_qty = reserved_qty + ?, updated_at = ?
		WHERE id = ? AND reserved_qty + ? >= 0 AND reserved_qty + ? <= actual_qty`,
		reservedDelta, time.Now().UTC(), balanceID, reservedDelta, reservedDelta,
	)
	if err != nil {
		return fmt.Errorf("apply delta: %w", mapLockError(err))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("balance %s delta %d: %w", balanceID, reservedDelta, domain.ErrConstraintViolation)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func balanceQuery(tenantID, itemID, warehouseID string) (string, []any) {
	query := `SELECT ` + balanceColumns + ` FROM stock_balances WHERE tenant_id = ? AND item_id = ?`
	args := []any{tenantID, itemID}
	if warehouseID != "" {
		query += ` AND warehouse_id = ?`
		args = append(args, warehouseID)
	}
	return query + ` ORDER BY created_at ASC, id ASC`, args
}

func queryBalances(ctx context.Context, q querier, query string, args ...any) ([]domain.BalanceRow, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	out := make([]domain.BalanceRow, 0)
	for rows.Next() {
		var b domain.BalanceRow
		if err := rows.Scan(&b.ID, &b.TenantID, &b.ItemID, &b.WarehouseID,
			&b.ActualQty, &b.ReservedQty, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return out, nil
}

func mapLockError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errLockWaitTimeout {
		return fmt.Errorf("%w: %s", domain.ErrLockTimeout, myErr.Message)
	}
	return err
}
