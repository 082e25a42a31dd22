package domain

import "time"

type Item struct {
	ID       string
	TenantID string
	Code     string
	Name     string
	UOM      string
}

type Warehouse struct {
	ID       string
	TenantID string
	Code     string
	Name     string
}

// BalanceRow is the actual and reserved quantity of one item in one warehouse.
// CreatedAt orders rows of the same item for FIFO allocation.
type BalanceRow struct {
	ID          string
	TenantID    string
	ItemID      string
	WarehouseID string
	ActualQty   int
	ReservedQty int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Available may be negative only while a plan is being computed.
func (b BalanceRow) Available() int {
	return b.ActualQty - b.ReservedQty
}

// Valid reports whether the row satisfies 0 <= reserved <= actual.
func (b BalanceRow) Valid() bool {
	return b.ActualQty >= 0 && b.ReservedQty >= 0 && b.ReservedQty <= b.ActualQty
}
