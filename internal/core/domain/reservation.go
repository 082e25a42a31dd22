package domain

import "time"

// Allocation is the quantity taken from a single balance row.
type Allocation struct {
	BalanceID   string
	WarehouseID string
	Quantity    int
}

// ReservationOutcome is the ephemeral result of one reserve or release call.
type ReservationOutcome struct {
	ItemID      string
	Requested   int
	Allocations []Allocation
	Shortfall   int
}

func (o ReservationOutcome) Total() int {
	total := 0
	for _, a := range o.Allocations {
		total += a.Quantity
	}
	return total
}

type ReserveRequest struct {
	TenantID      string
	ItemCode      string
	Quantity      int
	WarehouseCode string
	Reference     string
	Notes         string
}

type ReleaseRequest struct {
	TenantID      string
	ItemCode      string
	Quantity      int
	WarehouseCode string
	Reference     string
}

type WarehouseQuantity struct {
	WarehouseCode string `json:"warehouseCode"`
	WarehouseName string `json:"warehouseName"`
	Quantity      int    `json:"quantity"`
}

type ReservationResult struct {
	ItemCode         string              `json:"itemCode"`
	ItemName         string              `json:"itemName"`
	QuantityReserved int                 `json:"quantityReserved"`
	Reservations     []WarehouseQuantity `json:"reservations"`
	Reference        string              `json:"reference,omitempty"`
}

type ReleaseResult struct {
	ItemCode         string              `json:"itemCode"`
	ItemName         string              `json:"itemName"`
	QuantityReleased int                 `json:"quantityReleased"`
	Shortfall        int                 `json:"shortfall"`
	Releases         []WarehouseQuantity `json:"releases"`
	Reference        string              `json:"reference,omitempty"`
}

// OrderLineRelease is the per-line result of an order-wide release. A failed
// line carries Error and does not affect the other lines.
type OrderLineRelease struct {
	ItemID string         `json:"itemId"`
	Result *ReleaseResult `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type OrderReleaseResult struct {
	OrderID   string             `json:"orderId"`
	Reference string             `json:"reference,omitempty"`
	Lines     []OrderLineRelease `json:"lines"`
}

type StockEventType string

const (
	StockEventReserved StockEventType = "stock.reserved"
	StockEventReleased StockEventType = "stock.released"
)

// StockEvent is emitted after a committed reserve or release for audit.
type StockEvent struct {
	ID         string              `json:"id"`
	Type       StockEventType      `json:"type"`
	TenantID   string              `json:"tenantId"`
	ItemID     string              `json:"itemId"`
	ItemCode   string              `json:"itemCode"`
	Reference  string              `json:"reference,omitempty"`
	Notes      string              `json:"notes,omitempty"`
	Requested  int                 `json:"requested"`
	Quantity   int                 `json:"quantity"`
	Shortfall  int                 `json:"shortfall,omitempty"`
	Lines      []WarehouseQuantity `json:"lines"`
	OccurredAt time.Time           `json:"occurredAt"`
}
