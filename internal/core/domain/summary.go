package domain

type WarehouseBalance struct {
	WarehouseCode string `json:"warehouseCode"`
	WarehouseName string `json:"warehouseName"`
	ActualQty     int    `json:"actualQty"`
	ReservedQty   int    `json:"reservedQty"`
	AvailableQty  int    `json:"availableQty"`
}

type ItemSummary struct {
	ItemCode          string             `json:"itemCode"`
	ItemName          string             `json:"itemName"`
	UOM               string             `json:"uom"`
	TotalActualQty    int                `json:"totalActualQty"`
	TotalReservedQty  int                `json:"totalReservedQty"`
	TotalAvailableQty int                `json:"totalAvailableQty"`
	Warehouses        []WarehouseBalance `json:"warehouses"`
}

type OrderLineReservation struct {
	ItemCode    string             `json:"itemCode"`
	ItemName    string             `json:"itemName"`
	OrderedQty  int                `json:"orderedQty"`
	ReservedQty int                `json:"reservedQty"`
	Status      LineStatus         `json:"status"`
	Warehouses  []WarehouseBalance `json:"warehouses"`
}

type OrderReservations struct {
	OrderID     string                 `json:"orderId"`
	OrderNumber string                 `json:"orderNumber"`
	Lines       []OrderLineReservation `json:"lines"`
}
