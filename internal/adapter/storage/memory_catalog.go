package storage

import (
	"context"
	"sync"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

type tenantKey struct {
	tenantID string
	key      string
}

// MemoryCatalog holds master data for the memory driver and tests.
type MemoryCatalog struct {
	mu               sync.RWMutex
	itemsByID        map[tenantKey]domain.Item
	itemsByCode      map[tenantKey]domain.Item
	warehousesByID   map[tenantKey]domain.Warehouse
	warehousesByCode map[tenantKey]domain.Warehouse
	orders           map[tenantKey]domain.Order
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		itemsByID:        make(map[tenantKey]domain.Item),
		itemsByCode:      make(map[tenantKey]domain.Item),
		warehousesByID:   make(map[tenantKey]domain.Warehouse),
		warehousesByCode: make(map[tenantKey]domain.Warehouse),
		orders:           make(map[tenantKey]domain.Order),
	}
}

func (c *MemoryCatalog) AddItem(item domain.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.itemsByID[tenantKey{item.TenantID, item.ID}] = item
	c.itemsByCode[tenantKey{item.TenantID, item.Code}] = item
}

func (c *MemoryCatalog) AddWarehouse(wh domain.Warehouse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warehousesByID[tenantKey{wh.TenantID, wh.ID}] = wh
	c.warehousesByCode[tenantKey{wh.TenantID, wh.Code}] = wh
}

func (c *MemoryCatalog) AddOrder(order domain.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := append([]domain.OrderLine(nil), order.Lines...)
	order.Lines = lines
	c.orders[tenantKey{order.TenantID, order.ID}] = order
}

func (c *MemoryCatalog) FindItemByCode(ctx context.Context, tenantID, code string) (*domain.Item, error) {
	return lookup(&c.mu, c.itemsByCode, tenantKey{tenantID, code}), nil
}

func (c *MemoryCatalog) FindItemByID(ctx context.Context, tenantID, id string) (*domain.Item, error) {
	return lookup(&c.mu, c.itemsByID, tenantKey{tenantID, id}), nil
}

func (c *MemoryCatalog) FindWarehouseByCode(ctx context.Context, tenantID, code string) (*domain.Warehouse, error) {
	return lookup(&c.mu, c.warehousesByCode, tenantKey{tenantID, code}), nil
}

func (c *MemoryCatalog) FindWarehouseByID(ctx context.Context, tenantID, id string) (*domain.Warehouse, error) {
	return lookup(&c.mu, c.warehousesByID, tenantKey{tenantID, id}), nil
}

func (c *MemoryCatalog) FindOrder(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	order := lookup(&c.mu, c.orders, tenantKey{tenantID, orderID})
	if order != nil {
		order.Lines = append([]domain.OrderLine(nil), order.Lines...)
	}
	return order, nil
}

func lookup[T any](mu *sync.RWMutex, m map[tenantKey]T, key tenantKey) *T {
	mu.RLock()
	defer mu.RUnlock()

	v, ok := m[key]
	if !ok {
		return nil
	}
	return &v
}
