package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

type ItemModel struct {
	ID       string `gorm:"primaryKey;size:64"`
	TenantID string `gorm:"size:64;uniqueIndex:uq_items_tenant_code"`
	Code     string `gorm:"size:64;uniqueIndex:uq_items_tenant_code"`
	Name     string
	UOM      string `gorm:"column:uom"`
}

func (ItemModel) TableName() string { return "items" }

type WarehouseModel struct {
	ID       string `gorm:"primaryKey;size:64"`
	TenantID string `gorm:"size:64;uniqueIndex:uq_warehouses_tenant_code"`
	Code     string `gorm:"size:64;uniqueIndex:uq_warehouses_tenant_code"`
	Name     string
}

func (WarehouseModel) TableName() string { return "warehouses" }

type OrderModel struct {
	ID       string `gorm:"primaryKey;size:64"`
	TenantID string `gorm:"size:64;index"`
	Number   string
	Lines    []OrderLineModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string { return "orders" }

type OrderLineModel struct {
	ID       uint   `gorm:"primaryKey"`
	OrderID  string `gorm:"size:64;index"`
	ItemID   string `gorm:"size:64"`
	Quantity int
}

func (OrderLineModel) TableName() string { return "order_lines" }

// GormCatalog reads master data through gorm on the ledger's connection pool.
type GormCatalog struct {
	db *gorm.DB
}

func NewGormCatalog(sqlDB *sql.DB) (*GormCatalog, error) {
	db, err := gorm.Open(gormmysql.New(gormmysql.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return &GormCatalog{db: db}, nil
}

func (c *GormCatalog) FindItemByCode(ctx context.Context, tenantID, code string) (*domain.Item, error) {
	var m ItemModel
	if found, err := c.first(ctx, &m, "tenant_id = ? AND code = ?", tenantID, code); !found {
		return nil, err
	}
	return m.toDomain(), nil
}

func (c *GormCatalog) FindItemByID(ctx context.Context, tenantID, id string) (*domain.Item, error) {
	var m ItemModel
	if found, err := c.first(ctx, &m, "tenant_id = ? AND id = ?", tenantID, id); !found {
		return nil, err
	}
	return m.toDomain(), nil
}

func (c *GormCatalog) FindWarehouseByCode(ctx context.Context, tenantID, code string) (*domain.Warehouse, error) {
	var m WarehouseModel
	if found, err := c.first(ctx, &m, "tenant_id = ? AND code = ?", tenantID, code); !found {
		return nil, err
	}
	return m.toDomain(), nil
}

func (c *GormCatalog) FindWarehouseByID(ctx context.Context, tenantID, id string) (*domain.Warehouse, error) {
	var m WarehouseModel
	if found, err := c.first(ctx, &m, "tenant_id = ? AND id = ?", tenantID, id); !found {
		return nil, err
	}
	return m.toDomain(), nil
}

func (c *GormCatalog) FindOrder(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	var m OrderModel
	err := c.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("tenant_id = ? AND id = ?", tenantID, orderID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}

	order := &domain.Order{ID: m.ID, TenantID: m.TenantID, Number: m.Number}
	for _, l := range m.Lines {
		order.Lines = append(order.Lines, domain.OrderLine{ItemID: l.ItemID, Quantity: l.Quantity})
	}
	return order, nil
}

// first reports found=false with a nil error when no row matches.
func (c *GormCatalog) first(ctx context.Context, dst any, where string, args ...any) (bool, error) {
	err := c.db.WithContext(ctx).Where(where, args...).First(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("catalog lookup: %w", err)
	}
	return true, nil
}

func (m ItemModel) toDomain() *domain.Item {
	return &domain.Item{ID: m.ID, TenantID: m.TenantID, Code: m.Code, Name: m.Name, UOM: m.UOM}
}

func (m WarehouseModel) toDomain() *domain.Warehouse {
	return &domain.Warehouse{ID: m.ID, TenantID: m.TenantID, Code: m.Code, Name: m.Name}
}
