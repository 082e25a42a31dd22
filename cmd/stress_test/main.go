package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/adapter/storage"
	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/core/service"
	"github.com/rl1809/stock-reservation/internal/pkg/metrics"
	"github.com/rl1809/stock-reservation/internal/port"
)

const (
	tenantID  = "stress"
	itemID    = "flash-sale-item"
	itemCode  = "FLASH"
	queueSize = 1000
)

func main() {
	totalRequests := flag.Int("requests", 50, "concurrent reserve calls")
	stockWH1 := flag.Int("wh1", 12, "stock in the older warehouse row")
	stockWH2 := flag.Int("wh2", 8, "stock in the newer warehouse row")
	redisAddr := flag.String("redis", "", "redis address; when set every call also takes a lease")
	flag.Parse()

	ctx := context.Background()
	initialStock := *stockWH1 + *stockWH2

	ledger := storage.NewMemoryLedger(10 * time.Second)
	catalog := storage.NewMemoryCatalog()
	catalog.AddItem(domain.Item{ID: itemID, TenantID: tenantID, Code: itemCode, Name: "Flash sale item"})
	catalog.AddWarehouse(domain.Warehouse{ID: "wh1", TenantID: tenantID, Code: "WH1"})
	catalog.AddWarehouse(domain.Warehouse{ID: "wh2", TenantID: tenantID, Code: "WH2"})

	now := time.Now()
	for _, row := range []domain.BalanceRow{
		{TenantID: tenantID, ItemID: itemID, WarehouseID: "wh1", ActualQty: *stockWH1, CreatedAt: now.Add(-time.Minute)},
		{TenantID: tenantID, ItemID: itemID, WarehouseID: "wh2", ActualQty: *stockWH2, CreatedAt: now},
	} {
		if _, err := ledger.Upsert(row); err != nil {
			fmt.Printf("failed to seed stock: %v\n", err)
			os.Exit(1)
		}
	}

	var locked port.LedgerRepository = ledger
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			fmt.Printf("failed to connect redis: %v\n", err)
			os.Exit(1)
		}
		defer rdb.Close()
		locked = storage.NewLeasedLedger(ledger, storage.NewRedisAdapter(rdb), 30*time.Second, 10*time.Second, zap.NewNop())
	}

	stockService := service.NewStockService(locked, catalog, zap.NewNop(), metrics.New(nil), queueSize)
	defer stockService.Close()

	// Drain the event queue in background
	go func() {
		for range stockService.GetEventQueue() {
		}
	}()

	var successCount atomic.Int32
	var refusedCount atomic.Int32
	var errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := stockService.Reserve(ctx, domain.ReserveRequest{
				TenantID:  tenantID,
				ItemCode:  itemCode,
				Quantity:  1,
				Reference: fmt.Sprintf("order-%d", n),
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				refusedCount.Add(1)
			default:
				errorCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := int(successCount.Load())
	refused := int(refusedCount.Load())

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Reserved:         %d\n", success)
	fmt.Printf("Refused:          %d\n", refused)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	expected := min(initialStock, *totalRequests)
	if success == expected && refused == *totalRequests-expected {
		fmt.Printf("PASS: exactly %d reservations succeeded\n", expected)
	} else {
		fmt.Printf("FAIL: expected %d reserved/%d refused, got %d/%d\n",
			expected, *totalRequests-expected, success, refused)
	}

	rows, _ := ledger.ListBalances(ctx, tenantID, itemID, "")
	reserved := 0
	for _, r := range rows {
		reserved += r.ReservedQty
		fmt.Printf("  %s: actual=%d reserved=%d\n", r.WarehouseID, r.ActualQty, r.ReservedQty)
		if !r.Valid() {
			fmt.Printf("FAIL: row %s oversold\n", r.ID)
		}
	}
	if reserved == success {
		fmt.Println("PASS: ledger matches successful reservations")
	} else {
		fmt.Printf("FAIL: ledger holds %d, callers saw %d\n", reserved, success)
	}
}
