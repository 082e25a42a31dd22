package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rl1809/stock-reservation/internal/adapter/storage"
	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/pkg/metrics"
	"github.com/rl1809/stock-reservation/internal/port"
)

const (
	tenant   = "tenant-1"
	widgetID = "item-widget"
	gadgetID = "item-gadget"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	ledger  *storage.MemoryLedger
	catalog *storage.MemoryCatalog
	metrics *metrics.Metrics
	logs    *observer.ObservedLogs
	log     *zap.Logger
	svc     *StockService
	summary *SummaryService
}

// newFixture seeds WIDGET with WH1 actual=10 (older) and WH2 actual=5, and
// GADGET with WH1 actual=3.
func newFixture(t *testing.T, lockTimeout time.Duration) *fixture {
	t.Helper()

	ledger := storage.NewMemoryLedger(lockTimeout)
	catalog := storage.NewMemoryCatalog()
	catalog.AddItem(domain.Item{ID: widgetID, TenantID: tenant, Code: "WIDGET", Name: "Widget", UOM: "pcs"})
	catalog.AddItem(domain.Item{ID: gadgetID, TenantID: tenant, Code: "GADGET", Name: "Gadget", UOM: "pcs"})
	catalog.AddWarehouse(domain.Warehouse{ID: "wh-1", TenantID: tenant, Code: "WH1", Name: "North"})
	catalog.AddWarehouse(domain.Warehouse{ID: "wh-2", TenantID: tenant, Code: "WH2", Name: "South"})

	seed := []domain.BalanceRow{
		{ID: "bal-widget-wh1", TenantID: tenant, ItemID: widgetID, WarehouseID: "wh-1", ActualQty: 10, CreatedAt: t0},
		{ID: "bal-widget-wh2", TenantID: tenant, ItemID: widgetID, WarehouseID: "wh-2", ActualQty: 5, CreatedAt: t0.Add(time.Hour)},
		{ID: "bal-gadget-wh1", TenantID: tenant, ItemID: gadgetID, WarehouseID: "wh-1", ActualQty: 3, CreatedAt: t0},
	}
	for _, row := range seed {
		_, err := ledger.Upsert(row)
		require.NoError(t, err)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	m := metrics.New(prometheus.NewRegistry())

	svc := NewStockService(ledger, catalog, log, m, 100)
	t.Cleanup(svc.Close)

	return &fixture{
		ledger:  ledger,
		catalog: catalog,
		metrics: m,
		logs:    logs,
		log:     log,
		svc:     svc,
		summary: NewSummaryService(ledger, catalog),
	}
}

func (f *fixture) snapshot(t *testing.T) []domain.BalanceRow {
	t.Helper()
	rows, err := f.ledger.ListTenantBalances(context.Background(), tenant)
	require.NoError(t, err)
	return rows
}

func (f *fixture) reserved(t *testing.T, balanceID string) int {
	t.Helper()
	for _, r := range f.snapshot(t) {
		if r.ID == balanceID {
			return r.ReservedQty
		}
	}
	t.Fatalf("balance %s not found", balanceID)
	return 0
}

func (f *fixture) drainEvents() []domain.StockEvent {
	var events []domain.StockEvent
	for {
		select {
		case e := <-f.svc.GetEventQueue():
			events = append(events, e)
		default:
			return events
		}
	}
}

func reserveReq(qty int, warehouse string) domain.ReserveRequest {
	return domain.ReserveRequest{TenantID: tenant, ItemCode: "WIDGET", Quantity: qty, WarehouseCode: warehouse, Reference: "SO-1"}
}

func releaseReq(qty int, warehouse string) domain.ReleaseRequest {
	return domain.ReleaseRequest{TenantID: tenant, ItemCode: "WIDGET", Quantity: qty, WarehouseCode: warehouse, Reference: "SO-1"}
}

// hookLedger lets a test intercept the transaction-bound ledger.
type hookLedger struct {
	port.LedgerRepository
	hook func(ctx context.Context, ledger port.BalanceLedger) port.BalanceLedger
}

func (h *hookLedger) ExecuteLocked(ctx context.Context, key port.LockKey, fn func(ctx context.Context, ledger port.BalanceLedger) error) error {
	return h.LedgerRepository.ExecuteLocked(ctx, key, func(ctx context.Context, ledger port.BalanceLedger) error {
		return fn(ctx, h.hook(ctx, ledger))
	})
}

// failingLedger lets the first `allow` deltas through and then violates.
type failingLedger struct {
	port.BalanceLedger
	allow int
	calls int
}

func (f *failingLedger) ApplyDelta(ctx context.Context, balanceID string, delta int) error {
	f.calls++
	if f.calls > f.allow {
		return fmt.Errorf("balance %s: %w", balanceID, domain.ErrConstraintViolation)
	}
	return f.BalanceLedger.ApplyDelta(ctx, balanceID, delta)
}
