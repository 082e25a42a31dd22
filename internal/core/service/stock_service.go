package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/pkg/metrics"
	"github.com/rl1809/stock-reservation/internal/port"
)

const tracerName = "github.com/rl1809/stock-reservation/internal/core/service"

const defaultOrderConcurrency = 4

// StockService coordinates reservations and releases against the ledger.
// Committed operations are queued as StockEvents for the publisher workers.
type StockService struct {
	ledger  port.LedgerRepository
	catalog port.CatalogRepository
	log     *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	orderConcurrency int

	closeMu    sync.RWMutex
	closed     bool
	eventQueue chan domain.StockEvent
}

type Option func(*StockService)

// WithOrderConcurrency bounds how many lines of one order are released at once.
func WithOrderConcurrency(n int) Option {
	return func(s *StockService) {
		if n > 0 {
			s.orderConcurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *StockService) { s.now = now }
}

func NewStockService(ledger port.LedgerRepository, catalog port.CatalogRepository, log *zap.Logger, m *metrics.Metrics, queueSize int, opts ...Option) *StockService {
	s := &StockService{
		ledger:           ledger,
		catalog:          catalog,
		log:              log,
		metrics:          m,
		tracer:           otel.Tracer(tracerName),
		now:              time.Now,
		orderConcurrency: defaultOrderConcurrency,
		eventQueue:       make(chan domain.StockEvent, queueSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StockService) GetEventQueue() <-chan domain.StockEvent {
	return s.eventQueue
}

// Close stops event delivery. Calls after Close still mutate the ledger but
// their events are dropped.
func (s *StockService) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.eventQueue)
	}
}

// enqueue never blocks: the ledger is already committed, so a full queue
// loses the audit event rather than the caller's response.
func (s *StockService) enqueue(event domain.StockEvent) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return
	}

	event.ID = uuid.NewString()
	event.OccurredAt = s.now().UTC()
	select {
	case s.eventQueue <- event:
	default:
		s.log.Error("event queue full, dropping stock event",
			zap.String("type", string(event.Type)),
			zap.String("tenant_id", event.TenantID),
			zap.String("item_code", event.ItemCode),
			zap.String("reference", event.Reference))
	}
}

type target struct {
	item      *domain.Item
	warehouse *domain.Warehouse
}

func (t target) lockKey() port.LockKey {
	return port.LockKey{TenantID: t.item.TenantID, ItemID: t.item.ID}
}

func (t target) warehouseID() string {
	if t.warehouse == nil {
		return ""
	}
	return t.warehouse.ID
}

func (s *StockService) resolve(ctx context.Context, tenantID, itemCode, warehouseCode string, quantity int) (target, error) {
	if tenantID == "" {
		return target{}, domain.ErrMissingTenant
	}
	if quantity <= 0 {
		return target{}, fmt.Errorf("%w: got %d", domain.ErrInvalidQuantity, quantity)
	}

	item, err := s.catalog.FindItemByCode(ctx, tenantID, itemCode)
	if err != nil {
		return target{}, fmt.Errorf("find item: %w", err)
	}
	if item == nil {
		return target{}, domain.NewNotFound("item", itemCode)
	}

	t := target{item: item}
	if warehouseCode != "" {
		wh, err := s.catalog.FindWarehouseByCode(ctx, tenantID, warehouseCode)
		if err != nil {
			return target{}, fmt.Errorf("find warehouse: %w", err)
		}
		if wh == nil {
			return target{}, domain.NewNotFound("warehouse", warehouseCode)
		}
		t.warehouse = wh
	}
	return t, nil
}

// describe turns allocations into caller-facing warehouse lines. It runs after
// commit, so a failed lookup degrades to the warehouse id instead of failing.
func (s *StockService) describe(ctx context.Context, tenantID string, allocations []domain.Allocation) []domain.WarehouseQuantity {
	names := newWarehouseNames(s.catalog, tenantID)
	out := make([]domain.WarehouseQuantity, 0, len(allocations))
	for _, a := range allocations {
		code, name, err := names.lookup(ctx, a.WarehouseID)
		if err != nil {
			s.log.Warn("warehouse lookup failed after commit", zap.String("warehouse_id", a.WarehouseID), zap.Error(err))
		}
		out = append(out, domain.WarehouseQuantity{WarehouseCode: code, WarehouseName: name, Quantity: a.Quantity})
	}
	return out
}

// finish records the outcome of one operation on the span and metrics.
func (s *StockService) finish(span trace.Span, op string, err error) {
	result := resultLabel(err)
	s.metrics.Operation(op, result)
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, result)
	if errors.Is(err, domain.ErrConstraintViolation) {
		s.log.Error("ledger constraint violated", zap.String("operation", op), zap.Error(err))
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrMissingTenant):
		return "invalid"
	case errors.Is(err, domain.ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, domain.ErrConstraintViolation):
		return "constraint_violation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

// warehouseNames memoizes warehouse lookups for the duration of one call.
type warehouseNames struct {
	catalog  port.CatalogRepository
	tenantID string
	cache    map[string]*domain.Warehouse
}

func newWarehouseNames(catalog port.CatalogRepository, tenantID string) *warehouseNames {
	return &warehouseNames{catalog: catalog, tenantID: tenantID, cache: make(map[string]*domain.Warehouse)}
}

func (w *warehouseNames) lookup(ctx context.Context, id string) (code, name string, err error) {
	wh, ok := w.cache[id]
	if !ok {
		wh, err = w.catalog.FindWarehouseByID(ctx, w.tenantID, id)
		if err != nil {
			return id, "", err
		}
		w.cache[id] = wh
	}
	if wh == nil {
		return id, "", nil
	}
	return wh.Code, wh.Name, nil
}
