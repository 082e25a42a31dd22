package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/core/planner"
	"github.com/rl1809/stock-reservation/internal/pkg/metrics"
	"github.com/rl1809/stock-reservation/internal/port"
)

// Reserve holds req.Quantity units of the item, oldest balance rows first.
// It is all-or-nothing: when eligible rows cannot cover the quantity nothing
// is applied and an *domain.InsufficientStockError is returned.
func (s *StockService) Reserve(ctx context.Context, req domain.ReserveRequest) (*domain.ReservationResult, error) {
	ctx, span := s.tracer.Start(ctx, "StockService.Reserve", trace.WithAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("item.code", req.ItemCode),
		attribute.String("warehouse.code", req.WarehouseCode),
		attribute.Int("quantity", req.Quantity),
	))
	defer span.End()

	result, err := s.reserve(ctx, req)
	s.finish(span, metrics.OpReserve, err)
	return result, err
}

func (s *StockService) reserve(ctx context.Context, req domain.ReserveRequest) (*domain.ReservationResult, error) {
	t, err := s.resolve(ctx, req.TenantID, req.ItemCode, req.WarehouseCode, req.Quantity)
	if err != nil {
		return nil, err
	}

	var outcome domain.ReservationOutcome
	start := time.Now()
	err = s.ledger.ExecuteLocked(ctx, t.lockKey(), func(ctx context.Context, ledger port.BalanceLedger) error {
		s.metrics.LockWait(metrics.OpReserve, time.Since(start))

		rows, err := ledger.ListBalances(ctx, req.TenantID, t.item.ID, t.warehouseID())
		if err != nil {
			return err
		}

		allocations, remaining := planner.Plan(req.Quantity, rows, planner.SourceAvailable)
		if remaining > 0 {
			return &domain.InsufficientStockError{
				ItemCode:  t.item.Code,
				Requested: req.Quantity,
				Available: req.Quantity - remaining,
			}
		}

		for _, a := range allocations {
			if err := ledger.ApplyDelta(ctx, a.BalanceID, a.Quantity); err != nil {
				return err
			}
		}
		outcome = domain.ReservationOutcome{ItemID: t.item.ID, Requested: req.Quantity, Allocations: allocations}
		return nil
	})
	if err != nil {
		s.log.Info("reservation refused",
			zap.String("tenant_id", req.TenantID),
			zap.String("item_code", req.ItemCode),
			zap.Int("quantity", req.Quantity),
			zap.String("reference", req.Reference),
			zap.Error(err))
		return nil, err
	}

	lines := s.describe(ctx, req.TenantID, outcome.Allocations)
	reserved := outcome.Total()
	s.metrics.Units(metrics.OpReserve, reserved)
	s.log.Info("stock reserved",
		zap.String("tenant_id", req.TenantID),
		zap.String("item_code", t.item.Code),
		zap.Int("quantity", reserved),
		zap.Int("rows", len(outcome.Allocations)),
		zap.String("reference", req.Reference))

	s.enqueue(domain.StockEvent{
		Type:      domain.StockEventReserved,
		TenantID:  req.TenantID,
		ItemID:    t.item.ID,
		ItemCode:  t.item.Code,
		Reference: req.Reference,
		Notes:     req.Notes,
		Requested: req.Quantity,
		Quantity:  reserved,
		Lines:     lines,
	})

	return &domain.ReservationResult{
		ItemCode:         t.item.Code,
		ItemName:         t.item.Name,
		QuantityReserved: reserved,
		Reservations:     lines,
		Reference:        req.Reference,
	}, nil
}
