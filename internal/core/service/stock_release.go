package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/core/planner"
	"github.com/rl1809/stock-reservation/internal/pkg/metrics"
	"github.com/rl1809/stock-reservation/internal/port"
)

// Release gives back up to req.Quantity reserved units, oldest rows first.
// It is best-effort: a request larger than what is reserved releases
// everything it can and reports the difference as Shortfall.
func (s *StockService) Release(ctx context.Context, req domain.ReleaseRequest) (*domain.ReleaseResult, error) {
	ctx, span := s.tracer.Start(ctx, "StockService.Release", trace.WithAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("item.code", req.ItemCode),
		attribute.String("warehouse.code", req.WarehouseCode),
		attribute.Int("quantity", req.Quantity),
	))
	defer span.End()

	result, err := s.release(ctx, req)
	s.finish(span, metrics.OpRelease, err)
	if result != nil && result.Shortfall > 0 {
		span.SetAttributes(attribute.Int("shortfall", result.Shortfall))
	}
	return result, err
}

func (s *StockService) release(ctx context.Context, req domain.ReleaseRequest) (*domain.ReleaseResult, error) {
	t, err := s.resolve(ctx, req.TenantID, req.ItemCode, req.WarehouseCode, req.Quantity)
	if err != nil {
		return nil, err
	}

	var outcome domain.ReservationOutcome
	start := time.Now()
	err = s.ledger.ExecuteLocked(ctx, t.lockKey(), func(ctx context.Context, ledger port.BalanceLedger) error {
		s.metrics.LockWait(metrics.OpRelease, time.Since(start))

		rows, err := ledger.ListBalances(ctx, req.TenantID, t.item.ID, t.warehouseID())
		if err != nil {
			return err
		}

		allocations, remaining := planner.Plan(req.Quantity, rows, planner.SourceReserved)
		for _, a := range allocations {
			if err := ledger.ApplyDelta(ctx, a.BalanceID, -a.Quantity); err != nil {
				return err
			}
		}
		outcome = domain.ReservationOutcome{
			ItemID:      t.item.ID,
			Requested:   req.Quantity,
			Allocations: allocations,
			Shortfall:   remaining,
		}
		return nil
	})
	if err != nil {
		s.log.Info("release failed",
			zap.String("tenant_id", req.TenantID),
			zap.String("item_code", req.ItemCode),
			zap.Int("quantity", req.Quantity),
			zap.String("reference", req.Reference),
			zap.Error(err))
		return nil, err
	}

	lines := s.describe(ctx, req.TenantID, outcome.Allocations)
	released := outcome.Total()
	s.metrics.Units(metrics.OpRelease, released)

	fields := []zap.Field{
		zap.String("tenant_id", req.TenantID),
		zap.String("item_code", t.item.Code),
		zap.Int("requested", req.Quantity),
		zap.Int("released", released),
		zap.String("reference", req.Reference),
	}
	if outcome.Shortfall > 0 {
		s.metrics.Shortfall(outcome.Shortfall)
		s.log.Warn("release shortfall", append(fields, zap.Int("shortfall", outcome.Shortfall))...)
	} else {
		s.log.Info("stock released", fields...)
	}

	s.enqueue(domain.StockEvent{
		Type:      domain.StockEventReleased,
		TenantID:  req.TenantID,
		ItemID:    t.item.ID,
		ItemCode:  t.item.Code,
		Reference: req.Reference,
		Requested: req.Quantity,
		Quantity:  released,
		Shortfall: outcome.Shortfall,
		Lines:     lines,
	})

	return &domain.ReleaseResult{
		ItemCode:         t.item.Code,
		ItemName:         t.item.Name,
		QuantityReleased: released,
		Shortfall:        outcome.Shortfall,
		Releases:         lines,
		Reference:        req.Reference,
	}, nil
}

// ReleaseOrder releases every line of an order. Lines are independent: each
// takes its own item section and a failing line is reported in its result
// without stopping the others. Only an unresolvable order fails the call.
func (s *StockService) ReleaseOrder(ctx context.Context, tenantID, orderID, reference string) (*domain.OrderReleaseResult, error) {
	ctx, span := s.tracer.Start(ctx, "StockService.ReleaseOrder", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.id", orderID),
	))
	defer span.End()

	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	order, err := s.catalog.FindOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.NewNotFound("order", orderID)
	}
	if reference == "" {
		reference = order.Number
	}

	lines := make([]domain.OrderLineRelease, len(order.Lines))
	var g errgroup.Group
	g.SetLimit(s.orderConcurrency)
	for i, line := range order.Lines {
		g.Go(func() error {
			lines[i] = s.releaseLine(ctx, tenantID, line, reference)
			return nil
		})
	}
	_ = g.Wait()

	return &domain.OrderReleaseResult{OrderID: order.ID, Reference: reference, Lines: lines}, nil
}

func (s *StockService) releaseLine(ctx context.Context, tenantID string, line domain.OrderLine, reference string) domain.OrderLineRelease {
	out := domain.OrderLineRelease{ItemID: line.ItemID}

	item, err := s.catalog.FindItemByID(ctx, tenantID, line.ItemID)
	if err == nil && item == nil {
		err = domain.NewNotFound("item", line.ItemID)
	}
	if err == nil {
		out.Result, err = s.Release(ctx, domain.ReleaseRequest{
			TenantID:  tenantID,
			ItemCode:  item.Code,
			Quantity:  line.Quantity,
			Reference: reference,
		})
	}
	if err != nil {
		s.log.Warn("order line release failed",
			zap.String("tenant_id", tenantID),
			zap.String("item_id", line.ItemID),
			zap.String("reference", reference),
			zap.Error(err))
		out.Error = err.Error()
	}
	return out
}
