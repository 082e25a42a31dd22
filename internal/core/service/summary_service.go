package service

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/port"
)

// SummaryService aggregates committed ledger state. It takes no locks, so a
// reservation in flight may or may not be visible.
type SummaryService struct {
	reader  port.BalanceReader
	catalog port.CatalogRepository
	tracer  trace.Tracer
}

func NewSummaryService(reader port.BalanceReader, catalog port.CatalogRepository) *SummaryService {
	return &SummaryService{reader: reader, catalog: catalog, tracer: otel.Tracer(tracerName)}
}

// Summary returns one entry for itemCode, or one per stocked item of the
// tenant ordered by item code when itemCode is empty.
func (s *SummaryService) Summary(ctx context.Context, tenantID, itemCode string) ([]domain.ItemSummary, error) {
	ctx, span := s.tracer.Start(ctx, "SummaryService.Summary", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("item.code", itemCode),
	))
	defer span.End()

	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	names := newWarehouseNames(s.catalog, tenantID)

	if itemCode != "" {
		item, err := s.catalog.FindItemByCode(ctx, tenantID, itemCode)
		if err != nil {
			return nil, fmt.Errorf("find item: %w", err)
		}
		if item == nil {
			return nil, domain.NewNotFound("item", itemCode)
		}
		rows, err := s.reader.ListBalances(ctx, tenantID, item.ID, "")
		if err != nil {
			return nil, err
		}
		summary, err := summarize(ctx, *item, rows, names)
		if err != nil {
			return nil, err
		}
		return []domain.ItemSummary{summary}, nil
	}

	rows, err := s.reader.ListTenantBalances(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	byItem := make(map[string][]domain.BalanceRow)
	var order []string
	for _, r := range rows {
		if _, seen := byItem[r.ItemID]; !seen {
			order = append(order, r.ItemID)
		}
		byItem[r.ItemID] = append(byItem[r.ItemID], r)
	}

	out := make([]domain.ItemSummary, 0, len(order))
	for _, itemID := range order {
		item, err := s.catalog.FindItemByID(ctx, tenantID, itemID)
		if err != nil {
			return nil, fmt.Errorf("find item: %w", err)
		}
		if item == nil {
			// balance for an item the catalog no longer knows
			item = &domain.Item{ID: itemID, TenantID: tenantID, Code: itemID}
		}
		summary, err := summarize(ctx, *item, byItem[itemID], names)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ItemCode < out[j].ItemCode })
	return out, nil
}

// OrderReservations shows, for every order line, the reserved balance rows of
// the line's item and whether they cover the ordered quantity.
func (s *SummaryService) OrderReservations(ctx context.Context, tenantID, orderID string) (*domain.OrderReservations, error) {
	ctx, span := s.tracer.Start(ctx, "SummaryService.OrderReservations", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.id", orderID),
	))
	defer span.End()

	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	order, err := s.catalog.FindOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if order == nil {
		return nil, domain.NewNotFound("order", orderID)
	}

	names := newWarehouseNames(s.catalog, tenantID)
	out := &domain.OrderReservations{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		Lines:       make([]domain.OrderLineReservation, 0, len(order.Lines)),
	}
	for _, line := range order.Lines {
		item, err := s.catalog.FindItemByID(ctx, tenantID, line.ItemID)
		if err != nil {
			return nil, fmt.Errorf("find item: %w", err)
		}
		if item == nil {
			item = &domain.Item{ID: line.ItemID, Code: line.ItemID}
		}

		rows, err := s.reader.ListBalances(ctx, tenantID, line.ItemID, "")
		if err != nil {
			return nil, err
		}

		entry := domain.OrderLineReservation{
			ItemCode:   item.Code,
			ItemName:   item.Name,
			OrderedQty: line.Quantity,
			Warehouses: make([]domain.WarehouseBalance, 0),
		}
		for _, r := range rows {
			if r.ReservedQty <= 0 {
				continue
			}
			wb, err := warehouseBalance(ctx, r, names)
			if err != nil {
				return nil, err
			}
			entry.ReservedQty += r.ReservedQty
			entry.Warehouses = append(entry.Warehouses, wb)
		}
		entry.Status = domain.LineStatusFor(line.Quantity, entry.ReservedQty)
		out.Lines = append(out.Lines, entry)
	}
	return out, nil
}

func summarize(ctx context.Context, item domain.Item, rows []domain.BalanceRow, names *warehouseNames) (domain.ItemSummary, error) {
	summary := domain.ItemSummary{
		ItemCode:   item.Code,
		ItemName:   item.Name,
		UOM:        item.UOM,
		Warehouses: make([]domain.WarehouseBalance, 0, len(rows)),
	}
	for _, r := range rows {
		wb, err := warehouseBalance(ctx, r, names)
		if err != nil {
			return summary, err
		}
		summary.TotalActualQty += r.ActualQty
		summary.TotalReservedQty += r.ReservedQty
		summary.Warehouses = append(summary.Warehouses, wb)
	}
	summary.TotalAvailableQty = summary.TotalActualQty - summary.TotalReservedQty
	return summary, nil
}

func warehouseBalance(ctx context.Context, r domain.BalanceRow, names *warehouseNames) (domain.WarehouseBalance, error) {
	code, name, err := names.lookup(ctx, r.WarehouseID)
	if err != nil {
		return domain.WarehouseBalance{}, fmt.Errorf("find warehouse: %w", err)
	}
	return domain.WarehouseBalance{
		WarehouseCode: code,
		WarehouseName: name,
		ActualQty:     r.ActualQty,
		ReservedQty:   r.ReservedQty,
		AvailableQty:  r.Available(),
	}, nil
}
