package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

func widgetRows() []domain.BalanceRow {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []domain.BalanceRow{
		{ID: "b1", WarehouseID: "WH1", ActualQty: 10, CreatedAt: t0},
		{ID: "b2", WarehouseID: "WH2", ActualQty: 5, CreatedAt: t0.Add(time.Hour)},
	}
}

func TestPlan_FIFOAcrossRows(t *testing.T) {
	allocs, remaining := Plan(12, widgetRows(), SourceAvailable)

	assert.Equal(t, 0, remaining)
	assert.Equal(t, []domain.Allocation{
		{BalanceID: "b1", WarehouseID: "WH1", Quantity: 10},
		{BalanceID: "b2", WarehouseID: "WH2", Quantity: 2},
	}, allocs)
}

func TestPlan_StopsWhenSatisfied(t *testing.T) {
	allocs, remaining := Plan(4, widgetRows(), SourceAvailable)

	assert.Equal(t, 0, remaining)
	assert.Len(t, allocs, 1)
	assert.Equal(t, 4, allocs[0].Quantity)
}

func TestPlan_ReportsRemainder(t *testing.T) {
	rows := widgetRows()
	rows[0].ReservedQty = 10
	rows[1].ReservedQty = 2

	allocs, remaining := Plan(5, rows, SourceAvailable)

	assert.Equal(t, 2, remaining)
	assert.Equal(t, []domain.Allocation{{BalanceID: "b2", WarehouseID: "WH2", Quantity: 3}}, allocs)
}

func TestPlan_SkipsNonPositiveRows(t *testing.T) {
	rows := []domain.BalanceRow{
		{ID: "over", ActualQty: 2, ReservedQty: 4},
		{ID: "empty", ActualQty: 0},
		{ID: "ok", ActualQty: 3},
	}

	allocs, remaining := Plan(3, rows, SourceAvailable)

	assert.Equal(t, 0, remaining)
	assert.Equal(t, "ok", allocs[0].BalanceID)
}

func TestPlan_ReservedSource(t *testing.T) {
	rows := widgetRows()
	rows[0].ReservedQty = 1
	rows[1].ReservedQty = 4

	allocs, remaining := Plan(7, rows, SourceReserved)

	assert.Equal(t, 2, remaining)
	assert.Equal(t, []domain.Allocation{
		{BalanceID: "b1", WarehouseID: "WH1", Quantity: 1},
		{BalanceID: "b2", WarehouseID: "WH2", Quantity: 4},
	}, allocs)
}

func TestPlan_NonPositiveTarget(t *testing.T) {
	for _, target := range []int{0, -3} {
		allocs, remaining := Plan(target, widgetRows(), SourceAvailable)
		assert.Nil(t, allocs)
		assert.Equal(t, 0, remaining)
	}
}

func TestPlan_DoesNotReorderBySize(t *testing.T) {
	rows := []domain.BalanceRow{
		{ID: "small-old", ActualQty: 1},
		{ID: "big-new", ActualQty: 100},
	}

	allocs, _ := Plan(2, rows, SourceAvailable)

	assert.Equal(t, "small-old", allocs[0].BalanceID)
	assert.Equal(t, "big-new", allocs[1].BalanceID)
}

func TestPlan_Deterministic(t *testing.T) {
	first, r1 := Plan(13, widgetRows(), SourceAvailable)
	second, r2 := Plan(13, widgetRows(), SourceAvailable)

	assert.Equal(t, first, second)
	assert.Equal(t, r1, r2)
}

func TestCapacity(t *testing.T) {
	rows := widgetRows()
	rows[0].ReservedQty = 3

	assert.Equal(t, 12, Capacity(rows, SourceAvailable))
	assert.Equal(t, 3, Capacity(rows, SourceReserved))
}
