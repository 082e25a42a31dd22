// Package planner decides how many units to take from each balance row.
package planner

import "github.com/rl1809/stock-reservation/internal/core/domain"

// Source selects the quantity that bounds a row's contribution.
type Source int

const (
	// SourceAvailable bounds each row by actual - reserved (reserve).
	SourceAvailable Source = iota
	// SourceReserved bounds each row by reserved (release).
	SourceReserved
)

func (s Source) String() string {
	if s == SourceReserved {
		return "reserved"
	}
	return "available"
}

func (s Source) bound(row domain.BalanceRow) int {
	if s == SourceReserved {
		return row.ReservedQty
	}
	return row.Available()
}

// Plan walks rows in the given order, which must already be FIFO by
// CreatedAt, and takes min(remaining, bound) from every row with a positive
// bound. It returns the allocations and the unmet remainder.
func Plan(target int, rows []domain.BalanceRow, source Source) ([]domain.Allocation, int) {
	if target <= 0 {
		return nil, 0
	}

	remaining := target
	var allocations []domain.Allocation
	for _, row := range rows {
		if remaining == 0 {
			break
		}
		limit := source.bound(row)
		if limit <= 0 {
			continue
		}
		take := min(remaining, limit)
		allocations = append(allocations, domain.Allocation{
			BalanceID:   row.ID,
			WarehouseID: row.WarehouseID,
			Quantity:    take,
		})
		remaining -= take
	}

	return allocations, remaining
}

// Capacity sums the positive bounds of rows under source.
func Capacity(rows []domain.BalanceRow, source Source) int {
	total := 0
	for _, row := range rows {
		if b := source.bound(row); b > 0 {
			total += b
		}
	}
	return total
}
