package engine

import (
	"github.com/andresuchdata/stocklens/internal/domain"
)

type saleKey struct {
	Day string
	SKU string
}

// SalesIndex maps (day, normalized SKU) to units sold. It is built once per
// report run and read concurrently afterwards, so it must not be mutated
// after BuildSalesIndex returns.
type SalesIndex struct {
	counts map[saleKey]int
}

// BuildSalesIndex aggregates sale events by day and normalized SKU, summing
// quantities. Events whose SKU is absent or unnormalizable are dropped: they
// cannot be attributed to a reportable item.
func BuildSalesIndex(events []domain.SaleEvent) *SalesIndex {
	idx := &SalesIndex{counts: make(map[saleKey]int, len(events))}
	for _, ev := range events {
		sku, ok := NormalizeSKU(ev.SKU)
		if !ok {
			continue
		}
		idx.counts[saleKey{Day: DayKey(ev.OccurredOn), SKU: sku}] += ev.Quantity
	}
	return idx
}

// Quantity returns units sold for the day and normalized SKU, zero when none
// were recorded.
func (idx *SalesIndex) Quantity(day, sku string) int {
	return idx.counts[saleKey{Day: day, SKU: sku}]
}

// DailyFor extracts the per-day sales of one normalized SKU across the given
// days, for policies that need a contiguous view.
func (idx *SalesIndex) DailyFor(sku string, days []string) map[string]int {
	daily := make(map[string]int, len(days))
	for _, d := range days {
		if q := idx.counts[saleKey{Day: d, SKU: sku}]; q != 0 {
			daily[d] = q
		}
	}
	return daily
}
