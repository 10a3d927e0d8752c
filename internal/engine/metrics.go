package engine

import (
	"github.com/andresuchdata/stocklens/internal/domain"
)

// ComputeMetrics folds one SKU's availability series and the shared sales
// index into stocking metrics with a single linear pass over the ordered day
// sequence. Days missing from the series count as unavailable. The ">0"
// predicate is the sole in-stock classification rule, applied identically no
// matter which reconstruction policy produced the series, so
// DaysInStock+StockoutDays always equals len(days) and recomputation from the
// same inputs is byte-identical.
func ComputeMetrics(series map[string]int, idx *SalesIndex, sku string, days []string) domain.SkuMetrics {
	var m domain.SkuMetrics
	for _, day := range days {
		available := series[day]
		sold := idx.Quantity(day, sku)

		m.TotalSold += sold
		if available > 0 {
			m.DaysInStock++
			m.SoldWhileInStock += sold
		} else {
			m.StockoutDays++
		}
	}
	return m
}

// SumSeries adds src into dst day by day. Used to aggregate the per-item
// series of every inventory item that normalizes to the same SKU.
func SumSeries(dst, src map[string]int) {
	for day, v := range src {
		dst[day] += v
	}
}

// ZeroSeries returns an all-zero series over the given days, the defined
// availability for items whose enrichment fetch failed or that have no
// known location.
func ZeroSeries(days []string) map[string]int {
	return zeroSeries(days)
}
