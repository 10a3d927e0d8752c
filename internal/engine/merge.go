package engine

import (
	"github.com/shopspring/decimal"

	"github.com/andresuchdata/stocklens/internal/domain"
)

const ratioPlaces = 4

// MergeMetrics performs a full outer join on normalized SKU between
// engine-computed metrics and the externally reported records. A SKU present
// on only one side gets zeroed/null fields for the missing side; the external
// record's descriptive text is carried through when available. Derived ratios
// stay nil instead of dividing by zero.
func MergeMetrics(platform map[string]domain.SkuMetrics, external map[string]domain.ExternalSkuRecord) map[string]domain.MergedSkuReport {
	merged := make(map[string]domain.MergedSkuReport, len(platform)+len(external))

	for sku, m := range platform {
		row := domain.MergedSkuReport{
			SKU:              sku,
			DaysInStock:      m.DaysInStock,
			StockoutDays:     m.StockoutDays,
			TotalSold:        m.TotalSold,
			SoldWhileInStock: m.SoldWhileInStock,
		}
		if ext, ok := external[sku]; ok {
			applyExternal(&row, ext)
		}
		deriveRatios(&row, true)
		merged[sku] = row
	}

	for sku, ext := range external {
		if _, ok := merged[sku]; ok {
			continue
		}
		row := domain.MergedSkuReport{SKU: sku}
		applyExternal(&row, ext)
		deriveRatios(&row, false)
		merged[sku] = row
	}

	return merged
}

func applyExternal(row *domain.MergedSkuReport, ext domain.ExternalSkuRecord) {
	row.Title = ext.Title
	row.Grade = ext.Grade
	row.ReportedDaysInStock = ext.DaysInStock
	row.ReportedDaysOutOfStock = ext.DaysOutOfStock
	row.ReportedUnitsSold = ext.UnitsSold
	row.ReportedSellThrough = ext.SellThroughRate
}

// deriveRatios computes in_stock_rate and velocity_in_stock. The in-stock
// rate prefers the engine's own day counts; for an external-only SKU it falls
// back to the reported day counts. Velocity is always over engine days in
// stock, since reported days carry no engine sales to divide.
func deriveRatios(row *domain.MergedSkuReport, hasPlatform bool) {
	inDays, outDays := row.DaysInStock, row.StockoutDays
	if !hasPlatform {
		inDays, outDays = row.ReportedDaysInStock, row.ReportedDaysOutOfStock
	}
	if denom := inDays + outDays; denom > 0 {
		rate := decimal.NewFromInt(int64(inDays)).
			Div(decimal.NewFromInt(int64(denom))).
			Round(ratioPlaces)
		row.InStockRate = &rate
	}
	if row.DaysInStock > 0 {
		velocity := decimal.NewFromInt(int64(row.TotalSold)).
			Div(decimal.NewFromInt(int64(row.DaysInStock))).
			Round(ratioPlaces)
		row.VelocityInStock = &velocity
	}
}
