package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItem is the platform's stock-tracking entity behind one variant.
// Items without a SKU cannot be attributed in the report and are skipped
// during catalog enumeration.
type InventoryItem struct {
	ItemID     int64
	SKU        string
	LocationID int64
}

// StockEventKind tags which form a StockEvent carries.
type StockEventKind int

const (
	// EventDelta is a signed adjustment to the on-hand quantity on a day.
	EventDelta StockEventKind = iota
	// EventSnapshot is an absolute on-hand quantity read at a point in time.
	EventSnapshot
)

// StockEvent is a point-in-time change to (or reading of) an item's on-hand
// quantity. Delta and Quantity are mutually exclusive per Kind.
type StockEvent struct {
	ItemID     int64
	OccurredOn time.Time
	Kind       StockEventKind
	Delta      int
	Quantity   int
}

// SaleEvent is one order line item: a dated unit sale tagged with the raw,
// pre-normalization SKU.
type SaleEvent struct {
	OccurredOn time.Time
	SKU        string
	Quantity   int
}

// SkuMetrics are the engine-computed stocking metrics for one normalized SKU.
type SkuMetrics struct {
	DaysInStock      int `json:"days_in_stock"`
	StockoutDays     int `json:"stockout_days"`
	TotalSold        int `json:"total_sold"`
	SoldWhileInStock int `json:"sold_while_in_stock"`
}

// ExternalSkuRecord is one row of the independently produced sell-through
// export, keyed by normalized SKU after parsing.
type ExternalSkuRecord struct {
	SKU            string // raw SKU text as reported
	Title          string
	Grade          string
	DaysInStock    int
	DaysOutOfStock int
	// UnitsSold and SellThroughRate are nil when the export left the cell
	// blank or unparseable; "unreported" is distinct from "reported as zero".
	UnitsSold       *int
	SellThroughRate *decimal.Decimal
}

// MergedSkuReport is the full outer join of SkuMetrics and ExternalSkuRecord
// for one normalized SKU, plus cross-source derived ratios.
type MergedSkuReport struct {
	SKU   string `json:"sku"`
	Title string `json:"title,omitempty"`
	Grade string `json:"grade,omitempty"`

	DaysInStock      int `json:"days_in_stock"`
	StockoutDays     int `json:"stockout_days"`
	TotalSold        int `json:"total_sold"`
	SoldWhileInStock int `json:"sold_while_in_stock"`

	ReportedDaysInStock    int              `json:"reported_days_in_stock"`
	ReportedDaysOutOfStock int              `json:"reported_days_out_of_stock"`
	ReportedUnitsSold      *int             `json:"reported_units_sold"`
	ReportedSellThrough    *decimal.Decimal `json:"reported_sell_through_rate"`

	// Derived ratios stay null when the denominator is zero; they are never
	// coerced to zero through serialization.
	InStockRate     *decimal.Decimal `json:"in_stock_rate"`
	VelocityInStock *decimal.Decimal `json:"velocity_in_stock"`
}

// Report is the single JSON object a run produces. Items maps normalized SKU
// to SkuMetrics for a platform-only run, or MergedSkuReport when the
// sell-through source was joined in.
type Report struct {
	OK          bool           `json:"ok"`
	StartDate   string         `json:"start_date,omitempty"`
	EndDate     string         `json:"end_date,omitempty"`
	RangeMonths int            `json:"range_months,omitempty"`
	Items       map[string]any `json:"items,omitempty"`
	Error       string         `json:"error,omitempty"`
}
