package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/stocklens/internal/cache"
	"github.com/andresuchdata/stocklens/internal/config"
	"github.com/andresuchdata/stocklens/internal/domain"
	"github.com/andresuchdata/stocklens/internal/engine"
)

var reportEnd = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type fakePlatform struct {
	mu sync.Mutex

	variants    []domain.InventoryItem
	variantsErr error

	levels    map[int64]int // itemID -> available
	levelErrs map[int64]error

	adjustments map[int64][]domain.StockEvent
	adjustErrs  map[int64]error

	orders    []domain.SaleEvent
	ordersErr error

	levelCalls int
}

func (f *fakePlatform) Variants(ctx context.Context) ([]domain.InventoryItem, error) {
	return f.variants, f.variantsErr
}

func (f *fakePlatform) InventoryLevel(ctx context.Context, itemID int64) (int64, int, bool, error) {
	f.mu.Lock()
	f.levelCalls++
	f.mu.Unlock()
	if err := f.levelErrs[itemID]; err != nil {
		return 0, 0, false, err
	}
	available, ok := f.levels[itemID]
	if !ok {
		return 0, 0, false, nil
	}
	return 1, available, true, nil
}

func (f *fakePlatform) InventoryAdjustments(ctx context.Context, itemID int64, since time.Time) ([]domain.StockEvent, error) {
	if err := f.adjustErrs[itemID]; err != nil {
		return nil, err
	}
	return f.adjustments[itemID], nil
}

func (f *fakePlatform) Orders(ctx context.Context, since time.Time) ([]domain.SaleEvent, error) {
	return f.orders, f.ordersErr
}

type recordingCache struct {
	stored map[cache.ReportKey]*domain.Report
}

func newRecordingCache() *recordingCache {
	return &recordingCache{stored: make(map[cache.ReportKey]*domain.Report)}
}

func (c *recordingCache) Get(ctx context.Context, key cache.ReportKey) (*domain.Report, bool, error) {
	report, ok := c.stored[key]
	return report, ok, nil
}

func (c *recordingCache) Set(ctx context.Context, key cache.ReportKey, report *domain.Report) error {
	c.stored[key] = report
	return nil
}

func newTestService(t *testing.T, platform *fakePlatform, cfg config.ReportConfig, loader SellThroughLoader, required bool) *ReportService {
	t.Helper()
	if cfg.BatchWidth == 0 {
		cfg.BatchWidth = 2
	}
	svc := NewReportService(platform, loader, cache.NewNoopReportCache(), nil, cfg, required)
	svc.nowFn = func() time.Time { return reportEnd }
	return svc
}

func TestRun_BackwardPolicy(t *testing.T) {
	platform := &fakePlatform{
		variants: []domain.InventoryItem{{ItemID: 101, SKU: "ABC-#"}},
		levels:   map[int64]int{101: 10},
		orders: []domain.SaleEvent{
			{OccurredOn: reportEnd.AddDate(0, 0, -3), SKU: "ABC", Quantity: 2},
		},
	}
	svc := newTestService(t, platform, config.ReportConfig{Policy: "backward"}, nil, false)

	report, err := svc.Run(context.Background(), RunOptions{Months: 1})
	require.NoError(t, err)
	require.True(t, report.OK)
	assert.Equal(t, "2024-02-15", report.StartDate)
	assert.Equal(t, "2024-03-15", report.EndDate)
	assert.Equal(t, 1, report.RangeMonths)

	require.Contains(t, report.Items, "ABC")
	m, ok := report.Items["ABC"].(domain.SkuMetrics)
	require.True(t, ok)

	// snapshot of 10 anchors the whole window in stock
	days := engine.NewWindow(reportEnd, 1).Days()
	assert.Equal(t, len(days), m.DaysInStock)
	assert.Equal(t, 0, m.StockoutDays)
	assert.Equal(t, 2, m.TotalSold)
	assert.Equal(t, 2, m.SoldWhileInStock)
}

func TestRun_ForwardPolicy(t *testing.T) {
	platform := &fakePlatform{
		variants: []domain.InventoryItem{{ItemID: 101, SKU: "ABC"}},
		levels:   map[int64]int{101: 10},
		adjustments: map[int64][]domain.StockEvent{
			101: {{ItemID: 101, OccurredOn: reportEnd.AddDate(0, 0, -5), Kind: domain.EventDelta, Delta: 5}},
		},
		orders: []domain.SaleEvent{
			{OccurredOn: reportEnd.AddDate(0, 0, -5), SKU: "ABC", Quantity: 1},
			{OccurredOn: reportEnd.AddDate(0, 0, -2), SKU: "ABC", Quantity: 3},
		},
	}
	svc := newTestService(t, platform, config.ReportConfig{Policy: "forward"}, nil, false)

	report, err := svc.Run(context.Background(), RunOptions{Months: 1})
	require.NoError(t, err)

	m := report.Items["ABC"].(domain.SkuMetrics)
	days := engine.NewWindow(reportEnd, 1).Days()

	// only the adjustment day counts as in stock under forward accumulation;
	// the snapshot at the window end is ignored by this policy
	assert.Equal(t, 1, m.DaysInStock)
	assert.Equal(t, len(days)-1, m.StockoutDays)
	assert.Equal(t, 4, m.TotalSold)
	assert.Equal(t, 1, m.SoldWhileInStock)
}

func TestRun_SkipsSkulessVariants(t *testing.T) {
	platform := &fakePlatform{
		variants: []domain.InventoryItem{
			{ItemID: 101, SKU: "ABC"},
			{ItemID: 102, SKU: ""},
			{ItemID: 103, SKU: "   "},
		},
		levels: map[int64]int{101: 5, 102: 5, 103: 5},
	}
	svc := newTestService(t, platform, config.ReportConfig{Policy: "backward"}, nil, false)

	report, err := svc.Run(context.Background(), RunOptions{Months: 1})
	require.NoError(t, err)

	assert.Len(t, report.Items, 1)
	assert.Equal(t, 1, platform.levelCalls, "SKU-less items must not be enriched")
}

func TestRun_AggregatesVariantsOfOneSKU(t *testing.T) {
	platform := &fakePlatform{
		variants: []domain.InventoryItem{
			{ItemID: 101, SKU: "ABC-#"},
			{ItemID: 102, SKU: "ABC ##"},
		},
		levels: map[int64]int{101: 0, 102: 3},
	}
	svc := newTestService(t, platform, config.ReportConfig{Policy: "backward"}, nil, false)

	report, err := svc.Run(context.Background(), RunOptions{Months: 1})
	require.NoError(t, err)

	require.Len(t, report.Items, 1)
	m := report.Items["ABC"].(domain.SkuMetrics)
	days := engine.NewWindow(reportEnd, 1).Days()
	assert.Equal(t, len(days), m.DaysInStock, "summed series 0+3 is in stock every day")
}

func TestRun_CatalogFailureIsFatal(t *testing.T) {
	platform := &fakePlatform{variantsErr: errors.New("boom")}
	svc := newTestService(t, platform, config.ReportConfig{}, nil, false)

	_, err := svc.Run(context.Background(), RunOptions{Months: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog fetch failed")
}

func TestRun_SalesFailureIsFatal(t *testing.T) {
	platform := &fakePlatform{
		variants:  []domain.InventoryItem{{ItemID: 101, SKU: "ABC"}},
		levels:    map[int64]int{101: 5},
		ordersErr: errors.New("throttled"),
	}
	svc := newTestService(t, platform, config.ReportConfig{Policy: "backward"}, nil, false)

	_, err := svc.Run(context.Background(), RunOptions{Months: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sales fetch failed")
}

func TestRun_EnrichmentFailureDegradesToZeroSeries(t *testing.T) {
	platform := &fakePlatform{
		variants: []domain.InventoryItem{
			{ItemID: 101, SKU: "ABC"},
			{ItemID: 102, SKU: "DEF"},
		},
		levels:    map[int64]int{102: 7},
		levelErrs: map[int64]error{101: errors.New("timeout")},
		orders: []domain.SaleEvent{
			{OccurredOn: reportEnd.AddDate(0, 0, -1), SKU: "ABC", Quantity: 2},
		},
	}
	svc := newTestService(t, platform, config.ReportConfig{Policy: "backward"}, nil, false)

	report, err := svc.Run(context.Background(), RunOptions{Months: 1})
	require.NoError(t, err, "a single item failure must not fail the run")

	days := engine.NewWindow(reportEnd, 1).Days()

	abc := report.Items["ABC"].(domain.SkuMetrics)
	assert.Equal(t, 0, abc.DaysInStock)
	assert.Equal(t, len(days), abc.StockoutDays)
	assert.Equal(t, 2, abc.TotalSold)
	assert.Equal(t, 0, abc.SoldWhileInStock)

	def := report.Items["DEF"].(domain.SkuMetrics)
	assert.Equal(t, len(days), def.DaysInStock)
}

func TestRun_ItemWithoutLocationIsZeroSeries(t *testing.T) {
	platform := &fakePlatform{
		variants: []domain.InventoryItem{{ItemID: 101, SKU: "ABC"}},
		levels:   map[int64]int{}, // no inventory level anywhere
	}
	svc := newTestService(t, platform, config.ReportConfig{Policy: "backward"}, nil, false)

	report, err := svc.Run(context.Background(), RunOptions{Months: 1})
	require.NoError(t, err)

	m := report.Items["ABC"].(domain.SkuMetrics)
	assert.Equal(t, 0, m.DaysInStock)
}

func TestRun_MergeWithSellThrough(t *testing.T) {
	platform := &fakePlatform{
		variants: []domain.InventoryItem{{ItemID: 101, SKU: "ABC"}},
		levels:   map[int64]int{101: 4},
	}
	loader := func(ctx context.Context) (map[string]domain.ExternalSkuRecord, error) {
		return map[string]domain.ExternalSkuRecord{
			"ABC": {SKU: "ABC", Title: "Widget", DaysInStock: 12, DaysOutOfStock: 18},
			"EXT": {SKU: "EXT", Title: "Elsewhere", DaysInStock: 3},
		}, nil
	}
	svc := newTestService(t, platform, config.ReportConfig{Policy: "backward"}, loader, true)

	report, err := svc.Run(context.Background(), RunOptions{Months: 1, Merge: true})
	require.NoError(t, err)
	require.Len(t, report.Items, 2)

	abc, ok := report.Items["ABC"].(domain.MergedSkuReport)
	require.True(t, ok)
	assert.Equal(t, "Widget", abc.Title)
	assert.Equal(t, 12, abc.ReportedDaysInStock)

	ext := report.Items["EXT"].(domain.MergedSkuReport)
	assert.Equal(t, 0, ext.DaysInStock)
	assert.Equal(t, "Elsewhere", ext.Title)
}

func TestRun_SellThroughFailure(t *testing.T) {
	platform := &fakePlatform{
		variants: []domain.InventoryItem{{ItemID: 101, SKU: "ABC"}},
		levels:   map[int64]int{101: 4},
	}
	loader := func(ctx context.Context) (map[string]domain.ExternalSkuRecord, error) {
		return nil, errors.New("404")
	}

	// required: the whole run fails
	svc := newTestService(t, platform, config.ReportConfig{Policy: "backward"}, loader, true)
	_, err := svc.Run(context.Background(), RunOptions{Months: 1, Merge: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sell-through source failed")

	// optional: platform-only metrics come back instead
	svc = newTestService(t, platform, config.ReportConfig{Policy: "backward"}, loader, false)
	report, err := svc.Run(context.Background(), RunOptions{Months: 1, Merge: true})
	require.NoError(t, err)
	_, ok := report.Items["ABC"].(domain.SkuMetrics)
	assert.True(t, ok)
}

func TestRun_CacheHitShortCircuits(t *testing.T) {
	platform := &fakePlatform{
		variants: []domain.InventoryItem{{ItemID: 101, SKU: "ABC"}},
		levels:   map[int64]int{101: 4},
	}
	c := newRecordingCache()
	svc := NewReportService(platform, nil, c, nil, config.ReportConfig{Policy: "backward", BatchWidth: 2}, false)
	svc.nowFn = func() time.Time { return reportEnd }

	first, err := svc.Run(context.Background(), RunOptions{Months: 1})
	require.NoError(t, err)
	require.Len(t, c.stored, 1)

	platform.variantsErr = errors.New("upstream down")
	second, err := svc.Run(context.Background(), RunOptions{Months: 1})
	require.NoError(t, err, "cached report must be served without touching the platform")
	assert.Equal(t, first, second)
}

func TestRun_MonthsFallsBackToConfig(t *testing.T) {
	platform := &fakePlatform{variants: nil}
	svc := newTestService(t, platform, config.ReportConfig{Policy: "backward", RangeMonths: 2}, nil, false)

	report, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.RangeMonths)
	assert.Equal(t, "2024-01-15", report.StartDate)
}
