package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/andresuchdata/stocklens/internal/cache"
	"github.com/andresuchdata/stocklens/internal/config"
	"github.com/andresuchdata/stocklens/internal/domain"
	"github.com/andresuchdata/stocklens/internal/engine"
	"github.com/andresuchdata/stocklens/internal/repository"
)

// PlatformAPI is what the report needs from the commerce platform client.
type PlatformAPI interface {
	Variants(ctx context.Context) ([]domain.InventoryItem, error)
	InventoryLevel(ctx context.Context, itemID int64) (locationID int64, available int, ok bool, err error)
	InventoryAdjustments(ctx context.Context, itemID int64, since time.Time) ([]domain.StockEvent, error)
	Orders(ctx context.Context, since time.Time) ([]domain.SaleEvent, error)
}

// SellThroughLoader fetches and parses the external sell-through export.
type SellThroughLoader func(ctx context.Context) (map[string]domain.ExternalSkuRecord, error)

type ReportService struct {
	platform PlatformAPI
	loader   SellThroughLoader
	cache    cache.ReportCache
	runs     repository.ReportRunRepository
	cfg      config.ReportConfig
	required bool // sell-through source failure aborts the merge run
	nowFn    func() time.Time
}

// NewReportService wires a report service. loader may be nil when no
// sell-through source is configured; runs may be nil to disable bookkeeping.
func NewReportService(platform PlatformAPI, loader SellThroughLoader, cacheImpl cache.ReportCache, runs repository.ReportRunRepository, cfg config.ReportConfig, sellThroughRequired bool) *ReportService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopReportCache()
	}
	return &ReportService{
		platform: platform,
		loader:   loader,
		cache:    cacheImpl,
		runs:     runs,
		cfg:      cfg,
		required: sellThroughRequired,
		nowFn:    time.Now,
	}
}

// RunOptions are the per-request knobs; zero values fall back to config.
type RunOptions struct {
	Months int
	Merge  bool
}

// itemOutcome is the recovered result of one item's enrichment. Empty marks
// an item whose sub-fetch failed or that has no known location; its
// availability is a defined all-zero series, never a gap.
type itemOutcome struct {
	item   domain.InventoryItem
	events []domain.StockEvent
	empty  bool
}

// Run computes one report. Catalog and sales fetch failures are fatal;
// per-item enrichment failures degrade that item to an all-zero series and
// the report still completes.
func (s *ReportService) Run(ctx context.Context, opts RunOptions) (*domain.Report, error) {
	months := opts.Months
	if months <= 0 {
		months = s.cfg.RangeMonths
	}
	if months <= 0 {
		months = 24
	}

	window := engine.NewWindow(s.nowFn().UTC(), months)
	days := window.Days()
	policy := engine.PolicyByName(s.cfg.Policy)

	key := cache.ReportKey{
		StartDate: window.Start.Format(engine.DayLayout),
		EndDate:   window.End.Format(engine.DayLayout),
		Policy:    policy.Name(),
		Merged:    opts.Merge,
	}
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("report cache get failed")
	}

	runID := s.recordRunStart(ctx, window, months, policy.Name(), opts.Merge)

	report, itemCount, skuCount, err := s.compute(ctx, window, days, policy, months, opts.Merge)
	if err != nil {
		s.recordRunFailure(ctx, runID, err)
		return nil, err
	}

	if err := s.cache.Set(ctx, key, report); err != nil {
		log.Warn().Err(err).Msg("report cache set failed")
	}
	s.recordRunSuccess(ctx, runID, itemCount, skuCount)

	return report, nil
}

func (s *ReportService) compute(ctx context.Context, window engine.Window, days []string, policy engine.ReconstructionPolicy, months int, merge bool) (*domain.Report, int, int, error) {
	// The catalog must be complete before any per-item work: items are the
	// unit of everything that follows.
	catalog, err := s.platform.Variants(ctx)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("catalog fetch failed: %w", err)
	}

	items := make([]domain.InventoryItem, 0, len(catalog))
	for _, item := range catalog {
		if _, ok := engine.NormalizeSKU(item.SKU); !ok {
			continue
		}
		items = append(items, item)
	}
	log.Info().Int("variants", len(catalog)).Int("reportable", len(items)).Msg("catalog enumerated")

	// Sales are independent of per-item enrichment; fetch them concurrently.
	type salesResult struct {
		events []domain.SaleEvent
		err    error
	}
	salesCh := make(chan salesResult, 1)
	go func() {
		events, err := s.platform.Orders(ctx, window.Start)
		salesCh <- salesResult{events: events, err: err}
	}()

	outcomes := s.enrichItems(ctx, items, window, policy)

	sales := <-salesCh
	if sales.err != nil {
		return nil, 0, 0, fmt.Errorf("sales fetch failed: %w", sales.err)
	}
	idx := engine.BuildSalesIndex(sales.events)

	// Aggregate per-item series under the normalized SKU, then compute
	// metrics once per SKU from the shared index.
	skuSeries := make(map[string]map[string]int)
	for _, outcome := range outcomes {
		sku, _ := engine.NormalizeSKU(outcome.item.SKU)

		var series map[string]int
		if outcome.empty {
			series = engine.ZeroSeries(days)
		} else {
			series = policy.Reconstruct(window, outcome.events, idx.DailyFor(sku, days))
		}

		if existing, ok := skuSeries[sku]; ok {
			engine.SumSeries(existing, series)
		} else {
			skuSeries[sku] = series
		}
	}

	metrics := make(map[string]domain.SkuMetrics, len(skuSeries))
	for sku, series := range skuSeries {
		metrics[sku] = engine.ComputeMetrics(series, idx, sku, days)
	}

	resultItems, skuCount, err := s.assembleItems(ctx, metrics, merge)
	if err != nil {
		return nil, 0, 0, err
	}

	report := &domain.Report{
		OK:          true,
		StartDate:   window.Start.Format(engine.DayLayout),
		EndDate:     window.End.Format(engine.DayLayout),
		RangeMonths: months,
		Items:       resultItems,
	}
	return report, len(items), skuCount, nil
}

// enrichItems runs the per-item history/snapshot fetches with bounded
// concurrency. Each goroutine writes only its own slot, so no lock guards
// the outcomes.
func (s *ReportService) enrichItems(ctx context.Context, items []domain.InventoryItem, window engine.Window, policy engine.ReconstructionPolicy) []itemOutcome {
	width := s.cfg.BatchWidth
	if width < 1 {
		width = 1
	}
	sem := semaphore.NewWeighted(int64(width))

	outcomes := make([]itemOutcome, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item domain.InventoryItem) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes[i] = itemOutcome{item: item, empty: true}
				return
			}
			defer sem.Release(1)
			outcomes[i] = s.enrichItem(ctx, item, window, policy)
		}(i, item)
	}
	wg.Wait()

	return outcomes
}

func (s *ReportService) enrichItem(ctx context.Context, item domain.InventoryItem, window engine.Window, policy engine.ReconstructionPolicy) itemOutcome {
	locationID, available, ok, err := s.platform.InventoryLevel(ctx, item.ItemID)
	if err != nil {
		log.Warn().Err(err).Int64("item_id", item.ItemID).Msg("inventory level fetch failed, item degraded to zero series")
		return itemOutcome{item: item, empty: true}
	}
	if !ok {
		// No inventory level at any location: excluded from reconstruction,
		// metrics default to all-zero.
		return itemOutcome{item: item, empty: true}
	}
	item.LocationID = locationID

	events := []domain.StockEvent{{
		ItemID:     item.ItemID,
		OccurredOn: window.End,
		Kind:       domain.EventSnapshot,
		Quantity:   available,
	}}

	if policy.Name() == "forward" {
		adjustments, err := s.platform.InventoryAdjustments(ctx, item.ItemID, window.Start)
		if err != nil {
			log.Warn().Err(err).Int64("item_id", item.ItemID).Msg("adjustment history fetch failed, item degraded to zero series")
			return itemOutcome{item: item, empty: true}
		}
		events = append(events, adjustments...)
	}

	return itemOutcome{item: item, events: events}
}

// assembleItems builds the report's items map: plain metrics, or the full
// outer join with the sell-through export when merging.
func (s *ReportService) assembleItems(ctx context.Context, metrics map[string]domain.SkuMetrics, merge bool) (map[string]any, int, error) {
	if merge && s.loader != nil {
		external, err := s.loader(ctx)
		if err != nil {
			if s.required {
				return nil, 0, fmt.Errorf("sell-through source failed: %w", err)
			}
			log.Warn().Err(err).Msg("sell-through source failed, proceeding with platform-only metrics")
		} else {
			merged := engine.MergeMetrics(metrics, external)
			items := make(map[string]any, len(merged))
			for sku, row := range merged {
				items[sku] = row
			}
			return items, len(merged), nil
		}
	}

	items := make(map[string]any, len(metrics))
	for sku, m := range metrics {
		items[sku] = m
	}
	return items, len(metrics), nil
}

func (s *ReportService) recordRunStart(ctx context.Context, window engine.Window, months int, policy string, merged bool) string {
	if s.runs == nil {
		return ""
	}
	run := &repository.ReportRun{
		ID:          uuid.NewString(),
		Policy:      policy,
		StartDate:   window.Start,
		EndDate:     window.End,
		RangeMonths: months,
		Merged:      merged,
		Status:      repository.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		log.Warn().Err(err).Msg("failed to record report run")
		return ""
	}
	return run.ID
}

func (s *ReportService) recordRunSuccess(ctx context.Context, runID string, itemCount, skuCount int) {
	if s.runs == nil || runID == "" {
		return
	}
	if err := s.runs.Complete(ctx, runID, itemCount, skuCount); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("failed to complete report run")
	}
}

func (s *ReportService) recordRunFailure(ctx context.Context, runID string, runErr error) {
	if s.runs == nil || runID == "" {
		return
	}
	if err := s.runs.Fail(ctx, runID, runErr.Error()); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("failed to mark report run failed")
	}
}
