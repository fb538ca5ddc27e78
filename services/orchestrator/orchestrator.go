package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"stockscreener/models"
	"stockscreener/providers"
	"stockscreener/services/analysis"
	"stockscreener/services/store"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Fetcher is the slice of the provider manager the orchestrator needs.
type Fetcher interface {
	FetchStock(ctx context.Context, symbol string) (*providers.RawStockRecord, error)
	FetchBenchmark(ctx context.Context, symbol string) (*providers.BenchmarkSeries, error)
	Available() []string
}

// Config tunes one orchestrator instance.
type Config struct {
	BroadMarketETF string // defaults to SPY
	Workers        int    // symbol loop concurrency, defaults to 1
}

// Orchestrator drives one refresh run: benchmarks first, then the symbol
// universe, then the refresh log. Per-symbol failures are counted, never
// propagated.
type Orchestrator struct {
	store   store.Store
	fetcher Fetcher
	sectors *analysis.SectorMapper
	cfg     Config
}

// New creates an orchestrator.
func New(st store.Store, fetcher Fetcher, sectors *analysis.SectorMapper, cfg Config) *Orchestrator {
	if cfg.BroadMarketETF == "" {
		cfg.BroadMarketETF = "SPY"
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Orchestrator{store: st, fetcher: fetcher, sectors: sectors, cfg: cfg}
}

// RunResult summarizes one completed run.
type RunResult struct {
	Status     string   `json:"status"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// benchmarkCache holds the per-run benchmark series. It is written during the
// benchmark phase and read-only for the rest of the run.
type benchmarkCache map[string][]analysis.Point

// Run executes one full refresh over the given symbol universe.
// An empty universe or unreachable storage is a run-level error reported
// before any symbol is attempted.
func (o *Orchestrator) Run(ctx context.Context, universe []string) (*RunResult, error) {
	if len(universe) == 0 {
		return nil, fmt.Errorf("symbol universe is empty")
	}
	if err := o.store.Ping(); err != nil {
		return nil, fmt.Errorf("storage unreachable: %w", err)
	}

	log.Info().
		Strs("providers", o.fetcher.Available()).
		Int("symbols", len(universe)).
		Int("workers", o.cfg.Workers).
		Msg("Starting refresh run")

	entry, err := o.store.StartRefreshLog()
	if err != nil {
		return nil, fmt.Errorf("starting refresh log: %w", err)
	}

	benchmarks := o.refreshBenchmarks(ctx)

	successful, failed, symbolErrors := o.processSymbols(ctx, universe, benchmarks)

	status := models.RefreshStatusCompleted
	switch {
	case successful == 0:
		status = models.RefreshStatusFailed
	case failed > 0:
		status = models.RefreshStatusCompletedWithErrors
	}

	summary := summarizeErrors(symbolErrors, 10)
	if err := o.store.FinalizeRefreshLog(entry, status, successful, failed, summary); err != nil {
		log.Error().Err(err).Msg("Failed to finalize refresh log")
	}

	log.Info().
		Str("status", status).
		Int("successful", successful).
		Int("failed", failed).
		Msg("Refresh run finished")

	return &RunResult{Status: status, Successful: successful, Failed: failed, Errors: symbolErrors}, nil
}

// refreshBenchmarks fetches and persists the broad-market instrument and
// every distinct sector ETF. A failed instrument falls back to the most
// recent stored series; if none exists it is absent for the run and the
// dependent relative-strength values come out unavailable.
func (o *Orchestrator) refreshBenchmarks(ctx context.Context) benchmarkCache {
	instruments := append([]string{o.cfg.BroadMarketETF}, o.sectors.ETFs()...)
	cache := make(benchmarkCache, len(instruments))

	for _, symbol := range instruments {
		series, err := o.fetcher.FetchBenchmark(ctx, symbol)
		if err != nil {
			log.Warn().Str("benchmark", symbol).Err(err).
				Msg("Benchmark fetch failed, falling back to stored series")
			if points := o.storedBenchmark(symbol); points != nil {
				cache[symbol] = points
			}
			continue
		}

		bench := &models.BenchmarkIndex{
			Symbol:      symbol,
			Name:        symbol + " benchmark",
			LastUpdated: store.NormalizeTime(time.Now()),
		}
		bars := make([]models.BenchmarkBar, 0, len(series.Bars))
		points := make([]analysis.Point, 0, len(series.Bars))
		for _, bar := range series.Bars {
			bars = append(bars, models.BenchmarkBar{
				Date:  bar.Date.Format("2006-01-02"),
				Close: bar.Close.InexactFloat64(),
			})
			points = append(points, analysis.Point{Date: bar.Date, Close: bar.Close})
		}
		if err := bench.SetSeries(bars); err != nil {
			log.Warn().Str("benchmark", symbol).Err(err).Msg("Failed to serialize benchmark series")
			continue
		}
		if err := o.store.UpsertBenchmark(bench); err != nil {
			log.Warn().Str("benchmark", symbol).Err(err).Msg("Failed to persist benchmark")
			// The freshly fetched series is still valid for this run.
		}
		cache[symbol] = points
	}

	log.Info().Int("available", len(cache)).Int("requested", len(instruments)).
		Msg("Benchmark refresh completed")
	return cache
}

func (o *Orchestrator) storedBenchmark(symbol string) []analysis.Point {
	bench, err := o.store.Benchmark(symbol)
	if err != nil || bench == nil {
		return nil
	}
	bars := bench.GetSeries()
	points := make([]analysis.Point, 0, len(bars))
	for _, bar := range bars {
		date, err := time.Parse("2006-01-02", bar.Date)
		if err != nil {
			continue
		}
		points = append(points, analysis.Point{Date: date, Close: decimal.NewFromFloat(bar.Close)})
	}
	return points
}

// processSymbols runs the symbol loop, sequentially or over a bounded worker
// pool. Rate limits live in the provider manager and are global, so workers
// cannot defeat them.
func (o *Orchestrator) processSymbols(ctx context.Context, universe []string, benchmarks benchmarkCache) (successful, failed int, errs []string) {
	var mu sync.Mutex
	record := func(symbol string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed++
			errs = append(errs, fmt.Sprintf("%s: %v", symbol, err))
			log.Warn().Str("symbol", symbol).Err(err).Msg("Symbol refresh failed")
			return
		}
		successful++
		log.Debug().Str("symbol", symbol).Msg("Symbol refreshed")
	}

	if o.cfg.Workers == 1 {
		for _, symbol := range universe {
			record(symbol, o.processSymbol(ctx, symbol, benchmarks))
		}
		return successful, failed, errs
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				record(symbol, o.processSymbol(ctx, symbol, benchmarks))
			}
		}()
	}
	for _, symbol := range universe {
		jobs <- symbol
	}
	close(jobs)
	wg.Wait()
	return successful, failed, errs
}

// processSymbol fetches one symbol, derives its indicators against the run's
// benchmark cache, and upserts the stock and metrics rows.
func (o *Orchestrator) processSymbol(ctx context.Context, symbol string, benchmarks benchmarkCache) error {
	rec, err := o.fetcher.FetchStock(ctx, symbol)
	if err != nil {
		return err
	}

	daily := toPoints(rec.Daily)
	weekly := toPoints(rec.Weekly)
	monthly := toPoints(rec.Monthly)

	emas := analysis.AllEMAs(daily, weekly, monthly)

	epsHistory := make([]analysis.EPSObservation, 0, len(rec.EPSQuarters))
	for _, q := range rec.EPSQuarters {
		epsHistory = append(epsHistory, analysis.EPSObservation{Date: q.Date, EPS: q.EPS})
	}
	growth := analysis.CalculateEPSGrowth(epsHistory)

	rsSpy := analysis.RelativeStrength(daily, benchmarks[o.cfg.BroadMarketETF])
	var rsSector *decimal.Decimal
	if etf, ok := o.sectors.ETF(rec.Sector); ok {
		rsSector = analysis.RelativeStrength(daily, benchmarks[etf])
	}

	price := rec.Price
	if price == nil && len(rec.Daily) > 0 {
		last := rec.Daily[len(rec.Daily)-1].Close
		price = &last
	}

	now := store.NormalizeTime(time.Now())
	stock := &models.Stock{
		Symbol:       symbol,
		CompanyName:  rec.CompanyName,
		Sector:       rec.Sector,
		Industry:     rec.Industry,
		MarketCap:    store.NormalizeInt(rec.MarketCap),
		CurrentPrice: store.NormalizeFloat(price),
		LastUpdated:  now,
	}
	if err := o.store.UpsertStock(stock); err != nil {
		return err
	}

	metrics := &models.StockMetrics{
		Symbol:             symbol,
		StockID:            stock.ID,
		EPSGrowthQoQ:       store.NormalizeFloat(growth.QoQ),
		EPSGrowthYoY:       store.NormalizeFloat(growth.YoY),
		LatestQuarterlyEPS: store.NormalizeFloat(growth.LatestEPS),
		RSSpy:              store.NormalizeFloat(rsSpy),
		RSSector:           store.NormalizeFloat(rsSector),
		LastUpdated:        now,
	}
	emaSet := make(map[string]float64, len(emas))
	for key, value := range emas {
		emaSet[key] = value.InexactFloat64()
	}
	if err := metrics.SetEMAData(emaSet); err != nil {
		return fmt.Errorf("serializing EMA set: %w", err)
	}
	history := make([]models.QuarterlyEPS, 0, len(epsHistory))
	for _, obs := range epsHistory {
		history = append(history, models.QuarterlyEPS{
			Date: obs.Date.Format("2006-01-02"),
			EPS:  obs.EPS.InexactFloat64(),
		})
	}
	if err := metrics.SetEPSHistory(history); err != nil {
		return fmt.Errorf("serializing EPS history: %w", err)
	}
	return o.store.UpsertMetrics(metrics)
}

func toPoints(bars []providers.Bar) []analysis.Point {
	points := make([]analysis.Point, 0, len(bars))
	for _, bar := range bars {
		points = append(points, analysis.Point{Date: bar.Date, Close: bar.Close})
	}
	return points
}

func summarizeErrors(errs []string, limit int) string {
	if len(errs) == 0 {
		return ""
	}
	shown := errs
	if len(shown) > limit {
		shown = shown[:limit]
	}
	summary := strings.Join(shown, "; ")
	if len(errs) > limit {
		summary += fmt.Sprintf("; and %d more", len(errs)-limit)
	}
	return summary
}
