package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"stockscreener/models"
	"stockscreener/providers"
	"stockscreener/services/analysis"
	"stockscreener/services/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

func openTestStore(t *testing.T) *store.GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:orchestrator_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateModels(db))
	return store.NewGormStore(db)
}

// fakeFetcher serves canned records and series; anything not scripted fails
// with an exhausted-chain error.
type fakeFetcher struct {
	stocks     map[string]*providers.RawStockRecord
	benchmarks map[string]*providers.BenchmarkSeries
}

func (f *fakeFetcher) Available() []string { return []string{"fake"} }

func (f *fakeFetcher) FetchStock(ctx context.Context, symbol string) (*providers.RawStockRecord, error) {
	rec, ok := f.stocks[symbol]
	if !ok {
		return nil, &providers.ExhaustedError{Symbol: symbol}
	}
	return rec, nil
}

func (f *fakeFetcher) FetchBenchmark(ctx context.Context, symbol string) (*providers.BenchmarkSeries, error) {
	series, ok := f.benchmarks[symbol]
	if !ok {
		return nil, &providers.ExhaustedError{Symbol: symbol}
	}
	return series, nil
}

// weeklySpacedBars returns n daily bars spaced a week apart ending today-ish,
// walking the close linearly from start by step per bar.
func weeklySpacedBars(n int, startClose, step float64) []providers.Bar {
	bars := make([]providers.Bar, n)
	first := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -7*(n-1))
	for i := range bars {
		bars[i] = providers.Bar{
			Date:  first.AddDate(0, 0, 7*i),
			Close: decimal.NewFromFloat(startClose + float64(i)*step),
		}
	}
	return bars
}

func epsQuarters(values ...float64) []providers.EPSQuarter {
	quarters := make([]providers.EPSQuarter, len(values))
	date := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		quarters[i] = providers.EPSQuarter{Date: date, EPS: decimal.NewFromFloat(v)}
		date = date.AddDate(0, 3, 0)
	}
	return quarters
}

func recordFor(symbol, sector string, bars []providers.Bar) *providers.RawStockRecord {
	price := decimal.NewFromFloat(123.45)
	cap := decimal.NewFromInt(1_000_000_000)
	return &providers.RawStockRecord{
		Symbol:      symbol,
		CompanyName: symbol + " Corp",
		Sector:      sector,
		Industry:    "Widgets",
		Price:       &price,
		MarketCap:   &cap,
		Daily:       bars,
		Weekly:      bars,
		Monthly:     bars,
		EPSQuarters: epsQuarters(1.0, 1.1, 1.2, 1.3, 1.5),
	}
}

func points(bars []providers.Bar) []analysis.Point {
	out := make([]analysis.Point, len(bars))
	for i, bar := range bars {
		out[i] = analysis.Point{Date: bar.Date, Close: bar.Close}
	}
	return out
}

func TestRun_PartialFailureIsToleratedAndLogged(t *testing.T) {
	st := openTestStore(t)
	stockBars := weeklySpacedBars(60, 100, 1)
	spyBars := weeklySpacedBars(60, 400, 0.5)

	fetcher := &fakeFetcher{
		stocks: map[string]*providers.RawStockRecord{
			"AAPL": recordFor("AAPL", "Technology", stockBars),
			"MSFT": recordFor("MSFT", "Technology", stockBars),
		},
		benchmarks: map[string]*providers.BenchmarkSeries{
			"SPY": {Symbol: "SPY", Bars: spyBars},
		},
	}

	orch := New(st, fetcher, analysis.NewSectorMapper(), Config{})
	result, err := orch.Run(context.Background(), []string{"AAPL", "BADSYM", "MSFT"})
	require.NoError(t, err)

	assert.Equal(t, models.RefreshStatusCompletedWithErrors, result.Status)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "BADSYM")

	rows, err := st.StocksWithMetrics()
	require.NoError(t, err)
	require.Len(t, rows, 2, "failed symbols leave no rows behind")

	latest, err := st.LatestRefreshLog()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.RefreshStatusCompletedWithErrors, latest.Status)
	assert.Equal(t, 3, latest.StocksProcessed)
	assert.Equal(t, 2, latest.StocksSuccessful)
	assert.Equal(t, 1, latest.StocksFailed)
	assert.Contains(t, latest.ErrorMessage, "BADSYM")
	require.NotNil(t, latest.CompletedAt)
}

func TestRun_ComputesMetricsAgainstFreshBenchmarks(t *testing.T) {
	st := openTestStore(t)
	stockBars := weeklySpacedBars(60, 100, 1)
	spyBars := weeklySpacedBars(60, 400, 0.5)
	xlkBars := weeklySpacedBars(60, 150, 0.2)

	// Stale stored series must lose to the freshly fetched one.
	stale := &models.BenchmarkIndex{Symbol: "SPY", Name: "stale"}
	require.NoError(t, stale.SetSeries([]models.BenchmarkBar{{Date: "2020-01-02", Close: 1}}))
	require.NoError(t, st.UpsertBenchmark(stale))

	fetcher := &fakeFetcher{
		stocks: map[string]*providers.RawStockRecord{
			"AAPL": recordFor("AAPL", "Technology", stockBars),
		},
		benchmarks: map[string]*providers.BenchmarkSeries{
			"SPY": {Symbol: "SPY", Bars: spyBars},
			"XLK": {Symbol: "XLK", Bars: xlkBars},
		},
	}

	orch := New(st, fetcher, analysis.NewSectorMapper(), Config{})
	result, err := orch.Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	assert.Equal(t, models.RefreshStatusCompleted, result.Status)

	rows, err := st.StocksWithMetrics()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Metrics)
	metrics := rows[0].Metrics

	wantSpy := analysis.RelativeStrength(points(stockBars), points(spyBars))
	require.NotNil(t, wantSpy)
	require.NotNil(t, metrics.RSSpy)
	assert.InDelta(t, wantSpy.InexactFloat64(), *metrics.RSSpy, 1e-9)

	wantSector := analysis.RelativeStrength(points(stockBars), points(xlkBars))
	require.NotNil(t, wantSector)
	require.NotNil(t, metrics.RSSector)
	assert.InDelta(t, wantSector.InexactFloat64(), *metrics.RSSector, 1e-9)

	require.NotNil(t, metrics.EPSGrowthQoQ)
	assert.InDelta(t, (1.5-1.3)/1.3*100, *metrics.EPSGrowthQoQ, 1e-9)
	require.NotNil(t, metrics.EPSGrowthYoY)
	assert.InDelta(t, 50, *metrics.EPSGrowthYoY, 1e-9)

	emas := metrics.GetEMAData()
	assert.Contains(t, emas, analysis.KeyD9EMA)
	assert.Contains(t, emas, analysis.KeyW21EMA)
	assert.Len(t, metrics.GetEPSHistory(), 5)

	// The fetched series replaced the stale stored one.
	bench, err := st.Benchmark("SPY")
	require.NoError(t, err)
	require.NotNil(t, bench)
	assert.Len(t, bench.GetSeries(), 60)
}

func TestRun_BenchmarkFetchFailureFallsBackToStoredSeries(t *testing.T) {
	st := openTestStore(t)
	stockBars := weeklySpacedBars(60, 100, 1)
	spyBars := weeklySpacedBars(60, 400, 0.5)

	stored := &models.BenchmarkIndex{Symbol: "SPY", Name: "SPY benchmark"}
	storedBars := make([]models.BenchmarkBar, len(spyBars))
	for i, bar := range spyBars {
		closePrice, _ := bar.Close.Float64()
		storedBars[i] = models.BenchmarkBar{Date: bar.Date.Format("2006-01-02"), Close: closePrice}
	}
	require.NoError(t, stored.SetSeries(storedBars))
	require.NoError(t, st.UpsertBenchmark(stored))

	// No benchmarks are fetchable this run.
	fetcher := &fakeFetcher{
		stocks: map[string]*providers.RawStockRecord{
			"AAPL": recordFor("AAPL", "Technology", stockBars),
		},
	}

	orch := New(st, fetcher, analysis.NewSectorMapper(), Config{})
	result, err := orch.Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	assert.Equal(t, models.RefreshStatusCompleted, result.Status)

	rows, err := st.StocksWithMetrics()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Metrics)

	wantSpy := analysis.RelativeStrength(points(stockBars), points(spyBars))
	require.NotNil(t, wantSpy)
	require.NotNil(t, rows[0].Metrics.RSSpy)
	assert.InDelta(t, wantSpy.InexactFloat64(), *rows[0].Metrics.RSSpy, 1e-9)

	// No stored sector series to fall back to: sector RS is unavailable.
	assert.Nil(t, rows[0].Metrics.RSSector)
}

func TestRun_RepeatedRunsOverwriteInPlace(t *testing.T) {
	st := openTestStore(t)
	fetcher := &fakeFetcher{
		stocks: map[string]*providers.RawStockRecord{
			"AAPL": recordFor("AAPL", "Technology", weeklySpacedBars(60, 100, 1)),
		},
		benchmarks: map[string]*providers.BenchmarkSeries{
			"SPY": {Symbol: "SPY", Bars: weeklySpacedBars(60, 400, 0.5)},
		},
	}

	orch := New(st, fetcher, analysis.NewSectorMapper(), Config{})
	_, err := orch.Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	_, err = orch.Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)

	rows, err := st.StocksWithMetrics()
	require.NoError(t, err)
	assert.Len(t, rows, 1, "reruns must not duplicate symbol rows")
}

func TestRun_AllSymbolsFailing(t *testing.T) {
	st := openTestStore(t)
	fetcher := &fakeFetcher{}

	orch := New(st, fetcher, analysis.NewSectorMapper(), Config{})
	result, err := orch.Run(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)

	assert.Equal(t, models.RefreshStatusFailed, result.Status)
	assert.Equal(t, 0, result.Successful)
	assert.Equal(t, 2, result.Failed)

	latest, err := st.LatestRefreshLog()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.RefreshStatusFailed, latest.Status)
}

func TestRun_EmptyUniverseFailsBeforeLogging(t *testing.T) {
	st := openTestStore(t)
	orch := New(st, &fakeFetcher{}, analysis.NewSectorMapper(), Config{})

	_, err := orch.Run(context.Background(), nil)
	require.Error(t, err)

	latest, err := st.LatestRefreshLog()
	require.NoError(t, err)
	assert.Nil(t, latest, "a rejected run must not leave a log row")
}

func TestRun_WorkerPoolMatchesSequentialResults(t *testing.T) {
	st := openTestStore(t)
	stockBars := weeklySpacedBars(60, 100, 1)
	fetcher := &fakeFetcher{
		stocks: map[string]*providers.RawStockRecord{
			"AAPL": recordFor("AAPL", "Technology", stockBars),
			"MSFT": recordFor("MSFT", "Technology", stockBars),
			"XOM":  recordFor("XOM", "Energy", stockBars),
		},
		benchmarks: map[string]*providers.BenchmarkSeries{
			"SPY": {Symbol: "SPY", Bars: weeklySpacedBars(60, 400, 0.5)},
		},
	}

	orch := New(st, fetcher, analysis.NewSectorMapper(), Config{Workers: 3})
	result, err := orch.Run(context.Background(), []string{"AAPL", "BAD1", "MSFT", "BAD2", "XOM"})
	require.NoError(t, err)

	assert.Equal(t, models.RefreshStatusCompletedWithErrors, result.Status)
	assert.Equal(t, 3, result.Successful)
	assert.Equal(t, 2, result.Failed)

	rows, err := st.StocksWithMetrics()
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestSummarizeErrors(t *testing.T) {
	assert.Empty(t, summarizeErrors(nil, 10))

	errs := []string{"a: x", "b: y", "c: z"}
	assert.Equal(t, "a: x; b: y; c: z", summarizeErrors(errs, 10))
	assert.Equal(t, "a: x; b: y; and 1 more", summarizeErrors(errs, 2))
}
