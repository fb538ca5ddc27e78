package store

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"stockscreener/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

// openTestStore opens a fresh in-memory database. The shared-cache DSN keeps
// every pooled connection on the same database.
func openTestStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:store_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateModels(db))
	return NewGormStore(db)
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int64) *int64       { return &v }

func TestUpsertStock_Idempotent(t *testing.T) {
	st := openTestStore(t)

	stock := &models.Stock{
		Symbol:       "AAPL",
		CompanyName:  "Apple Inc.",
		Sector:       "Technology",
		MarketCap:    intPtr(3_000_000_000_000),
		CurrentPrice: floatPtr(210.5),
		LastUpdated:  NormalizeTime(time.Now()),
	}
	require.NoError(t, st.UpsertStock(stock))
	firstID := stock.ID
	require.NotZero(t, firstID)

	// Second upsert for the same symbol overwrites in place.
	updated := &models.Stock{
		Symbol:       "AAPL",
		CompanyName:  "Apple Inc.",
		Sector:       "Technology",
		CurrentPrice: floatPtr(215.0),
		LastUpdated:  NormalizeTime(time.Now()),
	}
	require.NoError(t, st.UpsertStock(updated))
	assert.Equal(t, firstID, updated.ID)

	rows, err := st.StocksWithMetrics()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 215.0, *rows[0].Stock.CurrentPrice, 1e-9)
	// A nil field on the new record clears the stored value.
	assert.Nil(t, rows[0].Stock.MarketCap)
}

func TestUpsertMetrics_Idempotent(t *testing.T) {
	st := openTestStore(t)

	metrics := &models.StockMetrics{
		Symbol:       "MSFT",
		EPSGrowthQoQ: floatPtr(12.5),
		RSSpy:        floatPtr(3.1),
		LastUpdated:  NormalizeTime(time.Now()),
	}
	require.NoError(t, metrics.SetEMAData(map[string]float64{"D_9EMA": 410.2}))
	require.NoError(t, st.UpsertMetrics(metrics))

	replacement := &models.StockMetrics{
		Symbol:       "MSFT",
		EPSGrowthQoQ: floatPtr(14.0),
		LastUpdated:  NormalizeTime(time.Now()),
	}
	require.NoError(t, replacement.SetEMAData(map[string]float64{"D_9EMA": 412.0, "W_21EMA": 399.9}))
	require.NoError(t, st.UpsertMetrics(replacement))
	assert.Equal(t, metrics.ID, replacement.ID)

	rows, err := st.StocksWithMetrics()
	require.NoError(t, err)
	assert.Empty(t, rows, "metrics without a stock row are not surfaced")

	require.NoError(t, st.UpsertStock(&models.Stock{Symbol: "MSFT"}))
	rows, err = st.StocksWithMetrics()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Metrics)
	assert.InDelta(t, 14.0, *rows[0].Metrics.EPSGrowthQoQ, 1e-9)
	assert.Nil(t, rows[0].Metrics.RSSpy, "overwrite clears fields the new run could not compute")
	assert.InDelta(t, 412.0, rows[0].Metrics.GetEMAData()["D_9EMA"], 1e-9)
}

func TestUpsertBenchmark_Idempotent(t *testing.T) {
	st := openTestStore(t)

	bench := &models.BenchmarkIndex{Symbol: "SPY", Name: "S&P 500", LastUpdated: NormalizeTime(time.Now())}
	require.NoError(t, bench.SetSeries([]models.BenchmarkBar{{Date: "2024-12-30", Close: 500}}))
	require.NoError(t, st.UpsertBenchmark(bench))

	refreshed := &models.BenchmarkIndex{Symbol: "SPY", Name: "S&P 500", LastUpdated: NormalizeTime(time.Now())}
	require.NoError(t, refreshed.SetSeries([]models.BenchmarkBar{
		{Date: "2024-12-30", Close: 500},
		{Date: "2024-12-31", Close: 505},
	}))
	require.NoError(t, st.UpsertBenchmark(refreshed))
	assert.Equal(t, bench.ID, refreshed.ID)

	stored, err := st.Benchmark("SPY")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, stored.GetSeries(), 2)
}

func TestBenchmark_MissingReturnsNil(t *testing.T) {
	st := openTestStore(t)

	stored, err := st.Benchmark("XLK")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRefreshLogLifecycle(t *testing.T) {
	st := openTestStore(t)

	latest, err := st.LatestRefreshLog()
	require.NoError(t, err)
	assert.Nil(t, latest)

	entry, err := st.StartRefreshLog()
	require.NoError(t, err)
	require.NotZero(t, entry.ID)
	assert.Equal(t, models.RefreshStatusRunning, entry.Status)

	require.NoError(t, st.FinalizeRefreshLog(entry, models.RefreshStatusCompletedWithErrors, 8, 2, "NOPE: all providers exhausted"))

	latest, err = st.LatestRefreshLog()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, entry.ID, latest.ID)
	assert.Equal(t, models.RefreshStatusCompletedWithErrors, latest.Status)
	assert.Equal(t, 10, latest.StocksProcessed)
	assert.Equal(t, 8, latest.StocksSuccessful)
	assert.Equal(t, 2, latest.StocksFailed)
	require.NotNil(t, latest.CompletedAt)
	assert.GreaterOrEqual(t, latest.DurationSeconds, 0.0)
}

func TestNormalizeHelpers(t *testing.T) {
	assert.Nil(t, NormalizeFloat(nil))
	assert.Nil(t, NormalizeInt(nil))

	d := decimal.NewFromFloat(123.456)
	f := NormalizeFloat(&d)
	require.NotNil(t, f)
	assert.InDelta(t, 123.456, *f, 1e-9)

	n := NormalizeInt(&d)
	require.NotNil(t, n)
	assert.Equal(t, int64(123), *n)

	ts := time.Date(2024, 12, 31, 10, 30, 45, 999_000_000, time.FixedZone("X", 3600))
	norm := NormalizeTime(ts)
	assert.Equal(t, time.UTC, norm.Location())
	assert.Zero(t, norm.Nanosecond())
}
