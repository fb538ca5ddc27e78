package store

import (
	"time"

	"stockscreener/models"

	"github.com/shopspring/decimal"
)

// Store is the persistence contract consumed by the refresh pipeline. All
// upserts are idempotent by symbol; refresh logs are append-only.
type Store interface {
	UpsertStock(stock *models.Stock) error
	UpsertMetrics(metrics *models.StockMetrics) error
	UpsertBenchmark(bench *models.BenchmarkIndex) error

	Benchmark(symbol string) (*models.BenchmarkIndex, error)
	StocksWithMetrics() ([]StockWithMetrics, error)

	StartRefreshLog() (*models.RefreshLog, error)
	FinalizeRefreshLog(entry *models.RefreshLog, status string, successful, failed int, errMsg string) error
	LatestRefreshLog() (*models.RefreshLog, error)

	Ping() error
}

// StockWithMetrics joins a stock row with its metrics row for API consumers.
type StockWithMetrics struct {
	Stock   models.Stock         `json:"stock"`
	Metrics *models.StockMetrics `json:"metrics,omitempty"`
}

// Values computed or fetched upstream travel as decimals; everything crossing
// into the store must be a plain numeric type. These helpers are the single
// conversion point applied at the upsert call sites.

// NormalizeFloat converts an optional decimal to a plain float64.
func NormalizeFloat(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f, _ := d.Float64()
	return &f
}

// NormalizeInt converts an optional decimal to a plain int64, truncating any
// fractional part.
func NormalizeInt(d *decimal.Decimal) *int64 {
	if d == nil {
		return nil
	}
	n := d.IntPart()
	return &n
}

// NormalizeTime strips sub-second precision so persisted timestamps are
// portable across drivers.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
