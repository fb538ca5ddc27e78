package providers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one (date, close) observation of a price series.
type Bar struct {
	Date  time.Time
	Close decimal.Decimal
}

// EPSQuarter is one quarterly EPS observation.
type EPSQuarter struct {
	Date time.Time
	EPS  decimal.Decimal
}

// RawStockRecord is the uninterpreted payload a provider returns for one
// symbol. Every field except Symbol is optional; a nil pointer or empty slice
// means "unknown", never zero.
type RawStockRecord struct {
	Symbol      string
	CompanyName string
	Sector      string
	Industry    string
	MarketCap   *decimal.Decimal
	Price       *decimal.Decimal

	// Quarterly EPS series, oldest first.
	EPSQuarters []EPSQuarter

	// Close series per timeframe, oldest first.
	Daily   []Bar
	Weekly  []Bar
	Monthly []Bar
}

// BenchmarkSeries is the close series for one benchmark instrument.
type BenchmarkSeries struct {
	Symbol string
	Name   string
	Bars   []Bar
}

// BenchmarkOnlyProvider marks providers that serve benchmark instruments but
// not per-stock fetches. The manager skips them in the stock chain without
// spending a rate-limit slot.
type BenchmarkOnlyProvider interface {
	BenchmarkOnly() bool
}

// Provider is a single external data source. Implementations must represent
// every failure mode as a *FetchError; they never panic across this boundary.
type Provider interface {
	Name() string
	Available() bool
	FetchStock(ctx context.Context, symbol string) (*RawStockRecord, error)
	FetchBenchmark(ctx context.Context, symbol string) (*BenchmarkSeries, error)
	// MinInterval is the minimum spacing between calls to this provider,
	// enforced globally by the manager. Zero means unthrottled.
	MinInterval() time.Duration
}
