package store

import (
	"errors"
	"fmt"
	"time"

	"stockscreener/models"

	"gorm.io/gorm"
)

// GormStore implements Store on a gorm database (postgres or sqlite).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// UpsertStock inserts or overwrites the stock row keyed by symbol.
func (s *GormStore) UpsertStock(stock *models.Stock) error {
	var existing models.Stock
	err := s.db.Where("symbol = ?", stock.Symbol).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := s.db.Create(stock).Error; err != nil {
			return fmt.Errorf("creating stock %s: %w", stock.Symbol, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up stock %s: %w", stock.Symbol, err)
	}

	existing.CompanyName = stock.CompanyName
	existing.Sector = stock.Sector
	existing.Industry = stock.Industry
	existing.MarketCap = stock.MarketCap
	existing.CurrentPrice = stock.CurrentPrice
	existing.LastUpdated = stock.LastUpdated
	if err := s.db.Save(&existing).Error; err != nil {
		return fmt.Errorf("updating stock %s: %w", stock.Symbol, err)
	}
	stock.ID = existing.ID
	return nil
}

// UpsertMetrics inserts or overwrites the single metrics row for a symbol.
func (s *GormStore) UpsertMetrics(metrics *models.StockMetrics) error {
	var existing models.StockMetrics
	err := s.db.Where("symbol = ?", metrics.Symbol).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := s.db.Create(metrics).Error; err != nil {
			return fmt.Errorf("creating metrics for %s: %w", metrics.Symbol, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up metrics for %s: %w", metrics.Symbol, err)
	}

	existing.StockID = metrics.StockID
	existing.EPSGrowthQoQ = metrics.EPSGrowthQoQ
	existing.EPSGrowthYoY = metrics.EPSGrowthYoY
	existing.LatestQuarterlyEPS = metrics.LatestQuarterlyEPS
	existing.RSSpy = metrics.RSSpy
	existing.RSSector = metrics.RSSector
	existing.EMAData = metrics.EMAData
	existing.EPSHistory = metrics.EPSHistory
	existing.LastUpdated = metrics.LastUpdated
	if err := s.db.Save(&existing).Error; err != nil {
		return fmt.Errorf("updating metrics for %s: %w", metrics.Symbol, err)
	}
	metrics.ID = existing.ID
	return nil
}

// UpsertBenchmark inserts or overwrites the series for one instrument.
func (s *GormStore) UpsertBenchmark(bench *models.BenchmarkIndex) error {
	var existing models.BenchmarkIndex
	err := s.db.Where("symbol = ?", bench.Symbol).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := s.db.Create(bench).Error; err != nil {
			return fmt.Errorf("creating benchmark %s: %w", bench.Symbol, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up benchmark %s: %w", bench.Symbol, err)
	}

	existing.Name = bench.Name
	existing.Series = bench.Series
	existing.LastUpdated = bench.LastUpdated
	if err := s.db.Save(&existing).Error; err != nil {
		return fmt.Errorf("updating benchmark %s: %w", bench.Symbol, err)
	}
	bench.ID = existing.ID
	return nil
}

// Benchmark returns the stored series for one instrument, or nil when none
// has been persisted yet.
func (s *GormStore) Benchmark(symbol string) (*models.BenchmarkIndex, error) {
	var bench models.BenchmarkIndex
	err := s.db.Where("symbol = ?", symbol).First(&bench).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading benchmark %s: %w", symbol, err)
	}
	return &bench, nil
}

// StocksWithMetrics returns every stock joined with its metrics row.
func (s *GormStore) StocksWithMetrics() ([]StockWithMetrics, error) {
	var stocks []models.Stock
	if err := s.db.Order("symbol").Find(&stocks).Error; err != nil {
		return nil, fmt.Errorf("loading stocks: %w", err)
	}
	var metrics []models.StockMetrics
	if err := s.db.Find(&metrics).Error; err != nil {
		return nil, fmt.Errorf("loading metrics: %w", err)
	}

	bySymbol := make(map[string]*models.StockMetrics, len(metrics))
	for i := range metrics {
		bySymbol[metrics[i].Symbol] = &metrics[i]
	}

	out := make([]StockWithMetrics, 0, len(stocks))
	for _, stock := range stocks {
		out = append(out, StockWithMetrics{Stock: stock, Metrics: bySymbol[stock.Symbol]})
	}
	return out, nil
}

// StartRefreshLog appends a new running log row.
func (s *GormStore) StartRefreshLog() (*models.RefreshLog, error) {
	entry := &models.RefreshLog{
		StartedAt: NormalizeTime(time.Now()),
		Status:    models.RefreshStatusRunning,
	}
	if err := s.db.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("creating refresh log: %w", err)
	}
	return entry, nil
}

// FinalizeRefreshLog records the run outcome on the row created at start.
func (s *GormStore) FinalizeRefreshLog(entry *models.RefreshLog, status string, successful, failed int, errMsg string) error {
	now := NormalizeTime(time.Now())
	entry.CompletedAt = &now
	entry.Status = status
	entry.StocksProcessed = successful + failed
	entry.StocksSuccessful = successful
	entry.StocksFailed = failed
	entry.ErrorMessage = errMsg
	entry.DurationSeconds = now.Sub(entry.StartedAt).Seconds()
	if err := s.db.Save(entry).Error; err != nil {
		return fmt.Errorf("finalizing refresh log: %w", err)
	}
	return nil
}

// LatestRefreshLog returns the most recently started run, or nil when the
// history is empty.
func (s *GormStore) LatestRefreshLog() (*models.RefreshLog, error) {
	var entry models.RefreshLog
	err := s.db.Order("started_at DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading refresh log: %w", err)
	}
	return &entry, nil
}

// Ping verifies the underlying connection.
func (s *GormStore) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
