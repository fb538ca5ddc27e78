package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Stock holds the basic listing fields for one equity.
type Stock struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Symbol       string    `gorm:"uniqueIndex;not null" json:"symbol"`
	CompanyName  string    `json:"company_name"`
	Sector       string    `json:"sector"`
	Industry     string    `json:"industry"`
	MarketCap    *int64    `json:"market_cap"`
	CurrentPrice *float64  `json:"current_price"`
	LastUpdated  time.Time `json:"last_updated"`
	CreatedAt    time.Time `json:"created_at"`
}

// StockMetrics holds the computed indicators for one symbol. One live row per
// symbol; refresh runs overwrite it in place.
type StockMetrics struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Symbol  string `gorm:"uniqueIndex;not null" json:"symbol"`
	StockID uint   `gorm:"index" json:"stock_id"`

	// EPS growth
	EPSGrowthQoQ       *float64 `json:"eps_growth_qoq"`
	EPSGrowthYoY       *float64 `json:"eps_growth_yoy"`
	LatestQuarterlyEPS *float64 `json:"latest_quarterly_eps"`

	// Relative strength vs broad market (SPY) and sector ETF
	RSSpy    *float64 `json:"rs_spy"`
	RSSector *float64 `json:"rs_sector"`

	// EMA set and EPS history, serialized as JSON
	EMAData    string `gorm:"type:text" json:"-"`
	EPSHistory string `gorm:"type:text" json:"-"`

	LastUpdated time.Time `json:"last_updated"`
}

// GetEMAData parses the serialized EMA set. Keys are timeframe-prefixed,
// e.g. "D_9EMA", "W_21EMA", "M_9EMA".
func (m *StockMetrics) GetEMAData() map[string]float64 {
	if m.EMAData == "" {
		return map[string]float64{}
	}
	var out map[string]float64
	if err := json.Unmarshal([]byte(m.EMAData), &out); err != nil {
		return map[string]float64{}
	}
	return out
}

// SetEMAData stores the EMA set as JSON.
func (m *StockMetrics) SetEMAData(emas map[string]float64) error {
	b, err := json.Marshal(emas)
	if err != nil {
		return err
	}
	m.EMAData = string(b)
	return nil
}

// QuarterlyEPS is one quarterly EPS observation.
type QuarterlyEPS struct {
	Date string  `json:"date"` // YYYY-MM-DD
	EPS  float64 `json:"eps"`
}

// GetEPSHistory parses the serialized quarterly EPS series, oldest first.
func (m *StockMetrics) GetEPSHistory() []QuarterlyEPS {
	if m.EPSHistory == "" {
		return nil
	}
	var out []QuarterlyEPS
	if err := json.Unmarshal([]byte(m.EPSHistory), &out); err != nil {
		return nil
	}
	return out
}

// SetEPSHistory stores the quarterly EPS series as JSON.
func (m *StockMetrics) SetEPSHistory(history []QuarterlyEPS) error {
	b, err := json.Marshal(history)
	if err != nil {
		return err
	}
	m.EPSHistory = string(b)
	return nil
}

// MigrateModels runs database migrations for all persisted models.
func MigrateModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Stock{},
		&StockMetrics{},
		&BenchmarkIndex{},
		&RefreshLog{},
	)
}
