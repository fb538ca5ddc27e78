package models

import (
	"encoding/json"
	"time"
)

// BenchmarkBar is one (date, close) observation of a benchmark series.
type BenchmarkBar struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
}

// BenchmarkIndex stores the price series for one benchmark instrument
// (broad-market or sector ETF). One row per instrument, refreshed per run.
type BenchmarkIndex struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Symbol      string    `gorm:"uniqueIndex;not null" json:"symbol"`
	Name        string    `json:"name"`
	Series      string    `gorm:"type:text" json:"-"`
	LastUpdated time.Time `json:"last_updated"`
}

// GetSeries parses the stored price series, oldest first.
func (b *BenchmarkIndex) GetSeries() []BenchmarkBar {
	if b.Series == "" {
		return nil
	}
	var out []BenchmarkBar
	if err := json.Unmarshal([]byte(b.Series), &out); err != nil {
		return nil
	}
	return out
}

// SetSeries stores the price series as JSON.
func (b *BenchmarkIndex) SetSeries(bars []BenchmarkBar) error {
	data, err := json.Marshal(bars)
	if err != nil {
		return err
	}
	b.Series = string(data)
	return nil
}
