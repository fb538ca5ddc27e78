package models

import "time"

// Refresh run statuses.
const (
	RefreshStatusRunning             = "running"
	RefreshStatusCompleted           = "completed"
	RefreshStatusCompletedWithErrors = "completed_with_errors"
	RefreshStatusFailed              = "failed"
)

// RefreshLog records one orchestration run. Rows are append-only; a row is
// created when the run starts and finalized when it ends.
type RefreshLog struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	Status           string     `gorm:"size:30" json:"status"`
	StocksProcessed  int        `json:"stocks_processed"`
	StocksSuccessful int        `json:"stocks_successful"`
	StocksFailed     int        `json:"stocks_failed"`
	ErrorMessage     string     `gorm:"type:text" json:"error_message,omitempty"`
	DurationSeconds  float64    `json:"duration_seconds"`
}
