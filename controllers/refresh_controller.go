package controllers

import (
	"context"
	"net/http"
	"sync/atomic"

	"stockscreener/services/orchestrator"
	"stockscreener/services/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RefreshController triggers refresh runs and reports their status.
type RefreshController struct {
	store        store.Store
	orchestrator *orchestrator.Orchestrator
	symbolsFile  string
	running      atomic.Bool
}

// NewRefreshController creates a new refresh controller.
func NewRefreshController(st store.Store, orch *orchestrator.Orchestrator, symbolsFile string) *RefreshController {
	return &RefreshController{store: st, orchestrator: orch, symbolsFile: symbolsFile}
}

// TriggerRefresh starts a refresh run in the background. At most one run is
// in flight at a time; concurrent triggers get 409.
// POST /api/v1/refresh
func (rc *RefreshController) TriggerRefresh(c *gin.Context) {
	universe, err := orchestrator.LoadUniverse(rc.symbolsFile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !rc.running.CompareAndSwap(false, true) {
		c.JSON(http.StatusConflict, gin.H{"error": "A refresh run is already in progress"})
		return
	}

	go func() {
		defer rc.running.Store(false)
		if _, err := rc.orchestrator.Run(context.Background(), universe); err != nil {
			log.Error().Err(err).Msg("Refresh run failed to start")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Refresh started",
		"symbols": len(universe),
	})
}

// GetRefreshStatus returns the latest refresh log entry.
// GET /api/v1/refresh/status
func (rc *RefreshController) GetRefreshStatus(c *gin.Context) {
	entry, err := rc.store.LatestRefreshLog()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load refresh status"})
		return
	}
	if entry == nil {
		c.JSON(http.StatusOK, gin.H{"status": "no_refresh"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           entry.Status,
		"started_at":       entry.StartedAt,
		"completed_at":     entry.CompletedAt,
		"successful_count": entry.StocksSuccessful,
		"failed_count":     entry.StocksFailed,
		"error_message":    entry.ErrorMessage,
		"duration_seconds": entry.DurationSeconds,
		"in_progress":      rc.running.Load(),
	})
}
