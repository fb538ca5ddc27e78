package routes

import (
	"net/http"

	"stockscreener/controllers"
	"stockscreener/services/orchestrator"
	"stockscreener/services/store"

	"github.com/gin-gonic/gin"
)

// SetupRoutes wires all API routes.
func SetupRoutes(router *gin.Engine, st store.Store, orch *orchestrator.Orchestrator, symbolsFile string) {
	stockController := controllers.NewStockController(st)
	refreshController := controllers.NewRefreshController(st, orch, symbolsFile)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.GET("/stocks", stockController.GetStocks)
		api.POST("/refresh", refreshController.TriggerRefresh)
		api.GET("/refresh/status", refreshController.GetRefreshStatus)
	}
}
