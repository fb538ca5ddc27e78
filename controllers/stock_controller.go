package controllers

import (
	"net/http"

	"stockscreener/services/store"

	"github.com/gin-gonic/gin"
)

// StockController serves the screener read API.
type StockController struct {
	store store.Store
}

// NewStockController creates a new stock controller.
func NewStockController(st store.Store) *StockController {
	return &StockController{store: st}
}

// GetStocks returns all stocks joined with their computed metrics.
// GET /api/v1/stocks
func (sc *StockController) GetStocks(c *gin.Context) {
	rows, err := sc.store.StocksWithMetrics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stocks"})
		return
	}

	type metricsView struct {
		EPSGrowthQoQ       *float64           `json:"eps_growth_qoq"`
		EPSGrowthYoY       *float64           `json:"eps_growth_yoy"`
		LatestQuarterlyEPS *float64           `json:"latest_quarterly_eps"`
		RSSpy              *float64           `json:"rs_spy"`
		RSSector           *float64           `json:"rs_sector"`
		EMAs               map[string]float64 `json:"emas"`
		LatestQuarters     []float64          `json:"latest_quarters"`
	}

	data := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		item := gin.H{"stock": row.Stock}
		if row.Metrics != nil {
			view := metricsView{
				EPSGrowthQoQ:       row.Metrics.EPSGrowthQoQ,
				EPSGrowthYoY:       row.Metrics.EPSGrowthYoY,
				LatestQuarterlyEPS: row.Metrics.LatestQuarterlyEPS,
				RSSpy:              row.Metrics.RSSpy,
				RSSector:           row.Metrics.RSSector,
				EMAs:               row.Metrics.GetEMAData(),
			}
			for _, q := range row.Metrics.GetEPSHistory() {
				view.LatestQuarters = append(view.LatestQuarters, q.EPS)
			}
			if n := len(view.LatestQuarters); n > 4 {
				view.LatestQuarters = view.LatestQuarters[n-4:]
			}
			item["metrics"] = view
		}
		data = append(data, item)
	}

	c.JSON(http.StatusOK, gin.H{"data": data, "count": len(data)})
}
