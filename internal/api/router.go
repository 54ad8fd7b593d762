package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/region-insights-go/internal/handler"
	"github.com/jengzang/region-insights-go/internal/middleware"
	"github.com/jengzang/region-insights-go/internal/observability"
	"github.com/jengzang/region-insights-go/internal/service"
)

// Deps are the collaborators the router wires into handlers
type Deps struct {
	Insights *service.InsightsService
	Metrics  *observability.Metrics
	Limiter  *middleware.RateLimiter
	Logger   *slog.Logger
}

// SetupRouter builds the read-only API
func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(d.Logger))

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if run, err := d.Insights.LatestRun(c.Request.Context()); err == nil {
			body["run_id"] = run.ID
			body["completed_at"] = run.CompletedAt
		} else {
			body["status"] = "waiting_for_snapshot"
		}
		c.JSON(http.StatusOK, body)
	})
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	insightsHandler := handler.NewInsightsHandler(d.Insights)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(d.Limiter))
	{
		api.GET("/run", insightsHandler.GetRun)

		states := api.Group("/states")
		{
			states.GET("", insightsHandler.ListStates)
			states.GET("/:state/districts", insightsHandler.GetStateDistricts)
		}

		api.GET("/regions/:state/:district", insightsHandler.GetRegion)
		api.GET("/comparison", insightsHandler.Compare)

		anomalies := api.Group("/anomalies")
		{
			anomalies.GET("/top", insightsHandler.TopAnomalies)
			anomalies.GET("/summary", insightsHandler.AnomalySummary)
		}

		api.GET("/coverage/:level", insightsHandler.GetCoverage)
		api.GET("/patterns/:name", insightsHandler.GetPattern)
		api.GET("/locate", insightsHandler.Locate)
	}

	return r
}
