package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/mustafarshd/corec-tracker/config"
	"github.com/mustafarshd/corec-tracker/internal/analyze"
	"github.com/mustafarshd/corec-tracker/internal/collector"
	"github.com/mustafarshd/corec-tracker/internal/mw"
	"github.com/mustafarshd/corec-tracker/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, analyzer *analyze.Analyzer, col *collector.Collector, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, analyzer, col, &cfg.Analysis)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Initialize middleware
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// GET /api/facilities
		api.GET("/facilities", handler.GetFacilities)

		// GET /api/facilities/{facility_id}/current
		// Not cached: callers expect the freshest reading.
		api.GET("/facilities/:facility_id/current", handler.GetCurrent)

		// GET /api/facilities/{facility_id}/history
		api.GET("/facilities/:facility_id/history", caching, handler.GetHistory)

		// GET /api/facilities/{facility_id}/recommendations
		api.GET("/facilities/:facility_id/recommendations", caching, handler.GetRecommendations)

		// Collector controls
		api.GET("/collector/status", handler.GetCollectorStatus)
		api.POST("/collector/start", handler.StartCollector)
		api.POST("/collector/stop", handler.StopCollector)
	}

	return r
}
