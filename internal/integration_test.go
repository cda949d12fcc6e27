package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mustafarshd/corec-tracker/config"
	"github.com/mustafarshd/corec-tracker/internal/analyze"
	"github.com/mustafarshd/corec-tracker/internal/api"
	"github.com/mustafarshd/corec-tracker/internal/collector"
	"github.com/mustafarshd/corec-tracker/internal/db"
	"github.com/mustafarshd/corec-tracker/internal/metrics"
	"github.com/mustafarshd/corec-tracker/internal/model"
	"github.com/mustafarshd/corec-tracker/internal/source"
	"github.com/mustafarshd/corec-tracker/internal/store"
)

const recwellPage = `<html><body>
<div class="rw-c2c-feed">
  <div class="rw-c2c-feed__location">
    <div class="rw-c2c-feed__location--name">CoRec</div>
    <div class="rw-c2c-feed__about--capacity">Capacity: 45/200 // 22.5%</div>
  </div>
  <div class="rw-c2c-feed__location">
    <div class="rw-c2c-feed__location--name">TREC</div>
    <div class="rw-c2c-feed__about--capacity">Closed</div>
  </div>
</div>
</body></html>`

// TestCollectionLifecycle drives the whole pipeline through the HTTP API:
// start the collector against a fake RecWell page, wait for the pass to land
// in the store, then read the current reading and a recommendation back out.
func TestCollectionLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(recwellPage))
	}))
	defer upstream.Close()

	capacity := 200
	cfg := &config.Config{
		Server: config.ServerConfig{
			RateLimitPerSec: 1000,
			RateLimitBurst:  1000,
			CacheTTLSeconds: 1,
		},
		Collector: config.CollectorConfig{
			Interval:     15 * time.Minute,
			FetchTimeout: 5 * time.Second,
			Concurrency:  2,
			Timezone:     "America/Indiana/Indianapolis",
		},
		Source: config.SourceConfig{
			URL:                 upstream.URL,
			PageCacheTTLSeconds: 30,
		},
		Analysis: config.AnalysisConfig{
			MinSamples:          1,
			ConfidentSamples:    2,
			TopSlots:            5,
			DefaultLookbackDays: 7,
		},
		Facilities: []config.FacilityConfig{
			{ID: "corec", DisplayName: "CoRec", Capacity: &capacity},
			{ID: "trec", DisplayName: "TREC"},
		},
	}

	gormDB, err := db.Init(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:integration_test?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()

	registry, err := store.NewRegistry(cfg.Facilities)
	require.NoError(t, err)
	require.NoError(t, store.SeedFacilities(context.Background(), gormDB, registry))

	appStore := store.NewGormStore(gormDB, registry)
	clock := clockwork.NewRealClock()
	loc, err := time.LoadLocation(cfg.Collector.Timezone)
	require.NoError(t, err)

	recwell := source.NewRecWell(&cfg.Source, registry, clock)
	col := collector.New(&cfg.Collector, appStore, recwell, clock, metrics.NewUnregistered())
	defer col.Stop()
	analyzer := analyze.New(appStore, &cfg.Analysis, loc, clock)
	router := api.NewRouter(appStore, analyzer, col, cfg)

	get := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", target, nil)
		router.ServeHTTP(w, req)
		return w
	}

	// Start the collector through the API, like an operator would.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/collector/start", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// The first pass fires immediately; wait for its rows to land.
	require.Eventually(t, func() bool {
		return get("/api/facilities/corec/current").Code == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	var current model.Observation
	resp := get("/api/facilities/corec/current")
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &current))
	assert.Equal(t, model.StatusOpen, current.Status)
	require.NotNil(t, current.OccupancyCount)
	assert.Equal(t, 45, *current.OccupancyCount)
	require.NotNil(t, current.OccupancyPercent)
	assert.Equal(t, 22.5, *current.OccupancyPercent)

	resp = get("/api/facilities/trec/current")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &current))
	assert.Equal(t, model.StatusClosed, current.Status)

	// One pass, one upstream page fetch: the open reading feeds straight
	// into a recommendation.
	resp = get("/api/facilities/corec/recommendations")
	require.Equal(t, http.StatusOK, resp.Code)
	var rec analyze.Recommendation
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &rec))
	assert.Equal(t, 1, rec.SampleCount)
	require.Len(t, rec.BestTimes, 1)
	assert.Equal(t, 22.5, rec.BestTimes[0].MeanPercent)
	assert.True(t, rec.BestTimes[0].LowConfidence)

	// The closed reading is excluded from analysis, so TREC has no usable
	// history yet.
	resp = get("/api/facilities/trec/recommendations")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	// Stop and confirm the lifecycle lands in STOPPED.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/collector/stop", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var status collector.Status
	resp = get("/api/collector/status")
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &status))
	assert.Equal(t, collector.StateStopped, status.State)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, 2, status.LastRun.Succeeded)
	assert.Equal(t, 0, status.LastRun.Failed)
}
