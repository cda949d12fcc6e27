package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mustafarshd/corec-tracker/config"
	"github.com/mustafarshd/corec-tracker/internal/analyze"
	"github.com/mustafarshd/corec-tracker/internal/api"
	"github.com/mustafarshd/corec-tracker/internal/collector"
	"github.com/mustafarshd/corec-tracker/internal/db"
	"github.com/mustafarshd/corec-tracker/internal/metrics"
	"github.com/mustafarshd/corec-tracker/internal/source"
	"github.com/mustafarshd/corec-tracker/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "corec-tracker ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	loc, err := time.LoadLocation(cfg.Collector.Timezone)
	if err != nil {
		logger.Fatalf("invalid timezone %q: %v", cfg.Collector.Timezone, err)
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	registry, err := store.NewRegistry(cfg.Facilities)
	if err != nil {
		logger.Fatalf("invalid facility configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.SeedFacilities(ctx, gormDB, registry); err != nil {
		logger.Fatalf("failed to seed facilities: %v", err)
	}

	appStore := store.NewGormStore(gormDB, registry)
	logger.Printf("data store initialized, tracking %d facilities", registry.Len())

	m := metrics.New()
	clock := clockwork.NewRealClock()

	recwell := source.NewRecWell(&cfg.Source, registry, clock)

	// Start the collection loop in the background
	col := collector.New(&cfg.Collector, appStore, recwell, clock, m)
	if cfg.Collector.Enabled {
		col.Start()
		logger.Printf("collector started, interval %s", cfg.Collector.Interval)
	} else {
		logger.Println("collector disabled, start it via POST /api/collector/start")
	}

	analyzer := analyze.New(appStore, &cfg.Analysis, loc, clock)

	// Initialize router
	router := api.NewRouter(appStore, analyzer, col, cfg)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Let any in-flight collection pass finish before closing the server.
	col.Stop()
	logger.Println("collector stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
