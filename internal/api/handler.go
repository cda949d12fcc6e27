package api

import (
	"github.com/mustafarshd/corec-tracker/config"
	"github.com/mustafarshd/corec-tracker/internal/analyze"
	"github.com/mustafarshd/corec-tracker/internal/collector"
	"github.com/mustafarshd/corec-tracker/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	analyzer  *analyze.Analyzer
	collector *collector.Collector
	analysis  *config.AnalysisConfig
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, a *analyze.Analyzer, c *collector.Collector, analysis *config.AnalysisConfig) *Handler {
	return &Handler{
		store:     s,
		analyzer:  a,
		collector: c,
		analysis:  analysis,
	}
}
