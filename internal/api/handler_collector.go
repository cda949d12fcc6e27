package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mustafarshd/corec-tracker/internal/collector"
)

// GetCollectorStatus handles GET /api/collector/status.
func (h *Handler) GetCollectorStatus(c *gin.Context) {
	status := h.collector.Status()
	if status.LastRun == nil {
		// A freshly started process has no in-memory run yet; fall back to
		// the most recent persisted run so restarts do not blank the surface.
		runs, err := h.store.Runs(c.Request.Context(), 1)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load collection runs"})
			return
		}
		if len(runs) == 1 {
			status.LastRun = &collector.RunSummary{
				StartedAt:  runs[0].StartedAt,
				FinishedAt: runs[0].FinishedAt,
				Succeeded:  runs[0].Succeeded,
				Failed:     runs[0].Failed,
				Outcomes:   runs[0].Outcomes,
			}
		}
	}
	c.JSON(http.StatusOK, status)
}

// StartCollector handles POST /api/collector/start. Starting an already
// running collector is a no-op and still reports success.
func (h *Handler) StartCollector(c *gin.Context) {
	h.collector.Start()
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// StopCollector handles POST /api/collector/stop. The call returns once any
// in-flight collection pass has finished.
func (h *Handler) StopCollector(c *gin.Context) {
	h.collector.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}
