package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mustafarshd/corec-tracker/internal/analyze"
	"github.com/mustafarshd/corec-tracker/internal/store"
)

// GetRecommendations handles GET /api/facilities/{facility_id}/recommendations?days=N.
func (h *Handler) GetRecommendations(c *gin.Context) {
	facilityID := c.Param("facility_id")

	days, ok := h.lookbackDays(c)
	if !ok {
		return
	}

	rec, err := h.analyzer.Recommend(c.Request.Context(), facilityID, time.Duration(days)*24*time.Hour)
	switch {
	case errors.Is(err, store.ErrUnknownFacility):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Unknown facility"})
		return
	case errors.Is(err, analyze.ErrInsufficientData):
		// Expected for newly tracked facilities, distinct from a server fault.
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error": "Not enough history to recommend times yet",
		})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute recommendation"})
		return
	}

	c.JSON(http.StatusOK, rec)
}
