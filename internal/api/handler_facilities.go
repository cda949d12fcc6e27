package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mustafarshd/corec-tracker/internal/model"
)

// facilityResponse is one registry entry with its most recent observation.
type facilityResponse struct {
	model.Facility
	Latest *model.Observation `json:"latest,omitempty"`
}

// GetFacilities handles GET /api/facilities.
func (h *Handler) GetFacilities(c *gin.Context) {
	facilities := h.store.Registry().All()
	response := make([]facilityResponse, 0, len(facilities))
	for _, facility := range facilities {
		latest, err := h.store.Latest(c.Request.Context(), facility.ID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve latest observation"})
			return
		}
		response = append(response, facilityResponse{Facility: facility, Latest: latest})
	}
	c.JSON(http.StatusOK, response)
}

// GetCurrent handles GET /api/facilities/{facility_id}/current.
func (h *Handler) GetCurrent(c *gin.Context) {
	facilityID := c.Param("facility_id")
	if _, ok := h.store.Registry().Lookup(facilityID); !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Unknown facility"})
		return
	}

	latest, err := h.store.Latest(c.Request.Context(), facilityID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve latest observation"})
		return
	}
	if latest == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "No observations yet"})
		return
	}
	c.JSON(http.StatusOK, latest)
}

// GetHistory handles GET /api/facilities/{facility_id}/history?days=N.
func (h *Handler) GetHistory(c *gin.Context) {
	facilityID := c.Param("facility_id")
	if _, ok := h.store.Registry().Lookup(facilityID); !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Unknown facility"})
		return
	}

	days, ok := h.lookbackDays(c)
	if !ok {
		return
	}

	to := time.Now().UTC()
	from := to.Add(-time.Duration(days) * 24 * time.Hour)
	observations, err := h.store.Query(c.Request.Context(), facilityID, from, to)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to query observations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"facilityId": facilityID,
		"days":       days,
		"dataPoints": len(observations),
		"data":       observations,
	})
}

// lookbackDays parses the optional "days" query parameter, falling back to
// the configured default. Writes the error response itself on bad input.
func (h *Handler) lookbackDays(c *gin.Context) (int, bool) {
	raw := c.Query("days")
	if raw == "" {
		return h.analysis.DefaultLookbackDays, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'days' parameter"})
		return 0, false
	}
	return days, true
}
