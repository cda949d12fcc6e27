package model

import "time"

// FacilityStatus classifies one scraped reading.
type FacilityStatus string

const (
	StatusOpen    FacilityStatus = "OPEN"
	StatusClosed  FacilityStatus = "CLOSED"
	StatusUnknown FacilityStatus = "UNKNOWN"
)

// Observation is a single occupancy reading for a facility. Rows are
// append-only; corrections are new rows, never updates.
type Observation struct {
	ID          int64     `gorm:"autoIncrement;primaryKey" json:"-"`
	FacilityID  string    `gorm:"size:64;not null;uniqueIndex:idx_observation_facility_time" json:"facilityId"`
	CollectedAt time.Time `gorm:"not null;uniqueIndex:idx_observation_facility_time" json:"collectedAt"`
	// OccupancyCount is nil when the source only published a percentage.
	OccupancyCount *int `json:"occupancyCount"`
	// OccupancyPercent is count/capacity*100 when both are known, or the
	// percentage scraped directly from the page.
	OccupancyPercent *float64       `json:"occupancyPercent"`
	Status           FacilityStatus `gorm:"size:16;not null" json:"status"`
}

// DerivePercent fills OccupancyPercent from count and capacity when both are
// known and the percent was not already set by the source.
func (o *Observation) DerivePercent(capacity *int) {
	if o.OccupancyPercent != nil || o.OccupancyCount == nil {
		return
	}
	if capacity == nil || *capacity <= 0 {
		return
	}
	pct := float64(*o.OccupancyCount) / float64(*capacity) * 100
	o.OccupancyPercent = &pct
}
