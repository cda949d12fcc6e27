package model

import "time"

// CollectionRun records one collector pass over the registry.
type CollectionRun struct {
	ID         int64     `gorm:"autoIncrement;primaryKey" json:"id"`
	StartedAt  time.Time `gorm:"not null;index" json:"startedAt"`
	FinishedAt time.Time `gorm:"not null" json:"finishedAt"`
	Succeeded  int       `gorm:"not null" json:"succeeded"`
	Failed     int       `gorm:"not null" json:"failed"`

	// Associations
	Outcomes []CollectionOutcome `gorm:"foreignKey:RunID" json:"outcomes"`
}

// CollectionOutcome is the per-facility result of one pass.
type CollectionOutcome struct {
	ID         int64  `gorm:"autoIncrement;primaryKey" json:"-"`
	RunID      int64  `gorm:"not null;index" json:"-"`
	FacilityID string `gorm:"size:64;not null" json:"facilityId"`
	Success    bool   `gorm:"not null" json:"success"`
	// Error holds the failure detail; empty on success.
	Error string `gorm:"size:512" json:"error,omitempty"`
}
