package model

import "time"

// Facility represents one tracked recreation facility.
type Facility struct {
	ID          string `gorm:"primaryKey;size:64" json:"id"`
	DisplayName string `gorm:"size:128;not null" json:"displayName"`
	// Capacity is nil when the facility does not publish one.
	Capacity  *int      `json:"capacity"`
	CreatedAt time.Time `gorm:"not null" json:"-"`
	UpdatedAt time.Time `gorm:"not null" json:"-"`
}
