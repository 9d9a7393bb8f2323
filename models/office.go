package models

import (
	"time"
)

// OfficeLocation is a circular geofence. Radius is in meters.
type OfficeLocation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `gorm:"not null;size:200" json:"name"`
	Latitude  float64   `gorm:"not null" json:"latitude"`
	Longitude float64   `gorm:"not null" json:"longitude"`
	Radius    float64   `gorm:"not null" json:"radius"`
	Active    bool      `gorm:"default:true" json:"active"`
}
