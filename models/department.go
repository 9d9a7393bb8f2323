package models

import (
	"time"

	"otengine/timeutil"
)

// Department holds the regular working hours used by the early-arrival rule.
// Times are stored as "09:00 AM" strings and parsed through timeutil.
type Department struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Name         string    `gorm:"uniqueIndex;not null;size:100" json:"name"`
	CheckInTime  string    `gorm:"not null;size:16;default:'09:00 AM'" json:"check_in_time"`
	CheckOutTime string    `gorm:"not null;size:16;default:'06:00 PM'" json:"check_out_time"`
}

func (d *Department) CheckInClock() (timeutil.Clock, error) {
	return timeutil.ParseClock(d.CheckInTime)
}

func (d *Department) CheckOutClock() (timeutil.Clock, error) {
	return timeutil.ParseClock(d.CheckOutTime)
}
