package models

import (
	"time"

	"gorm.io/datatypes"
)

// AttendanceRecord is one user's calendar day. Date is stored as midnight UTC
// of the local calendar day (see timeutil.CalendarDate).
type AttendanceRecord struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	UserID       uint       `gorm:"not null;uniqueIndex:idx_attendance_user_date,priority:1" json:"user_id"`
	User         *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Date         time.Time  `gorm:"not null;type:date;uniqueIndex:idx_attendance_user_date,priority:2" json:"date"`
	CheckInTime  *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime *time.Time `json:"check_out_time,omitempty"`

	CheckIn          Evidence       `gorm:"embedded;embeddedPrefix:check_in_" json:"check_in_evidence"`
	CheckOut         Evidence       `gorm:"embedded;embeddedPrefix:check_out_" json:"check_out_evidence"`
	CheckInLocation  datatypes.JSON `json:"check_in_location,omitempty"`
	CheckOutLocation datatypes.JSON `json:"check_out_location,omitempty"`

	// TotalOTHours is the sum of payable (approved or adjusted) session hours.
	TotalOTHours float64     `gorm:"not null;default:0" json:"total_ot_hours"`
	Sessions     []OTSession `gorm:"foreignKey:AttendanceID" json:"ot_sessions"`
}

// AttendancePatch holds the mutable columns of a record. Nil fields are left alone.
type AttendancePatch struct {
	CheckInTime      *time.Time
	CheckOutTime     *time.Time
	CheckIn          *Evidence
	CheckOut         *Evidence
	CheckInLocation  datatypes.JSON
	CheckOutLocation datatypes.JSON
	TotalOTHours     *float64
}

// OpenSession returns the in_progress session of the day, if any.
func (a *AttendanceRecord) OpenSession() *OTSession {
	for i := range a.Sessions {
		if a.Sessions[i].Status == StatusInProgress {
			return &a.Sessions[i]
		}
	}
	return nil
}

func (a *AttendanceRecord) NextSessionNumber() int {
	next := 1
	for _, s := range a.Sessions {
		if s.SessionNumber >= next {
			next = s.SessionNumber + 1
		}
	}
	return next
}

// PayableHours recomputes TotalOTHours from the sessions.
func (a *AttendanceRecord) PayableHours() float64 {
	var total float64
	for _, s := range a.Sessions {
		if s.Status.Payable() {
			total += s.OTHours
		}
	}
	return total
}
