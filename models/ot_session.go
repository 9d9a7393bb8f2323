package models

import (
	"time"
)

type OTType string

const (
	OTEarlyArrival  OTType = "early_arrival"
	OTLateDeparture OTType = "late_departure"
	OTWeekend       OTType = "weekend"
	OTHoliday       OTType = "holiday"
)

func (t OTType) Valid() bool {
	switch t {
	case OTEarlyArrival, OTLateDeparture, OTWeekend, OTHoliday:
		return true
	}
	return false
}

type SessionStatus string

const (
	StatusInProgress    SessionStatus = "in_progress"
	StatusCompleted     SessionStatus = "completed"
	StatusPendingReview SessionStatus = "PENDING_REVIEW"
	StatusApproved      SessionStatus = "APPROVED"
	StatusAdjusted      SessionStatus = "ADJUSTED"
	StatusRejected      SessionStatus = "REJECTED"
)

// Terminal statuses are final: only the review that produced them may set hours.
func (s SessionStatus) Terminal() bool {
	return s == StatusApproved || s == StatusAdjusted || s == StatusRejected
}

// Reviewable statuses wait for an admin decision.
func (s SessionStatus) Reviewable() bool {
	return s == StatusPendingReview || s == StatusCompleted
}

// Payable statuses count towards payroll hours.
func (s SessionStatus) Payable() bool {
	return s == StatusApproved || s == StatusAdjusted
}

// Evidence is the proof captured when a session starts or ends.
type Evidence struct {
	ImageRef  string   `gorm:"size:500" json:"image_ref,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Address   string   `gorm:"size:500" json:"address,omitempty"`
}

func (e Evidence) HasLocation() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// OTSession is one claimed block of overtime. Rows are append-only per
// attendance record and never deleted. The schema carries a partial unique
// index allowing a single in_progress row per (user_id, date).
type OTSession struct {
	ID            uint          `gorm:"primaryKey" json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	SessionID     string        `gorm:"uniqueIndex;not null;size:36" json:"session_id"`
	AttendanceID  uint          `gorm:"not null;uniqueIndex:idx_ot_sessions_attendance_number,priority:1" json:"attendance_id"`
	SessionNumber int           `gorm:"not null;uniqueIndex:idx_ot_sessions_attendance_number,priority:2" json:"session_number"`
	UserID        uint          `gorm:"not null;index" json:"user_id"`
	Date          time.Time     `gorm:"not null;type:date;index" json:"date"`
	OTType        OTType        `gorm:"not null;size:20" json:"ot_type"`
	StartTime     time.Time     `gorm:"not null" json:"start_time"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	OTHours       float64       `gorm:"not null;default:0" json:"ot_hours"`
	Start         Evidence      `gorm:"embedded;embeddedPrefix:start_" json:"start_evidence"`
	End           Evidence      `gorm:"embedded;embeddedPrefix:end_" json:"end_evidence"`
	Status        SessionStatus `gorm:"not null;size:20;index" json:"status"`
	PayrollLocked bool          `gorm:"not null;default:false" json:"payroll_locked"`

	AutoClosedAt   *time.Time `json:"auto_closed_at,omitempty"`
	AutoClosedNote string     `gorm:"size:1000" json:"auto_closed_note,omitempty"`

	ReviewedBy      *uint         `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time    `json:"reviewed_at,omitempty"`
	ReviewAction    SessionStatus `gorm:"size:20" json:"review_action,omitempty"`
	ReviewNotes     string        `gorm:"size:1000" json:"review_notes,omitempty"`
	OriginalOTHours *float64      `json:"original_ot_hours,omitempty"`
	AdjustedOTHours *float64      `json:"adjusted_ot_hours,omitempty"`
}

func (OTSession) TableName() string {
	return "ot_sessions"
}

func (s *OTSession) AutoClosed() bool {
	return s.AutoClosedAt != nil
}
