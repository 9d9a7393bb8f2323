package models

import (
	"time"
)

type PayrollStatus string

const (
	PayrollOpen      PayrollStatus = "open"
	PayrollLocked    PayrollStatus = "locked"
	PayrollProcessed PayrollStatus = "processed"
)

// Frozen reports whether attendance and OT data in the period are immutable.
func (s PayrollStatus) Frozen() bool {
	return s == PayrollLocked || s == PayrollProcessed
}

type PayrollPeriod struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Month        int           `gorm:"not null;uniqueIndex:idx_payroll_month_year,priority:1" json:"month"`
	Year         int           `gorm:"not null;uniqueIndex:idx_payroll_month_year,priority:2" json:"year"`
	Status       PayrollStatus `gorm:"not null;size:20;default:'open'" json:"status"`
	LockedAt     *time.Time    `json:"locked_at,omitempty"`
	LockedBy     *uint         `json:"locked_by,omitempty"`
	UnlockedAt   *time.Time    `json:"unlocked_at,omitempty"`
	UnlockedBy   *uint         `json:"unlocked_by,omitempty"`
	UnlockReason string        `gorm:"size:1000" json:"unlock_reason,omitempty"`
	ProcessedAt  *time.Time    `json:"processed_at,omitempty"`
	ProcessedBy  *uint         `json:"processed_by,omitempty"`
}

// PayrollSummaryRow is one employee's line in a period export.
type PayrollSummaryRow struct {
	UserID         uint    `json:"user_id"`
	Employee       string  `json:"employee"`
	Department     string  `json:"department"`
	Sessions       int     `json:"sessions"`
	PendingReview  int     `json:"pending_review"`
	PayableOTHours float64 `json:"payable_ot_hours"`
}
