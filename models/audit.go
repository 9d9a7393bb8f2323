package models

import (
	"time"

	"gorm.io/datatypes"
)

type Notification struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	Type        string    `gorm:"not null;size:50" json:"type"`
	Title       string    `gorm:"not null;size:200" json:"title"`
	Message     string    `gorm:"not null;size:1000" json:"message"`
	ReferenceID string    `gorm:"size:64;index" json:"reference_id,omitempty"`
	Read        bool      `gorm:"default:false" json:"read"`
}

// ActivityLog is the audit trail. ActorID is nil for system actions.
type ActivityLog struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	ActorID     *uint             `gorm:"index" json:"actor_id,omitempty"`
	Action      string            `gorm:"not null;size:50;index" json:"action"`
	EntityType  string            `gorm:"not null;size:50" json:"entity_type"`
	EntityID    string            `gorm:"not null;size:64;index" json:"entity_id"`
	Description string            `gorm:"size:1000" json:"description"`
	Details     datatypes.JSONMap `json:"details,omitempty"`
}

const (
	ActionOTStarted      = "ot_session_started"
	ActionOTEnded        = "ot_session_ended"
	ActionOTAutoClosed   = "ot_session_auto_closed"
	ActionOTReviewed     = "ot_session_reviewed"
	ActionReconcileRun   = "ot_reconcile_run"
	ActionPayrollLock    = "payroll_period_locked"
	ActionPayrollUnlock  = "payroll_period_unlocked"
	ActionPayrollProcess = "payroll_period_processed"
	ActionCheckIn        = "attendance_check_in"
	ActionCheckOut       = "attendance_check_out"
)

const (
	NotifyOTAutoClosed = "ot_auto_closed"
	NotifyOTReviewed   = "ot_reviewed"
	NotifyOTEnded      = "ot_ended"
)
