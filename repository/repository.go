// Package repository declares the persistence contract the engine consumes.
// The Postgres implementation lives in package database; package memory
// provides an in-process implementation with the same constraints.
package repository

import (
	"context"
	"time"

	"otengine/models"
)

// Repository errors are *apperr.Error values: NotFound for missing rows,
// Conflict for uniqueness or conditional-write violations, Infrastructure
// for everything else.
type Repository interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context, ids []uint) ([]models.User, error)
	GetDepartmentTiming(ctx context.Context, departmentID uint) (*models.Department, error)
	ListOffices(ctx context.Context) ([]models.OfficeLocation, error)

	// ListAttendanceByDateRange returns records with start <= date <= end,
	// sessions preloaded in session number order. Dates are calendar dates.
	ListAttendanceByDateRange(ctx context.Context, start, end time.Time) ([]models.AttendanceRecord, error)
	GetAttendance(ctx context.Context, id uint) (*models.AttendanceRecord, error)
	FindAttendance(ctx context.Context, userID uint, date time.Time) (*models.AttendanceRecord, error)
	// CreateAttendance inserts a record; a second record for the same
	// (user, date) is a Conflict.
	CreateAttendance(ctx context.Context, rec *models.AttendanceRecord) error
	// UpdateAttendance applies patch. Check-in and check-out stamps are
	// write-once: setting one that is already stored is a Conflict.
	UpdateAttendance(ctx context.Context, id uint, patch models.AttendancePatch) error

	// CreateSession inserts a session. It returns Conflict when the user
	// already has an in_progress session on that date or the session number
	// is taken.
	CreateSession(ctx context.Context, s *models.OTSession) error
	GetSession(ctx context.Context, sessionID string) (*models.OTSession, error)
	// ListOpenSessionsBefore returns in_progress sessions dated before the
	// given calendar date, oldest start first.
	ListOpenSessionsBefore(ctx context.Context, before time.Time) ([]models.OTSession, error)
	// UpdateSession writes s only if the stored status still equals expect.
	// A lost race surfaces as Conflict.
	UpdateSession(ctx context.Context, s *models.OTSession, expect models.SessionStatus) error
	// SetSessionsPayrollLocked flags every session dated in [start, end).
	SetSessionsPayrollLocked(ctx context.Context, start, end time.Time, locked bool) (int64, error)

	CreateNotification(ctx context.Context, n *models.Notification) error
	CreateActivityLog(ctx context.Context, l *models.ActivityLog) error

	GetPayrollPeriod(ctx context.Context, month, year int) (*models.PayrollPeriod, error)
	CreatePayrollPeriod(ctx context.Context, p *models.PayrollPeriod) error
	UpdatePayrollPeriod(ctx context.Context, p *models.PayrollPeriod) error
}
