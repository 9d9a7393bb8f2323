// Package payroll locks calendar months so that attendance and OT data that
// payroll has been run against cannot change underneath it.
package payroll

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"otengine/apperr"
	"otengine/models"
	"otengine/repository"
	"otengine/timeutil"

	"github.com/sirupsen/logrus"
)

const DefaultMinUnlockReasonLength = 10

type Options struct {
	Location        *time.Location
	Now             func() time.Time
	MinReasonLength int
	Logger          logrus.FieldLogger
}

type Guard struct {
	repo      repository.Repository
	loc       *time.Location
	now       func() time.Time
	minReason int
	log       logrus.FieldLogger
}

func NewGuard(repo repository.Repository, opts Options) *Guard {
	g := &Guard{
		repo:      repo,
		loc:       opts.Location,
		now:       opts.Now,
		minReason: opts.MinReasonLength,
		log:       opts.Logger,
	}
	if g.loc == nil {
		g.loc = time.UTC
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.minReason <= 0 {
		g.minReason = DefaultMinUnlockReasonLength
	}
	if g.log == nil {
		g.log = logrus.StandardLogger()
	}
	return g
}

// IsLocked reports whether the calendar date (midnight UTC, as stored on
// attendance rows) falls in a locked or processed period.
//
// A failed lookup fails OPEN: the date is treated as unlocked and a warning
// with fail_open=true is logged. Availability of check-ins is preferred over
// strictness here; operators should alert on that log field.
func (g *Guard) IsLocked(ctx context.Context, date time.Time) bool {
	month, year := int(date.UTC().Month()), date.UTC().Year()
	period, err := g.repo.GetPayrollPeriod(ctx, month, year)
	if err != nil {
		if !apperr.IsNotFound(err) {
			g.log.WithError(err).WithFields(logrus.Fields{
				"month":     month,
				"year":      year,
				"fail_open": true,
			}).Warn("payroll lock check failed; treating period as unlocked")
		}
		return false
	}
	return period.Status.Frozen()
}

// IsLockedAt is IsLocked for an instant, resolved in the configured timezone.
func (g *Guard) IsLockedAt(ctx context.Context, t time.Time) bool {
	return g.IsLocked(ctx, timeutil.CalendarDate(t, g.loc))
}

// Status returns the stored period, or an open placeholder when none exists.
func (g *Guard) Status(ctx context.Context, month, year int) (*models.PayrollPeriod, error) {
	if err := validatePeriod(month, year); err != nil {
		return nil, err
	}
	period, err := g.repo.GetPayrollPeriod(ctx, month, year)
	if apperr.IsNotFound(err) {
		return &models.PayrollPeriod{Month: month, Year: year, Status: models.PayrollOpen}, nil
	}
	return period, err
}

func (g *Guard) LockPeriod(ctx context.Context, month, year int, adminID uint) (*models.PayrollPeriod, error) {
	if err := validatePeriod(month, year); err != nil {
		return nil, err
	}
	if err := g.requireMaster(ctx, adminID, "lock payroll periods"); err != nil {
		return nil, err
	}

	period, err := g.loadOrCreate(ctx, month, year)
	if err != nil {
		return nil, err
	}
	switch period.Status {
	case models.PayrollLocked:
		return nil, apperr.Conflict("payroll period %02d/%d is already locked", month, year)
	case models.PayrollProcessed:
		return nil, apperr.State("payroll period %02d/%d has already been processed", month, year)
	}

	now := g.now()
	period.Status = models.PayrollLocked
	period.LockedAt = &now
	period.LockedBy = &adminID
	if err := g.repo.UpdatePayrollPeriod(ctx, period); err != nil {
		return nil, err
	}

	start, end := calendarMonth(month, year)
	affected, err := g.repo.SetSessionsPayrollLocked(ctx, start, end, true)
	if err != nil {
		return nil, err
	}

	g.audit(ctx, adminID, models.ActionPayrollLock, period,
		fmt.Sprintf("Payroll period %02d/%d locked", month, year),
		map[string]interface{}{"sessions_locked": affected})
	g.log.WithFields(logrus.Fields{"month": month, "year": year, "admin_id": adminID, "sessions": affected}).
		Info("payroll period locked")
	return period, nil
}

func (g *Guard) UnlockPeriod(ctx context.Context, month, year int, adminID uint, reason string) (*models.PayrollPeriod, error) {
	if err := validatePeriod(month, year); err != nil {
		return nil, err
	}
	if err := g.requireMaster(ctx, adminID, "unlock payroll periods"); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if len([]rune(reason)) < g.minReason {
		return nil, apperr.Validation("an unlock reason of at least %d characters is required", g.minReason)
	}

	period, err := g.repo.GetPayrollPeriod(ctx, month, year)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.State("payroll period %02d/%d is not locked", month, year)
		}
		return nil, err
	}
	if !period.Status.Frozen() {
		return nil, apperr.State("payroll period %02d/%d is not locked", month, year)
	}

	previous := period.Status
	now := g.now()
	period.Status = models.PayrollOpen
	period.UnlockedAt = &now
	period.UnlockedBy = &adminID
	period.UnlockReason = reason
	if err := g.repo.UpdatePayrollPeriod(ctx, period); err != nil {
		return nil, err
	}

	start, end := calendarMonth(month, year)
	affected, err := g.repo.SetSessionsPayrollLocked(ctx, start, end, false)
	if err != nil {
		return nil, err
	}

	g.audit(ctx, adminID, models.ActionPayrollUnlock, period,
		fmt.Sprintf("Payroll period %02d/%d unlocked: %s", month, year, reason),
		map[string]interface{}{"previous_status": string(previous), "reason": reason, "sessions_unlocked": affected})
	g.log.WithFields(logrus.Fields{"month": month, "year": year, "admin_id": adminID, "reason": reason}).
		Warn("payroll period unlocked")
	return period, nil
}

// MarkProcessed records that payroll has been run for a locked period.
func (g *Guard) MarkProcessed(ctx context.Context, month, year int, adminID uint) (*models.PayrollPeriod, error) {
	if err := validatePeriod(month, year); err != nil {
		return nil, err
	}
	if err := g.requireMaster(ctx, adminID, "process payroll periods"); err != nil {
		return nil, err
	}
	period, err := g.repo.GetPayrollPeriod(ctx, month, year)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.State("payroll period %02d/%d must be locked before processing", month, year)
		}
		return nil, err
	}
	switch period.Status {
	case models.PayrollProcessed:
		return period, nil
	case models.PayrollOpen:
		return nil, apperr.State("payroll period %02d/%d must be locked before processing", month, year)
	}

	now := g.now()
	period.Status = models.PayrollProcessed
	period.ProcessedAt = &now
	period.ProcessedBy = &adminID
	if err := g.repo.UpdatePayrollPeriod(ctx, period); err != nil {
		return nil, err
	}
	g.audit(ctx, adminID, models.ActionPayrollProcess, period,
		fmt.Sprintf("Payroll period %02d/%d processed", month, year), nil)
	return period, nil
}

// Summary aggregates payable OT hours per employee for the month. Only
// approved and adjusted sessions count as payable.
func (g *Guard) Summary(ctx context.Context, month, year int) ([]models.PayrollSummaryRow, error) {
	if err := validatePeriod(month, year); err != nil {
		return nil, err
	}
	start, end := calendarMonth(month, year)
	records, err := g.repo.ListAttendanceByDateRange(ctx, start, end.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}

	rows := make(map[uint]*models.PayrollSummaryRow)
	var ids []uint
	for _, rec := range records {
		row, ok := rows[rec.UserID]
		if !ok {
			row = &models.PayrollSummaryRow{UserID: rec.UserID}
			rows[rec.UserID] = row
			ids = append(ids, rec.UserID)
		}
		for _, s := range rec.Sessions {
			row.Sessions++
			if s.Status.Reviewable() || s.Status == models.StatusInProgress {
				row.PendingReview++
			}
			if s.Status.Payable() {
				row.PayableOTHours += s.OTHours
			}
		}
	}

	users, err := g.repo.ListUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		row := rows[u.ID]
		row.Employee = u.DisplayName()
		if u.Department != nil {
			row.Department = u.Department.Name
		}
	}

	out := make([]models.PayrollSummaryRow, 0, len(rows))
	for _, id := range ids {
		row := rows[id]
		row.PayableOTHours = timeutil.RoundHours(row.PayableOTHours)
		if row.Employee == "" {
			row.Employee = fmt.Sprintf("user #%d", id)
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Employee < out[j].Employee })
	return out, nil
}

func (g *Guard) loadOrCreate(ctx context.Context, month, year int) (*models.PayrollPeriod, error) {
	period, err := g.repo.GetPayrollPeriod(ctx, month, year)
	if err == nil {
		return period, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}
	period = &models.PayrollPeriod{Month: month, Year: year, Status: models.PayrollOpen}
	if err := g.repo.CreatePayrollPeriod(ctx, period); err != nil {
		if apperr.IsConflict(err) {
			return g.repo.GetPayrollPeriod(ctx, month, year)
		}
		return nil, err
	}
	return period, nil
}

func (g *Guard) requireMaster(ctx context.Context, adminID uint, action string) error {
	admin, err := g.repo.GetUser(ctx, adminID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return apperr.Permission("only a master admin may %s", action)
		}
		return err
	}
	if !admin.CanManagePayroll() {
		return apperr.Permission("only a master admin may %s", action)
	}
	return nil
}

func (g *Guard) audit(ctx context.Context, actorID uint, action string, p *models.PayrollPeriod, desc string, details map[string]interface{}) {
	entry := &models.ActivityLog{
		ActorID:     &actorID,
		Action:      action,
		EntityType:  "payroll_period",
		EntityID:    fmt.Sprintf("%d-%02d", p.Year, p.Month),
		Description: desc,
		Details:     details,
	}
	if err := g.repo.CreateActivityLog(ctx, entry); err != nil {
		g.log.WithError(err).WithField("action", action).Error("failed to write payroll activity log")
	}
}

func validatePeriod(month, year int) error {
	if month < 1 || month > 12 {
		return apperr.Validation("month must be between 1 and 12")
	}
	if year < 2000 || year > 2100 {
		return apperr.Validation("year must be between 2000 and 2100")
	}
	return nil
}

// calendarMonth returns the month as [start, end) calendar dates.
func calendarMonth(month, year int) (time.Time, time.Time) {
	return timeutil.MonthRange(month, year, time.UTC)
}
