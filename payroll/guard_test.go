package payroll

import (
	"context"
	"strings"
	"testing"
	"time"

	"otengine/apperr"
	"otengine/models"
	"otengine/repository/memory"
)

type env struct {
	store  *memory.Store
	guard  *Guard
	master models.User
	admin  models.User
}

func newEnv() *env {
	store := memory.New()
	e := &env{
		store:  store,
		master: store.AddUser(models.User{Username: "root", FullName: "Root", Role: models.RoleMasterAdmin}),
		admin:  store.AddUser(models.User{Username: "ravi", FullName: "Ravi", Role: models.RoleAdmin}),
	}
	now := time.Date(2026, 4, 3, 10, 0, 0, 0, time.UTC)
	e.guard = NewGuard(store, Options{Now: func() time.Time { return now }})
	return e
}

// seedSession stores one session with the given status on the date.
func (e *env) seedSession(t *testing.T, userID uint, date time.Time, status models.SessionStatus, hours float64) models.OTSession {
	t.Helper()
	ctx := context.Background()
	rec, err := e.store.FindAttendance(ctx, userID, date)
	if err != nil {
		rec = &models.AttendanceRecord{UserID: userID, Date: date}
		if err := e.store.CreateAttendance(ctx, rec); err != nil {
			t.Fatalf("create attendance: %v", err)
		}
	}
	s := models.OTSession{
		SessionID:     date.Format("20060102") + "-" + string(status) + "-" + strings.Repeat("x", len(rec.Sessions)+1),
		AttendanceID:  rec.ID,
		SessionNumber: rec.NextSessionNumber(),
		UserID:        userID,
		Date:          date,
		OTType:        models.OTLateDeparture,
		StartTime:     date.Add(18 * time.Hour),
		OTHours:       hours,
		Status:        status,
	}
	if err := e.store.CreateSession(ctx, &s); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func march(day int) time.Time {
	return time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC)
}

func TestLockRequiresMasterAdmin(t *testing.T) {
	e := newEnv()
	_, err := e.guard.LockPeriod(context.Background(), 3, 2026, e.admin.ID)
	if apperr.KindOf(err) != apperr.KindPermission {
		t.Fatalf("expected permission error, got %v", err)
	}
	_, err = e.guard.LockPeriod(context.Background(), 3, 2026, 404)
	if apperr.KindOf(err) != apperr.KindPermission {
		t.Fatalf("expected permission error for unknown user, got %v", err)
	}
}

func TestLockCascadesToSessions(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	inMarch := e.seedSession(t, e.admin.ID, march(31), models.StatusPendingReview, 2)
	inApril := e.seedSession(t, e.admin.ID, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), models.StatusPendingReview, 1)

	period, err := e.guard.LockPeriod(ctx, 3, 2026, e.master.ID)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if period.Status != models.PayrollLocked || period.LockedBy == nil || *period.LockedBy != e.master.ID {
		t.Fatalf("unexpected period %+v", period)
	}
	if !e.store.Session(inMarch.SessionID).PayrollLocked {
		t.Fatalf("march session must be locked")
	}
	if e.store.Session(inApril.SessionID).PayrollLocked {
		t.Fatalf("april session must not be locked")
	}
	if !e.guard.IsLocked(ctx, march(15)) {
		t.Fatalf("IsLocked must report the locked month")
	}
	if e.guard.IsLocked(ctx, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("IsLocked must not report the following month")
	}

	if _, err := e.guard.LockPeriod(ctx, 3, 2026, e.master.ID); !apperr.IsConflict(err) {
		t.Fatalf("expected conflict on second lock, got %v", err)
	}
	if n := len(e.store.ActivityLogsFor(models.ActionPayrollLock)); n != 1 {
		t.Fatalf("expected one lock audit entry, got %d", n)
	}
}

func TestUnlockRequiresReason(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	if _, err := e.guard.LockPeriod(ctx, 3, 2026, e.master.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}

	_, err := e.guard.UnlockPeriod(ctx, 3, 2026, e.master.ID, "   oops   ")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for short reason, got %v", err)
	}
	_, err = e.guard.UnlockPeriod(ctx, 3, 2026, e.admin.ID, "correcting late approvals")
	if apperr.KindOf(err) != apperr.KindPermission {
		t.Fatalf("expected permission error, got %v", err)
	}

	period, err := e.guard.UnlockPeriod(ctx, 3, 2026, e.master.ID, "  correcting late approvals ")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if period.Status != models.PayrollOpen || period.UnlockReason != "correcting late approvals" {
		t.Fatalf("unexpected period %+v", period)
	}
	if e.guard.IsLocked(ctx, march(1)) {
		t.Fatalf("period must be open after unlock")
	}

	if _, err := e.guard.UnlockPeriod(ctx, 3, 2026, e.master.ID, "correcting late approvals"); apperr.KindOf(err) != apperr.KindState {
		t.Fatalf("expected state error unlocking an open period, got %v", err)
	}
}

func TestUnlockClearsSessionFlags(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	s := e.seedSession(t, e.admin.ID, march(10), models.StatusPendingReview, 1)
	if _, err := e.guard.LockPeriod(ctx, 3, 2026, e.master.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := e.guard.UnlockPeriod(ctx, 3, 2026, e.master.ID, "reopening for review"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if e.store.Session(s.SessionID).PayrollLocked {
		t.Fatalf("session must be unlocked")
	}
}

func TestMarkProcessed(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	if _, err := e.guard.MarkProcessed(ctx, 3, 2026, e.master.ID); apperr.KindOf(err) != apperr.KindState {
		t.Fatalf("expected state error for an unlocked period, got %v", err)
	}
	if _, err := e.guard.LockPeriod(ctx, 3, 2026, e.master.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	period, err := e.guard.MarkProcessed(ctx, 3, 2026, e.master.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if period.Status != models.PayrollProcessed || period.ProcessedAt == nil {
		t.Fatalf("unexpected period %+v", period)
	}
	if _, err := e.guard.MarkProcessed(ctx, 3, 2026, e.master.ID); err != nil {
		t.Fatalf("processing twice must be a no-op, got %v", err)
	}
	if !e.guard.IsLocked(ctx, march(20)) {
		t.Fatalf("processed periods stay locked")
	}
	if _, err := e.guard.LockPeriod(ctx, 3, 2026, e.master.ID); apperr.KindOf(err) != apperr.KindState {
		t.Fatalf("expected state error locking a processed period, got %v", err)
	}
}

func TestIsLockedFailsOpen(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	if _, err := e.guard.LockPeriod(ctx, 3, 2026, e.master.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	e.store.FailPayrollLookups(memory.ErrInjected)
	if e.guard.IsLocked(ctx, march(5)) {
		t.Fatalf("a failed lookup must treat the period as unlocked")
	}
}

func TestStatusDefaultsToOpen(t *testing.T) {
	e := newEnv()
	period, err := e.guard.Status(context.Background(), 7, 2026)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if period.Status != models.PayrollOpen || period.ID != 0 {
		t.Fatalf("unexpected period %+v", period)
	}
	if _, err := e.guard.Status(context.Background(), 13, 2026); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for month 13, got %v", err)
	}
}

func TestSummaryCountsPayableHoursOnly(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	worker := e.store.AddUser(models.User{Username: "asha", FullName: "Asha", Role: models.RoleEmployee})

	e.seedSession(t, worker.ID, march(2), models.StatusApproved, 2)
	e.seedSession(t, worker.ID, march(2), models.StatusAdjusted, 1.5)
	e.seedSession(t, worker.ID, march(3), models.StatusRejected, 0)
	e.seedSession(t, worker.ID, march(4), models.StatusPendingReview, 3)
	e.seedSession(t, e.admin.ID, march(4), models.StatusApproved, 1)
	e.seedSession(t, worker.ID, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), models.StatusApproved, 9)

	rows, err := e.guard.Summary(ctx, 3, 2026)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %+v", rows)
	}
	if rows[0].Employee != "Asha" || rows[1].Employee != "Ravi" {
		t.Fatalf("rows must be sorted by employee: %+v", rows)
	}
	asha := rows[0]
	if asha.Sessions != 4 || asha.PendingReview != 1 || asha.PayableOTHours != 3.5 {
		t.Fatalf("unexpected summary row %+v", asha)
	}
}
