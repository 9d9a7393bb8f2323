package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"otengine/apperr"
	"otengine/models"
	"otengine/timeutil"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunSummary is what a single run did. Administrators see it in the audit
// log and in the manual trigger's response.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	WindowStart time.Time     `json:"window_start"`
	WindowEnd   time.Time     `json:"window_end"`
	Records     int           `json:"records"`
	Open        int           `json:"open"`
	Backlog     int           `json:"backlog"`
	Closed      int           `json:"closed"`
	Skipped     int           `json:"skipped"`
	Errors      int           `json:"errors"`
	Fallbacks   int           `json:"lookup_fallbacks"`
	Duration    time.Duration `json:"duration"`
}

func (s *Scheduler) run(ctx context.Context, now time.Time) (RunSummary, error) {
	summary := RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: now,
		WindowEnd: timeutil.CalendarDate(now, s.opts.Location),
	}
	summary.WindowStart = summary.WindowEnd.AddDate(0, 0, -s.opts.LookbackDays)
	log := s.log.WithField("run_id", summary.RunID)
	began := time.Now()

	records, err := s.repo.ListAttendanceByDateRange(ctx, summary.WindowStart, summary.WindowEnd)
	if err != nil {
		return summary, fmt.Errorf("list attendance %s..%s: %w",
			summary.WindowStart.Format(timeutil.DateLayout), summary.WindowEnd.Format(timeutil.DateLayout), err)
	}
	summary.Records = len(records)

	var open []models.OTSession
	for _, rec := range records {
		for _, sess := range rec.Sessions {
			if sess.Status == models.StatusInProgress {
				open = append(open, sess)
			}
		}
	}

	// sessions dated before the window, e.g. held open by a payroll lock
	// that was lifted after the lookback passed
	backlog, err := s.repo.ListOpenSessionsBefore(ctx, summary.WindowStart)
	if err != nil {
		return summary, fmt.Errorf("list open sessions before %s: %w", summary.WindowStart.Format(timeutil.DateLayout), err)
	}
	summary.Backlog = len(backlog)
	open = append(open, backlog...)
	summary.Open = len(open)
	sort.Slice(open, func(i, j int) bool { return open[i].StartTime.Before(open[j].StartTime) })

	cache := newRunCache(s.opts.DefaultCheckIn)
	if err := cache.prefetch(ctx, s.repo, earlyArrivalUsers(open), s.opts.Concurrency, log); err != nil {
		return summary, fmt.Errorf("prefetch lookups: %w", err)
	}

	for i := range open {
		sess := &open[i]
		if !now.Before(s.closeAt(sess, cache, log)) {
			s.closeSession(ctx, sess, now, cache, &summary, log)
		}
	}
	summary.Fallbacks = cache.fallbacks
	summary.Duration = time.Since(began)

	entry := log.WithFields(logrus.Fields{
		"records":   summary.Records,
		"open":      summary.Open,
		"backlog":   summary.Backlog,
		"closed":    summary.Closed,
		"skipped":   summary.Skipped,
		"errors":    summary.Errors,
		"fallbacks": summary.Fallbacks,
	})
	if summary.Errors > 0 {
		entry.Warn("reconcile run finished with errors")
	} else {
		entry.Info("reconcile run finished")
	}
	if summary.Closed > 0 || summary.Errors > 0 {
		s.auditRun(ctx, summary, log)
	}
	return summary, nil
}

func earlyArrivalUsers(open []models.OTSession) []uint {
	seen := make(map[uint]bool)
	var ids []uint
	for _, sess := range open {
		if sess.OTType == models.OTEarlyArrival && !seen[sess.UserID] {
			seen[sess.UserID] = true
			ids = append(ids, sess.UserID)
		}
	}
	return ids
}

// closeAt is the instant from which the session is overdue.
//
// Early-arrival sessions close a lead before the department check-in on the
// session's day. A session that claims early arrival but did not start before
// that boundary falls back to the flat running-time threshold.
func (s *Scheduler) closeAt(sess *models.OTSession, cache *runCache, log logrus.FieldLogger) time.Time {
	start := sess.StartTime.In(s.opts.Location)
	flat := start.Add(s.opts.FlatThreshold)
	if sess.OTType != models.OTEarlyArrival {
		return flat
	}
	boundary := cache.checkIn(sess.UserID, log).On(start).Add(-s.opts.EarlyLead)
	if !start.Before(boundary) {
		log.WithFields(logrus.Fields{
			"session_id": sess.SessionID,
			"start":      start.Format(time.RFC3339),
			"boundary":   boundary.Format(time.RFC3339),
		}).Warn("early arrival session started after its boundary; using flat threshold")
		return flat
	}
	return boundary
}

func (s *Scheduler) closeSession(ctx context.Context, sess *models.OTSession, now time.Time, cache *runCache, summary *RunSummary, log logrus.FieldLogger) {
	sessLog := log.WithFields(logrus.Fields{"session_id": sess.SessionID, "user_id": sess.UserID})

	if sess.AutoClosedAt != nil {
		summary.Skipped++
		return
	}
	if sess.PayrollLocked || cache.locked(ctx, s.locks, sess.Date) {
		summary.Skipped++
		sessLog.Warn("overdue OT session is in a locked payroll period; leaving it open")
		return
	}

	start := sess.StartTime.In(s.opts.Location)
	end := timeutil.EndOfDay(start, s.opts.Location)
	elapsed := now.Sub(start)
	closedAt := now

	sess.EndTime = &end
	sess.OTHours = 0
	sess.Status = models.StatusPendingReview
	sess.AutoClosedAt = &closedAt
	sess.AutoClosedNote = fmt.Sprintf("Auto-closed at %s after running %s without being ended. Hours set to 0 pending admin review.",
		now.Format("2006-01-02 15:04"), timeutil.HumanDuration(elapsed))

	if err := s.repo.UpdateSession(ctx, sess, models.StatusInProgress); err != nil {
		if apperr.IsConflict(err) {
			summary.Skipped++
			sessLog.Info("OT session changed during reconcile; skipping")
			return
		}
		summary.Errors++
		sessLog.WithError(err).Error("failed to auto-close OT session")
		return
	}
	summary.Closed++

	n := &models.Notification{
		UserID:      sess.UserID,
		Type:        models.NotifyOTAutoClosed,
		Title:       "OT session closed automatically",
		Message:     fmt.Sprintf("Your %s OT session #%d on %s was not ended and has been closed for admin review.", sess.OTType, sess.SessionNumber, start.Format(timeutil.DateLayout)),
		ReferenceID: sess.SessionID,
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		sessLog.WithError(err).Error("failed to notify employee of auto-close")
	}
	entry := &models.ActivityLog{
		Action:      models.ActionOTAutoClosed,
		EntityType:  "ot_session",
		EntityID:    sess.SessionID,
		Description: sess.AutoClosedNote,
		Details: map[string]interface{}{
			"run_id":          summary.RunID,
			"elapsed_minutes": int(elapsed / time.Minute),
			"ot_type":         string(sess.OTType),
		},
	}
	if err := s.repo.CreateActivityLog(ctx, entry); err != nil {
		sessLog.WithError(err).Error("failed to write auto-close activity log")
	}
	sessLog.WithField("elapsed", timeutil.HumanDuration(elapsed)).Info("OT session auto-closed")
}

func (s *Scheduler) auditRun(ctx context.Context, summary RunSummary, log logrus.FieldLogger) {
	entry := &models.ActivityLog{
		Action:      models.ActionReconcileRun,
		EntityType:  "reconcile_run",
		EntityID:    summary.RunID,
		Description: fmt.Sprintf("Reconcile run closed %d OT sessions with %d errors", summary.Closed, summary.Errors),
		Details: map[string]interface{}{
			"window_start": summary.WindowStart.Format(timeutil.DateLayout),
			"window_end":   summary.WindowEnd.Format(timeutil.DateLayout),
			"open":         summary.Open,
			"backlog":      summary.Backlog,
			"closed":       summary.Closed,
			"skipped":      summary.Skipped,
			"errors":       summary.Errors,
			"fallbacks":    summary.Fallbacks,
		},
	}
	if err := s.repo.CreateActivityLog(ctx, entry); err != nil {
		log.WithError(err).Error("failed to write reconcile run activity log")
	}
}
