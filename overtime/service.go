// Package overtime implements the OT session lifecycle:
//
//	in_progress -> PENDING_REVIEW (ended by the user or auto-closed)
//	PENDING_REVIEW | completed -> APPROVED | ADJUSTED | REJECTED
//
// Ending a session never approves it. Every operation is safe to retry with
// the same arguments.
package overtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"otengine/apperr"
	"otengine/models"
	"otengine/repository"
	"otengine/timeutil"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ApprovalPolicy decides what otHours an APPROVED review keeps.
type ApprovalPolicy string

const (
	// PolicyPreserve keeps whatever otHours the session holds. Auto-closed
	// sessions therefore stay at zero unless adjusted.
	PolicyPreserve ApprovalPolicy = "preserve"
	// PolicyRecompute recalculates otHours from start and end time.
	PolicyRecompute ApprovalPolicy = "recompute"
)

func ParseApprovalPolicy(s string) (ApprovalPolicy, error) {
	switch p := ApprovalPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyPreserve, PolicyRecompute:
		return p, nil
	}
	return "", fmt.Errorf("unknown OT approval policy %q (want preserve or recompute)", s)
}

const maxAdjustedHours = 24

// LockChecker answers whether a calendar date is in a locked payroll period.
type LockChecker interface {
	IsLocked(ctx context.Context, date time.Time) bool
}

type Options struct {
	Location       *time.Location
	Now            func() time.Time
	ApprovalPolicy ApprovalPolicy
	DefaultCheckIn timeutil.Clock
	Logger         logrus.FieldLogger
}

type Service struct {
	repo           repository.Repository
	locks          LockChecker
	loc            *time.Location
	now            func() time.Time
	policy         ApprovalPolicy
	defaultCheckIn timeutil.Clock
	log            logrus.FieldLogger
}

func NewService(repo repository.Repository, locks LockChecker, opts Options) *Service {
	s := &Service{
		repo:           repo,
		locks:          locks,
		loc:            opts.Location,
		now:            opts.Now,
		policy:         opts.ApprovalPolicy,
		defaultCheckIn: opts.DefaultCheckIn,
		log:            opts.Logger,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.policy == "" {
		s.policy = PolicyPreserve
	}
	if s.defaultCheckIn == (timeutil.Clock{}) {
		s.defaultCheckIn = timeutil.Clock{Hour: 9}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s
}

func (s *Service) Policy() ApprovalPolicy {
	return s.policy
}

type StartRequest struct {
	UserID   uint
	OTType   models.OTType
	Evidence models.Evidence
	// ClientSessionID lets a client retry a start without creating a
	// second session. Optional; must be a UUID when set.
	ClientSessionID string
}

func (s *Service) StartSession(ctx context.Context, req StartRequest) (*models.OTSession, error) {
	if req.UserID == 0 {
		return nil, apperr.Validation("user is required")
	}
	if !req.OTType.Valid() {
		return nil, apperr.Validation("ot type must be one of early_arrival, late_departure, weekend, holiday")
	}
	if !req.Evidence.HasLocation() {
		return nil, apperr.Validation("location required to start an OT session")
	}

	if req.ClientSessionID != "" {
		if _, err := uuid.Parse(req.ClientSessionID); err != nil {
			return nil, apperr.Validation("client session id must be a UUID")
		}
		existing, err := s.repo.GetSession(ctx, req.ClientSessionID)
		if err == nil {
			if existing.UserID != req.UserID {
				return nil, apperr.Conflict("session id is already in use")
			}
			return existing, nil
		}
		if !apperr.IsNotFound(err) {
			return nil, err
		}
	}

	now := s.now().In(s.loc)
	date := timeutil.CalendarDate(now, s.loc)
	if s.locks.IsLocked(ctx, date) {
		return nil, apperr.Permission("payroll for %s is locked; OT can no longer be recorded", date.Format(timeutil.DateLayout))
	}

	user, err := s.repo.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	if req.OTType == models.OTEarlyArrival {
		checkIn := s.checkInFor(ctx, user)
		if boundary := checkIn.On(now); !now.Before(boundary) {
			return nil, apperr.State("early arrival OT must start before the %s check-in time", checkIn)
		}
	}

	sessionID := req.ClientSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var session *models.OTSession
	// retry only covers a lost race on session_number; an open session
	// conflict is returned immediately
	for attempt := 0; attempt < 3; attempt++ {
		rec, err := s.attendanceFor(ctx, user.ID, date)
		if err != nil {
			return nil, err
		}
		if open := rec.OpenSession(); open != nil {
			return nil, apperr.Conflict("OT session #%d is already in progress; end it before starting another", open.SessionNumber)
		}

		session = &models.OTSession{
			SessionID:     sessionID,
			AttendanceID:  rec.ID,
			SessionNumber: rec.NextSessionNumber(),
			UserID:        user.ID,
			Date:          date,
			OTType:        req.OTType,
			StartTime:     now,
			Start:         req.Evidence,
			Status:        models.StatusInProgress,
		}
		err = s.repo.CreateSession(ctx, session)
		if err == nil {
			break
		}
		if !apperr.IsConflict(err) || attempt == 2 {
			return nil, err
		}
		session = nil
	}

	s.audit(ctx, &user.ID, models.ActionOTStarted, session,
		fmt.Sprintf("%s started %s OT session #%d", user.DisplayName(), session.OTType, session.SessionNumber), nil)
	s.log.WithFields(logrus.Fields{
		"session_id": session.SessionID,
		"user_id":    user.ID,
		"ot_type":    session.OTType,
	}).Info("OT session started")
	return session, nil
}

type EndRequest struct {
	SessionID string
	// UserID, when non-zero, must own the session.
	UserID   uint
	Evidence models.Evidence
}

func (s *Service) EndSession(ctx context.Context, req EndRequest) (*models.OTSession, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, apperr.Validation("session id is required")
	}
	if !req.Evidence.HasLocation() {
		return nil, apperr.Validation("location required to end an OT session")
	}

	session, err := s.repo.GetSession(ctx, req.SessionID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.NotFound("no in-progress OT session %s", req.SessionID)
		}
		return nil, err
	}
	if req.UserID != 0 && session.UserID != req.UserID {
		return nil, apperr.NotFound("no in-progress OT session %s", req.SessionID)
	}

	switch {
	case session.Status == models.StatusInProgress:
	case session.AutoClosed():
		return nil, apperr.Conflict("this OT session was closed automatically at %s and is awaiting admin review",
			session.AutoClosedAt.In(s.loc).Format("15:04 on 2006-01-02"))
	case session.Status == models.StatusPendingReview:
		return session, nil
	default:
		return nil, apperr.NotFound("no in-progress OT session %s (already ended)", req.SessionID)
	}

	if session.PayrollLocked || s.locks.IsLocked(ctx, session.Date) {
		return nil, apperr.Permission("payroll for %s is locked", session.Date.Format(timeutil.DateLayout))
	}

	now := s.now().In(s.loc)
	session.EndTime = &now
	session.OTHours = timeutil.Hours(now.Sub(session.StartTime))
	session.End = req.Evidence
	session.Status = models.StatusPendingReview

	if err := s.repo.UpdateSession(ctx, session, models.StatusInProgress); err != nil {
		if apperr.IsConflict(err) {
			if current, getErr := s.repo.GetSession(ctx, req.SessionID); getErr == nil && current.AutoClosed() {
				return nil, apperr.Conflict("this OT session was closed automatically and is awaiting admin review")
			}
		}
		return nil, err
	}

	s.audit(ctx, &session.UserID, models.ActionOTEnded, session,
		fmt.Sprintf("OT session #%d ended after %s, awaiting review", session.SessionNumber, timeutil.HumanDuration(now.Sub(session.StartTime))),
		map[string]interface{}{"ot_hours": session.OTHours})
	s.log.WithFields(logrus.Fields{
		"session_id": session.SessionID,
		"user_id":    session.UserID,
		"ot_hours":   session.OTHours,
	}).Info("OT session ended")
	return session, nil
}

type ReviewRequest struct {
	SessionID     string
	Action        models.SessionStatus
	AdminID       uint
	Notes         string
	AdjustedHours *float64
}

func (s *Service) ReviewSession(ctx context.Context, req ReviewRequest) (*models.OTSession, error) {
	switch req.Action {
	case models.StatusApproved, models.StatusRejected:
	case models.StatusAdjusted:
		if req.AdjustedHours == nil {
			return nil, apperr.Validation("adjusted hours are required for an ADJUSTED review")
		}
		if *req.AdjustedHours < 0 || *req.AdjustedHours > maxAdjustedHours {
			return nil, apperr.Validation("adjusted hours must be between 0 and %d", maxAdjustedHours)
		}
	default:
		return nil, apperr.Validation("review action must be APPROVED, ADJUSTED or REJECTED")
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, apperr.Validation("session id is required")
	}

	admin, err := s.repo.GetUser(ctx, req.AdminID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.Permission("only admins may review OT sessions")
		}
		return nil, err
	}
	if !admin.CanReviewOvertime() {
		return nil, apperr.Permission("only admins may review OT sessions")
	}

	session, err := s.repo.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	if session.PayrollLocked || s.locks.IsLocked(ctx, session.Date) {
		return nil, apperr.Permission("payroll for %s is locked; a master admin must unlock the period before review",
			session.Date.Format(timeutil.DateLayout))
	}

	if session.Status.Terminal() {
		if sameReview(session, req) {
			return session, nil
		}
		return nil, apperr.Conflict("OT session has already been reviewed as %s", session.Status)
	}
	if session.Status == models.StatusInProgress {
		return nil, apperr.State("cannot review an OT session that is still in progress")
	}
	if !session.Status.Reviewable() {
		return nil, apperr.State("OT session in status %s cannot be reviewed", session.Status)
	}

	prevStatus := session.Status
	prior := session.OTHours
	switch req.Action {
	case models.StatusApproved:
		if s.policy == PolicyRecompute && session.EndTime != nil {
			session.OTHours = timeutil.Hours(session.EndTime.Sub(session.StartTime))
		}
		if session.OTHours != prior {
			session.OriginalOTHours = &prior
		}
	case models.StatusAdjusted:
		adjusted := timeutil.RoundHours(*req.AdjustedHours)
		session.OriginalOTHours = &prior
		session.AdjustedOTHours = &adjusted
		session.OTHours = adjusted
	case models.StatusRejected:
		session.OriginalOTHours = &prior
		session.OTHours = 0
	}

	now := s.now()
	session.Status = req.Action
	session.ReviewAction = req.Action
	session.ReviewedBy = &admin.ID
	session.ReviewedAt = &now
	session.ReviewNotes = strings.TrimSpace(req.Notes)

	if err := s.repo.UpdateSession(ctx, session, prevStatus); err != nil {
		return nil, err
	}
	if err := s.refreshTotals(ctx, session.AttendanceID); err != nil {
		s.log.WithError(err).WithField("attendance_id", session.AttendanceID).Error("failed to refresh OT totals")
	}

	s.notify(ctx, session, models.NotifyOTReviewed, "OT session reviewed",
		fmt.Sprintf("Your OT session #%d on %s was %s (%.2f hours).",
			session.SessionNumber, session.Date.Format(timeutil.DateLayout), strings.ToLower(string(req.Action)), session.OTHours))
	s.audit(ctx, &admin.ID, models.ActionOTReviewed, session,
		fmt.Sprintf("%s marked OT session #%d as %s", admin.DisplayName(), session.SessionNumber, req.Action),
		map[string]interface{}{
			"previous_status": string(prevStatus),
			"previous_hours":  prior,
			"ot_hours":        session.OTHours,
			"policy":          string(s.policy),
			"auto_closed":     session.AutoClosed(),
		})
	s.log.WithFields(logrus.Fields{
		"session_id": session.SessionID,
		"admin_id":   admin.ID,
		"action":     req.Action,
		"ot_hours":   session.OTHours,
	}).Info("OT session reviewed")
	return session, nil
}

func sameReview(session *models.OTSession, req ReviewRequest) bool {
	if session.ReviewAction != req.Action {
		return false
	}
	if req.Action == models.StatusAdjusted {
		return session.AdjustedOTHours != nil && *session.AdjustedOTHours == timeutil.RoundHours(*req.AdjustedHours)
	}
	return true
}

func (s *Service) checkInFor(ctx context.Context, user *models.User) timeutil.Clock {
	if user.DepartmentID == nil {
		return s.defaultCheckIn
	}
	dept := user.Department
	if dept == nil {
		var err error
		if dept, err = s.repo.GetDepartmentTiming(ctx, *user.DepartmentID); err != nil {
			s.log.WithError(err).WithField("department_id", *user.DepartmentID).Warn("department timing unavailable; using default check-in")
			return s.defaultCheckIn
		}
	}
	clock, err := dept.CheckInClock()
	if err != nil {
		s.log.WithError(err).WithField("department_id", dept.ID).Warn("invalid department check-in time; using default")
		return s.defaultCheckIn
	}
	return clock
}

// attendanceFor loads or creates the day's attendance record.
func (s *Service) attendanceFor(ctx context.Context, userID uint, date time.Time) (*models.AttendanceRecord, error) {
	rec, err := s.repo.FindAttendance(ctx, userID, date)
	if err == nil {
		return rec, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}
	rec = &models.AttendanceRecord{UserID: userID, Date: date}
	if err := s.repo.CreateAttendance(ctx, rec); err != nil {
		if apperr.IsConflict(err) {
			return s.repo.FindAttendance(ctx, userID, date)
		}
		return nil, err
	}
	return rec, nil
}

func (s *Service) refreshTotals(ctx context.Context, attendanceID uint) error {
	rec, err := s.repo.GetAttendance(ctx, attendanceID)
	if err != nil {
		return err
	}
	total := timeutil.RoundHours(rec.PayableHours())
	return s.repo.UpdateAttendance(ctx, attendanceID, models.AttendancePatch{TotalOTHours: &total})
}

func (s *Service) notify(ctx context.Context, session *models.OTSession, kind, title, msg string) {
	n := &models.Notification{
		UserID:      session.UserID,
		Type:        kind,
		Title:       title,
		Message:     msg,
		ReferenceID: session.SessionID,
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		s.log.WithError(err).WithField("session_id", session.SessionID).Error("failed to create notification")
	}
}

func (s *Service) audit(ctx context.Context, actorID *uint, action string, session *models.OTSession, desc string, details map[string]interface{}) {
	entry := &models.ActivityLog{
		ActorID:     actorID,
		Action:      action,
		EntityType:  "ot_session",
		EntityID:    session.SessionID,
		Description: desc,
		Details:     details,
	}
	if err := s.repo.CreateActivityLog(ctx, entry); err != nil {
		s.log.WithError(err).WithField("session_id", session.SessionID).Error("failed to write activity log")
	}
}
