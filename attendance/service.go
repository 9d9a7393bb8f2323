// Package attendance records daily check-in and check-out, gated by the
// office geofences.
package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"otengine/apperr"
	"otengine/location"
	"otengine/models"
	"otengine/repository"
	"otengine/timeutil"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

type LockChecker interface {
	IsLocked(ctx context.Context, date time.Time) bool
}

type Options struct {
	Location *time.Location
	Now      func() time.Time
	Logger   logrus.FieldLogger
}

type Service struct {
	repo      repository.Repository
	validator *location.Validator
	locks     LockChecker
	loc       *time.Location
	now       func() time.Time
	log       logrus.FieldLogger
}

func NewService(repo repository.Repository, validator *location.Validator, locks LockChecker, opts Options) *Service {
	s := &Service{
		repo:      repo,
		validator: validator,
		locks:     locks,
		loc:       opts.Location,
		now:       opts.Now,
		log:       opts.Logger,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s
}

// RefreshOffices reloads the geofences from storage.
func (s *Service) RefreshOffices(ctx context.Context) error {
	offices, err := s.repo.ListOffices(ctx)
	if err != nil {
		return err
	}
	s.validator.SetOffices(offices)
	s.log.WithField("offices", len(s.validator.Offices())).Info("office geofences loaded")
	return nil
}

// Fix is a reported position.
type Fix struct {
	Latitude  *float64
	Longitude *float64
	Accuracy  float64
	Device    location.DeviceCapability
	ImageRef  string
	Address   string
}

func (f Fix) evidence() models.Evidence {
	return models.Evidence{ImageRef: f.ImageRef, Latitude: f.Latitude, Longitude: f.Longitude, Address: f.Address}
}

// Outcome carries the stored record and the geofence result. Location is
// set even when the check is rejected so callers can show recommendations.
type Outcome struct {
	Record   *models.AttendanceRecord `json:"attendance"`
	Location location.Result          `json:"location"`
}

func (s *Service) validate(fix Fix) (location.Result, error) {
	if fix.Latitude == nil || fix.Longitude == nil {
		return location.Result{}, apperr.Validation("location required")
	}
	res := s.validator.Validate(*fix.Latitude, *fix.Longitude, fix.Accuracy, fix.Device)
	if !res.IsValid {
		msg := res.Message
		if len(res.Recommendations) > 0 {
			msg += ". " + strings.Join(res.Recommendations, " ")
		}
		return res, apperr.Validation("%s", msg)
	}
	return res, nil
}

func snapshot(res location.Result) datatypes.JSON {
	b, err := json.Marshal(res)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func (s *Service) CheckIn(ctx context.Context, userID uint, fix Fix) (*Outcome, error) {
	if userID == 0 {
		return nil, apperr.Validation("user is required")
	}
	res, err := s.validate(fix)
	if err != nil {
		return &Outcome{Location: res}, err
	}

	now := s.now().In(s.loc)
	date := timeutil.CalendarDate(now, s.loc)
	if s.locks.IsLocked(ctx, date) {
		return nil, apperr.Permission("payroll for %s is locked", date.Format(timeutil.DateLayout))
	}

	ev := fix.evidence()
	rec, err := s.repo.FindAttendance(ctx, userID, date)
	switch {
	case apperr.IsNotFound(err):
		rec = &models.AttendanceRecord{
			UserID:          userID,
			Date:            date,
			CheckInTime:     &now,
			CheckIn:         ev,
			CheckInLocation: snapshot(res),
		}
		err = s.repo.CreateAttendance(ctx, rec)
		if apperr.IsConflict(err) {
			// a concurrent check-in or OT start created the row first
			if rec, err = s.repo.FindAttendance(ctx, userID, date); err == nil {
				err = s.stampCheckIn(ctx, rec, now, ev, res)
			}
		}
	case err == nil:
		err = s.stampCheckIn(ctx, rec, now, ev, res)
	}
	if err != nil {
		return nil, err
	}

	s.audit(ctx, userID, models.ActionCheckIn, rec, fmt.Sprintf("Checked in at %s (%s)", res.OfficeName, res.ValidationType))
	s.log.WithFields(logrus.Fields{
		"user_id":         userID,
		"office_id":       res.OfficeID,
		"validation_type": res.ValidationType,
		"confidence":      res.Confidence,
	}).Info("checked in")
	return &Outcome{Record: rec, Location: res}, nil
}

// stampCheckIn fills the check-in of a record created earlier, e.g. by an
// early-arrival OT start.
func (s *Service) stampCheckIn(ctx context.Context, rec *models.AttendanceRecord, now time.Time, ev models.Evidence, res location.Result) error {
	if rec.CheckInTime != nil {
		return apperr.Conflict("already checked in at %s", rec.CheckInTime.In(s.loc).Format("15:04"))
	}
	patch := models.AttendancePatch{CheckInTime: &now, CheckIn: &ev, CheckInLocation: snapshot(res)}
	if err := s.repo.UpdateAttendance(ctx, rec.ID, patch); err != nil {
		if apperr.IsConflict(err) {
			if current, getErr := s.repo.GetAttendance(ctx, rec.ID); getErr == nil && current.CheckInTime != nil {
				return apperr.Conflict("already checked in at %s", current.CheckInTime.In(s.loc).Format("15:04"))
			}
		}
		return err
	}
	rec.CheckInTime = &now
	rec.CheckIn = ev
	rec.CheckInLocation = patch.CheckInLocation
	return nil
}

func (s *Service) CheckOut(ctx context.Context, userID uint, fix Fix) (*Outcome, error) {
	if userID == 0 {
		return nil, apperr.Validation("user is required")
	}
	now := s.now().In(s.loc)
	date := timeutil.CalendarDate(now, s.loc)

	rec, err := s.repo.FindAttendance(ctx, userID, date)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.State("not checked in today")
		}
		return nil, err
	}
	if rec.CheckInTime == nil {
		return nil, apperr.State("not checked in today")
	}
	if rec.CheckOutTime != nil {
		return nil, apperr.Conflict("already checked out at %s", rec.CheckOutTime.In(s.loc).Format("15:04"))
	}

	res, err := s.validate(fix)
	if err != nil {
		return &Outcome{Location: res}, err
	}
	if s.locks.IsLocked(ctx, date) {
		return nil, apperr.Permission("payroll for %s is locked", date.Format(timeutil.DateLayout))
	}

	ev := fix.evidence()
	patch := models.AttendancePatch{CheckOutTime: &now, CheckOut: &ev, CheckOutLocation: snapshot(res)}
	if err := s.repo.UpdateAttendance(ctx, rec.ID, patch); err != nil {
		if apperr.IsConflict(err) {
			if current, getErr := s.repo.GetAttendance(ctx, rec.ID); getErr == nil && current.CheckOutTime != nil {
				return nil, apperr.Conflict("already checked out at %s", current.CheckOutTime.In(s.loc).Format("15:04"))
			}
		}
		return nil, err
	}
	rec.CheckOutTime = &now
	rec.CheckOut = ev
	rec.CheckOutLocation = patch.CheckOutLocation

	worked := now.Sub(*rec.CheckInTime)
	s.audit(ctx, userID, models.ActionCheckOut, rec, fmt.Sprintf("Checked out after %s", timeutil.HumanDuration(worked)))
	if open := rec.OpenSession(); open != nil {
		s.log.WithFields(logrus.Fields{"user_id": userID, "session_id": open.SessionID}).
			Info("checked out with an OT session still in progress")
	}
	return &Outcome{Record: rec, Location: res}, nil
}

// Today returns the user's record for the current day. An empty record is
// returned when the user has not checked in or started OT yet.
func (s *Service) Today(ctx context.Context, userID uint) (*models.AttendanceRecord, error) {
	date := timeutil.CalendarDate(s.now(), s.loc)
	rec, err := s.repo.FindAttendance(ctx, userID, date)
	if apperr.IsNotFound(err) {
		return &models.AttendanceRecord{UserID: userID, Date: date, Sessions: []models.OTSession{}}, nil
	}
	return rec, err
}

// Validate exposes the geofence check without recording anything.
func (s *Service) Validate(lat, lon, accuracy float64, device location.DeviceCapability) location.Result {
	return s.validator.Validate(lat, lon, accuracy, device)
}

func (s *Service) audit(ctx context.Context, userID uint, action string, rec *models.AttendanceRecord, desc string) {
	entry := &models.ActivityLog{
		ActorID:     &userID,
		Action:      action,
		EntityType:  "attendance",
		EntityID:    fmt.Sprintf("%d", rec.ID),
		Description: desc,
	}
	if err := s.repo.CreateActivityLog(ctx, entry); err != nil {
		s.log.WithError(err).WithField("action", action).Error("failed to write attendance activity log")
	}
}
