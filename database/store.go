package database

import (
	"context"
	"errors"
	"time"

	"otengine/apperr"
	"otengine/models"
	"otengine/repository"
	"otengine/timeutil"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var _ repository.Repository = (*Store)(nil)

// Store is the GORM-backed repository.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// mapError translates driver errors into the apperr taxonomy.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s not found", what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if pgErr.ConstraintName == "uniq_ot_sessions_open" {
				return apperr.Conflict("an OT session is already in progress for this day")
			}
			return apperr.Conflict("%s already exists", what)
		case "23503":
			return apperr.Validation("%s references a missing row", what)
		}
	}
	return apperr.Infrastructure(err, "%s", what)
}

func dateParam(t time.Time) string {
	return t.UTC().Format(timeutil.DateLayout)
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Department").First(&user, id).Error; err != nil {
		return nil, mapError(err, "user")
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Department").Where("username = ?", username).First(&user).Error; err != nil {
		return nil, mapError(err, "user")
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context, ids []uint) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	if err := s.db.WithContext(ctx).Preload("Department").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, mapError(err, "users")
	}
	return users, nil
}

func (s *Store) GetDepartmentTiming(ctx context.Context, departmentID uint) (*models.Department, error) {
	var dept models.Department
	if err := s.db.WithContext(ctx).First(&dept, departmentID).Error; err != nil {
		return nil, mapError(err, "department")
	}
	return &dept, nil
}

func (s *Store) ListOffices(ctx context.Context) ([]models.OfficeLocation, error) {
	var offices []models.OfficeLocation
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("id asc").Find(&offices).Error; err != nil {
		return nil, mapError(err, "office locations")
	}
	return offices, nil
}

func orderedSessions(db *gorm.DB) *gorm.DB {
	return db.Order("session_number asc")
}

func (s *Store) ListAttendanceByDateRange(ctx context.Context, start, end time.Time) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	err := s.db.WithContext(ctx).
		Preload("Sessions", orderedSessions).
		Where("date >= ? AND date <= ?", dateParam(start), dateParam(end)).
		Order("date asc, user_id asc").
		Find(&records).Error
	if err != nil {
		return nil, mapError(err, "attendance records")
	}
	return records, nil
}

func (s *Store) GetAttendance(ctx context.Context, id uint) (*models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	if err := s.db.WithContext(ctx).Preload("Sessions", orderedSessions).First(&rec, id).Error; err != nil {
		return nil, mapError(err, "attendance record")
	}
	return &rec, nil
}

func (s *Store) FindAttendance(ctx context.Context, userID uint, date time.Time) (*models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	err := s.db.WithContext(ctx).
		Preload("Sessions", orderedSessions).
		Where("user_id = ? AND date = ?", userID, dateParam(date)).
		First(&rec).Error
	if err != nil {
		return nil, mapError(err, "attendance record")
	}
	return &rec, nil
}

func (s *Store) CreateAttendance(ctx context.Context, rec *models.AttendanceRecord) error {
	return mapError(s.db.WithContext(ctx).Omit("Sessions").Create(rec).Error, "attendance record")
}

func (s *Store) UpdateAttendance(ctx context.Context, id uint, patch models.AttendancePatch) error {
	updates := map[string]interface{}{}
	if patch.CheckInTime != nil {
		updates["check_in_time"] = *patch.CheckInTime
	}
	if patch.CheckOutTime != nil {
		updates["check_out_time"] = *patch.CheckOutTime
	}
	if patch.CheckIn != nil {
		evidenceColumns(updates, "check_in_", *patch.CheckIn)
	}
	if patch.CheckOut != nil {
		evidenceColumns(updates, "check_out_", *patch.CheckOut)
	}
	if patch.CheckInLocation != nil {
		updates["check_in_location"] = patch.CheckInLocation
	}
	if patch.CheckOutLocation != nil {
		updates["check_out_location"] = patch.CheckOutLocation
	}
	if patch.TotalOTHours != nil {
		updates["total_ot_hours"] = *patch.TotalOTHours
	}
	if len(updates) == 0 {
		return nil
	}

	q := s.db.WithContext(ctx).Model(&models.AttendanceRecord{}).Where("id = ?", id)
	if patch.CheckInTime != nil {
		q = q.Where("check_in_time IS NULL")
	}
	if patch.CheckOutTime != nil {
		q = q.Where("check_out_time IS NULL")
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return mapError(res.Error, "attendance record")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.AttendanceRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return mapError(err, "attendance record")
	}
	if count == 0 {
		return apperr.NotFound("attendance record %d not found", id)
	}
	return apperr.Conflict("attendance record %d was stamped concurrently", id)
}

func evidenceColumns(updates map[string]interface{}, prefix string, e models.Evidence) {
	updates[prefix+"image_ref"] = e.ImageRef
	updates[prefix+"latitude"] = e.Latitude
	updates[prefix+"longitude"] = e.Longitude
	updates[prefix+"address"] = e.Address
}

func (s *Store) CreateSession(ctx context.Context, sess *models.OTSession) error {
	return mapError(s.db.WithContext(ctx).Create(sess).Error, "OT session")
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.OTSession, error) {
	var sess models.OTSession
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&sess).Error; err != nil {
		return nil, mapError(err, "OT session")
	}
	return &sess, nil
}

func (s *Store) ListOpenSessionsBefore(ctx context.Context, before time.Time) ([]models.OTSession, error) {
	var sessions []models.OTSession
	err := s.db.WithContext(ctx).
		Where("status = ? AND date < ?", models.StatusInProgress, dateParam(before)).
		Order("start_time asc").
		Find(&sessions).Error
	if err != nil {
		return nil, mapError(err, "OT sessions")
	}
	return sessions, nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *models.OTSession, expect models.SessionStatus) error {
	res := s.db.WithContext(ctx).
		Model(&models.OTSession{}).
		Where("session_id = ? AND status = ?", sess.SessionID, expect).
		Select("*").
		Omit("id", "created_at", "session_id", "attendance_id", "session_number", "user_id").
		Updates(sess)
	if res.Error != nil {
		return mapError(res.Error, "OT session")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.OTSession{}).Where("session_id = ?", sess.SessionID).Count(&count).Error; err != nil {
		return mapError(err, "OT session")
	}
	if count == 0 {
		return apperr.NotFound("OT session %s not found", sess.SessionID)
	}
	return apperr.Conflict("OT session %s changed concurrently", sess.SessionID)
}

func (s *Store) SetSessionsPayrollLocked(ctx context.Context, start, end time.Time, locked bool) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.OTSession{}).
		Where("date >= ? AND date < ?", dateParam(start), dateParam(end)).
		Update("payroll_locked", locked)
	if res.Error != nil {
		return 0, mapError(res.Error, "OT sessions")
	}
	return res.RowsAffected, nil
}

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	return mapError(s.db.WithContext(ctx).Create(n).Error, "notification")
}

func (s *Store) CreateActivityLog(ctx context.Context, l *models.ActivityLog) error {
	return mapError(s.db.WithContext(ctx).Create(l).Error, "activity log")
}

func (s *Store) GetPayrollPeriod(ctx context.Context, month, year int) (*models.PayrollPeriod, error) {
	var p models.PayrollPeriod
	if err := s.db.WithContext(ctx).Where("month = ? AND year = ?", month, year).First(&p).Error; err != nil {
		return nil, mapError(err, "payroll period")
	}
	return &p, nil
}

func (s *Store) CreatePayrollPeriod(ctx context.Context, p *models.PayrollPeriod) error {
	return mapError(s.db.WithContext(ctx).Create(p).Error, "payroll period")
}

func (s *Store) UpdatePayrollPeriod(ctx context.Context, p *models.PayrollPeriod) error {
	return mapError(s.db.WithContext(ctx).Save(p).Error, "payroll period")
}
