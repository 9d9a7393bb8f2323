// Package memory is an in-process repository.Repository. It enforces the
// same uniqueness rules as the Postgres schema and supports per-call failure
// injection so services can be exercised against storage errors.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"otengine/apperr"
	"otengine/models"
	"otengine/repository"
)

var _ repository.Repository = (*Store)(nil)

type periodKey struct{ month, year int }

type openKey struct {
	userID uint
	date   time.Time
}

type Store struct {
	mu sync.Mutex

	nextID        uint
	users         map[uint]models.User
	departments   map[uint]models.Department
	offices       []models.OfficeLocation
	records       map[uint]models.AttendanceRecord
	sessions      map[string]models.OTSession
	periods       map[periodKey]models.PayrollPeriod
	notifications []models.Notification
	logs          []models.ActivityLog

	calls map[string]int

	listErr          error
	periodErr        error
	userErrs         map[uint]error
	departmentErrs   map[uint]error
	updateSessionErr map[string]error
	notificationErr  error
}

func New() *Store {
	return &Store{
		users:            make(map[uint]models.User),
		departments:      make(map[uint]models.Department),
		records:          make(map[uint]models.AttendanceRecord),
		sessions:         make(map[string]models.OTSession),
		periods:          make(map[periodKey]models.PayrollPeriod),
		calls:            make(map[string]int),
		userErrs:         make(map[uint]error),
		departmentErrs:   make(map[uint]error),
		updateSessionErr: make(map[string]error),
	}
}

func (s *Store) id() uint {
	s.nextID++
	return s.nextID
}

func (s *Store) count(method string) {
	s.calls[method]++
}

// Calls reports how many times a repository method has been invoked.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Seeding helpers.

func (s *Store) AddDepartment(d models.Department) models.Department {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = s.id()
	}
	s.departments[d.ID] = d
	return d
}

func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	s.users[u.ID] = u
	return u
}

func (s *Store) AddOffice(o models.OfficeLocation) models.OfficeLocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == 0 {
		o.ID = s.id()
	}
	s.offices = append(s.offices, o)
	return o
}

// Failure injection.

func (s *Store) FailListAttendance(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

func (s *Store) FailPayrollLookups(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periodErr = err
}

func (s *Store) FailGetUser(id uint, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userErrs[id] = err
}

func (s *Store) FailDepartment(id uint, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departmentErrs[id] = err
}

func (s *Store) FailUpdateSession(sessionID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateSessionErr[sessionID] = err
}

func (s *Store) FailNotifications(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notificationErr = err
}

// Inspection helpers.

func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...)
}

func (s *Store) ActivityLogs() []models.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ActivityLog(nil), s.logs...)
}

func (s *Store) ActivityLogsFor(action string) []models.ActivityLog {
	var out []models.ActivityLog
	for _, l := range s.ActivityLogs() {
		if l.Action == action {
			out = append(out, l)
		}
	}
	return out
}

// Repository implementation.

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetUser")
	if err := s.userErrs[id]; err != nil {
		return nil, apperr.Infrastructure(err, "load user %d", id)
	}
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user %d not found", id)
	}
	return s.withDepartment(u), nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetUserByUsername")
	for _, u := range s.users {
		if u.Username == username {
			return s.withDepartment(u), nil
		}
	}
	return nil, apperr.NotFound("user %q not found", username)
}

func (s *Store) ListUsers(ctx context.Context, ids []uint) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("ListUsers")
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, *s.withDepartment(u))
		}
	}
	return out, nil
}

func (s *Store) withDepartment(u models.User) *models.User {
	if u.DepartmentID != nil {
		if d, ok := s.departments[*u.DepartmentID]; ok {
			u.Department = &d
		}
	}
	return &u
}

func (s *Store) GetDepartmentTiming(ctx context.Context, departmentID uint) (*models.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetDepartmentTiming")
	if err := s.departmentErrs[departmentID]; err != nil {
		return nil, apperr.Infrastructure(err, "load department %d", departmentID)
	}
	d, ok := s.departments[departmentID]
	if !ok {
		return nil, apperr.NotFound("department %d not found", departmentID)
	}
	return &d, nil
}

func (s *Store) ListOffices(ctx context.Context) ([]models.OfficeLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OfficeLocation(nil), s.offices...), nil
}

func (s *Store) assemble(rec models.AttendanceRecord) *models.AttendanceRecord {
	rec.Sessions = nil
	for _, sess := range s.sessions {
		if sess.AttendanceID == rec.ID {
			rec.Sessions = append(rec.Sessions, sess)
		}
	}
	sort.Slice(rec.Sessions, func(i, j int) bool {
		return rec.Sessions[i].SessionNumber < rec.Sessions[j].SessionNumber
	})
	return &rec
}

func (s *Store) ListAttendanceByDateRange(ctx context.Context, start, end time.Time) ([]models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("ListAttendanceByDateRange")
	if s.listErr != nil {
		return nil, apperr.Infrastructure(s.listErr, "list attendance")
	}
	var out []models.AttendanceRecord
	for _, rec := range s.records {
		if rec.Date.Before(start) || rec.Date.After(end) {
			continue
		}
		out = append(out, *s.assemble(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *Store) GetAttendance(ctx context.Context, id uint) (*models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, apperr.NotFound("attendance record %d not found", id)
	}
	return s.assemble(rec), nil
}

func (s *Store) FindAttendance(ctx context.Context, userID uint, date time.Time) (*models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.UserID == userID && rec.Date.Equal(date) {
			return s.assemble(rec), nil
		}
	}
	return nil, apperr.NotFound("no attendance record for user %d on %s", userID, date.Format("2006-01-02"))
}

func (s *Store) CreateAttendance(ctx context.Context, rec *models.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.UserID == rec.UserID && existing.Date.Equal(rec.Date) {
			return apperr.Conflict("attendance record already exists for this day")
		}
	}
	now := time.Now()
	rec.ID = s.id()
	rec.CreatedAt, rec.UpdatedAt = now, now
	stored := *rec
	stored.Sessions = nil
	s.records[rec.ID] = stored
	return nil
}

func (s *Store) UpdateAttendance(ctx context.Context, id uint, patch models.AttendancePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return apperr.NotFound("attendance record %d not found", id)
	}
	if patch.CheckInTime != nil && rec.CheckInTime != nil {
		return apperr.Conflict("attendance record %d already has a check-in", id)
	}
	if patch.CheckOutTime != nil && rec.CheckOutTime != nil {
		return apperr.Conflict("attendance record %d already has a check-out", id)
	}
	if patch.CheckInTime != nil {
		rec.CheckInTime = patch.CheckInTime
	}
	if patch.CheckOutTime != nil {
		rec.CheckOutTime = patch.CheckOutTime
	}
	if patch.CheckIn != nil {
		rec.CheckIn = *patch.CheckIn
	}
	if patch.CheckOut != nil {
		rec.CheckOut = *patch.CheckOut
	}
	if patch.CheckInLocation != nil {
		rec.CheckInLocation = patch.CheckInLocation
	}
	if patch.CheckOutLocation != nil {
		rec.CheckOutLocation = patch.CheckOutLocation
	}
	if patch.TotalOTHours != nil {
		rec.TotalOTHours = *patch.TotalOTHours
	}
	rec.UpdatedAt = time.Now()
	s.records[id] = rec
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *models.OTSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[sess.AttendanceID]; !ok {
		return apperr.NotFound("attendance record %d not found", sess.AttendanceID)
	}
	if _, ok := s.sessions[sess.SessionID]; ok {
		return apperr.Conflict("session %s already exists", sess.SessionID)
	}
	for _, existing := range s.sessions {
		if existing.AttendanceID == sess.AttendanceID && existing.SessionNumber == sess.SessionNumber {
			return apperr.Conflict("session number %d already used", sess.SessionNumber)
		}
		if sess.Status == models.StatusInProgress && existing.Status == models.StatusInProgress &&
			(openKey{existing.UserID, existing.Date} == openKey{sess.UserID, sess.Date}) {
			return apperr.Conflict("an OT session is already in progress for this day")
		}
	}
	now := time.Now()
	sess.ID = s.id()
	sess.CreatedAt, sess.UpdatedAt = now, now
	s.sessions[sess.SessionID] = *sess
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.OTSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, apperr.NotFound("OT session %s not found", sessionID)
	}
	return &sess, nil
}

func (s *Store) ListOpenSessionsBefore(ctx context.Context, before time.Time) ([]models.OTSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("ListOpenSessionsBefore")
	var out []models.OTSession
	for _, sess := range s.sessions {
		if sess.Status == models.StatusInProgress && sess.Date.Before(before) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// Session returns a stored session for assertions, ignoring errors.
func (s *Store) Session(sessionID string) models.OTSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionID]
}

func (s *Store) UpdateSession(ctx context.Context, sess *models.OTSession, expect models.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("UpdateSession")
	if err := s.updateSessionErr[sess.SessionID]; err != nil {
		return apperr.Infrastructure(err, "update session %s", sess.SessionID)
	}
	stored, ok := s.sessions[sess.SessionID]
	if !ok {
		return apperr.NotFound("OT session %s not found", sess.SessionID)
	}
	if stored.Status != expect {
		return apperr.Conflict("OT session %s changed concurrently (now %s)", sess.SessionID, stored.Status)
	}
	sess.UpdatedAt = time.Now()
	s.sessions[sess.SessionID] = *sess
	return nil
}

func (s *Store) SetSessionsPayrollLocked(ctx context.Context, start, end time.Time, locked bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.Date.Before(start) || !sess.Date.Before(end) {
			continue
		}
		sess.PayrollLocked = locked
		s.sessions[id] = sess
		n++
	}
	return n, nil
}

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notificationErr != nil {
		return apperr.Infrastructure(s.notificationErr, "create notification")
	}
	n.ID = s.id()
	n.CreatedAt = time.Now()
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *Store) CreateActivityLog(ctx context.Context, l *models.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.id()
	l.CreatedAt = time.Now()
	s.logs = append(s.logs, *l)
	return nil
}

func (s *Store) GetPayrollPeriod(ctx context.Context, month, year int) (*models.PayrollPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetPayrollPeriod")
	if s.periodErr != nil {
		return nil, apperr.Infrastructure(s.periodErr, "load payroll period")
	}
	p, ok := s.periods[periodKey{month, year}]
	if !ok {
		return nil, apperr.NotFound("payroll period %02d/%d not found", month, year)
	}
	return &p, nil
}

func (s *Store) CreatePayrollPeriod(ctx context.Context, p *models.PayrollPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := periodKey{p.Month, p.Year}
	if _, ok := s.periods[key]; ok {
		return apperr.Conflict("payroll period %02d/%d already exists", p.Month, p.Year)
	}
	now := time.Now()
	p.ID = s.id()
	p.CreatedAt, p.UpdatedAt = now, now
	s.periods[key] = *p
	return nil
}

func (s *Store) UpdatePayrollPeriod(ctx context.Context, p *models.PayrollPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := periodKey{p.Month, p.Year}
	if _, ok := s.periods[key]; !ok {
		return apperr.NotFound("payroll period %02d/%d not found", p.Month, p.Year)
	}
	p.UpdatedAt = time.Now()
	s.periods[key] = *p
	return nil
}

// ErrInjected is a convenience error for failure injection in tests.
var ErrInjected = errors.New("injected failure")
