package attendance

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"otengine/apperr"
	"otengine/location"
	"otengine/models"
	"otengine/repository/memory"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type stubLocks struct {
	mu     sync.Mutex
	locked bool
}

func (l *stubLocks) IsLocked(context.Context, time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

type testEnv struct {
	store *memory.Store
	locks *stubLocks
	svc   *Service
	now   time.Time
	user  models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	store.AddOffice(models.OfficeLocation{Name: "HQ", Latitude: 10, Longitude: 78, Radius: 100, Active: true})
	e := &testEnv{
		store: store,
		locks: &stubLocks{},
		now:   time.Date(2026, 3, 2, 8, 55, 0, 0, ist),
		user:  store.AddUser(models.User{Username: "asha", Role: models.RoleEmployee}),
	}
	e.svc = NewService(store, location.NewValidator(location.DefaultConfig()), e.locks, Options{
		Location: ist,
		Now:      func() time.Time { return e.now },
	})
	if err := e.svc.RefreshOffices(context.Background()); err != nil {
		t.Fatalf("refresh offices: %v", err)
	}
	return e
}

func ptr(f float64) *float64 { return &f }

func nearHQ() Fix {
	// roughly 50 m north of HQ
	return Fix{Latitude: ptr(10.00045), Longitude: ptr(78), Accuracy: 10, Device: location.DeviceExcellent, Address: "HQ lobby"}
}

func TestCheckInAndOut(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	in, err := e.svc.CheckIn(ctx, e.user.ID, nearHQ())
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if in.Record.CheckInTime == nil || in.Location.ValidationType != location.TypeExact {
		t.Fatalf("unexpected check-in outcome %+v", in)
	}
	var snap location.Result
	if err := json.Unmarshal(in.Record.CheckInLocation, &snap); err != nil || snap.OfficeName != "HQ" {
		t.Fatalf("location snapshot not stored: %v %+v", err, snap)
	}

	if _, err := e.svc.CheckIn(ctx, e.user.ID, nearHQ()); !apperr.IsConflict(err) {
		t.Fatalf("expected already checked in conflict, got %v", err)
	}

	e.now = e.now.Add(9 * time.Hour)
	out, err := e.svc.CheckOut(ctx, e.user.ID, nearHQ())
	if err != nil {
		t.Fatalf("check out: %v", err)
	}
	if out.Record.CheckOutTime == nil {
		t.Fatalf("check-out time not set")
	}
	_, err = e.svc.CheckOut(ctx, e.user.ID, nearHQ())
	if !apperr.IsConflict(err) || apperr.PublicMessage(err) != "already checked out at 17:55" {
		t.Fatalf("expected already checked out, got %v", err)
	}

	today, err := e.svc.Today(ctx, e.user.ID)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if today.ID != in.Record.ID || today.CheckOutTime == nil {
		t.Fatalf("unexpected today record %+v", today)
	}
	if n := len(e.store.ActivityLogsFor(models.ActionCheckIn)) + len(e.store.ActivityLogsFor(models.ActionCheckOut)); n != 2 {
		t.Fatalf("audit entries = %d, want 2", n)
	}
}

func TestCheckInRequiresLocation(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.svc.CheckIn(context.Background(), e.user.ID, Fix{Accuracy: 10})
	if apperr.KindOf(err) != apperr.KindValidation || apperr.PublicMessage(err) != "location required" {
		t.Fatalf("expected location required, got %v", err)
	}
}

func TestCheckInOutsideGeofence(t *testing.T) {
	e := newTestEnv(t)
	far := Fix{Latitude: ptr(10.1), Longitude: ptr(78), Accuracy: 10, Device: location.DeviceExcellent}
	out, err := e.svc.CheckIn(context.Background(), e.user.ID, far)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if out == nil || out.Location.IsValid || out.Location.ValidationType != location.TypeFailed {
		t.Fatalf("expected the failed location result, got %+v", out)
	}
	if _, err := e.store.FindAttendance(context.Background(), e.user.ID, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)); !apperr.IsNotFound(err) {
		t.Fatalf("a rejected check-in must not create a record")
	}
}

func TestCheckOutWithoutCheckIn(t *testing.T) {
	e := newTestEnv(t)
	if _, err := e.svc.CheckOut(context.Background(), e.user.ID, nearHQ()); apperr.KindOf(err) != apperr.KindState {
		t.Fatalf("expected state error, got %v", err)
	}
}

func TestCheckInFillsRecordCreatedByOT(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	rec := &models.AttendanceRecord{UserID: e.user.ID, Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}
	if err := e.store.CreateAttendance(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
	in, err := e.svc.CheckIn(ctx, e.user.ID, nearHQ())
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if in.Record.ID != rec.ID {
		t.Fatalf("check-in created a second record")
	}
	stored, _ := e.store.GetAttendance(ctx, rec.ID)
	if stored.CheckInTime == nil || stored.CheckIn.Address != "HQ lobby" {
		t.Fatalf("check-in not stored on existing record: %+v", stored)
	}
}

func TestStaleCheckInDoesNotOverwrite(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	stale := &models.AttendanceRecord{UserID: e.user.ID, Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}
	if err := e.store.CreateAttendance(ctx, stale); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := e.svc.CheckIn(ctx, e.user.ID, nearHQ()); err != nil {
		t.Fatalf("check in: %v", err)
	}

	// a second request that read the record before the first one stamped it
	later := e.now.Add(3 * time.Minute)
	err := e.svc.stampCheckIn(ctx, stale, later, models.Evidence{Address: "car park"}, location.Result{})
	if !apperr.IsConflict(err) || apperr.PublicMessage(err) != "already checked in at 08:55" {
		t.Fatalf("stale stamp: %v", err)
	}
	stored, _ := e.store.GetAttendance(ctx, stale.ID)
	if !stored.CheckInTime.Equal(e.now) || stored.CheckIn.Address != "HQ lobby" {
		t.Fatalf("first check-in overwritten: %+v", stored)
	}
}

func TestConcurrentCheckInsOnExistingRecord(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	rec := &models.AttendanceRecord{UserID: e.user.ID, Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}
	if err := e.store.CreateAttendance(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.CheckIn(ctx, e.user.ID, nearHQ())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != 7 {
		t.Fatalf("ok=%d conflicts=%d, want 1 and 7", ok, conflicts)
	}
}

func TestCheckInLockedPeriod(t *testing.T) {
	e := newTestEnv(t)
	e.locks.locked = true
	if _, err := e.svc.CheckIn(context.Background(), e.user.ID, nearHQ()); apperr.KindOf(err) != apperr.KindPermission {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestTodayWithoutRecord(t *testing.T) {
	e := newTestEnv(t)
	rec, err := e.svc.Today(context.Background(), e.user.ID)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if rec.ID != 0 || rec.CheckInTime != nil || len(rec.Sessions) != 0 {
		t.Fatalf("expected an empty placeholder, got %+v", rec)
	}
}
