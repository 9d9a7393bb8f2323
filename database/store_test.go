package database

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"otengine/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{name: "record not found", err: gorm.ErrRecordNotFound, want: apperr.KindNotFound},
		{name: "wrapped not found", err: fmt.Errorf("query: %w", gorm.ErrRecordNotFound), want: apperr.KindNotFound},
		{name: "open session index", err: &pgconn.PgError{Code: "23505", ConstraintName: "uniq_ot_sessions_open"}, want: apperr.KindConflict},
		{name: "other unique", err: &pgconn.PgError{Code: "23505", ConstraintName: "idx_payroll_month_year"}, want: apperr.KindConflict},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}, want: apperr.KindValidation},
		{name: "connection", err: errors.New("connection refused"), want: apperr.KindInfrastructure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapError(tc.err, "thing")
			if apperr.KindOf(got) != tc.want {
				t.Fatalf("KindOf(mapError(%v)) = %s, want %s", tc.err, apperr.KindOf(got), tc.want)
			}
		})
	}
	if mapError(nil, "thing") != nil {
		t.Fatalf("nil must map to nil")
	}
}

func TestOpenSessionConflictMessage(t *testing.T) {
	err := mapError(&pgconn.PgError{Code: "23505", ConstraintName: "uniq_ot_sessions_open"}, "OT session")
	if apperr.PublicMessage(err) != "an OT session is already in progress for this day" {
		t.Fatalf("unexpected message %q", apperr.PublicMessage(err))
	}
}

func TestDateParamUsesCalendarDate(t *testing.T) {
	d := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if got := dateParam(d); got != "2026-03-02" {
		t.Fatalf("dateParam = %q", got)
	}
}
