// Package timeutil is the single place where clock strings are parsed and
// day/month boundaries are computed. Department timings are stored as
// "09:00 AM" style strings; every caller goes through ParseClock.
package timeutil

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Clock is a wall-clock time of day without a date.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock accepts 12-hour ("9:00 AM", "09:00pm", "9 AM") and 24-hour
// ("21:00", "21:00:00") forms.
func ParseClock(s string) (Clock, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if raw == "" {
		return Clock{}, fmt.Errorf("timeutil: empty clock value")
	}

	meridiem := ""
	switch {
	case strings.HasSuffix(raw, "AM"):
		meridiem = "AM"
	case strings.HasSuffix(raw, "PM"):
		meridiem = "PM"
	}
	if meridiem != "" {
		raw = strings.TrimSpace(strings.TrimSuffix(raw, meridiem))
		raw = strings.TrimSuffix(raw, ".")
	}

	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return Clock{}, fmt.Errorf("timeutil: invalid clock %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return Clock{}, fmt.Errorf("timeutil: invalid hour in %q", s)
	}
	minute := 0
	if len(parts) >= 2 {
		if minute, err = strconv.Atoi(parts[1]); err != nil || minute < 0 || minute > 59 {
			return Clock{}, fmt.Errorf("timeutil: invalid minute in %q", s)
		}
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return Clock{}, fmt.Errorf("timeutil: invalid second in %q", s)
		}
	}

	if meridiem != "" {
		if hour < 1 || hour > 12 {
			return Clock{}, fmt.Errorf("timeutil: invalid 12-hour value %q", s)
		}
		if hour == 12 {
			hour = 0
		}
		if meridiem == "PM" {
			hour += 12
		}
	} else if len(parts) < 2 || hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("timeutil: invalid clock %q", s)
	}

	return Clock{Hour: hour, Minute: minute}, nil
}

// MustParseClock panics on invalid input. Meant for constants and tests.
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// On returns the instant this clock time falls on the calendar day of date,
// in date's location.
func (c Clock) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, date.Location())
}

// String formats the clock the way department timings are stored.
func (c Clock) String() string {
	h := c.Hour % 12
	if h == 0 {
		h = 12
	}
	suffix := "AM"
	if c.Hour >= 12 {
		suffix = "PM"
	}
	return fmt.Sprintf("%02d:%02d %s", h, c.Minute, suffix)
}

func (c Clock) Format24() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// DayStart truncates t to midnight in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDay is the last representable instant of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return DayStart(t, loc).AddDate(0, 0, 1).Add(-time.Millisecond)
}

// CalendarDate returns midnight UTC of t's calendar day in loc. This is the
// form DATE columns round-trip through the database.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LocalDay is the inverse of CalendarDate: midnight of the stored date in loc.
func LocalDay(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// MonthRange returns [start, end) of a calendar month in loc.
func MonthRange(month, year int, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// ParseDate reads a YYYY-MM-DD date as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
}

// Hours converts a duration to hours rounded to two decimals.
func Hours(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return RoundHours(d.Hours())
}

func RoundHours(h float64) float64 {
	return math.Round(h*100) / 100
}

// HumanDuration renders "2h 05m" for notes shown to reviewers.
func HumanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %02dm", h, m)
}
