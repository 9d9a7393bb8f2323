package timeutil

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in         string
		hour, min  int
		shouldFail bool
	}{
		{in: "09:00 AM", hour: 9},
		{in: "9:30am", hour: 9, min: 30},
		{in: "12:00 AM", hour: 0},
		{in: "12:15 PM", hour: 12, min: 15},
		{in: "6:45 pm", hour: 18, min: 45},
		{in: "9 AM", hour: 9},
		{in: "21:00", hour: 21},
		{in: "08:55:00", hour: 8, min: 55},
		{in: "", shouldFail: true},
		{in: "13:00 PM", shouldFail: true},
		{in: "25:00", shouldFail: true},
		{in: "9", shouldFail: true},
		{in: "09:75", shouldFail: true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.shouldFail {
			if err == nil {
				t.Fatalf("ParseClock(%q): expected error, got %+v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseClock(%q): %v", tc.in, err)
		}
		if got.Hour != tc.hour || got.Minute != tc.min {
			t.Fatalf("ParseClock(%q) = %02d:%02d, want %02d:%02d", tc.in, got.Hour, got.Minute, tc.hour, tc.min)
		}
	}
}

func TestClockStringRoundTrip(t *testing.T) {
	for _, s := range []string{"12:00 AM", "09:05 AM", "12:30 PM", "11:59 PM"} {
		c := MustParseClock(s)
		if c.String() != s {
			t.Fatalf("String() = %q, want %q", c.String(), s)
		}
	}
	if got := MustParseClock("6:00 PM").Format24(); got != "18:00" {
		t.Fatalf("Format24 = %q", got)
	}
}

func TestClockOnKeepsLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	day := time.Date(2026, 3, 2, 22, 10, 0, 0, loc)
	got := MustParseClock("09:00 AM").On(day)
	want := time.Date(2026, 3, 2, 9, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("On = %v, want %v", got, want)
	}
}

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	ts := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC) // 01:30 on the 3rd in IST
	if got := DayStart(ts, loc); !got.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, loc)) {
		t.Fatalf("DayStart = %v", got)
	}
	end := EndOfDay(ts, loc)
	if end.In(loc).Day() != 3 || end.In(loc).Hour() != 23 {
		t.Fatalf("EndOfDay = %v", end)
	}
	start, stop := MonthRange(12, 2026, loc)
	if start.Month() != time.December || stop.Year() != 2027 || stop.Month() != time.January {
		t.Fatalf("MonthRange = %v %v", start, stop)
	}
}

func TestCalendarDateRoundTrip(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	ts := time.Date(2026, 3, 3, 0, 30, 0, 0, loc) // still the 2nd in UTC
	date := CalendarDate(ts, loc)
	if date.Location() != time.UTC || date.Day() != 3 || date.Hour() != 0 {
		t.Fatalf("CalendarDate = %v", date)
	}
	if got := LocalDay(date, loc); !got.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, loc)) {
		t.Fatalf("LocalDay = %v", got)
	}
}

func TestHours(t *testing.T) {
	if got := Hours(time.Hour); got != 1 {
		t.Fatalf("Hours(1h) = %v", got)
	}
	if got := Hours(100 * time.Minute); got != 1.67 {
		t.Fatalf("Hours(100m) = %v", got)
	}
	if got := Hours(-time.Minute); got != 0 {
		t.Fatalf("Hours(negative) = %v", got)
	}
	if got := HumanDuration(125 * time.Minute); got != "2h 05m" {
		t.Fatalf("HumanDuration = %q", got)
	}
}
