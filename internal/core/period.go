package core

import (
	"strconv"
	"strings"
	"time"
)

const (
	MinYear = 1970
	MaxYear = 9999
)

// Period is the half-open instant range [Start, End). It covers exactly the
// closed range from Start through the last instant before End.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// DayPeriod returns local midnight to midnight for the day containing t in loc.
func DayPeriod(t time.Time, loc *time.Location) Period {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return Period{Start: start, End: start.AddDate(0, 0, 1)}
}

// MonthPeriod returns the first through last instant of year/month in loc.
func MonthPeriod(year int, month time.Month, loc *time.Location) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// PreviousMonth returns the month before year/month; January rolls back to
// December of the prior year.
func PreviousMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}

// ParseMonth validates an optional 1-12 month parameter. Empty returns def.
func ParseMonth(s string, def time.Month) (time.Month, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	m, err := strconv.Atoi(s)
	if err != nil || m < 1 || m > 12 {
		return 0, NewValidationError("month", "month must be an integer between 1 and 12")
	}
	return time.Month(m), nil
}

// ParseYear validates an optional year parameter. Empty returns def.
func ParseYear(s string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < MinYear || y > MaxYear {
		return 0, NewValidationError("year", "year must be an integer between 1970 and 9999")
	}
	return y, nil
}

// ParseDate accepts YYYY-MM-DD (interpreted in loc) or an RFC 3339 timestamp.
func ParseDate(field, s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Time{}, NewValidationError(field, "invalid date '"+s+"': use YYYY-MM-DD or RFC 3339")
}

// ParseEndDate parses an inclusive upper bound and returns the exclusive
// instant after it: the next midnight for YYYY-MM-DD, one millisecond later
// for a timestamp.
func ParseEndDate(field, s string, loc *time.Location) (time.Time, error) {
	t, err := ParseDate(field, s, loc)
	if err != nil {
		return time.Time{}, err
	}
	if len(strings.TrimSpace(s)) == len(time.DateOnly) {
		return t.AddDate(0, 0, 1), nil
	}
	return t.Add(time.Millisecond), nil
}
