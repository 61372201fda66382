package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	// PeriodLayout formats a calendar month key ("2024-07").
	PeriodLayout = "2006-01"
	// DayLayout formats a calendar day key ("2024-07-01").
	DayLayout = "2006-01-02"
)

// Period is a "YYYY-MM" calendar month key. Keys compare chronologically
// as plain strings.
type Period string

// PeriodOf returns the period key of t in t's location.
func PeriodOf(t time.Time) Period {
	return Period(t.Format(PeriodLayout))
}

// ParsePeriod validates a "YYYY-MM" key.
func ParsePeriod(s string) (Period, error) {
	if _, err := time.Parse(PeriodLayout, s); err != nil {
		return "", fmt.Errorf("%w %q", ErrInvalidPeriod, s)
	}
	return Period(s), nil
}

func (p Period) String() string { return string(p) }

// YearMonth splits the key into its year and month.
func (p Period) YearMonth() (int, time.Month, error) {
	t, err := time.Parse(PeriodLayout, string(p))
	if err != nil {
		return 0, 0, fmt.Errorf("%w %q", ErrInvalidPeriod, string(p))
	}
	return t.Year(), t.Month(), nil
}

// DueDate combines the period with a day of month at midnight in loc.
// Days past the end of the month roll over into the next month, as
// calendar arithmetic does.
func (p Period) DueDate(day int, loc *time.Location) (time.Time, error) {
	year, month, err := p.YearMonth()
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc), nil
}

// FirstDayOfMonth returns midnight of the first day of t's month.
func FirstDayOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// DayKey formats t as "YYYY-MM-DD".
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// MonthKey is the day key of the first day of t's month, the value stored
// as rollover marker.
func MonthKey(t time.Time) string {
	return DayKey(FirstDayOfMonth(t))
}

// AddMonths adds n calendar months to t. The day of month is kept when it
// exists in the target month and overflows into the following month
// otherwise (Jan 31 + 1 month = Mar 3 in a non leap year).
func AddMonths(t time.Time, n int) time.Time {
	return t.AddDate(0, n, 0)
}

// FormatDate renders a date as DD/MM/YYYY.
func FormatDate(d Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format("02/01/2006")
}

var monthNamesPT = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// FormatPeriod renders a period as a long month label ("março de 2024").
func FormatPeriod(p Period) string {
	year, month, err := p.YearMonth()
	if err != nil {
		return strings.TrimSpace(string(p))
	}
	return fmt.Sprintf("%s de %d", monthNamesPT[month-1], year)
}
