package calendar

import (
	"fmt"
	"strings"
	"time"
)

// WeekStart is the first day of a calendar week on the admin calendar.
const WeekStart = time.Sunday

// Range is a half open span of days [Start, End).
type Range struct {
	Start Date
	End   Date
}

// DayOf returns the single day range containing d.
func DayOf(d Date) Range {
	return Range{Start: d, End: d.AddDays(1)}
}

// WeekOf returns the Sunday-start week containing d.
func WeekOf(d Date) Range {
	offset := (int(d.Weekday()) - int(WeekStart) + 7) % 7
	start := d.AddDays(-offset)
	return Range{Start: start, End: start.AddDays(7)}
}

// MonthOf returns the calendar month containing d.
func MonthOf(d Date) Range {
	start := Date{Year: d.Year, Month: d.Month, Day: 1}
	return Range{Start: start, End: start.AddMonths(1)}
}

// ParseMonth parses a YYYY-MM value into the range of that month.
func ParseMonth(value string) (Range, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return MonthOf(DateOf(t)), nil
}

// Contains reports whether d falls inside r.
func (r Range) Contains(d Date) bool {
	return !d.Before(r.Start) && d.Before(r.End)
}

// Days returns the number of days in r.
func (r Range) Days() int {
	if !r.Start.Before(r.End) {
		return 0
	}
	return r.Start.DaysUntil(r.End)
}

// Dates lists every day in r in ascending order.
func (r Range) Dates() []Date {
	n := r.Days()
	if n == 0 {
		return nil
	}
	out := make([]Date, 0, n)
	for d := r.Start; d.Before(r.End); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// IsValid reports whether r spans at least one day.
func (r Range) IsValid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && r.Start.Before(r.End)
}

// String formats r as "start..end" with an exclusive end.
func (r Range) String() string {
	return r.Start.String() + ".." + r.End.String()
}

// MapMonthDate maps src, a day inside the month starting at from, to the day
// holding the same weekday in the same week-of-month inside the month
// starting at to. The second Tuesday maps to the second Tuesday. It reports
// false when the target month has no such day (a fifth Friday, say).
func MapMonthDate(src Date, from, to Date) (Date, bool) {
	fromMonth := MonthOf(from)
	if !fromMonth.Contains(src) {
		return Date{}, false
	}
	ordinal := (src.Day - 1) / 7
	weekday := src.Weekday()

	toMonth := MonthOf(to)
	first := toMonth.Start
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	candidate := first.AddDays(offset + 7*ordinal)
	if !toMonth.Contains(candidate) {
		return Date{}, false
	}
	return candidate, true
}
