package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidClock is returned when a value is not a valid HH:MM time of day.
var ErrInvalidClock = errors.New("calendar: invalid time of day")

// Clock is a wall clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses a 24 hour HH:MM value.
func ParseClock(value string) (Clock, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse("15:04", value)
	if err != nil || len(value) != 5 {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// String formats c as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes returns the number of minutes since midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// DurationUntil returns the length of a shift running from c to end. An end
// at or before the start is treated as running past midnight.
func (c Clock) DurationUntil(end Clock) time.Duration {
	minutes := end.Minutes() - c.Minutes()
	if minutes <= 0 {
		minutes += 24 * 60
	}
	return time.Duration(minutes) * time.Minute
}
