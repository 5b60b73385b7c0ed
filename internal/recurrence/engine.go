// Package recurrence expands weekly venue templates into shift dates.
package recurrence

import (
	"errors"
	"strings"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/calendar"
)

// Frequency represents supported recurrence intervals.
type Frequency int

const (
	// FrequencyUnspecified indicates the rule frequency is not set.
	FrequencyUnspecified Frequency = iota
	// FrequencyDaily generates occurrences for each day within the range.
	FrequencyDaily
	// FrequencyWeekly generates occurrences for the selected weekdays.
	FrequencyWeekly
	// FrequencyBiweekly generates occurrences for the selected weekdays every
	// other week, counted from the week containing StartsOn.
	FrequencyBiweekly
)

// MaxOccurrences bounds a single expansion so a mistyped end date cannot
// create years of shifts in one request.
const MaxOccurrences = 366

// Rule describes a recurring night at a venue.
type Rule struct {
	Frequency Frequency
	Weekdays  []time.Weekday
	StartsOn  calendar.Date
	EndsOn    calendar.Date
	// Except lists dates to leave out (holidays, private bookings).
	Except []calendar.Date
}

// ErrInvalidFrequency indicates the recurrence frequency is not supported.
var ErrInvalidFrequency = errors.New("recurrence: invalid frequency")

// ErrInvalidWindow indicates the rule has no usable date window.
var ErrInvalidWindow = errors.New("recurrence: rule requires a start and an end on or after it")

// ErrTooManyOccurrences indicates the expansion exceeded MaxOccurrences.
var ErrTooManyOccurrences = errors.New("recurrence: too many occurrences")

// Engine expands recurrence rules into dates.
type Engine struct {
	limit int
}

// NewEngine constructs an Engine. A limit of zero or less uses MaxOccurrences.
func NewEngine(limit int) *Engine {
	if limit <= 0 {
		limit = MaxOccurrences
	}
	return &Engine{limit: limit}
}

// Expand returns the dates matched by rule between StartsOn and EndsOn, both
// inclusive, in ascending order.
func (e *Engine) Expand(rule Rule) ([]calendar.Date, error) {
	if rule.StartsOn.IsZero() || rule.EndsOn.IsZero() || rule.EndsOn.Before(rule.StartsOn) {
		return nil, ErrInvalidWindow
	}

	weekdaySet := make(map[time.Weekday]struct{}, len(rule.Weekdays))
	for _, day := range rule.Weekdays {
		weekdaySet[day] = struct{}{}
	}
	skip := make(map[calendar.Date]struct{}, len(rule.Except))
	for _, d := range rule.Except {
		skip[d] = struct{}{}
	}

	firstWeek := calendar.WeekOf(rule.StartsOn).Start
	out := make([]calendar.Date, 0)
	for current := rule.StartsOn; !current.After(rule.EndsOn); current = current.AddDays(1) {
		include, err := shouldInclude(rule.Frequency, weekdaySet, current, firstWeek)
		if err != nil {
			return nil, err
		}
		if !include {
			continue
		}
		if _, excluded := skip[current]; excluded {
			continue
		}
		if len(out) == e.limit {
			return nil, ErrTooManyOccurrences
		}
		out = append(out, current)
	}
	return out, nil
}

func shouldInclude(freq Frequency, weekdaySet map[time.Weekday]struct{}, day, firstWeek calendar.Date) (bool, error) {
	_, selected := weekdaySet[day.Weekday()]
	switch freq {
	case FrequencyDaily:
		if len(weekdaySet) == 0 {
			return true, nil
		}
		return selected, nil
	case FrequencyWeekly:
		return selected, nil
	case FrequencyBiweekly:
		if !selected {
			return false, nil
		}
		weeks := firstWeek.DaysUntil(calendar.WeekOf(day).Start) / 7
		return weeks%2 == 0, nil
	case FrequencyUnspecified:
		fallthrough
	default:
		return false, ErrInvalidFrequency
	}
}

// ParseFrequency maps a wire value ("daily", "weekly", "biweekly") to a Frequency.
func ParseFrequency(value string) (Frequency, bool) {
	switch value {
	case "daily":
		return FrequencyDaily, true
	case "weekly", "":
		return FrequencyWeekly, true
	case "biweekly":
		return FrequencyBiweekly, true
	}
	return FrequencyUnspecified, false
}

// ParseWeekday maps an English weekday name or three letter abbreviation,
// case-insensitively, to a time.Weekday.
func ParseWeekday(value string) (time.Weekday, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if value == name || value == name[:3] {
			return d, true
		}
	}
	return 0, false
}
