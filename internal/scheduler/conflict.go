// Package scheduler detects double-booked hosts on the shift calendar.
package scheduler

import (
	"sort"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/calendar"
)

// Shift is the slice of a shift that booking checks look at.
type Shift struct {
	ID         string
	EmployeeID string
	Date       calendar.Date
	Location   string
}

// DoubleBooking groups two or more shifts that put one employee on the same
// date.
type DoubleBooking struct {
	EmployeeID string
	Date       calendar.Date
	ShiftIDs   []string
}

// Conflict names an existing shift the candidate would double-book.
type Conflict struct {
	WithShiftID string
	EmployeeID  string
	Date        calendar.Date
	Location    string
}

type bookingKey struct {
	employee string
	date     calendar.Date
}

// DetectDoubleBookings returns every group of shifts sharing employee and
// date. Unassigned shifts are ignored. Groups are ordered by date, then
// employee, and shift ids inside a group are sorted.
func DetectDoubleBookings(shifts []Shift) []DoubleBooking {
	groups := make(map[bookingKey][]string)
	for _, s := range shifts {
		if s.EmployeeID == "" || s.Date.IsZero() {
			continue
		}
		key := bookingKey{employee: s.EmployeeID, date: s.Date}
		groups[key] = append(groups[key], s.ID)
	}

	out := make([]DoubleBooking, 0)
	for key, ids := range groups {
		if len(ids) < 2 {
			continue
		}
		sorted := append([]string(nil), ids...)
		sort.Strings(sorted)
		out = append(out, DoubleBooking{EmployeeID: key.employee, Date: key.date, ShiftIDs: sorted})
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out
}

// ConflictsFor returns the existing shifts candidate would double-book. A
// shift never conflicts with itself, so updates pass the stored copy in
// existing without tripping the check.
func ConflictsFor(existing []Shift, candidate Shift) []Conflict {
	if candidate.EmployeeID == "" || candidate.Date.IsZero() {
		return nil
	}

	conflicts := make([]Conflict, 0)
	for _, s := range existing {
		if s.ID == candidate.ID && candidate.ID != "" {
			continue
		}
		if s.EmployeeID != candidate.EmployeeID || s.Date != candidate.Date {
			continue
		}
		conflicts = append(conflicts, Conflict{
			WithShiftID: s.ID,
			EmployeeID:  s.EmployeeID,
			Date:        s.Date,
			Location:    s.Location,
		})
	}

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].WithShiftID < conflicts[j].WithShiftID
	})
	return conflicts
}

// Flagged returns the set of shift ids appearing in any group.
func Flagged(groups []DoubleBooking) map[string]struct{} {
	out := make(map[string]struct{})
	for _, g := range groups {
		for _, id := range g.ShiftIDs {
			out[id] = struct{}{}
		}
	}
	return out
}
