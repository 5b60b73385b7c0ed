package firestore

import (
	"context"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

type shiftDoc struct {
	Date        string    `firestore:"date"`
	EmployeeID  string    `firestore:"employee_id"`
	StartTime   string    `firestore:"start_time"`
	EndTime     string    `firestore:"end_time"`
	EventType   string    `firestore:"event_type"`
	Theme       string    `firestore:"theme"`
	Location    string    `firestore:"location"`
	LocationKey string    `firestore:"location_key"`
	Notes       string    `firestore:"notes"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

func toShiftDoc(s persistence.Shift) shiftDoc {
	return shiftDoc{
		Date:        s.Date,
		EmployeeID:  s.EmployeeID,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		EventType:   s.EventType,
		Theme:       s.Theme,
		Location:    s.Location,
		LocationKey: strings.ToLower(strings.TrimSpace(s.Location)),
		Notes:       s.Notes,
		CreatedAt:   s.CreatedAt.UTC(),
		UpdatedAt:   s.UpdatedAt.UTC(),
	}
}

func decodeShift(snap *firestore.DocumentSnapshot) (persistence.Shift, error) {
	d, err := decodeAs[shiftDoc](snap)
	if err != nil {
		return persistence.Shift{}, err
	}
	return persistence.Shift{
		ID:         snap.Ref.ID,
		Date:       d.Date,
		EmployeeID: d.EmployeeID,
		StartTime:  d.StartTime,
		EndTime:    d.EndTime,
		EventType:  d.EventType,
		Theme:      d.Theme,
		Location:   d.Location,
		Notes:      d.Notes,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}, nil
}

// CreateShift stores a new shift.
func (s *Store) CreateShift(ctx context.Context, shift persistence.Shift) error {
	if shift.ID == "" || shift.Date == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.col(shiftsCollection).Doc(shift.ID).Create(ctx, toShiftDoc(shift))
	return mapError(err)
}

// UpdateShift overwrites an existing shift. Concurrent updates are
// last-write-wins.
func (s *Store) UpdateShift(ctx context.Context, shift persistence.Shift) error {
	if shift.ID == "" || shift.Date == "" {
		return persistence.ErrConstraintViolation
	}
	ref := s.col(shiftsCollection).Doc(shift.ID)
	doc := toShiftDoc(shift)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := decodeAs[shiftDoc](snap)
		if err != nil {
			return err
		}
		doc.CreatedAt = current.CreatedAt
		return tx.Set(ref, doc)
	})
	return mapError(err)
}

// GetShift retrieves a shift by ID.
func (s *Store) GetShift(ctx context.Context, id string) (persistence.Shift, error) {
	if id == "" {
		return persistence.Shift{}, persistence.ErrNotFound
	}
	snap, err := s.col(shiftsCollection).Doc(id).Get(ctx)
	if err != nil {
		return persistence.Shift{}, mapError(err)
	}
	return decodeShift(snap)
}

// ListShifts returns shifts matching filter ordered by date, start time and
// id. The date range runs in the query; employee and venue filters are
// applied after so no composite index is needed.
func (s *Store) ListShifts(ctx context.Context, filter persistence.ShiftFilter) ([]persistence.Shift, error) {
	q := s.col(shiftsCollection).Query
	if filter.From != "" {
		q = q.Where("date", ">=", filter.From)
	}
	if filter.To != "" {
		q = q.Where("date", "<", filter.To)
	}
	all, err := collect(q.Documents(ctx), decodeShift)
	if err != nil {
		return nil, err
	}

	location := strings.ToLower(strings.TrimSpace(filter.Location))
	shifts := all[:0]
	for _, shift := range all {
		if filter.EmployeeID != "" && shift.EmployeeID != filter.EmployeeID {
			continue
		}
		if location != "" && strings.ToLower(strings.TrimSpace(shift.Location)) != location {
			continue
		}
		shifts = append(shifts, shift)
	}
	slices.SortFunc(shifts, func(a, b persistence.Shift) int {
		if c := strings.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		if c := strings.Compare(a.StartTime, b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return shifts, nil
}

// DeleteShift removes a shift by ID.
func (s *Store) DeleteShift(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	ref := s.col(shiftsCollection).Doc(id)
	_, err := ref.Delete(ctx, firestore.Exists)
	return mapError(err)
}
