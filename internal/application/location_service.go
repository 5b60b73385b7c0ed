package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/calendar"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/recurrence"
)

// LocationRepository captures the persistence operations needed by the location service.
type LocationRepository interface {
	CreateLocation(ctx context.Context, location Location) (Location, error)
	GetLocation(ctx context.Context, id string) (Location, error)
	UpdateLocation(ctx context.Context, location Location) (Location, error)
	DeleteLocation(ctx context.Context, id string) error
	ListLocations(ctx context.Context, filter LocationFilter) ([]Location, error)
}

// LocationService orchestrates validation, authorization, and persistence for venues.
type LocationService struct {
	locations   LocationRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewLocationService constructs a location service with the provided dependencies.
func NewLocationService(locations LocationRepository, idGenerator func() string, now func() time.Time) *LocationService {
	return NewLocationServiceWithLogger(locations, idGenerator, now, nil)
}

// NewLocationServiceWithLogger constructs a location service with a specified logger.
func NewLocationServiceWithLogger(locations LocationRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *LocationService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &LocationService{locations: locations, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *LocationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "LocationService", operation, attrs...)
}

// CreateLocation validates input and persists a new venue for administrators.
func (s *LocationService) CreateLocation(ctx context.Context, principal Principal, input LocationInput) (location Location, err error) {
	if s == nil {
		err = fmt.Errorf("LocationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateLocation", "principal_id", principal.EmployeeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create location", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("location_id", location.ID).InfoContext(ctx, "location created")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	var nights []time.Weekday
	nights, err = validateLocationInput(input)
	if err != nil {
		return
	}

	now := s.now()
	location = Location{
		ID:        s.idGenerator(),
		Name:      strings.TrimSpace(input.Name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyLocationInput(&location, input, nights)

	if s.locations == nil {
		return
	}

	var persisted Location
	persisted, err = s.locations.CreateLocation(ctx, location)
	if err != nil {
		err = mapLocationRepoError(err)
		return
	}
	location = persisted
	return
}

// UpdateLocation updates an existing venue. Shifts reference venues by name,
// so the name cannot change once created.
func (s *LocationService) UpdateLocation(ctx context.Context, principal Principal, locationID string, input LocationInput) (location Location, err error) {
	if s == nil {
		err = fmt.Errorf("LocationService is nil")
		return
	}
	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.locations == nil {
		err = fmt.Errorf("location repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateLocation",
		"principal_id", principal.EmployeeID,
		"location_id", locationID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update location", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "location updated")
	}()

	var existing Location
	existing, err = s.locations.GetLocation(ctx, locationID)
	if err != nil {
		err = mapLocationRepoError(err)
		return
	}

	var nights []time.Weekday
	nights, err = validateLocationInput(input)
	if err != nil {
		return
	}
	if strings.TrimSpace(input.Name) != existing.Name {
		err = fieldError("name", "location name cannot be changed")
		return
	}

	updated := existing
	applyLocationInput(&updated, input, nights)
	updated.UpdatedAt = s.now()

	location, err = s.locations.UpdateLocation(ctx, updated)
	if err != nil {
		err = mapLocationRepoError(err)
	}
	return
}

// DeleteLocation removes a venue for administrators.
func (s *LocationService) DeleteLocation(ctx context.Context, principal Principal, locationID string) error {
	if s == nil {
		return fmt.Errorf("LocationService is nil")
	}
	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	if s.locations == nil {
		return fmt.Errorf("location repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteLocation",
		"principal_id", principal.EmployeeID,
		"location_id", locationID,
	)

	if err := s.locations.DeleteLocation(ctx, locationID); err != nil {
		err = mapLocationRepoError(err)
		logger.ErrorContext(ctx, "failed to delete location", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "location deleted")
	return nil
}

// GetLocation returns one venue to any authenticated employee.
func (s *LocationService) GetLocation(ctx context.Context, principal Principal, locationID string) (Location, error) {
	if s == nil {
		return Location{}, fmt.Errorf("LocationService is nil")
	}
	if principal.EmployeeID == "" {
		return Location{}, ErrUnauthorized
	}
	if s.locations == nil {
		return Location{}, ErrNotFound
	}
	location, err := s.locations.GetLocation(ctx, locationID)
	if err != nil {
		return Location{}, mapLocationRepoError(err)
	}
	return location, nil
}

// ListLocations returns venues sorted by name for any authenticated employee.
func (s *LocationService) ListLocations(ctx context.Context, principal Principal, filter LocationFilter) (locations []Location, err error) {
	if s == nil {
		err = fmt.Errorf("LocationService is nil")
		return
	}
	if principal.EmployeeID == "" {
		err = ErrUnauthorized
		return
	}
	if s.locations == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListLocations", "principal_id", principal.EmployeeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list locations", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(locations)).InfoContext(ctx, "locations listed")
	}()

	var raw []Location
	raw, err = s.locations.ListLocations(ctx, filter)
	if err != nil {
		err = mapLocationRepoError(err)
		return
	}

	locations = make([]Location, len(raw))
	copy(locations, raw)
	slices.SortStableFunc(locations, func(a, b Location) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return
}

func applyLocationInput(location *Location, input LocationInput, nights []time.Weekday) {
	location.Address = strings.TrimSpace(input.Address)
	location.ContactName = strings.TrimSpace(input.ContactName)
	location.ContactEmail = strings.ToLower(strings.TrimSpace(input.ContactEmail))
	location.ContactPhone = strings.TrimSpace(input.ContactPhone)
	location.WeeklyNights = nights
	location.DefaultStartTime = strings.TrimSpace(input.DefaultStartTime)
	location.DefaultEndTime = strings.TrimSpace(input.DefaultEndTime)
	location.Notes = strings.TrimSpace(input.Notes)
	location.Active = input.Active
}

func validateLocationInput(input LocationInput) ([]time.Weekday, error) {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if email := strings.ToLower(strings.TrimSpace(input.ContactEmail)); email != "" {
		validateEmail(vErr, "contact_email", email)
	}
	validatePhone(vErr, "contact_phone", strings.TrimSpace(input.ContactPhone))

	for field, value := range map[string]string{
		"default_start_time": input.DefaultStartTime,
		"default_end_time":   input.DefaultEndTime,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := calendar.ParseClock(value); err != nil {
			vErr.add(field, "time must be HH:MM")
		}
	}

	nights := make([]time.Weekday, 0, len(input.WeeklyNights))
	for _, name := range input.WeeklyNights {
		day, ok := recurrence.ParseWeekday(name)
		if !ok {
			vErr.add("weekly_nights", fmt.Sprintf("unknown weekday %q", name))
			break
		}
		if !slices.Contains(nights, day) {
			nights = append(nights, day)
		}
	}
	slices.Sort(nights)

	if vErr.HasErrors() {
		return nil, vErr
	}
	return nights, nil
}

func mapLocationRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConstraintViolation):
		return fieldError("name", "name is required")
	}
	return err
}
