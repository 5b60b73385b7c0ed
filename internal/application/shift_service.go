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
	"github.com/veator13/mybeachtrivia.com-sub001/internal/scheduler"
)

// maxListDays bounds explicit from/to listings.
const maxListDays = 366

// ShiftRepository captures the persistence interactions needed by the service.
type ShiftRepository interface {
	CreateShift(ctx context.Context, shift Shift) (Shift, error)
	GetShift(ctx context.Context, id string) (Shift, error)
	UpdateShift(ctx context.Context, shift Shift) (Shift, error)
	DeleteShift(ctx context.Context, id string) error
	ListShifts(ctx context.Context, filter ShiftRepositoryFilter) ([]Shift, error)
}

// EmployeeDirectory exposes employee lookups needed for shift validation and export.
type EmployeeDirectory interface {
	EmployeeExists(ctx context.Context, id string) (bool, error)
	EmployeeNames(ctx context.Context, ids []string) (map[string]string, error)
}

// LocationCatalog exposes venue lookups by name. ResolveLocation matches name
// ignoring case and returns the venue's stored spelling.
type LocationCatalog interface {
	ResolveLocation(ctx context.Context, name string) (canonical string, ok bool, err error)
}

// ShiftExporter renders a month of shifts as a spreadsheet.
type ShiftExporter interface {
	ExportMonth(month calendar.Range, shifts []Shift, employeeNames map[string]string) ([]byte, error)
}

// ShiftService orchestrates validation, double-booking checks, and persistence for shifts.
type ShiftService struct {
	shifts      ShiftRepository
	employees   EmployeeDirectory
	locations   LocationCatalog
	exporter    ShiftExporter
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	warnings    *warningCache
}

// NewShiftService wires dependencies for shift operations.
func NewShiftService(shifts ShiftRepository, employees EmployeeDirectory, locations LocationCatalog, exporter ShiftExporter, idGenerator func() string, now func() time.Time) *ShiftService {
	return NewShiftServiceWithLogger(shifts, employees, locations, exporter, idGenerator, now, nil)
}

// NewShiftServiceWithLogger wires dependencies for shift operations with a specified logger.
func NewShiftServiceWithLogger(shifts ShiftRepository, employees EmployeeDirectory, locations LocationCatalog, exporter ShiftExporter, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ShiftService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ShiftService{
		shifts:      shifts,
		employees:   employees,
		locations:   locations,
		exporter:    exporter,
		engine:      recurrence.NewEngine(0),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
		warnings:    newWarningCache(30*time.Second, 128, now),
	}
}

// DisableWarningCache makes every listing recompute its warnings. Use it when
// other processes write to the same store.
func (s *ShiftService) DisableWarningCache() {
	if s != nil {
		s.warnings = nil
	}
}

func (s *ShiftService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ShiftService", operation, attrs...)
}

func (s *ShiftService) today() calendar.Date {
	return calendar.DateOf(s.now())
}

// CreateShift validates input and stores a new shift for administrators. A
// double-booking is reported in the result but does not block the write.
func (s *ShiftService) CreateShift(ctx context.Context, principal Principal, input ShiftInput) (result ShiftResult, err error) {
	if s == nil {
		err = fmt.Errorf("ShiftService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateShift", "principal_id", principal.EmployeeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create shift", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"shift_id", result.Shift.ID,
			"warning_count", len(result.Warnings),
		).InfoContext(ctx, "shift created")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.shifts == nil {
		err = fmt.Errorf("shift repository not configured")
		return
	}

	var shift Shift
	shift, err = s.buildShift(ctx, input)
	if err != nil {
		return
	}
	shift.ID = s.idGenerator()
	shift.CreatedAt = s.now()
	shift.UpdatedAt = shift.CreatedAt

	result, err = s.storeNew(ctx, shift)
	return
}

// UpdateShift replaces the fields of an existing shift for administrators.
func (s *ShiftService) UpdateShift(ctx context.Context, principal Principal, shiftID string, input ShiftInput) (result ShiftResult, err error) {
	if s == nil {
		err = fmt.Errorf("ShiftService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateShift",
		"principal_id", principal.EmployeeID,
		"shift_id", shiftID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update shift", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("warning_count", len(result.Warnings)).InfoContext(ctx, "shift updated")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.shifts == nil {
		err = fmt.Errorf("shift repository not configured")
		return
	}

	var existing Shift
	existing, err = s.shifts.GetShift(ctx, shiftID)
	if err != nil {
		err = mapShiftRepoError(err)
		return
	}

	var shift Shift
	shift, err = s.buildShift(ctx, input)
	if err != nil {
		return
	}
	shift.ID = existing.ID
	shift.CreatedAt = existing.CreatedAt
	shift.UpdatedAt = s.now()

	result, err = s.storeUpdate(ctx, shift)
	return
}

// MoveShift changes the date of a shift, keeping everything else.
func (s *ShiftService) MoveShift(ctx context.Context, principal Principal, shiftID, date string) (result ShiftResult, err error) {
	if s == nil {
		err = fmt.Errorf("ShiftService is nil")
		return
	}

	logger := s.loggerWith(ctx, "MoveShift",
		"principal_id", principal.EmployeeID,
		"shift_id", shiftID,
		"target_date", date,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to move shift", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("warning_count", len(result.Warnings)).InfoContext(ctx, "shift moved")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.shifts == nil {
		err = fmt.Errorf("shift repository not configured")
		return
	}

	target, perr := calendar.ParseDate(date)
	if perr != nil {
		err = fieldError("date", "date must be a valid YYYY-MM-DD calendar date")
		return
	}

	var shift Shift
	shift, err = s.shifts.GetShift(ctx, shiftID)
	if err != nil {
		err = mapShiftRepoError(err)
		return
	}
	shift.Date = target
	shift.UpdatedAt = s.now()

	result, err = s.storeUpdate(ctx, shift)
	return
}

// CopyShift duplicates a shift onto another date.
func (s *ShiftService) CopyShift(ctx context.Context, principal Principal, shiftID, date string) (result ShiftResult, err error) {
	if s == nil {
		err = fmt.Errorf("ShiftService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CopyShift",
		"principal_id", principal.EmployeeID,
		"shift_id", shiftID,
		"target_date", date,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to copy shift", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("copy_id", result.Shift.ID, "warning_count", len(result.Warnings)).InfoContext(ctx, "shift copied")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.shifts == nil {
		err = fmt.Errorf("shift repository not configured")
		return
	}

	target, perr := calendar.ParseDate(date)
	if perr != nil {
		err = fieldError("date", "date must be a valid YYYY-MM-DD calendar date")
		return
	}

	var source Shift
	source, err = s.shifts.GetShift(ctx, shiftID)
	if err != nil {
		err = mapShiftRepoError(err)
		return
	}

	copied := source
	copied.ID = s.idGenerator()
	copied.Date = target
	copied.CreatedAt = s.now()
	copied.UpdatedAt = copied.CreatedAt

	result, err = s.storeNew(ctx, copied)
	return
}

// DeleteShift removes a shift for administrators.
func (s *ShiftService) DeleteShift(ctx context.Context, principal Principal, shiftID string) error {
	if s == nil {
		return fmt.Errorf("ShiftService is nil")
	}
	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	if s.shifts == nil {
		return fmt.Errorf("shift repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteShift",
		"principal_id", principal.EmployeeID,
		"shift_id", shiftID,
	)

	if err := s.shifts.DeleteShift(ctx, shiftID); err != nil {
		err = mapShiftRepoError(err)
		logger.ErrorContext(ctx, "failed to delete shift", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	s.warnings.Invalidate()

	logger.InfoContext(ctx, "shift deleted")
	return nil
}

// GetShift returns a shift to an administrator or to the employee it is assigned to.
func (s *ShiftService) GetShift(ctx context.Context, principal Principal, shiftID string) (Shift, error) {
	if s == nil {
		return Shift{}, fmt.Errorf("ShiftService is nil")
	}
	if s.shifts == nil {
		return Shift{}, fmt.Errorf("shift repository not configured")
	}
	shift, err := s.shifts.GetShift(ctx, shiftID)
	if err != nil {
		return Shift{}, mapShiftRepoError(err)
	}
	if !principal.IsAdmin && shift.EmployeeID != principal.EmployeeID {
		return Shift{}, ErrNotFound
	}
	return shift, nil
}

// ListShifts returns shifts in the requested range with the double-bookings
// among them. Non-admin employees only see their own shifts.
func (s *ShiftService) ListShifts(ctx context.Context, params ListShiftsParams) (result ListShiftsResult, err error) {
	if s == nil {
		err = fmt.Errorf("ShiftService is nil")
		return
	}
	if s.shifts == nil {
		err = fmt.Errorf("shift repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "ListShifts",
		"principal_id", params.Principal.EmployeeID,
		"period", string(params.Period),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list shifts", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"range", result.Range.String(),
			"result_count", len(result.Shifts),
			"warning_count", len(result.Warnings),
		).InfoContext(ctx, "shifts listed")
	}()

	if params.Principal.EmployeeID == "" {
		err = ErrUnauthorized
		return
	}

	var rng calendar.Range
	rng, err = s.resolveRange(params.Period, params.Reference, params.From, params.To)
	if err != nil {
		return
	}

	filter := ShiftRepositoryFilter{
		Range:      rng,
		EmployeeID: strings.TrimSpace(params.EmployeeID),
		Location:   strings.TrimSpace(params.Location),
	}
	if !params.Principal.IsAdmin {
		filter.EmployeeID = params.Principal.EmployeeID
	}

	var shifts []Shift
	shifts, err = s.shifts.ListShifts(ctx, filter)
	if err != nil {
		err = mapShiftRepoError(err)
		return
	}
	sortShifts(shifts)

	key := buildWarningCacheKey(params.Principal, filter)
	warnings, ok := s.warnings.Get(key)
	if !ok {
		warnings, err = s.listWarnings(ctx, filter, shifts)
		if err != nil {
			return
		}
		s.warnings.Store(key, warnings)
	}

	result = ListShiftsResult{Range: rng, Shifts: shifts, Warnings: warnings}
	return
}

// Conflicts lists every double-booking between from and to inclusive.
func (s *ShiftService) Conflicts(ctx context.Context, principal Principal, from, to calendar.Date) ([]ConflictWarning, error) {
	if !principal.IsAdmin {
		return nil, ErrUnauthorized
	}
	result, err := s.ListShifts(ctx, ListShiftsParams{Principal: principal, From: from, To: to})
	if err != nil {
		return nil, err
	}
	return result.Warnings, nil
}

// MyShifts returns the caller's shifts from today onward.
func (s *ShiftService) MyShifts(ctx context.Context, principal Principal) (shifts []Shift, err error) {
	if s == nil {
		err = fmt.Errorf("ShiftService is nil")
		return
	}
	if s.shifts == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "MyShifts", "principal_id", principal.EmployeeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list own shifts", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(shifts)).InfoContext(ctx, "own shifts listed")
	}()

	if principal.EmployeeID == "" {
		err = ErrUnauthorized
		return
	}

	shifts, err = s.shifts.ListShifts(ctx, ShiftRepositoryFilter{
		Range:      calendar.Range{Start: s.today()},
		EmployeeID: principal.EmployeeID,
	})
	if err != nil {
		err = mapShiftRepoError(err)
		return
	}
	sortShifts(shifts)
	return
}

// ExportMonth renders the shifts of month (YYYY-MM) as a spreadsheet for administrators.
func (s *ShiftService) ExportMonth(ctx context.Context, principal Principal, month string) (data []byte, rng calendar.Range, err error) {
	if s == nil {
		err = fmt.Errorf("ShiftService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ExportMonth", "principal_id", principal.EmployeeID, "month", month)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to export shifts", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("bytes", len(data)).InfoContext(ctx, "shifts exported")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.shifts == nil || s.exporter == nil {
		err = fmt.Errorf("shift export not configured")
		return
	}

	var perr error
	rng, perr = calendar.ParseMonth(month)
	if perr != nil {
		err = fieldError("month", "month must be YYYY-MM")
		return
	}

	var shifts []Shift
	shifts, err = s.shifts.ListShifts(ctx, ShiftRepositoryFilter{Range: rng})
	if err != nil {
		err = mapShiftRepoError(err)
		return
	}
	sortShifts(shifts)

	names := map[string]string{}
	if s.employees != nil {
		ids := make([]string, 0, len(shifts))
		for _, shift := range shifts {
			if shift.EmployeeID != "" && !slices.Contains(ids, shift.EmployeeID) {
				ids = append(ids, shift.EmployeeID)
			}
		}
		names, err = s.employees.EmployeeNames(ctx, ids)
		if err != nil {
			return
		}
	}

	data, err = s.exporter.ExportMonth(rng, shifts, names)
	return
}

// buildShift validates input and resolves it into a Shift without id or timestamps.
func (s *ShiftService) buildShift(ctx context.Context, input ShiftInput) (Shift, error) {
	vErr := &ValidationError{}

	date, err := calendar.ParseDate(input.Date)
	if err != nil {
		vErr.add("date", "date must be a valid YYYY-MM-DD calendar date")
	}
	shift := validateShiftFields(input, vErr)
	shift.Date = date
	if vErr.HasErrors() {
		return Shift{}, vErr
	}

	if err := s.ensureReferences(ctx, &shift); err != nil {
		return Shift{}, err
	}
	return shift, nil
}

// validateShiftFields checks everything but the date.
func validateShiftFields(input ShiftInput, vErr *ValidationError) Shift {
	shift := Shift{
		EmployeeID: strings.TrimSpace(input.EmployeeID),
		EventType:  EventType(strings.ToLower(strings.TrimSpace(input.EventType))),
		Theme:      strings.TrimSpace(input.Theme),
		Location:   strings.TrimSpace(input.Location),
		Notes:      strings.TrimSpace(input.Notes),
	}

	if shift.EmployeeID == "" {
		vErr.add("employee_id", "employee is required")
	}
	start, err := calendar.ParseClock(input.StartTime)
	if err != nil {
		vErr.add("start_time", "start time must be HH:MM")
	}
	end, err := calendar.ParseClock(input.EndTime)
	if err != nil {
		vErr.add("end_time", "end time must be HH:MM")
	}
	if _, bad := vErr.FieldErrors["start_time"]; !bad {
		if _, bad := vErr.FieldErrors["end_time"]; !bad && start == end {
			vErr.add("end_time", "end time must differ from start time")
		}
	}
	shift.StartTime = start
	shift.EndTime = end

	if shift.EventType == "" {
		vErr.add("event_type", "event type is required")
	} else if !slices.Contains(KnownEventTypes, shift.EventType) {
		vErr.add("event_type", fmt.Sprintf("unknown event type %q", shift.EventType))
	}
	if shift.Location == "" {
		vErr.add("location", "location is required")
	}
	return shift
}

// ensureReferences checks that the employee and venue exist and rewrites the
// venue to its stored spelling.
func (s *ShiftService) ensureReferences(ctx context.Context, shift *Shift) error {
	vErr := &ValidationError{}
	if s.employees != nil {
		ok, err := s.employees.EmployeeExists(ctx, shift.EmployeeID)
		if err != nil {
			return err
		}
		if !ok {
			vErr.add("employee_id", "employee does not exist")
		}
	}
	if s.locations != nil {
		canonical, ok, err := s.locations.ResolveLocation(ctx, shift.Location)
		if err != nil {
			return err
		}
		if !ok {
			vErr.add("location", "location does not exist")
		} else {
			shift.Location = canonical
		}
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func (s *ShiftService) storeNew(ctx context.Context, shift Shift) (ShiftResult, error) {
	persisted, err := s.shifts.CreateShift(ctx, shift)
	if err != nil {
		return ShiftResult{}, mapShiftRepoError(err)
	}
	s.warnings.Invalidate()
	warnings, err := s.warningsFor(ctx, persisted)
	if err != nil {
		return ShiftResult{}, err
	}
	return ShiftResult{Shift: persisted, Warnings: warnings}, nil
}

func (s *ShiftService) storeUpdate(ctx context.Context, shift Shift) (ShiftResult, error) {
	persisted, err := s.shifts.UpdateShift(ctx, shift)
	if err != nil {
		return ShiftResult{}, mapShiftRepoError(err)
	}
	s.warnings.Invalidate()
	warnings, err := s.warningsFor(ctx, persisted)
	if err != nil {
		return ShiftResult{}, err
	}
	return ShiftResult{Shift: persisted, Warnings: warnings}, nil
}

// warningsFor reports the double-booking a stored shift takes part in.
func (s *ShiftService) warningsFor(ctx context.Context, shift Shift) ([]ConflictWarning, error) {
	if shift.EmployeeID == "" {
		return nil, nil
	}
	sameDay, err := s.shifts.ListShifts(ctx, ShiftRepositoryFilter{
		Range:      calendar.DayOf(shift.Date),
		EmployeeID: shift.EmployeeID,
	})
	if err != nil {
		return nil, mapShiftRepoError(err)
	}

	existing := make([]scheduler.Shift, 0, len(sameDay))
	for _, other := range sameDay {
		existing = append(existing, toSchedulerShift(other))
	}
	conflicts := scheduler.ConflictsFor(existing, toSchedulerShift(shift))
	if len(conflicts) == 0 {
		return nil, nil
	}

	ids := []string{shift.ID}
	for _, c := range conflicts {
		ids = append(ids, c.WithShiftID)
	}
	slices.Sort(ids)
	return []ConflictWarning{{EmployeeID: shift.EmployeeID, Date: shift.Date, ShiftIDs: ids}}, nil
}

// resolveRange turns a period preset or explicit inclusive bounds into a
// half open range. With neither, the week containing today is used.
func (s *ShiftService) resolveRange(period ListPeriod, reference, from, to calendar.Date) (calendar.Range, error) {
	if reference.IsZero() {
		reference = s.today()
	}
	switch period {
	case ListPeriodDay:
		return calendar.DayOf(reference), nil
	case ListPeriodWeek:
		return calendar.WeekOf(reference), nil
	case ListPeriodMonth:
		return calendar.MonthOf(reference), nil
	case ListPeriodNone:
	default:
		return calendar.Range{}, fieldError("period", "period must be day, week or month")
	}

	if from.IsZero() && to.IsZero() {
		return calendar.WeekOf(reference), nil
	}
	vErr := &ValidationError{}
	if from.IsZero() {
		vErr.add("from", "from is required with to")
	}
	if to.IsZero() {
		vErr.add("to", "to is required with from")
	}
	if vErr.HasErrors() {
		return calendar.Range{}, vErr
	}
	if to.Before(from) {
		return calendar.Range{}, fieldError("to", "to must not be before from")
	}
	rng := calendar.Range{Start: from, End: to.AddDays(1)}
	if rng.Days() > maxListDays {
		return calendar.Range{}, fieldError("to", fmt.Sprintf("range cannot exceed %d days", maxListDays))
	}
	return rng, nil
}

// listWarnings reports the double-bookings touching the listed shifts. A
// location filter hides the other venue of a clash, so each listed employee's
// full day is consulted in that case.
func (s *ShiftService) listWarnings(ctx context.Context, filter ShiftRepositoryFilter, listed []Shift) ([]ConflictWarning, error) {
	if filter.Location == "" {
		return detectListConflicts(listed), nil
	}
	if len(listed) == 0 {
		return nil, nil
	}
	return s.warningsInRange(ctx, filter.Range, listed)
}

func detectListConflicts(shifts []Shift) []ConflictWarning {
	candidates := make([]scheduler.Shift, 0, len(shifts))
	for _, shift := range shifts {
		candidates = append(candidates, toSchedulerShift(shift))
	}
	return toConflictWarnings(scheduler.DetectDoubleBookings(candidates))
}

func toSchedulerShift(shift Shift) scheduler.Shift {
	return scheduler.Shift{
		ID:         shift.ID,
		EmployeeID: shift.EmployeeID,
		Date:       shift.Date,
		Location:   shift.Location,
	}
}

func toConflictWarnings(groups []scheduler.DoubleBooking) []ConflictWarning {
	if len(groups) == 0 {
		return nil
	}
	warnings := make([]ConflictWarning, 0, len(groups))
	for _, g := range groups {
		warnings = append(warnings, ConflictWarning{
			EmployeeID: g.EmployeeID,
			Date:       g.Date,
			ShiftIDs:   append([]string(nil), g.ShiftIDs...),
		})
	}
	return warnings
}

func sortShifts(shifts []Shift) {
	slices.SortStableFunc(shifts, func(a, b Shift) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := a.StartTime.Minutes() - b.StartTime.Minutes(); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func mapShiftRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConstraintViolation):
		return fieldError("date", "date is required")
	}
	return err
}
