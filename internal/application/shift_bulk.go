package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/calendar"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/recurrence"
)

// CopyRangeParams describes a bulk copy of one day, week or month onto another.
type CopyRangeParams struct {
	Principal Principal
	Period    ListPeriod
	Source    calendar.Date
	Target    calendar.Date
}

// DeleteRangeParams describes a bulk delete. Either Period with Reference, or
// From and To (inclusive) are set.
type DeleteRangeParams struct {
	Principal  Principal
	Period     ListPeriod
	Reference  calendar.Date
	From       calendar.Date
	To         calendar.Date
	EmployeeID string
	Location   string
}

// CopyRange copies every shift in the source period onto the target period.
// Day and week copies keep the offset between dates. Month copies keep the
// weekday and week-of-month, so shifts with no matching day in the target
// month are skipped. Individual failures are counted rather than aborting.
func (s *ShiftService) CopyRange(ctx context.Context, params CopyRangeParams) (result CopyRangeResult, err error) {
	if s == nil {
		err = fmt.Errorf("ShiftService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CopyRange",
		"principal_id", params.Principal.EmployeeID,
		"period", string(params.Period),
		"source", params.Source.String(),
		"target", params.Target.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to copy shifts", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"created", len(result.Created),
			"skipped", result.Skipped,
			"failed", result.Failed,
			"warning_count", len(result.Warnings),
		).InfoContext(ctx, "shifts copied")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.shifts == nil {
		err = fmt.Errorf("shift repository not configured")
		return
	}

	vErr := &ValidationError{}
	if params.Source.IsZero() {
		vErr.add("source", "source date is required")
	}
	if params.Target.IsZero() {
		vErr.add("target", "target date is required")
	}
	if params.Period == ListPeriodNone {
		vErr.add("period", "period must be day, week or month")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var source, target calendar.Range
	source, err = s.resolveRange(params.Period, params.Source, calendar.Date{}, calendar.Date{})
	if err != nil {
		return
	}
	target, err = s.resolveRange(params.Period, params.Target, calendar.Date{}, calendar.Date{})
	if err != nil {
		return
	}
	if source == target {
		err = fieldError("target", "target period must differ from source period")
		return
	}

	var shifts []Shift
	shifts, err = s.shifts.ListShifts(ctx, ShiftRepositoryFilter{Range: source})
	if err != nil {
		err = mapShiftRepoError(err)
		return
	}
	sortShifts(shifts)

	offset := source.Start.DaysUntil(target.Start)
	now := s.now()
	for _, shift := range shifts {
		date := shift.Date.AddDays(offset)
		if params.Period == ListPeriodMonth {
			mapped, ok := calendar.MapMonthDate(shift.Date, source.Start, target.Start)
			if !ok {
				result.Skipped++
				continue
			}
			date = mapped
		}

		copied := shift
		copied.ID = s.idGenerator()
		copied.Date = date
		copied.CreatedAt = now
		copied.UpdatedAt = now

		persisted, cerr := s.shifts.CreateShift(ctx, copied)
		if cerr != nil {
			result.Failed++
			logger.WarnContext(ctx, "shift copy failed",
				"source_shift_id", shift.ID,
				"error", cerr,
			)
			continue
		}
		result.Created = append(result.Created, persisted)
	}

	if len(result.Created) > 0 {
		s.warnings.Invalidate()
		result.Warnings, err = s.warningsInRange(ctx, target, result.Created)
	}
	return
}

// DeleteRange removes every shift in a day, a week or an explicit range.
// Individual failures are counted rather than aborting.
func (s *ShiftService) DeleteRange(ctx context.Context, params DeleteRangeParams) (result DeleteRangeResult, err error) {
	if s == nil {
		err = fmt.Errorf("ShiftService is nil")
		return
	}

	logger := s.loggerWith(ctx, "DeleteRange",
		"principal_id", params.Principal.EmployeeID,
		"period", string(params.Period),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete shifts", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"deleted", result.Deleted,
			"failed", result.Failed,
		).InfoContext(ctx, "shifts deleted")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.shifts == nil {
		err = fmt.Errorf("shift repository not configured")
		return
	}
	if params.Period == ListPeriodMonth {
		err = fieldError("period", "period must be day or week")
		return
	}
	if params.Period == ListPeriodNone && params.From.IsZero() && params.To.IsZero() {
		err = fieldError("period", "a period or an explicit range is required")
		return
	}

	var rng calendar.Range
	rng, err = s.resolveRange(params.Period, params.Reference, params.From, params.To)
	if err != nil {
		return
	}

	var shifts []Shift
	shifts, err = s.shifts.ListShifts(ctx, ShiftRepositoryFilter{
		Range:      rng,
		EmployeeID: strings.TrimSpace(params.EmployeeID),
		Location:   strings.TrimSpace(params.Location),
	})
	if err != nil {
		err = mapShiftRepoError(err)
		return
	}

	for _, shift := range shifts {
		if derr := s.shifts.DeleteShift(ctx, shift.ID); derr != nil {
			if errors.Is(mapShiftRepoError(derr), ErrNotFound) {
				continue
			}
			result.Failed++
			logger.WarnContext(ctx, "shift delete failed",
				"shift_id", shift.ID,
				"error", derr,
			)
			continue
		}
		result.Deleted++
	}
	if result.Deleted > 0 {
		s.warnings.Invalidate()
	}
	return
}

// CreateRecurring expands a template over the dates selected by a recurrence
// rule and stores one shift per date.
func (s *ShiftService) CreateRecurring(ctx context.Context, principal Principal, input RecurringShiftInput) (result RecurringShiftResult, err error) {
	if s == nil {
		err = fmt.Errorf("ShiftService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateRecurring",
		"principal_id", principal.EmployeeID,
		"frequency", input.Frequency,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create recurring shifts", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"created", len(result.Created),
			"warning_count", len(result.Warnings),
		).InfoContext(ctx, "recurring shifts created")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.shifts == nil {
		err = fmt.Errorf("shift repository not configured")
		return
	}

	vErr := &ValidationError{}
	template := validateShiftFields(input.Template, vErr)
	rule := parseRecurringRule(input, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if err = s.ensureReferences(ctx, &template); err != nil {
		return
	}

	var dates []calendar.Date
	dates, err = s.engine.Expand(rule)
	if err != nil {
		switch {
		case errors.Is(err, recurrence.ErrTooManyOccurrences):
			err = fieldError("ends_on", fmt.Sprintf("recurrence cannot produce more than %d shifts", recurrence.MaxOccurrences))
		case errors.Is(err, recurrence.ErrInvalidWindow):
			err = fieldError("ends_on", "ends on must not be before starts on")
		case errors.Is(err, recurrence.ErrInvalidFrequency):
			err = fieldError("frequency", "frequency must be daily, weekly or biweekly")
		}
		return
	}
	if len(dates) == 0 {
		err = fieldError("weekdays", "recurrence produced no dates")
		return
	}

	now := s.now()
	for _, date := range dates {
		shift := template
		shift.ID = s.idGenerator()
		shift.Date = date
		shift.CreatedAt = now
		shift.UpdatedAt = now

		var persisted Shift
		persisted, err = s.shifts.CreateShift(ctx, shift)
		if err != nil {
			err = fmt.Errorf("create shift on %s: %w", date, mapShiftRepoError(err))
			s.rollbackCreated(ctx, logger, result.Created)
			result = RecurringShiftResult{}
			return
		}
		result.Created = append(result.Created, persisted)
	}
	s.warnings.Invalidate()

	rng := calendar.Range{Start: dates[0], End: dates[len(dates)-1].AddDays(1)}
	result.Warnings, err = s.warningsInRange(ctx, rng, result.Created)
	return
}

// rollbackCreated removes shifts stored earlier in a batch that failed.
func (s *ShiftService) rollbackCreated(ctx context.Context, logger *slog.Logger, created []Shift) {
	for _, shift := range created {
		if derr := s.shifts.DeleteShift(ctx, shift.ID); derr != nil && !errors.Is(mapShiftRepoError(derr), ErrNotFound) {
			logger.WarnContext(ctx, "failed to roll back recurring shift",
				"shift_id", shift.ID,
				"error", derr,
			)
		}
	}
	if len(created) > 0 {
		s.warnings.Invalidate()
	}
}

func parseRecurringRule(input RecurringShiftInput, vErr *ValidationError) recurrence.Rule {
	var rule recurrence.Rule

	freq, ok := recurrence.ParseFrequency(strings.ToLower(strings.TrimSpace(input.Frequency)))
	if !ok {
		vErr.add("frequency", "frequency must be daily, weekly or biweekly")
	}
	rule.Frequency = freq

	for _, raw := range input.Weekdays {
		day, ok := recurrence.ParseWeekday(raw)
		if !ok {
			vErr.add("weekdays", fmt.Sprintf("unknown weekday %q", raw))
			continue
		}
		if !slices.Contains(rule.Weekdays, day) {
			rule.Weekdays = append(rule.Weekdays, day)
		}
	}
	if freq != recurrence.FrequencyDaily && len(input.Weekdays) == 0 {
		vErr.add("weekdays", "at least one weekday is required")
	}

	start, err := calendar.ParseDate(input.StartsOn)
	if err != nil {
		vErr.add("starts_on", "starts on must be a valid YYYY-MM-DD calendar date")
	}
	end, err := calendar.ParseDate(input.EndsOn)
	if err != nil {
		vErr.add("ends_on", "ends on must be a valid YYYY-MM-DD calendar date")
	}
	rule.StartsOn = start
	rule.EndsOn = end

	for _, raw := range input.Except {
		d, err := calendar.ParseDate(raw)
		if err != nil {
			vErr.add("except", fmt.Sprintf("invalid date %q", raw))
			continue
		}
		rule.Except = append(rule.Except, d)
	}
	return rule
}

// warningsInRange reports the double-bookings in rng that involve any of the
// given shifts.
func (s *ShiftService) warningsInRange(ctx context.Context, rng calendar.Range, involved []Shift) ([]ConflictWarning, error) {
	employees := make([]string, 0, len(involved))
	ids := make(map[string]struct{}, len(involved))
	for _, shift := range involved {
		ids[shift.ID] = struct{}{}
		if !slices.Contains(employees, shift.EmployeeID) {
			employees = append(employees, shift.EmployeeID)
		}
	}

	var shifts []Shift
	for _, employeeID := range employees {
		listed, err := s.shifts.ListShifts(ctx, ShiftRepositoryFilter{Range: rng, EmployeeID: employeeID})
		if err != nil {
			return nil, mapShiftRepoError(err)
		}
		shifts = append(shifts, listed...)
	}

	var out []ConflictWarning
	for _, w := range detectListConflicts(shifts) {
		if slices.ContainsFunc(w.ShiftIDs, func(id string) bool {
			_, ok := ids[id]
			return ok
		}) {
			out = append(out, w)
		}
	}
	return out, nil
}
