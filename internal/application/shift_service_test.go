package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/calendar"
)

type shiftRepoStub struct {
	shifts    map[string]Shift
	createErr map[string]error
	deleteErr map[string]error
	filters   []ShiftRepositoryFilter
}

func newShiftRepoStub(shifts ...Shift) *shiftRepoStub {
	repo := &shiftRepoStub{shifts: make(map[string]Shift)}
	for _, s := range shifts {
		repo.shifts[s.ID] = s
	}
	return repo
}

func (r *shiftRepoStub) CreateShift(ctx context.Context, shift Shift) (Shift, error) {
	if err := r.createErr[shift.Date.String()]; err != nil {
		return Shift{}, err
	}
	r.shifts[shift.ID] = shift
	return shift, nil
}

func (r *shiftRepoStub) GetShift(ctx context.Context, id string) (Shift, error) {
	shift, ok := r.shifts[id]
	if !ok {
		return Shift{}, ErrNotFound
	}
	return shift, nil
}

func (r *shiftRepoStub) UpdateShift(ctx context.Context, shift Shift) (Shift, error) {
	if _, ok := r.shifts[shift.ID]; !ok {
		return Shift{}, ErrNotFound
	}
	r.shifts[shift.ID] = shift
	return shift, nil
}

func (r *shiftRepoStub) DeleteShift(ctx context.Context, id string) error {
	if err := r.deleteErr[id]; err != nil {
		return err
	}
	if _, ok := r.shifts[id]; !ok {
		return ErrNotFound
	}
	delete(r.shifts, id)
	return nil
}

func (r *shiftRepoStub) ListShifts(ctx context.Context, filter ShiftRepositoryFilter) ([]Shift, error) {
	r.filters = append(r.filters, filter)
	var out []Shift
	for _, s := range r.shifts {
		if s.Date.Before(filter.Range.Start) {
			continue
		}
		if !filter.Range.End.IsZero() && !s.Date.Before(filter.Range.End) {
			continue
		}
		if filter.EmployeeID != "" && s.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Location != "" && !strings.EqualFold(s.Location, filter.Location) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type employeeDirectoryStub struct {
	known map[string]string
}

func (d *employeeDirectoryStub) EmployeeExists(ctx context.Context, id string) (bool, error) {
	_, ok := d.known[id]
	return ok, nil
}

func (d *employeeDirectoryStub) EmployeeNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := d.known[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

type locationCatalogStub struct {
	names []string
}

func (c *locationCatalogStub) ResolveLocation(ctx context.Context, name string) (string, bool, error) {
	for _, n := range c.names {
		if strings.EqualFold(n, name) {
			return n, true, nil
		}
	}
	return "", false, nil
}

type exporterStub struct {
	month  calendar.Range
	shifts []Shift
	names  map[string]string
}

func (e *exporterStub) ExportMonth(month calendar.Range, shifts []Shift, names map[string]string) ([]byte, error) {
	e.month = month
	e.shifts = shifts
	e.names = names
	return []byte("xlsx"), nil
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC)
}

func newTestShiftService(repo *shiftRepoStub) (*ShiftService, *exporterStub) {
	exporter := &exporterStub{}
	svc := NewShiftService(
		repo,
		&employeeDirectoryStub{known: map[string]string{"emp-1": "Alex Host", "emp-2": "Bo Quiz"}},
		&locationCatalogStub{names: []string{"Tiki Bar", "Surf Shack"}},
		exporter,
		sequentialIDs("shift"),
		fixedNow,
	)
	return svc, exporter
}

func testShift(id, employee, date string) Shift {
	return Shift{
		ID:         id,
		EmployeeID: employee,
		Date:       calendar.MustParseDate(date),
		StartTime:  calendar.Clock{Hour: 19},
		EndTime:    calendar.Clock{Hour: 21},
		EventType:  EventTrivia,
		Location:   "Tiki Bar",
	}
}

var admin = Principal{EmployeeID: "admin-1", IsAdmin: true, Roles: []Role{RoleAdmin}}

func validShiftInput() ShiftInput {
	return ShiftInput{
		Date:       "2024-06-14",
		EmployeeID: "emp-1",
		StartTime:  "19:00",
		EndTime:    "21:00",
		EventType:  "trivia",
		Location:   "tiki bar",
	}
}

func TestShiftService_CreateShift(t *testing.T) {
	t.Parallel()

	t.Run("stores valid shift", func(t *testing.T) {
		repo := newShiftRepoStub()
		svc, _ := newTestShiftService(repo)

		result, err := svc.CreateShift(context.Background(), admin, validShiftInput())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Shift.ID != "shift-1" {
			t.Fatalf("expected generated id, got %q", result.Shift.ID)
		}
		if result.Shift.Date.String() != "2024-06-14" {
			t.Fatalf("expected date 2024-06-14, got %s", result.Shift.Date)
		}
		if len(result.Warnings) != 0 {
			t.Fatalf("expected no warnings, got %v", result.Warnings)
		}
		stored, ok := repo.shifts["shift-1"]
		if !ok {
			t.Fatalf("expected shift to be persisted")
		}
		if stored.Location != "Tiki Bar" {
			t.Fatalf("expected venue stored as Tiki Bar, got %q", stored.Location)
		}
	})

	t.Run("rejects non admin", func(t *testing.T) {
		svc, _ := newTestShiftService(newShiftRepoStub())
		_, err := svc.CreateShift(context.Background(), Principal{EmployeeID: "emp-1"}, validShiftInput())
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("rejects invalid fields", func(t *testing.T) {
		svc, _ := newTestShiftService(newShiftRepoStub())
		input := validShiftInput()
		input.Date = "2024-02-30"
		input.StartTime = "7pm"
		input.EventType = "karaoke"
		input.Location = ""

		_, err := svc.CreateShift(context.Background(), admin, input)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"date", "start_time", "event_type", "location"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s field error, got %v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("rejects equal start and end", func(t *testing.T) {
		svc, _ := newTestShiftService(newShiftRepoStub())
		input := validShiftInput()
		input.EndTime = input.StartTime

		_, err := svc.CreateShift(context.Background(), admin, input)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["end_time"]; !ok {
			t.Fatalf("expected end_time error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("allows overnight shift", func(t *testing.T) {
		svc, _ := newTestShiftService(newShiftRepoStub())
		input := validShiftInput()
		input.StartTime = "22:00"
		input.EndTime = "01:00"

		if _, err := svc.CreateShift(context.Background(), admin, input); err != nil {
			t.Fatalf("expected overnight shift to be accepted, got %v", err)
		}
	})

	t.Run("rejects unknown references", func(t *testing.T) {
		svc, _ := newTestShiftService(newShiftRepoStub())
		input := validShiftInput()
		input.EmployeeID = "ghost"
		input.Location = "Nowhere"

		_, err := svc.CreateShift(context.Background(), admin, input)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["employee_id"]; !ok {
			t.Fatalf("expected employee_id error, got %v", vErr.FieldErrors)
		}
		if _, ok := vErr.FieldErrors["location"]; !ok {
			t.Fatalf("expected location error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("warns on double booking without blocking", func(t *testing.T) {
		repo := newShiftRepoStub(testShift("existing", "emp-1", "2024-06-14"))
		svc, _ := newTestShiftService(repo)

		result, err := svc.CreateShift(context.Background(), admin, validShiftInput())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(result.Warnings) != 1 {
			t.Fatalf("expected one warning, got %v", result.Warnings)
		}
		ids := result.Warnings[0].ShiftIDs
		if len(ids) != 2 || ids[0] != "existing" || ids[1] != "shift-1" {
			t.Fatalf("expected sorted ids [existing shift-1], got %v", ids)
		}
		if len(repo.shifts) != 2 {
			t.Fatalf("expected both shifts stored, got %d", len(repo.shifts))
		}
	})
}

func TestShiftService_MoveAndCopy(t *testing.T) {
	t.Parallel()

	repo := newShiftRepoStub(testShift("s1", "emp-1", "2024-06-14"))
	svc, _ := newTestShiftService(repo)
	ctx := context.Background()

	moved, err := svc.MoveShift(ctx, admin, "s1", "2024-06-15")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if moved.Shift.Date.String() != "2024-06-15" || moved.Shift.ID != "s1" {
		t.Fatalf("expected s1 moved to 2024-06-15, got %+v", moved.Shift)
	}

	copied, err := svc.CopyShift(ctx, admin, "s1", "2024-06-22")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if copied.Shift.ID == "s1" || copied.Shift.Date.String() != "2024-06-22" {
		t.Fatalf("expected new shift on 2024-06-22, got %+v", copied.Shift)
	}
	if repo.shifts["s1"].Date.String() != "2024-06-15" {
		t.Fatalf("expected original to stay on 2024-06-15")
	}

	if _, err := svc.MoveShift(ctx, admin, "missing", "2024-06-15"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.MoveShift(ctx, admin, "s1", "June 15"); err == nil {
		t.Fatalf("expected validation error for bad date")
	}
}

func TestShiftService_ListShifts(t *testing.T) {
	t.Parallel()

	repo := newShiftRepoStub(
		testShift("a", "emp-1", "2024-06-11"),
		testShift("b", "emp-1", "2024-06-11"),
		testShift("c", "emp-2", "2024-06-13"),
		testShift("d", "emp-2", "2024-06-20"),
	)
	svc, _ := newTestShiftService(repo)
	ctx := context.Background()

	t.Run("admin week listing includes warnings", func(t *testing.T) {
		result, err := svc.ListShifts(ctx, ListShiftsParams{Principal: admin, Period: ListPeriodWeek})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Range.Start.String() != "2024-06-09" || result.Range.End.String() != "2024-06-16" {
			t.Fatalf("expected Sunday-start week, got %s", result.Range)
		}
		if len(result.Shifts) != 3 {
			t.Fatalf("expected 3 shifts, got %d", len(result.Shifts))
		}
		if len(result.Warnings) != 1 || result.Warnings[0].EmployeeID != "emp-1" {
			t.Fatalf("expected one emp-1 warning, got %v", result.Warnings)
		}
	})

	t.Run("non admin sees only own shifts", func(t *testing.T) {
		result, err := svc.ListShifts(ctx, ListShiftsParams{
			Principal:  Principal{EmployeeID: "emp-2"},
			Period:     ListPeriodMonth,
			EmployeeID: "emp-1",
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, s := range result.Shifts {
			if s.EmployeeID != "emp-2" {
				t.Fatalf("expected only emp-2 shifts, got %+v", s)
			}
		}
		if len(result.Shifts) != 2 {
			t.Fatalf("expected 2 shifts, got %d", len(result.Shifts))
		}
	})

	t.Run("explicit range is inclusive", func(t *testing.T) {
		result, err := svc.ListShifts(ctx, ListShiftsParams{
			Principal: admin,
			From:      calendar.MustParseDate("2024-06-13"),
			To:        calendar.MustParseDate("2024-06-20"),
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(result.Shifts) != 2 {
			t.Fatalf("expected c and d, got %d shifts", len(result.Shifts))
		}
	})

	t.Run("rejects reversed range", func(t *testing.T) {
		_, err := svc.ListShifts(ctx, ListShiftsParams{
			Principal: admin,
			From:      calendar.MustParseDate("2024-06-20"),
			To:        calendar.MustParseDate("2024-06-13"),
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("unauthenticated rejected", func(t *testing.T) {
		if _, err := svc.ListShifts(ctx, ListShiftsParams{}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestShiftService_ListShiftsByLocationKeepsCrossVenueWarnings(t *testing.T) {
	t.Parallel()

	other := testShift("s2", "emp-1", "2024-06-14")
	other.Location = "Surf Shack"
	repo := newShiftRepoStub(
		testShift("s1", "emp-1", "2024-06-14"),
		other,
		testShift("s3", "emp-2", "2024-06-12"),
	)
	svc, _ := newTestShiftService(repo)

	result, err := svc.ListShifts(context.Background(), ListShiftsParams{
		Principal: admin,
		Period:    ListPeriodWeek,
		Location:  "Tiki Bar",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Shifts) != 2 {
		t.Fatalf("expected s1 and s3 at Tiki Bar, got %d shifts", len(result.Shifts))
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", result.Warnings)
	}
	ids := result.Warnings[0].ShiftIDs
	if len(ids) != 2 || ids[0] != "s1" || ids[1] != "s2" {
		t.Fatalf("expected warning for [s1 s2], got %v", ids)
	}

	quiet, err := svc.ListShifts(context.Background(), ListShiftsParams{
		Principal: admin,
		Period:    ListPeriodWeek,
		Location:  "Surf Shack",
		Reference: calendar.MustParseDate("2024-06-20"),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(quiet.Shifts) != 0 || len(quiet.Warnings) != 0 {
		t.Fatalf("expected an empty week, got %v %v", quiet.Shifts, quiet.Warnings)
	}
}

func TestShiftService_ListShiftsWarningsRefreshAfterWrite(t *testing.T) {
	t.Parallel()

	repo := newShiftRepoStub(testShift("a", "emp-1", "2024-06-11"))
	svc, _ := newTestShiftService(repo)
	ctx := context.Background()
	params := ListShiftsParams{Principal: admin, Period: ListPeriodWeek}

	first, err := svc.ListShifts(ctx, params)
	if err != nil || len(first.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v (%v)", first.Warnings, err)
	}

	input := validShiftInput()
	input.Date = "2024-06-11"
	if _, err := svc.CreateShift(ctx, admin, input); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	second, err := svc.ListShifts(ctx, params)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(second.Warnings) != 1 {
		t.Fatalf("expected warning after write, got %v", second.Warnings)
	}
}

func TestShiftService_MyShifts(t *testing.T) {
	t.Parallel()

	repo := newShiftRepoStub(
		testShift("past", "emp-1", "2024-06-01"),
		testShift("today", "emp-1", "2024-06-12"),
		testShift("later", "emp-1", "2024-07-04"),
		testShift("other", "emp-2", "2024-06-20"),
	)
	svc, _ := newTestShiftService(repo)

	shifts, err := svc.MyShifts(context.Background(), Principal{EmployeeID: "emp-1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(shifts) != 2 || shifts[0].ID != "today" || shifts[1].ID != "later" {
		t.Fatalf("expected [today later], got %+v", shifts)
	}
}

func TestShiftService_GetShiftHidesOthers(t *testing.T) {
	t.Parallel()

	repo := newShiftRepoStub(testShift("s1", "emp-1", "2024-06-14"))
	svc, _ := newTestShiftService(repo)

	if _, err := svc.GetShift(context.Background(), Principal{EmployeeID: "emp-2"}, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another employee, got %v", err)
	}
	if _, err := svc.GetShift(context.Background(), Principal{EmployeeID: "emp-1"}, "s1"); err != nil {
		t.Fatalf("expected owner to read shift, got %v", err)
	}
}

func TestShiftService_DeleteShift(t *testing.T) {
	t.Parallel()

	repo := newShiftRepoStub(testShift("s1", "emp-1", "2024-06-14"))
	svc, _ := newTestShiftService(repo)

	if err := svc.DeleteShift(context.Background(), Principal{EmployeeID: "emp-1"}, "s1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.DeleteShift(context.Background(), admin, "s1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := svc.DeleteShift(context.Background(), admin, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestShiftService_ExportMonth(t *testing.T) {
	t.Parallel()

	repo := newShiftRepoStub(
		testShift("a", "emp-1", "2024-06-11"),
		testShift("b", "emp-2", "2024-07-01"),
	)
	svc, exporter := newTestShiftService(repo)

	data, rng, err := svc.ExportMonth(context.Background(), admin, "2024-06")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(data) != "xlsx" {
		t.Fatalf("expected exporter output, got %q", data)
	}
	if rng.Start.String() != "2024-06-01" || rng.End.String() != "2024-07-01" {
		t.Fatalf("unexpected range %s", rng)
	}
	if len(exporter.shifts) != 1 || exporter.names["emp-1"] != "Alex Host" {
		t.Fatalf("expected June shift with names, got %+v %v", exporter.shifts, exporter.names)
	}

	if _, _, err := svc.ExportMonth(context.Background(), admin, "June"); err == nil {
		t.Fatalf("expected validation error for bad month")
	}
}

func TestShiftService_DisableWarningCacheSeesOutsideWrites(t *testing.T) {
	t.Parallel()

	repo := newShiftRepoStub(testShift("a", "emp-1", "2024-06-11"))
	svc, _ := newTestShiftService(repo)
	svc.DisableWarningCache()
	ctx := context.Background()
	params := ListShiftsParams{Principal: admin, Period: ListPeriodWeek}

	if first, err := svc.ListShifts(ctx, params); err != nil || len(first.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v (%v)", first.Warnings, err)
	}

	// Written by another process, so the service never invalidates.
	repo.shifts["b"] = testShift("b", "emp-1", "2024-06-11")

	second, err := svc.ListShifts(ctx, params)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(second.Warnings) != 1 {
		t.Fatalf("expected the outside write to be flagged, got %v", second.Warnings)
	}
}
