package application

import (
	"context"
	"errors"
	"testing"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

type employeeRepoStub struct {
	employees map[string]Employee
	deleted   []string
}

func newEmployeeRepoStub(employees ...Employee) *employeeRepoStub {
	repo := &employeeRepoStub{employees: make(map[string]Employee)}
	for _, e := range employees {
		repo.employees[e.ID] = e
	}
	return repo
}

func (r *employeeRepoStub) CreateEmployee(ctx context.Context, employee Employee) (Employee, error) {
	for _, existing := range r.employees {
		if existing.Email == employee.Email {
			return Employee{}, persistence.ErrDuplicate
		}
	}
	r.employees[employee.ID] = employee
	return employee, nil
}

func (r *employeeRepoStub) GetEmployee(ctx context.Context, id string) (Employee, error) {
	e, ok := r.employees[id]
	if !ok {
		return Employee{}, persistence.ErrNotFound
	}
	return e, nil
}

func (r *employeeRepoStub) GetEmployeeByEmail(ctx context.Context, email string) (Employee, error) {
	for _, e := range r.employees {
		if e.Email == email {
			return e, nil
		}
	}
	return Employee{}, persistence.ErrNotFound
}

func (r *employeeRepoStub) UpdateEmployee(ctx context.Context, employee Employee) (Employee, error) {
	if _, ok := r.employees[employee.ID]; !ok {
		return Employee{}, persistence.ErrNotFound
	}
	r.employees[employee.ID] = employee
	return employee, nil
}

func (r *employeeRepoStub) DeleteEmployee(ctx context.Context, id string) error {
	if _, ok := r.employees[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.employees, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *employeeRepoStub) ListEmployees(ctx context.Context, filter EmployeeFilter) ([]Employee, error) {
	var out []Employee
	for _, e := range r.employees {
		if filter.Active != nil && e.Active != *filter.Active {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func validEmployeeInput() EmployeeInput {
	return EmployeeInput{
		Email:     "  Host@Example.com ",
		FirstName: "Alex",
		LastName:  "Rivera",
		Phone:     "(757) 555-0100",
		Active:    true,
		Roles:     []Role{"HOST", RoleHost},
	}
}

func TestEmployeeService_CreateEmployee(t *testing.T) {
	t.Parallel()

	t.Run("normalizes and stores", func(t *testing.T) {
		repo := newEmployeeRepoStub()
		svc := NewEmployeeService(repo, func() string { return "emp-1" }, fixedNow)

		employee, err := svc.CreateEmployee(context.Background(), admin, validEmployeeInput())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if employee.Email != "host@example.com" {
			t.Fatalf("expected lower-cased email, got %q", employee.Email)
		}
		if len(employee.Roles) != 1 || employee.Roles[0] != RoleHost {
			t.Fatalf("expected deduplicated host role, got %v", employee.Roles)
		}
		if !employee.CreatedAt.Equal(fixedNow()) {
			t.Fatalf("expected created at from clock, got %v", employee.CreatedAt)
		}
	})

	t.Run("requires admin", func(t *testing.T) {
		svc := NewEmployeeService(newEmployeeRepoStub(), nil, fixedNow)
		_, err := svc.CreateEmployee(context.Background(), Principal{EmployeeID: "emp-9"}, validEmployeeInput())
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		repo := newEmployeeRepoStub(Employee{ID: "emp-0", Email: "host@example.com"})
		svc := NewEmployeeService(repo, func() string { return "emp-1" }, fixedNow)
		_, err := svc.CreateEmployee(context.Background(), admin, validEmployeeInput())
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("validation", func(t *testing.T) {
		svc := NewEmployeeService(newEmployeeRepoStub(), nil, fixedNow)
		input := validEmployeeInput()
		input.Email = "not-an-email"
		input.FirstName = ""
		input.Phone = "call me"
		input.Roles = []Role{"janitor"}

		_, err := svc.CreateEmployee(context.Background(), admin, input)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"email", "first_name", "phone", "roles"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s error, got %v", field, vErr.FieldErrors)
			}
		}
	})
}

func TestEmployeeService_UpdateEmployee(t *testing.T) {
	t.Parallel()

	repo := newEmployeeRepoStub(
		Employee{ID: "admin-1", Email: "boss@example.com", FirstName: "Sam", LastName: "Boss", Active: true, Roles: []Role{RoleAdmin}},
		Employee{ID: "emp-1", Email: "host@example.com", FirstName: "Alex", LastName: "Rivera", Active: true, Roles: []Role{RoleHost}},
	)
	svc := NewEmployeeService(repo, nil, fixedNow)
	ctx := context.Background()

	input := validEmployeeInput()
	input.Active = false
	updated, err := svc.UpdateEmployee(ctx, admin, "emp-1", input)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated.Active {
		t.Fatalf("expected employee to be deactivated")
	}

	selfDemote := EmployeeInput{Email: "boss@example.com", FirstName: "Sam", LastName: "Boss", Active: true, Roles: []Role{RoleHost}}
	_, err = svc.UpdateEmployee(ctx, admin, "admin-1", selfDemote)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError on self demotion, got %v", err)
	}

	if _, err := svc.UpdateEmployee(ctx, admin, "missing", validEmployeeInput()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEmployeeService_UpdateProfileKeepsProtectedFields(t *testing.T) {
	t.Parallel()

	repo := newEmployeeRepoStub(Employee{ID: "emp-1", Email: "host@example.com", FirstName: "Alex", LastName: "Rivera", Active: true, Roles: []Role{RoleHost}})
	svc := NewEmployeeService(repo, nil, fixedNow)

	updated, err := svc.UpdateProfile(context.Background(), Principal{EmployeeID: "emp-1"}, ProfileInput{
		FirstName: "Alexandra",
		LastName:  "Rivera",
		Nickname:  "Lex",
		Phone:     "757-555-0101",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated.Nickname != "Lex" || updated.DisplayName() != "Lex" {
		t.Fatalf("expected nickname to be saved, got %+v", updated)
	}
	if updated.Email != "host@example.com" || len(updated.Roles) != 1 || !updated.Active {
		t.Fatalf("expected email, roles and active to be untouched, got %+v", updated)
	}
}

func TestEmployeeService_GetAndList(t *testing.T) {
	t.Parallel()

	active := true
	repo := newEmployeeRepoStub(
		Employee{ID: "e3", LastName: "adams", FirstName: "Zed", Active: true},
		Employee{ID: "e1", LastName: "Baker", FirstName: "Amy", Active: true},
		Employee{ID: "e2", LastName: "Adams", FirstName: "Bea", Active: true},
		Employee{ID: "e4", LastName: "Cole", FirstName: "Cy", Active: false},
	)
	svc := NewEmployeeService(repo, nil, fixedNow)
	ctx := context.Background()

	list, err := svc.ListEmployees(ctx, admin, EmployeeFilter{Active: &active})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got := []string{}
	for _, e := range list {
		got = append(got, e.ID)
	}
	if len(got) != 3 || got[0] != "e2" || got[1] != "e3" || got[2] != "e1" {
		t.Fatalf("expected [e2 e3 e1], got %v", got)
	}

	if _, err := svc.ListEmployees(ctx, Principal{EmployeeID: "e1"}, EmployeeFilter{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.GetEmployee(ctx, Principal{EmployeeID: "e1"}, "e1"); err != nil {
		t.Fatalf("expected self read to succeed, got %v", err)
	}
	if _, err := svc.GetEmployee(ctx, Principal{EmployeeID: "e1"}, "e2"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized reading someone else, got %v", err)
	}
}

func TestEmployeeService_DeleteEmployee(t *testing.T) {
	t.Parallel()

	repo := newEmployeeRepoStub(Employee{ID: "emp-1"}, Employee{ID: "admin-1"})
	svc := NewEmployeeService(repo, nil, fixedNow)
	ctx := context.Background()

	var vErr *ValidationError
	if err := svc.DeleteEmployee(ctx, admin, "admin-1"); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError deleting self, got %v", err)
	}
	if err := svc.DeleteEmployee(ctx, admin, "emp-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := svc.DeleteEmployee(ctx, admin, "emp-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
