package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

// EmployeeRepository captures the persistence operations needed by the
// employee service. DeleteEmployee must also drop credentials and sessions.
type EmployeeRepository interface {
	CreateEmployee(ctx context.Context, employee Employee) (Employee, error)
	GetEmployee(ctx context.Context, id string) (Employee, error)
	GetEmployeeByEmail(ctx context.Context, email string) (Employee, error)
	UpdateEmployee(ctx context.Context, employee Employee) (Employee, error)
	DeleteEmployee(ctx context.Context, id string) error
	ListEmployees(ctx context.Context, filter EmployeeFilter) ([]Employee, error)
}

// EmployeeService orchestrates validation, authorization, and persistence for staff records.
type EmployeeService struct {
	employees   EmployeeRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEmployeeService wires dependencies for the employee service.
func NewEmployeeService(employees EmployeeRepository, idGenerator func() string, now func() time.Time) *EmployeeService {
	return NewEmployeeServiceWithLogger(employees, idGenerator, now, nil)
}

// NewEmployeeServiceWithLogger wires dependencies for the employee service with a specified logger.
func NewEmployeeServiceWithLogger(employees EmployeeRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EmployeeService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &EmployeeService{employees: employees, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *EmployeeService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EmployeeService", operation, attrs...)
}

// CreateEmployee validates input and persists a new employee for administrators.
func (s *EmployeeService) CreateEmployee(ctx context.Context, principal Principal, input EmployeeInput) (employee Employee, err error) {
	if s == nil {
		err = fmt.Errorf("EmployeeService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateEmployee", "principal_id", principal.EmployeeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create employee", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("employee_id", employee.ID).InfoContext(ctx, "employee created")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	normalized := normalizeEmployeeInput(input)
	if vErr := validateEmployeeInput(normalized); vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	employee = Employee{
		ID:               s.idGenerator(),
		Email:            normalized.Email,
		FirstName:        normalized.FirstName,
		LastName:         normalized.LastName,
		Nickname:         normalized.Nickname,
		Phone:            normalized.Phone,
		EmergencyContact: normalized.EmergencyContact,
		Active:           normalized.Active,
		Roles:            normalized.Roles,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if s.employees == nil {
		return
	}

	var persisted Employee
	persisted, err = s.employees.CreateEmployee(ctx, employee)
	if err != nil {
		err = mapEmployeeRepoError(err)
		return
	}
	employee = persisted
	return
}

// UpdateEmployee lets an administrator change any employee field, roles included.
func (s *EmployeeService) UpdateEmployee(ctx context.Context, principal Principal, employeeID string, input EmployeeInput) (employee Employee, err error) {
	if s == nil {
		err = fmt.Errorf("EmployeeService is nil")
		return
	}
	if s.employees == nil {
		err = fmt.Errorf("employee repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateEmployee",
		"principal_id", principal.EmployeeID,
		"employee_id", employeeID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update employee", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "employee updated")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	normalized := normalizeEmployeeInput(input)
	if vErr := validateEmployeeInput(normalized); vErr.HasErrors() {
		err = vErr
		return
	}
	if employeeID == principal.EmployeeID && !slices.Contains(normalized.Roles, RoleAdmin) {
		err = fieldError("roles", "you cannot remove your own admin role")
		return
	}

	var existing Employee
	existing, err = s.employees.GetEmployee(ctx, employeeID)
	if err != nil {
		err = mapEmployeeRepoError(err)
		return
	}

	updated := existing
	updated.Email = normalized.Email
	updated.FirstName = normalized.FirstName
	updated.LastName = normalized.LastName
	updated.Nickname = normalized.Nickname
	updated.Phone = normalized.Phone
	updated.EmergencyContact = normalized.EmergencyContact
	updated.Active = normalized.Active
	updated.Roles = normalized.Roles
	updated.UpdatedAt = s.now()

	employee, err = s.employees.UpdateEmployee(ctx, updated)
	if err != nil {
		err = mapEmployeeRepoError(err)
		return
	}
	return
}

// UpdateProfile lets an employee edit their own contact details. Email,
// roles and the active flag stay as they are.
func (s *EmployeeService) UpdateProfile(ctx context.Context, principal Principal, input ProfileInput) (employee Employee, err error) {
	if s == nil {
		err = fmt.Errorf("EmployeeService is nil")
		return
	}
	if s.employees == nil {
		err = fmt.Errorf("employee repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateProfile", "principal_id", principal.EmployeeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update profile", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "profile updated")
	}()

	if principal.EmployeeID == "" {
		err = ErrUnauthorized
		return
	}

	var existing Employee
	existing, err = s.employees.GetEmployee(ctx, principal.EmployeeID)
	if err != nil {
		err = mapEmployeeRepoError(err)
		return
	}

	updated := existing
	updated.FirstName = strings.TrimSpace(input.FirstName)
	updated.LastName = strings.TrimSpace(input.LastName)
	updated.Nickname = strings.TrimSpace(input.Nickname)
	updated.Phone = strings.TrimSpace(input.Phone)
	updated.EmergencyContact = strings.TrimSpace(input.EmergencyContact)

	vErr := &ValidationError{}
	validateNames(vErr, updated.FirstName, updated.LastName)
	validatePhone(vErr, "phone", updated.Phone)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	updated.UpdatedAt = s.now()

	employee, err = s.employees.UpdateEmployee(ctx, updated)
	if err != nil {
		err = mapEmployeeRepoError(err)
	}
	return
}

// GetEmployee returns an employee to an administrator or to the employee themself.
func (s *EmployeeService) GetEmployee(ctx context.Context, principal Principal, employeeID string) (Employee, error) {
	if s == nil {
		return Employee{}, fmt.Errorf("EmployeeService is nil")
	}
	if s.employees == nil {
		return Employee{}, fmt.Errorf("employee repository not configured")
	}
	if !principal.IsAdmin && principal.EmployeeID != employeeID {
		return Employee{}, ErrUnauthorized
	}

	employee, err := s.employees.GetEmployee(ctx, employeeID)
	if err != nil {
		err = mapEmployeeRepoError(err)
		s.loggerWith(ctx, "GetEmployee", "principal_id", principal.EmployeeID, "employee_id", employeeID).
			ErrorContext(ctx, "failed to get employee", "error", err, "error_kind", ErrorKind(err))
		return Employee{}, err
	}
	return employee, nil
}

// ListEmployees returns employees sorted by last name, first name and id for administrators.
func (s *EmployeeService) ListEmployees(ctx context.Context, principal Principal, filter EmployeeFilter) (employees []Employee, err error) {
	if s == nil {
		err = fmt.Errorf("EmployeeService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListEmployees", "principal_id", principal.EmployeeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list employees", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(employees)).InfoContext(ctx, "employees listed")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.employees == nil {
		return nil, nil
	}

	var raw []Employee
	raw, err = s.employees.ListEmployees(ctx, filter)
	if err != nil {
		err = mapEmployeeRepoError(err)
		return
	}

	employees = make([]Employee, len(raw))
	copy(employees, raw)
	slices.SortStableFunc(employees, compareEmployees)
	return
}

// DeleteEmployee removes an employee along with their credentials and
// sessions. Administrators cannot delete themselves.
func (s *EmployeeService) DeleteEmployee(ctx context.Context, principal Principal, employeeID string) error {
	if s == nil {
		return fmt.Errorf("EmployeeService is nil")
	}
	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	if s.employees == nil {
		return fmt.Errorf("employee repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteEmployee",
		"principal_id", principal.EmployeeID,
		"employee_id", employeeID,
	)

	if employeeID == principal.EmployeeID {
		err := fieldError("id", "you cannot delete your own account")
		logger.ErrorContext(ctx, "failed to delete employee", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	if err := s.employees.DeleteEmployee(ctx, employeeID); err != nil {
		err = mapEmployeeRepoError(err)
		logger.ErrorContext(ctx, "failed to delete employee", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "employee deleted")
	return nil
}

func compareEmployees(a, b Employee) int {
	if c := strings.Compare(strings.ToLower(a.LastName), strings.ToLower(b.LastName)); c != 0 {
		return c
	}
	if c := strings.Compare(strings.ToLower(a.FirstName), strings.ToLower(b.FirstName)); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func normalizeEmployeeInput(input EmployeeInput) EmployeeInput {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Nickname = strings.TrimSpace(input.Nickname)
	input.Phone = strings.TrimSpace(input.Phone)
	input.EmergencyContact = strings.TrimSpace(input.EmergencyContact)

	roles := make([]Role, 0, len(input.Roles))
	for _, role := range input.Roles {
		r := Role(strings.ToLower(strings.TrimSpace(string(role))))
		if r != "" && !slices.Contains(roles, r) {
			roles = append(roles, r)
		}
	}
	slices.Sort(roles)
	input.Roles = roles
	return input
}

func validateEmployeeInput(input EmployeeInput) *ValidationError {
	vErr := &ValidationError{}
	validateEmail(vErr, "email", input.Email)
	validateNames(vErr, input.FirstName, input.LastName)
	validatePhone(vErr, "phone", input.Phone)
	vErr.merge(validateRoles(input.Roles))
	return vErr
}

func validateEmail(vErr *ValidationError, field, email string) {
	if email == "" {
		vErr.add(field, "email is required")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		vErr.add(field, "email must be a valid address")
	}
}

func validateNames(vErr *ValidationError, first, last string) {
	if first == "" {
		vErr.add("first_name", "first name is required")
	}
	if last == "" {
		vErr.add("last_name", "last name is required")
	}
}

func validatePhone(vErr *ValidationError, field, phone string) {
	if phone == "" {
		return
	}
	digits := 0
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune(" +-().", r):
		default:
			vErr.add(field, "phone may contain digits, spaces and + - ( ) . only")
			return
		}
	}
	if digits < 7 {
		vErr.add(field, "phone must contain at least 7 digits")
	}
}

func validateRoles(roles []Role) *ValidationError {
	vErr := &ValidationError{}
	for _, role := range roles {
		if !slices.Contains(KnownRoles, role) {
			vErr.add("roles", fmt.Sprintf("unknown role %q", role))
			break
		}
	}
	return vErr
}

func mapEmployeeRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConstraintViolation):
		return fieldError("email", "email is required")
	}
	return err
}
