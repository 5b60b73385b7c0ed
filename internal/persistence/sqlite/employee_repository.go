package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

// EmployeeRepository implements persistence.EmployeeRepository and
// persistence.CredentialRepository using SQLite.
type EmployeeRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewEmployeeRepository creates a new SQLite employee repository.
func NewEmployeeRepository(pool *ConnectionPool) *EmployeeRepository {
	return &EmployeeRepository{pool: pool, mapper: NewErrorMapper()}
}

const employeeColumns = `id, email, first_name, last_name, nickname, phone, emergency_contact, active, roles, created_at, updated_at`

// CreateEmployee inserts a new employee.
func (r *EmployeeRepository) CreateEmployee(ctx context.Context, employee persistence.Employee) error {
	if employee.ID == "" || strings.TrimSpace(employee.Email) == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO employees (`+employeeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		employee.ID,
		strings.ToLower(strings.TrimSpace(employee.Email)),
		employee.FirstName,
		employee.LastName,
		employee.Nickname,
		employee.Phone,
		employee.EmergencyContact,
		boolToInt(employee.Active),
		encodeStrings(employee.Roles),
		formatTime(employee.CreatedAt),
		formatTime(employee.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateEmployee overwrites every mutable column of an employee.
func (r *EmployeeRepository) UpdateEmployee(ctx context.Context, employee persistence.Employee) error {
	if employee.ID == "" {
		return persistence.ErrConstraintViolation
	}

	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE employees
		SET email = ?, first_name = ?, last_name = ?, nickname = ?, phone = ?,
		    emergency_contact = ?, active = ?, roles = ?, updated_at = ?
		WHERE id = ?`,
		strings.ToLower(strings.TrimSpace(employee.Email)),
		employee.FirstName,
		employee.LastName,
		employee.Nickname,
		employee.Phone,
		employee.EmergencyContact,
		boolToInt(employee.Active),
		encodeStrings(employee.Roles),
		formatTime(employee.UpdatedAt),
		employee.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetEmployee retrieves an employee by ID.
func (r *EmployeeRepository) GetEmployee(ctx context.Context, id string) (persistence.Employee, error) {
	if id == "" {
		return persistence.Employee{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	employee, err := scanEmployee(row)
	if err != nil {
		return persistence.Employee{}, r.mapper.MapError(err)
	}
	return employee, nil
}

// GetEmployeeByEmail retrieves an employee by email, ignoring case.
func (r *EmployeeRepository) GetEmployeeByEmail(ctx context.Context, email string) (persistence.Employee, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return persistence.Employee{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE email = ?`, email)
	employee, err := scanEmployee(row)
	if err != nil {
		return persistence.Employee{}, r.mapper.MapError(err)
	}
	return employee, nil
}

// ListEmployees returns employees ordered by last name, first name and id.
func (r *EmployeeRepository) ListEmployees(ctx context.Context, filter persistence.EmployeeFilter) ([]persistence.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees`
	var args []any
	if filter.Active != nil {
		query += ` WHERE active = ?`
		args = append(args, boolToInt(*filter.Active))
	}
	query += ` ORDER BY last_name COLLATE NOCASE, first_name COLLATE NOCASE, id`

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var employees []persistence.Employee
	for rows.Next() {
		employee, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, employee)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate employees: %w", err)
	}
	return employees, nil
}

// DeleteEmployee removes an employee. Credentials, sessions, invites and
// streaming grants go with it through ON DELETE CASCADE.
func (r *EmployeeRepository) DeleteEmployee(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM employees WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// SetCredential inserts or replaces the password hash of an employee.
func (r *EmployeeRepository) SetCredential(ctx context.Context, credential persistence.Credential) error {
	if credential.EmployeeID == "" || credential.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO credentials (employee_id, password_hash, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (employee_id) DO UPDATE SET password_hash = excluded.password_hash, updated_at = excluded.updated_at`,
		credential.EmployeeID,
		credential.PasswordHash,
		formatTime(credential.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetCredential returns the password hash of an employee.
func (r *EmployeeRepository) GetCredential(ctx context.Context, employeeID string) (persistence.Credential, error) {
	var credential persistence.Credential
	var updatedAt string
	err := r.pool.DB().QueryRowContext(ctx,
		`SELECT employee_id, password_hash, updated_at FROM credentials WHERE employee_id = ?`, employeeID,
	).Scan(&credential.EmployeeID, &credential.PasswordHash, &updatedAt)
	if err != nil {
		return persistence.Credential{}, r.mapper.MapError(err)
	}
	if credential.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Credential{}, err
	}
	return credential, nil
}

func scanEmployee(row scanner) (persistence.Employee, error) {
	var (
		employee             persistence.Employee
		active               int
		roles                string
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&employee.ID,
		&employee.Email,
		&employee.FirstName,
		&employee.LastName,
		&employee.Nickname,
		&employee.Phone,
		&employee.EmergencyContact,
		&active,
		&roles,
		&createdAt,
		&updatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return persistence.Employee{}, persistence.ErrNotFound
		}
		return persistence.Employee{}, err
	}

	var err error
	employee.Active = active == 1
	if employee.Roles, err = decodeStrings(roles); err != nil {
		return persistence.Employee{}, err
	}
	if employee.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Employee{}, err
	}
	if employee.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Employee{}, err
	}
	return employee, nil
}
