package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

// ShiftRepository implements persistence.ShiftRepository using SQLite.
type ShiftRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewShiftRepository creates a new SQLite shift repository.
func NewShiftRepository(pool *ConnectionPool) *ShiftRepository {
	return &ShiftRepository{pool: pool, mapper: NewErrorMapper()}
}

const shiftColumns = `id, date, employee_id, start_time, end_time, event_type, theme, location, notes, created_at, updated_at`

// CreateShift inserts a new shift.
func (r *ShiftRepository) CreateShift(ctx context.Context, shift persistence.Shift) error {
	if shift.ID == "" || shift.Date == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO shifts (`+shiftColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		shift.ID,
		shift.Date,
		shift.EmployeeID,
		shift.StartTime,
		shift.EndTime,
		shift.EventType,
		shift.Theme,
		shift.Location,
		shift.Notes,
		formatTime(shift.CreatedAt),
		formatTime(shift.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateShift overwrites a shift. Concurrent updates are last-write-wins.
func (r *ShiftRepository) UpdateShift(ctx context.Context, shift persistence.Shift) error {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE shifts
		SET date = ?, employee_id = ?, start_time = ?, end_time = ?, event_type = ?,
		    theme = ?, location = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		shift.Date,
		shift.EmployeeID,
		shift.StartTime,
		shift.EndTime,
		shift.EventType,
		shift.Theme,
		shift.Location,
		shift.Notes,
		formatTime(shift.UpdatedAt),
		shift.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetShift retrieves a shift by ID.
func (r *ShiftRepository) GetShift(ctx context.Context, id string) (persistence.Shift, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, id)
	shift, err := scanShift(row)
	if err != nil {
		return persistence.Shift{}, r.mapper.MapError(err)
	}
	return shift, nil
}

// ListShifts returns shifts matching filter ordered by date, start time and id.
func (r *ShiftRepository) ListShifts(ctx context.Context, filter persistence.ShiftFilter) ([]persistence.Shift, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.From != "" {
		clauses = append(clauses, "date >= ?")
		args = append(args, filter.From)
	}
	if filter.To != "" {
		clauses = append(clauses, "date < ?")
		args = append(args, filter.To)
	}
	if filter.EmployeeID != "" {
		clauses = append(clauses, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.Location != "" {
		clauses = append(clauses, "location = ? COLLATE NOCASE")
		args = append(args, filter.Location)
	}

	query := `SELECT ` + shiftColumns + ` FROM shifts`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY date, start_time, id`

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var shifts []persistence.Shift
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shifts: %w", err)
	}
	return shifts, nil
}

// DeleteShift removes a shift by ID.
func (r *ShiftRepository) DeleteShift(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM shifts WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

func scanShift(row scanner) (persistence.Shift, error) {
	var (
		shift                persistence.Shift
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&shift.ID,
		&shift.Date,
		&shift.EmployeeID,
		&shift.StartTime,
		&shift.EndTime,
		&shift.EventType,
		&shift.Theme,
		&shift.Location,
		&shift.Notes,
		&createdAt,
		&updatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return persistence.Shift{}, persistence.ErrNotFound
		}
		return persistence.Shift{}, err
	}

	var err error
	if shift.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Shift{}, err
	}
	if shift.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Shift{}, err
	}
	return shift, nil
}
