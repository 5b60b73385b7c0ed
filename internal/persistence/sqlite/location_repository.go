package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

// LocationRepository implements persistence.LocationRepository using SQLite.
type LocationRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewLocationRepository creates a new SQLite location repository.
func NewLocationRepository(pool *ConnectionPool) *LocationRepository {
	return &LocationRepository{pool: pool, mapper: NewErrorMapper()}
}

const locationColumns = `id, name, address, contact_name, contact_email, contact_phone, weekly_nights,
	default_start_time, default_end_time, notes, active, created_at, updated_at`

// CreateLocation inserts a new venue.
func (r *LocationRepository) CreateLocation(ctx context.Context, location persistence.Location) error {
	if location.ID == "" || strings.TrimSpace(location.Name) == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO locations (`+locationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		location.ID,
		location.Name,
		location.Address,
		location.ContactName,
		location.ContactEmail,
		location.ContactPhone,
		encodeStrings(location.WeeklyNights),
		location.DefaultStartTime,
		location.DefaultEndTime,
		location.Notes,
		boolToInt(location.Active),
		formatTime(location.CreatedAt),
		formatTime(location.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateLocation overwrites the mutable columns of a venue. The name column
// is written too; keeping it stable is the caller's business.
func (r *LocationRepository) UpdateLocation(ctx context.Context, location persistence.Location) error {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE locations
		SET name = ?, address = ?, contact_name = ?, contact_email = ?, contact_phone = ?,
		    weekly_nights = ?, default_start_time = ?, default_end_time = ?, notes = ?,
		    active = ?, updated_at = ?
		WHERE id = ?`,
		location.Name,
		location.Address,
		location.ContactName,
		location.ContactEmail,
		location.ContactPhone,
		encodeStrings(location.WeeklyNights),
		location.DefaultStartTime,
		location.DefaultEndTime,
		location.Notes,
		boolToInt(location.Active),
		formatTime(location.UpdatedAt),
		location.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetLocation retrieves a venue by ID.
func (r *LocationRepository) GetLocation(ctx context.Context, id string) (persistence.Location, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = ?`, id)
	location, err := scanLocation(row)
	if err != nil {
		return persistence.Location{}, r.mapper.MapError(err)
	}
	return location, nil
}

// GetLocationByName retrieves a venue by name, ignoring case.
func (r *LocationRepository) GetLocationByName(ctx context.Context, name string) (persistence.Location, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE name = ?`, strings.TrimSpace(name))
	location, err := scanLocation(row)
	if err != nil {
		return persistence.Location{}, r.mapper.MapError(err)
	}
	return location, nil
}

// ListLocations returns venues ordered by name.
func (r *LocationRepository) ListLocations(ctx context.Context, filter persistence.LocationFilter) ([]persistence.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations`
	var args []any
	if filter.Active != nil {
		query += ` WHERE active = ?`
		args = append(args, boolToInt(*filter.Active))
	}
	query += ` ORDER BY name COLLATE NOCASE, id`

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var locations []persistence.Location
	for rows.Next() {
		location, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, location)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate locations: %w", err)
	}
	return locations, nil
}

// DeleteLocation removes a venue by ID.
func (r *LocationRepository) DeleteLocation(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

func scanLocation(row scanner) (persistence.Location, error) {
	var (
		location             persistence.Location
		nights               string
		active               int
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&location.ID,
		&location.Name,
		&location.Address,
		&location.ContactName,
		&location.ContactEmail,
		&location.ContactPhone,
		&nights,
		&location.DefaultStartTime,
		&location.DefaultEndTime,
		&location.Notes,
		&active,
		&createdAt,
		&updatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return persistence.Location{}, persistence.ErrNotFound
		}
		return persistence.Location{}, err
	}

	var err error
	location.Active = active == 1
	if location.WeeklyNights, err = decodeStrings(nights); err != nil {
		return persistence.Location{}, err
	}
	if location.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Location{}, err
	}
	if location.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Location{}, err
	}
	return location, nil
}
