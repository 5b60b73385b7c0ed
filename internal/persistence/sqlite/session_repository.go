package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite.
type SessionRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateSession stores a new session token for an employee.
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.ID == "" || session.EmployeeID == "" || strings.TrimSpace(session.Token) == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO sessions (id, employee_id, token, expires_at, revoked_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.EmployeeID,
		strings.TrimSpace(session.Token),
		formatTime(session.ExpiresAt),
		formatTimePtr(session.RevokedAt),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return r.GetSession(ctx, session.Token)
}

// GetSession retrieves a session by its token value.
func (r *SessionRepository) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	var (
		session                         persistence.Session
		expiresAt, createdAt, updatedAt string
		revokedAt                       sql.NullString
	)
	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT id, employee_id, token, expires_at, revoked_at, created_at, updated_at
		FROM sessions WHERE token = ?`, token,
	).Scan(&session.ID, &session.EmployeeID, &session.Token, &expiresAt, &revokedAt, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}

	if session.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.Session{}, err
	}
	if session.RevokedAt, err = parseTimePtr(revokedAt); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Session{}, err
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

// UpdateSession rewrites the token and expiry of a session, keyed by ID.
// Token rotation goes through here.
func (r *SessionRepository) UpdateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE sessions SET token = ?, expires_at = ?, revoked_at = ?, updated_at = ?
		WHERE id = ?`,
		strings.TrimSpace(session.Token),
		formatTime(session.ExpiresAt),
		formatTimePtr(session.RevokedAt),
		formatTime(session.UpdatedAt),
		session.ID,
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	if err := requireAffected(result); err != nil {
		return persistence.Session{}, err
	}
	return r.GetSession(ctx, session.Token)
}

// RevokeSession marks a session revoked. Revoking twice keeps the first
// revocation time.
func (r *SessionRepository) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE sessions SET revoked_at = COALESCE(revoked_at, ?), updated_at = ?
		WHERE token = ?`,
		formatTime(revokedAt), formatTime(revokedAt), strings.TrimSpace(token),
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	if err := requireAffected(result); err != nil {
		return persistence.Session{}, err
	}
	return r.GetSession(ctx, token)
}

// DeleteExpiredSessions removes sessions that expired or were revoked before
// reference.
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int64, error) {
	ref := formatTime(reference)
	result, err := r.pool.DB().ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ? OR (revoked_at IS NOT NULL AND revoked_at <= ?)`, ref, ref)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return result.RowsAffected()
}
