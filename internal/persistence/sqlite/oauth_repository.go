package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

// OAuthRepository implements persistence.OAuthRepository using SQLite.
type OAuthRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewOAuthRepository creates a new SQLite OAuth repository.
func NewOAuthRepository(pool *ConnectionPool) *OAuthRepository {
	return &OAuthRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateOAuthState stores a pending authorization state.
func (r *OAuthRepository) CreateOAuthState(ctx context.Context, state persistence.OAuthState) error {
	if state.State == "" || state.EmployeeID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.pool.DB().ExecContext(ctx,
		`INSERT INTO oauth_states (state, employee_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		state.State, state.EmployeeID, formatTime(state.ExpiresAt), formatTime(state.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// ConsumeOAuthState reads and deletes a state inside one transaction.
func (r *OAuthRepository) ConsumeOAuthState(ctx context.Context, state string) (persistence.OAuthState, error) {
	var out persistence.OAuthState
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var expiresAt, createdAt string
		err := tx.QueryRowContext(ctx,
			`SELECT state, employee_id, expires_at, created_at FROM oauth_states WHERE state = ?`, state,
		).Scan(&out.State, &out.EmployeeID, &expiresAt, &createdAt)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if out.ExpiresAt, err = parseTime(expiresAt); err != nil {
			return err
		}
		if out.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM oauth_states WHERE state = ?`, state); err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
	if err != nil {
		return persistence.OAuthState{}, err
	}
	return out, nil
}

// DeleteExpiredOAuthStates removes states that expired at or before reference.
func (r *OAuthRepository) DeleteExpiredOAuthStates(ctx context.Context, reference time.Time) (int64, error) {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at <= ?`, formatTime(reference))
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return result.RowsAffected()
}

// SaveStreamingToken inserts or replaces the grant held for an employee.
func (r *OAuthRepository) SaveStreamingToken(ctx context.Context, token persistence.StreamingToken) error {
	if token.EmployeeID == "" || token.RefreshToken == "" {
		return persistence.ErrConstraintViolation
	}
	var expiry *time.Time
	if !token.Expiry.IsZero() {
		expiry = &token.Expiry
	}
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO streaming_tokens (employee_id, access_token, refresh_token, token_type, expiry, updated_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (employee_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at,
			revoked_at = excluded.revoked_at`,
		token.EmployeeID, token.AccessToken, token.RefreshToken, token.TokenType,
		formatTimePtr(expiry), formatTime(token.UpdatedAt), formatTimePtr(token.RevokedAt),
	)
	return r.mapper.MapError(err)
}

// GetStreamingToken returns the grant held for an employee.
func (r *OAuthRepository) GetStreamingToken(ctx context.Context, employeeID string) (persistence.StreamingToken, error) {
	var (
		token             persistence.StreamingToken
		expiry, revokedAt sql.NullString
		updatedAt         string
	)
	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT employee_id, access_token, refresh_token, token_type, expiry, updated_at, revoked_at
		FROM streaming_tokens WHERE employee_id = ?`, employeeID,
	).Scan(&token.EmployeeID, &token.AccessToken, &token.RefreshToken, &token.TokenType, &expiry, &updatedAt, &revokedAt)
	if err != nil {
		return persistence.StreamingToken{}, r.mapper.MapError(err)
	}

	exp, err := parseTimePtr(expiry)
	if err != nil {
		return persistence.StreamingToken{}, err
	}
	if exp != nil {
		token.Expiry = *exp
	}
	if token.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.StreamingToken{}, err
	}
	if token.RevokedAt, err = parseTimePtr(revokedAt); err != nil {
		return persistence.StreamingToken{}, err
	}
	return token, nil
}

// DeleteRevokedStreamingTokens removes grants that were revoked.
func (r *OAuthRepository) DeleteRevokedStreamingTokens(ctx context.Context) (int64, error) {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM streaming_tokens WHERE revoked_at IS NOT NULL`)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return result.RowsAffected()
}
