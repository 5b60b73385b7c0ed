package sqlite

import (
	"context"
	"database/sql"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

// InviteRepository implements persistence.InviteRepository using SQLite.
type InviteRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewInviteRepository creates a new SQLite invite repository.
func NewInviteRepository(pool *ConnectionPool) *InviteRepository {
	return &InviteRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateInvite inserts a new invitation.
func (r *InviteRepository) CreateInvite(ctx context.Context, invite persistence.Invite) error {
	if invite.ID == "" || invite.EmployeeID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO invites (id, employee_id, email, roles, invited_by, expires_at, accepted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		invite.ID, invite.EmployeeID, invite.Email, encodeStrings(invite.Roles), invite.InvitedBy,
		formatTime(invite.ExpiresAt), formatTimePtr(invite.AcceptedAt), formatTime(invite.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// GetInvite retrieves an invitation by ID.
func (r *InviteRepository) GetInvite(ctx context.Context, id string) (persistence.Invite, error) {
	var (
		invite               persistence.Invite
		roles                string
		expiresAt, createdAt string
		acceptedAt           sql.NullString
	)
	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT id, employee_id, email, roles, invited_by, expires_at, accepted_at, created_at
		FROM invites WHERE id = ?`, id,
	).Scan(&invite.ID, &invite.EmployeeID, &invite.Email, &roles, &invite.InvitedBy, &expiresAt, &acceptedAt, &createdAt)
	if err != nil {
		return persistence.Invite{}, r.mapper.MapError(err)
	}

	if invite.Roles, err = decodeStrings(roles); err != nil {
		return persistence.Invite{}, err
	}
	if invite.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.Invite{}, err
	}
	if invite.AcceptedAt, err = parseTimePtr(acceptedAt); err != nil {
		return persistence.Invite{}, err
	}
	if invite.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Invite{}, err
	}
	return invite, nil
}

// UpdateInvite records acceptance or a new expiry.
func (r *InviteRepository) UpdateInvite(ctx context.Context, invite persistence.Invite) error {
	result, err := r.pool.DB().ExecContext(ctx,
		`UPDATE invites SET roles = ?, expires_at = ?, accepted_at = ? WHERE id = ?`,
		encodeStrings(invite.Roles), formatTime(invite.ExpiresAt), formatTimePtr(invite.AcceptedAt), invite.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}
