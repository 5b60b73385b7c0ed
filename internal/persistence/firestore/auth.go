package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

type sessionDoc struct {
	EmployeeID string     `firestore:"employee_id"`
	Token      string     `firestore:"token"`
	ExpiresAt  time.Time  `firestore:"expires_at"`
	RevokedAt  *time.Time `firestore:"revoked_at"`
	CreatedAt  time.Time  `firestore:"created_at"`
	UpdatedAt  time.Time  `firestore:"updated_at"`
}

func decodeSession(snap *firestore.DocumentSnapshot) (persistence.Session, error) {
	d, err := decodeAs[sessionDoc](snap)
	if err != nil {
		return persistence.Session{}, err
	}
	return persistence.Session{
		ID:         snap.Ref.ID,
		EmployeeID: d.EmployeeID,
		Token:      d.Token,
		ExpiresAt:  d.ExpiresAt,
		RevokedAt:  d.RevokedAt,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}, nil
}

// CreateSession stores a new session token for an employee.
func (s *Store) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	session.Token = strings.TrimSpace(session.Token)
	if session.ID == "" || session.EmployeeID == "" || session.Token == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}
	_, err := s.col(sessionsCollection).Doc(session.ID).Create(ctx, sessionDoc{
		EmployeeID: session.EmployeeID,
		Token:      session.Token,
		ExpiresAt:  session.ExpiresAt.UTC(),
		RevokedAt:  utcPtr(session.RevokedAt),
		CreatedAt:  session.CreatedAt.UTC(),
		UpdatedAt:  session.UpdatedAt.UTC(),
	})
	if err != nil {
		return persistence.Session{}, mapError(err)
	}
	return s.GetSession(ctx, session.Token)
}

func (s *Store) sessionByToken(ctx context.Context, token string) (*firestore.DocumentSnapshot, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, persistence.ErrNotFound
	}
	it := s.col(sessionsCollection).Where("token", "==", token).Limit(1).Documents(ctx)
	defer it.Stop()
	snap, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	return snap, nil
}

// GetSession retrieves a session by its token value.
func (s *Store) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	snap, err := s.sessionByToken(ctx, token)
	if err != nil {
		return persistence.Session{}, err
	}
	return decodeSession(snap)
}

// UpdateSession rewrites the token and expiry of a session, keyed by ID.
func (s *Store) UpdateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.ID == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	_, err := s.col(sessionsCollection).Doc(session.ID).Update(ctx, []firestore.Update{
		{Path: "token", Value: strings.TrimSpace(session.Token)},
		{Path: "expires_at", Value: session.ExpiresAt.UTC()},
		{Path: "revoked_at", Value: utcPtr(session.RevokedAt)},
		{Path: "updated_at", Value: session.UpdatedAt.UTC()},
	})
	if err != nil {
		return persistence.Session{}, mapError(err)
	}
	return s.GetSession(ctx, session.Token)
}

// RevokeSession marks a session revoked. Revoking twice keeps the first
// revocation time.
func (s *Store) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	snap, err := s.sessionByToken(ctx, token)
	if err != nil {
		return persistence.Session{}, err
	}
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := tx.Get(snap.Ref)
		if err != nil {
			return err
		}
		d, err := decodeAs[sessionDoc](current)
		if err != nil {
			return err
		}
		if d.RevokedAt != nil {
			return nil
		}
		at := revokedAt.UTC()
		return tx.Update(snap.Ref, []firestore.Update{
			{Path: "revoked_at", Value: at},
			{Path: "updated_at", Value: at},
		})
	})
	if err != nil {
		return persistence.Session{}, mapError(err)
	}
	return s.GetSession(ctx, token)
}

// DeleteExpiredSessions removes sessions that expired or were revoked before
// reference.
func (s *Store) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int64, error) {
	ref := reference.UTC()
	expired, err := s.deleteMatching(ctx, s.col(sessionsCollection).Where("expires_at", "<=", ref))
	if err != nil {
		return expired, err
	}
	revoked, err := s.deleteMatching(ctx, s.col(sessionsCollection).Where("revoked_at", "<=", ref))
	return expired + revoked, err
}

type oauthStateDoc struct {
	EmployeeID string    `firestore:"employee_id"`
	ExpiresAt  time.Time `firestore:"expires_at"`
	CreatedAt  time.Time `firestore:"created_at"`
}

// CreateOAuthState stores a pending authorization state.
func (s *Store) CreateOAuthState(ctx context.Context, state persistence.OAuthState) error {
	if state.State == "" || state.EmployeeID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.col(oauthStatesCollection).Doc(state.State).Create(ctx, oauthStateDoc{
		EmployeeID: state.EmployeeID,
		ExpiresAt:  state.ExpiresAt.UTC(),
		CreatedAt:  state.CreatedAt.UTC(),
	})
	return mapError(err)
}

// ConsumeOAuthState reads and deletes a state inside one transaction.
func (s *Store) ConsumeOAuthState(ctx context.Context, state string) (persistence.OAuthState, error) {
	if state == "" || strings.Contains(state, "/") {
		return persistence.OAuthState{}, persistence.ErrNotFound
	}
	ref := s.col(oauthStatesCollection).Doc(state)
	var out persistence.OAuthState
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		d, err := decodeAs[oauthStateDoc](snap)
		if err != nil {
			return err
		}
		out = persistence.OAuthState{State: state, EmployeeID: d.EmployeeID, ExpiresAt: d.ExpiresAt, CreatedAt: d.CreatedAt}
		return tx.Delete(ref)
	})
	if err != nil {
		return persistence.OAuthState{}, mapError(err)
	}
	return out, nil
}

// DeleteExpiredOAuthStates removes states that expired at or before reference.
func (s *Store) DeleteExpiredOAuthStates(ctx context.Context, reference time.Time) (int64, error) {
	return s.deleteMatching(ctx, s.col(oauthStatesCollection).Where("expires_at", "<=", reference.UTC()))
}

type streamingTokenDoc struct {
	AccessToken  string     `firestore:"access_token"`
	RefreshToken string     `firestore:"refresh_token"`
	TokenType    string     `firestore:"token_type"`
	Expiry       time.Time  `firestore:"expiry"`
	UpdatedAt    time.Time  `firestore:"updated_at"`
	Revoked      bool       `firestore:"revoked"`
	RevokedAt    *time.Time `firestore:"revoked_at"`
}

// SaveStreamingToken inserts or replaces the grant held for an employee.
func (s *Store) SaveStreamingToken(ctx context.Context, token persistence.StreamingToken) error {
	if token.EmployeeID == "" || token.RefreshToken == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.col(streamingTokenCollection).Doc(token.EmployeeID).Set(ctx, streamingTokenDoc{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry.UTC(),
		UpdatedAt:    token.UpdatedAt.UTC(),
		Revoked:      token.RevokedAt != nil,
		RevokedAt:    utcPtr(token.RevokedAt),
	})
	return mapError(err)
}

// GetStreamingToken returns the grant held for an employee.
func (s *Store) GetStreamingToken(ctx context.Context, employeeID string) (persistence.StreamingToken, error) {
	if employeeID == "" {
		return persistence.StreamingToken{}, persistence.ErrNotFound
	}
	snap, err := s.col(streamingTokenCollection).Doc(employeeID).Get(ctx)
	if err != nil {
		return persistence.StreamingToken{}, mapError(err)
	}
	d, err := decodeAs[streamingTokenDoc](snap)
	if err != nil {
		return persistence.StreamingToken{}, err
	}
	return persistence.StreamingToken{
		EmployeeID:   employeeID,
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		TokenType:    d.TokenType,
		Expiry:       d.Expiry,
		UpdatedAt:    d.UpdatedAt,
		RevokedAt:    d.RevokedAt,
	}, nil
}

// DeleteRevokedStreamingTokens removes grants that were revoked.
func (s *Store) DeleteRevokedStreamingTokens(ctx context.Context) (int64, error) {
	return s.deleteMatching(ctx, s.col(streamingTokenCollection).Where("revoked", "==", true))
}
