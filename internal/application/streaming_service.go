package application

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// DefaultOAuthStateTTL bounds how long a streaming authorization may take.
	DefaultOAuthStateTTL = 10 * time.Minute
	// tokenRefreshSkew refreshes access tokens slightly before they expire.
	tokenRefreshSkew = 30 * time.Second
)

// OAuthRepository captures the persistence operations for streaming OAuth.
type OAuthRepository interface {
	CreateOAuthState(ctx context.Context, state OAuthState) error
	ConsumeOAuthState(ctx context.Context, state string) (OAuthState, error)
	DeleteExpiredOAuthStates(ctx context.Context, reference time.Time) (int64, error)
	SaveStreamingToken(ctx context.Context, token StreamingToken) error
	GetStreamingToken(ctx context.Context, employeeID string) (StreamingToken, error)
	DeleteRevokedStreamingTokens(ctx context.Context) (int64, error)
}

// OAuthProvider talks to the music streaming authorization server.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (StreamingToken, error)
	Refresh(ctx context.Context, token StreamingToken) (StreamingToken, error)
}

// StreamingService links employees to their music streaming account.
type StreamingService struct {
	repo           OAuthRepository
	provider       OAuthProvider
	stateGenerator func() string
	now            func() time.Time
	stateTTL       time.Duration
	logger         *slog.Logger
}

// NewStreamingService wires dependencies for the streaming service.
func NewStreamingService(repo OAuthRepository, provider OAuthProvider, stateGenerator func() string, now func() time.Time) *StreamingService {
	return NewStreamingServiceWithLogger(repo, provider, stateGenerator, now, nil)
}

// NewStreamingServiceWithLogger wires dependencies for the streaming service with a specified logger.
func NewStreamingServiceWithLogger(repo OAuthRepository, provider OAuthProvider, stateGenerator func() string, now func() time.Time, logger *slog.Logger) *StreamingService {
	if stateGenerator == nil {
		stateGenerator = randomState
	}
	if now == nil {
		now = time.Now
	}
	return &StreamingService{
		repo:           repo,
		provider:       provider,
		stateGenerator: stateGenerator,
		now:            now,
		stateTTL:       DefaultOAuthStateTTL,
		logger:         defaultLogger(logger),
	}
}

func (s *StreamingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "StreamingService", operation, attrs...)
}

// BeginAuthorization records a one-time state for principal and returns the
// provider URL the browser should be sent to.
func (s *StreamingService) BeginAuthorization(ctx context.Context, principal Principal) (authURL string, err error) {
	if s == nil {
		err = fmt.Errorf("StreamingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "BeginAuthorization", "principal_id", principal.EmployeeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to begin streaming authorization", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "streaming authorization started")
	}()

	if principal.EmployeeID == "" {
		err = ErrUnauthorized
		return
	}
	if s.repo == nil || s.provider == nil {
		err = fmt.Errorf("streaming oauth not configured")
		return
	}

	state := strings.TrimSpace(s.stateGenerator())
	if state == "" {
		err = fmt.Errorf("state generator returned empty value")
		return
	}
	now := s.now()
	if err = s.repo.CreateOAuthState(ctx, OAuthState{
		State:      state,
		EmployeeID: principal.EmployeeID,
		ExpiresAt:  now.Add(s.stateTTL),
		CreatedAt:  now,
	}); err != nil {
		return
	}
	authURL = s.provider.AuthCodeURL(state)
	return
}

// CompleteAuthorization redeems a state once and stores the resulting grant
// for the employee who started the flow.
func (s *StreamingService) CompleteAuthorization(ctx context.Context, state, code string) (token StreamingToken, err error) {
	if s == nil {
		err = fmt.Errorf("StreamingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CompleteAuthorization")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "failed to complete streaming authorization", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("employee_id", token.EmployeeID).InfoContext(ctx, "streaming account linked")
	}()

	if s.repo == nil || s.provider == nil {
		err = fmt.Errorf("streaming oauth not configured")
		return
	}
	state = strings.TrimSpace(state)
	code = strings.TrimSpace(code)
	if state == "" || code == "" {
		err = ErrInvalidCredentials
		return
	}

	var pending OAuthState
	pending, err = s.repo.ConsumeOAuthState(ctx, state)
	if err != nil {
		if isNotFound(err) {
			err = ErrInvalidCredentials
		}
		return
	}
	now := s.now()
	if !now.Before(pending.ExpiresAt) {
		err = ErrInvalidCredentials
		return
	}

	token, err = s.provider.Exchange(ctx, code)
	if err != nil {
		err = fmt.Errorf("exchange authorization code: %w", err)
		return
	}
	if token.RefreshToken == "" {
		err = fmt.Errorf("streaming provider returned no refresh token")
		return
	}
	token.EmployeeID = pending.EmployeeID
	token.UpdatedAt = now
	token.RevokedAt = nil
	err = s.repo.SaveStreamingToken(ctx, token)
	return
}

// AccessToken returns a usable access token for principal, refreshing it
// from the stored refresh token when it is about to expire.
func (s *StreamingService) AccessToken(ctx context.Context, principal Principal) (token StreamingToken, err error) {
	if s == nil {
		err = fmt.Errorf("StreamingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "AccessToken", "principal_id", principal.EmployeeID)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "failed to obtain streaming access token", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if principal.EmployeeID == "" {
		err = ErrUnauthorized
		return
	}
	if s.repo == nil || s.provider == nil {
		err = fmt.Errorf("streaming oauth not configured")
		return
	}

	token, err = s.stored(ctx, principal.EmployeeID)
	if err != nil {
		return
	}
	now := s.now()
	if token.AccessToken != "" && now.Add(tokenRefreshSkew).Before(token.Expiry) {
		return
	}

	var refreshed StreamingToken
	refreshed, err = s.provider.Refresh(ctx, token)
	if err != nil {
		err = fmt.Errorf("refresh streaming token: %w", err)
		return
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	refreshed.EmployeeID = token.EmployeeID
	refreshed.UpdatedAt = now
	if err = s.repo.SaveStreamingToken(ctx, refreshed); err != nil {
		return
	}
	logger.DebugContext(ctx, "streaming token refreshed")
	token = refreshed
	return
}

// Disconnect revokes the stored grant of principal. The janitor removes it later.
func (s *StreamingService) Disconnect(ctx context.Context, principal Principal) error {
	if s == nil {
		return fmt.Errorf("StreamingService is nil")
	}
	if principal.EmployeeID == "" {
		return ErrUnauthorized
	}
	if s.repo == nil {
		return fmt.Errorf("streaming oauth not configured")
	}

	token, err := s.stored(ctx, principal.EmployeeID)
	if err != nil {
		return err
	}
	now := s.now()
	token.RevokedAt = &now
	token.UpdatedAt = now
	if err := s.repo.SaveStreamingToken(ctx, token); err != nil {
		return err
	}
	s.loggerWith(ctx, "Disconnect", "principal_id", principal.EmployeeID).InfoContext(ctx, "streaming account disconnected")
	return nil
}

func (s *StreamingService) stored(ctx context.Context, employeeID string) (StreamingToken, error) {
	token, err := s.repo.GetStreamingToken(ctx, employeeID)
	if err != nil {
		if isNotFound(err) {
			return StreamingToken{}, ErrNotConnected
		}
		return StreamingToken{}, err
	}
	if token.RevokedAt != nil || token.RefreshToken == "" {
		return StreamingToken{}, ErrNotConnected
	}
	return token, nil
}

func randomState() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random state: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
