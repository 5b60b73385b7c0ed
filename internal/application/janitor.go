package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultJanitorInterval is how often the janitor sweeps by default.
const DefaultJanitorInterval = time.Minute

// StalePlayerPruner removes bingo players outside the active window.
type StalePlayerPruner interface {
	PruneStalePlayers(ctx context.Context) (int64, error)
}

// JanitorReport counts what one sweep removed.
type JanitorReport struct {
	Sessions        int64
	OAuthStates     int64
	StreamingTokens int64
	Players         int64
}

// Janitor prunes expired sessions, OAuth state and stale players.
type Janitor struct {
	sessions SessionRepository
	oauth    OAuthRepository
	players  StalePlayerPruner
	now      func() time.Time
	logger   *slog.Logger
}

// NewJanitor wires the stores swept by the janitor. Nil stores are skipped.
func NewJanitor(sessions SessionRepository, oauth OAuthRepository, players StalePlayerPruner, now func() time.Time, logger *slog.Logger) *Janitor {
	if now == nil {
		now = time.Now
	}
	return &Janitor{
		sessions: sessions,
		oauth:    oauth,
		players:  players,
		now:      now,
		logger:   defaultLogger(logger),
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	if j == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	logger := serviceLogger(ctx, j.logger, "Janitor", "Run", "interval", interval.String())
	logger.InfoContext(ctx, "janitor started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logger.WarnContext(ctx, "janitor sweep incomplete", "error", err)
		}
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "janitor stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep. Every store is attempted even when an
// earlier one fails; the failures are joined.
func (j *Janitor) RunOnce(ctx context.Context) (report JanitorReport, err error) {
	if j == nil {
		err = fmt.Errorf("Janitor is nil")
		return
	}

	logger := serviceLogger(ctx, j.logger, "Janitor", "RunOnce")
	now := j.now()
	var errs []error

	if j.sessions != nil {
		n, serr := j.sessions.DeleteExpiredSessions(ctx, now)
		if serr != nil {
			errs = append(errs, fmt.Errorf("prune sessions: %w", serr))
		}
		report.Sessions = n
	}
	if j.oauth != nil {
		n, serr := j.oauth.DeleteExpiredOAuthStates(ctx, now)
		if serr != nil {
			errs = append(errs, fmt.Errorf("prune oauth states: %w", serr))
		}
		report.OAuthStates = n

		n, serr = j.oauth.DeleteRevokedStreamingTokens(ctx)
		if serr != nil {
			errs = append(errs, fmt.Errorf("prune streaming tokens: %w", serr))
		}
		report.StreamingTokens = n
	}
	if j.players != nil {
		n, serr := j.players.PruneStalePlayers(ctx)
		if serr != nil {
			errs = append(errs, fmt.Errorf("prune players: %w", serr))
		}
		report.Players = n
	}

	err = errors.Join(errs...)
	if report != (JanitorReport{}) {
		logger.InfoContext(ctx, "janitor sweep removed records",
			"sessions", report.Sessions,
			"oauth_states", report.OAuthStates,
			"streaming_tokens", report.StreamingTokens,
			"players", report.Players,
		)
	}
	return
}
