package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RouterConfig wires handlers into the router. Nil handlers leave their
// routes unregistered.
type RouterConfig struct {
	Sessions   SessionValidator
	Auth       *AuthHandler
	Employees  *EmployeeHandler
	Locations  *LocationHandler
	Shifts     *ShiftHandler
	Bingo      *BingoHandler
	Live       *LiveHub
	LiveStates gameStateSource
	Streaming  *StreamingHandler
	Metrics    *Metrics
	Health     HealthChecker
	Static     http.Handler
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	logger := defaultLogger(cfg.Logger)

	sessions := cfg.Sessions
	if sessions == nil {
		sessions = denyAll{}
	}
	requireSession := RequireSession(sessions, logger)
	requireAdmin := RequireAdmin(logger)

	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, cfg.Metrics.Instrument(pattern, h))
	}
	public := func(pattern string, h http.HandlerFunc) {
		handle(pattern, h)
	}
	member := func(pattern string, h http.HandlerFunc) {
		handle(pattern, requireSession(h))
	}
	admin := func(pattern string, h http.HandlerFunc) {
		handle(pattern, requireSession(requireAdmin(h)))
	}

	public("GET /healthz", healthHandler(cfg.Health))
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}

	if cfg.Auth != nil {
		public("POST /login", cfg.Auth.Login)
		public("POST /sessions/refresh", cfg.Auth.Refresh)
		member("POST /logout", cfg.Auth.Logout)
	}

	if cfg.Employees != nil {
		public("POST /invites/accept", cfg.Employees.AcceptInvite)
		member("GET /me", cfg.Employees.Me)
		member("GET /me/profile", cfg.Employees.Me)
		member("PUT /me/profile", cfg.Employees.UpdateProfile)
		admin("GET /employees", cfg.Employees.List)
		admin("POST /employees", cfg.Employees.Create)
		admin("POST /employees/invite", cfg.Employees.Invite)
		member("GET /employees/{id}", cfg.Employees.Get)
		admin("PUT /employees/{id}", cfg.Employees.Update)
		admin("DELETE /employees/{id}", cfg.Employees.Delete)
	}

	if cfg.Locations != nil {
		member("GET /locations", cfg.Locations.List)
		admin("POST /locations", cfg.Locations.Create)
		member("GET /locations/{id}", cfg.Locations.Get)
		admin("PUT /locations/{id}", cfg.Locations.Update)
		admin("DELETE /locations/{id}", cfg.Locations.Delete)
	}

	if cfg.Shifts != nil {
		member("GET /me/shifts", cfg.Shifts.Mine)
		member("GET /shifts", cfg.Shifts.List)
		admin("POST /shifts", cfg.Shifts.Create)
		admin("GET /shifts/export", cfg.Shifts.Export)
		admin("GET /shifts/conflicts", cfg.Shifts.Conflicts)
		admin("POST /shifts/copy-range", cfg.Shifts.CopyRange)
		admin("POST /shifts/delete-range", cfg.Shifts.DeleteRange)
		admin("POST /shifts/recurring", cfg.Shifts.Recurring)
		member("GET /shifts/{id}", cfg.Shifts.Get)
		admin("PUT /shifts/{id}", cfg.Shifts.Update)
		admin("DELETE /shifts/{id}", cfg.Shifts.Delete)
		admin("POST /shifts/{id}/move", cfg.Shifts.Move)
		admin("POST /shifts/{id}/copy", cfg.Shifts.Copy)
	}

	if cfg.Bingo != nil {
		member("GET /playlists", cfg.Bingo.ListPlaylists)
		member("POST /playlists", cfg.Bingo.CreatePlaylist)
		member("GET /playlists/{id}", cfg.Bingo.GetPlaylist)
		member("PUT /playlists/{id}", cfg.Bingo.UpdatePlaylist)
		member("DELETE /playlists/{id}", cfg.Bingo.DeletePlaylist)
		member("GET /games", cfg.Bingo.ListGames)
		member("POST /games", cfg.Bingo.CreateGame)
		member("GET /games/{id}", cfg.Bingo.GetGame)
		member("GET /games/{id}/qr", cfg.Bingo.QRCode)
		for _, action := range []string{"start", "pause", "end", "next", "previous"} {
			member("POST /games/{id}/"+action, cfg.Bingo.Transition(action))
		}
		public("POST /play/join", cfg.Bingo.Join)
		public("GET /play/{game}/{player}/board", cfg.Bingo.Board)
		public("POST /play/{game}/{player}/heartbeat", cfg.Bingo.Heartbeat)
	}

	if cfg.Live != nil && cfg.LiveStates != nil {
		// Not instrumented: the handler blocks for the life of the socket.
		mux.Handle("GET /play/{game}/live", cfg.Live.Handler(cfg.LiveStates))
	}

	if cfg.Streaming != nil {
		member("GET /oauth/streaming/start", cfg.Streaming.Start)
		public("GET /oauth/streaming/callback", cfg.Streaming.Callback)
		member("GET /oauth/streaming/token", cfg.Streaming.Token)
		member("DELETE /oauth/streaming", cfg.Streaming.Disconnect)
	}

	if cfg.Static != nil {
		mux.Handle("GET /", cfg.Static)
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responder := newResponder(LoggerFromContext(r.Context()))
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.Ping(ctx); err != nil {
				responder.loggerFor(r.Context()).WarnContext(r.Context(), "health check failed", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

type denyAll struct{}

func (denyAll) ValidateSession(context.Context, string) (application.Principal, error) {
	return application.Principal{}, application.ErrUnauthorized
}
