package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/calendar"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}

type stubAuthService struct {
	authenticateFn func(application.AuthenticateParams) (application.AuthenticateResult, error)
	revoked        []string
}

func (s *stubAuthService) Authenticate(_ context.Context, params application.AuthenticateParams) (application.AuthenticateResult, error) {
	return s.authenticateFn(params)
}

func (s *stubAuthService) RefreshSession(context.Context, application.RefreshSessionParams) (application.RefreshSessionResult, error) {
	return application.RefreshSessionResult{}, application.ErrUnauthorized
}

func (s *stubAuthService) RevokeSession(_ context.Context, token string) error {
	s.revoked = append(s.revoked, token)
	return nil
}

// stubShiftService answers ListShifts and ExportMonth; other methods panic.
type stubShiftService struct {
	shiftService
	listParams []application.ListShiftsParams
	listResult application.ListShiftsResult
}

func (s *stubShiftService) ListShifts(_ context.Context, params application.ListShiftsParams) (application.ListShiftsResult, error) {
	s.listParams = append(s.listParams, params)
	return s.listResult, nil
}

func (s *stubShiftService) ExportMonth(_ context.Context, _ application.Principal, month string) ([]byte, calendar.Range, error) {
	rng, err := calendar.ParseMonth(month)
	if err != nil {
		return nil, calendar.Range{}, &application.ValidationError{FieldErrors: map[string]string{"month": "bad month"}}
	}
	return []byte("PK"), rng, nil
}

// stubGameService answers the player facing methods; other methods panic.
type stubGameService struct {
	gameService
	state application.GameState
	join  application.JoinResult
	err   error
}

func (s *stubGameService) JoinGame(_ context.Context, code, displayName string) (application.JoinResult, error) {
	if s.err != nil {
		return application.JoinResult{}, s.err
	}
	result := s.join
	result.Player.DisplayName = displayName
	return result, nil
}

func (s *stubGameService) GameState(_ context.Context, gameID string) (application.GameState, error) {
	if s.err != nil {
		return application.GameState{}, s.err
	}
	state := s.state
	state.GameID = gameID
	return state, nil
}

func (s *stubGameService) StartGame(_ context.Context, principal application.Principal, gameID string) (application.GameState, error) {
	if !principal.CanHost() {
		return application.GameState{}, application.ErrUnauthorized
	}
	return application.GameState{GameID: gameID, Status: application.GameStatusActive}, nil
}

type stubHealth struct{ err error }

func (s stubHealth) Ping(context.Context) error { return s.err }

func TestResponderHandleServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "validation", err: &application.ValidationError{FieldErrors: map[string]string{"date": "required"}}, status: http.StatusUnprocessableEntity, code: "VALIDATION_FAILED"},
		{name: "not found", err: application.ErrNotFound, status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "wrapped duplicate", err: errors.Join(errors.New("insert"), application.ErrAlreadyExists), status: http.StatusConflict, code: "ALREADY_EXISTS"},
		{name: "in use", err: application.ErrInUse, status: http.StatusConflict, code: "IN_USE"},
		{name: "bad transition", err: application.ErrInvalidTransition, status: http.StatusConflict, code: "INVALID_TRANSITION"},
		{name: "expired invite", err: application.ErrInviteExpired, status: http.StatusGone, code: "INVITE_EXPIRED"},
		{name: "forbidden", err: application.ErrUnauthorized, status: http.StatusForbidden, code: "AUTH_FORBIDDEN"},
		{name: "streaming not connected", err: application.ErrNotConnected, status: http.StatusConflict, code: "STREAMING_NOT_CONNECTED"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	r := newResponder(discardLogger())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			r.handleServiceError(context.Background(), rec, tc.err)

			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
			body := decodeError(t, rec)
			if body.ErrorCode != tc.code {
				t.Fatalf("expected error code %q, got %q", tc.code, body.ErrorCode)
			}
			if tc.code == "VALIDATION_FAILED" && body.Errors["date"] != "required" {
				t.Fatalf("expected field errors in body, got %v", body.Errors)
			}
		})
	}
}

func TestAuthHandler(t *testing.T) {
	t.Parallel()

	expires := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	service := &stubAuthService{
		authenticateFn: func(params application.AuthenticateParams) (application.AuthenticateResult, error) {
			if params.Email != "host@example.com" || params.Password != "secret" {
				return application.AuthenticateResult{}, application.ErrInvalidCredentials
			}
			return application.AuthenticateResult{
				Employee: application.Employee{ID: "emp-1", Email: params.Email, Active: true, Roles: []application.Role{application.RoleHost}},
				Session:  application.Session{ID: "s-1", EmployeeID: "emp-1", Token: "tok-1", ExpiresAt: expires},
			}, nil
		},
	}
	handler := NewAuthHandler(service, true, discardLogger())

	t.Run("login issues cookie and token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":" Host@Example.com ","password":"secret"}`))
		rec := httptest.NewRecorder()
		handler.Login(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if got := rec.Header().Get("X-Session-Token"); got != "tok-1" {
			t.Fatalf("expected session header, got %q", got)
		}
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Name != sessionCookieName || !cookies[0].HttpOnly || !cookies[0].Secure {
			t.Fatalf("unexpected cookies %+v", cookies)
		}

		var body loginResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Principal.EmployeeID != "emp-1" || body.Principal.IsAdmin {
			t.Fatalf("unexpected principal %+v", body.Principal)
		}
	})

	t.Run("wrong password is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"host@example.com","password":"nope"}`))
		rec := httptest.NewRecorder()
		handler.Login(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if body := decodeError(t, rec); body.ErrorCode != "AUTH_INVALID_CREDENTIALS" {
			t.Fatalf("unexpected error code %s", body.ErrorCode)
		}
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Login(rec, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{`)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("logout revokes bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/logout", nil)
		req.Header.Set("Authorization", "Bearer tok-1")
		rec := httptest.NewRecorder()
		handler.Logout(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if len(service.revoked) != 1 || service.revoked[0] != "tok-1" {
			t.Fatalf("expected token to be revoked, got %v", service.revoked)
		}
	})
}

func TestBuildListParams(t *testing.T) {
	t.Parallel()

	principal := application.Principal{EmployeeID: "emp-1"}

	t.Run("week preset", func(t *testing.T) {
		params, err := buildListParams(url.Values{"week": {"2024-03-13"}, "employee": {" emp-2 "}}, principal)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if params.Period != application.ListPeriodWeek || params.Reference.String() != "2024-03-13" {
			t.Fatalf("unexpected params %+v", params)
		}
		if params.EmployeeID != "emp-2" {
			t.Fatalf("expected trimmed employee filter, got %q", params.EmployeeID)
		}
	})

	t.Run("bare month", func(t *testing.T) {
		params, err := buildListParams(url.Values{"month": {"2024-02"}}, principal)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if params.Period != application.ListPeriodMonth || params.Reference.String() != "2024-02-01" {
			t.Fatalf("unexpected params %+v", params)
		}
	})

	t.Run("explicit bounds", func(t *testing.T) {
		params, err := buildListParams(url.Values{"from": {"2024-01-01"}, "to": {"2024-01-31"}}, principal)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if params.Period != application.ListPeriodNone || params.From.String() != "2024-01-01" || params.To.String() != "2024-01-31" {
			t.Fatalf("unexpected params %+v", params)
		}
	})

	t.Run("bad date is a validation error", func(t *testing.T) {
		_, err := buildListParams(url.Values{"day": {"2024-13-01"}}, principal)
		var vErr *application.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if _, ok := vErr.FieldErrors["day"]; !ok {
			t.Fatalf("expected day field error, got %v", vErr.FieldErrors)
		}
	})
}

func TestRouter(t *testing.T) {
	t.Parallel()

	sessions := map[string]application.Principal{
		"admin-token": {EmployeeID: "admin", IsAdmin: true},
		"host-token":  {EmployeeID: "host", Roles: []application.Role{application.RoleHost}},
	}
	validator := sessionValidatorFunc(func(token string) (application.Principal, error) {
		principal, ok := sessions[token]
		if !ok {
			return application.Principal{}, application.ErrUnauthorized
		}
		return principal, nil
	})

	shifts := &stubShiftService{listResult: application.ListShiftsResult{
		Range: calendar.Range{Start: mustDate(t, "2024-03-10"), End: mustDate(t, "2024-03-17")},
		Shifts: []application.Shift{{
			ID:         "shift-1",
			Date:       mustDate(t, "2024-03-12"),
			EmployeeID: "host",
			EventType:  application.EventType("trivia"),
			Location:   "Tiki Bar",
		}},
	}}
	games := &stubGameService{
		state: application.GameState{Status: application.GameStatusActive, TotalSongs: 30},
		join: application.JoinResult{
			Game:   application.Game{ID: "game-1", Status: application.GameStatusActive},
			Player: application.Player{GameID: "game-1", PlayerID: "player-1"},
			Board:  [][]application.BoardCell{{{Song: application.Song{Title: "Kokomo", Artist: "The Beach Boys"}}, {Free: true}}},
		},
	}
	metrics := NewMetrics()

	router := NewRouter(RouterConfig{
		Sessions: validator,
		Shifts:   NewShiftHandler(shifts, discardLogger()),
		Bingo:    NewBingoHandler(nil, games, discardLogger()),
		Metrics:  metrics,
		Health:   stubHealth{},
		Static:   StaticPages(),
		Logger:   discardLogger(),
	})

	do := func(method, target, token, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body != "" {
			req = httptest.NewRequest(method, target, strings.NewReader(body))
		} else {
			req = httptest.NewRequest(method, target, nil)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("health", func(t *testing.T) {
		rec := do(http.MethodGet, "/healthz", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("shift listing requires a session", func(t *testing.T) {
		rec := do(http.MethodGet, "/shifts?week=2024-03-12", "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("members list shifts with inclusive bounds", func(t *testing.T) {
		rec := do(http.MethodGet, "/shifts?week=2024-03-12", "host-token", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var body listShiftsResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.From != "2024-03-10" || body.To != "2024-03-16" {
			t.Fatalf("expected inclusive week bounds, got %s..%s", body.From, body.To)
		}
		if len(body.Shifts) != 1 || body.Shifts[0].ID != "shift-1" {
			t.Fatalf("unexpected shifts %+v", body.Shifts)
		}
		last := shifts.listParams[len(shifts.listParams)-1]
		if last.Principal.EmployeeID != "host" {
			t.Fatalf("expected principal to reach the service, got %+v", last.Principal)
		}
	})

	t.Run("export is admin only", func(t *testing.T) {
		rec := do(http.MethodGet, "/shifts/export?month=2024-03", "host-token", "")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}

		rec = do(http.MethodGet, "/shifts/export?month=2024-03", "admin-token", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "shifts-2024-03.xlsx") {
			t.Fatalf("unexpected content disposition %q", got)
		}
		if got := rec.Header().Get("Content-Type"); got != xlsxContentType {
			t.Fatalf("unexpected content type %q", got)
		}
	})

	t.Run("players join without a session", func(t *testing.T) {
		rec := do(http.MethodPost, "/play/join", "", `{"code":"abcd","display_name":"Sandy"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var body joinResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.PlayerID != "player-1" || body.DisplayName != "Sandy" {
			t.Fatalf("unexpected join response %+v", body)
		}
		if len(body.Board) != 1 || !body.Board[0][1].Free || body.Board[0][0].Title != "Kokomo" {
			t.Fatalf("unexpected board %+v", body.Board)
		}
	})

	t.Run("host controls need a session", func(t *testing.T) {
		if rec := do(http.MethodPost, "/games/game-1/start", "", ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		rec := do(http.MethodPost, "/games/game-1/start", "host-token", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body gameStateResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.State.GameID != "game-1" || body.State.Status != "active" {
			t.Fatalf("unexpected state %+v", body.State)
		}
	})

	t.Run("static pages resolve without extension", func(t *testing.T) {
		rec := do(http.MethodGet, "/events", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Fatalf("expected html, got %q", ct)
		}
	})

	t.Run("metrics expose request counters", func(t *testing.T) {
		rec := do(http.MethodGet, "/metrics", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "beachtrivia_http_requests_total") {
			t.Fatalf("expected request counter in metrics output")
		}
	})
}

func TestHealthHandlerUnavailable(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	healthHandler(stubHealth{err: errors.New("down")})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

type sessionValidatorFunc func(token string) (application.Principal, error)

func (f sessionValidatorFunc) ValidateSession(_ context.Context, token string) (application.Principal, error) {
	return f(token)
}

func mustDate(t *testing.T, raw string) calendar.Date {
	t.Helper()
	date, err := calendar.ParseDate(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return date
}
