package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type oauthRepoStub struct {
	states  map[string]OAuthState
	tokens  map[string]StreamingToken
	saveErr error
}

func newOAuthRepoStub() *oauthRepoStub {
	return &oauthRepoStub{states: map[string]OAuthState{}, tokens: map[string]StreamingToken{}}
}

func (r *oauthRepoStub) CreateOAuthState(ctx context.Context, state OAuthState) error {
	r.states[state.State] = state
	return nil
}

func (r *oauthRepoStub) ConsumeOAuthState(ctx context.Context, state string) (OAuthState, error) {
	st, ok := r.states[state]
	if !ok {
		return OAuthState{}, ErrNotFound
	}
	delete(r.states, state)
	return st, nil
}

func (r *oauthRepoStub) DeleteExpiredOAuthStates(ctx context.Context, reference time.Time) (int64, error) {
	var n int64
	for k, st := range r.states {
		if !st.ExpiresAt.After(reference) {
			delete(r.states, k)
			n++
		}
	}
	return n, nil
}

func (r *oauthRepoStub) SaveStreamingToken(ctx context.Context, token StreamingToken) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.tokens[token.EmployeeID] = token
	return nil
}

func (r *oauthRepoStub) GetStreamingToken(ctx context.Context, employeeID string) (StreamingToken, error) {
	token, ok := r.tokens[employeeID]
	if !ok {
		return StreamingToken{}, ErrNotFound
	}
	return token, nil
}

func (r *oauthRepoStub) DeleteRevokedStreamingTokens(ctx context.Context) (int64, error) {
	var n int64
	for k, token := range r.tokens {
		if token.RevokedAt != nil {
			delete(r.tokens, k)
			n++
		}
	}
	return n, nil
}

type providerStub struct {
	exchanged []string
	refreshes int
	now       func() time.Time
}

func (p *providerStub) AuthCodeURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + state
}

func (p *providerStub) Exchange(ctx context.Context, code string) (StreamingToken, error) {
	if code == "bad" {
		return StreamingToken{}, errors.New("invalid_grant")
	}
	p.exchanged = append(p.exchanged, code)
	return StreamingToken{AccessToken: "access-1", RefreshToken: "refresh-1", TokenType: "Bearer", Expiry: p.now().Add(time.Hour)}, nil
}

func (p *providerStub) Refresh(ctx context.Context, token StreamingToken) (StreamingToken, error) {
	p.refreshes++
	return StreamingToken{AccessToken: "access-2", TokenType: "Bearer", Expiry: p.now().Add(time.Hour)}, nil
}

func newStreamingHarness() (*StreamingService, *oauthRepoStub, *providerStub, *time.Time) {
	now := fixedNow()
	clock := func() time.Time { return now }
	repo := newOAuthRepoStub()
	provider := &providerStub{now: clock}
	svc := NewStreamingService(repo, provider, sequentialIDs("state"), clock)
	return svc, repo, provider, &now
}

func TestStreamingService_AuthorizationFlow(t *testing.T) {
	t.Parallel()

	svc, repo, provider, now := newStreamingHarness()
	ctx := context.Background()

	authURL, err := svc.BeginAuthorization(ctx, hostUser)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasSuffix(authURL, "state=state-1") {
		t.Fatalf("unexpected authorize url %q", authURL)
	}
	if st := repo.states["state-1"]; st.EmployeeID != "host-1" || !st.ExpiresAt.Equal(now.Add(10*time.Minute)) {
		t.Fatalf("unexpected stored state %+v", st)
	}

	token, err := svc.CompleteAuthorization(ctx, "state-1", "code-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if token.EmployeeID != "host-1" || repo.tokens["host-1"].RefreshToken != "refresh-1" {
		t.Fatalf("expected stored refresh token, got %+v", repo.tokens)
	}

	if _, err := svc.CompleteAuthorization(ctx, "state-1", "code-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected reused state to be rejected, got %v", err)
	}
	if len(provider.exchanged) != 1 {
		t.Fatalf("expected one code exchange, got %d", len(provider.exchanged))
	}
}

func TestStreamingService_CompleteRejectsExpiredState(t *testing.T) {
	t.Parallel()

	svc, repo, _, now := newStreamingHarness()
	ctx := context.Background()
	if _, err := svc.BeginAuthorization(ctx, hostUser); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	*now = now.Add(11 * time.Minute)

	if _, err := svc.CompleteAuthorization(ctx, "state-1", "code-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, ok := repo.tokens["host-1"]; ok {
		t.Fatalf("expected no token to be stored")
	}
}

func TestStreamingService_AccessToken(t *testing.T) {
	t.Parallel()

	t.Run("not connected", func(t *testing.T) {
		svc, _, _, _ := newStreamingHarness()
		if _, err := svc.AccessToken(context.Background(), hostUser); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("reuses valid token then refreshes", func(t *testing.T) {
		svc, repo, provider, now := newStreamingHarness()
		ctx := context.Background()
		repo.tokens["host-1"] = StreamingToken{EmployeeID: "host-1", AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: now.Add(time.Hour)}

		token, err := svc.AccessToken(ctx, hostUser)
		if err != nil || token.AccessToken != "access-1" || provider.refreshes != 0 {
			t.Fatalf("expected cached token, got %+v (%v)", token, err)
		}

		*now = now.Add(2 * time.Hour)
		token, err = svc.AccessToken(ctx, hostUser)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token.AccessToken != "access-2" || token.RefreshToken != "refresh-1" || provider.refreshes != 1 {
			t.Fatalf("expected refreshed token keeping refresh token, got %+v", token)
		}
		if repo.tokens["host-1"].AccessToken != "access-2" {
			t.Fatalf("expected refreshed token to be stored")
		}
	})

	t.Run("revoked token is not connected", func(t *testing.T) {
		svc, repo, _, now := newStreamingHarness()
		repo.tokens["host-1"] = StreamingToken{EmployeeID: "host-1", RefreshToken: "refresh-1", Expiry: now.Add(time.Hour)}
		if err := svc.Disconnect(context.Background(), hostUser); err != nil {
			t.Fatalf("disconnect failed: %v", err)
		}
		if _, err := svc.AccessToken(context.Background(), hostUser); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("expected ErrNotConnected, got %v", err)
		}
	})
}

type playerPrunerStub struct {
	removed int64
	err     error
}

func (p *playerPrunerStub) PruneStalePlayers(ctx context.Context) (int64, error) {
	return p.removed, p.err
}

func TestJanitor_RunOnce(t *testing.T) {
	t.Parallel()

	now := fixedNow()
	sessions := newSessionRepositoryStub()
	sessions.seed(Session{ID: "s1", Token: "t1", ExpiresAt: now.Add(-time.Minute)})
	sessions.seed(Session{ID: "s2", Token: "t2", ExpiresAt: now.Add(time.Hour)})
	oauth := newOAuthRepoStub()
	oauth.states["old"] = OAuthState{State: "old", ExpiresAt: now.Add(-time.Second)}
	oauth.states["new"] = OAuthState{State: "new", ExpiresAt: now.Add(time.Minute)}
	revoked := now
	oauth.tokens["emp-1"] = StreamingToken{EmployeeID: "emp-1", RevokedAt: &revoked}
	players := &playerPrunerStub{removed: 3}

	janitor := NewJanitor(sessions, oauth, players, func() time.Time { return now }, nil)
	report, err := janitor.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := JanitorReport{Sessions: 1, OAuthStates: 1, StreamingTokens: 1, Players: 3}
	if report != want {
		t.Fatalf("expected %+v, got %+v", want, report)
	}
	if _, ok := oauth.states["new"]; !ok {
		t.Fatalf("expected live state to survive")
	}
}

func TestJanitor_RunOnceContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	sessions := newSessionRepositoryStub()
	sessions.deleteErr = errors.New("disk full")
	players := &playerPrunerStub{removed: 2}

	report, err := NewJanitor(sessions, nil, players, fixedNow, nil).RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "prune sessions") {
		t.Fatalf("expected joined session error, got %v", err)
	}
	if report.Players != 2 {
		t.Fatalf("expected players to be pruned despite failure, got %+v", report)
	}
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	players := &playerPrunerStub{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewJanitor(nil, nil, players, nil, nil).Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected janitor to stop after cancellation")
	}
}
