package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

type inviteRepoStub struct {
	invites   map[string]Invite
	createErr error
}

func (r *inviteRepoStub) CreateInvite(ctx context.Context, invite Invite) (Invite, error) {
	if r.createErr != nil {
		return Invite{}, r.createErr
	}
	r.invites[invite.ID] = invite
	return invite, nil
}

func (r *inviteRepoStub) GetInvite(ctx context.Context, id string) (Invite, error) {
	invite, ok := r.invites[id]
	if !ok {
		return Invite{}, persistence.ErrNotFound
	}
	return invite, nil
}

func (r *inviteRepoStub) UpdateInvite(ctx context.Context, invite Invite) (Invite, error) {
	r.invites[invite.ID] = invite
	return invite, nil
}

type credentialWriterStub struct {
	hashes map[string]string
}

func (c *credentialWriterStub) SetPassword(ctx context.Context, employeeID, hash string) error {
	c.hashes[employeeID] = hash
	return nil
}

// tokenCodecStub encodes claims as "invite|employee" and checks expiry against now.
type tokenCodecStub struct {
	now    func() time.Time
	issued map[string]InviteClaims
}

func (c *tokenCodecStub) Issue(claims InviteClaims) (string, error) {
	token := claims.InviteID + "|" + claims.EmployeeID
	c.issued[token] = claims
	return token, nil
}

func (c *tokenCodecStub) Parse(token string) (InviteClaims, error) {
	claims, ok := c.issued[token]
	if !ok {
		return InviteClaims{}, ErrInvalidCredentials
	}
	if !claims.ExpiresAt.After(c.now()) {
		return InviteClaims{}, ErrInviteExpired
	}
	return claims, nil
}

type mailerStub struct {
	sent []OutboundEmail
	err  error
}

func (m *mailerStub) Enqueue(ctx context.Context, email OutboundEmail) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

type inviteHarness struct {
	svc       *InviteService
	employees *employeeRepoStub
	invites   *inviteRepoStub
	creds     *credentialWriterStub
	mailer    *mailerStub
	now       *time.Time
}

func newInviteHarness(existing ...Employee) *inviteHarness {
	now := fixedNow()
	h := &inviteHarness{
		employees: newEmployeeRepoStub(existing...),
		invites:   &inviteRepoStub{invites: map[string]Invite{}},
		creds:     &credentialWriterStub{hashes: map[string]string{}},
		mailer:    &mailerStub{},
		now:       &now,
	}
	clock := func() time.Time { return *h.now }
	codec := &tokenCodecStub{now: clock, issued: map[string]InviteClaims{}}
	h.svc = NewInviteService(h.employees, h.invites, h.creds, codec, h.mailer,
		InviteServiceConfig{SetupURL: "https://example.com/onboarding"},
		sequentialIDs("id"), clock)
	h.svc.hash = func(p string) (string, error) { return "hashed:" + p, nil }
	return h
}

func TestInviteService_InviteEmployee(t *testing.T) {
	t.Parallel()

	t.Run("creates inactive employee and queues email", func(t *testing.T) {
		h := newInviteHarness()
		result, err := h.svc.InviteEmployee(context.Background(), admin, InviteInput{
			Email:     "New.Host@Example.com",
			FirstName: "Nia",
			LastName:  "Shore",
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Employee.Active {
			t.Fatalf("expected invited employee to be inactive")
		}
		if len(result.Employee.Roles) != 1 || result.Employee.Roles[0] != RoleHost {
			t.Fatalf("expected default host role, got %v", result.Employee.Roles)
		}
		if !result.Invite.ExpiresAt.Equal(fixedNow().Add(DefaultInviteTTL)) {
			t.Fatalf("expected default ttl, got %v", result.Invite.ExpiresAt)
		}
		if !strings.HasPrefix(result.SetupURL, "https://example.com/onboarding?token=") {
			t.Fatalf("unexpected setup url %q", result.SetupURL)
		}
		if len(h.mailer.sent) != 1 || h.mailer.sent[0].To != "new.host@example.com" {
			t.Fatalf("expected one email to the invitee, got %+v", h.mailer.sent)
		}
		if h.mailer.sent[0].Data["setup_url"] != result.SetupURL {
			t.Fatalf("expected email to carry setup url")
		}
	})

	t.Run("failed invite leaves the address free", func(t *testing.T) {
		h := newInviteHarness()
		h.invites.createErr = errors.New("disk full")
		input := InviteInput{Email: "retry@example.com", FirstName: "Ray", LastName: "Tide"}

		if _, err := h.svc.InviteEmployee(context.Background(), admin, input); err == nil {
			t.Fatalf("expected error from failed invite")
		}
		if _, err := h.employees.GetEmployeeByEmail(context.Background(), "retry@example.com"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected invited employee to be removed, got %v", err)
		}

		h.invites.createErr = nil
		result, err := h.svc.InviteEmployee(context.Background(), admin, input)
		if err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if result.Employee.Email != "retry@example.com" {
			t.Fatalf("unexpected employee %+v", result.Employee)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		h := newInviteHarness(Employee{ID: "emp-1", Email: "taken@example.com"})
		_, err := h.svc.InviteEmployee(context.Background(), admin, InviteInput{Email: "taken@example.com", FirstName: "A", LastName: "B"})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("mail failure does not fail invite", func(t *testing.T) {
		h := newInviteHarness()
		h.mailer.err = errors.New("broker down")
		if _, err := h.svc.InviteEmployee(context.Background(), admin, InviteInput{Email: "x@example.com", FirstName: "A", LastName: "B"}); err != nil {
			t.Fatalf("expected invite to succeed, got %v", err)
		}
	})

	t.Run("requires admin", func(t *testing.T) {
		h := newInviteHarness()
		_, err := h.svc.InviteEmployee(context.Background(), Principal{EmployeeID: "emp-1"}, InviteInput{Email: "x@example.com", FirstName: "A", LastName: "B"})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestInviteService_AcceptInvite(t *testing.T) {
	t.Parallel()

	invite := func(t *testing.T, h *inviteHarness) string {
		t.Helper()
		result, err := h.svc.InviteEmployee(context.Background(), admin, InviteInput{Email: "new@example.com", FirstName: "Nia", LastName: "Shore"})
		if err != nil {
			t.Fatalf("invite failed: %v", err)
		}
		return result.Invite.ID + "|" + result.Employee.ID
	}

	t.Run("activates employee and stores password", func(t *testing.T) {
		h := newInviteHarness()
		token := invite(t, h)

		employee, err := h.svc.AcceptInvite(context.Background(), token, "sandcastle")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !employee.Active {
			t.Fatalf("expected employee to be active")
		}
		if h.creds.hashes[employee.ID] != "hashed:sandcastle" {
			t.Fatalf("expected password hash to be stored, got %v", h.creds.hashes)
		}

		if _, err := h.svc.AcceptInvite(context.Background(), token, "sandcastle"); !errors.Is(err, ErrInviteExpired) {
			t.Fatalf("expected second accept to fail with ErrInviteExpired, got %v", err)
		}
	})

	t.Run("short password", func(t *testing.T) {
		h := newInviteHarness()
		token := invite(t, h)

		_, err := h.svc.AcceptInvite(context.Background(), token, "short")
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		h := newInviteHarness()
		token := invite(t, h)
		*h.now = h.now.Add(DefaultInviteTTL + time.Minute)

		if _, err := h.svc.AcceptInvite(context.Background(), token, "sandcastle"); !errors.Is(err, ErrInviteExpired) {
			t.Fatalf("expected ErrInviteExpired, got %v", err)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		h := newInviteHarness()
		if _, err := h.svc.AcceptInvite(context.Background(), "forged", "sandcastle"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}
