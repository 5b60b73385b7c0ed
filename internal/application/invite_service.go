package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// DefaultInviteTTL is how long a password-setup link stays valid.
const DefaultInviteTTL = 72 * time.Hour

// InviteRepository captures the persistence operations for invites.
type InviteRepository interface {
	CreateInvite(ctx context.Context, invite Invite) (Invite, error)
	GetInvite(ctx context.Context, id string) (Invite, error)
	UpdateInvite(ctx context.Context, invite Invite) (Invite, error)
}

// CredentialWriter stores password hashes.
type CredentialWriter interface {
	SetPassword(ctx context.Context, employeeID, passwordHash string) error
}

// InviteTokenCodec signs and verifies password-setup tokens. Parse returns
// ErrInviteExpired for expired tokens and ErrInvalidCredentials for tokens
// that fail verification.
type InviteTokenCodec interface {
	Issue(claims InviteClaims) (string, error)
	Parse(token string) (InviteClaims, error)
}

// Mailer queues outbound email.
type Mailer interface {
	Enqueue(ctx context.Context, email OutboundEmail) error
}

// InviteInput captures the fields an admin provides when inviting staff.
type InviteInput struct {
	Email     string
	FirstName string
	LastName  string
	Roles     []Role
}

// InviteServiceConfig tunes invite behaviour.
type InviteServiceConfig struct {
	// SetupURL is the onboarding page; the token is appended as ?token=.
	SetupURL string
	TTL      time.Duration
}

// InviteService creates staff invites and completes onboarding.
type InviteService struct {
	employees   EmployeeRepository
	invites     InviteRepository
	credentials CredentialWriter
	tokens      InviteTokenCodec
	mailer      Mailer
	hash        func(string) (string, error)
	config      InviteServiceConfig
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewInviteService wires dependencies for the invite service.
func NewInviteService(employees EmployeeRepository, invites InviteRepository, credentials CredentialWriter, tokens InviteTokenCodec, mailer Mailer, config InviteServiceConfig, idGenerator func() string, now func() time.Time) *InviteService {
	return NewInviteServiceWithLogger(employees, invites, credentials, tokens, mailer, config, idGenerator, now, nil)
}

// NewInviteServiceWithLogger wires dependencies for the invite service with a specified logger.
func NewInviteServiceWithLogger(employees EmployeeRepository, invites InviteRepository, credentials CredentialWriter, tokens InviteTokenCodec, mailer Mailer, config InviteServiceConfig, idGenerator func() string, now func() time.Time, logger *slog.Logger) *InviteService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if config.TTL <= 0 {
		config.TTL = DefaultInviteTTL
	}
	return &InviteService{
		employees:   employees,
		invites:     invites,
		credentials: credentials,
		tokens:      tokens,
		mailer:      mailer,
		hash:        HashPassword,
		config:      config,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *InviteService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "InviteService", operation, attrs...)
}

// InviteEmployee creates an inactive employee with an invite and queues the
// password-setup email. A failed enqueue is logged and the setup link is still
// returned so the admin can share it by hand.
func (s *InviteService) InviteEmployee(ctx context.Context, principal Principal, input InviteInput) (result InviteResult, err error) {
	if s == nil {
		err = fmt.Errorf("InviteService is nil")
		return
	}

	logger := s.loggerWith(ctx, "InviteEmployee", "principal_id", principal.EmployeeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to invite employee", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"employee_id", result.Employee.ID,
			"invite_id", result.Invite.ID,
		).InfoContext(ctx, "employee invited")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if s.employees == nil || s.invites == nil || s.tokens == nil {
		err = fmt.Errorf("invite dependencies not configured")
		return
	}

	normalized := normalizeEmployeeInput(EmployeeInput{
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Roles:     input.Roles,
	})
	if len(normalized.Roles) == 0 {
		normalized.Roles = []Role{RoleHost}
	}
	if vErr := validateEmployeeInput(normalized); vErr.HasErrors() {
		err = vErr
		return
	}

	if _, lookupErr := s.employees.GetEmployeeByEmail(ctx, normalized.Email); lookupErr == nil {
		err = ErrAlreadyExists
		return
	} else if !isNotFound(lookupErr) {
		err = lookupErr
		return
	}

	now := s.now()
	employee := Employee{
		ID:        s.idGenerator(),
		Email:     normalized.Email,
		FirstName: normalized.FirstName,
		LastName:  normalized.LastName,
		Active:    false,
		Roles:     normalized.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	employee, err = s.employees.CreateEmployee(ctx, employee)
	if err != nil {
		err = mapEmployeeRepoError(err)
		return
	}

	invite := Invite{
		ID:         s.idGenerator(),
		EmployeeID: employee.ID,
		Email:      employee.Email,
		Roles:      employee.Roles,
		InvitedBy:  principal.EmployeeID,
		ExpiresAt:  now.Add(s.config.TTL),
		CreatedAt:  now,
	}
	invite, err = s.invites.CreateInvite(ctx, invite)
	if err != nil {
		err = mapEmployeeRepoError(err)
		s.discardEmployee(ctx, logger, employee.ID)
		return
	}

	var token string
	token, err = s.tokens.Issue(InviteClaims{InviteID: invite.ID, EmployeeID: employee.ID, ExpiresAt: invite.ExpiresAt})
	if err != nil {
		s.discardEmployee(ctx, logger, employee.ID)
		return
	}
	setupURL := s.setupURL(token)

	if s.mailer != nil {
		mailErr := s.mailer.Enqueue(ctx, OutboundEmail{
			To:       employee.Email,
			Subject:  "Set up your Beach Trivia account",
			Template: "invite",
			Data: map[string]string{
				"first_name": employee.FirstName,
				"setup_url":  setupURL,
				"expires_at": invite.ExpiresAt.UTC().Format(time.RFC1123),
			},
		})
		if mailErr != nil {
			logger.WarnContext(ctx, "failed to enqueue invite email", "error", mailErr)
		}
	}

	result = InviteResult{Employee: employee, Invite: invite, SetupURL: setupURL}
	return
}

// discardEmployee removes an employee created for an invite that could not be
// completed, so the address can be invited again.
func (s *InviteService) discardEmployee(ctx context.Context, logger *slog.Logger, employeeID string) {
	if err := s.employees.DeleteEmployee(ctx, employeeID); err != nil && !isNotFound(err) {
		logger.WarnContext(ctx, "failed to discard invited employee",
			"employee_id", employeeID,
			"error", err,
		)
	}
}

// AcceptInvite verifies a password-setup token, stores the password and
// activates the employee. Expired or already used invites are rejected.
func (s *InviteService) AcceptInvite(ctx context.Context, token, password string) (employee Employee, err error) {
	if s == nil {
		err = fmt.Errorf("InviteService is nil")
		return
	}

	logger := s.loggerWith(ctx, "AcceptInvite")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to accept invite", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("employee_id", employee.ID).InfoContext(ctx, "invite accepted")
	}()

	if s.employees == nil || s.invites == nil || s.tokens == nil || s.credentials == nil {
		err = fmt.Errorf("invite dependencies not configured")
		return
	}

	token = strings.TrimSpace(token)
	if token == "" {
		err = ErrInvalidCredentials
		return
	}
	if vErr := ValidatePassword("password", password); vErr.HasErrors() {
		err = vErr
		return
	}

	var claims InviteClaims
	claims, err = s.tokens.Parse(token)
	if err != nil {
		return
	}

	var invite Invite
	invite, err = s.invites.GetInvite(ctx, claims.InviteID)
	if err != nil {
		if isNotFound(err) {
			err = ErrInvalidCredentials
		}
		return
	}
	if invite.EmployeeID != claims.EmployeeID {
		err = ErrInvalidCredentials
		return
	}

	now := s.now()
	if invite.AcceptedAt != nil || !invite.ExpiresAt.After(now) {
		err = ErrInviteExpired
		return
	}

	var hash string
	hash, err = s.hash(password)
	if err != nil {
		return
	}
	if err = s.credentials.SetPassword(ctx, invite.EmployeeID, hash); err != nil {
		err = mapEmployeeRepoError(err)
		return
	}

	employee, err = s.employees.GetEmployee(ctx, invite.EmployeeID)
	if err != nil {
		err = mapEmployeeRepoError(err)
		return
	}
	employee.Active = true
	employee.UpdatedAt = now
	employee, err = s.employees.UpdateEmployee(ctx, employee)
	if err != nil {
		err = mapEmployeeRepoError(err)
		return
	}

	invite.AcceptedAt = &now
	if _, err = s.invites.UpdateInvite(ctx, invite); err != nil {
		err = mapEmployeeRepoError(err)
		return
	}
	return
}

func (s *InviteService) setupURL(token string) string {
	base := s.config.SetupURL
	if base == "" {
		base = "/onboarding"
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}
