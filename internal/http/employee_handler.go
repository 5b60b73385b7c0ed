package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
)

type employeeService interface {
	CreateEmployee(ctx context.Context, principal application.Principal, input application.EmployeeInput) (application.Employee, error)
	UpdateEmployee(ctx context.Context, principal application.Principal, employeeID string, input application.EmployeeInput) (application.Employee, error)
	UpdateProfile(ctx context.Context, principal application.Principal, input application.ProfileInput) (application.Employee, error)
	GetEmployee(ctx context.Context, principal application.Principal, employeeID string) (application.Employee, error)
	ListEmployees(ctx context.Context, principal application.Principal, filter application.EmployeeFilter) ([]application.Employee, error)
	DeleteEmployee(ctx context.Context, principal application.Principal, employeeID string) error
}

type inviteService interface {
	InviteEmployee(ctx context.Context, principal application.Principal, input application.InviteInput) (application.InviteResult, error)
	AcceptInvite(ctx context.Context, token, password string) (application.Employee, error)
}

// EmployeeHandler serves staff management, the caller's own profile and
// invite onboarding.
type EmployeeHandler struct {
	service   employeeService
	invites   inviteService
	responder responder
	logger    *slog.Logger
}

// NewEmployeeHandler constructs an EmployeeHandler. invites may be nil when
// onboarding is not offered.
func NewEmployeeHandler(service employeeService, invites inviteService, logger *slog.Logger) *EmployeeHandler {
	base := defaultLogger(logger)
	return &EmployeeHandler{service: service, invites: invites, responder: newResponder(base), logger: base}
}

func (h *EmployeeHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "EmployeeHandler", operation, attrs...)
}

// List handles GET /employees[?active=true|false].
func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "List", "principal_id", principal.EmployeeID)

	active, err := parseOptionalBool(r.URL.Query(), "active")
	if err != nil {
		logger.WarnContext(r.Context(), "invalid active filter", "error", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	employees, err := h.service.ListEmployees(r.Context(), principal, application.EmployeeFilter{Active: active})
	if err != nil {
		logger.ErrorContext(r.Context(), "employee list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(employees)).InfoContext(r.Context(), "employees listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEmployeesResponse{Employees: toEmployeeDTOs(employees)})
}

// Create handles POST /employees.
func (h *EmployeeHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req employeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.EmployeeID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode employee request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.EmployeeID)
	employee, err := h.service.CreateEmployee(r.Context(), principal, req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "employee creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("employee_id", employee.ID).InfoContext(r.Context(), "employee created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, employeeResponse{Employee: toEmployeeDTO(employee)})
}

// Get handles GET /employees/{id}.
func (h *EmployeeHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	employeeID := strings.TrimSpace(r.PathValue("id"))
	if employeeID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	h.renderEmployee(w, r, "Get", principal, employeeID)
}

// Update handles PUT /employees/{id}.
func (h *EmployeeHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	employeeID := strings.TrimSpace(r.PathValue("id"))
	if employeeID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req employeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Update", "principal_id", principal.EmployeeID, "employee_id", employeeID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode employee update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.EmployeeID, "employee_id", employeeID)
	employee, err := h.service.UpdateEmployee(r.Context(), principal, employeeID, req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "employee update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "employee updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, employeeResponse{Employee: toEmployeeDTO(employee)})
}

// Delete handles DELETE /employees/{id}.
func (h *EmployeeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	employeeID := strings.TrimSpace(r.PathValue("id"))
	if employeeID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Delete", "principal_id", principal.EmployeeID, "employee_id", employeeID)
	if err := h.service.DeleteEmployee(r.Context(), principal, employeeID); err != nil {
		logger.ErrorContext(r.Context(), "employee delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "employee deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Me handles GET /me and GET /me/profile.
func (h *EmployeeHandler) Me(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	h.renderEmployee(w, r, "Me", principal, principal.EmployeeID)
}

// UpdateProfile handles PUT /me/profile.
func (h *EmployeeHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "UpdateProfile", "principal_id", principal.EmployeeID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode profile update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "UpdateProfile", "principal_id", principal.EmployeeID)
	employee, err := h.service.UpdateProfile(r.Context(), principal, req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "profile update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "profile updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, employeeResponse{Employee: toEmployeeDTO(employee)})
}

// Invite handles POST /employees/invite.
func (h *EmployeeHandler) Invite(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.invites == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Invite", "principal_id", principal.EmployeeID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode invite request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Invite", "principal_id", principal.EmployeeID)
	result, err := h.invites.InviteEmployee(r.Context(), principal, application.InviteInput{
		Email:     strings.TrimSpace(req.Email),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Roles:     rolesFromStrings(req.Roles),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "invite failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("employee_id", result.Employee.ID, "invite_id", result.Invite.ID).InfoContext(r.Context(), "employee invited")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, inviteResponse{
		Employee:  toEmployeeDTO(result.Employee),
		InviteID:  result.Invite.ID,
		ExpiresAt: result.Invite.ExpiresAt.UTC().Format(time.RFC3339Nano),
		SetupURL:  result.SetupURL,
	})
}

// AcceptInvite handles POST /invites/accept. The route is public; the signed
// token is the credential.
func (h *EmployeeHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.invites == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}

	var req acceptInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "AcceptInvite", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode accept request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "AcceptInvite")
	employee, err := h.invites.AcceptInvite(r.Context(), strings.TrimSpace(req.Token), req.Password)
	if err != nil {
		logger.WarnContext(r.Context(), "invite acceptance failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("employee_id", employee.ID).InfoContext(r.Context(), "invite accepted")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, employeeResponse{Employee: toEmployeeDTO(employee)})
}

func (h *EmployeeHandler) renderEmployee(w http.ResponseWriter, r *http.Request, operation string, principal application.Principal, employeeID string) {
	logger := h.log(r.Context(), operation, "principal_id", principal.EmployeeID, "employee_id", employeeID)
	employee, err := h.service.GetEmployee(r.Context(), principal, employeeID)
	if err != nil {
		logger.ErrorContext(r.Context(), "employee lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, employeeResponse{Employee: toEmployeeDTO(employee)})
}

type employeeRequest struct {
	Email            string   `json:"email"`
	FirstName        string   `json:"first_name"`
	LastName         string   `json:"last_name"`
	Nickname         string   `json:"nickname"`
	Phone            string   `json:"phone"`
	EmergencyContact string   `json:"emergency_contact"`
	Active           bool     `json:"active"`
	Roles            []string `json:"roles"`
}

func (r employeeRequest) toInput() application.EmployeeInput {
	return application.EmployeeInput{
		Email:            strings.TrimSpace(r.Email),
		FirstName:        strings.TrimSpace(r.FirstName),
		LastName:         strings.TrimSpace(r.LastName),
		Nickname:         strings.TrimSpace(r.Nickname),
		Phone:            strings.TrimSpace(r.Phone),
		EmergencyContact: strings.TrimSpace(r.EmergencyContact),
		Active:           r.Active,
		Roles:            rolesFromStrings(r.Roles),
	}
}

type profileRequest struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Nickname         string `json:"nickname"`
	Phone            string `json:"phone"`
	EmergencyContact string `json:"emergency_contact"`
}

func (r profileRequest) toInput() application.ProfileInput {
	return application.ProfileInput{
		FirstName:        strings.TrimSpace(r.FirstName),
		LastName:         strings.TrimSpace(r.LastName),
		Nickname:         strings.TrimSpace(r.Nickname),
		Phone:            strings.TrimSpace(r.Phone),
		EmergencyContact: strings.TrimSpace(r.EmergencyContact),
	}
}

type inviteRequest struct {
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Roles     []string `json:"roles"`
}

type acceptInviteRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type inviteResponse struct {
	Employee  employeeDTO `json:"employee"`
	InviteID  string      `json:"invite_id"`
	ExpiresAt string      `json:"expires_at"`
	SetupURL  string      `json:"setup_url"`
}

type employeeResponse struct {
	Employee employeeDTO `json:"employee"`
}

type listEmployeesResponse struct {
	Employees []employeeDTO `json:"employees"`
}

type employeeDTO struct {
	ID               string   `json:"id"`
	Email            string   `json:"email"`
	FirstName        string   `json:"first_name"`
	LastName         string   `json:"last_name"`
	Nickname         string   `json:"nickname,omitempty"`
	DisplayName      string   `json:"display_name"`
	Phone            string   `json:"phone,omitempty"`
	EmergencyContact string   `json:"emergency_contact,omitempty"`
	Active           bool     `json:"active"`
	Roles            []string `json:"roles"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
}

func toEmployeeDTO(employee application.Employee) employeeDTO {
	return employeeDTO{
		ID:               employee.ID,
		Email:            employee.Email,
		FirstName:        employee.FirstName,
		LastName:         employee.LastName,
		Nickname:         employee.Nickname,
		DisplayName:      employee.DisplayName(),
		Phone:            employee.Phone,
		EmergencyContact: employee.EmergencyContact,
		Active:           employee.Active,
		Roles:            rolesToStrings(employee.Roles),
		CreatedAt:        employee.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:        employee.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toEmployeeDTOs(employees []application.Employee) []employeeDTO {
	out := make([]employeeDTO, 0, len(employees))
	for _, employee := range employees {
		out = append(out, toEmployeeDTO(employee))
	}
	return out
}

func rolesFromStrings(values []string) []application.Role {
	if len(values) == 0 {
		return nil
	}
	roles := make([]application.Role, 0, len(values))
	for _, value := range values {
		roles = append(roles, application.Role(strings.ToLower(strings.TrimSpace(value))))
	}
	return roles
}

func rolesToStrings(roles []application.Role) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	return out
}

// parseOptionalBool reads an optional boolean query parameter.
func parseOptionalBool(values url.Values, key string) (*bool, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, &application.ValidationError{FieldErrors: map[string]string{key: key + " must be true or false"}}
	}
	return &parsed, nil
}
