package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
)

type locationService interface {
	CreateLocation(ctx context.Context, principal application.Principal, input application.LocationInput) (application.Location, error)
	UpdateLocation(ctx context.Context, principal application.Principal, locationID string, input application.LocationInput) (application.Location, error)
	DeleteLocation(ctx context.Context, principal application.Principal, locationID string) error
	GetLocation(ctx context.Context, principal application.Principal, locationID string) (application.Location, error)
	ListLocations(ctx context.Context, principal application.Principal, filter application.LocationFilter) ([]application.Location, error)
}

// LocationHandler serves the venue catalog.
type LocationHandler struct {
	service   locationService
	responder responder
	logger    *slog.Logger
}

func NewLocationHandler(service locationService, logger *slog.Logger) *LocationHandler {
	base := defaultLogger(logger)
	return &LocationHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *LocationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "LocationHandler", operation, attrs...)
}

func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.EmployeeID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode location request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.EmployeeID)
	location, err := h.service.CreateLocation(r.Context(), principal, req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "location creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("location_id", location.ID).InfoContext(r.Context(), "location created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, locationResponse{Location: toLocationDTO(location)})
}

func (h *LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	locationID := strings.TrimSpace(r.PathValue("id"))
	if locationID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Update", "principal_id", principal.EmployeeID, "location_id", locationID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode location update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.EmployeeID, "location_id", locationID)
	location, err := h.service.UpdateLocation(r.Context(), principal, locationID, req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "location update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "location updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, locationResponse{Location: toLocationDTO(location)})
}

func (h *LocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	locationID := strings.TrimSpace(r.PathValue("id"))
	if locationID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Delete", "principal_id", principal.EmployeeID, "location_id", locationID)
	if err := h.service.DeleteLocation(r.Context(), principal, locationID); err != nil {
		logger.ErrorContext(r.Context(), "location delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "location deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	locationID := strings.TrimSpace(r.PathValue("id"))
	principal, _ := PrincipalFromContext(r.Context())
	location, err := h.service.GetLocation(r.Context(), principal, locationID)
	if err != nil {
		h.log(r.Context(), "Get", "location_id", locationID).ErrorContext(r.Context(), "location lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, locationResponse{Location: toLocationDTO(location)})
}

// List is open to every signed-in employee.
func (h *LocationHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, ok := PrincipalFromContext(r.Context())
	if !ok || strings.TrimSpace(principal.EmployeeID) == "" {
		h.log(r.Context(), "List", "error_kind", "unauthorized").ErrorContext(r.Context(), "missing authenticated principal")
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}
	logger := h.log(r.Context(), "List", "principal_id", principal.EmployeeID)

	active, err := parseOptionalBool(r.URL.Query(), "active")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	locations, err := h.service.ListLocations(r.Context(), principal, application.LocationFilter{Active: active})
	if err != nil {
		logger.ErrorContext(r.Context(), "location list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(locations)).InfoContext(r.Context(), "locations listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listLocationsResponse{Locations: toLocationDTOs(locations)})
}

type locationRequest struct {
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	ContactName      string   `json:"contact_name"`
	ContactEmail     string   `json:"contact_email"`
	ContactPhone     string   `json:"contact_phone"`
	WeeklyNights     []string `json:"weekly_nights"`
	DefaultStartTime string   `json:"default_start_time"`
	DefaultEndTime   string   `json:"default_end_time"`
	Notes            string   `json:"notes"`
	Active           bool     `json:"active"`
}

func (r locationRequest) toInput() application.LocationInput {
	return application.LocationInput{
		Name:             strings.TrimSpace(r.Name),
		Address:          strings.TrimSpace(r.Address),
		ContactName:      strings.TrimSpace(r.ContactName),
		ContactEmail:     strings.TrimSpace(r.ContactEmail),
		ContactPhone:     strings.TrimSpace(r.ContactPhone),
		WeeklyNights:     r.WeeklyNights,
		DefaultStartTime: strings.TrimSpace(r.DefaultStartTime),
		DefaultEndTime:   strings.TrimSpace(r.DefaultEndTime),
		Notes:            r.Notes,
		Active:           r.Active,
	}
}

type locationResponse struct {
	Location locationDTO `json:"location"`
}

type listLocationsResponse struct {
	Locations []locationDTO `json:"locations"`
}

type locationDTO struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Address          string   `json:"address,omitempty"`
	ContactName      string   `json:"contact_name,omitempty"`
	ContactEmail     string   `json:"contact_email,omitempty"`
	ContactPhone     string   `json:"contact_phone,omitempty"`
	WeeklyNights     []string `json:"weekly_nights"`
	DefaultStartTime string   `json:"default_start_time,omitempty"`
	DefaultEndTime   string   `json:"default_end_time,omitempty"`
	Notes            string   `json:"notes,omitempty"`
	Active           bool     `json:"active"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
}

func toLocationDTO(location application.Location) locationDTO {
	nights := make([]string, 0, len(location.WeeklyNights))
	for _, night := range location.WeeklyNights {
		nights = append(nights, strings.ToLower(night.String()))
	}
	return locationDTO{
		ID:               location.ID,
		Name:             location.Name,
		Address:          location.Address,
		ContactName:      location.ContactName,
		ContactEmail:     location.ContactEmail,
		ContactPhone:     location.ContactPhone,
		WeeklyNights:     nights,
		DefaultStartTime: location.DefaultStartTime,
		DefaultEndTime:   location.DefaultEndTime,
		Notes:            location.Notes,
		Active:           location.Active,
		CreatedAt:        location.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:        location.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toLocationDTOs(locations []application.Location) []locationDTO {
	out := make([]locationDTO, 0, len(locations))
	for _, location := range locations {
		out = append(out, toLocationDTO(location))
	}
	return out
}
