package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/calendar"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type shiftService interface {
	CreateShift(ctx context.Context, principal application.Principal, input application.ShiftInput) (application.ShiftResult, error)
	UpdateShift(ctx context.Context, principal application.Principal, shiftID string, input application.ShiftInput) (application.ShiftResult, error)
	MoveShift(ctx context.Context, principal application.Principal, shiftID, date string) (application.ShiftResult, error)
	CopyShift(ctx context.Context, principal application.Principal, shiftID, date string) (application.ShiftResult, error)
	DeleteShift(ctx context.Context, principal application.Principal, shiftID string) error
	GetShift(ctx context.Context, principal application.Principal, shiftID string) (application.Shift, error)
	ListShifts(ctx context.Context, params application.ListShiftsParams) (application.ListShiftsResult, error)
	Conflicts(ctx context.Context, principal application.Principal, from, to calendar.Date) ([]application.ConflictWarning, error)
	MyShifts(ctx context.Context, principal application.Principal) ([]application.Shift, error)
	CopyRange(ctx context.Context, params application.CopyRangeParams) (application.CopyRangeResult, error)
	DeleteRange(ctx context.Context, params application.DeleteRangeParams) (application.DeleteRangeResult, error)
	CreateRecurring(ctx context.Context, principal application.Principal, input application.RecurringShiftInput) (application.RecurringShiftResult, error)
	ExportMonth(ctx context.Context, principal application.Principal, month string) ([]byte, calendar.Range, error)
}

// ShiftHandler serves the shift calendar.
type ShiftHandler struct {
	service   shiftService
	responder responder
	logger    *slog.Logger
}

func NewShiftHandler(service shiftService, logger *slog.Logger) *ShiftHandler {
	base := defaultLogger(logger)
	return &ShiftHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ShiftHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ShiftHandler", operation, attrs...)
}

func (h *ShiftHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// Create handles POST /shifts.
func (h *ShiftHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req shiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.service.CreateShift(r.Context(), principal, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderShift(r.Context(), w, result, http.StatusCreated)
}

// Get handles GET /shifts/{id}.
func (h *ShiftHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	shift, err := h.service.GetShift(r.Context(), principal, strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, shiftResponse{Shift: toShiftDTO(shift)})
}

// Update handles PUT /shifts/{id}.
func (h *ShiftHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	shiftID := strings.TrimSpace(r.PathValue("id"))
	if shiftID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req shiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.service.UpdateShift(r.Context(), principal, shiftID, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderShift(r.Context(), w, result, http.StatusOK)
}

// Delete handles DELETE /shifts/{id}.
func (h *ShiftHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	shiftID := strings.TrimSpace(r.PathValue("id"))
	if shiftID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteShift(r.Context(), principal, shiftID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Move handles POST /shifts/{id}/move.
func (h *ShiftHandler) Move(w http.ResponseWriter, r *http.Request) {
	h.relocate(w, r, "Move", false)
}

// Copy handles POST /shifts/{id}/copy.
func (h *ShiftHandler) Copy(w http.ResponseWriter, r *http.Request) {
	h.relocate(w, r, "Copy", true)
}

func (h *ShiftHandler) relocate(w http.ResponseWriter, r *http.Request, operation string, duplicate bool) {
	if !h.ready(w) {
		return
	}

	shiftID := strings.TrimSpace(r.PathValue("id"))
	if shiftID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	var req dateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), operation, "principal_id", principal.EmployeeID, "shift_id", shiftID, "date", req.Date)
	apply, status := h.service.MoveShift, http.StatusOK
	if duplicate {
		apply, status = h.service.CopyShift, http.StatusCreated
	}
	result, err := apply(r.Context(), principal, shiftID, strings.TrimSpace(req.Date))
	if err != nil {
		logger.ErrorContext(r.Context(), "shift relocation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderShift(r.Context(), w, result, status)
}

// List handles GET /shifts with day, week, month or from/to, employee and
// location query parameters.
func (h *ShiftHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	params, err := buildListParams(r.URL.Query(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	result, err := h.service.ListShifts(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listShiftsResponse{
		From:     result.Range.Start.String(),
		To:       result.Range.End.AddDays(-1).String(),
		Shifts:   toShiftDTOs(result.Shifts),
		Warnings: toWarningDTOs(result.Warnings),
	})
}

// Mine handles GET /me/shifts.
func (h *ShiftHandler) Mine(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	shifts, err := h.service.MyShifts(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listShiftsResponse{Shifts: toShiftDTOs(shifts)})
}

// Conflicts handles GET /shifts/conflicts?from=&to=.
func (h *ShiftHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	vErr := &application.ValidationError{}
	values := r.URL.Query()
	from := parseDateParam(values, "from", vErr)
	to := parseDateParam(values, "to", vErr)
	if vErr.HasErrors() {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	warnings, err := h.service.Conflicts(r.Context(), principal, from, to)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, conflictsResponse{Warnings: toWarningDTOs(warnings)})
}

// CopyRange handles POST /shifts/copy-range.
func (h *ShiftHandler) CopyRange(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req copyRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	vErr := &application.ValidationError{}
	source := parseDateOrMonth("source", req.Source, vErr)
	target := parseDateOrMonth("target", req.Target, vErr)
	if vErr.HasErrors() {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "CopyRange", "principal_id", principal.EmployeeID, "period", req.Period)
	result, err := h.service.CopyRange(r.Context(), application.CopyRangeParams{
		Principal: principal,
		Period:    application.ListPeriod(strings.ToLower(strings.TrimSpace(req.Period))),
		Source:    source,
		Target:    target,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "range copy failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("created", len(result.Created), "skipped", result.Skipped, "failed", result.Failed).InfoContext(r.Context(), "range copied")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, copyRangeResponse{
		Created:  toShiftDTOs(result.Created),
		Skipped:  result.Skipped,
		Failed:   result.Failed,
		Warnings: toWarningDTOs(result.Warnings),
	})
}

// DeleteRange handles POST /shifts/delete-range.
func (h *ShiftHandler) DeleteRange(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req deleteRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	vErr := &application.ValidationError{}
	params := application.DeleteRangeParams{
		Period:     application.ListPeriod(strings.ToLower(strings.TrimSpace(req.Period))),
		Reference:  parseOptionalDate("date", req.Date, vErr),
		From:       parseOptionalDate("from", req.From, vErr),
		To:         parseOptionalDate("to", req.To, vErr),
		EmployeeID: strings.TrimSpace(req.EmployeeID),
		Location:   strings.TrimSpace(req.Location),
	}
	if vErr.HasErrors() {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}
	params.Principal, _ = PrincipalFromContext(r.Context())

	logger := h.log(r.Context(), "DeleteRange", "principal_id", params.Principal.EmployeeID, "period", req.Period)
	result, err := h.service.DeleteRange(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "range delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("deleted", result.Deleted, "failed", result.Failed).InfoContext(r.Context(), "range deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, deleteRangeResponse{Deleted: result.Deleted, Failed: result.Failed})
}

// Recurring handles POST /shifts/recurring.
func (h *ShiftHandler) Recurring(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req recurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.service.CreateRecurring(r.Context(), principal, application.RecurringShiftInput{
		Template:  req.Template.toInput(),
		Frequency: strings.TrimSpace(req.Frequency),
		Weekdays:  req.Weekdays,
		StartsOn:  strings.TrimSpace(req.StartsOn),
		EndsOn:    strings.TrimSpace(req.EndsOn),
		Except:    req.Except,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, recurringResponse{
		Created:  toShiftDTOs(result.Created),
		Warnings: toWarningDTOs(result.Warnings),
	})
}

// Export handles GET /shifts/export?month=YYYY-MM and streams a workbook.
func (h *ShiftHandler) Export(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	data, rng, err := h.service.ExportMonth(r.Context(), principal, month)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	filename := fmt.Sprintf("shifts-%04d-%02d.xlsx", rng.Start.Year, int(rng.Start.Month))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.log(r.Context(), "Export").ErrorContext(r.Context(), "failed to write workbook", "error", err)
	}
}

func (h *ShiftHandler) renderShift(ctx context.Context, w http.ResponseWriter, result application.ShiftResult, status int) {
	h.responder.writeJSON(ctx, w, status, shiftResponse{
		Shift:    toShiftDTO(result.Shift),
		Warnings: toWarningDTOs(result.Warnings),
	})
}

type shiftRequest struct {
	Date       string `json:"date"`
	EmployeeID string `json:"employee_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	EventType  string `json:"event_type"`
	Theme      string `json:"theme"`
	Location   string `json:"location"`
	Notes      string `json:"notes"`
}

func (r shiftRequest) toInput() application.ShiftInput {
	return application.ShiftInput{
		Date:       strings.TrimSpace(r.Date),
		EmployeeID: strings.TrimSpace(r.EmployeeID),
		StartTime:  strings.TrimSpace(r.StartTime),
		EndTime:    strings.TrimSpace(r.EndTime),
		EventType:  strings.TrimSpace(r.EventType),
		Theme:      strings.TrimSpace(r.Theme),
		Location:   strings.TrimSpace(r.Location),
		Notes:      r.Notes,
	}
}

type dateRequest struct {
	Date string `json:"date"`
}

type copyRangeRequest struct {
	Period string `json:"period"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type deleteRangeRequest struct {
	Period     string `json:"period"`
	Date       string `json:"date"`
	From       string `json:"from"`
	To         string `json:"to"`
	EmployeeID string `json:"employee_id"`
	Location   string `json:"location"`
}

type recurringRequest struct {
	Template  shiftRequest `json:"template"`
	Frequency string       `json:"frequency"`
	Weekdays  []string     `json:"weekdays"`
	StartsOn  string       `json:"starts_on"`
	EndsOn    string       `json:"ends_on"`
	Except    []string     `json:"except"`
}

type shiftResponse struct {
	Shift    shiftDTO             `json:"shift"`
	Warnings []conflictWarningDTO `json:"warnings,omitempty"`
}

type listShiftsResponse struct {
	From     string               `json:"from,omitempty"`
	To       string               `json:"to,omitempty"`
	Shifts   []shiftDTO           `json:"shifts"`
	Warnings []conflictWarningDTO `json:"warnings,omitempty"`
}

type conflictsResponse struct {
	Warnings []conflictWarningDTO `json:"warnings"`
}

type copyRangeResponse struct {
	Created  []shiftDTO           `json:"created"`
	Skipped  int                  `json:"skipped"`
	Failed   int                  `json:"failed"`
	Warnings []conflictWarningDTO `json:"warnings,omitempty"`
}

type deleteRangeResponse struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

type recurringResponse struct {
	Created  []shiftDTO           `json:"created"`
	Warnings []conflictWarningDTO `json:"warnings,omitempty"`
}

type shiftDTO struct {
	ID         string `json:"id"`
	Date       string `json:"date"`
	EmployeeID string `json:"employee_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	EventType  string `json:"event_type"`
	Theme      string `json:"theme,omitempty"`
	Location   string `json:"location"`
	Notes      string `json:"notes,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func toShiftDTO(shift application.Shift) shiftDTO {
	return shiftDTO{
		ID:         shift.ID,
		Date:       shift.Date.String(),
		EmployeeID: shift.EmployeeID,
		StartTime:  shift.StartTime.String(),
		EndTime:    shift.EndTime.String(),
		EventType:  string(shift.EventType),
		Theme:      shift.Theme,
		Location:   shift.Location,
		Notes:      shift.Notes,
		CreatedAt:  shift.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  shift.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toShiftDTOs(shifts []application.Shift) []shiftDTO {
	out := make([]shiftDTO, 0, len(shifts))
	for _, shift := range shifts {
		out = append(out, toShiftDTO(shift))
	}
	return out
}

type conflictWarningDTO struct {
	EmployeeID string   `json:"employee_id"`
	Date       string   `json:"date"`
	ShiftIDs   []string `json:"shift_ids"`
}

func toWarningDTOs(warnings []application.ConflictWarning) []conflictWarningDTO {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]conflictWarningDTO, 0, len(warnings))
	for _, warning := range warnings {
		out = append(out, conflictWarningDTO{
			EmployeeID: warning.EmployeeID,
			Date:       warning.Date.String(),
			ShiftIDs:   append([]string(nil), warning.ShiftIDs...),
		})
	}
	return out
}

// buildListParams maps day, week, month, from/to, employee and location
// query parameters onto a listing request. Only the first of day, week and
// month is honoured.
func buildListParams(values url.Values, principal application.Principal) (application.ListShiftsParams, error) {
	params := application.ListShiftsParams{
		Principal:  principal,
		EmployeeID: strings.TrimSpace(values.Get("employee")),
		Location:   strings.TrimSpace(values.Get("location")),
	}

	vErr := &application.ValidationError{}
	switch {
	case strings.TrimSpace(values.Get("day")) != "":
		params.Period = application.ListPeriodDay
		params.Reference = parseDateParam(values, "day", vErr)
	case strings.TrimSpace(values.Get("week")) != "":
		params.Period = application.ListPeriodWeek
		params.Reference = parseDateParam(values, "week", vErr)
	case strings.TrimSpace(values.Get("month")) != "":
		params.Period = application.ListPeriodMonth
		params.Reference = parseDateOrMonth("month", values.Get("month"), vErr)
	default:
		params.From = parseOptionalDate("from", values.Get("from"), vErr)
		params.To = parseOptionalDate("to", values.Get("to"), vErr)
	}
	if vErr.HasErrors() {
		return application.ListShiftsParams{}, vErr
	}
	return params, nil
}

func parseDateParam(values url.Values, key string, vErr *application.ValidationError) calendar.Date {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		addFieldError(vErr, key, key+" is required")
		return calendar.Date{}
	}
	return parseOptionalDate(key, raw, vErr)
}

func parseOptionalDate(field, raw string, vErr *application.ValidationError) calendar.Date {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return calendar.Date{}
	}
	date, err := calendar.ParseDate(raw)
	if err != nil {
		addFieldError(vErr, field, field+" must be a YYYY-MM-DD date")
		return calendar.Date{}
	}
	return date
}

// parseDateOrMonth accepts YYYY-MM-DD or YYYY-MM; a bare month means its
// first day.
func parseDateOrMonth(field, raw string, vErr *application.ValidationError) calendar.Date {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		addFieldError(vErr, field, field+" is required")
		return calendar.Date{}
	}
	if date, err := calendar.ParseDate(raw); err == nil {
		return date
	}
	rng, err := calendar.ParseMonth(raw)
	if err != nil {
		addFieldError(vErr, field, field+" must be a YYYY-MM-DD date or YYYY-MM month")
		return calendar.Date{}
	}
	return rng.Start
}

func addFieldError(vErr *application.ValidationError, field, message string) {
	if vErr.FieldErrors == nil {
		vErr.FieldErrors = make(map[string]string)
	}
	vErr.FieldErrors[field] = message
}
