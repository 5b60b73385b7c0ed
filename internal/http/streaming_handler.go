package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
)

type streamingService interface {
	BeginAuthorization(ctx context.Context, principal application.Principal) (string, error)
	CompleteAuthorization(ctx context.Context, state, code string) (application.StreamingToken, error)
	AccessToken(ctx context.Context, principal application.Principal) (application.StreamingToken, error)
	Disconnect(ctx context.Context, principal application.Principal) error
}

// StreamingHandler links a host's music streaming account.
type StreamingHandler struct {
	service   streamingService
	returnURL string
	responder responder
	logger    *slog.Logger
}

// NewStreamingHandler constructs a StreamingHandler. After the provider
// callback the browser is sent to returnURL with a streaming=connected or
// streaming=failed query parameter.
func NewStreamingHandler(service streamingService, returnURL string, logger *slog.Logger) *StreamingHandler {
	base := defaultLogger(logger)
	if strings.TrimSpace(returnURL) == "" {
		returnURL = "/"
	}
	return &StreamingHandler{service: service, returnURL: returnURL, responder: newResponder(base), logger: base}
}

func (h *StreamingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "StreamingHandler", operation, attrs...)
}

// Start handles GET /oauth/streaming/start by redirecting to the provider.
func (h *StreamingHandler) Start(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	authURL, err := h.service.BeginAuthorization(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "Start", "principal_id", principal.EmployeeID).ErrorContext(r.Context(), "authorization start failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback handles GET /oauth/streaming/callback. The state parameter
// identifies the employee, so the route does not need a session.
func (h *StreamingHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	logger := h.log(r.Context(), "Callback")

	if providerErr := strings.TrimSpace(query.Get("error")); providerErr != "" {
		logger.WarnContext(r.Context(), "provider denied authorization", "provider_error", providerErr)
		http.Redirect(w, r, h.returnTo("failed"), http.StatusFound)
		return
	}

	token, err := h.service.CompleteAuthorization(r.Context(), query.Get("state"), query.Get("code"))
	if err != nil {
		logger.WarnContext(r.Context(), "authorization callback failed", "error", err, "error_kind", application.ErrorKind(err))
		http.Redirect(w, r, h.returnTo("failed"), http.StatusFound)
		return
	}

	logger.With("employee_id", token.EmployeeID).InfoContext(r.Context(), "streaming account connected")
	http.Redirect(w, r, h.returnTo("connected"), http.StatusFound)
}

// Token handles GET /oauth/streaming/token and returns a fresh access token
// for the host's player.
func (h *StreamingHandler) Token(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	token, err := h.service.AccessToken(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, accessTokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresAt:   token.Expiry.UTC().Format(time.RFC3339),
	})
}

// Disconnect handles DELETE /oauth/streaming.
func (h *StreamingHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.Disconnect(r.Context(), principal); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *StreamingHandler) returnTo(outcome string) string {
	u, err := url.Parse(h.returnURL)
	if err != nil {
		return "/"
	}
	q := u.Query()
	q.Set("streaming", outcome)
	u.RawQuery = q.Encode()
	return u.String()
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}
