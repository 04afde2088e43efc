/**
 * @description
 * This file contains the HTTP handlers for identity endpoints together with the
 * shared request and response helpers. Handlers parse the request, call the
 * application service and map its errors to status codes.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: For URL parameters.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/fundlink/fundlink-service/internal/app"
	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxRequestBodyBytes = 1 << 20

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service *app.Service
	logger  *slog.Logger
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{service: service, logger: logger.With("component", "api")}
}

type roleRouteResponse struct {
	Role domain.Role `json:"role"`
	View domain.View `json:"view"`
}

type meResponse struct {
	User *domain.User `json:"user"`
	View domain.View  `json:"view"`
}

type assignRoleRequest struct {
	Role domain.Role `json:"role"`
}

// RegisterHandler creates an account and starts a session.
func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	session, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// LoginHandler verifies credentials and starts a session.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	session, err := h.service.Login(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// LogoutHandler revokes the token used for the request.
func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if err := h.service.Logout(r.Context(), claims); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMeHandler returns the caller and the view for their role.
func (h *Handlers) GetMeHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: user, View: domain.RouteForRole(user.Role)})
}

// RouteHandler returns the view the client should render. Unknown or missing
// roles yield invalid_role rather than a default dashboard.
func (h *Handlers) RouteHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, roleRouteResponse{Role: user.Role, View: domain.RouteForRole(user.Role)})
}

// UpdateProfileHandler edits the caller's profile fields.
func (h *Handlers) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req domain.UpdateProfileRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	updated, err := h.service.UpdateProfile(r.Context(), user.ID, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// AssignRoleHandler lets a user without a role pick vendor or investor.
func (h *Handlers) AssignRoleHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	session, err := h.service.AssignOwnRole(r.Context(), user.ID, req.Role)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) currentUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return nil, false
	}
	return user, true
}

func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func urlUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt64(r *http.Request, name string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// writeServiceError maps service and store errors to HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var rateLimited *app.RateLimitError
	if errors.As(err, &rateLimited) {
		w.Header().Set("Retry-After", strconv.Itoa(rateLimited.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, rateLimited.Error())
		return
	}

	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "Internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrAmountNotPositive),
		errors.Is(err, app.ErrAmountTooSmall),
		errors.Is(err, app.ErrInvalidRole),
		errors.Is(err, app.ErrEmptyMessage),
		errors.Is(err, app.ErrMessageTooLong),
		errors.Is(err, app.ErrSelfMessage):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrInvalidToken),
		errors.Is(err, app.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrForbidden),
		errors.Is(err, app.ErrRoleRequired),
		errors.Is(err, store.ErrNotContributionOwner):
		return http.StatusForbidden
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrCampaignNotFound),
		errors.Is(err, store.ErrContributionNotFound),
		errors.Is(err, app.ErrPostNotFound),
		errors.Is(err, app.ErrConnectionNotFound),
		errors.Is(err, app.ErrNotificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrEmailTaken),
		errors.Is(err, store.ErrRoleAlreadyAssigned),
		errors.Is(err, store.ErrDuplicateReference),
		errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, app.ErrConnectionExists),
		errors.Is(err, app.ErrCampaignNotActive):
		return http.StatusConflict
	case errors.Is(err, store.ErrAmountMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, app.ErrPaymentNotConfigured),
		errors.Is(err, app.ErrMediaStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
