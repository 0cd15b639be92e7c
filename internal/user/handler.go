package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/newsdesk/service-core/internal/oidc"
	"github.com/newsdesk/service-core/internal/user/entity"
)

// TokenIssuer mints the token pair returned by a successful login.
type TokenIssuer interface {
	IssueTokens(ctx context.Context, u *entity.User, audience string) (oidc.TokenSet, error)
}

// Handler exposes HTTP endpoints for local accounts.
type Handler struct {
	svc    *Service
	tokens TokenIssuer
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, tokens TokenIssuer, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, tokens: tokens, logger: logger}
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid signup payload", "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	u, err := h.svc.Signup(r.Context(), SignupInput{Username: req.Username, Email: req.Email, Password: req.Password})
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid username, email or password"})
	case errors.Is(err, ErrEmailTaken):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "email already registered"})
	case errors.Is(err, ErrUsernameTaken):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "username already taken"})
	case err != nil:
		h.logger.Errorw("signup failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "signup failed"})
	default:
		writeJSON(w, http.StatusCreated, u)
	}
}

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	ClientID   string `json:"client_id"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	u, err := h.svc.AuthenticatePassword(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.logger.Debugw("login failed", "err", err)
		switch {
		case errors.Is(err, ErrBadCredentials):
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		case errors.Is(err, ErrLocked):
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "account locked"})
		case errors.Is(err, ErrDisabled):
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "account disabled"})
		default:
			h.logger.Errorw("login failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		}
		return
	}
	set, err := h.tokens.IssueTokens(r.Context(), u, req.ClientID)
	if err != nil {
		h.logger.Errorw("issue tokens failed", "user_id", u.ID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// Me must run behind oidc RequireAuth.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	c, ok := oidc.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	u, err := h.svc.GetByID(r.Context(), c.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		h.logger.Errorw("load current user failed", "user_id", c.Subject, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	users, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Errorw("list users failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
		return
	}
	if users == nil {
		users = []*entity.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

type roleRequest struct {
	Role string `json:"role"`
}

// UpdateRole serves PATCH /users/{id}/role.
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	c, ok := oidc.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	u, err := h.svc.UpdateRole(r.Context(), c.Subject, r.PathValue("id"), req.Role)
	switch {
	case errors.Is(err, ErrUnknownRole):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown role"})
	case errors.Is(err, ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
	case err != nil:
		h.logger.Errorw("update role failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "update failed"})
	default:
		writeJSON(w, http.StatusOK, u)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
