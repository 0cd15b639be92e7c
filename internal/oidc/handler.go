package oidc

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/newsdesk/service-core/internal/user/entity"
)

// PasswordAuthenticator checks local credentials for the password grant.
type PasswordAuthenticator interface {
	AuthenticatePassword(ctx context.Context, identifier, password string) (*entity.User, error)
}

// AccountLoader reloads the account behind a refresh session.
type AccountLoader interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
}

type Handler struct {
	svc      *Service
	auth     PasswordAuthenticator
	accounts AccountLoader
	logger   *zap.SugaredLogger
}

func NewHandler(svc *Service, auth PasswordAuthenticator, accounts AccountLoader, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, auth: auth, accounts: accounts, logger: logger}
}

func (h *Handler) Discovery(w http.ResponseWriter, r *http.Request) {
	iss := h.svc.Issuer()
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                iss,
		"jwks_uri":                              iss + "/jwks.json",
		"token_endpoint":                        iss + "/token",
		"userinfo_endpoint":                     iss + "/userinfo",
		"revocation_endpoint":                   iss + "/revoke",
		"introspection_endpoint":                iss + "/introspect",
		"grant_types_supported":                 []string{"password", "refresh_token"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"subject_types_supported":               []string{"public"},
	})
}

func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.JWKS())
}

// Token serves the password and refresh_token grants.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	clientID := r.PostForm.Get("client_id")

	var u *entity.User
	switch r.PostForm.Get("grant_type") {
	case "password":
		var err error
		u, err = h.auth.AuthenticatePassword(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
		if err != nil {
			h.logger.Debugw("password grant rejected", "err", err)
			writeError(w, http.StatusBadRequest, "invalid_grant")
			return
		}
	case "refresh_token":
		rt := r.PostForm.Get("refresh_token")
		if rt == "" {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		sess, err := h.svc.ConsumeRefreshToken(r.Context(), rt)
		if err != nil {
			if !errors.Is(err, ErrInvalidRefresh) {
				h.logger.Errorw("refresh lookup failed", "err", err)
				writeError(w, http.StatusInternalServerError, "server_error")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid_grant")
			return
		}
		u, err = h.accounts.GetByID(r.Context(), sess.UserID)
		if err != nil || u.Status == entity.StatusDisabled {
			writeError(w, http.StatusBadRequest, "invalid_grant")
			return
		}
		clientID = sess.ClientID
	default:
		writeError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}

	set, err := h.svc.IssueTokens(r.Context(), u, clientID)
	if err != nil {
		h.logger.Errorw("issue tokens failed", "user_id", u.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// Userinfo reloads the account so the answer reflects the current profile.
func (h *Handler) Userinfo(w http.ResponseWriter, r *http.Request) {
	c, ok := h.svc.RequestClaims(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	u, err := h.accounts.GetByID(r.Context(), c.Subject)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":                u.ID,
		"email":              u.Email,
		"preferred_username": u.Username,
		"picture":            u.Avatar,
		"role":               u.Role,
	})
}

// Revoke implements RFC 7009 for refresh tokens. Unknown tokens still get 200.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	token := r.PostForm.Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := h.svc.RevokeRefreshToken(r.Context(), token); err != nil {
		h.logger.Warnw("revoke failed", "err", err)
	}
	w.WriteHeader(http.StatusOK)
}

// Introspect implements RFC 7662 for refresh tokens and access tokens.
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	token := r.PostForm.Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if sess, err := h.svc.ValidateRefreshToken(r.Context(), token); err == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"active":     true,
			"client_id":  sess.ClientID,
			"sub":        sess.UserID,
			"exp":        sess.ExpiresAt.Unix(),
			"token_type": "refresh_token",
		})
		return
	}
	if c, err := h.svc.ParseAccessToken(token); err == nil {
		out := map[string]any{
			"active":     true,
			"sub":        c.Subject,
			"iss":        c.Issuer,
			"role":       c.Role,
			"token_type": "access_token",
		}
		if len(c.Audience) > 0 {
			out["aud"] = c.Audience
		}
		if c.ExpiresAt != nil {
			out["exp"] = c.ExpiresAt.Unix()
		}
		if c.IssuedAt != nil {
			out["iat"] = c.IssuedAt.Unix()
		}
		writeJSON(w, http.StatusOK, out)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": false})
}
