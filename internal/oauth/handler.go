package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/newsdesk/service-core/internal/identity"
	"github.com/newsdesk/service-core/internal/oidc"
	"github.com/newsdesk/service-core/internal/user/entity"
)

const stateCookieName = "__oauth_state"

type accountResolver interface {
	Resolve(ctx context.Context, p identity.Payload) (*entity.User, error)
}

type tokenIssuer interface {
	IssueTokens(ctx context.Context, u *entity.User, audience string) (oidc.TokenSet, error)
}

type flowStore interface {
	PutVerifier(ctx context.Context, state, verifier string, ttl time.Duration) error
	TakeVerifier(ctx context.Context, state string) (string, error)
	PutTokens(ctx context.Context, code string, set oidc.TokenSet, ttl time.Duration) error
	TakeTokens(ctx context.Context, code string) (oidc.TokenSet, error)
}

type Handler struct {
	providers *Registry
	flows     flowStore
	resolver  accountResolver
	tokens    tokenIssuer
	cfg       Config
	logger    *zap.SugaredLogger
}

func NewHandler(providers *Registry, flows flowStore, resolver accountResolver, tokens tokenIssuer, cfg Config, logger *zap.SugaredLogger) *Handler {
	return &Handler{providers: providers, flows: flows, resolver: resolver, tokens: tokens, cfg: cfg, logger: logger}
}

// Login serves GET /auth/{provider}/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	p, err := h.providers.Get(r.PathValue("provider"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown oauth provider"})
		return
	}
	state, err := randomToken()
	if err != nil {
		h.fail(w, "generate state", err)
		return
	}
	verifier, challenge, err := newPKCE()
	if err != nil {
		h.fail(w, "generate pkce", err)
		return
	}
	if err := h.flows.PutVerifier(r.Context(), state, verifier, h.cfg.StateTTL); err != nil {
		h.fail(w, "store verifier", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cfg.StateTTL.Seconds()),
	})
	http.Redirect(w, r, p.AuthCodeURL(state, challenge), http.StatusFound)
}

// Callback serves GET /auth/{provider}/callback.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	p, err := h.providers.Get(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown oauth provider"})
		return
	}

	q := r.URL.Query()
	state := q.Get("state")
	cookie, cerr := r.Cookie(stateCookieName)
	if state == "" || cerr != nil || cookie.Value != state {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid state"})
		return
	}
	h.clearStateCookie(w)

	if e := q.Get("error"); e != "" {
		h.logger.Warnw("provider returned error", "provider", name, "error", e, "desc", q.Get("error_description"))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authorization denied"})
		return
	}
	code := q.Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing code"})
		return
	}

	verifier, err := h.flows.TakeVerifier(r.Context(), state)
	if err != nil {
		if errors.Is(err, ErrExpired) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "sign-in expired"})
			return
		}
		h.fail(w, "load verifier", err)
		return
	}

	payload, err := p.Exchange(r.Context(), code, verifier)
	if err != nil {
		h.logger.Warnw("code exchange failed", "provider", name, "err", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication failed"})
		return
	}

	u, err := h.resolver.Resolve(r.Context(), payload)
	switch {
	case errors.Is(err, identity.ErrMissingContactAddress):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "provider shared no usable email address"})
		return
	case errors.Is(err, identity.ErrAccountDisabled), errors.Is(err, identity.ErrAccountLocked):
		h.logger.Infow("oauth sign-in refused", "provider", name, "err", err)
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, identity.ErrDuplicateContactAddress), errors.Is(err, identity.ErrHandleTaken):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "account conflict, try again"})
		return
	case err != nil:
		h.fail(w, "resolve account", err)
		return
	}

	set, err := h.tokens.IssueTokens(r.Context(), u, "")
	if err != nil {
		h.fail(w, "issue tokens", err)
		return
	}
	h.logger.Infow("oauth sign-in", "provider", name, "user_id", u.ID)

	if h.cfg.SuccessRedirect == "" {
		writeJSON(w, http.StatusOK, set)
		return
	}
	oneTime, err := randomToken()
	if err != nil {
		h.fail(w, "generate code", err)
		return
	}
	if err := h.flows.PutTokens(r.Context(), oneTime, set, h.cfg.CodeTTL); err != nil {
		h.fail(w, "store code", err)
		return
	}
	http.Redirect(w, r, withCode(h.cfg.SuccessRedirect, oneTime), http.StatusFound)
}

type redeemRequest struct {
	Code string `json:"code"`
}

// Redeem trades the one-time code from a redirect for its token set.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	set, err := h.flows.TakeTokens(r.Context(), req.Code)
	if errors.Is(err, ErrExpired) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	if err != nil {
		h.fail(w, "redeem code", err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *Handler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) fail(w http.ResponseWriter, step string, err error) {
	h.logger.Errorw("oauth "+step+" failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sign-in failed"})
}

func withCode(target, code string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
