package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/newsdesk/service-core/internal/oauth"
	"github.com/newsdesk/service-core/internal/oidc"
	"github.com/newsdesk/service-core/internal/setting"
	"github.com/newsdesk/service-core/internal/subscriber"
	"github.com/newsdesk/service-core/internal/user"
	"github.com/newsdesk/service-core/internal/user/entity"
	"github.com/newsdesk/service-core/pkg/metrics"
)

// Prefix is mounted in front of every route.
const Prefix = "/newsroom-api"

// Deps carries the handlers mounted by RegisterRoutes.
type Deps struct {
	Logger      *zap.SugaredLogger
	Metrics     *metrics.Metrics
	Tokens      *oidc.Service
	OIDC        *oidc.Handler
	OAuth       *oauth.Handler
	Users       *user.Handler
	Settings    *setting.Handler
	SettingSvc  *setting.Service
	Subscribers *subscriber.Handler
	// Checks back the health endpoint, keyed by dependency name.
	Checks map[string]func(context.Context) error
}

// RegisterRoutes mounts all handlers on a stdlib ServeMux and wraps it in
// the middleware chain.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()
	p := Prefix

	mux.HandleFunc("GET "+p+"/health", healthHandler(d.Checks))
	if d.Metrics != nil {
		mux.Handle("GET "+p+"/metrics", d.Metrics.Handler())
	}

	authed := d.Tokens.RequireAuth
	admin := func(h http.HandlerFunc) http.Handler {
		return authed(oidc.RequireRole(entity.RoleAdmin)(h))
	}

	// local accounts and provider sign-in
	mux.HandleFunc("POST "+p+"/auth/signup", d.Users.Signup)
	mux.HandleFunc("POST "+p+"/auth/login", d.Users.Login)
	mux.HandleFunc("GET "+p+"/auth/{provider}/login", d.OAuth.Login)
	mux.HandleFunc("GET "+p+"/auth/{provider}/callback", d.OAuth.Callback)
	mux.HandleFunc("POST "+p+"/auth/redeem", d.OAuth.Redeem)

	// token endpoints
	mux.HandleFunc("GET "+p+"/oidc/.well-known/openid-configuration", d.OIDC.Discovery)
	mux.HandleFunc("GET "+p+"/oidc/jwks.json", d.OIDC.JWKS)
	mux.HandleFunc("POST "+p+"/oidc/token", d.OIDC.Token)
	mux.HandleFunc("GET "+p+"/oidc/userinfo", d.OIDC.Userinfo)
	mux.HandleFunc("POST "+p+"/oidc/revoke", d.OIDC.Revoke)
	mux.HandleFunc("POST "+p+"/oidc/introspect", d.OIDC.Introspect)

	mux.Handle("GET "+p+"/users/me", authed(http.HandlerFunc(d.Users.Me)))
	mux.Handle("GET "+p+"/users", admin(d.Users.List))
	mux.Handle("PATCH "+p+"/users/{id}/role", admin(d.Users.UpdateRole))

	mux.HandleFunc("GET "+p+"/settings", d.Settings.List)
	mux.HandleFunc("GET "+p+"/settings/{key}", d.Settings.Get)
	mux.Handle("PUT "+p+"/settings/{key}", admin(d.Settings.Put))
	mux.Handle("DELETE "+p+"/settings/{key}", admin(d.Settings.Delete))

	mux.HandleFunc("POST "+p+"/subscribers", d.Subscribers.Subscribe)
	mux.HandleFunc("DELETE "+p+"/subscribers/{email}", d.Subscribers.Unsubscribe)
	mux.Handle("GET "+p+"/subscribers", admin(d.Subscribers.List))

	isAdmin := func(r *http.Request) bool {
		c, ok := d.Tokens.RequestClaims(r)
		return ok && entity.Role(c.Role) == entity.RoleAdmin
	}
	gate := setting.MaintenanceGate(d.SettingSvc, isAdmin, d.Logger,
		p+"/health", p+"/metrics", p+"/auth/", p+"/oidc/")

	var obs requestObserver
	if d.Metrics != nil {
		obs = d.Metrics
	}
	return RequestIDMiddleware()(
		LoggingMiddleware(d.Logger, obs)(
			SecurityHeadersMiddleware()(
				gate(mux))))
}

func healthHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": http.StatusText(status), "checks": report})
	}
}
