package setting

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const defaultMaintenanceMessage = "The site is under maintenance. Please try again later."

// MaintenanceGate answers 503 while maintenance mode is on. Requests whose
// path starts with one of exempt, and requests for which isAdmin is true,
// pass through. A failed lookup leaves the site open.
func MaintenanceGate(svc *Service, isAdmin func(*http.Request) bool, logger *zap.SugaredLogger, exempt ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range exempt {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			m, err := svc.Maintenance(r.Context())
			if err != nil {
				logger.Warnw("maintenance lookup failed", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !m.Enabled || (isAdmin != nil && isAdmin(r)) {
				next.ServeHTTP(w, r)
				return
			}
			msg := m.Message
			if msg == "" {
				msg = defaultMaintenanceMessage
			}
			w.Header().Set("Retry-After", "120")
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "maintenance", "message": msg})
		})
	}
}
