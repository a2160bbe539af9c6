package api

import (
	"net/http"
	"strings"

	"github.com/pdfsuite/gateway/internal/config"
)

// AdminAuth validates the shared admin secret. Rejections use the same
// {error, reason} body shape as the metering gate.
func AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if config.Cfg.AdminSecret == "" {
			writeReason(w, http.StatusServiceUnavailable, "admin_not_configured")
			return
		}

		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == "" || token == auth {
			writeReason(w, http.StatusUnauthorized, "missing_admin_token")
			return
		}

		if token != config.Cfg.AdminSecret {
			writeReason(w, http.StatusForbidden, "invalid_admin_token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeReason(w http.ResponseWriter, code int, reason string) {
	writeJSON(w, code, map[string]string{
		"error":  "request_rejected",
		"reason": reason,
	})
}
