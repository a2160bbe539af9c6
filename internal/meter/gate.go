// Package meter admits or rejects processing requests against plan quotas.
package meter

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pdfsuite/gateway/internal/database"
	"github.com/pdfsuite/gateway/internal/plan"
)

// Gate resolves the caller's plan and checks file-size and daily-operation
// limits before a request may reach the engine. It only reads usage; the
// proxy's post-success accounting does all writes. If the store is
// unreachable the gate admits rather than blocking all traffic.
func Gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)

		identity, err := plan.Resolve(extractToken(r))
		if err != nil {
			log.Printf("WARNING: plan resolution failed, admitting: %v", err)
			admit(next, w, r, identity, clientIP)
			return
		}

		if identity.UserID != "" && !identity.Active {
			writeReject(w, http.StatusForbidden, "account_disabled", nil)
			return
		}

		// Pro bypasses metering entirely: no limits, no store reads.
		if identity.Tier == plan.TierPro {
			admit(next, w, r, identity, clientIP)
			return
		}

		limits := plan.LimitsFor(identity.Tier)

		if limits.MaxFileSizeBytes > 0 && r.ContentLength > limits.MaxFileSizeBytes {
			writeReject(w, rejectStatus(identity.Tier), "file_size_exceeded", limits.MaxFileSizeBytes)
			return
		}

		if limits.MaxOpsPerDay > 0 {
			kind, id := subjectKey(identity, clientIP)
			count, err := database.GetCount(kind, id, database.DayKey(time.Now()))
			if err != nil {
				log.Printf("WARNING: usage read failed, admitting: %v", err)
				admit(next, w, r, identity, clientIP)
				return
			}
			if count >= limits.MaxOpsPerDay {
				writeReject(w, rejectStatus(identity.Tier), "daily_limit_exceeded", limits.MaxOpsPerDay)
				return
			}
		}

		admit(next, w, r, identity, clientIP)
	})
}

func admit(next http.Handler, w http.ResponseWriter, r *http.Request, identity plan.Identity, clientIP string) {
	d := Decision{
		UserID:   identity.UserID,
		Email:    identity.Email,
		ClientIP: clientIP,
		Tier:     identity.Tier,
		MaxPages: plan.LimitsFor(identity.Tier).MaxPages,
	}
	next.ServeHTTP(w, r.WithContext(WithDecision(r.Context(), d)))
}

// subjectKey identifies who a quota is tracked against: the user ID when
// authenticated, the client IP otherwise.
func subjectKey(identity plan.Identity, clientIP string) (kind, id string) {
	if identity.UserID != "" {
		return database.SubjectUser, identity.UserID
	}
	return database.SubjectIP, clientIP
}

// rejectStatus picks the HTTP status for a quota rejection. Anonymous callers
// get 401 (log in for higher limits), authenticated free callers get 429
// (upgrade for higher limits). Intentional product behavior.
func rejectStatus(tier plan.Tier) int {
	if tier == plan.TierAnonymous {
		return http.StatusUnauthorized
	}
	return http.StatusTooManyRequests
}

func writeReject(w http.ResponseWriter, status int, reason string, limit interface{}) {
	body := map[string]interface{}{
		"error":  "request_rejected",
		"reason": reason,
	}
	if limit != nil {
		body["limit"] = limit
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func extractClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
