package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pdfsuite/gateway/internal/database"
	"github.com/pdfsuite/gateway/internal/plan"
	"github.com/pdfsuite/gateway/internal/supervisor"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// HealthCheck reports gateway liveness plus the engine supervisor's state.
func HealthCheck(engine *supervisor.Supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"engine": string(engine.State()),
		})
	}
}

// GetUsage returns per-day operation counts, optionally filtered by subject
// and date range.
func GetUsage(w http.ResponseWriter, r *http.Request) {
	since := r.URL.Query().Get("since")
	until := r.URL.Query().Get("until")
	subject := r.URL.Query().Get("subject")

	query := database.DB.Model(&database.UsageCounter{})

	if subject != "" {
		query = query.Where("subject_id = ?", subject)
	}
	if since != "" {
		query = query.Where("day >= ?", since)
	}
	if until != "" {
		query = query.Where("day <= ?", until)
	}

	type usageRow struct {
		SubjectKind string `json:"subject_kind"`
		SubjectID   string `json:"subject_id"`
		Day         string `json:"day"`
		Count       int64  `json:"count"`
	}

	var results []usageRow
	query.Select("subject_kind, subject_id, day, count").
		Order("day DESC").Limit(1000).Scan(&results)

	writeJSON(w, http.StatusOK, results)
}

// GetOperations pages through the operation log, newest first.
func GetOperations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	query := database.DB.Model(&database.OperationLog{})

	if op := r.URL.Query().Get("operation"); op != "" {
		query = query.Where("operation = ?", op)
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse("2006-01-02", since); err == nil {
			query = query.Where("created_at >= ?", t)
		}
	}

	var entries []database.OperationLog
	query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entries)

	writeJSON(w, http.StatusOK, entries)
}

// GetUserPlan returns a user's stored plan and effective tier.
func GetUserPlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var user database.User
	if err := database.DB.Where("id = ?", id).First(&user).Error; err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	resp := map[string]interface{}{
		"id":             user.ID,
		"email":          user.Email,
		"active":         user.Active,
		"plan":           user.Plan,
		"effective_tier": plan.EffectiveTier(&user),
	}
	if user.ProExpiresAt != nil {
		resp["pro_expires_at"] = user.ProExpiresAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}
