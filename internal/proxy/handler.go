// Package proxy forwards admitted requests to the PDF engine and accounts
// for successful operations after the response has been relayed.
package proxy

import (
	"io"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pdfsuite/gateway/internal/database"
	"github.com/pdfsuite/gateway/internal/meter"
	"github.com/pdfsuite/gateway/internal/plan"
	"github.com/pdfsuite/gateway/internal/supervisor"
)

// Injected on forwarded requests. Informational hints the engine may ignore.
// X-Max-Pages is the caller's page limit, 0 meaning unlimited.
const (
	HeaderMaxPages = "X-Max-Pages"
	HeaderPlanTier = "X-Plan-Tier"
)

type Handler struct {
	engine *supervisor.Supervisor
	client *http.Client
}

func New(engine *supervisor.Supervisor) *Handler {
	return &Handler{
		engine: engine,
		// Processing operations can be long-running. This timeout is
		// deliberately decoupled from the supervisor's health-check timeouts.
		client: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Metered forwards an admitted request to the engine and, on a 2xx response,
// records the operation and increments the caller's daily usage. Expects the
// gate to have attached a Decision to the request context.
func (h *Handler) Metered(w http.ResponseWriter, r *http.Request) {
	decision, ok := meter.GetDecision(r.Context())
	if !ok {
		// Route misconfiguration; the gate must run before this handler.
		log.Printf("WARNING: metered route without admission decision: %s", r.URL.Path)
		http.Error(w, `{"error":"internal","message":"Request was not admitted"}`, http.StatusInternalServerError)
		return
	}

	fileSize := r.ContentLength
	resp, ok := h.forward(w, r, func(req *http.Request) {
		req.Header.Set(HeaderMaxPages, strconv.FormatInt(decision.MaxPages, 10))
		req.Header.Set(HeaderPlanTier, string(decision.Tier))
	})
	if !ok {
		return
	}
	defer resp.Body.Close()

	relayed := relay(w, resp)

	// Only successful, fully relayed operations count against the quota.
	// Failed attempts are free retries.
	if relayed && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		go recordOperation(decision, operationName(r.URL.Path), fileSize)
	}
}

// Passthrough forwards auxiliary engine traffic (previews, downloads) with
// no metering and no accounting.
func (h *Handler) Passthrough(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.forward(w, r, nil)
	if !ok {
		return
	}
	defer resp.Body.Close()
	relay(w, resp)
}

// forward sends the request verbatim to the engine, preserving the original
// path. It writes a 502 and returns ok=false if the engine is unreachable.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, mutate func(*http.Request)) (*http.Response, bool) {
	upstreamURL := h.engine.BaseURL() + r.URL.Path
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	// r.Context() ties the upstream call to the client connection: a client
	// disconnect aborts the engine call and skips accounting.
	req, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, r.Body)
	if err != nil {
		http.Error(w, `{"error":"bad_request","message":"Failed to build engine request"}`, http.StatusBadRequest)
		return nil, false
	}
	req.ContentLength = r.ContentLength

	for key, vals := range r.Header {
		lower := strings.ToLower(key)
		if lower == "authorization" || lower == "host" {
			continue
		}
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}

	if mutate != nil {
		mutate(req)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		log.Printf("Engine request failed (state=%s): %v", h.engine.State(), err)
		http.Error(w, `{"error":"engine_unavailable","message":"The processing engine is unavailable"}`, http.StatusBadGateway)
		return nil, false
	}
	return resp, true
}

// relay copies the engine response to the client. Returns false if the body
// could not be fully written (typically a client disconnect).
func relay(w http.ResponseWriter, resp *http.Response) bool {
	for key, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("Response relay interrupted: %v", err)
		return false
	}
	return true
}

// recordOperation runs detached from the request. Accounting failures are
// logged and swallowed: the response has already been sent.
func recordOperation(d meter.Decision, operation string, fileSize int64) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("WARNING: accounting panic: %v", rec)
		}
	}()

	entry := database.OperationLog{
		IPAddress: d.ClientIP,
		Operation: operation,
		Status:    database.StatusSuccess,
	}
	if d.UserID != "" {
		entry.UserID = &d.UserID
		entry.Email = &d.Email
	}
	if fileSize >= 0 {
		entry.FileSizeBytes = &fileSize
	}
	if err := database.AppendOperation(entry); err != nil {
		log.Printf("WARNING: operation log write failed: %v", err)
	}

	// Pro operations never touch the usage counters.
	if d.Tier == plan.TierPro {
		return
	}

	kind, id := database.SubjectIP, d.ClientIP
	if d.UserID != "" {
		kind, id = database.SubjectUser, d.UserID
	}
	if err := database.IncrementCount(kind, id, database.DayKey(time.Now())); err != nil {
		log.Printf("WARNING: usage increment failed: %v", err)
	}
}

func operationName(reqPath string) string {
	return path.Base(strings.TrimRight(reqPath, "/"))
}
