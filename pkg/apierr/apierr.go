// Package apierr renders RFC 7807 Problem Details responses for the Write
// Gateway's HTTP surface (spec.md §4.1, §4.4). Grounded on the teacher's
// pkg/api/apierror.go, retargeted from the HELM error namespace to this
// pipeline's.
package apierr

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// ProblemDetail implements RFC 7807.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// Write writes an RFC 7807 response enriched with request context.
func Write(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	problem := &ProblemDetail{
		Type:     fmt.Sprintf("https://errors.corewrite.dev/%d", status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  w.Header().Get("X-Request-ID"),
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// BadRequest writes a 400, for malformed or schema-invalid write requests.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	Write(w, r, http.StatusBadRequest, "Bad Request", detail)
}

// Unauthorized writes a 401, for missing/invalid bearer tokens.
func Unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	Write(w, r, http.StatusUnauthorized, "Unauthorized", detail)
}

// NotFound writes a 404. The status route does not use it: an unknown
// operation id is reported there as pending.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Write(w, r, http.StatusNotFound, "Not Found", detail)
}

// Conflict writes a 409. Never used for duplicate operation_id submission
// (spec.md §4.1 requires that be accepted as a replay, not rejected) —
// reserved for future use where the domain genuinely needs it.
func Conflict(w http.ResponseWriter, r *http.Request, detail string) {
	Write(w, r, http.StatusConflict, "Conflict", detail)
}

// TooManyRequests writes a 429 with Retry-After, for per-actor rate limit
// rejection (spec.md §4.1).
func TooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	Write(w, r, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded")
}

// ServiceUnavailable writes a 503, for admission rejection when the
// in-flight cap is saturated or the circuit breaker is open (spec.md §4.1).
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Write(w, r, http.StatusServiceUnavailable, "Service Unavailable", detail)
}

// Internal writes a 500. err is logged but never exposed to the client.
func Internal(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error", "error", err, "path", r.URL.Path)
	Write(w, r, http.StatusInternalServerError, "Internal Server Error", "an unexpected error occurred")
}
