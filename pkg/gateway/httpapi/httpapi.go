// Package httpapi mounts the Write Gateway's ingress surface: one POST
// route per supported table, the Status Reader's GET route, and a health
// route surfacing admission state. Grounded on the teacher's
// pkg/api/handlers.go request-handling shape (MaxBytesReader, decode,
// validate, delegate, respond), generalized from the teacher's two
// memory-service routes to a table-parameterized write route plus a
// status route.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/corewrite/pipeline/pkg/apierr"
	"github.com/corewrite/pipeline/pkg/domain"
	"github.com/corewrite/pipeline/pkg/gateway"
	"github.com/corewrite/pipeline/pkg/queue"
	"github.com/corewrite/pipeline/pkg/statusreader"
)

const maxBodyBytes = 1 << 20 // 1 MiB, matching the teacher's per-request cap

// Publisher is the subset of pkg/queue.Queue the gateway needs.
type Publisher interface {
	Publish(ctx context.Context, stream, subject, dedupID string, payload []byte) error
}

// StatusGetter is the subset of pkg/statusreader.Reader the gateway needs.
type StatusGetter interface {
	Get(ctx context.Context, operationID string) (statusreader.StatusView, error)
}

// Server mounts the gateway's HTTP routes. Auth is optional: a nil
// validator disables bearer-token enforcement entirely (spec.md §4.1
// names admission control, schema validation, and publish as WG's
// responsibilities; bearer auth is an ambient concern layered on top, so
// it degrades rather than failing closed when unconfigured).
type Server struct {
	admission *gateway.Admission
	limiter   *gateway.ActorLimiter
	schema    *gateway.SchemaValidator
	auth      *gateway.JWTValidator
	q         Publisher
	status    StatusGetter

	publishTimeout time.Duration
}

// Config bundles Server's dependencies.
type Config struct {
	Admission      *gateway.Admission
	Limiter        *gateway.ActorLimiter
	Schema         *gateway.SchemaValidator
	Auth           *gateway.JWTValidator // nil disables auth
	Queue          Publisher
	Status         StatusGetter
	PublishTimeout time.Duration
}

// New creates a Server from cfg.
func New(cfg Config) *Server {
	return &Server{
		admission:      cfg.Admission,
		limiter:        cfg.Limiter,
		schema:         cfg.Schema,
		auth:           cfg.Auth,
		q:              cfg.Queue,
		status:         cfg.Status,
		publishTimeout: cfg.PublishTimeout,
	}
}

// Routes returns the gateway's handler, ready to serve on any address.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	for _, table := range domain.SupportedTables {
		mux.HandleFunc("POST /"+string(table), s.handleWrite(table))
	}
	mux.HandleFunc("GET /status/{operation_id}", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

type acceptedResponse struct {
	Status      string    `json:"status"`
	OperationID string    `json:"operation_id"`
	AcceptedAt  time.Time `json:"accepted_at"`
}

// handleWrite returns the POST handler for one table, per spec.md §4.1's
// "one entry per supported table" contract.
func (s *Server) handleWrite(table domain.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticket, err := s.admission.Acquire(r.Context())
		if err != nil {
			status, detail := gateway.RejectionStatus(err)
			w.Header().Set("Retry-After", "1")
			apierr.Write(w, r, status, httpStatusText(status), detail)
			return
		}

		var handlerErr error
		defer func() { ticket.Release(handlerErr) }()

		subject, err := authenticatedSubject(s.auth, r)
		if err != nil {
			apierr.Unauthorized(w, r, err.Error())
			return
		}

		actorID := gateway.ActorID(subject, r.RemoteAddr)
		if !s.limiter.Allow(actorID) {
			apierr.TooManyRequests(w, r, 1)
			return
		}

		idempotencyKey := r.Header.Get("Idempotency-Key")
		if idempotencyKey == "" {
			apierr.BadRequest(w, r, "Idempotency-Key header is required")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		data, err := io.ReadAll(r.Body)
		if err != nil {
			apierr.BadRequest(w, r, "invalid request body")
			return
		}

		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			apierr.BadRequest(w, r, "body must be a JSON object")
			return
		}
		if err := s.schema.Validate(table, decoded); err != nil {
			apierr.BadRequest(w, r, err.Error())
			return
		}

		// POST is the ingress surface's only operation (spec.md §6); update
		// and delete have no caller-supplied target-id field to route
		// through, so every request ingested here is a create.
		req := domain.WriteRequest{
			OperationID: idempotencyKey,
			Table:       table,
			OpType:      domain.OpCreate,
			Data:        json.RawMessage(data),
		}
		if err := req.Validate(); err != nil {
			apierr.BadRequest(w, r, err.Error())
			return
		}

		payload, err := req.Encode()
		if err != nil {
			handlerErr = err
			apierr.Internal(w, r, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.publishTimeout)
		defer cancel()
		if err := s.q.Publish(ctx, queue.StreamWrites, table.WriteSubject(), req.OperationID, payload); err != nil {
			handlerErr = err
			apierr.Write(w, r, http.StatusBadGateway, "Bad Gateway", "durable queue rejected the write")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(acceptedResponse{
			Status:      "accepted",
			OperationID: req.OperationID,
			AcceptedAt:  time.Now(),
		})
	}
}

// handleStatus serves the Status Reader's single read operation.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	operationID := r.PathValue("operation_id")
	if operationID == "" {
		apierr.BadRequest(w, r, "operation_id is required")
		return
	}

	view, err := s.status.Get(r.Context(), operationID)
	if err != nil {
		apierr.Internal(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}

type healthResponse struct {
	Status              string `json:"status"`
	BreakerState        string `json:"breaker_state"`
	InFlight            int64  `json:"in_flight"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

// handleHealth surfaces liveness plus admission metrics, per spec.md §6:
// in-flight count, circuit state, and consecutive failure count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:              "ok",
		BreakerState:        s.admission.BreakerState(),
		InFlight:            s.admission.InFlight(),
		ConsecutiveFailures: s.admission.ConsecutiveFailures(),
	})
}

// authenticatedSubject returns the authenticated subject, or "" when auth
// is disabled (validator is nil). A configured validator that rejects the
// request returns an error.
func authenticatedSubject(v *gateway.JWTValidator, r *http.Request) (string, error) {
	if v == nil {
		return "", nil
	}
	return v.ParseBearer(r.Header.Get("Authorization"))
}

func httpStatusText(status int) string {
	return strconv.Itoa(status) + " " + http.StatusText(status)
}
