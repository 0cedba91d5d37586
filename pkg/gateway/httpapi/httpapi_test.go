package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewrite/pipeline/pkg/gateway"
	"github.com/corewrite/pipeline/pkg/statusreader"
)

type fakePublisher struct {
	published []publishedCall
	err       error
}

type publishedCall struct {
	stream, subject, dedupID string
	payload                  []byte
}

func (f *fakePublisher) Publish(ctx context.Context, stream, subject, dedupID string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedCall{stream, subject, dedupID, payload})
	return nil
}

type fakeStatus struct {
	view statusreader.StatusView
	err  error
}

func (f *fakeStatus) Get(ctx context.Context, operationID string) (statusreader.StatusView, error) {
	return f.view, f.err
}

func newTestServer(t *testing.T, pub *fakePublisher, status *fakeStatus) *Server {
	t.Helper()
	schema, err := gateway.NewSchemaValidator()
	require.NoError(t, err)

	return New(Config{
		Admission:      gateway.NewAdmission(10, gateway.NewCircuitBreaker(5, time.Minute)),
		Limiter:        gateway.NewActorLimiter(6000, 100),
		Schema:         schema,
		Auth:           nil,
		Queue:          pub,
		Status:         status,
		PublishTimeout: 5 * time.Second,
	})
}

func TestHandleWrite_ValidRequest_PublishesAndAccepts(t *testing.T) {
	pub := &fakePublisher{}
	srv := newTestServer(t, pub, &fakeStatus{})

	body := `{"name":"Alice","email":"alice@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "11111111-1111-1111-1111-111111111111")
	rec := httptest.NewRecorder()

	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "writes.users", pub.published[0].subject)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", pub.published[0].dedupID)

	var resp acceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", resp.OperationID)
}

func TestHandleWrite_MissingIdempotencyKey_BadRequest(t *testing.T) {
	pub := &fakePublisher{}
	srv := newTestServer(t, pub, &fakeStatus{})

	body := `{"name":"Alice","email":"alice@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, pub.published)
}

func TestHandleWrite_SchemaViolation_BadRequest(t *testing.T) {
	pub := &fakePublisher{}
	srv := newTestServer(t, pub, &fakeStatus{})

	body := `{"name":"Alice"}`
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "22222222-2222-2222-2222-222222222222")
	rec := httptest.NewRecorder()

	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, pub.published)
}

func TestHandleWrite_AdmissionAtCapacity_ServiceUnavailable(t *testing.T) {
	pub := &fakePublisher{}
	schema, err := gateway.NewSchemaValidator()
	require.NoError(t, err)
	srv := New(Config{
		Admission:      gateway.NewAdmission(0, gateway.NewCircuitBreaker(5, time.Minute)),
		Limiter:        gateway.NewActorLimiter(6000, 100),
		Schema:         schema,
		Queue:          pub,
		Status:         &fakeStatus{},
		PublishTimeout: 5 * time.Second,
	})

	body := `{"name":"Alice","email":"alice@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "33333333-3333-3333-3333-333333333333")
	rec := httptest.NewRecorder()

	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestHandleStatus_DelegatesToStatusReader(t *testing.T) {
	status := &fakeStatus{view: statusreader.StatusView{OperationID: "op-1", Status: "completed"}}
	srv := newTestServer(t, &fakePublisher{}, status)

	req := httptest.NewRequest(http.MethodGet, "/status/op-1", nil)
	rec := httptest.NewRecorder()

	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var view statusreader.StatusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "completed", view.Status)
}

func TestHandleHealth_ReportsBreakerState(t *testing.T) {
	srv := newTestServer(t, &fakePublisher{}, &fakeStatus{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "closed", resp.BreakerState)
	assert.Zero(t, resp.InFlight)
	assert.Zero(t, resp.ConsecutiveFailures)
}
