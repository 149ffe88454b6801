package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/scttfrdmn/droprealms-api/internal/config"
	"github.com/scttfrdmn/droprealms-api/internal/gcp"
	"github.com/scttfrdmn/droprealms-api/internal/metrics"
	"github.com/scttfrdmn/droprealms-api/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const validBody = `{"name":"vm-1","project":"proj-a","zone":"us-central1-a"}`

// fakeController records calls and returns canned results
type fakeController struct {
	mu    sync.Mutex
	calls []string

	err      error
	snapshot *types.InstanceSnapshot
	lookup   *types.ExternalIPLookup
}

func (f *fakeController) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeController) StartInstance(ctx context.Context, ref types.InstanceRef) (*types.Operation, error) {
	f.record("start " + ref.String())
	if f.err != nil {
		return nil, f.err
	}
	return &types.Operation{Name: "operation-1", OperationType: "start", Status: "RUNNING"}, nil
}

func (f *fakeController) StopInstance(ctx context.Context, ref types.InstanceRef) (*types.Operation, error) {
	f.record("stop " + ref.String())
	if f.err != nil {
		return nil, f.err
	}
	return &types.Operation{Name: "operation-2", OperationType: "stop", Status: "RUNNING"}, nil
}

func (f *fakeController) DescribeInstance(ctx context.Context, ref types.InstanceRef) (*types.InstanceSnapshot, error) {
	f.record("describe " + ref.String())
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

func (f *fakeController) GetExternalIP(ctx context.Context, ref types.InstanceRef) (*types.ExternalIPLookup, error) {
	f.record("ip " + ref.String())
	if f.err != nil {
		return nil, f.err
	}
	return f.lookup, nil
}

// recordingNotifier keeps every notification and the context error seen at delivery
type recordingNotifier struct {
	mu       sync.Mutex
	received []types.Notification
	ctxErrs  []error
	err      error
}

func (r *recordingNotifier) Notify(ctx context.Context, n types.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, n)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return r.err
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Address:         "127.0.0.1:0",
			ReadTimeout:     5,
			WriteTimeout:    5,
			ShutdownTimeout: 5,
		},
		Notify:  config.NotifyConfig{Timeout: 5},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, controller InstanceController, notifier *recordingNotifier) *Server {
	if notifier == nil {
		return NewServer(zaptest.NewLogger(t), cfg, controller, nil, metrics.New())
	}
	return NewServer(zaptest.NewLogger(t), cfg, controller, notifier, metrics.New())
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestRoot(t *testing.T) {
	s := newTestServer(t, testConfig(), &fakeController{}, nil)

	rec := serve(s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to droprealms!", rec.Body.String())

	rec = serve(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = serve(s, http.MethodGet, "/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWrongMethod(t *testing.T) {
	controller := &fakeController{}
	s := newTestServer(t, testConfig(), controller, nil)

	for _, path := range []string{"/instance/start", "/instance/stop", "/instance/ip", "/instance/status"} {
		rec := serve(s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
	assert.Empty(t, controller.calls)
}

func TestStartStop(t *testing.T) {
	tests := []struct {
		path     string
		wantCall string
		wantText string
		wantType types.InstanceEvent
	}{
		{"/instance/start", "start proj-a/us-central1-a/vm-1", "vm-1 was started to boot.", types.EventStart},
		{"/instance/stop", "stop proj-a/us-central1-a/vm-1", "vm-1 was started to shutdown.", types.EventStop},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			controller := &fakeController{}
			notifier := &recordingNotifier{}
			s := newTestServer(t, testConfig(), controller, notifier)

			rec := serve(s, http.MethodPost, tt.path, validBody)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Body.String())
			assert.Equal(t, []string{tt.wantCall}, controller.calls)

			require.Len(t, notifier.received, 1)
			assert.Equal(t, tt.wantText, notifier.received[0].Text)
			assert.Equal(t, tt.wantType, notifier.received[0].Event)
			assert.True(t, notifier.received[0].Success)
			assert.Equal(t, "vm-1", notifier.received[0].Instance.Name)
		})
	}
}

func TestIP(t *testing.T) {
	tests := []struct {
		name     string
		lookup   types.ExternalIPLookup
		wantBody string
	}{
		{"found", types.ExternalIPLookup{Address: "34.1.2.3", Result: types.IPFound}, "34.1.2.3"},
		{"no access config", types.ExternalIPLookup{Result: types.IPNoAccessConfig}, "Not found."},
		{"no external address", types.ExternalIPLookup{Result: types.IPNoExternalAddress}, "Not found."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := tt.lookup
			notifier := &recordingNotifier{}
			s := newTestServer(t, testConfig(), &fakeController{lookup: &lookup}, notifier)

			rec := serve(s, http.MethodPost, "/instance/ip", validBody)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			require.Len(t, notifier.received, 1)
			assert.Equal(t, "Instance information obtained for vm-1.", notifier.received[0].Text)
		})
	}
}

func TestStatus(t *testing.T) {
	notifier := &recordingNotifier{}
	controller := &fakeController{snapshot: &types.InstanceSnapshot{Status: "TERMINATED"}}
	s := newTestServer(t, testConfig(), controller, notifier)

	rec := serve(s, http.MethodPost, "/instance/status", validBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TERMINATED", rec.Body.String())
	assert.Equal(t, []string{"describe proj-a/us-central1-a/vm-1"}, controller.calls)
	require.Len(t, notifier.received, 1)
	assert.Equal(t, "vm-1 is TERMINATED.", notifier.received[0].Text)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing zone", `{"name":"vm-1","project":"proj-a"}`, "zone is required"},
		{"missing project", `{"name":"vm-1","zone":"us-central1-a"}`, "project is required"},
		{"empty name", `{"name":"","project":"proj-a","zone":"us-central1-a"}`, "name is required"},
		{"empty object", `{}`, "name is required"},
		{"empty body", ``, "invalid JSON payload"},
		{"not json", `name=vm-1`, "invalid JSON payload"},
		{"wrong type", `{"name":42,"project":"proj-a","zone":"us-central1-a"}`, "invalid JSON payload"},
	}

	for _, path := range []string{"/instance/start", "/instance/stop", "/instance/ip", "/instance/status"} {
		for _, tt := range tests {
			t.Run(path+"/"+tt.name, func(t *testing.T) {
				controller := &fakeController{}
				notifier := &recordingNotifier{}
				cfg := testConfig()
				cfg.Notify.NotifyFailures = true
				s := newTestServer(t, cfg, controller, notifier)

				rec := serve(s, http.MethodPost, path, tt.body)

				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Contains(t, decodeError(t, rec), tt.wantErr)
				assert.Empty(t, controller.calls)
				assert.Empty(t, notifier.received)
			})
		}
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"credential", &gcp.CredentialError{StatusCode: 500, Err: errors.New("boom")}, http.StatusServiceUnavailable},
		{"not found", &gcp.ControlPlaneError{Kind: gcp.KindNotFound, Operation: gcp.OpStop, StatusCode: 404}, http.StatusNotFound},
		{"unauthorized", &gcp.ControlPlaneError{Kind: gcp.KindUnauthorized, Operation: gcp.OpStop, StatusCode: 403}, http.StatusBadGateway},
		{"malformed", &gcp.ControlPlaneError{Kind: gcp.KindMalformedResponse, Operation: gcp.OpStop}, http.StatusBadGateway},
		{"transport", &gcp.ControlPlaneError{Kind: gcp.KindTransport, Operation: gcp.OpStop, Err: context.DeadlineExceeded}, http.StatusBadGateway},
		{"rejected", &gcp.ControlPlaneError{Kind: gcp.KindRejected, Operation: gcp.OpStop, StatusCode: 409}, http.StatusBadGateway},
		{"unknown", errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &recordingNotifier{}
			s := newTestServer(t, testConfig(), &fakeController{err: tt.err}, notifier)

			rec := serve(s, http.MethodPost, "/instance/stop", validBody)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.err.Error(), decodeError(t, rec))
			assert.Empty(t, notifier.received)
		})
	}
}

func TestFailureNotification(t *testing.T) {
	notifier := &recordingNotifier{}
	cfg := testConfig()
	cfg.Notify.NotifyFailures = true
	cpErr := &gcp.ControlPlaneError{Kind: gcp.KindNotFound, Operation: gcp.OpStop, StatusCode: 404}
	s := newTestServer(t, cfg, &fakeController{err: cpErr}, notifier)

	rec := serve(s, http.MethodPost, "/instance/stop", validBody)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.Len(t, notifier.received, 1)
	assert.False(t, notifier.received[0].Success)
	assert.Equal(t, "Failed to stop vm-1: "+cpErr.Error(), notifier.received[0].Text)
}

func TestNotificationFailureDoesNotChangeResponse(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	s := newTestServer(t, testConfig(), &fakeController{snapshot: &types.InstanceSnapshot{Status: "RUNNING"}}, notifier)

	rec := serve(s, http.MethodPost, "/instance/status", validBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RUNNING", rec.Body.String())
	assert.Len(t, notifier.received, 1)
}

func TestNotificationSurvivesCancelledRequest(t *testing.T) {
	notifier := &recordingNotifier{}
	s := newTestServer(t, testConfig(), &fakeController{}, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/instance/start", strings.NewReader(validBody)).WithContext(ctx)
	cancel()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Len(t, notifier.ctxErrs, 1)
	assert.NoError(t, notifier.ctxErrs[0])
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t, testConfig(), &fakeController{}, nil)

	rec := serve(s, http.MethodGet, "/", "")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig(), &fakeController{snapshot: &types.InstanceSnapshot{Status: "RUNNING"}}, nil)

	serve(s, http.MethodPost, "/instance/status", validBody)
	serve(s, http.MethodPost, "/instance/status", `{}`)

	rec := serve(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `droprealms_http_requests_total{code="200",route="POST /instance/status"} 1`)
	assert.Contains(t, string(body), `droprealms_http_requests_total{code="400",route="POST /instance/status"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	s := newTestServer(t, cfg, &fakeController{}, nil)

	rec := serve(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), &ValidationError{Reason: "bad"})
	assert.Equal(t, http.StatusBadRequest, statusFor(wrapped))
	assert.Equal(t, "invalid JSON payload: EOF", (&ValidationError{Reason: "invalid JSON payload", Err: io.EOF}).Error())
}
