package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Fleet/internal/catalog"
	"github.com/shaiso/Fleet/internal/domain"
	"github.com/shaiso/Fleet/internal/repo"
	"github.com/shaiso/Fleet/internal/state"
	"github.com/shaiso/Fleet/internal/telemetry"
)

type fakeExecutions map[string]*domain.Execution

func (f fakeExecutions) GetByID(_ context.Context, id string) (*domain.Execution, error) {
	exec, ok := f[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return exec, nil
}

// reloadable — каталог с заданным результатом Reload.
type reloadable struct {
	*catalog.Catalog
	err error
}

func (r reloadable) Reload() error { return r.err }

type brokenDevices struct{}

func (brokenDevices) GetDeviceState(context.Context, string) (*domain.DeviceRuntimeState, error) {
	return nil, errors.New("redis down")
}

func (brokenDevices) ErrorCount(context.Context, string) (int, error) { return 0, nil }

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Workflows == nil {
		c, err := catalog.FromDefinitions(&domain.WorkflowDefinition{
			ID:        "reboot",
			Name:      "Reboot",
			TimeoutMs: 60000,
			Steps:     []domain.Step{{ID: "reboot", Action: domain.ActionShell}},
		})
		require.NoError(t, err)
		cfg.Workflows = reloadable{Catalog: c}
	}
	if cfg.Devices == nil {
		cfg.Devices = state.NewMemoryStore()
	}
	cfg.Logger = telemetry.Discard()

	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Config{NodeID: "node-1"})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "node-1", resp.Header.Get("X-Node-ID"))
}

func TestListWorkflows(t *testing.T) {
	srv := newTestServer(t, Config{})

	var body struct {
		Data  []WorkflowSummary `json:"data"`
		Total int               `json:"total"`
	}
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/api/v1/workflows", &body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, []WorkflowSummary{{ID: "reboot", Name: "Reboot", Steps: 1, TimeoutMs: 60000}}, body.Data)
}

func TestGetWorkflow(t *testing.T) {
	srv := newTestServer(t, Config{})

	var body struct {
		Data domain.WorkflowDefinition `json:"data"`
	}
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/api/v1/workflows/reboot", &body))
	assert.Equal(t, "reboot", body.Data.ID)

	var errBody ErrorResponse
	require.Equal(t, http.StatusNotFound, get(t, srv.URL+"/api/v1/workflows/missing", &errBody))
	assert.Equal(t, ErrCodeNotFound, errBody.Code)
	assert.Equal(t, "workflow not found", errBody.Error)
}

func TestReloadWorkflows(t *testing.T) {
	c, err := catalog.FromDefinitions()
	require.NoError(t, err)

	srv := newTestServer(t, Config{Workflows: reloadable{Catalog: c, err: errors.New("bad.yaml: unknown action")}})

	resp, err := http.Post(srv.URL+"/api/v1/workflows/reload", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var errBody ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, ErrCodeInvalidState, errBody.Code)
	assert.Contains(t, errBody.Error, "unknown action")
}

func TestGetExecution(t *testing.T) {
	srv := newTestServer(t, Config{Executions: fakeExecutions{
		"e1": {ID: "e1", WorkflowID: "reboot", Status: domain.ExecutionRunning, Progress: 50},
	}})

	var body struct {
		Data domain.Execution `json:"data"`
	}
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/api/v1/executions/e1", &body))
	assert.Equal(t, domain.ExecutionRunning, body.Data.Status)
	assert.Equal(t, 50, body.Data.Progress)

	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/api/v1/executions/e2", nil))
}

func TestGetDevice(t *testing.T) {
	store := state.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SetDeviceState(ctx, domain.DeviceRuntimeState{DeviceID: "d1", State: domain.DeviceError}))
	_, err := store.IncrementErrorCount(ctx, "d1")
	require.NoError(t, err)

	srv := newTestServer(t, Config{Devices: store})

	var body struct {
		Data DeviceResponse `json:"data"`
	}
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/api/v1/devices/d1", &body))
	assert.Equal(t, domain.DeviceError, body.Data.State)
	assert.Equal(t, 1, body.Data.ConsecutiveErrors)

	require.Equal(t, http.StatusOK, get(t, srv.URL+"/api/v1/devices/d2", &body))
	assert.Equal(t, domain.DeviceIdle, body.Data.State)
	assert.Zero(t, body.Data.ConsecutiveErrors)
}

func TestGetDevice_StoreError(t *testing.T) {
	srv := newTestServer(t, Config{Devices: brokenDevices{}})

	var errBody ErrorResponse
	require.Equal(t, http.StatusInternalServerError, get(t, srv.URL+"/api/v1/devices/d1", &errBody))
	assert.Equal(t, ErrCodeInternalError, errBody.Code)
	assert.Equal(t, "internal server error", errBody.Error)
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t, Config{})

	resp, err := http.Get(srv.URL + "/api/v1/workflows")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/workflows", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "req-42")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get(HeaderRequestID))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   ErrorCode
	}{
		{fmt.Errorf("get: %w", repo.ErrNotFound), http.StatusNotFound, ErrCodeNotFound},
		{state.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("%w: x", catalog.ErrWorkflowNotFound), http.StatusNotFound, ErrCodeNotFound},
		{repo.ErrInvalidState, http.StatusUnprocessableEntity, ErrCodeInvalidState},
		{errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		status, code := classify(tt.err)
		assert.Equal(t, tt.wantStatus, status, tt.err.Error())
		assert.Equal(t, tt.wantCode, code, tt.err.Error())
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(telemetry.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
