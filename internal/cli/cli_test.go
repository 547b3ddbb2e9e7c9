package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Fleet/internal/domain"
	"github.com/shaiso/Fleet/internal/repo"
	"github.com/shaiso/Fleet/internal/state"
)

type fakeJobs struct {
	execs map[string]*domain.Execution
}

func (f *fakeJobs) Create(_ context.Context, req domain.JobRequest) (*domain.Execution, error) {
	exec := &domain.Execution{
		ID:         req.ExecutionID,
		WorkflowID: req.WorkflowID,
		DeviceIDs:  req.DeviceIDs,
		Params:     req.Params,
		Status:     domain.ExecutionQueued,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	f.execs[exec.ID] = exec
	return exec, nil
}

func (f *fakeJobs) GetByID(_ context.Context, id string) (*domain.Execution, error) {
	exec, ok := f.execs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return exec, nil
}

func (f *fakeJobs) Cancel(_ context.Context, id string) error {
	exec, ok := f.execs[id]
	if !ok {
		return repo.ErrNotFound
	}
	if exec.Status.IsTerminal() {
		return repo.ErrInvalidState
	}
	exec.Status = domain.ExecutionCancelled
	return nil
}

type fakeQueue struct {
	published []domain.JobRequest
	err       error
}

func (q *fakeQueue) PublishJobExecute(_ context.Context, req domain.JobRequest) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, req)
	return nil
}

type fakeBackend struct {
	jobs    *fakeJobs
	queue   *fakeQueue
	devices *state.MemoryStore
	dir     string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		jobs:    &fakeJobs{execs: map[string]*domain.Execution{}},
		queue:   &fakeQueue{},
		devices: state.NewMemoryStore(),
	}
}

func (b *fakeBackend) Jobs(context.Context) (JobService, error)     { return b.jobs, nil }
func (b *fakeBackend) Queue(context.Context) (JobQueue, error)      { return b.queue, nil }
func (b *fakeBackend) Devices(context.Context) (DeviceStore, error) { return b.devices, nil }
func (b *fakeBackend) WorkflowsDir() string                         { return b.dir }
func (b *fakeBackend) Close() error                                 { return nil }

// run выполняет команду и возвращает stdout и stderr.
func run(t *testing.T, b Backend, jsonMode bool, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	root := &cobra.Command{Use: "fleet", SilenceUsage: true, SilenceErrors: true}
	backendFn := func() Backend { return b }
	outputFn := func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) }
	root.AddCommand(
		NewJobCmd(backendFn, outputFn),
		NewDeviceCmd(backendFn, outputFn),
		NewNodeCmd(backendFn, outputFn),
		NewWorkflowCmd(backendFn, outputFn),
	)
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestJobSubmit(t *testing.T) {
	b := newFakeBackend()

	stdout, stderr, err := run(t, b, true,
		"job", "submit",
		"--workflow", "play-media",
		"--device", "d1", "--device", "d2",
		"--param", "app=youtube", "--param", "volume=7", "--param", "muted=true",
	)
	require.NoError(t, err)

	require.Len(t, b.queue.published, 1)
	req := b.queue.published[0]
	assert.Equal(t, "play-media", req.WorkflowID)
	assert.Equal(t, []string{"d1", "d2"}, req.DeviceIDs)
	assert.Equal(t, map[string]any{"app": "youtube", "volume": 7, "muted": true}, req.Params)
	assert.Contains(t, b.jobs.execs, req.ExecutionID)
	assert.Contains(t, stderr, "Job submitted: "+req.ExecutionID)

	var exec domain.Execution
	require.NoError(t, json.Unmarshal([]byte(stdout), &exec))
	assert.Equal(t, domain.ExecutionQueued, exec.Status)
}

func TestJobSubmit_PublishFailureKeepsRecord(t *testing.T) {
	b := newFakeBackend()
	b.queue.err = errors.New("connection refused")

	_, stderr, err := run(t, b, false, "job", "submit", "--workflow", "reboot", "--device", "d1")
	require.NoError(t, err)

	assert.Len(t, b.jobs.execs, 1)
	assert.Contains(t, stderr, "Warning: job.execute not published")
}

func TestJobSubmit_RequiresWorkflow(t *testing.T) {
	_, _, err := run(t, newFakeBackend(), false, "job", "submit", "--device", "d1")
	assert.Error(t, err)
}

func TestJobShow(t *testing.T) {
	b := newFakeBackend()
	b.jobs.execs["e1"] = &domain.Execution{
		ID:         "e1",
		WorkflowID: "play-media",
		DeviceIDs:  []string{"d1", "d2"},
		Status:     domain.ExecutionCompletedWithErrors,
		Progress:   100,
		NodeID:     "node-1",
		Result: &domain.JobExecutionResult{
			Status:    domain.JobCompletedWithErrors,
			Succeeded: []string{"d1"},
			Failed:    []domain.DeviceFailure{{DeviceID: "d2", Error: "actuator failed"}},
		},
	}

	stdout, _, err := run(t, b, false, "job", "show", "e1")
	require.NoError(t, err)

	assert.Contains(t, stdout, "COMPLETED_WITH_ERRORS")
	assert.Contains(t, stdout, "100%")
	assert.Contains(t, stdout, "node-1")
	assert.Contains(t, stdout, "FAILED_DEVICE")
	assert.Contains(t, stdout, "actuator failed")
}

func TestJobShow_NotFound(t *testing.T) {
	_, _, err := run(t, newFakeBackend(), false, "job", "show", "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestJobCancel(t *testing.T) {
	b := newFakeBackend()
	b.jobs.execs["e1"] = &domain.Execution{ID: "e1", Status: domain.ExecutionRunning}
	b.jobs.execs["e2"] = &domain.Execution{ID: "e2", Status: domain.ExecutionCompleted}

	_, stderr, err := run(t, b, false, "job", "cancel", "e1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCancelled, b.jobs.execs["e1"].Status)
	assert.Contains(t, stderr, "Job cancelled: e1")

	_, _, err = run(t, b, false, "job", "cancel", "e2")
	assert.ErrorIs(t, err, repo.ErrInvalidState)
}

func TestDeviceShowAndClear(t *testing.T) {
	b := newFakeBackend()
	ctx := context.Background()
	require.NoError(t, b.devices.SetDeviceState(ctx, domain.DeviceRuntimeState{
		DeviceID:     "d1",
		State:        domain.DeviceQuarantined,
		ErrorCount:   3,
		ErrorMessage: "actuator failed",
	}))
	for i := 0; i < 3; i++ {
		_, err := b.devices.IncrementErrorCount(ctx, "d1")
		require.NoError(t, err)
	}

	stdout, _, err := run(t, b, true, "device", "show", "d1")
	require.NoError(t, err)

	var view deviceView
	require.NoError(t, json.Unmarshal([]byte(stdout), &view))
	assert.Equal(t, domain.DeviceQuarantined, view.State)
	assert.Equal(t, 3, view.ConsecutiveErrors)

	_, _, err = run(t, b, false, "device", "clear", "d1")
	require.NoError(t, err)

	st, err := b.devices.GetDeviceState(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceIdle, st.State)
	count, err := b.devices.ErrorCount(ctx, "d1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeviceShow_Unknown(t *testing.T) {
	stdout, _, err := run(t, newFakeBackend(), false, "device", "show", "d9")
	require.NoError(t, err)
	assert.Contains(t, stdout, "idle")
}

func TestNodeShow(t *testing.T) {
	b := newFakeBackend()
	require.NoError(t, b.devices.SetNodeStatus(context.Background(), domain.NodeStatus{
		NodeID:      "node-1",
		Status:      domain.NodeStatusBusy,
		ExecutionID: "e1",
	}, time.Minute))

	stdout, _, err := run(t, b, false, "node", "show", "node-1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "busy")
	assert.Contains(t, stdout, "e1")

	_, _, err = run(t, b, false, "node", "show", "node-2")
	assert.Error(t, err)
}

const validWorkflow = `
id: reboot
name: Reboot
steps:
  - id: reboot
    action: shell
    params: {command: reboot}
`

const danglingGoto = `
id: branch
steps:
  - id: check
    action: condition
    params: {expression: "params.ok", assert: true}
    onError: goto
    nextOnError: missing
`

func TestWorkflowValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "reboot.yaml")
	warn := filepath.Join(dir, "branch.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(good, []byte(validWorkflow), 0o644))
	require.NoError(t, os.WriteFile(warn, []byte(danglingGoto), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("id: bad\nsteps: []\n"), 0o644))

	stdout, _, err := run(t, newFakeBackend(), true, "workflow", "validate", good, warn)
	require.NoError(t, err)

	var reports []validationReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &reports))
	require.Len(t, reports, 2)
	assert.True(t, reports[0].Valid)
	assert.Empty(t, reports[0].Warnings)
	assert.True(t, reports[1].Valid)
	assert.NotEmpty(t, reports[1].Warnings)

	stdout, _, err = run(t, newFakeBackend(), false, "workflow", "validate", good, bad)
	assert.ErrorIs(t, err, ErrInvalidWorkflows)
	assert.Contains(t, stdout, "invalid")
}

func TestWorkflowList(t *testing.T) {
	b := newFakeBackend()
	b.dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(b.dir, "reboot.yaml"), []byte(validWorkflow), 0o644))

	stdout, _, err := run(t, b, false, "workflow", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "reboot")
	assert.Contains(t, stdout, "Reboot")
}

func TestParseParams(t *testing.T) {
	params, err := ParseParams([]string{"a=1", "b=x=y", "c=", "d=[1, 2]"})
	require.NoError(t, err)
	assert.Equal(t, 1, params["a"])
	assert.Equal(t, "x=y", params["b"])
	assert.Equal(t, "", params["c"])
	assert.Equal(t, []any{1, 2}, params["d"])

	_, err = ParseParams([]string{"novalue"})
	assert.Error(t, err)

	params, err = ParseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)
}
