package action

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Fleet/internal/domain"
	"github.com/shaiso/Fleet/internal/telemetry"
)

// fakeActuator запоминает вызовы и возвращает заданный результат.
type fakeActuator struct {
	deviceID string
	payload  map[string]any
	timeout  time.Duration
	result   map[string]any
	err      error
}

func (a *fakeActuator) Invoke(_ context.Context, deviceID string, payload map[string]any, timeout time.Duration) (map[string]any, error) {
	a.deviceID = deviceID
	a.payload = payload
	a.timeout = timeout
	return a.result, a.err
}

func testContext() *domain.ExecutionContext {
	wf := &domain.WorkflowDefinition{ID: "wf-1", Steps: []domain.Step{{ID: "s1"}}}
	ec := domain.NewExecutionContext("exec-1", "dev-1", wf, map[string]any{"channel": "news", "volume": 7})
	ec.Variables["open"] = map[string]any{"success": true}
	return ec
}

func newTestDispatcher(scripts, shell Actuator) (*Dispatcher, *[]time.Duration) {
	var slept []time.Duration
	d := NewDispatcher(Config{
		Scripts:         scripts,
		Shell:           shell,
		ActuatorTimeout: 5 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
		Now:    func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
		Logger: telemetry.Discard(),
	})
	return d, &slept
}

func TestDispatcher_Script(t *testing.T) {
	scripts := &fakeActuator{result: map[string]any{"ok": true}}
	d, _ := newTestDispatcher(scripts, nil)

	step := &domain.Step{ID: "open", Action: domain.ActionScript, TimeoutMs: 1500}
	out, err := d.Execute(context.Background(), testContext(), step, map[string]any{
		"script": "open-app",
		"params": map[string]any{"app": "tv"},
	})
	require.NoError(t, err)

	assert.Equal(t, "dev-1", scripts.deviceID)
	assert.Equal(t, 1500*time.Millisecond, scripts.timeout)
	assert.Equal(t, "open-app", scripts.payload["script"])

	result := out.(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "open-app", result["script"])
	assert.Equal(t, map[string]any{"app": "tv"}, result["params"])
}

func TestDispatcher_ScriptMissingField(t *testing.T) {
	d, _ := newTestDispatcher(&fakeActuator{}, nil)

	step := &domain.Step{ID: "open", Action: domain.ActionScript}
	_, err := d.Execute(context.Background(), testContext(), step, map[string]any{})

	assert.ErrorIs(t, err, ErrMissingField)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestDispatcher_ShellActuatorError(t *testing.T) {
	shell := &fakeActuator{err: errors.New("device offline")}
	d, _ := newTestDispatcher(nil, shell)

	step := &domain.Step{ID: "ls", Action: domain.ActionShell}
	_, err := d.Execute(context.Background(), testContext(), step, map[string]any{"command": "ls"})

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrConfiguration)
	assert.Equal(t, 5*time.Second, shell.timeout)
}

func TestDispatcher_NoActuator(t *testing.T) {
	d, _ := newTestDispatcher(nil, nil)

	step := &domain.Step{ID: "ls", Action: domain.ActionShell}
	_, err := d.Execute(context.Background(), testContext(), step, map[string]any{"command": "ls"})

	assert.ErrorIs(t, err, ErrNoActuator)
}

func TestDispatcher_Wait(t *testing.T) {
	tests := []struct {
		name     string
		duration any
		want     time.Duration
	}{
		{name: "int", duration: 250, want: 250 * time.Millisecond},
		{name: "float", duration: 1500.0, want: 1500 * time.Millisecond},
		{name: "numeric string", duration: "300", want: 300 * time.Millisecond},
		{name: "missing", duration: nil, want: time.Second},
		{name: "invalid string", duration: "soon", want: time.Second},
		{name: "negative", duration: -5, want: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, slept := newTestDispatcher(nil, nil)

			params := map[string]any{}
			if tt.duration != nil {
				params["duration"] = tt.duration
			}

			step := &domain.Step{ID: "pause", Action: domain.ActionWait}
			_, err := d.Execute(context.Background(), testContext(), step, params)
			require.NoError(t, err)
			assert.Equal(t, []time.Duration{tt.want}, *slept)
		})
	}
}

func TestDispatcher_SystemMarkComplete(t *testing.T) {
	d, _ := newTestDispatcher(nil, nil)

	step := &domain.Step{ID: "done", Action: domain.ActionSystem}
	out, err := d.Execute(context.Background(), testContext(), step, map[string]any{"name": SystemMarkComplete})
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, true, result["completed"])
	assert.Equal(t, "2026-01-02T03:04:05Z", result["completedAt"])
}

func TestDispatcher_SystemLog(t *testing.T) {
	d, _ := newTestDispatcher(nil, nil)

	step := &domain.Step{ID: "note", Action: domain.ActionSystem}
	out, err := d.Execute(context.Background(), testContext(), step, map[string]any{"name": SystemLog, "message": "hello"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"logged": true}, out)
}

func TestDispatcher_SystemUnknown(t *testing.T) {
	d, _ := newTestDispatcher(nil, nil)

	step := &domain.Step{ID: "x", Action: domain.ActionSystem}
	_, err := d.Execute(context.Background(), testContext(), step, map[string]any{"name": "reboot-universe"})

	assert.ErrorIs(t, err, ErrUnknownSystemAction)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestDispatcher_UnknownAction(t *testing.T) {
	d, _ := newTestDispatcher(nil, nil)

	step := &domain.Step{ID: "x", Action: "teleport"}
	_, err := d.Execute(context.Background(), testContext(), step, map[string]any{})

	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestDispatcher_Condition(t *testing.T) {
	d, _ := newTestDispatcher(nil, nil)
	step := &domain.Step{ID: "check", Action: domain.ActionCondition}

	out, err := d.Execute(context.Background(), testContext(), step, map[string]any{
		"expression": `params.channel == "news" && vars.open.success == true && deviceId == "dev-1"`,
	})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = d.Execute(context.Background(), testContext(), step, map[string]any{
		"expression": `params.volume > 10`,
	})
	require.NoError(t, err)
	assert.Equal(t, false, out)
}

func TestDispatcher_ConditionAssert(t *testing.T) {
	d, _ := newTestDispatcher(nil, nil)
	step := &domain.Step{ID: "check", Action: domain.ActionCondition}

	_, err := d.Execute(context.Background(), testContext(), step, map[string]any{
		"expression": `workflowId == "other"`,
		"assert":     true,
	})

	assert.ErrorIs(t, err, ErrConditionFalse)
	assert.NotErrorIs(t, err, domain.ErrConfiguration)
}

func TestDispatcher_ConditionInvalidExpression(t *testing.T) {
	d, _ := newTestDispatcher(nil, nil)
	step := &domain.Step{ID: "check", Action: domain.ActionCondition}

	_, err := d.Execute(context.Background(), testContext(), step, map[string]any{
		"expression": `params.volume >`,
	})

	assert.ErrorIs(t, err, ErrInvalidExpression)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestConditions_CachesPrograms(t *testing.T) {
	c := NewConditions()
	env := Env(testContext())

	_, err := c.Evaluate(`stepIndex == 0`, env)
	require.NoError(t, err)
	_, err = c.Evaluate(`stepIndex == 0`, env)
	require.NoError(t, err)

	assert.Len(t, c.cache, 1)
}

func TestDecode_InvalidFieldType(t *testing.T) {
	_, err := Decode(domain.ActionShell, map[string]any{"command": 42})
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = Decode(domain.ActionCondition, map[string]any{"expression": "true", "assert": "yes"})
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestSystemActions(t *testing.T) {
	assert.Equal(t, []string{SystemLog, SystemMarkComplete}, SystemActions())
}
