package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Fleet/internal/domain"
	"github.com/shaiso/Fleet/internal/telemetry"
)

var errActuator = errors.New("actuator failed")

// scriptedExecutor возвращает заранее заданные ошибки по ID шага:
// i-я попытка шага получает failures[stepID][i], если он есть.
type scriptedExecutor struct {
	mu       sync.Mutex
	failures map[string][]error
	calls    []string
	params   map[string]map[string]any
	block    map[string]bool
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		failures: make(map[string][]error),
		params:   make(map[string]map[string]any),
		block:    make(map[string]bool),
	}
}

func (e *scriptedExecutor) Execute(ctx context.Context, ec *domain.ExecutionContext, step *domain.Step, params map[string]any) (any, error) {
	e.mu.Lock()
	attempt := 0
	for _, c := range e.calls {
		if c == step.ID {
			attempt++
		}
	}
	e.calls = append(e.calls, step.ID)
	e.params[step.ID] = params
	block := e.block[step.ID]
	var err error
	if errs := e.failures[step.ID]; attempt < len(errs) {
		err = errs[attempt]
	}
	e.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("%s-result", step.ID), nil
}

func (e *scriptedExecutor) callCount(stepID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == stepID {
			n++
		}
	}
	return n
}

// recordingObserver запоминает события шагов.
type recordingObserver struct {
	started   []string
	succeeded []string
}

func (o *recordingObserver) StepStarted(_ context.Context, _ *domain.ExecutionContext, step *domain.Step) {
	o.started = append(o.started, step.ID)
}

func (o *recordingObserver) StepSucceeded(_ context.Context, _ *domain.ExecutionContext, step *domain.Step) {
	o.succeeded = append(o.succeeded, step.ID)
}

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newTestSequencer(exec Executor, obs StepObserver, rec *sleepRecorder) *Sequencer {
	return NewSequencer(SequencerConfig{
		Executor: exec,
		Observer: obs,
		Sleep:    rec.sleep,
		Logger:   telemetry.Discard(),
	})
}

func threeStepWorkflow() *domain.WorkflowDefinition {
	return &domain.WorkflowDefinition{
		ID: "wf",
		Steps: []domain.Step{
			{ID: "s1", Action: domain.ActionScript},
			{ID: "s2", Action: domain.ActionScript},
			{ID: "s3", Action: domain.ActionScript},
		},
	}
}

func TestSequencer_AllStepsSucceed(t *testing.T) {
	exec := newScriptedExecutor()
	obs := &recordingObserver{}
	rec := &sleepRecorder{}
	ec := domain.NewExecutionContext("exec-1", "dev-1", threeStepWorkflow(), nil)

	err := newTestSequencer(exec, obs, rec).Run(context.Background(), ec)
	require.NoError(t, err)

	assert.Equal(t, 3, ec.CurrentStepIndex)
	assert.Equal(t, []string{"s1", "s2", "s3"}, obs.started)
	assert.Equal(t, []string{"s1", "s2", "s3"}, obs.succeeded)
	assert.Equal(t, "s2-result", ec.Variables["s2"])
	assert.Empty(t, rec.delays)
}

func TestSequencer_RetryExponentialThenSucceed(t *testing.T) {
	wf := threeStepWorkflow()
	wf.Steps[1].Retry = domain.RetryPolicy{Attempts: 3, DelayMs: 100, Backoff: domain.BackoffExponential}

	exec := newScriptedExecutor()
	exec.failures["s2"] = []error{errActuator, errActuator}
	rec := &sleepRecorder{}
	ec := domain.NewExecutionContext("exec-1", "dev-1", wf, nil)

	err := newTestSequencer(exec, nil, rec).Run(context.Background(), ec)
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.delays)
	assert.Equal(t, 3, exec.callCount("s2"))
	assert.Equal(t, "s2-result", ec.Variables["s2"])
}

func TestSequencer_FailPolicyExhausted(t *testing.T) {
	wf := threeStepWorkflow()
	wf.Steps[1].Retry = domain.RetryPolicy{Attempts: 2, DelayMs: 50}
	wf.Steps[1].OnError = domain.ErrorPolicyFail

	exec := newScriptedExecutor()
	exec.failures["s2"] = []error{errActuator, errActuator}
	rec := &sleepRecorder{}
	ec := domain.NewExecutionContext("exec-1", "dev-1", wf, nil)

	err := newTestSequencer(exec, nil, rec).Run(context.Background(), ec)
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "s2", stepErr.StepID)
	assert.Equal(t, 2, stepErr.Attempts)
	assert.ErrorIs(t, err, errActuator)
	assert.Equal(t, 1, ec.CurrentStepIndex)
	assert.Zero(t, exec.callCount("s3"))
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, rec.delays)
}

func TestSequencer_SkipPolicy(t *testing.T) {
	wf := threeStepWorkflow()
	wf.Steps[1].OnError = domain.ErrorPolicySkip

	exec := newScriptedExecutor()
	exec.failures["s2"] = []error{errActuator}
	obs := &recordingObserver{}
	ec := domain.NewExecutionContext("exec-1", "dev-1", wf, nil)

	err := newTestSequencer(exec, obs, &sleepRecorder{}).Run(context.Background(), ec)
	require.NoError(t, err)

	_, recorded := ec.Variables["s2"]
	assert.False(t, recorded, "skipped step must not record a variable")
	assert.Equal(t, []string{"s1", "s3"}, obs.succeeded)
	assert.Equal(t, 1, exec.callCount("s3"))
}

func TestSequencer_GotoPolicy(t *testing.T) {
	wf := &domain.WorkflowDefinition{
		ID: "wf",
		Steps: []domain.Step{
			{ID: "check", Action: domain.ActionCondition, OnError: domain.ErrorPolicyGoto, NextOnError: "fallback"},
			{ID: "main", Action: domain.ActionScript},
			{ID: "fallback", Action: domain.ActionScript},
		},
	}

	exec := newScriptedExecutor()
	exec.failures["check"] = []error{errActuator}
	ec := domain.NewExecutionContext("exec-1", "dev-1", wf, nil)

	err := newTestSequencer(exec, nil, &sleepRecorder{}).Run(context.Background(), ec)
	require.NoError(t, err)

	assert.Zero(t, exec.callCount("main"))
	assert.Equal(t, 1, exec.callCount("fallback"))
}

func TestSequencer_GotoTargetMissing(t *testing.T) {
	wf := threeStepWorkflow()
	wf.Steps[0].Retry = domain.RetryPolicy{Attempts: 3, DelayMs: 10}
	wf.Steps[0].OnError = domain.ErrorPolicyGoto
	wf.Steps[0].NextOnError = "nowhere"

	exec := newScriptedExecutor()
	exec.failures["s1"] = []error{errActuator, errActuator, errActuator}
	ec := domain.NewExecutionContext("exec-1", "dev-1", wf, nil)

	err := newTestSequencer(exec, nil, &sleepRecorder{}).Run(context.Background(), ec)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrGotoTargetNotFound)
	assert.True(t, IsConfigurationError(err))
}

func TestSequencer_ConfigurationErrorNotRetried(t *testing.T) {
	wf := threeStepWorkflow()
	wf.Steps[0].Retry = domain.RetryPolicy{Attempts: 5}
	wf.Steps[0].OnError = domain.ErrorPolicySkip

	cfgErr := fmt.Errorf("%w: unknown system action", domain.ErrConfiguration)
	exec := newScriptedExecutor()
	exec.failures["s1"] = []error{cfgErr}
	rec := &sleepRecorder{}
	ec := domain.NewExecutionContext("exec-1", "dev-1", wf, nil)

	err := newTestSequencer(exec, nil, rec).Run(context.Background(), ec)
	require.Error(t, err)

	assert.True(t, IsConfigurationError(err))
	assert.Equal(t, 1, exec.callCount("s1"))
	assert.Empty(t, rec.delays)
	assert.Zero(t, exec.callCount("s2"), "skip policy must not apply to configuration errors")
}

func TestSequencer_TransitionLimit(t *testing.T) {
	wf := &domain.WorkflowDefinition{
		ID: "loop",
		Steps: []domain.Step{
			{ID: "a", Action: domain.ActionScript, OnError: domain.ErrorPolicyGoto, NextOnError: "a"},
		},
	}

	exec := newScriptedExecutor()
	failures := make([]error, 100)
	for i := range failures {
		failures[i] = errActuator
	}
	exec.failures["a"] = failures
	ec := domain.NewExecutionContext("exec-1", "dev-1", wf, nil)

	seq := NewSequencer(SequencerConfig{
		Executor:       exec,
		MaxTransitions: 10,
		Sleep:          (&sleepRecorder{}).sleep,
		Logger:         telemetry.Discard(),
	})

	err := seq.Run(context.Background(), ec)
	require.ErrorIs(t, err, ErrTransitionLimit)
	assert.Equal(t, 10, exec.callCount("a"))
}

func TestSequencer_ResolvesParams(t *testing.T) {
	wf := &domain.WorkflowDefinition{
		ID: "wf",
		Steps: []domain.Step{
			{ID: "open", Action: domain.ActionScript},
			{ID: "search", Action: domain.ActionScript, Params: map[string]any{
				"query":  "$term",
				"prev":   "$open",
				"absent": "$UNKNOWN_VAR",
			}},
		},
	}

	exec := newScriptedExecutor()
	ec := domain.NewExecutionContext("exec-1", "dev-1", wf, map[string]any{"term": "cats"})

	require.NoError(t, newTestSequencer(exec, nil, &sleepRecorder{}).Run(context.Background(), ec))

	got := exec.params["search"]
	assert.Equal(t, "cats", got["query"])
	assert.Equal(t, "open-result", got["prev"])
	assert.Equal(t, "$UNKNOWN_VAR", got["absent"])
}

func TestSequencer_StepTimeout(t *testing.T) {
	wf := threeStepWorkflow()
	wf.Steps[0].TimeoutMs = 10

	exec := newScriptedExecutor()
	exec.block["s1"] = true
	ec := domain.NewExecutionContext("exec-1", "dev-1", wf, nil)

	err := newTestSequencer(exec, nil, &sleepRecorder{}).Run(context.Background(), ec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStepTimeout)
}

func TestSequencer_CancelledContextStopsRetries(t *testing.T) {
	wf := threeStepWorkflow()
	wf.Steps[0].Retry = domain.RetryPolicy{Attempts: 3, DelayMs: 10}
	wf.Steps[0].OnError = domain.ErrorPolicySkip

	exec := newScriptedExecutor()
	exec.failures["s1"] = []error{errActuator, errActuator, errActuator}
	ec := domain.NewExecutionContext("exec-1", "dev-1", wf, nil)

	ctx, cancel := context.WithCancel(context.Background())
	seq := NewSequencer(SequencerConfig{
		Executor: exec,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
		Logger: telemetry.Discard(),
	})

	err := seq.Run(ctx, ec)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, exec.callCount("s1"))
	assert.Zero(t, exec.callCount("s2"))
}

func TestSequencer_NilWorkflow(t *testing.T) {
	ec := &domain.ExecutionContext{ExecutionID: "e", DeviceID: "d", Variables: map[string]any{}}

	err := newTestSequencer(newScriptedExecutor(), nil, &sleepRecorder{}).Run(context.Background(), ec)
	assert.True(t, IsConfigurationError(err))
}
