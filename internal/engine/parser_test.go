package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Fleet/internal/domain"
)

func validWorkflow() *domain.WorkflowDefinition {
	return &domain.WorkflowDefinition{
		ID: "play-media",
		Steps: []domain.Step{
			{ID: "open", Action: domain.ActionScript, Params: map[string]any{"script": "open-app"}},
			{ID: "pause", Action: domain.ActionWait, Params: map[string]any{"duration": 500}},
			{ID: "done", Action: domain.ActionSystem, Params: map[string]any{"name": "mark-complete"}},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(validWorkflow()))
}

func TestValidate_EmptySteps(t *testing.T) {
	tests := []struct {
		name string
		wf   *domain.WorkflowDefinition
	}{
		{name: "empty steps", wf: &domain.WorkflowDefinition{ID: "wf", Steps: []domain.Step{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(tt.wf), ErrEmptySteps)
		})
	}
}

func TestValidate_NilWorkflow(t *testing.T) {
	err := Validate(nil)

	assert.ErrorIs(t, err, ErrNilWorkflow)
	assert.NotErrorIs(t, err, ErrEmptySteps)
}

func TestValidate_NegativeTimeout(t *testing.T) {
	wf := validWorkflow()
	wf.TimeoutMs = -1

	err := Validate(wf)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.ErrorIs(t, err, ErrInvalidTimeout)
	assert.NotErrorIs(t, err, ErrInvalidRetry)
	assert.Equal(t, "timeoutMs", vErr.Field)
}

func TestValidate_EmptyWorkflowID(t *testing.T) {
	wf := validWorkflow()
	wf.ID = ""

	assert.ErrorIs(t, Validate(wf), ErrEmptyWorkflowID)
}

func TestValidate_StepErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(wf *domain.WorkflowDefinition)
		want   error
		field  string
	}{
		{
			name:   "empty step id",
			mutate: func(wf *domain.WorkflowDefinition) { wf.Steps[1].ID = "" },
			want:   ErrEmptyStepID,
			field:  "id",
		},
		{
			name:   "duplicate step id",
			mutate: func(wf *domain.WorkflowDefinition) { wf.Steps[2].ID = "open" },
			want:   ErrDuplicateStepID,
			field:  "id",
		},
		{
			name:   "unknown action",
			mutate: func(wf *domain.WorkflowDefinition) { wf.Steps[0].Action = "teleport" },
			want:   ErrUnknownAction,
			field:  "action",
		},
		{
			name:   "negative attempts",
			mutate: func(wf *domain.WorkflowDefinition) { wf.Steps[0].Retry.Attempts = -1 },
			want:   ErrInvalidRetry,
			field:  "retry.attempts",
		},
		{
			name:   "unknown backoff",
			mutate: func(wf *domain.WorkflowDefinition) { wf.Steps[0].Retry.Backoff = "linear" },
			want:   ErrInvalidRetry,
			field:  "retry.backoff",
		},
		{
			name:   "negative step timeout",
			mutate: func(wf *domain.WorkflowDefinition) { wf.Steps[0].TimeoutMs = -5 },
			want:   ErrInvalidTimeout,
			field:  "timeoutMs",
		},
		{
			name:   "unknown error policy",
			mutate: func(wf *domain.WorkflowDefinition) { wf.Steps[0].OnError = "ignore" },
			want:   ErrInvalidErrorPolicy,
			field:  "onError",
		},
		{
			name:   "goto without target",
			mutate: func(wf *domain.WorkflowDefinition) { wf.Steps[0].OnError = domain.ErrorPolicyGoto },
			want:   ErrMissingNextOnError,
			field:  "nextOnError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := validWorkflow()
			tt.mutate(wf)

			err := Validate(wf)
			require.Error(t, err)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "expected ValidationError, got %T", err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestValidate_DanglingGotoIsAllowed(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[0].OnError = domain.ErrorPolicyGoto
	wf.Steps[0].NextOnError = "missing"

	assert.NoError(t, Validate(wf))
}

func TestLint(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[0].OnError = domain.ErrorPolicyGoto
	wf.Steps[0].NextOnError = "missing"
	wf.Steps[1].NextOnError = "done"

	warnings := Lint(wf)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], `goto target "missing" not found`)
	assert.Contains(t, warnings[1], "nextOnError is set")
}

func TestLint_Clean(t *testing.T) {
	assert.Empty(t, Lint(validWorkflow()))
	assert.Nil(t, Lint(nil))
}
