package engine

import (
	"fmt"

	"github.com/shaiso/Fleet/internal/domain"
)

// Validate выполняет структурную валидацию WorkflowDefinition.
//
// Проверяет:
// - Наличие ID и шагов
// - Уникальность ID шагов
// - Корректность типа действия
// - Корректность политики повторов и политики ошибок
// - Наличие nextOnError для goto
//
// Существование цели goto не проверяется: это ошибка времени выполнения
// (см. Lint).
func Validate(wf *domain.WorkflowDefinition) error {
	if wf == nil {
		return ErrNilWorkflow
	}

	if wf.ID == "" {
		return NewValidationError("", "id", "workflow has empty ID", ErrEmptyWorkflowID)
	}

	if len(wf.Steps) == 0 {
		return ErrEmptySteps
	}

	if wf.TimeoutMs < 0 {
		return NewValidationError("", "timeoutMs", "negative workflow timeout", ErrInvalidTimeout)
	}

	stepIDs := make(map[string]bool, len(wf.Steps))
	for i := range wf.Steps {
		if err := ValidateStep(&wf.Steps[i], stepIDs); err != nil {
			return err
		}
	}

	return nil
}

// ValidateStep валидирует один шаг.
// stepIDs — уже встреченные ID шагов (для проверки уникальности).
func ValidateStep(step *domain.Step, stepIDs map[string]bool) error {
	if step.ID == "" {
		return NewValidationError("", "id", "step has empty ID", ErrEmptyStepID)
	}

	if stepIDs[step.ID] {
		return NewValidationError(step.ID, "id",
			fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
	}
	stepIDs[step.ID] = true

	if !step.Action.Valid() {
		return NewValidationError(step.ID, "action",
			fmt.Sprintf("unknown action kind: %q", step.Action), ErrUnknownAction)
	}

	if step.TimeoutMs < 0 {
		return NewValidationError(step.ID, "timeoutMs", "negative step timeout", ErrInvalidTimeout)
	}

	if err := validateRetry(step.ID, step.Retry); err != nil {
		return err
	}

	if !step.OnError.Valid() {
		return NewValidationError(step.ID, "onError",
			fmt.Sprintf("unknown error policy: %q", step.OnError), ErrInvalidErrorPolicy)
	}

	if step.OnError == domain.ErrorPolicyGoto && step.NextOnError == "" {
		return NewValidationError(step.ID, "nextOnError",
			"goto policy requires nextOnError", ErrMissingNextOnError)
	}

	return nil
}

// validateRetry проверяет политику повторов.
// Нулевые значения допустимы — подставляются значения по умолчанию.
func validateRetry(stepID string, p domain.RetryPolicy) error {
	if p.Attempts < 0 {
		return NewValidationError(stepID, "retry.attempts", "attempts must be >= 1", ErrInvalidRetry)
	}
	if p.DelayMs < 0 || p.MaxDelayMs < 0 {
		return NewValidationError(stepID, "retry.delayMs", "delay must not be negative", ErrInvalidRetry)
	}
	switch p.Backoff {
	case "", domain.BackoffFixed, domain.BackoffExponential:
	default:
		return NewValidationError(stepID, "retry.backoff",
			fmt.Sprintf("unknown backoff: %q", p.Backoff), ErrInvalidRetry)
	}
	return nil
}

// Lint возвращает предупреждения, не мешающие загрузке workflow.
//
// Цель goto, которой нет в workflow, приведёт к ошибке конфигурации
// только если шаг действительно упадёт.
func Lint(wf *domain.WorkflowDefinition) []string {
	if wf == nil {
		return nil
	}

	var warnings []string
	for i := range wf.Steps {
		step := &wf.Steps[i]
		if step.NextOnError == "" {
			continue
		}
		if step.OnError != domain.ErrorPolicyGoto {
			warnings = append(warnings,
				fmt.Sprintf("step %s: nextOnError is set but onError is %q", step.ID, step.ErrorPolicyOrDefault()))
			continue
		}
		if wf.StepIndex(step.NextOnError) < 0 {
			warnings = append(warnings,
				fmt.Sprintf("step %s: goto target %q not found", step.ID, step.NextOnError))
		}
	}
	return warnings
}
