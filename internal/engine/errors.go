package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/Fleet/internal/domain"
)

// Ошибки валидации WorkflowDefinition.
var (
	// ErrNilWorkflow — определение workflow отсутствует.
	ErrNilWorkflow = errors.New("workflow is nil")

	// ErrEmptySteps — workflow не содержит шагов.
	ErrEmptySteps = errors.New("workflow has no steps")

	// ErrEmptyWorkflowID — workflow не имеет ID.
	ErrEmptyWorkflowID = errors.New("workflow has empty ID")

	// ErrEmptyStepID — шаг не имеет ID.
	ErrEmptyStepID = errors.New("step has empty ID")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrUnknownAction — неизвестный тип действия.
	ErrUnknownAction = errors.New("unknown action kind")

	// ErrInvalidRetry — некорректная политика повторов.
	ErrInvalidRetry = errors.New("invalid retry policy")

	// ErrInvalidTimeout — отрицательный таймаут workflow или шага.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidErrorPolicy — неизвестная политика ошибок.
	ErrInvalidErrorPolicy = errors.New("invalid error policy")

	// ErrMissingNextOnError — goto без nextOnError.
	ErrMissingNextOnError = errors.New("goto policy requires nextOnError")
)

// Ошибки выполнения.
var (
	// ErrGotoTargetNotFound — шаг nextOnError не найден в workflow.
	ErrGotoTargetNotFound = fmt.Errorf("%w: goto target not found", domain.ErrConfiguration)

	// ErrTransitionLimit — превышен лимит переходов между шагами (цикл goto).
	ErrTransitionLimit = fmt.Errorf("%w: step transition limit exceeded", domain.ErrConfiguration)
)

// IsConfigurationError проверяет, является ли ошибка ошибкой конфигурации.
func IsConfigurationError(err error) bool {
	return errors.Is(err, domain.ErrConfiguration)
}

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	StepID  string // ID шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// StepError — окончательная ошибка шага после исчерпания попыток.
type StepError struct {
	StepID   string
	Attempts int
	Err      error
}

// Error реализует интерфейс error.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempt(s): %v", e.StepID, e.Attempts, e.Err)
}

// Unwrap возвращает исходную ошибку действия.
func (e *StepError) Unwrap() error {
	return e.Err
}
