package domain

import (
	"errors"
	"time"
)

// ErrConfiguration — ошибка конфигурации workflow.
//
// Такие ошибки никогда не повторяются и всегда завершают выполнение
// на устройстве: неизвестный тип действия, неизвестное системное действие,
// отсутствующая цель goto, некорректные параметры действия.
var ErrConfiguration = errors.New("configuration error")

// ExecutionContext — состояние выполнения workflow на одном устройстве.
//
// Создаётся на пару (job, device) при старте и отбрасывается после
// завершения. Изменяется только Sequencer'ом этого устройства и
// никогда не разделяется между устройствами.
type ExecutionContext struct {
	// ExecutionID — ID выполнения job'а.
	ExecutionID string

	// DeviceID — устройство, на котором выполняется workflow.
	DeviceID string

	// Workflow — выполняемый workflow (только чтение).
	Workflow *WorkflowDefinition

	// Params — входные параметры job'а.
	Params map[string]any

	// Variables — результаты завершённых шагов по ID шага.
	Variables map[string]any

	// StartedAt — время старта выполнения на устройстве.
	StartedAt time.Time

	// CurrentStepIndex — индекс текущего шага.
	CurrentStepIndex int
}

// NewExecutionContext создаёт контекст выполнения для устройства.
func NewExecutionContext(executionID, deviceID string, wf *WorkflowDefinition, params map[string]any) *ExecutionContext {
	if params == nil {
		params = make(map[string]any)
	}
	return &ExecutionContext{
		ExecutionID: executionID,
		DeviceID:    deviceID,
		Workflow:    wf,
		Params:      params,
		Variables:   make(map[string]any),
		StartedAt:   time.Now(),
	}
}

// Scope возвращает объединённые переменные для подстановки:
// параметры job'а, перекрытые результатами шагов.
func (c *ExecutionContext) Scope() map[string]any {
	scope := make(map[string]any, len(c.Params)+len(c.Variables))
	for k, v := range c.Params {
		scope[k] = v
	}
	for k, v := range c.Variables {
		scope[k] = v
	}
	return scope
}

// TotalSteps возвращает количество шагов workflow.
func (c *ExecutionContext) TotalSteps() int {
	if c.Workflow == nil {
		return 0
	}
	return len(c.Workflow.Steps)
}

// Progress возвращает процент выполнения по текущему индексу шага.
func (c *ExecutionContext) Progress() int {
	total := c.TotalSteps()
	if total == 0 {
		return 0
	}
	return Percent(c.CurrentStepIndex, total)
}

// Elapsed возвращает время с момента старта.
func (c *ExecutionContext) Elapsed() time.Duration {
	return time.Since(c.StartedAt)
}

// Percent возвращает round(done/total*100), 0 при total <= 0.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return (done*200 + total) / (2 * total)
}
