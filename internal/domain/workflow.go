package domain

// WorkflowDefinition — неизменяемый шаблон workflow.
//
// Загружается из внешнего источника (каталог файлов) и только читается
// движком. Один и тот же WorkflowDefinition используется для всех
// устройств job'а.
type WorkflowDefinition struct {
	// ID — уникальный идентификатор workflow (например, "play-media").
	ID string `json:"id" yaml:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description — описание назначения workflow.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Steps — упорядоченный список шагов.
	Steps []Step `json:"steps" yaml:"steps"`

	// TimeoutMs — общий таймаут выполнения на одном устройстве.
	// 0 — без ограничения.
	TimeoutMs int `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
}

// StepIndex возвращает позицию шага с указанным ID или -1.
func (w *WorkflowDefinition) StepIndex(stepID string) int {
	for i := range w.Steps {
		if w.Steps[i].ID == stepID {
			return i
		}
	}
	return -1
}

// Step — одна единица работы в workflow.
type Step struct {
	// ID — уникальный идентификатор шага в рамках workflow.
	// Результат шага сохраняется в переменных под этим ключом.
	ID string `json:"id" yaml:"id"`

	// Name — человекочитаемое имя шага.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Action — тип действия.
	Action ActionKind `json:"action" yaml:"action"`

	// Params — параметры действия. Строки с префиксом "$" —
	// ссылки на переменные.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	// TimeoutMs — таймаут одной попытки. 0 — таймаут по умолчанию.
	TimeoutMs int `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`

	// Retry — политика повторных попыток.
	Retry RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`

	// OnError — что делать после исчерпания попыток.
	OnError ErrorPolicy `json:"onError,omitempty" yaml:"onError,omitempty"`

	// NextOnError — ID шага для перехода при OnError = goto.
	NextOnError string `json:"nextOnError,omitempty" yaml:"nextOnError,omitempty"`
}

// ErrorPolicyOrDefault возвращает политику ошибок с учётом значения по умолчанию.
func (s *Step) ErrorPolicyOrDefault() ErrorPolicy {
	if s.OnError == "" {
		return ErrorPolicyFail
	}
	return s.OnError
}

// ActionKind — тип действия шага.
//
// Закрытый набор: любое значение вне списка — ошибка конфигурации.
type ActionKind string

const (
	// ActionScript — запуск скрипта автоматизации на устройстве.
	ActionScript ActionKind = "script"

	// ActionShell — выполнение shell-команды на устройстве.
	ActionShell ActionKind = "shell"

	// ActionWait — пауза.
	ActionWait ActionKind = "wait"

	// ActionSystem — внутреннее системное действие (mark-complete, log).
	ActionSystem ActionKind = "system"

	// ActionCondition — вычисление условия.
	ActionCondition ActionKind = "condition"
)

// ActionKinds возвращает все допустимые типы действий.
func ActionKinds() []ActionKind {
	return []ActionKind{ActionScript, ActionShell, ActionWait, ActionSystem, ActionCondition}
}

// Valid проверяет, что тип действия известен.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionScript, ActionShell, ActionWait, ActionSystem, ActionCondition:
		return true
	default:
		return false
	}
}

// Backoff — стратегия задержки между попытками.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffExponential Backoff = "exponential"
)

// Значения RetryPolicy по умолчанию.
const (
	DefaultRetryAttempts = 1
	DefaultRetryDelayMs  = 1000
)

// RetryPolicy — политика повторных попыток.
type RetryPolicy struct {
	// Attempts — количество попыток, включая первую (>= 1).
	Attempts int `json:"attempts,omitempty" yaml:"attempts,omitempty"`

	// DelayMs — базовая задержка в миллисекундах.
	DelayMs int `json:"delayMs,omitempty" yaml:"delayMs,omitempty"`

	// Backoff — "fixed" или "exponential".
	Backoff Backoff `json:"backoff,omitempty" yaml:"backoff,omitempty"`

	// MaxDelayMs — верхняя граница задержки. 0 — без ограничения.
	MaxDelayMs int `json:"maxDelayMs,omitempty" yaml:"maxDelayMs,omitempty"`
}

// Normalize возвращает копию политики с подставленными значениями по умолчанию.
func (p RetryPolicy) Normalize() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = DefaultRetryAttempts
	}
	if p.DelayMs <= 0 {
		p.DelayMs = DefaultRetryDelayMs
	}
	if p.Backoff == "" {
		p.Backoff = BackoffFixed
	}
	return p
}

// ErrorPolicy — поведение после исчерпания попыток.
type ErrorPolicy string

const (
	// ErrorPolicyFail — завершить выполнение на устройстве с ошибкой.
	ErrorPolicyFail ErrorPolicy = "fail"

	// ErrorPolicySkip — перейти к следующему шагу, отбросив ошибку.
	ErrorPolicySkip ErrorPolicy = "skip"

	// ErrorPolicyGoto — перейти к шагу NextOnError.
	ErrorPolicyGoto ErrorPolicy = "goto"
)

// Valid проверяет, что политика известна.
func (p ErrorPolicy) Valid() bool {
	switch p {
	case "", ErrorPolicyFail, ErrorPolicySkip, ErrorPolicyGoto:
		return true
	default:
		return false
	}
}
