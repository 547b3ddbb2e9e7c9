package domain

import "time"

// LifecycleState — состояние жизненного цикла устройства.
//
// Жизненный цикл:
//
//	IDLE → RUNNING → IDLE
//	               ↘ ERROR → RUNNING → ...
//	               ↘ QUARANTINED (после N подряд неудач, выход только вручную)
type LifecycleState string

const (
	// DeviceIdle — устройство свободно.
	DeviceIdle LifecycleState = "idle"

	// DeviceRunning — на устройстве выполняется workflow.
	DeviceRunning LifecycleState = "running"

	// DeviceError — последнее выполнение завершилось ошибкой.
	DeviceError LifecycleState = "error"

	// DeviceQuarantined — устройство в карантине, требуется вмешательство оператора.
	DeviceQuarantined LifecycleState = "quarantined"
)

// CanStart возвращает true, если из этого состояния можно начать выполнение.
//
// running допускается: запись могла остаться от упавшего воркера.
func (s LifecycleState) CanStart() bool {
	return s != DeviceQuarantined
}

// DefaultQuarantineThreshold — количество подряд неудачных выполнений
// до перевода устройства в карантин.
const DefaultQuarantineThreshold = 3

// DeviceRuntimeState — опубликованное состояние устройства.
//
// Пишется Lifecycle Tracker'ом, читается внешними наблюдателями.
// Живёт дольше любого отдельного job'а.
type DeviceRuntimeState struct {
	// DeviceID — идентификатор устройства.
	DeviceID string `json:"deviceId"`

	// State — состояние жизненного цикла.
	State LifecycleState `json:"state"`

	// NodeID — воркер, владеющий устройством.
	NodeID string `json:"nodeId,omitempty"`

	// WorkflowID — текущий workflow (пусто, если устройство свободно).
	WorkflowID string `json:"workflowId,omitempty"`

	// CurrentStep — ID выполняемого шага.
	CurrentStep string `json:"currentStep"`

	// Progress — процент выполнения (0–100).
	Progress int `json:"progress"`

	// ErrorCount — количество ошибок.
	ErrorCount int `json:"errorCount"`

	// ErrorMessage — текст последней ошибки.
	ErrorMessage string `json:"errorMessage,omitempty"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updatedAt"`
}

// NodeStatus — heartbeat воркера в хранилище состояния.
type NodeStatus struct {
	NodeID      string    `json:"nodeId"`
	Status      string    `json:"status"`
	ExecutionID string    `json:"executionId,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Статусы воркера.
const (
	NodeStatusIdle = "idle"
	NodeStatusBusy = "busy"
)
