package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobRequest — запрос на выполнение workflow на наборе устройств.
//
// Приходит из очереди (сообщение job.execute) или из записи
// выполнения в БД (polling).
type JobRequest struct {
	// ExecutionID — идентификатор выполнения.
	ExecutionID string `json:"executionId"`

	// WorkflowID — workflow для выполнения.
	WorkflowID string `json:"workflowId"`

	// DeviceIDs — устройства в порядке выполнения.
	DeviceIDs []string `json:"deviceIds"`

	// Params — входные параметры job'а.
	Params map[string]any `json:"params,omitempty"`
}

// NewJobRequest создаёт запрос с новым ExecutionID.
func NewJobRequest(workflowID string, deviceIDs []string, params map[string]any) JobRequest {
	return JobRequest{
		ExecutionID: uuid.New().String(),
		WorkflowID:  workflowID,
		DeviceIDs:   deviceIDs,
		Params:      params,
	}
}

// JobStatus — итоговый статус job'а.
type JobStatus string

const (
	// JobCompleted — все устройства завершились успешно.
	JobCompleted JobStatus = "completed"

	// JobCompletedWithErrors — хотя бы одно устройство завершилось ошибкой.
	JobCompletedWithErrors JobStatus = "completed_with_errors"
)

// DeviceFailure — ошибка выполнения на одном устройстве.
type DeviceFailure struct {
	DeviceID string `json:"deviceId"`
	Error    string `json:"error"`
}

// JobExecutionResult — итог выполнения job'а.
//
// Формируется один раз на job и передаётся в хранилище результатов.
type JobExecutionResult struct {
	ExecutionID  string          `json:"executionId"`
	WorkflowID   string          `json:"workflowId"`
	TotalDevices int             `json:"totalDevices"`
	Succeeded    []string        `json:"succeeded"`
	Failed       []DeviceFailure `json:"failed"`
	Status       JobStatus       `json:"status"`
	CompletedAt  time.Time       `json:"completedAt"`
}

// ExecutionStatus — статус записи выполнения в БД.
//
// Жизненный цикл:
//
//	QUEUED → RUNNING → COMPLETED
//	                 ↘ COMPLETED_WITH_ERRORS
//	       ↘ FAILED (workflow неизвестен)
//	(или) → CANCELLED (из QUEUED или RUNNING)
type ExecutionStatus string

const (
	ExecutionQueued              ExecutionStatus = "QUEUED"
	ExecutionRunning             ExecutionStatus = "RUNNING"
	ExecutionCompleted           ExecutionStatus = "COMPLETED"
	ExecutionCompletedWithErrors ExecutionStatus = "COMPLETED_WITH_ERRORS"
	ExecutionFailed              ExecutionStatus = "FAILED"
	ExecutionCancelled           ExecutionStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionCompletedWithErrors, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// ExecutionStatusFor переводит JobStatus в статус записи выполнения.
func ExecutionStatusFor(s JobStatus) ExecutionStatus {
	if s == JobCompleted {
		return ExecutionCompleted
	}
	return ExecutionCompletedWithErrors
}

// Execution — запись выполнения job'а.
type Execution struct {
	ID         string              `json:"id"`
	WorkflowID string              `json:"workflowId"`
	DeviceIDs  []string            `json:"deviceIds"`
	Params     map[string]any      `json:"params,omitempty"`
	Status     ExecutionStatus     `json:"status"`
	NodeID     string              `json:"nodeId,omitempty"`
	Progress   int                 `json:"progress"`
	Result     *JobExecutionResult `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
	StartedAt  *time.Time          `json:"startedAt,omitempty"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// Request возвращает JobRequest для этой записи.
func (e *Execution) Request() JobRequest {
	return JobRequest{
		ExecutionID: e.ID,
		WorkflowID:  e.WorkflowID,
		DeviceIDs:   e.DeviceIDs,
		Params:      e.Params,
	}
}
