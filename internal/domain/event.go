package domain

// Имена событий устройства.
const (
	EventDeviceWorkflowCompleted = "device_workflow_completed"
	EventDeviceWorkflowFailed    = "device_workflow_failed"
)

// Уровни важности алертов.
const (
	AlertInfo     = "info"
	AlertWarning  = "warning"
	AlertCritical = "critical"
)

// DeviceCompletedEvent — payload device_workflow_completed.
type DeviceCompletedEvent struct {
	DeviceID   string `json:"deviceId"`
	WorkflowID string `json:"workflowId"`

	// Duration — длительность выполнения в миллисекундах.
	Duration int64 `json:"duration"`
}

// DeviceFailedEvent — payload device_workflow_failed.
type DeviceFailedEvent struct {
	DeviceID   string `json:"deviceId"`
	WorkflowID string `json:"workflowId"`
	Error      string `json:"error"`
	ErrorCount int    `json:"errorCount"`
}

// QuarantineAlert — payload алерта о переводе устройства в карантин.
type QuarantineAlert struct {
	DeviceID   string `json:"deviceId"`
	WorkflowID string `json:"workflowId,omitempty"`
	ErrorCount int    `json:"errorCount"`
}
