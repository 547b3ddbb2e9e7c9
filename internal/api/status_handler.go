package api

import (
	"errors"
	"net/http"

	"github.com/shaiso/Fleet/internal/domain"
	"github.com/shaiso/Fleet/internal/state"
)

// WorkflowSummary — элемент списка workflow.
type WorkflowSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Steps     int    `json:"steps"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
}

// DeviceResponse — состояние устройства со счётчиком подряд идущих ошибок.
type DeviceResponse struct {
	domain.DeviceRuntimeState
	ConsecutiveErrors int `json:"consecutiveErrors"`
}

// ReloadResponse — итог перезагрузки каталога.
type ReloadResponse struct {
	Workflows int `json:"workflows"`
}

// Health отвечает ok, пока процесс жив. Заголовок X-Node-ID — идентификатор воркера.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("X-Node-ID", h.nodeID)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ListWorkflows возвращает загруженные workflow.
// GET /api/v1/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, _ *http.Request) {
	wfs := h.workflows.List()

	result := make([]WorkflowSummary, len(wfs))
	for i, wf := range wfs {
		result[i] = WorkflowSummary{
			ID:        wf.ID,
			Name:      wf.Name,
			Steps:     len(wf.Steps),
			TimeoutMs: wf.TimeoutMs,
		}
	}

	h.respondList(w, result, len(result))
}

// GetWorkflow возвращает определение workflow.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.workflows.Get(r.PathValue("id"))
	if h.handleError(w, err, "workflow not found") {
		return
	}
	h.respond(w, wf)
}

// ReloadWorkflows перечитывает каталог.
// При ошибке остаётся прежний набор, ответ 422 с текстом ошибки.
// POST /api/v1/workflows/reload
func (h *Handler) ReloadWorkflows(w http.ResponseWriter, _ *http.Request) {
	if err := h.workflows.Reload(); err != nil {
		h.fail(w, http.StatusUnprocessableEntity, ErrCodeInvalidState, err.Error())
		return
	}
	h.respond(w, ReloadResponse{Workflows: len(h.workflows.List())})
}

// GetExecution возвращает запись выполнения job'а.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	if h.executions == nil {
		h.fail(w, http.StatusNotFound, ErrCodeNotFound, "executions are not available")
		return
	}

	exec, err := h.executions.GetByID(r.Context(), r.PathValue("id"))
	if h.handleError(w, err, "execution not found") {
		return
	}
	h.respond(w, exec)
}

// GetDevice возвращает опубликованное состояние устройства.
// Устройство без записи считается свободным.
// GET /api/v1/devices/{id}
func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")

	st, err := h.devices.GetDeviceState(r.Context(), deviceID)
	if errors.Is(err, state.ErrNotFound) {
		st = &domain.DeviceRuntimeState{DeviceID: deviceID, State: domain.DeviceIdle}
	} else if h.handleError(w, err, "") {
		return
	}

	count, err := h.devices.ErrorCount(r.Context(), deviceID)
	if h.handleError(w, err, "") {
		return
	}

	h.respond(w, DeviceResponse{DeviceRuntimeState: *st, ConsecutiveErrors: count})
}
