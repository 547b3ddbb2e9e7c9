package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Fleet/internal/domain"
)

// WorkflowCatalog — загруженные workflow воркера.
//
// Реализация: catalog.Catalog.
type WorkflowCatalog interface {
	Get(id string) (*domain.WorkflowDefinition, error)
	List() []*domain.WorkflowDefinition
	Reload() error
}

// ExecutionReader читает записи выполнения.
//
// Реализация: repo.JobRepo.
type ExecutionReader interface {
	GetByID(ctx context.Context, id string) (*domain.Execution, error)
}

// DeviceReader читает состояние устройств.
//
// Реализации: state.RedisStore, state.MemoryStore.
type DeviceReader interface {
	GetDeviceState(ctx context.Context, deviceID string) (*domain.DeviceRuntimeState, error)
	ErrorCount(ctx context.Context, deviceID string) (int, error)
}

// Handler — обработчик status API воркера.
type Handler struct {
	workflows  WorkflowCatalog
	executions ExecutionReader
	devices    DeviceReader
	nodeID     string
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Workflows  WorkflowCatalog
	Executions ExecutionReader
	Devices    DeviceReader
	NodeID     string
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		workflows:  cfg.Workflows,
		executions: cfg.Executions,
		devices:    cfg.Devices,
		nodeID:     cfg.NodeID,
		logger:     logger,
	}
}
