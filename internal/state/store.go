package state

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/Fleet/internal/domain"
)

// ErrNotFound — запись состояния не найдена.
var ErrNotFound = errors.New("state not found")

// Store — хранилище живого состояния устройств и воркеров.
//
// Запись состояния устройства выполняет только воркер, ведущий это
// устройство в данный момент, поэтому блокировки между устройствами
// не нужны: все операции — upsert по ключу.
type Store interface {
	// SetDeviceState записывает снимок состояния устройства целиком.
	SetDeviceState(ctx context.Context, st domain.DeviceRuntimeState) error

	// GetDeviceState возвращает снимок или ErrNotFound.
	GetDeviceState(ctx context.Context, deviceID string) (*domain.DeviceRuntimeState, error)

	// IncrementErrorCount увеличивает счётчик подряд неудачных выполнений
	// и возвращает новое значение.
	IncrementErrorCount(ctx context.Context, deviceID string) (int, error)

	// ResetErrorCount обнуляет счётчик.
	ResetErrorCount(ctx context.Context, deviceID string) error

	// ErrorCount возвращает текущее значение счётчика (0, если его нет).
	ErrorCount(ctx context.Context, deviceID string) (int, error)

	// ClearDevice снимает карантин: обнуляет счётчик и переводит устройство в idle.
	ClearDevice(ctx context.Context, deviceID string) error

	// SetNodeStatus записывает heartbeat воркера с TTL.
	SetNodeStatus(ctx context.Context, st domain.NodeStatus, ttl time.Duration) error

	// GetNodeStatus возвращает heartbeat воркера или ErrNotFound.
	GetNodeStatus(ctx context.Context, nodeID string) (*domain.NodeStatus, error)
}

// clearedState — состояние устройства после ручного снятия карантина.
func clearedState(deviceID string, now time.Time) domain.DeviceRuntimeState {
	return domain.DeviceRuntimeState{
		DeviceID:  deviceID,
		State:     domain.DeviceIdle,
		UpdatedAt: now,
	}
}
