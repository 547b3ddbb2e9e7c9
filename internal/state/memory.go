package state

import (
	"context"
	"sync"
	"time"

	"github.com/shaiso/Fleet/internal/domain"
)

// MemoryStore — Store в памяти процесса.
//
// Используется в тестах и при запуске воркера без Redis.
// TTL heartbeat'ов проверяется при чтении.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]domain.DeviceRuntimeState
	errors  map[string]int
	nodes   map[string]memoryNode
}

type memoryNode struct {
	status    domain.NodeStatus
	expiresAt time.Time
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices: make(map[string]domain.DeviceRuntimeState),
		errors:  make(map[string]int),
		nodes:   make(map[string]memoryNode),
	}
}

func (s *MemoryStore) SetDeviceState(_ context.Context, st domain.DeviceRuntimeState) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[st.DeviceID] = st
	return nil
}

func (s *MemoryStore) GetDeviceState(_ context.Context, deviceID string) (*domain.DeviceRuntimeState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.devices[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

func (s *MemoryStore) IncrementErrorCount(_ context.Context, deviceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[deviceID]++
	return s.errors[deviceID], nil
}

func (s *MemoryStore) ResetErrorCount(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.errors, deviceID)
	return nil
}

func (s *MemoryStore) ErrorCount(_ context.Context, deviceID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errors[deviceID], nil
}

func (s *MemoryStore) ClearDevice(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.errors, deviceID)
	s.devices[deviceID] = clearedState(deviceID, time.Now())
	return nil
}

func (s *MemoryStore) SetNodeStatus(_ context.Context, st domain.NodeStatus, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[st.NodeID] = memoryNode{status: st, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) GetNodeStatus(_ context.Context, nodeID string) (*domain.NodeStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[nodeID]
	if !ok || time.Now().After(n.expiresAt) {
		return nil, ErrNotFound
	}
	st := n.status
	return &st, nil
}

var _ Store = (*MemoryStore)(nil)
