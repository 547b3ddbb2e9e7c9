package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Fleet/internal/domain"
)

// Префиксы ключей.
const (
	deviceKey = "device"
	errorsKey = "errors"
	nodeKey   = "node"
)

// RedisConfig — параметры подключения к Redis.
type RedisConfig struct {
	// Addrs — адреса (один для standalone, несколько для cluster).
	Addrs []string

	// Namespace — префикс всех ключей (default: "fleet").
	Namespace string
}

// RedisStore — Store на Redis.
//
// Ключи:
//
//	{ns}:device:{id}         — hash со снимком состояния
//	{ns}:errors:{id}         — счётчик подряд неудачных выполнений
//	{ns}:node:{id}           — JSON heartbeat воркера с TTL
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisStore создаёт клиента Redis и проверяет соединение.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: cfg.Addrs,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.Namespace), nil
}

// NewRedisStoreWithClient создаёт RedisStore поверх существующего клиента.
func NewRedisStoreWithClient(client redis.UniversalClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "fleet"
	}
	return &RedisStore{client: client, namespace: namespace}
}

// Close закрывает клиента.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(args ...string) string {
	return fmt.Sprintf("%s:%s", s.namespace, strings.Join(args, ":"))
}

// SetDeviceState записывает все поля снимка в hash устройства.
func (s *RedisStore) SetDeviceState(ctx context.Context, st domain.DeviceRuntimeState) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}

	fields := map[string]any{
		"state":        string(st.State),
		"nodeId":       st.NodeID,
		"workflowId":   st.WorkflowID,
		"currentStep":  st.CurrentStep,
		"progress":     st.Progress,
		"errorCount":   st.ErrorCount,
		"errorMessage": st.ErrorMessage,
		"updatedAt":    st.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	if err := s.client.HSet(ctx, s.key(deviceKey, st.DeviceID), fields).Err(); err != nil {
		return fmt.Errorf("set device state %s: %w", st.DeviceID, err)
	}
	return nil
}

// GetDeviceState читает hash устройства.
func (s *RedisStore) GetDeviceState(ctx context.Context, deviceID string) (*domain.DeviceRuntimeState, error) {
	fields, err := s.client.HGetAll(ctx, s.key(deviceKey, deviceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get device state %s: %w", deviceID, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	st := &domain.DeviceRuntimeState{
		DeviceID:     deviceID,
		State:        domain.LifecycleState(fields["state"]),
		NodeID:       fields["nodeId"],
		WorkflowID:   fields["workflowId"],
		CurrentStep:  fields["currentStep"],
		ErrorMessage: fields["errorMessage"],
	}
	st.Progress, _ = strconv.Atoi(fields["progress"])
	st.ErrorCount, _ = strconv.Atoi(fields["errorCount"])
	if ts, err := time.Parse(time.RFC3339Nano, fields["updatedAt"]); err == nil {
		st.UpdatedAt = ts
	}
	return st, nil
}

// IncrementErrorCount атомарно увеличивает счётчик.
func (s *RedisStore) IncrementErrorCount(ctx context.Context, deviceID string) (int, error) {
	n, err := s.client.Incr(ctx, s.key(errorsKey, deviceID)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment error count %s: %w", deviceID, err)
	}
	return int(n), nil
}

// ResetErrorCount удаляет счётчик.
func (s *RedisStore) ResetErrorCount(ctx context.Context, deviceID string) error {
	if err := s.client.Del(ctx, s.key(errorsKey, deviceID)).Err(); err != nil {
		return fmt.Errorf("reset error count %s: %w", deviceID, err)
	}
	return nil
}

// ErrorCount возвращает значение счётчика.
func (s *RedisStore) ErrorCount(ctx context.Context, deviceID string) (int, error) {
	n, err := s.client.Get(ctx, s.key(errorsKey, deviceID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get error count %s: %w", deviceID, err)
	}
	return n, nil
}

// ClearDevice обнуляет счётчик и записывает idle-снимок в одной транзакции.
func (s *RedisStore) ClearDevice(ctx context.Context, deviceID string) error {
	st := clearedState(deviceID, time.Now())

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(errorsKey, deviceID))
		pipe.Del(ctx, s.key(deviceKey, deviceID))
		pipe.HSet(ctx, s.key(deviceKey, deviceID), map[string]any{
			"state":        string(st.State),
			"nodeId":       "",
			"workflowId":   "",
			"currentStep":  "",
			"progress":     0,
			"errorCount":   0,
			"errorMessage": "",
			"updatedAt":    st.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear device %s: %w", deviceID, err)
	}
	return nil
}

// SetNodeStatus записывает heartbeat воркера.
func (s *RedisStore) SetNodeStatus(ctx context.Context, st domain.NodeStatus, ttl time.Duration) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal node status: %w", err)
	}
	if err := s.client.Set(ctx, s.key(nodeKey, st.NodeID), data, ttl).Err(); err != nil {
		return fmt.Errorf("set node status %s: %w", st.NodeID, err)
	}
	return nil
}

// GetNodeStatus читает heartbeat воркера.
func (s *RedisStore) GetNodeStatus(ctx context.Context, nodeID string) (*domain.NodeStatus, error) {
	data, err := s.client.Get(ctx, s.key(nodeKey, nodeID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get node status %s: %w", nodeID, err)
	}

	var st domain.NodeStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal node status: %w", err)
	}
	return &st, nil
}

var _ Store = (*RedisStore)(nil)
