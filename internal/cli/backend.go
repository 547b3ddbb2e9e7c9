package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Fleet/internal/config"
	"github.com/shaiso/Fleet/internal/domain"
	"github.com/shaiso/Fleet/internal/mq"
	"github.com/shaiso/Fleet/internal/repo"
	"github.com/shaiso/Fleet/internal/state"
)

// ErrNoStateStore — команды устройств требуют Redis.
var ErrNoStateStore = errors.New("device state store is not configured (set --redis-addr)")

// JobService — записи выполнения job'ов.
//
// Реализация: repo.JobRepo.
type JobService interface {
	Create(ctx context.Context, req domain.JobRequest) (*domain.Execution, error)
	GetByID(ctx context.Context, id string) (*domain.Execution, error)
	Cancel(ctx context.Context, id string) error
}

// JobQueue ставит job в очередь.
//
// Реализация: mq.Publisher.
type JobQueue interface {
	PublishJobExecute(ctx context.Context, req domain.JobRequest) error
}

// DeviceStore — состояние устройств и воркеров.
//
// Реализация: state.RedisStore.
type DeviceStore interface {
	GetDeviceState(ctx context.Context, deviceID string) (*domain.DeviceRuntimeState, error)
	ErrorCount(ctx context.Context, deviceID string) (int, error)
	ClearDevice(ctx context.Context, deviceID string) error
	GetNodeStatus(ctx context.Context, nodeID string) (*domain.NodeStatus, error)
}

// Backend открывает внешние зависимости команд.
type Backend interface {
	Jobs(ctx context.Context) (JobService, error)
	Queue(ctx context.Context) (JobQueue, error)
	Devices(ctx context.Context) (DeviceStore, error)
	WorkflowsDir() string
	Close() error
}

// Connections — Backend поверх Postgres, RabbitMQ и Redis.
//
// Соединения открываются лениво при первом обращении: workflow validate
// не требует ни одного из них.
type Connections struct {
	cfg    *config.Config
	logger *slog.Logger

	mu     sync.Mutex
	pool   *pgxpool.Pool
	conn   *mq.Connection
	states *state.RedisStore
}

// NewConnections создаёт Connections.
func NewConnections(cfg *config.Config, logger *slog.Logger) *Connections {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connections{cfg: cfg, logger: logger}
}

// Jobs открывает пул Postgres и применяет схему.
func (c *Connections) Jobs(ctx context.Context) (JobService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool == nil {
		pool, err := repo.NewPool(ctx, c.cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := repo.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		c.pool = pool
	}
	return repo.NewJobRepo(c.pool), nil
}

// Queue подключается к RabbitMQ и объявляет топологию.
func (c *Connections) Queue(ctx context.Context) (JobQueue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, err := mq.NewConnection(c.cfg.RabbitMQURL, c.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		if err := mq.SetupTopology(ctx, conn); err != nil {
			conn.Close()
			return nil, err
		}
		c.conn = conn
	}
	return mq.NewPublisher(c.conn, c.logger), nil
}

// Devices подключается к Redis.
func (c *Connections) Devices(ctx context.Context) (DeviceStore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.UsesRedis() {
		return nil, ErrNoStateStore
	}
	if c.states == nil {
		st, err := state.NewRedisStore(ctx, state.RedisConfig{
			Addrs:     c.cfg.RedisAddrs,
			Namespace: c.cfg.RedisNamespace,
		})
		if err != nil {
			return nil, err
		}
		c.states = st
	}
	return c.states, nil
}

// WorkflowsDir возвращает директорию каталога workflow.
func (c *Connections) WorkflowsDir() string {
	return c.cfg.WorkflowsDir
}

// Close закрывает открытые соединения.
func (c *Connections) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.pool != nil {
		c.pool.Close()
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	if c.states != nil {
		errs = append(errs, c.states.Close())
	}
	return errors.Join(errs...)
}
