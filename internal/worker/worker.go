package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Fleet/internal/aggregator"
	"github.com/shaiso/Fleet/internal/domain"
	"github.com/shaiso/Fleet/internal/mq"
)

// Default configuration values.
const (
	defaultPollInterval      = 10 * time.Second
	defaultBatchSize         = 20
	defaultHeartbeatInterval = 15 * time.Second

	// heartbeatTTLFactor — во сколько раз TTL heartbeat больше интервала.
	heartbeatTTLFactor = 3

	// prefetch — один job на воркер одновременно.
	prefetch = 1
)

// JobStore — записи выполнения job'ов.
//
// Реализация: repo.JobRepo.
type JobStore interface {
	Ensure(ctx context.Context, req domain.JobRequest) (*domain.Execution, error)
	Claim(ctx context.Context, id, nodeID string) error
	UpdateProgress(ctx context.Context, id string, percent int) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	ListQueued(ctx context.Context, limit int) ([]domain.Execution, error)
}

// JobRunner выполняет job на всех устройствах.
//
// Реализация: aggregator.Aggregator.
type JobRunner interface {
	Run(ctx context.Context, job domain.JobRequest, progress aggregator.ProgressReporter) (*domain.JobExecutionResult, error)
}

// ProgressPublisher публикует job.progress.
//
// Реализация: mq.Publisher.
type ProgressPublisher interface {
	PublishJobProgress(ctx context.Context, executionID string, percent int) error
}

// NodeStatusStore хранит heartbeat воркера.
//
// Реализации: state.RedisStore, state.MemoryStore.
type NodeStatusStore interface {
	SetNodeStatus(ctx context.Context, st domain.NodeStatus, ttl time.Duration) error
}

// Worker выполняет job'ы на парке устройств.
//
// Worker:
//   - Получает job'ы из очереди jobs.execute (event-driven, prefetch 1)
//   - Периодически проверяет QUEUED записи в БД (polling fallback)
//   - Закрепляет запись за собой (QUEUED → RUNNING) и запускает Aggregator
//   - Пишет heartbeat в хранилище состояния
//
// Job'ы выполняются строго по одному: consumer и polling делят один lock.
type Worker struct {
	jobs     JobStore
	runner   JobRunner
	progress ProgressPublisher
	nodes    NodeStatusStore
	conn     *mq.Connection
	consumer *mq.Consumer

	nodeID            string
	pollInterval      time.Duration
	batchSize         int
	heartbeatInterval time.Duration

	// runMu сериализует выполнение job'ов.
	runMu sync.Mutex

	currentMu sync.RWMutex
	current   string

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Jobs   JobStore
	Runner JobRunner

	// Progress — публикация job.progress (опционально).
	Progress ProgressPublisher

	// Nodes — хранилище heartbeat (опционально).
	Nodes NodeStatusStore

	// Conn — соединение RabbitMQ. Если nil, работает только polling.
	Conn *mq.Connection

	// NodeID — идентификатор воркера.
	NodeID string

	PollInterval      time.Duration // интервал polling (default: 10s)
	BatchSize         int           // количество записей за один poll (default: 20)
	HeartbeatInterval time.Duration // интервал heartbeat (default: 15s)

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	w := &Worker{
		jobs:              cfg.Jobs,
		runner:            cfg.Runner,
		progress:          cfg.Progress,
		nodes:             cfg.Nodes,
		conn:              cfg.Conn,
		nodeID:            cfg.NodeID,
		pollInterval:      cfg.PollInterval,
		batchSize:         cfg.BatchSize,
		heartbeatInterval: cfg.HeartbeatInterval,
		logger:            cfg.Logger,
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.heartbeatInterval <= 0 {
		w.heartbeatInterval = defaultHeartbeatInterval
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer для jobs.execute (если есть соединение)
//   - Polling горутину для fallback
//   - Heartbeat горутину (если есть хранилище)
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"node_id", w.nodeID,
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"heartbeat_interval", w.heartbeatInterval,
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    mq.QueueJobsExecute,
			Handler:  w.handleJobExecute,
			Accept:   []mq.MessageType{mq.MessageTypeJobExecute},
			Prefetch: prefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("job consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	if w.nodes != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.heartbeatLoop(ctx)
		}()
	}

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения текущего job'а.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// CurrentExecution возвращает ID выполняемого job'а или пустую строку.
func (w *Worker) CurrentExecution() string {
	w.currentMu.RLock()
	defer w.currentMu.RUnlock()
	return w.current
}

func (w *Worker) setCurrent(executionID string) {
	w.currentMu.Lock()
	w.current = executionID
	w.currentMu.Unlock()
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем job'ы, поставленные пока воркер был выключен)
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (w *Worker) poll(ctx context.Context) {
	execs, err := w.jobs.ListQueued(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list queued executions", "error", err)
		return
	}

	if len(execs) == 0 {
		return
	}

	w.logger.Debug("poll found queued executions", "count", len(execs))

	for i := range execs {
		if ctx.Err() != nil {
			return
		}

		err := w.processJob(ctx, execs[i].Request())
		if err != nil && !errors.Is(err, ErrJobNotQueued) {
			w.logger.Error("failed to process job from poll",
				"execution_id", execs[i].ID,
				"error", err,
			)
		}
	}
}

// heartbeatLoop периодически пишет статус воркера.
func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	w.heartbeat(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.heartbeat(ctx)
		}
	}
}

// heartbeat пишет один статус воркера с TTL 3× интервала.
func (w *Worker) heartbeat(ctx context.Context) {
	st := domain.NodeStatus{
		NodeID:    w.nodeID,
		Status:    domain.NodeStatusIdle,
		UpdatedAt: time.Now().UTC(),
	}
	if id := w.CurrentExecution(); id != "" {
		st.Status = domain.NodeStatusBusy
		st.ExecutionID = id
	}

	if err := w.nodes.SetNodeStatus(ctx, st, heartbeatTTLFactor*w.heartbeatInterval); err != nil {
		w.logger.Warn("failed to write heartbeat", "node_id", w.nodeID, "error", err)
	}
}
