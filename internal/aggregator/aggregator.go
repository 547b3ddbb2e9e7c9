package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Fleet/internal/domain"
	"github.com/shaiso/Fleet/internal/telemetry"
)

// Ошибки агрегатора.
var (
	// ErrUnknownWorkflow — workflow job'а не найден в каталоге.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrPersistResult — результат job'а не удалось сохранить.
	ErrPersistResult = errors.New("persist job result")
)

// CancelledMessage — ошибка устройств, не запущенных из-за отмены job'а.
const CancelledMessage = "job cancelled"

// WorkflowSource — источник определений workflow.
//
// Реализация: catalog.Catalog.
type WorkflowSource interface {
	Get(id string) (*domain.WorkflowDefinition, error)
}

// DeviceRunner выполняет workflow на одном устройстве.
//
// Реализация: engine.Sequencer.
type DeviceRunner interface {
	Run(ctx context.Context, ec *domain.ExecutionContext) error
}

// DeviceTracker ведёт жизненный цикл устройства.
//
// Реализация: lifecycle.Tracker.
type DeviceTracker interface {
	Start(ctx context.Context, ec *domain.ExecutionContext) error
	Complete(ctx context.Context, ec *domain.ExecutionContext)
	Fail(ctx context.Context, ec *domain.ExecutionContext, runErr error) domain.LifecycleState
	Interrupt(ctx context.Context, ec *domain.ExecutionContext, cause error)
}

// ResultStore сохраняет итог job'а.
//
// Реализация: repo.JobRepo.
type ResultStore interface {
	SetJobResult(ctx context.Context, executionID string, result *domain.JobExecutionResult) error
}

// ResultPublisher публикует событие job.completed.
//
// Реализация: mq.Publisher.
type ResultPublisher interface {
	PublishJobCompleted(ctx context.Context, result *domain.JobExecutionResult) error
}

// CancelChecker проверяет, отменён ли job.
//
// Реализация: repo.JobRepo.
type CancelChecker interface {
	IsCancelled(ctx context.Context, executionID string) (bool, error)
}

// ProgressReporter получает прогресс job'а после завершения каждого устройства.
type ProgressReporter interface {
	ReportProgress(ctx context.Context, percent int)
}

// Config — конфигурация Aggregator.
type Config struct {
	Workflows WorkflowSource
	Runner    DeviceRunner
	Tracker   DeviceTracker
	Results   ResultStore

	// Publisher — публикация job.completed (опционально).
	Publisher ResultPublisher

	// Cancel — проверка отмены между устройствами (опционально).
	Cancel CancelChecker

	// Concurrency — сколько устройств выполняется одновременно (default: 1).
	Concurrency int

	Logger *slog.Logger
}

// Aggregator выполняет job на всех его устройствах и собирает итог.
type Aggregator struct {
	workflows   WorkflowSource
	runner      DeviceRunner
	tracker     DeviceTracker
	results     ResultStore
	publisher   ResultPublisher
	cancel      CancelChecker
	concurrency int
	logger      *slog.Logger
}

// New создаёт Aggregator.
func New(cfg Config) *Aggregator {
	a := &Aggregator{
		workflows:   cfg.Workflows,
		runner:      cfg.Runner,
		tracker:     cfg.Tracker,
		results:     cfg.Results,
		publisher:   cfg.Publisher,
		cancel:      cfg.Cancel,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
	if a.concurrency <= 0 {
		a.concurrency = 1
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// deviceOutcome — итог выполнения на одном устройстве.
type deviceOutcome struct {
	err error
}

// Run выполняет job и возвращает его итог.
//
// Ошибки отдельных устройств не прерывают job: они попадают в Failed.
// Ошибка возвращается, только если workflow неизвестен (результата нет)
// или итог не удалось сохранить (результат возвращается вместе с ошибкой).
func (a *Aggregator) Run(ctx context.Context, job domain.JobRequest, progress ProgressReporter) (*domain.JobExecutionResult, error) {
	logger := telemetry.WithWorkflowID(telemetry.WithExecutionID(a.logger, job.ExecutionID), job.WorkflowID)

	wf, err := a.workflows.Get(job.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownWorkflow, job.WorkflowID, err)
	}

	started := time.Now()
	total := len(job.DeviceIDs)
	outcomes := make([]deviceOutcome, total)

	logger.Info("job started",
		"devices", total,
		"concurrency", a.concurrency,
	)

	var (
		mu        sync.Mutex
		done      int
		cancelled bool
	)

	var g errgroup.Group
	g.SetLimit(a.concurrency)

	for i, deviceID := range job.DeviceIDs {
		g.Go(func() error {
			if a.isCancelled(ctx, job.ExecutionID, &mu, &cancelled, logger) {
				outcomes[i] = deviceOutcome{err: errors.New(CancelledMessage)}
			} else {
				outcomes[i] = deviceOutcome{err: a.runDevice(ctx, job, wf, deviceID)}
			}

			mu.Lock()
			done++
			if progress != nil {
				progress.ReportProgress(ctx, domain.Percent(done, total))
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if total == 0 && progress != nil {
		progress.ReportProgress(ctx, 100)
	}

	result := &domain.JobExecutionResult{
		ExecutionID:  job.ExecutionID,
		WorkflowID:   job.WorkflowID,
		TotalDevices: total,
		Succeeded:    []string{},
		Failed:       []domain.DeviceFailure{},
		CompletedAt:  time.Now(),
	}
	for i, deviceID := range job.DeviceIDs {
		if err := outcomes[i].err; err != nil {
			result.Failed = append(result.Failed, domain.DeviceFailure{DeviceID: deviceID, Error: err.Error()})
		} else {
			result.Succeeded = append(result.Succeeded, deviceID)
		}
	}

	result.Status = domain.JobCompleted
	if len(result.Failed) > 0 {
		result.Status = domain.JobCompletedWithErrors
	}

	telemetry.Jobs.WithLabelValues(string(result.Status)).Inc()
	telemetry.JobDuration.Observe(time.Since(started).Seconds())

	logger.Info("job finished",
		"status", result.Status,
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
		"duration", time.Since(started),
	)

	// Итог сохраняется и публикуется даже при остановке воркера
	persistCtx := context.WithoutCancel(ctx)

	var persistErr error
	if err := a.results.SetJobResult(persistCtx, job.ExecutionID, result); err != nil {
		persistErr = fmt.Errorf("%w: %s: %v", ErrPersistResult, job.ExecutionID, err)
	}

	if a.publisher != nil {
		if err := a.publisher.PublishJobCompleted(persistCtx, result); err != nil {
			logger.Warn("failed to publish job completed", "error", err)
		}
	}

	return result, persistErr
}

// isCancelled проверяет отмену job'а перед стартом устройства.
// После первой положительной проверки job считается отменённым до конца.
func (a *Aggregator) isCancelled(ctx context.Context, executionID string, mu *sync.Mutex, cancelled *bool, logger *slog.Logger) bool {
	mu.Lock()
	defer mu.Unlock()

	if *cancelled {
		return true
	}
	if ctx.Err() != nil {
		*cancelled = true
		return true
	}
	if a.cancel == nil {
		return false
	}

	ok, err := a.cancel.IsCancelled(ctx, executionID)
	if err != nil {
		logger.Warn("failed to check job cancellation", "error", err)
		return false
	}
	if ok {
		logger.Info("job cancelled, skipping remaining devices")
		*cancelled = true
	}
	return ok
}

// runDevice выполняет workflow на одном устройстве.
func (a *Aggregator) runDevice(ctx context.Context, job domain.JobRequest, wf *domain.WorkflowDefinition, deviceID string) error {
	logger := telemetry.WithDeviceID(a.logger, deviceID)
	ec := domain.NewExecutionContext(job.ExecutionID, deviceID, wf, job.Params)

	if err := a.tracker.Start(ctx, ec); err != nil {
		logger.Warn("device not started", "error", err)
		return err
	}

	err := a.runner.Run(ctx, ec)

	// Состояние устройства фиксируется и после отмены контекста
	trackCtx := context.WithoutCancel(ctx)

	// Остановка воркера не считается ошибкой устройства
	if err != nil && ctx.Err() != nil {
		a.tracker.Interrupt(trackCtx, ec, err)
		logger.Warn("device workflow interrupted", "error", err)
		return fmt.Errorf("%s: %w", CancelledMessage, err)
	}

	if err != nil {
		next := a.tracker.Fail(trackCtx, ec, err)
		logger.Warn("device workflow failed",
			"state", next,
			"error", err,
		)
		return err
	}

	a.tracker.Complete(trackCtx, ec)
	logger.Info("device workflow completed", "duration", ec.Elapsed())
	return nil
}
