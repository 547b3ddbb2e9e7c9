package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Fleet/internal/aggregator"
	"github.com/shaiso/Fleet/internal/domain"
	"github.com/shaiso/Fleet/internal/mq"
	"github.com/shaiso/Fleet/internal/repo"
	"github.com/shaiso/Fleet/internal/telemetry"
)

// handleJobExecute обрабатывает сообщение из очереди jobs.execute.
func (w *Worker) handleJobExecute(ctx context.Context, delivery *mq.Delivery) error {
	req, err := mq.ParsePayload[domain.JobRequest](&delivery.Message)
	if err != nil {
		return mq.Permanent(err)
	}
	if req.ExecutionID == "" || req.WorkflowID == "" {
		return mq.Permanent(fmt.Errorf("%w: message %s", ErrInvalidJob, delivery.Message.ID))
	}

	w.logger.Debug("received job.execute",
		"execution_id", req.ExecutionID,
		"workflow_id", req.WorkflowID,
		"devices", len(req.DeviceIDs),
	)

	err = w.processJob(ctx, req)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrJobNotQueued):
		// Дубликат или уже отменённый job — подтверждаем
		w.logger.Debug("job not processed", "execution_id", req.ExecutionID, "reason", err)
		return nil
	case errors.Is(err, aggregator.ErrUnknownWorkflow):
		return mq.Permanent(err)
	default:
		return err
	}
}

// processJob закрепляет запись за воркером и выполняет job.
//
// Возвращает ErrJobNotQueued, если запись уже не в QUEUED, и
// aggregator.ErrUnknownWorkflow, если workflow не загружен (запись
// переводится в FAILED). Ошибка сохранения итога только логируется:
// устройства уже отработали, повторная доставка запустила бы их снова.
func (w *Worker) processJob(ctx context.Context, req domain.JobRequest) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	exec, err := w.jobs.Ensure(ctx, req)
	if err != nil {
		return fmt.Errorf("ensure execution: %w", err)
	}
	if exec.Status != domain.ExecutionQueued {
		return fmt.Errorf("%w: execution %s is %s", ErrJobNotQueued, exec.ID, exec.Status)
	}

	if err := w.jobs.Claim(ctx, exec.ID, w.nodeID); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return fmt.Errorf("%w: %w", ErrJobNotQueued, err)
		}
		return fmt.Errorf("claim execution: %w", err)
	}

	// Запись в БД — источник истины для повторно доставленных сообщений
	job := exec.Request()

	logger := telemetry.WithWorkflowID(telemetry.WithExecutionID(w.logger, job.ExecutionID), job.WorkflowID)
	ctx = telemetry.WithLogger(ctx, logger)

	w.setCurrent(job.ExecutionID)
	defer w.setCurrent("")

	logger.Info("job started", "devices", len(job.DeviceIDs))

	result, err := w.runner.Run(ctx, job, &jobHandle{
		executionID: job.ExecutionID,
		jobs:        w.jobs,
		publisher:   w.progress,
		logger:      logger,
	})
	if errors.Is(err, aggregator.ErrUnknownWorkflow) {
		if markErr := w.jobs.MarkFailed(context.WithoutCancel(ctx), job.ExecutionID, err.Error()); markErr != nil {
			logger.Error("failed to mark execution failed", "error", markErr)
		}
		logger.Error("job failed", "error", err)
		return err
	}
	if err != nil && result == nil {
		return err
	}
	if err != nil {
		logger.Error("job result not persisted", "error", err)
	}

	logger.Info("job finished",
		"status", result.Status,
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
	)
	return nil
}

// jobHandle сохраняет и публикует прогресс одного job'а.
// Реализует aggregator.ProgressReporter.
type jobHandle struct {
	executionID string
	jobs        JobStore
	publisher   ProgressPublisher
	logger      *slog.Logger
}

func (h *jobHandle) ReportProgress(ctx context.Context, percent int) {
	ctx = context.WithoutCancel(ctx)

	if err := h.jobs.UpdateProgress(ctx, h.executionID, percent); err != nil {
		h.logger.Warn("failed to update job progress", "progress", percent, "error", err)
	}
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishJobProgress(ctx, h.executionID, percent); err != nil {
		h.logger.Warn("failed to publish job progress", "progress", percent, "error", err)
	}
}
