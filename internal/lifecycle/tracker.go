package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Fleet/internal/domain"
	"github.com/shaiso/Fleet/internal/state"
	"github.com/shaiso/Fleet/internal/telemetry"
)

// ErrDeviceQuarantined — устройство в карантине, выполнение не начинается.
var ErrDeviceQuarantined = errors.New("device is quarantined")

// StateStore — хранилище состояния устройств.
//
// Реализации: state.RedisStore, state.MemoryStore.
type StateStore interface {
	SetDeviceState(ctx context.Context, st domain.DeviceRuntimeState) error
	GetDeviceState(ctx context.Context, deviceID string) (*domain.DeviceRuntimeState, error)
	IncrementErrorCount(ctx context.Context, deviceID string) (int, error)
	ResetErrorCount(ctx context.Context, deviceID string) error
}

// EventPublisher публикует события устройств и алерты.
//
// Реализация: mq.Publisher.
type EventPublisher interface {
	PublishEvent(ctx context.Context, name string, payload any) error
	PublishAlert(ctx context.Context, severity, message string, payload any) error
}

// Config — конфигурация Tracker.
type Config struct {
	Store StateStore

	// Events — публикация событий и алертов (опционально).
	Events EventPublisher

	// NodeID — идентификатор воркера, владеющего устройствами.
	NodeID string

	// QuarantineThreshold — число подряд неудачных выполнений до карантина (default: 3).
	QuarantineThreshold int

	// Now — источник времени (default: time.Now).
	Now func() time.Time

	Logger *slog.Logger
}

// Tracker ведёт жизненный цикл устройств.
//
// Ошибки хранилища и публикации логируются и не прерывают выполнение:
// результат выполнения на устройстве важнее снимка состояния.
// Реализует engine.StepObserver.
type Tracker struct {
	store     StateStore
	events    EventPublisher
	nodeID    string
	threshold int
	now       func() time.Time
	logger    *slog.Logger
}

// NewTracker создаёт Tracker.
func NewTracker(cfg Config) *Tracker {
	t := &Tracker{
		store:     cfg.Store,
		events:    cfg.Events,
		nodeID:    cfg.NodeID,
		threshold: cfg.QuarantineThreshold,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}
	if t.threshold <= 0 {
		t.threshold = domain.DefaultQuarantineThreshold
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.events == nil {
		t.events = discardEvents{}
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Start переводит устройство в running.
//
// Устройство в карантине не запускается: возвращается ErrDeviceQuarantined.
func (t *Tracker) Start(ctx context.Context, ec *domain.ExecutionContext) error {
	prev, err := t.store.GetDeviceState(ctx, ec.DeviceID)
	switch {
	case err == nil && !prev.State.CanStart():
		return fmt.Errorf("%w: %s", ErrDeviceQuarantined, ec.DeviceID)
	case err != nil && !errors.Is(err, state.ErrNotFound):
		t.logger.Warn("failed to read device state",
			"device_id", ec.DeviceID,
			"error", err,
		)
	}

	t.publish(ctx, domain.DeviceRuntimeState{
		DeviceID:   ec.DeviceID,
		State:      domain.DeviceRunning,
		WorkflowID: workflowID(ec),
	})
	return nil
}

// StepStarted публикует текущий шаг и прогресс.
func (t *Tracker) StepStarted(ctx context.Context, ec *domain.ExecutionContext, step *domain.Step) {
	t.publish(ctx, domain.DeviceRuntimeState{
		DeviceID:    ec.DeviceID,
		State:       domain.DeviceRunning,
		WorkflowID:  workflowID(ec),
		CurrentStep: step.ID,
		Progress:    ec.Progress(),
	})
}

// StepSucceeded обнуляет счётчик подряд неудачных выполнений.
func (t *Tracker) StepSucceeded(ctx context.Context, ec *domain.ExecutionContext, _ *domain.Step) {
	if err := t.store.ResetErrorCount(ctx, ec.DeviceID); err != nil {
		t.logger.Warn("failed to reset error count",
			"device_id", ec.DeviceID,
			"error", err,
		)
	}
}

// Complete переводит устройство в idle после успешного выполнения.
func (t *Tracker) Complete(ctx context.Context, ec *domain.ExecutionContext) {
	t.publish(ctx, domain.DeviceRuntimeState{
		DeviceID: ec.DeviceID,
		State:    domain.DeviceIdle,
		Progress: 100,
	})

	t.emit(ctx, domain.EventDeviceWorkflowCompleted, domain.DeviceCompletedEvent{
		DeviceID:   ec.DeviceID,
		WorkflowID: workflowID(ec),
		Duration:   ec.Elapsed().Milliseconds(),
	})

	telemetry.DeviceRuns.WithLabelValues(telemetry.OutcomeSucceeded).Inc()
}

// Fail фиксирует неудачное выполнение и возвращает новое состояние
// устройства: error или quarantined.
func (t *Tracker) Fail(ctx context.Context, ec *domain.ExecutionContext, runErr error) domain.LifecycleState {
	logger := telemetry.WithDeviceID(t.logger, ec.DeviceID)

	count, err := t.store.IncrementErrorCount(ctx, ec.DeviceID)
	if err != nil {
		logger.Warn("failed to increment error count", "error", err)
	}

	next := domain.DeviceError
	if count >= t.threshold {
		next = domain.DeviceQuarantined
	}

	currentStep := ""
	if wf := ec.Workflow; wf != nil && ec.CurrentStepIndex < len(wf.Steps) {
		currentStep = wf.Steps[ec.CurrentStepIndex].ID
	}

	t.publish(ctx, domain.DeviceRuntimeState{
		DeviceID:     ec.DeviceID,
		State:        next,
		WorkflowID:   workflowID(ec),
		CurrentStep:  currentStep,
		Progress:     ec.Progress(),
		ErrorCount:   count,
		ErrorMessage: runErr.Error(),
	})

	t.emit(ctx, domain.EventDeviceWorkflowFailed, domain.DeviceFailedEvent{
		DeviceID:   ec.DeviceID,
		WorkflowID: workflowID(ec),
		Error:      runErr.Error(),
		ErrorCount: count,
	})

	// Start не запускает устройство в карантине, поэтому здесь переход всегда новый
	if next == domain.DeviceQuarantined {
		logger.Warn("device quarantined", "error_count", count)
		telemetry.DeviceQuarantines.Inc()

		msg := fmt.Sprintf("device %s quarantined after %d consecutive failures", ec.DeviceID, count)
		if err := t.events.PublishAlert(ctx, domain.AlertWarning, msg, domain.QuarantineAlert{
			DeviceID:   ec.DeviceID,
			WorkflowID: workflowID(ec),
			ErrorCount: count,
		}); err != nil {
			logger.Warn("failed to publish alert", "error", err)
		}
	}

	outcome := telemetry.OutcomeFailed
	if next == domain.DeviceQuarantined {
		outcome = telemetry.OutcomeQuarantined
	}
	telemetry.DeviceRuns.WithLabelValues(outcome).Inc()

	return next
}

// Interrupt возвращает устройство в idle после прерванного выполнения
// (остановка воркера). Счётчик ошибок не меняется, алерт не публикуется.
func (t *Tracker) Interrupt(ctx context.Context, ec *domain.ExecutionContext, cause error) {
	t.publish(ctx, domain.DeviceRuntimeState{
		DeviceID:     ec.DeviceID,
		State:        domain.DeviceIdle,
		WorkflowID:   workflowID(ec),
		Progress:     ec.Progress(),
		ErrorMessage: cause.Error(),
	})

	telemetry.DeviceRuns.WithLabelValues(telemetry.OutcomeInterrupted).Inc()
}

// publish записывает снимок, дополняя его nodeId и временем.
func (t *Tracker) publish(ctx context.Context, st domain.DeviceRuntimeState) {
	st.NodeID = t.nodeID
	st.UpdatedAt = t.now()

	if err := t.store.SetDeviceState(ctx, st); err != nil {
		t.logger.Warn("failed to publish device state",
			"device_id", st.DeviceID,
			"state", st.State,
			"error", err,
		)
	}
}

func (t *Tracker) emit(ctx context.Context, name string, payload any) {
	if err := t.events.PublishEvent(ctx, name, payload); err != nil {
		t.logger.Warn("failed to publish event",
			"event", name,
			"error", err,
		)
	}
}

func workflowID(ec *domain.ExecutionContext) string {
	if ec.Workflow == nil {
		return ""
	}
	return ec.Workflow.ID
}

// discardEvents — EventPublisher воркера без RabbitMQ.
type discardEvents struct{}

func (discardEvents) PublishEvent(context.Context, string, any) error         { return nil }
func (discardEvents) PublishAlert(context.Context, string, string, any) error { return nil }
