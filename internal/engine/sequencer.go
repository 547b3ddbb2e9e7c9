package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Fleet/internal/domain"
	"github.com/shaiso/Fleet/internal/telemetry"
)

// Значения по умолчанию для Sequencer.
const (
	DefaultStepTimeout    = 30 * time.Second
	DefaultMaxTransitions = 1000
)

// ErrStepTimeout — попытка шага превысила таймаут.
var ErrStepTimeout = errors.New("step timeout")

// Executor — выполняет одно действие шага.
//
// Реализация: action.Dispatcher. Ретраи — ответственность Sequencer'а,
// Executor выполняет ровно одну попытку.
type Executor interface {
	Execute(ctx context.Context, ec *domain.ExecutionContext, step *domain.Step, params map[string]any) (any, error)
}

// StepObserver получает уведомления о ходе выполнения.
//
// Реализация: lifecycle.Tracker.
type StepObserver interface {
	StepStarted(ctx context.Context, ec *domain.ExecutionContext, step *domain.Step)
	StepSucceeded(ctx context.Context, ec *domain.ExecutionContext, step *domain.Step)
}

// SleepFunc — ожидание между попытками.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SequencerConfig — конфигурация Sequencer.
type SequencerConfig struct {
	// Executor — исполнитель действий (обязательно).
	Executor Executor

	// Observer — получатель событий шагов (опционально).
	Observer StepObserver

	// DefaultStepTimeout — таймаут попытки, если у шага не задан (default: 30s).
	DefaultStepTimeout time.Duration

	// MaxTransitions — лимит выполнений шагов за один прогон (default: 1000).
	MaxTransitions int

	// Sleep — ожидание между попытками (default: WaitForBackoff).
	Sleep SleepFunc

	Logger *slog.Logger
}

// Sequencer выполняет workflow на одном устройстве.
//
// Состояния: pending → running(stepIndex) → advance | branch |
// terminal-success | terminal-failure.
type Sequencer struct {
	executor       Executor
	observer       StepObserver
	stepTimeout    time.Duration
	maxTransitions int
	sleep          SleepFunc
	logger         *slog.Logger
}

// NewSequencer создаёт новый Sequencer.
func NewSequencer(cfg SequencerConfig) *Sequencer {
	stepTimeout := cfg.DefaultStepTimeout
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}

	maxTransitions := cfg.MaxTransitions
	if maxTransitions <= 0 {
		maxTransitions = DefaultMaxTransitions
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = WaitForBackoff
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sequencer{
		executor:       cfg.Executor,
		observer:       cfg.Observer,
		stepTimeout:    stepTimeout,
		maxTransitions: maxTransitions,
		sleep:          sleep,
		logger:         logger,
	}
}

// Run выполняет шаги workflow по порядку до terminal-success (nil)
// или terminal-failure (ошибка).
func (s *Sequencer) Run(ctx context.Context, ec *domain.ExecutionContext) error {
	wf := ec.Workflow
	if wf == nil {
		return fmt.Errorf("%w: execution context has no workflow", domain.ErrConfiguration)
	}

	if wf.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(wf.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	logger := s.logger.With(
		"execution_id", ec.ExecutionID,
		"device_id", ec.DeviceID,
		"workflow_id", wf.ID,
	)

	transitions := 0
	for ec.CurrentStepIndex < len(wf.Steps) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("workflow interrupted at step %d: %w", ec.CurrentStepIndex, err)
		}

		transitions++
		if transitions > s.maxTransitions {
			return fmt.Errorf("%w: %d", ErrTransitionLimit, s.maxTransitions)
		}

		step := &wf.Steps[ec.CurrentStepIndex]
		if s.observer != nil {
			s.observer.StepStarted(ctx, ec, step)
		}

		result, attempts, err := s.executeWithRetry(ctx, ec, step, logger)
		if err == nil {
			ec.Variables[step.ID] = result
			ec.CurrentStepIndex++
			if s.observer != nil {
				s.observer.StepSucceeded(ctx, ec, step)
			}
			continue
		}

		stepErr := &StepError{StepID: step.ID, Attempts: attempts, Err: err}

		// Ошибки конфигурации и прерывание не обрабатываются политикой ошибок
		if IsConfigurationError(err) || ctx.Err() != nil {
			return stepErr
		}

		switch step.ErrorPolicyOrDefault() {
		case domain.ErrorPolicySkip:
			logger.Warn("step failed, skipping",
				"step_id", step.ID,
				"attempts", attempts,
				"error", err,
			)
			ec.CurrentStepIndex++

		case domain.ErrorPolicyGoto:
			target := wf.StepIndex(step.NextOnError)
			if target < 0 {
				return fmt.Errorf("%w: step %s: %q (after: %v)",
					ErrGotoTargetNotFound, step.ID, step.NextOnError, stepErr)
			}
			logger.Warn("step failed, jumping",
				"step_id", step.ID,
				"next_step_id", step.NextOnError,
				"attempts", attempts,
				"error", err,
			)
			ec.CurrentStepIndex = target

		default:
			return stepErr
		}
	}

	return nil
}

// executeWithRetry выполняет шаг до RetryPolicy.Attempts раз.
// Возвращает результат, число сделанных попыток и последнюю ошибку.
func (s *Sequencer) executeWithRetry(ctx context.Context, ec *domain.ExecutionContext, step *domain.Step, logger *slog.Logger) (any, int, error) {
	policy := step.Retry.Normalize()
	params := Resolve(step.Params, ec.Scope())
	action := string(step.Action)

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if attempt > 1 {
			delay := DelayFor(policy, attempt-1)

			logger.Debug("retrying step",
				"step_id", step.ID,
				"attempt", attempt,
				"delay", delay,
			)
			telemetry.StepRetries.WithLabelValues(action).Inc()

			if err := s.sleep(ctx, delay); err != nil {
				return nil, attempt - 1, err
			}
		}

		result, err := s.attempt(ctx, ec, step, params)
		if err == nil {
			telemetry.StepAttempts.WithLabelValues(action, telemetry.ResultOK).Inc()
			return result, attempt, nil
		}

		telemetry.StepAttempts.WithLabelValues(action, telemetry.ResultError).Inc()
		lastErr = err

		logger.Warn("step attempt failed",
			"step_id", step.ID,
			"attempt", attempt,
			"max_attempts", policy.Attempts,
			"error", err,
		)

		// Ошибки конфигурации не повторяются
		if IsConfigurationError(err) || ctx.Err() != nil {
			return nil, attempt, err
		}
	}

	return nil, policy.Attempts, lastErr
}

// attempt выполняет одну попытку под таймаутом шага.
func (s *Sequencer) attempt(ctx context.Context, ec *domain.ExecutionContext, step *domain.Step, params map[string]any) (any, error) {
	timeout := s.timeoutFor(step)
	if timeout <= 0 {
		return s.executor.Execute(ctx, ec, step, params)
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := s.executor.Execute(stepCtx, ec, step, params)
	if err != nil && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s after %s: %v", ErrStepTimeout, step.ID, timeout, err)
	}
	return result, err
}

// timeoutFor возвращает таймаут попытки.
// Для wait без явного таймаута ограничение не ставится: длительность задаёт сам шаг.
func (s *Sequencer) timeoutFor(step *domain.Step) time.Duration {
	if step.TimeoutMs > 0 {
		return time.Duration(step.TimeoutMs) * time.Millisecond
	}
	if step.Action == domain.ActionWait {
		return 0
	}
	return s.stepTimeout
}
