package action

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Fleet/internal/domain"
)

// Config — конфигурация Dispatcher.
type Config struct {
	// Scripts — актуатор скриптов автоматизации на устройстве.
	Scripts Actuator

	// Shell — актуатор shell-команд.
	Shell Actuator

	// ActuatorTimeout — таймаут вызова актуатора по умолчанию (default: 30s).
	ActuatorTimeout time.Duration

	// Conditions — вычислитель условий (default: NewConditions()).
	Conditions *Conditions

	// Sleep — ожидание для wait (default: ожидание по таймеру с учётом ctx).
	Sleep func(ctx context.Context, d time.Duration) error

	// Now — источник времени для mark-complete (default: time.Now).
	Now func() time.Time

	Logger *slog.Logger
}

// Dispatcher направляет шаг к исполнителю по типу действия.
//
// Не хранит состояния выполнения и не делает повторов.
// Реализует engine.Executor.
type Dispatcher struct {
	scripts    Actuator
	shell      Actuator
	timeout    time.Duration
	conditions *Conditions
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	logger     *slog.Logger
}

// NewDispatcher создаёт Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		scripts:    cfg.Scripts,
		shell:      cfg.Shell,
		timeout:    cfg.ActuatorTimeout,
		conditions: cfg.Conditions,
		sleep:      cfg.Sleep,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
	if d.timeout <= 0 {
		d.timeout = defaultActuatorTimeout
	}
	if d.conditions == nil {
		d.conditions = NewConditions()
	}
	if d.sleep == nil {
		d.sleep = sleepCtx
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Execute выполняет одну попытку шага с отрезолвленными параметрами.
func (d *Dispatcher) Execute(ctx context.Context, ec *domain.ExecutionContext, step *domain.Step, params map[string]any) (any, error) {
	p, err := Decode(step.Action, params)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", step.ID, err)
	}

	switch p := p.(type) {
	case ScriptPayload:
		return d.runScript(ctx, ec, step, p)
	case ShellPayload:
		return d.runShell(ctx, ec, step, p)
	case WaitPayload:
		return d.runWait(ctx, p)
	case SystemPayload:
		return d.runSystem(ec, step, p)
	case ConditionPayload:
		return d.runCondition(ec, p)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, step.Action)
	}
}

func (d *Dispatcher) runScript(ctx context.Context, ec *domain.ExecutionContext, step *domain.Step, p ScriptPayload) (any, error) {
	if d.scripts == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoActuator, domain.ActionScript)
	}

	out, err := d.scripts.Invoke(ctx, ec.DeviceID, map[string]any{
		"script": p.Script,
		"params": p.Params,
	}, d.timeoutFor(step))
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"success": true,
		"script":  p.Script,
		"params":  p.Params,
		"output":  out,
	}, nil
}

func (d *Dispatcher) runShell(ctx context.Context, ec *domain.ExecutionContext, step *domain.Step, p ShellPayload) (any, error) {
	if d.shell == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoActuator, domain.ActionShell)
	}

	out, err := d.shell.Invoke(ctx, ec.DeviceID, map[string]any{
		"command": p.Command,
	}, d.timeoutFor(step))
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"success": true,
		"command": p.Command,
		"output":  out,
	}, nil
}

// runWait ждёт DurationMs. Всегда успешен, если контекст не отменён.
func (d *Dispatcher) runWait(ctx context.Context, p WaitPayload) (any, error) {
	if err := d.sleep(ctx, time.Duration(p.DurationMs)*time.Millisecond); err != nil {
		return nil, err
	}
	return map[string]any{"waitedMs": p.DurationMs}, nil
}

func (d *Dispatcher) runCondition(ec *domain.ExecutionContext, p ConditionPayload) (any, error) {
	ok, err := d.conditions.Evaluate(p.Expression, Env(ec))
	if err != nil {
		return nil, err
	}
	if p.Assert && !ok {
		return nil, fmt.Errorf("%w: %s", ErrConditionFalse, p.Expression)
	}
	return ok, nil
}

// timeoutFor возвращает таймаут, передаваемый актуатору.
func (d *Dispatcher) timeoutFor(step *domain.Step) time.Duration {
	if step.TimeoutMs > 0 {
		return time.Duration(step.TimeoutMs) * time.Millisecond
	}
	return d.timeout
}

// sleepCtx ждёт d или отмены контекста.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
