package action

import (
	"fmt"
	"sort"
	"time"

	"github.com/shaiso/Fleet/internal/domain"
)

// Имена внутренних системных действий.
const (
	SystemMarkComplete = "mark-complete"
	SystemLog          = "log"
)

// systemFunc — внутреннее системное действие.
type systemFunc func(d *Dispatcher, ec *domain.ExecutionContext, step *domain.Step, p SystemPayload) (any, error)

// systemActions — фиксированная таблица системных действий.
var systemActions = map[string]systemFunc{
	SystemMarkComplete: func(d *Dispatcher, _ *domain.ExecutionContext, _ *domain.Step, _ SystemPayload) (any, error) {
		return map[string]any{
			"completed":   true,
			"completedAt": d.now().UTC().Format(time.RFC3339),
		}, nil
	},
	SystemLog: func(d *Dispatcher, ec *domain.ExecutionContext, step *domain.Step, p SystemPayload) (any, error) {
		d.logger.Info(p.Message,
			"execution_id", ec.ExecutionID,
			"device_id", ec.DeviceID,
			"step_id", step.ID,
		)
		return map[string]any{"logged": true}, nil
	},
}

// SystemActions возвращает отсортированные имена системных действий.
func SystemActions() []string {
	names := make([]string, 0, len(systemActions))
	for name := range systemActions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) runSystem(ec *domain.ExecutionContext, step *domain.Step, p SystemPayload) (any, error) {
	fn, ok := systemActions[p.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSystemAction, p.Name)
	}
	return fn(d, ec, step, p)
}
