package action

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/shaiso/Fleet/internal/domain"
)

// Conditions вычисляет условия шагов condition на expr-lang.
//
// Окружение выражения:
//
//	params      — входные параметры job'а
//	vars        — результаты завершённых шагов
//	deviceId    — устройство
//	workflowId  — workflow
//	executionId — выполнение
//	stepIndex   — индекс текущего шага
//
// Скомпилированные программы кэшируются по тексту выражения.
// Безопасен для конкурентного использования.
type Conditions struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewConditions создаёт вычислитель условий.
func NewConditions() *Conditions {
	return &Conditions{cache: make(map[string]*vm.Program)}
}

// Env строит окружение выражения для контекста выполнения.
func Env(ec *domain.ExecutionContext) map[string]any {
	workflowID := ""
	if ec.Workflow != nil {
		workflowID = ec.Workflow.ID
	}
	return map[string]any{
		"params":      ec.Params,
		"vars":        ec.Variables,
		"deviceId":    ec.DeviceID,
		"workflowId":  workflowID,
		"executionId": ec.ExecutionID,
		"stepIndex":   ec.CurrentStepIndex,
	}
}

// Evaluate вычисляет выражение и возвращает булев результат.
func (c *Conditions) Evaluate(expression string, env map[string]any) (bool, error) {
	prg, err := c.compile(expression, env)
	if err != nil {
		return false, err
	}

	out, err := expr.Run(prg, env)
	if err != nil {
		return false, fmt.Errorf("%w: %q: %v", ErrConditionEval, expression, err)
	}

	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q returned %T, expected bool", ErrConditionEval, expression, out)
	}
	return result, nil
}

// compile возвращает программу из кэша или компилирует новую.
func (c *Conditions) compile(expression string, env map[string]any) (*vm.Program, error) {
	c.mu.RLock()
	if prg, ok := c.cache[expression]; ok {
		c.mu.RUnlock()
		return prg, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if prg, ok := c.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expression, err)
	}

	c.cache[expression] = prg
	return prg, nil
}
