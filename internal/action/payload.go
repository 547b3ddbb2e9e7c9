package action

import (
	"fmt"
	"strconv"

	"github.com/shaiso/Fleet/internal/domain"
)

// DefaultWait — длительность wait, если duration не задан или некорректен.
const DefaultWait = 1000

// Payload — типизированные параметры действия.
//
// Реализации: ScriptPayload, ShellPayload, WaitPayload, SystemPayload,
// ConditionPayload. Набор закрыт: метод payload() не экспортируется.
type Payload interface {
	Kind() domain.ActionKind
	payload()
}

// ScriptPayload — запуск скрипта автоматизации на устройстве.
//
//   - script (string): имя скрипта (обязательно)
//   - params (map): параметры скрипта
type ScriptPayload struct {
	Script string
	Params map[string]any
}

// ShellPayload — shell-команда на устройстве.
//
//   - command (string): команда (обязательно)
type ShellPayload struct {
	Command string
}

// WaitPayload — пауза.
//
//   - duration (number | numeric string): миллисекунды. Default: 1000
type WaitPayload struct {
	DurationMs int
}

// SystemPayload — внутреннее системное действие.
//
//   - name (string): имя действия из таблицы (обязательно)
//   - message (string): текст для "log"
type SystemPayload struct {
	Name    string
	Message string
}

// ConditionPayload — вычисление условия.
//
//   - expression (string): выражение expr-lang (обязательно)
//   - assert (bool): false-результат — ошибка шага. Default: false
type ConditionPayload struct {
	Expression string
	Assert     bool
}

func (ScriptPayload) Kind() domain.ActionKind    { return domain.ActionScript }
func (ShellPayload) Kind() domain.ActionKind     { return domain.ActionShell }
func (WaitPayload) Kind() domain.ActionKind      { return domain.ActionWait }
func (SystemPayload) Kind() domain.ActionKind    { return domain.ActionSystem }
func (ConditionPayload) Kind() domain.ActionKind { return domain.ActionCondition }

func (ScriptPayload) payload()    {}
func (ShellPayload) payload()     {}
func (WaitPayload) payload()      {}
func (SystemPayload) payload()    {}
func (ConditionPayload) payload() {}

// Decode разбирает отрезолвленные параметры шага в Payload для kind.
func Decode(kind domain.ActionKind, params map[string]any) (Payload, error) {
	switch kind {
	case domain.ActionScript:
		script, err := requireString(params, "script")
		if err != nil {
			return nil, err
		}
		scriptParams, err := optionalMap(params, "params")
		if err != nil {
			return nil, err
		}
		return ScriptPayload{Script: script, Params: scriptParams}, nil

	case domain.ActionShell:
		command, err := requireString(params, "command")
		if err != nil {
			return nil, err
		}
		return ShellPayload{Command: command}, nil

	case domain.ActionWait:
		return WaitPayload{DurationMs: parseDuration(params["duration"])}, nil

	case domain.ActionSystem:
		name, err := requireString(params, "name")
		if err != nil {
			return nil, err
		}
		return SystemPayload{Name: name, Message: getString(params, "message", "")}, nil

	case domain.ActionCondition:
		expression, err := requireString(params, "expression")
		if err != nil {
			return nil, err
		}
		assert, err := optionalBool(params, "assert")
		if err != nil {
			return nil, err
		}
		return ConditionPayload{Expression: expression, Assert: assert}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, kind)
	}
}

// parseDuration разбирает duration wait-шага.
// Отсутствующее, нечисловое или неположительное значение — DefaultWait.
func parseDuration(v any) int {
	ms := 0
	switch d := v.(type) {
	case int:
		ms = d
	case int64:
		ms = int(d)
	case float64:
		ms = int(d)
	case string:
		if n, err := strconv.ParseFloat(d, 64); err == nil {
			ms = int(n)
		}
	}
	if ms <= 0 {
		return DefaultWait
	}
	return ms
}

// getString извлекает строку из map с default значением.
func getString(m map[string]any, key, defaultVal string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}

// requireString извлекает обязательное непустое строковое поле.
func requireString(m map[string]any, key string) (string, error) {
	val, ok := m[key]
	if !ok || val == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidField, key, val)
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	return s, nil
}

// optionalMap извлекает необязательное поле-объект.
func optionalMap(m map[string]any, key string) (map[string]any, error) {
	val, ok := m[key]
	if !ok || val == nil {
		return map[string]any{}, nil
	}
	obj, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object, got %T", ErrInvalidField, key, val)
	}
	return obj, nil
}

// optionalBool извлекает необязательное булево поле.
func optionalBool(m map[string]any, key string) (bool, error) {
	val, ok := m[key]
	if !ok || val == nil {
		return false, nil
	}
	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a bool, got %T", ErrInvalidField, key, val)
	}
	return b, nil
}
