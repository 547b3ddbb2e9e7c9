package action

import (
	"errors"
	"fmt"

	"github.com/shaiso/Fleet/internal/domain"
)

// Ошибки действий.
//
// Ошибки конфигурации оборачивают domain.ErrConfiguration и не повторяются
// Sequencer'ом. Остальные — ошибки выполнения, к ним применяется RetryPolicy.
var (
	// ErrUnknownAction — тип действия вне закрытого набора.
	ErrUnknownAction = fmt.Errorf("%w: unknown action kind", domain.ErrConfiguration)

	// ErrUnknownSystemAction — имя системного действия не найдено в таблице.
	ErrUnknownSystemAction = fmt.Errorf("%w: unknown system action", domain.ErrConfiguration)

	// ErrMissingField — в параметрах шага нет обязательного поля.
	ErrMissingField = fmt.Errorf("%w: missing required field", domain.ErrConfiguration)

	// ErrInvalidField — поле параметров имеет неверный тип.
	ErrInvalidField = fmt.Errorf("%w: invalid field", domain.ErrConfiguration)

	// ErrInvalidExpression — выражение условия не компилируется.
	ErrInvalidExpression = fmt.Errorf("%w: invalid condition expression", domain.ErrConfiguration)

	// ErrNoActuator — для типа действия не настроен актуатор.
	ErrNoActuator = fmt.Errorf("%w: actuator not configured", domain.ErrConfiguration)

	// ErrActuator — вызов актуатора завершился ошибкой.
	ErrActuator = errors.New("actuator call failed")

	// ErrConditionFalse — условие с assert: true вернуло false.
	ErrConditionFalse = errors.New("condition is false")

	// ErrConditionEval — ошибка вычисления условия во время выполнения.
	ErrConditionEval = errors.New("condition evaluation failed")
)
