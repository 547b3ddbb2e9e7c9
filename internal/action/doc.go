// Package action выполняет действия шагов workflow.
//
// Dispatcher получает шаг с уже отрезолвленными параметрами, разбирает их
// в типизированный Payload и направляет к исполнителю:
//
//	script    → Actuator скриптов (HTTPActuator, путь "scripts")
//	shell     → Actuator shell-команд (HTTPActuator, путь "shell")
//	wait      → пауза в процессе (duration, default 1000 ms)
//	system    → таблица внутренних действий (mark-complete, log)
//	condition → выражение expr-lang над контекстом выполнения
//
// Dispatcher выполняет ровно одну попытку. Повторы, таймауты попыток и
// политика ошибок — ответственность engine.Sequencer.
//
// Отсутствующие обязательные поля, неизвестное системное действие и
// некомпилируемое выражение — ошибки конфигурации (domain.ErrConfiguration).
package action
