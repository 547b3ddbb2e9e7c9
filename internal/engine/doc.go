// Package engine содержит движок выполнения workflow на одном устройстве.
//
// Включает:
//   - parser.go    — структурная валидация WorkflowDefinition и lint-предупреждения
//   - params.go    — подстановка переменных ($name) в параметры шага
//   - retry.go     — вычисление задержки между попытками (fixed / exponential)
//   - sequencer.go — пошаговое выполнение с ретраями и политикой ошибок
//
// Sequencer не знает о конкретных действиях: шаг выполняется через
// интерфейс Executor (action.Dispatcher), а ход выполнения сообщается
// через StepObserver (lifecycle.Tracker).
//
// Политика ошибок после исчерпания попыток:
//
//	fail → выполнение на устройстве завершается ошибкой
//	skip → переход к следующему шагу, результат не сохраняется
//	goto → переход к шагу nextOnError (нет такого шага — ошибка конфигурации)
package engine
