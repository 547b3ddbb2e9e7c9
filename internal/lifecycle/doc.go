// Package lifecycle ведёт состояние устройств во время выполнения workflow.
//
// Переходы:
//
//	idle | error → running            Start
//	running      → running(step, %)   StepStarted
//	running      → idle               Complete
//	running      → error              Fail, счётчик < порога
//	running      → quarantined        Fail, счётчик >= порога (алерт warning)
//
// Счётчик подряд неудачных выполнений хранится отдельно от снимка,
// обнуляется при успехе любого шага и не обнуляется при старте job'а.
// Выхода из карантина нет: его снимает оператор (fleet device clear).
package lifecycle
