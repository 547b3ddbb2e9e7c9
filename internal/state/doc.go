// Package state хранит живое состояние устройств и воркеров.
//
// Снимки DeviceRuntimeState пишет lifecycle.Tracker, читают внешние
// наблюдатели (дашборды, CLI). Счётчик подряд неудачных выполнений
// хранится отдельно от снимка и переживает отдельные job'ы.
//
// Реализации:
//   - RedisStore  — production (go-redis v9, ключи с namespace)
//   - MemoryStore — тесты и локальный запуск
package state
