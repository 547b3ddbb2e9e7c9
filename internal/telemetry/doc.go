// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// Воркер и CLI используют единый формат логирования,
// воркер экспортирует метрики на /metrics endpoint.
package telemetry
