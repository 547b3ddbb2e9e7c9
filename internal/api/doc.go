// Package api — HTTP status API воркера.
//
// Структура:
//   - handler.go        — Handler с зависимостями (каталог, записи выполнения, состояние устройств)
//   - routes.go         — регистрация маршрутов
//   - middleware.go     — middleware (request id, recovery, логирование и метрики)
//   - response.go       — унифицированные JSON-ответы и обработка ошибок
//   - status_handler.go — обработчики
//
// Маршруты:
//
//	GET  /healthz
//	GET  /metrics
//	GET  /api/v1/workflows
//	GET  /api/v1/workflows/{id}
//	POST /api/v1/workflows/reload
//	GET  /api/v1/executions/{id}
//	GET  /api/v1/devices/{id}
//
// API только читает состояние: job'ы ставятся через очередь (fleet job submit).
package api
