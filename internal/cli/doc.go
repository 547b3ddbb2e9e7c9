// Package cli реализует операторскую утилиту fleet.
//
// # Обзор
//
// fleet работает напрямую с инфраструктурой воркеров: записи выполнения
// в Postgres, очередь jobs.execute в RabbitMQ, состояние устройств в Redis.
// Отдельного API-сервера нет.
//
// # Ключевые компоненты
//
// ## Backend
//
// Лениво открываемые зависимости команд. Connections открывает соединение
// только при первом обращении, поэтому workflow validate работает без
// инфраструктуры.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы и карточки (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Warn/Error) — в stderr:
// fleet job show ID --json | jq .status
//
// ## Commands
//
//   - job: submit, show, cancel
//   - device: show, clear
//   - node: show
//   - workflow: validate, list
//
// Каждая группа создаётся фабричной функцией (NewJobCmd и т.д.),
// принимающей backendFn и outputFn — замыкания, вызываемые после
// разбора PersistentFlags.
package cli
