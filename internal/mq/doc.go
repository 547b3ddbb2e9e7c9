// Package mq — транспорт RabbitMQ для воркера и CLI.
//
// Структура:
//   - connection.go — соединение с автоматическим reconnect, каналы consume и publish
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — публикация job'ов, прогресса, итогов, событий и алертов
//   - consumer.go   — потребление с ack/nack
//
// Типы сообщений:
//   - job.execute   — job для выполнения (fleet.jobs / execute)
//   - job.progress  — прогресс job'а (fleet.jobs / progress)
//   - job.completed — итог job'а (fleet.jobs / completed)
//   - device.event  — событие устройства (fleet.events / device.<event>)
//   - alert         — алерт (fleet.events / alert.<severity>)
//
// Неразбираемые сообщения, сообщения чужого типа и ошибки, обёрнутые
// Permanent, уходят в fleet.dlq.
package mq
