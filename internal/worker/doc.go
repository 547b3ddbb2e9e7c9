// Package worker выполняет job'ы на парке устройств.
//
// # Обзор
//
// Worker получает job'ы из очереди jobs.execute и, как fallback, из
// QUEUED записей в БД. Для каждого job'а:
//
//  1. Ensure — создаёт запись выполнения, если её нет
//  2. Claim — QUEUED → RUNNING с node_id воркера (иначе сообщение подтверждается без выполнения)
//  3. Aggregator.Run — выполнение workflow на всех устройствах
//  4. Прогресс — UpdateProgress в БД и job.progress в очередь после каждого устройства
//
// Job'ы выполняются по одному (prefetch 1, общий lock для consumer и polling).
// Горизонтальное масштабирование — несколько воркеров на одной очереди.
//
//	w := worker.New(worker.Config{
//	    Jobs:     jobRepo,
//	    Runner:   agg,
//	    Progress: publisher,
//	    Nodes:    stateStore,
//	    Conn:     mqConn,
//	    NodeID:   cfg.NodeID,
//	    Logger:   logger,
//	})
//	if err := w.Start(ctx); err != nil {
//	    return err
//	}
//	defer w.Stop()
//
// # Ошибки
//
//   - Неразбираемое сообщение, неизвестный workflow — mq.Permanent (nack в DLQ);
//     для неизвестного workflow запись переводится в FAILED
//   - Ошибки БД до начала выполнения — nack с requeue
//   - Ошибка сохранения итога — только лог (устройства уже отработали)
//
// # Heartbeat
//
// Статус воркера {nodeId, status, executionId, updatedAt} пишется в
// хранилище состояния каждые heartbeat-interval с TTL 3× интервала.
package worker
