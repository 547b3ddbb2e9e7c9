// Package repo хранит записи выполнения job'ов в PostgreSQL (pgx).
//
// Таблица job_executions (schema.sql, применяется через Migrate):
//
//	QUEUED → RUNNING → COMPLETED | COMPLETED_WITH_ERRORS
//	       ↘ FAILED (workflow неизвестен)
//	QUEUED | RUNNING → CANCELLED
//
// Claim переводит QUEUED → RUNNING атомарно (UPDATE ... WHERE status = 'QUEUED'),
// поэтому одну запись не возьмут два воркера.
package repo
