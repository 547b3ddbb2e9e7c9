package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Fleet/internal/domain"
)

// pgUniqueViolation — код ошибки PostgreSQL при нарушении уникальности.
const pgUniqueViolation = "23505"

const executionColumns = `
	id, workflow_id, device_ids, params, status, node_id, progress,
	result, error, started_at, finished_at, created_at`

// JobRepo — репозиторий записей выполнения job'ов (таблица job_executions).
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

// Create создаёт запись в статусе QUEUED.
func (r *JobRepo) Create(ctx context.Context, req domain.JobRequest) (*domain.Execution, error) {
	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	query := `
		INSERT INTO job_executions (id, workflow_id, device_ids, params, status, progress, created_at)
		VALUES ($1, $2, $3, $4, 'QUEUED', 0, $5)
		RETURNING ` + executionColumns

	exec, err := scanExecution(r.pool.QueryRow(ctx, query,
		req.ExecutionID,
		req.WorkflowID,
		deviceIDs(req.DeviceIDs),
		paramsJSON,
		time.Now(),
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("%w: execution %s", ErrAlreadyExists, req.ExecutionID)
		}
		return nil, fmt.Errorf("insert execution: %w", err)
	}
	return exec, nil
}

// Ensure создаёт запись, если её нет, и возвращает текущее состояние.
//
// Сообщение job.execute может прийти без предварительно созданной записи
// (публикация не через CLI) или повторно — обе ситуации обрабатываются
// одинаково.
func (r *JobRepo) Ensure(ctx context.Context, req domain.JobRequest) (*domain.Execution, error) {
	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	query := `
		INSERT INTO job_executions (id, workflow_id, device_ids, params, status, progress, created_at)
		VALUES ($1, $2, $3, $4, 'QUEUED', 0, $5)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query,
		req.ExecutionID,
		req.WorkflowID,
		deviceIDs(req.DeviceIDs),
		paramsJSON,
		time.Now(),
	); err != nil {
		return nil, fmt.Errorf("ensure execution: %w", err)
	}

	return r.GetByID(ctx, req.ExecutionID)
}

// GetByID возвращает запись по ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM job_executions WHERE id = $1`
	return scanExecution(r.pool.QueryRow(ctx, query, id))
}

// Claim переводит запись QUEUED → RUNNING и закрепляет её за воркером.
// Если запись не в QUEUED (уже взята или отменена), возвращает ErrInvalidState.
func (r *JobRepo) Claim(ctx context.Context, id, nodeID string) error {
	query := `
		UPDATE job_executions
		SET status = 'RUNNING', node_id = $2, started_at = $3
		WHERE id = $1 AND status = 'QUEUED'
	`
	result, err := r.pool.Exec(ctx, query, id, nodeID, time.Now())
	if err != nil {
		return fmt.Errorf("claim execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: execution %s is not queued", ErrInvalidState, id)
	}
	return nil
}

// UpdateProgress записывает прогресс job'а.
func (r *JobRepo) UpdateProgress(ctx context.Context, id string, percent int) error {
	query := `UPDATE job_executions SET progress = $2 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id, percent)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetJobResult сохраняет итог job'а и финальный статус.
// Отменённая запись сохраняет статус CANCELLED, но получает результат.
func (r *JobRepo) SetJobResult(ctx context.Context, executionID string, res *domain.JobExecutionResult) error {
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		UPDATE job_executions
		SET status = CASE WHEN status = 'CANCELLED' THEN status ELSE $2 END,
		    result = $3, progress = 100, finished_at = $4
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		executionID,
		string(domain.ExecutionStatusFor(res.Status)),
		resultJSON,
		res.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("set job result: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed переводит запись в FAILED (job не может быть выполнен).
func (r *JobRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	query := `
		UPDATE job_executions
		SET status = 'FAILED', error = $2, finished_at = $3
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, nullString(errMsg), time.Now())
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Cancel отменяет запись в статусе QUEUED или RUNNING.
//
// Выполняющийся job проверяет отмену перед каждым следующим устройством.
func (r *JobRepo) Cancel(ctx context.Context, id string) error {
	query := `
		UPDATE job_executions
		SET status = 'CANCELLED',
		    finished_at = CASE WHEN status = 'QUEUED' THEN $2 ELSE finished_at END
		WHERE id = $1 AND status IN ('QUEUED', 'RUNNING')
	`
	result, err := r.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("cancel execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: execution %s is already finished", ErrInvalidState, id)
	}
	return nil
}

// IsCancelled проверяет, отменён ли job.
func (r *JobRepo) IsCancelled(ctx context.Context, id string) (bool, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM job_executions WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("get execution status: %w", err)
	}
	return domain.ExecutionStatus(status) == domain.ExecutionCancelled, nil
}

// ListQueued возвращает записи в статусе QUEUED, старые первыми.
func (r *JobRepo) ListQueued(ctx context.Context, limit int) ([]domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM job_executions
		WHERE status = 'QUEUED'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list queued executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

// --- Helpers ---

// scanExecution сканирует одну строку в Execution.
// pgx.Rows реализует pgx.Row, поэтому подходит и для QueryRow, и для Query.
func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var exec domain.Execution
	var status string
	var paramsJSON, resultJSON []byte
	var nodeID, execError *string

	err := row.Scan(
		&exec.ID,
		&exec.WorkflowID,
		&exec.DeviceIDs,
		&paramsJSON,
		&status,
		&nodeID,
		&exec.Progress,
		&resultJSON,
		&execError,
		&exec.StartedAt,
		&exec.FinishedAt,
		&exec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	exec.Status = domain.ExecutionStatus(status)
	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &exec.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
	}
	if resultJSON != nil {
		exec.Result = &domain.JobExecutionResult{}
		if err := json.Unmarshal(resultJSON, exec.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if nodeID != nil {
		exec.NodeID = *nodeID
	}
	if execError != nil {
		exec.Error = *execError
	}

	return &exec, nil
}

// deviceIDs возвращает непустой slice (NOT NULL в БД).
func deviceIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
