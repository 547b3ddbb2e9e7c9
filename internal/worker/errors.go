package worker

import "errors"

// Ошибки воркера.
var (
	// ErrJobNotQueued — запись выполнения не в статусе QUEUED
	// (уже взята другим воркером, завершена или отменена).
	ErrJobNotQueued = errors.New("job is not queued")

	// ErrInvalidJob — в сообщении job.execute нет executionId или workflowId.
	ErrInvalidJob = errors.New("invalid job request")
)
