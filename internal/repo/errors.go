package repo

import "errors"

// Ошибки JobRepo.
var (
	// ErrNotFound — записи выполнения с таким ID нет.
	ErrNotFound = errors.New("execution not found")

	// ErrAlreadyExists — execution ID уже занят.
	ErrAlreadyExists = errors.New("execution already exists")

	// ErrInvalidState — переход недопустим из текущего статуса записи.
	ErrInvalidState = errors.New("invalid execution state")
)
