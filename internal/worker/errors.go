package worker

import "errors"

// Ошибки воркера.
var (
	// ErrAlreadyRunning — Run вызван повторно.
	ErrAlreadyRunning = errors.New("worker already running")

	// ErrNoQueue — не задан адаптер брокера.
	ErrNoQueue = errors.New("worker: queue adapter is required")

	// ErrNoExecutor — не задан executor.
	ErrNoExecutor = errors.New("worker: executor is required")

	// ErrUnknownAction — исход не отображается в действие брокера.
	ErrUnknownAction = errors.New("unknown ack action")
)
