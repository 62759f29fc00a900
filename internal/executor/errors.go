package executor

import "errors"

// Ошибки executor'а.
var (
	// ErrUnitCrashed — изоляционная единица завершилась вне штатного пути отчёта.
	ErrUnitCrashed = errors.New("executor unit crashed")

	// ErrUnitNotStarted — единица не запущена или уже остановлена.
	ErrUnitNotStarted = errors.New("executor unit not started")

	// ErrRestartFailed — не удалось перезапустить единицу после краха.
	ErrRestartFailed = errors.New("executor unit restart failed")

	// ErrClosed — executor закрыт.
	ErrClosed = errors.New("executor closed")

	// ErrInterrupted — выполнение прервано отменой ctx вызывающего.
	// Исхода нет: сообщение нужно оставить брокеру для передоставки.
	ErrInterrupted = errors.New("execution interrupted")

	// ErrBusy — в executor'е уже находится envelope.
	ErrBusy = errors.New("executor busy")
)
