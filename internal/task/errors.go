package task

import (
	"errors"
	"fmt"
)

// Ошибки task-уровня.
//
// Тело task сигнализирует о своём решении возвратом (обёрнутой) ошибки.
// Классификация выполняется через errors.Is, см. Classify.
var (
	// ErrReject — task просит вернуть сообщение в очередь для другого worker'а.
	ErrReject = errors.New("task rejected")

	// ErrDiscard — task просит удалить сообщение без повторной доставки.
	ErrDiscard = errors.New("task discarded")

	// ErrTimeout — task превысил допустимое время выполнения.
	ErrTimeout = errors.New("task exceeded max run time")

	// ErrTaskNotFound — имя task не найдено в реестре.
	ErrTaskNotFound = errors.New("task not found")

	// ErrPanic — тело task запаниковало.
	ErrPanic = errors.New("task panicked")
)

// Reject возвращает ошибку, по которой сообщение будет передоставлено.
func Reject(reason string) error {
	return fmt.Errorf("%w: %s", ErrReject, reason)
}

// Discard возвращает ошибку, по которой сообщение будет удалено.
func Discard(reason string) error {
	return fmt.Errorf("%w: %s", ErrDiscard, reason)
}

// PanicError — паника тела task, превращённая в ошибку.
type PanicError struct {
	Value any
	Stack []byte
}

// Error реализует интерфейс error.
func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: %v", ErrPanic, e.Value)
}

// Unwrap возвращает ErrPanic.
func (e *PanicError) Unwrap() error {
	return ErrPanic
}
