package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrNoDSN — строка подключения не задана.
	ErrNoDSN = errors.New("database url is empty")

	// ErrNotLocked — Unlock без удерживаемой блокировки.
	ErrNotLocked = errors.New("advisory lock is not held")
)
