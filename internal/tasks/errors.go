package tasks

import "errors"

// Ошибки встроенных task.
var (
	// ErrHTTPRequest — HTTP-запрос не удалось выполнить.
	ErrHTTPRequest = errors.New("http request failed")

	// ErrHTTPStatus — сервер ответил ошибкой 5xx.
	ErrHTTPStatus = errors.New("http server error")

	// ErrBadArgument — аргумент task отсутствует или имеет неверный тип.
	ErrBadArgument = errors.New("bad task argument")

	// ErrRequested — ошибка, запрошенная task "fail".
	ErrRequested = errors.New("failure requested")
)
