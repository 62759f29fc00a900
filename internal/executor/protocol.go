package executor

import "github.com/shaiso/Taskq/internal/domain"

// request — запрос родителя дочернему процессу (одна JSON-строка).
type request struct {
	Envelope domain.Envelope `json:"envelope"`
	LimitMS  int64           `json:"limit_ms,omitempty"`
}

// response — ответ дочернего процесса (одна JSON-строка).
type response struct {
	ID      string         `json:"id"`
	Outcome domain.Outcome `json:"outcome"`
	Error   string         `json:"error,omitempty"`

	// Timeout — единица внутри дочернего процесса бросила task по потолку.
	Timeout bool `json:"timeout,omitempty"`

	// Broken — единица внутри дочернего процесса сломана (Goexit).
	Broken bool `json:"broken,omitempty"`
}

// remoteError — ошибка task, пришедшая из дочернего процесса.
type remoteError struct {
	msg string
}

func (e *remoteError) Error() string { return e.msg }

func (r response) err() error {
	if r.Error == "" {
		return nil
	}
	return &remoteError{msg: r.Error}
}
