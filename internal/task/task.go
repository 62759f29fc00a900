package task

import (
	"context"
	"time"
)

// Func — тело task.
//
// args и kwargs приходят из envelope как есть (после JSON-декодирования
// числа становятся float64). Возвращаемый результат только логируется.
type Func func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Task — зарегистрированная фоновая задача.
type Task struct {
	// Name — полное имя, по которому task находится в реестре.
	Name string

	// Queue — очередь по умолчанию для отправки ("" — очередь клиента).
	Queue string

	// Retry — сколько раз повторить тело при обычной ошибке.
	Retry int

	// MaxRunTime — потолок времени выполнения (0 — без ограничения).
	MaxRunTime time.Duration

	fn    Func
	hooks *Hooks
}

// Option настраивает Task при регистрации.
type Option func(*Task)

// WithQueue задаёт очередь по умолчанию.
func WithQueue(queue string) Option {
	return func(t *Task) { t.Queue = queue }
}

// WithRetry задаёт количество повторов тела при ошибке.
func WithRetry(n int) Option {
	return func(t *Task) {
		if n > 0 {
			t.Retry = n
		}
	}
}

// WithMaxRunTime задаёт потолок времени выполнения.
func WithMaxRunTime(d time.Duration) Option {
	return func(t *Task) {
		if d > 0 {
			t.MaxRunTime = d
		}
	}
}

// New создаёт Task без регистрации в реестре.
func New(name string, fn Func, opts ...Option) *Task {
	t := &Task{
		Name:  name,
		fn:    fn,
		hooks: NewHooks(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Hooks возвращает hooks конкретной task.
func (t *Task) Hooks() *Hooks {
	return t.hooks
}
