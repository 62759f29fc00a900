package task

import (
	"fmt"
	"sort"
	"sync"
)

// Registry — реестр task по имени.
//
// Заполняется при старте процесса, до запуска worker'а. Один и тот же
// реестр должен строиться и в процессе-супервизоре, и в дочернем процессе
// executor'а. Потокобезопасен.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	hooks *Hooks
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*Task),
		hooks: NewHooks(),
	}
}

// Register создаёт task и добавляет её в реестр.
// Если task с таким именем уже существует, она будет перезаписана.
func (r *Registry) Register(name string, fn Func, opts ...Option) *Task {
	t := New(name, fn, opts...)
	r.Add(t)
	return t
}

// Add добавляет готовую task в реестр.
func (r *Registry) Add(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.Name] = t
}

// Resolve возвращает task по имени.
// Возвращает ErrTaskNotFound, если task не зарегистрирована.
func (r *Registry) Resolve(name string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return t, nil
}

// Has проверяет, зарегистрирована ли task.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tasks[name]
	return ok
}

// Names возвращает отсортированный список имён task.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Hooks возвращает hooks уровня реестра (срабатывают для всех task).
func (r *Registry) Hooks() *Hooks {
	return r.hooks
}
