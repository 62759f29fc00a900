package task

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/shaiso/Taskq/internal/domain"
)

// Stage — точка, в которой вызываются hooks.
type Stage int

const (
	// StagePreSend — перед публикацией envelope (на стороне отправителя).
	StagePreSend Stage = iota

	// StagePreRun — перед вызовом тела task.
	StagePreRun

	// StageSuccess — тело завершилось без ошибки.
	StageSuccess

	// StageFailure — тело завершилось ошибкой (включая reject/discard/timeout).
	StageFailure

	// StagePostRun — после вызова тела, независимо от результата.
	StagePostRun
)

// String возвращает имя стадии.
func (s Stage) String() string {
	switch s {
	case StagePreSend:
		return "pre_send"
	case StagePreRun:
		return "pre_run"
	case StageSuccess:
		return "success"
	case StageFailure:
		return "failure"
	case StagePostRun:
		return "post_run"
	default:
		return "unknown"
	}
}

// Event — данные, передаваемые в hook.
type Event struct {
	// Task — task, для которой вызван hook.
	Task *Task

	// Envelope — вызов (task, args, kwargs).
	Envelope domain.Envelope

	// Result — результат тела (только для StageSuccess).
	Result any

	// Err — ошибка тела (для StageFailure и StagePostRun).
	Err error
}

// Hook — наблюдатель. Ошибка hook'а логируется и не влияет на Outcome.
type Hook func(ctx context.Context, ev Event) error

// Hooks — упорядоченный список наблюдателей по стадиям.
type Hooks struct {
	mu    sync.RWMutex
	hooks map[Stage][]Hook
}

// NewHooks создаёт пустой набор hooks.
func NewHooks() *Hooks {
	return &Hooks{hooks: make(map[Stage][]Hook)}
}

// On добавляет hook для стадии. Hooks вызываются в порядке добавления.
func (h *Hooks) On(stage Stage, fn Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks[stage] = append(h.hooks[stage], fn)
}

func (h *Hooks) list(stage Stage) []Hook {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Hook(nil), h.hooks[stage]...)
}

// Fire вызывает hooks стадии из всех наборов по порядку.
//
// Паника или ошибка hook'а логируется, остальные hooks продолжают вызываться.
func Fire(ctx context.Context, logger *slog.Logger, stage Stage, ev Event, sets ...*Hooks) {
	for _, set := range sets {
		for _, fn := range set.list(stage) {
			callHook(ctx, logger, stage, ev, fn)
		}
	}
}

func callHook(ctx context.Context, logger *slog.Logger, stage Stage, ev Event, fn Hook) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("hook panicked",
				"stage", stage.String(),
				"task", ev.Envelope.Task,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := fn(ctx, ev); err != nil {
		logger.Warn("hook failed",
			"stage", stage.String(),
			"task", ev.Envelope.Task,
			"error", err,
		)
	}
}
