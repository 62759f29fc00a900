package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/shaiso/Taskq/internal/domain"
	"github.com/shaiso/Taskq/internal/telemetry"
)

// Classify переводит ошибку тела task в Outcome.
//
//	nil        → OutcomeSuccess
//	ErrReject  → OutcomeRejected
//	остальное  → OutcomeFailed (включая ErrDiscard, ErrTimeout, ErrTaskNotFound)
func Classify(err error) domain.Outcome {
	switch {
	case err == nil:
		return domain.OutcomeSuccess
	case errors.Is(err, ErrReject):
		return domain.OutcomeRejected
	default:
		return domain.OutcomeFailed
	}
}

// Invoke вызывает тело task с учётом Retry.
//
// Повтор выполняется только для обычных ошибок: reject, discard и
// истечение ctx не повторяются. Паника превращается в *PanicError.
// Если ctx истёк по дедлайну, ошибка оборачивается в ErrTimeout.
func (t *Task) Invoke(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
	var (
		result any
		err    error
	)

	for attempt := 0; attempt <= t.Retry; attempt++ {
		result, err = t.call(ctx, args, kwargs)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrReject) || errors.Is(err, ErrDiscard) || ctx.Err() != nil {
			break
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return result, err
}

// call — одна попытка вызова тела.
func (t *Task) call(ctx context.Context, args []any, kwargs map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return t.fn(ctx, args, kwargs)
}

// Run выполняет envelope: resolve, hooks, вызов, классификация.
//
// Вызывается внутри изоляционной границы executor'а. Никогда не паникует
// из-за task: любые ошибки становятся Outcome и логируются здесь же.
func Run(ctx context.Context, reg *Registry, env domain.Envelope, logger *slog.Logger) (domain.Outcome, error) {
	log := telemetry.WithEnvelope(logger, env.Task, env.ID)

	t, err := reg.Resolve(env.Task)
	if err != nil {
		log.Error("task could not be resolved",
			"args", env.Args,
			"kwargs", env.Kwargs,
			"outcome", domain.OutcomeFailed.String(),
			"error", err,
		)
		return domain.OutcomeFailed, err
	}

	log.Debug("task will be executed", "args", env.Args, "kwargs", env.Kwargs)

	// Тело task получает логгер с полями envelope через ctx.
	ctx = telemetry.WithLogger(ctx, log)

	ev := Event{Task: t, Envelope: env}
	Fire(ctx, logger, StagePreRun, ev, reg.hooks, t.hooks)

	result, err := t.Invoke(ctx, env.Args, env.Kwargs)
	outcome := Classify(err)

	ev.Result = result
	ev.Err = err
	if err == nil {
		log.Debug("task succeeded", "result", result)
		Fire(ctx, logger, StageSuccess, ev, reg.hooks, t.hooks)
	} else {
		logFailure(log, env, outcome, err)
		Fire(ctx, logger, StageFailure, ev, reg.hooks, t.hooks)
	}
	Fire(ctx, logger, StagePostRun, ev, reg.hooks, t.hooks)

	return outcome, err
}

// logFailure логирует неуспешный исход с контекстом вызова.
func logFailure(log *slog.Logger, env domain.Envelope, outcome domain.Outcome, err error) {
	attrs := []any{
		"args", env.Args,
		"kwargs", env.Kwargs,
		"outcome", outcome.String(),
		"error", err,
	}

	var pe *PanicError
	switch {
	case errors.Is(err, ErrReject):
		log.Info("task rejected", attrs...)
	case errors.Is(err, ErrDiscard):
		log.Info("task discarded", attrs...)
	case errors.As(err, &pe):
		log.Error("task panicked", append(attrs, "stack", string(pe.Stack))...)
	default:
		log.Error("task raised an error", attrs...)
	}
}
