package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shaiso/Taskq/internal/domain"
	"github.com/shaiso/Taskq/internal/task"
)

// DefaultGrace — сколько ждать task после истечения её потолка,
// прежде чем отказаться от неё.
const DefaultGrace = 250 * time.Millisecond

// InProcess — изоляционная единица внутри процесса worker'а.
//
// Каждый вызов выполняется в отдельной горутине. Паника task
// перехватывается, runtime.Goexit распознаётся как крах единицы. Горутину,
// не уложившуюся в потолок, единица бросает: её контекст отменён, но
// остановить её принудительно в Go нельзя.
type InProcess struct {
	reg    *task.Registry
	logger *slog.Logger
	grace  time.Duration

	mu      sync.Mutex
	started bool
	closed  chan struct{}
}

// NewInProcess создаёт единицу. grace <= 0 заменяется DefaultGrace.
func NewInProcess(reg *task.Registry, logger *slog.Logger, grace time.Duration) *InProcess {
	if logger == nil {
		logger = slog.Default()
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &InProcess{
		reg:    reg,
		logger: logger,
		grace:  grace,
	}
}

// Start помечает единицу как запущенную.
func (p *InProcess) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.started = true
	p.closed = make(chan struct{})
	return nil
}

// Run выполняет envelope в отдельной горутине.
func (p *InProcess) Run(ctx context.Context, env domain.Envelope, limit time.Duration) (Report, error) {
	p.mu.Lock()
	started, closed := p.started, p.closed
	p.mu.Unlock()

	if !started {
		return Report{Outcome: domain.OutcomeFailed, Err: ErrUnitNotStarted}, ErrUnitNotStarted
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if limit > 0 {
		runCtx, cancel = context.WithTimeout(ctx, limit)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	reported := make(chan Report, 1)
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("executor unit panicked outside task body",
					"task", env.Task,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
			}
		}()

		outcome, err := task.Run(runCtx, p.reg, env, p.logger)
		reported <- Report{Outcome: outcome, Err: err}
	}()

	var deadline <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit + p.grace)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case rep := <-reported:
		return rep, nil

	case <-exited:
		// exited закрывается после отправки отчёта, если он был.
		select {
		case rep := <-reported:
			return rep, nil
		default:
		}
		err := fmt.Errorf("%w: task goroutine exited without reporting", ErrUnitCrashed)
		return Report{Outcome: domain.OutcomeFailed, Err: err}, err

	case <-deadline:
		cancel()
		err := fmt.Errorf("%w: limit %s", task.ErrTimeout, limit)
		return Report{Outcome: domain.OutcomeFailed, Err: err}, err

	case <-ctx.Done():
		return p.abandon(reported, fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx)))

	case <-closed:
		cancel()
		return p.abandon(reported, ErrClosed)
	}
}

// abandon даёт task grace на завершение после отмены и бросает её.
func (p *InProcess) abandon(reported <-chan Report, cause error) (Report, error) {
	timer := time.NewTimer(p.grace)
	defer timer.Stop()

	select {
	case rep := <-reported:
		return rep, nil
	case <-timer.C:
		return Report{Outcome: domain.OutcomeFailed, Err: cause}, nil
	}
}

// Restart ничего не пересоздаёт: каждая попытка получает новую горутину.
func (p *InProcess) Restart(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrClosed
	}
	return nil
}

// Close останавливает единицу и прерывает ожидание текущего вызова.
func (p *InProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		p.started = false
		close(p.closed)
	}
	return nil
}
