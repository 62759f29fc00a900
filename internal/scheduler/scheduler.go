package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Taskq/internal/client"
	"github.com/shaiso/Taskq/internal/domain"
)

// Sender отправляет task (реализуется *client.Client).
type Sender interface {
	Send(ctx context.Context, name string, args []any, kwargs map[string]any, opts ...client.SendOption) (domain.Envelope, error)
}

// Locker — лидерство среди нескольких экземпляров планировщика.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Scheduler — периодический отправитель task.
type Scheduler struct {
	entries  []Entry
	sender   Sender
	locker   Locker
	logger   *slog.Logger
	interval time.Duration

	next    map[string]time.Time
	hasLock bool
}

// Config — конфигурация Scheduler.
type Config struct {
	Entries []Entry
	Sender  Sender

	// Locker — опционально; без него экземпляр всегда считается лидером.
	Locker Locker

	Logger *slog.Logger

	// TickInterval — период проверки (default: 1s).
	TickInterval time.Duration
}

// New создаёт Scheduler, проверяя записи.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}

	entries := make([]Entry, 0, len(cfg.Entries))
	seen := make(map[string]bool, len(cfg.Entries))
	for _, e := range cfg.Entries {
		if e.Name == "" {
			e.Name = e.Task
		}
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, e.Name)
		}
		seen[e.Name] = true
		entries = append(entries, e)
	}

	return &Scheduler{
		entries:  entries,
		sender:   cfg.Sender,
		locker:   cfg.Locker,
		logger:   cfg.Logger,
		interval: cfg.TickInterval,
		next:     make(map[string]time.Time, len(entries)),
	}, nil
}

// NextDue возвращает запланированное время записи (zero до первого Tick).
func (s *Scheduler) NextDue(name string) time.Time {
	return s.next[name]
}

// Tick отправляет записи, время которых наступило, и возвращает их число.
//
// Первый Tick только планирует записи. Ошибка одной записи не блокирует
// обработку остальных; её время всё равно сдвигается, пропущенные
// отправки не догоняются.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	sent := 0
	for _, e := range s.entries {
		due, ok := s.next[e.Name]
		if !ok {
			s.schedule(e, now)
			continue
		}
		if now.Before(due) {
			continue
		}

		env, err := s.sender.Send(ctx, e.Task, e.Args, e.Kwargs, s.sendOptions(e)...)
		if err != nil {
			s.logger.Error("failed to send scheduled task",
				"entry", e.Name,
				"task", e.Task,
				"error", err,
			)
		} else {
			sent++
			s.logger.Info("scheduled task sent",
				"entry", e.Name,
				"task", e.Task,
				"envelope_id", env.ID,
			)
		}
		s.schedule(e, now)
	}
	return sent
}

func (s *Scheduler) schedule(e Entry, now time.Time) {
	next, err := NextDue(e, now)
	if err != nil {
		// Записи проверены в New, сюда попадать не должны.
		s.logger.Error("failed to calculate next due", "entry", e.Name, "error", err)
		return
	}
	s.next[e.Name] = next
	s.logger.Debug("entry scheduled", "entry", e.Name, "next_due", next.Format(time.RFC3339))
}

func (s *Scheduler) sendOptions(e Entry) []client.SendOption {
	if e.Queue == "" {
		return nil
	}
	return []client.SendOption{client.ToQueue(e.Queue)}
}

// Run вызывает Tick каждые TickInterval до отмены ctx.
// С Locker тик выполняет только лидер.
func (s *Scheduler) Run(ctx context.Context) error {
	tk := time.NewTicker(s.interval)
	defer tk.Stop()
	defer s.release()

	s.logger.Info("scheduler started", "entries", len(s.entries))

	for {
		select {
		case t := <-tk.C:
			if !s.leader(ctx) {
				continue
			}
			s.Tick(ctx, t)

		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		}
	}
}

// leader пытается стать лидером (или подтверждает лидерство).
func (s *Scheduler) leader(ctx context.Context) bool {
	if s.locker == nil || s.hasLock {
		return true
	}

	ok, err := s.locker.TryLock(ctx)
	if err != nil {
		s.logger.Warn("leader lock failed", "error", err)
		return false
	}
	if ok {
		s.logger.Info("scheduler became leader")
	}
	s.hasLock = ok
	return ok
}

func (s *Scheduler) release() {
	if s.locker == nil || !s.hasLock {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.locker.Unlock(ctx); err != nil {
		s.logger.Warn("leader unlock failed", "error", err)
	}
	s.hasLock = false
}
